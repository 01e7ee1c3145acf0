package renderer

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"golang.org/x/exp/slog"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// createInstance enables the window's extensions, portability enumeration when the loader
// offers it, and the validation layer with a debug messenger chained onto creation.
func createInstance(global core1_0.GlobalDriver, cfg Config, windowExtensions []string, logger *slog.Logger) (core1_0.CoreInstanceDriver, error) {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    cfg.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "Neon",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	extensions, _, err := global.AvailableExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range windowExtensions {
		if _, ok := extensions[ext]; !ok {
			return nil, errors.Newf("window requires missing instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if _, ok := extensions[khr_portability_enumeration.ExtensionName]; ok {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if cfg.Validation {
		layers, _, err := global.AvailableLayers()
		if err != nil {
			return nil, errors.Wrap(err, "enumerate instance layers")
		}
		if _, ok := layers[validationLayer]; !ok {
			return nil, errors.Newf("validation layer %s not available, install the Vulkan SDK", validationLayer)
		}
		instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, validationLayer)
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		instanceOptions.Next = debugMessengerOptions(logger)
	}

	instance, _, err := global.CreateInstance(nil, instanceOptions)
	if err != nil {
		return nil, errors.Wrap(err, "create instance")
	}
	return instance, nil
}

func debugMessengerOptions(logger *slog.Logger) ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback: func(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
			logger.Log(context.Background(), validationLevel(severity), data.Message,
				slog.String("Type", msgType.String()),
				slog.String("ID", data.MessageIDName))
			return false
		},
	}
}

func validationLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	case severity&ext_debug_utils.SeverityInfo != 0:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
