package renderer

import (
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"
)

// API selects the rendering backend.
type API int

const (
	None API = iota
	Vulkan
)

func (a API) String() string {
	switch a {
	case None:
		return "None"
	case Vulkan:
		return "Vulkan"
	}
	return "Unknown"
}

// Config describes how a Context is built.
type Config struct {
	AppName string
	API     API

	// MaxFramesInFlight is how many frames the CPU may record ahead of the GPU.
	MaxFramesInFlight int
	VSync             bool
	// Validation enables the Khronos validation layer and routes its messages to Logger.
	Validation bool
	// FenceTimeout bounds each fence wait. Zero waits forever.
	FenceTimeout time.Duration

	// PipelineCachePath is where pipeline cache data is loaded from and saved to.
	// Empty disables persistence.
	PipelineCachePath string
	// ShaderCacheDir mirrors loaded SPIR-V. Empty disables the disk mirror.
	ShaderCacheDir string

	Logger *slog.Logger
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		AppName:           "Neon",
		API:               Vulkan,
		MaxFramesInFlight: 3,
		VSync:             true,
		FenceTimeout:      5 * time.Second,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.MaxFramesInFlight < 1 {
		return errors.Newf("MaxFramesInFlight must be at least 1, got %d", c.MaxFramesInFlight)
	}
	if c.FenceTimeout < 0 {
		return errors.Newf("FenceTimeout must not be negative, got %s", c.FenceTimeout)
	}
	if c.AppName == "" {
		return errors.New("AppName must be set")
	}
	return nil
}
