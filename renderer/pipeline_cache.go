package renderer

import (
	"bytes"
	"encoding/binary"
	"io/fs"
	"os"

	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/FilipHusnjak/Neon-sub000/internal/logging"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"
)

// pipelineCacheHeaderVersionOne is VK_PIPELINE_CACHE_HEADER_VERSION_ONE.
const pipelineCacheHeaderVersionOne uint32 = 1

// pipelineCacheHeader is the fixed prefix every driver writes in front of its cache data.
type pipelineCacheHeader struct {
	Length   uint32
	Version  uint32
	VendorID uint32
	DeviceID uint32
	UUID     uuid.UUID
}

// pipelineCacheHeaderSize is the smallest header length a driver may report.
const pipelineCacheHeaderSize = 16 + 16

// checkPipelineCacheHeader reports ErrPipelineCacheMismatch unless data was written by the
// adapter pd for the same driver build.
func checkPipelineCacheHeader(data []byte, pd *gpu.PhysicalDevice) error {
	var header pipelineCacheHeader
	if err := binary.Read(bytes.NewReader(data), common.ByteOrder, &header); err != nil {
		return errors.WithSecondaryError(ErrPipelineCacheMismatch, err)
	}

	switch {
	case header.Length < pipelineCacheHeaderSize || int(header.Length) > len(data):
		return errors.Wrapf(ErrPipelineCacheMismatch, "header length %d", header.Length)
	case header.Version != pipelineCacheHeaderVersionOne:
		return errors.Wrapf(ErrPipelineCacheMismatch, "header version %d", header.Version)
	case header.VendorID != pd.VendorID:
		return errors.Wrapf(ErrPipelineCacheMismatch, "vendor 0x%x, device has 0x%x", header.VendorID, pd.VendorID)
	case header.DeviceID != pd.DeviceID:
		return errors.Wrapf(ErrPipelineCacheMismatch, "device 0x%x, device has 0x%x", header.DeviceID, pd.DeviceID)
	case header.UUID != pd.PipelineCacheUUID:
		return errors.Wrapf(ErrPipelineCacheMismatch, "cache id %s, driver expects %s", header.UUID, pd.PipelineCacheUUID)
	}
	return nil
}

// PipelineCache wraps a driver pipeline cache that persists between runs.
type PipelineCache struct {
	device *gpu.Device
	handle core1_0.PipelineCache
	path   string
	logger *slog.Logger
}

// LoadPipelineCache creates a pipeline cache seeded from path. Data that is missing,
// unreadable or written by another device is discarded and the cache starts empty.
func LoadPipelineCache(device *gpu.Device, path string, logger *slog.Logger) (*PipelineCache, error) {
	logger = logging.OrDiscard(logger)

	var initial []byte
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			logger.Warn("unreadable pipeline cache", slog.String("Path", path), slog.Any("error", err))
		default:
			if err := checkPipelineCacheHeader(data, device.Physical()); err != nil {
				logger.Warn("discarding pipeline cache", slog.String("Path", path), slog.Any("error", err))
				_ = os.Remove(path)
			} else {
				initial = data
			}
		}
	}

	handle, _, err := device.Driver().CreatePipelineCache(nil, core1_0.PipelineCacheCreateInfo{
		InitialData: initial,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline cache")
	}

	logger.Debug("created pipeline cache", slog.String("Path", path), slog.Int("SeedBytes", len(initial)))
	return &PipelineCache{device: device, handle: handle, path: path, logger: logger}, nil
}

func (c *PipelineCache) Handle() core1_0.PipelineCache {
	return c.handle
}

// Save writes the current cache contents back to disk.
func (c *PipelineCache) Save() error {
	if c.path == "" {
		return nil
	}
	data, _, err := c.device.Driver().GetPipelineCacheData(c.handle)
	if err != nil {
		return errors.Wrap(err, "read pipeline cache data")
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write pipeline cache %s", c.path)
	}
	c.logger.Debug("saved pipeline cache", slog.String("Path", c.path), slog.Int("Bytes", len(data)))
	return nil
}

func (c *PipelineCache) Destroy() {
	c.device.Driver().DestroyPipelineCache(c.handle, nil)
}
