package gpu

import "github.com/cockroachdb/errors"

var (
	// ErrNoSuitableAdapter means the instance exposes no physical device.
	ErrNoSuitableAdapter = errors.New("no suitable GPU adapter")
	// ErrQueueFamilyNotFound means a requested queue capability is not offered by any family.
	ErrQueueFamilyNotFound = errors.New("queue family not found")
	// ErrNoDepthFormat means none of the candidate depth formats can be used as an
	// optimal-tiling depth/stencil attachment.
	ErrNoDepthFormat = errors.New("no supported depth format")
	// ErrNoMemoryType means no memory type satisfies an allocation's requirements.
	ErrNoMemoryType = errors.New("no suitable memory type")
	// ErrDeviceLost is returned when the device reports loss or a fence stays unsignalled
	// past the configured number of bounded waits.
	ErrDeviceLost = errors.New("device lost")
)
