package present

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfDate means the surface changed and the swapchain had to be recreated.
	ErrOutOfDate = errors.New("swapchain out of date")
	// ErrSurfaceLost means the platform surface is gone and cannot be presented to.
	ErrSurfaceLost = errors.New("surface lost")
	// ErrPresentUnsupported means none of the device's queue families can present to the
	// surface.
	ErrPresentUnsupported = errors.New("no device queue can present to the surface")
)
