package present

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// preferredFormat is used whenever the surface offers it or leaves the choice open.
var preferredFormat = khr_surface.SurfaceFormat{
	Format:     core1_0.FormatB8G8R8A8UnsignedNormalized,
	ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
}

// choosePresentMode returns FIFO for vsync. Without vsync it prefers mailbox, then
// immediate, and falls back to FIFO, which every surface supports.
func choosePresentMode(available []khr_surface.PresentMode, vsync bool) khr_surface.PresentMode {
	if vsync {
		return khr_surface.PresentModeFIFO
	}

	immediate := false
	for _, mode := range available {
		switch mode {
		case khr_surface.PresentModeMailbox:
			return mode
		case khr_surface.PresentModeImmediate:
			immediate = true
		}
	}
	if immediate {
		return khr_surface.PresentModeImmediate
	}
	return khr_surface.PresentModeFIFO
}

// chooseImageCount asks for one image more than the minimum, capped by the maximum.
// A maximum of zero means unbounded.
func chooseImageCount(minCount, maxCount int) int {
	count := minCount + 1
	if maxCount > 0 && count > maxCount {
		count = maxCount
	}
	if count < minCount {
		count = minCount
	}
	return count
}

// chooseSurfaceFormat prefers 8-bit BGRA with the sRGB nonlinear color space, and
// otherwise takes the first format the surface lists.
func chooseSurfaceFormat(formats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	if len(formats) == 0 {
		return preferredFormat
	}
	if len(formats) == 1 && formats[0].Format == core1_0.FormatUndefined {
		return preferredFormat
	}
	for _, format := range formats {
		if format == preferredFormat {
			return format
		}
	}
	return formats[0]
}

// chooseExtent uses the surface's current extent when it defines one and otherwise clamps
// the requested size into the supported range.
func chooseExtent(caps *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if caps.CurrentExtent.Width != -1 {
		return caps.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
