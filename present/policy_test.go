package present

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

func TestChoosePresentMode(t *testing.T) {
	all := []khr_surface.PresentMode{
		khr_surface.PresentModeImmediate,
		khr_surface.PresentModeFIFO,
		khr_surface.PresentModeMailbox,
	}

	tests := []struct {
		name      string
		available []khr_surface.PresentMode
		vsync     bool
		want      khr_surface.PresentMode
	}{
		{"vsync ignores faster modes", all, true, khr_surface.PresentModeFIFO},
		{"mailbox over immediate", all, false, khr_surface.PresentModeMailbox},
		{"immediate without mailbox", []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeImmediate}, false, khr_surface.PresentModeImmediate},
		{"fifo fallback", []khr_surface.PresentMode{khr_surface.PresentModeFIFO}, false, khr_surface.PresentModeFIFO},
		{"nothing listed", nil, false, khr_surface.PresentModeFIFO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := choosePresentMode(tt.available, tt.vsync); got != tt.want {
				t.Errorf("choosePresentMode = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestChooseImageCount(t *testing.T) {
	tests := []struct {
		min, max, want int
	}{
		{2, 8, 3},
		{2, 3, 3},
		{3, 3, 3},
		{2, 0, 3},
		{1, 0, 2},
	}
	for _, tt := range tests {
		if got := chooseImageCount(tt.min, tt.max); got != tt.want {
			t.Errorf("chooseImageCount(%d, %d) = %d, want %d", tt.min, tt.max, got, tt.want)
		}
	}
}

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := khr_surface.SurfaceFormat{Format: core1_0.FormatR8G8B8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear}

	tests := []struct {
		name    string
		formats []khr_surface.SurfaceFormat
		want    khr_surface.SurfaceFormat
	}{
		{"unspecified", nil, preferredFormat},
		{"undefined only", []khr_surface.SurfaceFormat{{Format: core1_0.FormatUndefined}}, preferredFormat},
		{"preferred listed second", []khr_surface.SurfaceFormat{srgb, preferredFormat}, preferredFormat},
		{"first otherwise", []khr_surface.SurfaceFormat{srgb}, srgb},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := chooseSurfaceFormat(tt.formats); got != tt.want {
				t.Errorf("chooseSurfaceFormat = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChooseExtent(t *testing.T) {
	caps := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 16, Height: 16},
		MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 2048},
	}

	if got := chooseExtent(caps, 800, 600); got != (core1_0.Extent2D{Width: 800, Height: 600}) {
		t.Errorf("in range: %+v", got)
	}
	if got := chooseExtent(caps, 8000, 4); got != (core1_0.Extent2D{Width: 4096, Height: 16}) {
		t.Errorf("clamped: %+v", got)
	}

	caps.CurrentExtent = core1_0.Extent2D{Width: 1280, Height: 720}
	if got := chooseExtent(caps, 800, 600); got != caps.CurrentExtent {
		t.Errorf("defined by surface: %+v", got)
	}
}

func TestChoosePresentFamily(t *testing.T) {
	if got, err := choosePresentFamily(0, []int{2, 0}); err != nil || got != 0 {
		t.Errorf("graphics supports present: got %d, %v", got, err)
	}
	if got, err := choosePresentFamily(0, []int{2}); err != nil || got != 2 {
		t.Errorf("separate present family: got %d, %v", got, err)
	}
	if _, err := choosePresentFamily(0, nil); !errors.Is(err, ErrPresentUnsupported) {
		t.Errorf("no family: err = %v", err)
	}
}
