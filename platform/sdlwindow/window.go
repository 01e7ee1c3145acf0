// Package sdlwindow opens an SDL2 window that a renderer.Context can present to.
package sdlwindow

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

// EventKind is what happened to the window.
type EventKind int

const (
	Quit EventKind = iota
	Resized
	Minimized
	Restored
	KeyPressed
)

// Event is a window event the render loop cares about.
type Event struct {
	Kind EventKind
	// Width and Height are the drawable size for Resized.
	Width  int
	Height int
	// Key is set for KeyPressed.
	Key sdl.Keycode
}

// Window is a resizable Vulkan-capable SDL window.
type Window struct {
	window *sdl.Window
}

// Open initialises SDL video and creates the window. Call it from the main thread, which
// must stay locked for the lifetime of the window.
func Open(title string, width, height int) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init SDL video")
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}
	return &Window{window: window}, nil
}

// RequiredExtensions lists the instance extensions SDL needs for surface creation.
func (w *Window) RequiredExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

// InstanceProcAddr returns the Vulkan loader entry point SDL loaded.
func (w *Window) InstanceProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

func (w *Window) CreateSurface(instance core1_0.Instance, ext khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	surface, err := vkng_sdl2.CreateSurface(instance, ext, w.window)
	if err != nil {
		return surface, errors.Wrap(err, "create SDL surface")
	}
	return surface, nil
}

// DrawableSize is the size of the window's framebuffer in pixels. It is zero while the
// window is minimised.
func (w *Window) DrawableSize() (int, int) {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return 0, 0
	}
	width, height := w.window.VulkanGetDrawableSize()
	return int(width), int(height)
}

// SetTitle replaces the window title.
func (w *Window) SetTitle(title string) {
	w.window.SetTitle(title)
}

// Poll drains the SDL event queue.
func (w *Window) Poll() []Event {
	var events []Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		if e, ok := translate(event, w.DrawableSize); ok {
			events = append(events, e)
		}
	}
	return events
}

func translate(event sdl.Event, drawable func() (int, int)) (Event, bool) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return Event{Kind: Quit}, true
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_MINIMIZED:
			return Event{Kind: Minimized}, true
		case sdl.WINDOWEVENT_RESTORED:
			return Event{Kind: Restored}, true
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			width, height := drawable()
			if width == 0 || height == 0 {
				return Event{Kind: Minimized}, true
			}
			return Event{Kind: Resized, Width: width, Height: height}, true
		}
	case *sdl.KeyboardEvent:
		if e.Type == sdl.KEYDOWN && e.Repeat == 0 {
			return Event{Kind: KeyPressed, Key: e.Keysym.Sym}, true
		}
	}
	return Event{}, false
}

// Close destroys the window and shuts SDL down.
func (w *Window) Close() {
	w.window.Destroy()
	sdl.Quit()
}
