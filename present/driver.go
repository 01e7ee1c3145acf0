package present

import (
	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// frameDriver is the device and window-system side of the frame loop. Slots index the
// per-slot fences and command buffers, pairs index the acquired/rendered semaphores.
type frameDriver interface {
	waitIdle() error

	// createSwapchain creates a swapchain replacing the current one. The current one
	// stays alive until retireSwapchain.
	createSwapchain(width, height int, vsync bool) (swapchainState, error)
	// retireSwapchain destroys the replaced swapchain and everything built on its images.
	retireSwapchain()
	// createImageResources builds views, depth and framebuffers for the current images
	// and returns how many images there are.
	createImageResources() (int, error)
	// resetSlots puts every fence back in the signalled state, recreates the semaphores
	// and resets every command buffer after flushing its deferred releases. The device
	// must be idle.
	resetSlots() error

	acquire(pair int) (image int, res common.VkResult, err error)
	waitFence(slot int) error
	resetFence(slot int) error
	flush(slot int)
	begin(slot int) error
	// submit ends the slot's command buffer and submits it waiting on the pair's acquired
	// semaphore, signalling its rendered semaphore and the slot fence.
	submit(slot, pair int) error
	present(pair, image int) (common.VkResult, error)

	deferRelease(slot int, r gpu.Releasable)
	destroy()
}

// swapchainState is what creating a swapchain settled on.
type swapchainState struct {
	width       int
	height      int
	presentMode khr_surface.PresentMode
}
