// Package present owns the swapchain and the frames-in-flight synchronisation that binds
// CPU recording to GPU completion.
package present

import (
	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/FilipHusnjak/Neon-sub000/internal/logging"
	"github.com/FilipHusnjak/Neon-sub000/pass"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/exp/slog"
)

// DefaultFramesInFlight bounds how many frames the CPU may record ahead of the GPU.
const DefaultFramesInFlight = 3

// Window is the platform side of a surface.
type Window interface {
	CreateSurface(instance core1_0.Instance, ext khr_surface.ExtensionDriver) (khr_surface.Surface, error)
}

type Options struct {
	// FramesInFlight is the number of frame slots. Defaults to DefaultFramesInFlight.
	FramesInFlight int
	Logger         *slog.Logger
}

// Swapchain presents frames to a window surface.
//
// It owns the presentable images and their views, a depth attachment shared by every
// image, the presentation render pass with one framebuffer per image, a fence and a
// command buffer per frame slot, and one more semaphore pair than there are slots.
type Swapchain struct {
	driver frameDriver
	vk     *vulkanDriver
	logger *slog.Logger
	frames *frameSync

	presentMode khr_surface.PresentMode
	vsync       bool
	width       int
	height      int
	imageCount  int

	imageIndex   int
	slot         int
	pair         int
	frameStarted bool
	// stale is set when a frame failed after its image was acquired, or a rebuild did not
	// finish. Fences, semaphores and the acquired image are then in an unknown state and
	// the next BeginFrame rebuilds the swapchain before acquiring again.
	stale bool
}

// New creates the per-slot synchronisation objects and command buffers. The device must
// have been created with presentation enabled.
func New(device *gpu.Device, opts Options) (*Swapchain, error) {
	framesInFlight := opts.FramesInFlight
	if framesInFlight <= 0 {
		framesInFlight = DefaultFramesInFlight
	}

	logger := logging.OrDiscard(opts.Logger)
	frames := newFrameSync(framesInFlight)
	vk, err := newVulkanDriver(device, framesInFlight, frames.pairCount(), logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("initialised swapchain synchronisation",
		slog.Int("FramesInFlight", framesInFlight),
		slog.Int("SemaphorePairs", frames.pairCount()))
	return newSwapchain(vk, frames, logger), nil
}

func newSwapchain(driver frameDriver, frames *frameSync, logger *slog.Logger) *Swapchain {
	s := &Swapchain{
		driver: driver,
		logger: logger,
		frames: frames,
	}
	if vk, ok := driver.(*vulkanDriver); ok {
		s.vk = vk
	}
	return s
}

// InitSurface creates the window surface, picks the queue that presents to it and the
// color format of the presentable images.
func (s *Swapchain) InitSurface(window Window) error {
	return s.vk.initSurface(window)
}

// choosePresentFamily prefers presenting from the graphics family.
func choosePresentFamily(graphics int, supported []int) (int, error) {
	for _, family := range supported {
		if family == graphics {
			return family, nil
		}
	}
	if len(supported) > 0 {
		return supported[0], nil
	}
	return -1, ErrPresentUnsupported
}

// Create builds (or rebuilds) the swapchain at the requested size once the device is
// idle. The previous swapchain is handed to the driver for the transition and destroyed
// once the new one exists. Every frame slot starts over: fences signalled, semaphores
// unused, all semaphore pairs free.
func (s *Swapchain) Create(width, height int, vsync bool) error {
	if err := s.driver.waitIdle(); err != nil {
		return err
	}

	state, err := s.driver.createSwapchain(width, height, vsync)
	if err != nil {
		return err
	}
	s.driver.retireSwapchain()
	s.stale = true
	s.presentMode = state.presentMode
	s.vsync = vsync
	s.width, s.height = state.width, state.height

	imageCount, err := s.driver.createImageResources()
	if err != nil {
		return err
	}
	s.imageCount = imageCount
	s.frames.reset(imageCount)
	if err := s.driver.resetSlots(); err != nil {
		return err
	}
	s.stale = false

	s.logger.Debug("created swapchain",
		slog.Int("Width", s.width),
		slog.Int("Height", s.height),
		slog.Int("Images", imageCount),
		slog.String("PresentMode", state.presentMode.String()))
	return nil
}

// BeginFrame acquires the next image and prepares its frame slot's command buffer for
// recording. It blocks until the slot's previous submission has completed. When the
// swapchain turns out to be stale it is recreated and BeginFrame returns false; the
// caller skips the frame.
func (s *Swapchain) BeginFrame() (bool, error) {
	if s.frameStarted {
		return false, errors.AssertionFailedf("BeginFrame called twice without Present")
	}
	if s.stale {
		s.logger.Debug("rebuilding swapchain after a failed frame")
		return false, s.Create(s.width, s.height, s.vsync)
	}

	pair, err := s.frames.takePair()
	if err != nil {
		return false, err
	}

	imageIndex, res, err := s.driver.acquire(pair)
	switch {
	case res == khr_swapchain.VKErrorOutOfDate:
		s.frames.returnPair(pair)
		return false, s.OnResize(s.width, s.height)
	case res == khr_surface.VKErrorSurfaceLost:
		s.frames.returnPair(pair)
		return false, errors.WithSecondaryError(ErrSurfaceLost, err)
	case err != nil:
		s.frames.returnPair(pair)
		return false, errors.Wrap(err, "acquire next image")
	case res == khr_swapchain.VKSuboptimal:
		s.logger.Warn("acquired image from a suboptimal swapchain", slog.Int("Image", imageIndex))
	}

	if err := s.prepareSlot(imageIndex, pair); err != nil {
		s.stale = true
		return false, err
	}
	s.frameStarted = true
	return true, nil
}

// prepareSlot waits for the slot owning imageIndex, hands it pair and starts recording.
func (s *Swapchain) prepareSlot(imageIndex, pair int) error {
	slot, err := s.frames.slotFor(imageIndex)
	if err != nil {
		return err
	}

	if err := s.driver.waitFence(slot); err != nil {
		return err
	}
	if err := s.driver.resetFence(slot); err != nil {
		return err
	}
	s.frames.assign(slot, pair)

	s.driver.flush(slot)
	if err := s.driver.begin(slot); err != nil {
		return err
	}

	s.imageIndex, s.slot, s.pair = imageIndex, slot, pair
	return nil
}

// Present submits the frame slot's command buffer and queues the image for presentation.
// An out-of-date or suboptimal result recreates the swapchain at the last known size.
func (s *Swapchain) Present() error {
	if !s.frameStarted {
		return errors.AssertionFailedf("Present called without BeginFrame")
	}
	s.frameStarted = false

	if err := s.driver.submit(s.slot, s.pair); err != nil {
		// The slot fence was reset and will not be signalled.
		s.stale = true
		return err
	}

	res, err := s.driver.present(s.pair, s.imageIndex)
	switch {
	case res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal:
		s.logger.Debug("swapchain stale after present", slog.String("Result", res.String()))
		return s.OnResize(s.width, s.height)
	case res == khr_surface.VKErrorSurfaceLost:
		s.stale = true
		return errors.WithSecondaryError(ErrSurfaceLost, err)
	case err != nil:
		s.stale = true
		return errors.Wrap(err, "queue present")
	}
	return nil
}

// OnResize recreates the swapchain at width x height and waits for the device again.
// Empty sizes, as reported for minimised windows, are ignored.
func (s *Swapchain) OnResize(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	if err := s.Create(width, height, s.vsync); err != nil {
		return err
	}
	return s.driver.waitIdle()
}

// SetVSync changes the presentation mode policy and recreates the swapchain.
func (s *Swapchain) SetVSync(vsync bool) error {
	if vsync == s.vsync {
		return nil
	}
	return s.Create(s.width, s.height, vsync)
}

// ReleaseAfterFrames releases r once every frame slot has waited for the work it is
// recording or has in flight. Use it for resources any frame may still read, such as a
// framebuffer sampled through its descriptor set.
func (s *Swapchain) ReleaseAfterFrames(r gpu.Releasable) {
	for slot, part := range gpu.SplitRelease(r, s.frames.slots) {
		s.driver.deferRelease(slot, part)
	}
}

// Destroy waits for the device and releases everything the swapchain owns, including
// releases still deferred on frame slots.
func (s *Swapchain) Destroy() {
	s.driver.destroy()
}

// CommandBuffer returns the command buffer of the current frame slot.
func (s *Swapchain) CommandBuffer() *gpu.CommandBuffer {
	return s.vk.commandBuffers[s.slot]
}

func (s *Swapchain) RenderPass() *pass.RenderPass {
	return s.vk.renderPass
}

// CurrentFramebuffer returns the framebuffer of the acquired image.
func (s *Swapchain) CurrentFramebuffer() core1_0.Framebuffer {
	return s.vk.framebuffers[s.imageIndex]
}

func (s *Swapchain) Width() int {
	return s.width
}

func (s *Swapchain) Height() int {
	return s.height
}

func (s *Swapchain) ImageCount() int {
	return s.imageCount
}

func (s *Swapchain) ImageIndex() int {
	return s.imageIndex
}

func (s *Swapchain) FrameSlot() int {
	return s.slot
}

func (s *Swapchain) FramesInFlight() int {
	return s.frames.slots
}

func (s *Swapchain) PresentMode() khr_surface.PresentMode {
	return s.presentMode
}

func (s *Swapchain) Format() core1_0.Format {
	return s.vk.surfaceFormat.Format
}

func (s *Swapchain) DepthFormat() core1_0.Format {
	return s.vk.depthFormat
}

// FrameStarted reports whether BeginFrame succeeded and Present has not run yet.
func (s *Swapchain) FrameStarted() bool {
	return s.frameStarted
}
