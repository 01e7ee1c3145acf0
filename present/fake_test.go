package present

import (
	"fmt"

	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// fakeDriver models the GPU and the presentation engine closely enough to catch misuse:
// a fence reset and never submitted is never signalled again, a semaphore may not be
// acquired into while signalled, and a command buffer may not be flushed or begun while
// its submission is pending. Every call is logged.
type fakeDriver struct {
	calls      []string
	violations []string

	slots      int
	pairs      int
	imageCount int
	nextImage  int

	// GPU state.
	signalled []bool
	pending   []bool
	acquired  []bool
	deferred  [][]gpu.Releasable

	// Presentation engine state.
	swapchains int
	replaced   bool

	// Injected failures, consumed once.
	acquireResults []common.VkResult
	presentResults []common.VkResult
	failWait       bool
	failSubmit     bool
}

var _ frameDriver = (*fakeDriver)(nil)

func newFakeDriver(slots, imageCount int) *fakeDriver {
	d := &fakeDriver{
		slots:      slots,
		pairs:      slots + 1,
		imageCount: imageCount,
		deferred:   make([][]gpu.Releasable, slots),
	}
	d.resetState()
	return d
}

func (d *fakeDriver) resetState() {
	d.signalled = make([]bool, d.slots)
	for i := range d.signalled {
		d.signalled[i] = true
	}
	d.pending = make([]bool, d.slots)
	d.acquired = make([]bool, d.pairs)
}

func (d *fakeDriver) log(format string, args ...any) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDriver) violate(format string, args ...any) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

// complete finishes every pending submission.
func (d *fakeDriver) complete() {
	for slot, pending := range d.pending {
		if pending {
			d.pending[slot] = false
			d.signalled[slot] = true
		}
	}
}

func (d *fakeDriver) waitIdle() error {
	d.log("wait-idle")
	d.complete()
	return nil
}

func (d *fakeDriver) createSwapchain(width, height int, vsync bool) (swapchainState, error) {
	d.log("create-swapchain")
	if d.replaced {
		d.violate("swapchain created while a replaced one is still alive")
	}
	if d.swapchains > 0 {
		d.replaced = true
	}
	d.swapchains++
	mode := khr_surface.PresentModeFIFO
	if !vsync {
		mode = khr_surface.PresentModeMailbox
	}
	return swapchainState{width: width, height: height, presentMode: mode}, nil
}

func (d *fakeDriver) retireSwapchain() {
	d.log("retire-swapchain")
	if d.replaced {
		d.swapchains--
		d.replaced = false
	}
}

func (d *fakeDriver) createImageResources() (int, error) {
	d.log("create-images")
	d.nextImage = 0
	return d.imageCount, nil
}

func (d *fakeDriver) resetSlots() error {
	d.log("reset-slots")
	for slot := range d.deferred {
		d.flushDeferred(slot)
	}
	d.resetState()
	return nil
}

func (d *fakeDriver) acquire(pair int) (int, common.VkResult, error) {
	d.log("acquire pair=%d", pair)
	if len(d.acquireResults) > 0 {
		res := d.acquireResults[0]
		d.acquireResults = d.acquireResults[1:]
		if res != core1_0.VKSuccess {
			return 0, res, errors.Newf("acquire failed with %s", res)
		}
	}
	if d.acquired[pair] {
		d.violate("acquire into signalled semaphore of pair %d", pair)
	}
	d.acquired[pair] = true

	image := d.nextImage
	d.nextImage = (d.nextImage + 1) % d.imageCount
	return image, core1_0.VKSuccess, nil
}

func (d *fakeDriver) waitFence(slot int) error {
	d.log("wait slot=%d", slot)
	if d.failWait {
		d.failWait = false
		return errors.Wrap(gpu.ErrDeviceLost, "fence wait timed out")
	}
	if d.pending[slot] {
		d.pending[slot] = false
		d.signalled[slot] = true
	}
	if !d.signalled[slot] {
		return errors.Wrapf(gpu.ErrDeviceLost, "fence of slot %d will never signal", slot)
	}
	return nil
}

func (d *fakeDriver) resetFence(slot int) error {
	d.log("reset slot=%d", slot)
	d.signalled[slot] = false
	return nil
}

func (d *fakeDriver) flush(slot int) {
	d.log("flush slot=%d", slot)
	if d.pending[slot] {
		d.violate("flush of slot %d with a pending submission", slot)
	}
	d.flushDeferred(slot)
}

func (d *fakeDriver) flushDeferred(slot int) {
	deferred := d.deferred[slot]
	d.deferred[slot] = nil
	for _, r := range deferred {
		r.Release()
	}
}

func (d *fakeDriver) begin(slot int) error {
	d.log("begin slot=%d", slot)
	if d.pending[slot] {
		d.violate("begin of slot %d with a pending submission", slot)
	}
	return nil
}

func (d *fakeDriver) submit(slot, pair int) error {
	d.log("submit slot=%d pair=%d", slot, pair)
	if d.failSubmit {
		d.failSubmit = false
		return errors.New("queue submit failed")
	}
	if !d.acquired[pair] {
		d.violate("submit waits on unsignalled semaphore of pair %d", pair)
	}
	d.acquired[pair] = false
	d.pending[slot] = true
	return nil
}

func (d *fakeDriver) present(pair, image int) (common.VkResult, error) {
	d.log("present pair=%d image=%d", pair, image)
	if len(d.presentResults) > 0 {
		res := d.presentResults[0]
		d.presentResults = d.presentResults[1:]
		if res != core1_0.VKSuccess {
			return res, errors.Newf("present failed with %s", res)
		}
	}
	return core1_0.VKSuccess, nil
}

func (d *fakeDriver) deferRelease(slot int, r gpu.Releasable) {
	d.deferred[slot] = append(d.deferred[slot], r)
}

func (d *fakeDriver) destroy() {
	d.log("destroy")
	for slot := range d.deferred {
		d.flushDeferred(slot)
	}
}
