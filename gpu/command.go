package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"
)

// CommandPool allocates command buffers for one queue type. Buffers can be reset
// individually and are expected to be short lived.
type CommandPool struct {
	device    *Device
	queueType QueueType
	handle    core1_0.CommandPool
}

// NewCommandPool creates a pool on the queue family serving queueType.
func NewCommandPool(device *Device, queueType QueueType) (*CommandPool, error) {
	family := device.physical.QueueIndices.Family(queueType)
	if family < 0 {
		return nil, errors.Wrapf(ErrQueueFamilyNotFound, "%s command pool", queueType)
	}

	handle, _, err := device.driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: family,
		Flags:            core1_0.CommandPoolCreateTransient | core1_0.CommandPoolCreateResetBuffer,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create %s command pool", queueType)
	}

	device.logger.Debug("created command pool", slog.String("Type", queueType.String()), slog.Int("Family", family))
	return &CommandPool{
		device:    device,
		queueType: queueType,
		handle:    handle,
	}, nil
}

func (p *CommandPool) Type() QueueType {
	return p.queueType
}

// Allocate allocates count primary command buffers.
func (p *CommandPool) Allocate(count int) ([]*CommandBuffer, error) {
	handles, _, err := p.device.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.handle,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "allocate %d %s command buffers", count, p.queueType)
	}

	buffers := make([]*CommandBuffer, 0, len(handles))
	for _, handle := range handles {
		buffers = append(buffers, &CommandBuffer{pool: p, handle: handle})
	}
	return buffers, nil
}

// Free releases every pending stale resource of the buffers and returns them to the pool.
// The caller guarantees the GPU is done with them.
func (p *CommandPool) Free(buffers ...*CommandBuffer) {
	var handles []core1_0.CommandBuffer
	for _, buffer := range buffers {
		buffer.Flush()
		handles = append(handles, buffer.handle)
	}
	if len(handles) > 0 {
		p.device.driver.FreeCommandBuffers(handles...)
	}
}

func (p *CommandPool) Destroy() {
	p.device.driver.DestroyCommandPool(p.handle, nil)
}

// CommandBuffer is a primary command buffer together with the synchronisation it will be
// submitted with and the resources that must outlive its execution.
//
// Wait and signal semaphores and the fence describe a single submission; Submit clears
// them. Stale resources accumulate until Flush.
type CommandBuffer struct {
	pool   *CommandPool
	handle core1_0.CommandBuffer

	recording bool

	waitSemaphores   []core1_0.Semaphore
	waitStages       []core1_0.PipelineStageFlags
	signalSemaphores []core1_0.Semaphore
	fence            *core1_0.Fence

	stale []Releasable
}

// Handle returns the driver handle for recording commands.
func (c *CommandBuffer) Handle() core1_0.CommandBuffer {
	return c.handle
}

func (c *CommandBuffer) Pool() *CommandPool {
	return c.pool
}

func (c *CommandBuffer) Recording() bool {
	return c.recording
}

// Begin starts one-time-submit recording.
func (c *CommandBuffer) Begin() error {
	if c.recording {
		return errors.New("command buffer is already recording")
	}
	_, err := c.pool.device.driver.BeginCommandBuffer(c.handle, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return errors.Wrap(err, "begin command buffer")
	}
	c.recording = true
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.recording {
		return errors.New("command buffer is not recording")
	}
	c.recording = false
	_, err := c.pool.device.driver.EndCommandBuffer(c.handle)
	return errors.Wrap(err, "end command buffer")
}

// Reset returns the buffer to the initial state. Pending stale resources are kept.
func (c *CommandBuffer) Reset() error {
	c.recording = false
	_, err := c.pool.device.driver.ResetCommandBuffer(c.handle, 0)
	return errors.Wrap(err, "reset command buffer")
}

// AddWaitSemaphore makes the next submission wait on sem before stage.
func (c *CommandBuffer) AddWaitSemaphore(sem core1_0.Semaphore, stage core1_0.PipelineStageFlags) {
	c.waitSemaphores = append(c.waitSemaphores, sem)
	c.waitStages = append(c.waitStages, stage)
}

// AddSignalSemaphore makes the next submission signal sem on completion.
func (c *CommandBuffer) AddSignalSemaphore(sem core1_0.Semaphore) {
	c.signalSemaphores = append(c.signalSemaphores, sem)
}

// SetFence makes the next submission signal fence on completion.
func (c *CommandBuffer) SetFence(fence core1_0.Fence) {
	c.fence = &fence
}

type submission struct {
	info  core1_0.SubmitInfo
	fence *core1_0.Fence
}

// takeSubmission builds the submission for the accumulated state and clears it.
func (c *CommandBuffer) takeSubmission() submission {
	s := submission{
		info: core1_0.SubmitInfo{
			WaitSemaphores:   c.waitSemaphores,
			WaitDstStageMask: c.waitStages,
			CommandBuffers:   []core1_0.CommandBuffer{c.handle},
			SignalSemaphores: c.signalSemaphores,
		},
		fence: c.fence,
	}

	c.waitSemaphores = nil
	c.waitStages = nil
	c.signalSemaphores = nil
	c.fence = nil
	return s
}

// Submit submits the buffer to the queue of its pool's type. The wait, signal and fence
// state is consumed even if submission fails.
func (c *CommandBuffer) Submit() error {
	if c.recording {
		return errors.New("submit of a command buffer that is still recording")
	}

	s := c.takeSubmission()
	device := c.pool.device
	res, err := device.driver.QueueSubmit(device.Queue(c.pool.queueType), s.fence, s.info)
	if err != nil {
		if res == core1_0.VKErrorDeviceLost {
			return errors.WithSecondaryError(errors.Wrap(ErrDeviceLost, "queue submit"), err)
		}
		return errors.Wrap(err, "queue submit")
	}
	return nil
}

// SafeDestroyResource defers releasing resource until the next Flush.
func (c *CommandBuffer) SafeDestroyResource(resource Releasable) {
	c.stale = append(c.stale, resource)
}

// PendingReleases reports how many resources wait for the next Flush.
func (c *CommandBuffer) PendingReleases() int {
	return len(c.stale)
}

// Flush releases deferred resources in the order they were queued. Call it only once the
// buffer's last submission is known to be complete.
func (c *CommandBuffer) Flush() {
	stale := c.stale
	c.stale = nil
	for _, resource := range stale {
		resource.Release()
	}
}
