package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"
)

// DefaultFenceAttempts is how many timed waits a fence gets before the device is
// considered lost.
const DefaultFenceAttempts = 3

// CreateFence creates a fence, optionally in the signalled state.
func (d *Device) CreateFence(signaled bool) (core1_0.Fence, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}
	fence, _, err := d.driver.CreateFence(nil, core1_0.FenceCreateInfo{Flags: flags})
	return fence, errors.Wrap(err, "create fence")
}

func (d *Device) DestroyFence(fence core1_0.Fence) {
	d.driver.DestroyFence(fence, nil)
}

// CreateSemaphore creates a binary semaphore.
func (d *Device) CreateSemaphore() (core1_0.Semaphore, error) {
	semaphore, _, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	return semaphore, errors.Wrap(err, "create semaphore")
}

func (d *Device) DestroySemaphore(semaphore core1_0.Semaphore) {
	d.driver.DestroySemaphore(semaphore, nil)
}

// WaitFences blocks until every fence is signalled. Each attempt waits at most the
// configured fence timeout; once all attempts time out ErrDeviceLost is returned.
// A zero timeout waits forever.
func (d *Device) WaitFences(fences ...core1_0.Fence) error {
	if len(fences) == 0 {
		return nil
	}

	timeout := d.fenceTimeout
	if timeout <= 0 {
		timeout = common.NoTimeout
	}

	return waitBounded(d.fenceAttempts, func() (common.VkResult, error) {
		return d.driver.WaitForFences(true, timeout, fences...)
	}, func(attempt int) {
		d.logger.Warn("fence wait timed out", slog.Int("Attempt", attempt), slog.Duration("Timeout", timeout))
	})
}

// ResetFences returns fences to the unsignalled state.
func (d *Device) ResetFences(fences ...core1_0.Fence) error {
	_, err := d.driver.ResetFences(fences...)
	return errors.Wrap(err, "reset fences")
}

// waitBounded calls wait until it reports something other than a timeout, at most
// attempts times.
func waitBounded(attempts int, wait func() (common.VkResult, error), onTimeout func(attempt int)) error {
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := wait()
		if res == core1_0.VKErrorDeviceLost {
			return errors.WithSecondaryError(errors.Wrap(ErrDeviceLost, "wait for fences"), err)
		}
		if err != nil {
			return errors.Wrap(err, "wait for fences")
		}
		if res != core1_0.VKTimeout {
			return nil
		}
		if onTimeout != nil {
			onTimeout(attempt)
		}
	}

	return errors.Wrapf(ErrDeviceLost, "fences unsignalled after %d waits", attempts)
}
