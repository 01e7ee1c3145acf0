package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// ExecuteOneShot allocates a command buffer from the pool serving t, records it with
// record, submits it with a private fence and blocks until the fence signals. Stale
// resources queued on the buffer are released before it is freed.
//
// This is the upload path; it is not meant for per-frame work.
func (d *Device) ExecuteOneShot(t QueueType, record func(cmd *CommandBuffer) error) error {
	pool := d.CommandPool(t)
	buffers, err := pool.Allocate(1)
	if err != nil {
		return err
	}
	cmd := buffers[0]
	defer pool.Free(cmd)

	if err := cmd.Begin(); err != nil {
		return err
	}
	if err := record(cmd); err != nil {
		_ = cmd.End()
		return errors.Wrap(err, "record one-shot commands")
	}
	if err := cmd.End(); err != nil {
		return err
	}

	fence, err := d.CreateFence(false)
	if err != nil {
		return err
	}
	defer d.DestroyFence(fence)

	cmd.SetFence(fence)
	if err := cmd.Submit(); err != nil {
		return err
	}
	return d.WaitFences(fence)
}

// UploadBuffer copies data into the device-local dst through a host-visible staging buffer.
func (d *Device) UploadBuffer(dst *Buffer, data any) error {
	staging, err := d.stage(data)
	if err != nil {
		return err
	}
	defer d.allocator.DestroyBuffer(staging)

	return d.ExecuteOneShot(Transfer, func(cmd *CommandBuffer) error {
		return d.driver.CmdCopyBuffer(cmd.Handle(), staging.Buffer, dst.Buffer,
			core1_0.BufferCopy{
				SrcOffset: 0,
				DstOffset: 0,
				Size:      staging.Size,
			},
		)
	})
}

// UploadImage copies tightly packed pixels into dst and leaves it ready for sampling.
func (d *Device) UploadImage(dst *Image, pixels []byte) error {
	staging, err := d.stage(pixels)
	if err != nil {
		return err
	}
	defer d.allocator.DestroyBuffer(staging)

	return d.ExecuteOneShot(Transfer, func(cmd *CommandBuffer) error {
		err := d.recordTransition(cmd, dst, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
		if err != nil {
			return err
		}

		err = d.driver.CmdCopyBufferToImage(cmd.Handle(), staging.Buffer, dst.Image, core1_0.ImageLayoutTransferDstOptimal,
			core1_0.BufferImageCopy{
				ImageSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     dst.Info.Aspect,
					MipLevel:       0,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
				ImageExtent: core1_0.Extent3D{Width: dst.Info.Width, Height: dst.Info.Height, Depth: 1},
			},
		)
		if err != nil {
			return err
		}

		return d.recordTransition(cmd, dst, core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	})
}

// TransitionImageLayout moves image between layouts with a blocking one-shot submission.
func (d *Device) TransitionImageLayout(image *Image, oldLayout, newLayout core1_0.ImageLayout) error {
	return d.ExecuteOneShot(Graphics, func(cmd *CommandBuffer) error {
		return d.recordTransition(cmd, image, oldLayout, newLayout)
	})
}

func (d *Device) stage(data any) (*Buffer, error) {
	size, err := encodedSize(data)
	if err != nil {
		return nil, err
	}

	staging, err := d.allocator.CreateBuffer(size, core1_0.BufferUsageTransferSrc,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, errors.Wrap(err, "create staging buffer")
	}

	if err := staging.Write(0, data); err != nil {
		d.allocator.DestroyBuffer(staging)
		return nil, err
	}
	return staging, nil
}

type layoutTransition struct {
	srcAccess, dstAccess core1_0.AccessFlags
	srcStage, dstStage   core1_0.PipelineStageFlags
}

// transitionFor returns the barrier masks for a supported layout change.
func transitionFor(oldLayout, newLayout core1_0.ImageLayout) (layoutTransition, error) {
	switch {
	case oldLayout == core1_0.ImageLayoutUndefined && newLayout == core1_0.ImageLayoutTransferDstOptimal:
		return layoutTransition{
			dstAccess: core1_0.AccessTransferWrite,
			srcStage:  core1_0.PipelineStageTopOfPipe,
			dstStage:  core1_0.PipelineStageTransfer,
		}, nil
	case oldLayout == core1_0.ImageLayoutTransferDstOptimal && newLayout == core1_0.ImageLayoutShaderReadOnlyOptimal:
		return layoutTransition{
			srcAccess: core1_0.AccessTransferWrite,
			dstAccess: core1_0.AccessShaderRead,
			srcStage:  core1_0.PipelineStageTransfer,
			dstStage:  core1_0.PipelineStageFragmentShader,
		}, nil
	case oldLayout == core1_0.ImageLayoutUndefined && newLayout == core1_0.ImageLayoutShaderReadOnlyOptimal:
		return layoutTransition{
			dstAccess: core1_0.AccessShaderRead,
			srcStage:  core1_0.PipelineStageTopOfPipe,
			dstStage:  core1_0.PipelineStageFragmentShader,
		}, nil
	case oldLayout == core1_0.ImageLayoutUndefined && newLayout == core1_0.ImageLayoutDepthStencilAttachmentOptimal:
		return layoutTransition{
			dstAccess: core1_0.AccessDepthStencilAttachmentRead | core1_0.AccessDepthStencilAttachmentWrite,
			srcStage:  core1_0.PipelineStageTopOfPipe,
			dstStage:  core1_0.PipelineStageEarlyFragmentTests,
		}, nil
	}
	return layoutTransition{}, errors.Newf("unexpected layout transition: %s -> %s", oldLayout, newLayout)
}

func (d *Device) recordTransition(cmd *CommandBuffer, image *Image, oldLayout, newLayout core1_0.ImageLayout) error {
	transition, err := transitionFor(oldLayout, newLayout)
	if err != nil {
		return err
	}

	return d.driver.CmdPipelineBarrier(cmd.Handle(), transition.srcStage, transition.dstStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image.Image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     image.Info.Aspect,
				BaseMipLevel:   0,
				LevelCount:     1,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: transition.srcAccess,
			DstAccessMask: transition.dstAccess,
		},
	})
}
