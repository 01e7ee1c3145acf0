package pass

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// RenderPassDesc declares the attachments of a single-subpass render pass. Color is
// attachment 0 and depth follows it when both are present.
type RenderPassDesc struct {
	HasColor    bool
	ColorFormat core1_0.Format
	// ColorFinalLayout defaults to shader-read-only so the next pass can sample the result.
	ColorFinalLayout core1_0.ImageLayout
	// Present makes the color attachment end in the presentation layout.
	Present bool

	HasDepth    bool
	DepthFormat core1_0.Format

	// KeepContents loads previous attachment contents instead of clearing them.
	KeepContents bool
}

func (d RenderPassDesc) colorFinalLayout() core1_0.ImageLayout {
	if d.Present {
		return khr_swapchain.ImageLayoutPresentSrc
	}
	if d.ColorFinalLayout != core1_0.ImageLayoutUndefined {
		return d.ColorFinalLayout
	}
	return core1_0.ImageLayoutShaderReadOnlyOptimal
}

// AttachmentCount is the number of framebuffer attachments the pass expects.
func (d RenderPassDesc) AttachmentCount() int {
	n := 0
	if d.HasColor {
		n++
	}
	if d.HasDepth {
		n++
	}
	return n
}

func (d RenderPassDesc) validate() error {
	if !d.HasColor && !d.HasDepth {
		return errors.New("render pass needs at least one attachment")
	}
	if d.HasColor && d.ColorFormat == core1_0.FormatUndefined {
		return errors.New("render pass color attachment has no format")
	}
	if d.HasDepth && d.DepthFormat == core1_0.FormatUndefined {
		return errors.New("render pass depth attachment has no format")
	}
	return nil
}

// CreateInfo builds the driver description of the pass.
//
// Every pass carries the same two external dependencies: color writes wait for earlier
// fragment shader reads of the attachment, and later fragment shader reads wait for this
// pass's color writes. Passes can therefore sample the output of the pass before them.
func (d RenderPassDesc) CreateInfo() core1_0.RenderPassCreateInfo {
	loadOp := core1_0.AttachmentLoadOpClear
	if d.KeepContents {
		loadOp = core1_0.AttachmentLoadOpLoad
	}

	var attachments []core1_0.AttachmentDescription
	subpass := core1_0.SubpassDescription{
		PipelineBindPoint: core1_0.PipelineBindPointGraphics,
	}

	dstStage := core1_0.PipelineStageFlags(0)
	dstAccess := core1_0.AccessFlags(0)

	if d.HasColor {
		finalLayout := d.colorFinalLayout()
		initialLayout := core1_0.ImageLayoutUndefined
		if d.KeepContents {
			initialLayout = finalLayout
		}
		subpass.ColorAttachments = []core1_0.AttachmentReference{
			{
				Attachment: len(attachments),
				Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
			},
		}
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         d.ColorFormat,
			Samples:        core1_0.Samples1,
			LoadOp:         loadOp,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout,
			FinalLayout:    finalLayout,
		})
		dstStage |= core1_0.PipelineStageColorAttachmentOutput
		dstAccess |= core1_0.AccessColorAttachmentWrite
	}

	if d.HasDepth {
		initialLayout := core1_0.ImageLayoutUndefined
		if d.KeepContents {
			initialLayout = core1_0.ImageLayoutDepthStencilAttachmentOptimal
		}
		subpass.DepthStencilAttachment = &core1_0.AttachmentReference{
			Attachment: len(attachments),
			Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		}
		attachments = append(attachments, core1_0.AttachmentDescription{
			Format:         d.DepthFormat,
			Samples:        core1_0.Samples1,
			LoadOp:         loadOp,
			StoreOp:        core1_0.AttachmentStoreOpStore,
			StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
			StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
			InitialLayout:  initialLayout,
			FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
		})
		dstStage |= core1_0.PipelineStageEarlyFragmentTests
		dstAccess |= core1_0.AccessDepthStencilAttachmentWrite
	}

	return core1_0.RenderPassCreateInfo{
		Attachments: attachments,
		Subpasses:   []core1_0.SubpassDescription{subpass},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageFragmentShader | core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: core1_0.AccessShaderRead,

				DstStageMask:  dstStage,
				DstAccessMask: dstAccess,
			},
			{
				SrcSubpass: 0,
				DstSubpass: core1_0.SubpassExternal,

				SrcStageMask:  dstStage,
				SrcAccessMask: dstAccess,

				DstStageMask:  core1_0.PipelineStageFragmentShader,
				DstAccessMask: core1_0.AccessShaderRead,
			},
		},
	}
}

// RenderPass is an immutable render pass. It does not own the framebuffers built for it.
type RenderPass struct {
	device Device
	desc   RenderPassDesc
	handle core1_0.RenderPass
}

// NewRenderPass creates the render pass described by desc.
func NewRenderPass(device Device, desc RenderPassDesc) (*RenderPass, error) {
	if err := desc.validate(); err != nil {
		return nil, err
	}

	handle, err := device.CreateRenderPass(desc.CreateInfo())
	if err != nil {
		return nil, err
	}
	return &RenderPass{device: device, desc: desc, handle: handle}, nil
}

func (rp *RenderPass) Handle() core1_0.RenderPass {
	return rp.handle
}

func (rp *RenderPass) Desc() RenderPassDesc {
	return rp.desc
}

// ClearValues returns the per-attachment clear values in attachment order.
func (rp *RenderPass) ClearValues() []core1_0.ClearValue {
	var values []core1_0.ClearValue
	if rp.desc.HasColor {
		values = append(values, core1_0.ClearValueFloat{0, 0, 0, 1})
	}
	if rp.desc.HasDepth {
		values = append(values, core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0})
	}
	return values
}

func (rp *RenderPass) Destroy() {
	rp.device.DestroyRenderPass(rp.handle)
}
