package pass

import (
	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// FramebufferConfig is the observable shape of a framebuffer.
type FramebufferConfig struct {
	Width       int
	Height      int
	ColorFormat core1_0.Format
	DepthFormat core1_0.Format
	Attachments int
}

// Framebuffer owns the images it renders into, a sampler and a descriptor set that
// exposes the color attachment to shaders. Resizing recreates the attachments and
// rewrites the same descriptor set, so holders of the set see the new image.
type Framebuffer struct {
	id         uuid.UUID
	device     Device
	renderPass *RenderPass

	width  int
	height int

	color   *gpu.Image
	depth   *gpu.Image
	sampler core1_0.Sampler
	handle  core1_0.Framebuffer
	set     core1_0.DescriptorSet

	hasSampler bool
	hasHandle  bool
	hasSet     bool
}

// NewFramebuffer creates a framebuffer for renderPass at width x height.
func NewFramebuffer(device Device, renderPass *RenderPass, width, height int) (*Framebuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("framebuffer extent must be positive, got %dx%d", width, height)
	}

	fb := &Framebuffer{
		id:         uuid.New(),
		device:     device,
		renderPass: renderPass,
	}

	if renderPass.desc.HasColor {
		set, err := device.AllocateSampledImageSet()
		if err != nil {
			return nil, err
		}
		fb.set = set
		fb.hasSet = true
	}

	if err := fb.create(width, height); err != nil {
		fb.Destroy()
		return nil, err
	}
	return fb, nil
}

func (f *Framebuffer) create(width, height int) error {
	desc := f.renderPass.desc
	f.width, f.height = width, height

	var views []core1_0.ImageView
	var err error

	if desc.HasColor {
		f.color, err = f.device.CreateImage(gpu.ImageInfo{
			Width:  width,
			Height: height,
			Format: desc.ColorFormat,
			Usage:  core1_0.ImageUsageColorAttachment | core1_0.ImageUsageSampled,
			Aspect: core1_0.ImageAspectColor,
		})
		if err != nil {
			return errors.Wrap(err, "framebuffer color attachment")
		}
		views = append(views, f.color.View)
	}

	if desc.HasDepth {
		aspect := core1_0.ImageAspectDepth
		if gpu.HasStencil(desc.DepthFormat) {
			aspect |= core1_0.ImageAspectStencil
		}
		f.depth, err = f.device.CreateImage(gpu.ImageInfo{
			Width:  width,
			Height: height,
			Format: desc.DepthFormat,
			Usage:  core1_0.ImageUsageDepthStencilAttachment,
			Aspect: aspect,
		})
		if err != nil {
			return errors.Wrap(err, "framebuffer depth attachment")
		}
		views = append(views, f.depth.View)
	}

	f.sampler, err = f.device.CreateSampler()
	if err != nil {
		return err
	}
	f.hasSampler = true

	f.handle, err = f.device.CreateFramebuffer(f.renderPass.handle, views, width, height)
	if err != nil {
		return err
	}
	f.hasHandle = true

	if f.hasSet {
		return f.device.WriteSampledImageSet(f.set, f.color.View, f.sampler)
	}
	return nil
}

func (f *Framebuffer) destroyAttachments() {
	if f.hasHandle {
		f.device.DestroyFramebuffer(f.handle)
		f.hasHandle = false
	}
	if f.hasSampler {
		f.device.DestroySampler(f.sampler)
		f.hasSampler = false
	}
	if f.depth != nil {
		f.device.DestroyImage(f.depth)
		f.depth = nil
	}
	if f.color != nil {
		f.device.DestroyImage(f.color)
		f.color = nil
	}
	f.handle = core1_0.Framebuffer{}
	f.sampler = core1_0.Sampler{}
}

// Resize recreates the attachments at width x height. It does nothing when the size is
// unchanged unless force is set, and ignores empty extents.
func (f *Framebuffer) Resize(width, height int, force bool) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	if !force && f.hasHandle && width == f.width && height == f.height {
		return nil
	}

	f.destroyAttachments()
	return f.create(width, height)
}

// Destroy releases everything the framebuffer owns. It is safe to call more than once.
func (f *Framebuffer) Destroy() {
	f.destroyAttachments()
	if f.hasSet {
		f.device.FreeDescriptorSet(f.set)
		f.hasSet = false
	}
}

// ID identifies the framebuffer in a FramebufferPool.
func (f *Framebuffer) ID() uuid.UUID {
	return f.id
}

func (f *Framebuffer) Handle() core1_0.Framebuffer {
	return f.handle
}

func (f *Framebuffer) RenderPass() *RenderPass {
	return f.renderPass
}

func (f *Framebuffer) Width() int {
	return f.width
}

func (f *Framebuffer) Height() int {
	return f.height
}

// ColorImage returns the color attachment, or nil for depth-only passes.
func (f *Framebuffer) ColorImage() *gpu.Image {
	return f.color
}

func (f *Framebuffer) DepthImage() *gpu.Image {
	return f.depth
}

// DescriptorSet returns the set sampling the color attachment. The set stays valid
// across resizes.
func (f *Framebuffer) DescriptorSet() (core1_0.DescriptorSet, bool) {
	return f.set, f.hasSet
}

func (f *Framebuffer) Config() FramebufferConfig {
	desc := f.renderPass.desc
	cfg := FramebufferConfig{
		Width:       f.width,
		Height:      f.height,
		Attachments: desc.AttachmentCount(),
	}
	if desc.HasColor {
		cfg.ColorFormat = desc.ColorFormat
	}
	if desc.HasDepth {
		cfg.DepthFormat = desc.DepthFormat
	}
	return cfg
}
