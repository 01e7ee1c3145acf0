package pass

import (
	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// fakeDevice counts every object it hands out so tests can check for leaks.
type fakeDevice struct {
	renderPasses int
	images       int
	samplers     int
	framebuffers int
	sets         int

	imagesCreated int
	setWrites     int
	failImages    bool
}

func (d *fakeDevice) CreateRenderPass(core1_0.RenderPassCreateInfo) (core1_0.RenderPass, error) {
	d.renderPasses++
	return core1_0.RenderPass{}, nil
}

func (d *fakeDevice) DestroyRenderPass(core1_0.RenderPass) {
	d.renderPasses--
}

func (d *fakeDevice) CreateImage(info gpu.ImageInfo) (*gpu.Image, error) {
	if d.failImages {
		return nil, errors.New("out of device memory")
	}
	d.images++
	d.imagesCreated++
	return &gpu.Image{Info: info}, nil
}

func (d *fakeDevice) DestroyImage(*gpu.Image) {
	d.images--
}

func (d *fakeDevice) CreateSampler() (core1_0.Sampler, error) {
	d.samplers++
	return core1_0.Sampler{}, nil
}

func (d *fakeDevice) DestroySampler(core1_0.Sampler) {
	d.samplers--
}

func (d *fakeDevice) CreateFramebuffer(_ core1_0.RenderPass, _ []core1_0.ImageView, _, _ int) (core1_0.Framebuffer, error) {
	d.framebuffers++
	return core1_0.Framebuffer{}, nil
}

func (d *fakeDevice) DestroyFramebuffer(core1_0.Framebuffer) {
	d.framebuffers--
}

func (d *fakeDevice) AllocateSampledImageSet() (core1_0.DescriptorSet, error) {
	d.sets++
	return core1_0.DescriptorSet{}, nil
}

func (d *fakeDevice) WriteSampledImageSet(core1_0.DescriptorSet, core1_0.ImageView, core1_0.Sampler) error {
	d.setWrites++
	return nil
}

func (d *fakeDevice) FreeDescriptorSet(core1_0.DescriptorSet) {
	d.sets--
}
