// Package pass holds render passes and the framebuffers rendered into them.
package pass

import (
	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Device is the subset of *gpu.Device that render passes and framebuffers use.
type Device interface {
	CreateRenderPass(info core1_0.RenderPassCreateInfo) (core1_0.RenderPass, error)
	DestroyRenderPass(renderPass core1_0.RenderPass)

	CreateImage(info gpu.ImageInfo) (*gpu.Image, error)
	DestroyImage(image *gpu.Image)

	CreateSampler() (core1_0.Sampler, error)
	DestroySampler(sampler core1_0.Sampler)

	CreateFramebuffer(renderPass core1_0.RenderPass, views []core1_0.ImageView, width, height int) (core1_0.Framebuffer, error)
	DestroyFramebuffer(framebuffer core1_0.Framebuffer)

	AllocateSampledImageSet() (core1_0.DescriptorSet, error)
	WriteSampledImageSet(set core1_0.DescriptorSet, view core1_0.ImageView, sampler core1_0.Sampler) error
	FreeDescriptorSet(set core1_0.DescriptorSet)
}

var _ Device = (*gpu.Device)(nil)
