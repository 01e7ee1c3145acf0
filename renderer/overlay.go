package renderer

import (
	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Overlay draws on top of the final image inside the swapchain render pass.
type Overlay interface {
	Render(target OverlayTarget) error
}

// OverlayTarget is the recording surface handed to an Overlay.
type OverlayTarget interface {
	Driver() core1_0.CoreDeviceDriver
	CommandBuffer() *gpu.CommandBuffer
	// Extent is the size of the swapchain images in pixels.
	Extent() (width, height int)
	// DrawImage draws the sampled image in set into the pixel rectangle.
	DrawImage(set core1_0.DescriptorSet, x, y, width, height float32) error
}

// Quad push constants: the target rectangle in normalised device coordinates.
type quadConstants struct {
	Rect [4]float32
}

// QuadPushConstantSize is the push constant size quad pipelines must declare.
const QuadPushConstantSize = 16

// MeshPushConstantSize is the push constant size mesh pipelines must declare: one
// column-major 4x4 float matrix.
const MeshPushConstantSize = 64

var fullscreenQuad = quadConstants{Rect: [4]float32{-1, -1, 2, 2}}

// pixelQuad converts a pixel rectangle on a width x height target into quad constants.
func pixelQuad(x, y, w, h float32, width, height int) quadConstants {
	sx, sy := 2/float32(width), 2/float32(height)
	return quadConstants{Rect: [4]float32{x*sx - 1, y*sy - 1, w * sx, h * sy}}
}

type overlayTarget struct {
	ctx *Context
}

func (t overlayTarget) Driver() core1_0.CoreDeviceDriver {
	return t.ctx.device.Driver()
}

func (t overlayTarget) CommandBuffer() *gpu.CommandBuffer {
	return t.ctx.swapchain.CommandBuffer()
}

func (t overlayTarget) Extent() (int, int) {
	return t.ctx.swapchain.Width(), t.ctx.swapchain.Height()
}

func (t overlayTarget) DrawImage(set core1_0.DescriptorSet, x, y, width, height float32) error {
	if t.ctx.overlayPipeline == nil {
		return errors.New("overlay images need a quad pipeline, see SetOverlay")
	}
	w, h := t.Extent()
	return t.ctx.drawQuad(t.ctx.overlayPipeline, set, pixelQuad(x, y, width, height, w, h))
}
