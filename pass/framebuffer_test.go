package pass

import (
	"testing"

	"github.com/kr/pretty"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

var colorOnly = RenderPassDesc{
	HasColor:    true,
	ColorFormat: core1_0.FormatB8G8R8A8UnsignedNormalized,
}

var colorDepth = RenderPassDesc{
	HasColor:    true,
	ColorFormat: core1_0.FormatB8G8R8A8UnsignedNormalized,
	HasDepth:    true,
	DepthFormat: core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
}

func newPass(t *testing.T, dev *fakeDevice, desc RenderPassDesc) *RenderPass {
	t.Helper()
	rp, err := NewRenderPass(dev, desc)
	if err != nil {
		t.Fatalf("NewRenderPass() error = %v", err)
	}
	return rp
}

func TestRenderPassCreateInfo(t *testing.T) {
	tests := []struct {
		name        string
		desc        RenderPassDesc
		attachments int
		colorFinal  core1_0.ImageLayout
		hasDepthRef bool
	}{
		{"color only", colorOnly, 1, core1_0.ImageLayoutShaderReadOnlyOptimal, false},
		{"color and depth", colorDepth, 2, core1_0.ImageLayoutShaderReadOnlyOptimal, true},
		{"presentable", RenderPassDesc{HasColor: true, ColorFormat: core1_0.FormatB8G8R8A8UnsignedNormalized, Present: true}, 1, khr_swapchain.ImageLayoutPresentSrc, false},
		{"explicit layout", RenderPassDesc{HasColor: true, ColorFormat: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorFinalLayout: core1_0.ImageLayoutTransferSrcOptimal}, 1, core1_0.ImageLayoutTransferSrcOptimal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.desc.CreateInfo()
			if len(info.Attachments) != tt.attachments {
				t.Fatalf("attachments = %d, want %d", len(info.Attachments), tt.attachments)
			}
			if info.Attachments[0].FinalLayout != tt.colorFinal {
				t.Errorf("color final layout = %s, want %s", info.Attachments[0].FinalLayout, tt.colorFinal)
			}
			if info.Attachments[0].LoadOp != core1_0.AttachmentLoadOpClear {
				t.Errorf("color load op = %s, want clear", info.Attachments[0].LoadOp)
			}
			if len(info.SubpassDependencies) != 2 {
				t.Fatalf("dependencies = %d, want 2", len(info.SubpassDependencies))
			}
			in, out := info.SubpassDependencies[0], info.SubpassDependencies[1]
			if in.SrcSubpass != core1_0.SubpassExternal || in.SrcAccessMask != core1_0.AccessShaderRead {
				t.Errorf("incoming dependency = %+v", in)
			}
			if out.DstSubpass != core1_0.SubpassExternal || out.DstStageMask != core1_0.PipelineStageFragmentShader {
				t.Errorf("outgoing dependency = %+v", out)
			}
			if got := info.Subpasses[0].DepthStencilAttachment != nil; got != tt.hasDepthRef {
				t.Errorf("depth reference present = %v, want %v", got, tt.hasDepthRef)
			}
		})
	}
}

func TestRenderPassKeepContents(t *testing.T) {
	desc := colorDepth
	desc.KeepContents = true
	info := desc.CreateInfo()
	for i, attachment := range info.Attachments {
		if attachment.LoadOp != core1_0.AttachmentLoadOpLoad {
			t.Errorf("attachment %d load op = %s, want load", i, attachment.LoadOp)
		}
		if attachment.InitialLayout == core1_0.ImageLayoutUndefined {
			t.Errorf("attachment %d loads from an undefined layout", i)
		}
	}
}

func TestRenderPassRejectsEmpty(t *testing.T) {
	dev := &fakeDevice{}
	if _, err := NewRenderPass(dev, RenderPassDesc{}); err == nil {
		t.Fatal("empty render pass accepted")
	}
	if _, err := NewRenderPass(dev, RenderPassDesc{HasDepth: true}); err == nil {
		t.Fatal("depth attachment without a format accepted")
	}
	if dev.renderPasses != 0 {
		t.Errorf("render passes created for invalid descriptions: %d", dev.renderPasses)
	}
}

func TestResizeIsIdempotent(t *testing.T) {
	dev := &fakeDevice{}
	fb, err := NewFramebuffer(dev, newPass(t, dev, colorDepth), 640, 480)
	if err != nil {
		t.Fatal(err)
	}

	if err := fb.Resize(800, 600, false); err != nil {
		t.Fatal(err)
	}
	color, depth, created := fb.ColorImage(), fb.DepthImage(), dev.imagesCreated

	if err := fb.Resize(800, 600, false); err != nil {
		t.Fatal(err)
	}
	if fb.ColorImage() != color || fb.DepthImage() != depth {
		t.Error("attachments replaced by a same-size resize")
	}
	if dev.imagesCreated != created {
		t.Errorf("images created by a same-size resize: %d", dev.imagesCreated-created)
	}

	if err := fb.Resize(800, 600, true); err != nil {
		t.Fatal(err)
	}
	if fb.ColorImage() == color {
		t.Error("forced resize kept the old color attachment")
	}
}

func TestResizeRewritesDescriptorSet(t *testing.T) {
	dev := &fakeDevice{}
	fb, err := NewFramebuffer(dev, newPass(t, dev, colorOnly), 64, 64)
	if err != nil {
		t.Fatal(err)
	}
	if dev.setWrites != 1 {
		t.Fatalf("set writes after creation = %d, want 1", dev.setWrites)
	}

	if err := fb.Resize(128, 32, false); err != nil {
		t.Fatal(err)
	}
	if dev.setWrites != 2 {
		t.Errorf("set writes after resize = %d, want 2", dev.setWrites)
	}
	if dev.sets != 1 {
		t.Errorf("live descriptor sets = %d, want 1", dev.sets)
	}
	if _, ok := fb.DescriptorSet(); !ok {
		t.Error("color framebuffer has no descriptor set")
	}
}

func TestResizeIgnoresEmptyExtent(t *testing.T) {
	dev := &fakeDevice{}
	fb, err := NewFramebuffer(dev, newPass(t, dev, colorOnly), 64, 64)
	if err != nil {
		t.Fatal(err)
	}
	if err := fb.Resize(0, 0, true); err != nil {
		t.Fatal(err)
	}
	if fb.Width() != 64 || fb.Height() != 64 || dev.images != 1 {
		t.Errorf("minimised resize changed the framebuffer: %dx%d, %d images", fb.Width(), fb.Height(), dev.images)
	}
}

func TestResizeRoundTrip(t *testing.T) {
	dev := &fakeDevice{}
	fb, err := NewFramebuffer(dev, newPass(t, dev, colorDepth), 1280, 720)
	if err != nil {
		t.Fatal(err)
	}
	original := fb.Config()

	if err := fb.Resize(300, 200, false); err != nil {
		t.Fatal(err)
	}
	if cfg := fb.Config(); cfg.Width != 300 || cfg.Height != 200 {
		t.Fatalf("resized config = %+v", cfg)
	}
	if err := fb.Resize(1280, 720, false); err != nil {
		t.Fatal(err)
	}

	if diff := pretty.Diff(original, fb.Config()); len(diff) > 0 {
		t.Errorf("config after round trip differs: %v", diff)
	}
}

func TestDestroyReleasesEverything(t *testing.T) {
	dev := &fakeDevice{}
	rp := newPass(t, dev, colorDepth)
	fb, err := NewFramebuffer(dev, rp, 32, 32)
	if err != nil {
		t.Fatal(err)
	}
	fb.Destroy()
	fb.Destroy()
	rp.Destroy()

	if *dev != (fakeDevice{imagesCreated: 2, setWrites: 1}) {
		t.Errorf("objects left after destroy: %# v", pretty.Formatter(*dev))
	}
}

func TestNewFramebufferCleansUpOnFailure(t *testing.T) {
	dev := &fakeDevice{failImages: true}
	if _, err := NewFramebuffer(dev, newPass(t, dev, colorOnly), 32, 32); err == nil {
		t.Fatal("expected attachment failure")
	}
	if dev.images != 0 || dev.sets != 0 || dev.samplers != 0 || dev.framebuffers != 0 {
		t.Errorf("leaked objects: %+v", *dev)
	}
}
