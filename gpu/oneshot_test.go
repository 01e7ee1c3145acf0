package gpu

import (
	"testing"

	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestTransitionFor(t *testing.T) {
	tests := []struct {
		old, new core1_0.ImageLayout
		dstStage core1_0.PipelineStageFlags
	}{
		{core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal, core1_0.PipelineStageTransfer},
		{core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal, core1_0.PipelineStageFragmentShader},
		{core1_0.ImageLayoutUndefined, core1_0.ImageLayoutShaderReadOnlyOptimal, core1_0.PipelineStageFragmentShader},
		{core1_0.ImageLayoutUndefined, core1_0.ImageLayoutDepthStencilAttachmentOptimal, core1_0.PipelineStageEarlyFragmentTests},
	}
	for _, tt := range tests {
		got, err := transitionFor(tt.old, tt.new)
		if err != nil {
			t.Fatalf("transitionFor(%s, %s) error = %v", tt.old, tt.new, err)
		}
		if got.dstStage != tt.dstStage {
			t.Errorf("transitionFor(%s, %s) dst stage = %s, want %s", tt.old, tt.new, got.dstStage, tt.dstStage)
		}
	}

	if _, err := transitionFor(core1_0.ImageLayoutShaderReadOnlyOptimal, core1_0.ImageLayoutUndefined); err == nil {
		t.Error("expected an error for an unsupported transition")
	}
}

func TestEncodedSize(t *testing.T) {
	if n, err := encodedSize([]float32{1, 2, 3}); err != nil || n != 12 {
		t.Errorf("encodedSize([]float32 x3) = %d, %v", n, err)
	}
	if _, err := encodedSize([]byte{}); err == nil {
		t.Error("empty data accepted")
	}
	if _, err := encodedSize("text"); err == nil {
		t.Error("string accepted")
	}
}
