package renderer

import (
	"bytes"
	"encoding/binary"

	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/FilipHusnjak/Neon-sub000/pass"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// PipelineDesc describes a graphics pipeline. Viewport and scissor are dynamic so one
// pipeline serves framebuffers of any size.
type PipelineDesc struct {
	Stages []ShaderStage

	// VertexInput consumes Vertex buffers. Without it vertices come from the shader.
	VertexInput bool
	DepthTest   bool
	CullBack    bool
	// SampledImage adds the device's sampled-image set layout at set 0.
	SampledImage bool

	PushConstantSize   int
	PushConstantStages core1_0.ShaderStageFlags
}

// Pipeline is a graphics pipeline with its layout.
type Pipeline struct {
	device *gpu.Device
	desc   PipelineDesc
	layout core1_0.PipelineLayout
	handle core1_0.Pipeline
}

// NewPipeline builds a pipeline for subpass 0 of renderPass. cache may be nil.
func NewPipeline(device *gpu.Device, cache *PipelineCache, renderPass *pass.RenderPass, desc PipelineDesc) (*Pipeline, error) {
	if len(desc.Stages) == 0 {
		return nil, errors.New("pipeline has no shader stages")
	}
	driver := device.Driver()

	var stages []core1_0.PipelineShaderStageCreateInfo
	for _, stage := range desc.Stages {
		module, _, err := driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
			Code: stage.Code,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "create %s shader module", stage.Stage)
		}
		defer driver.DestroyShaderModule(module, nil)

		stages = append(stages, core1_0.PipelineShaderStageCreateInfo{
			Stage:  stage.Stage,
			Module: module,
			Name:   "main",
		})
	}

	layoutInfo := core1_0.PipelineLayoutCreateInfo{}
	if desc.SampledImage {
		layoutInfo.SetLayouts = []core1_0.DescriptorSetLayout{device.SampledImageSetLayout()}
	}
	if desc.PushConstantSize > 0 {
		layoutInfo.PushConstantRanges = []core1_0.PushConstantRange{
			{
				StageFlags: desc.PushConstantStages,
				Offset:     0,
				Size:       desc.PushConstantSize,
			},
		}
	}

	layout, _, err := driver.CreatePipelineLayout(nil, layoutInfo)
	if err != nil {
		return nil, errors.Wrap(err, "create pipeline layout")
	}

	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{}
	if desc.VertexInput {
		vertexInput.VertexBindingDescriptions = vertexBindings()
		vertexInput.VertexAttributeDescriptions = vertexAttributes()
	}

	cullMode := core1_0.CullModeNone
	if desc.CullBack {
		cullMode = core1_0.CullModeBack
	}

	var colorBlend *core1_0.PipelineColorBlendStateCreateInfo
	if renderPass.Desc().HasColor {
		colorBlend = &core1_0.PipelineColorBlendStateCreateInfo{
			LogicOpEnabled: false,
			LogicOp:        core1_0.LogicOpCopy,
			Attachments: []core1_0.PipelineColorBlendAttachmentState{
				{
					BlendEnabled:   false,
					ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
				},
			},
		}
	}

	var depthStencil *core1_0.PipelineDepthStencilStateCreateInfo
	if renderPass.Desc().HasDepth {
		depthStencil = &core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  desc.DepthTest,
			DepthWriteEnable: desc.DepthTest,
			DepthCompareOp:   core1_0.CompareOpLess,
		}
	}

	var pipelineCache *core1_0.PipelineCache
	if cache != nil {
		handle := cache.Handle()
		pipelineCache = &handle
	}

	pipelines, _, err := driver.CreateGraphicsPipelines(pipelineCache, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages:           stages,
			VertexInputState: vertexInput,
			InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
				Topology:               core1_0.PrimitiveTopologyTriangleList,
				PrimitiveRestartEnable: false,
			},
			// Replaced by dynamic state; the counts are what matter.
			ViewportState: &core1_0.PipelineViewportStateCreateInfo{
				Viewports: []core1_0.Viewport{{Width: 1, Height: 1, MaxDepth: 1}},
				Scissors:  []core1_0.Rect2D{{Extent: core1_0.Extent2D{Width: 1, Height: 1}}},
			},
			RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
				PolygonMode: core1_0.PolygonModeFill,
				CullMode:    cullMode,
				FrontFace:   core1_0.FrontFaceCounterClockwise,
				LineWidth:   1.0,
			},
			MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
				RasterizationSamples: core1_0.Samples1,
				MinSampleShading:     1.0,
			},
			DepthStencilState: depthStencil,
			ColorBlendState:   colorBlend,
			DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
				DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
			},
			Layout:            layout,
			RenderPass:        renderPass.Handle(),
			Subpass:           0,
			BasePipelineIndex: -1,
		},
	)
	if err != nil {
		driver.DestroyPipelineLayout(layout, nil)
		return nil, errors.Wrap(err, "create graphics pipeline")
	}

	return &Pipeline{
		device: device,
		desc:   desc,
		layout: layout,
		handle: pipelines[0],
	}, nil
}

func (p *Pipeline) Layout() core1_0.PipelineLayout {
	return p.layout
}

func (p *Pipeline) Handle() core1_0.Pipeline {
	return p.handle
}

// Destroy releases the pipeline. No recorded frame may still reference it.
func (p *Pipeline) Destroy() {
	driver := p.device.Driver()
	driver.DestroyPipeline(p.handle, nil)
	driver.DestroyPipelineLayout(p.layout, nil)
}

// bind binds the pipeline and pushes constants, which must match the declared size.
func (p *Pipeline) bind(cmd core1_0.CommandBuffer, constants any) error {
	driver := p.device.Driver()
	driver.CmdBindPipeline(cmd, core1_0.PipelineBindPointGraphics, p.handle)
	if constants == nil {
		return nil
	}

	data, err := encodePushConstants(constants, p.desc.PushConstantSize)
	if err != nil {
		return err
	}
	driver.CmdPushConstants(cmd, p.layout, p.desc.PushConstantStages, 0, data)
	return nil
}

func encodePushConstants(constants any, size int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if err := binary.Write(buf, common.ByteOrder, constants); err != nil {
		return nil, errors.Wrap(err, "encode push constants")
	}
	if buf.Len() != size {
		return nil, errors.Newf("push constants are %d bytes, pipeline declares %d", buf.Len(), size)
	}
	return buf.Bytes(), nil
}
