package renderer

import (
	"unsafe"

	"github.com/FilipHusnjak/Neon-sub000/gpu"
	"github.com/FilipHusnjak/Neon-sub000/internal/ref"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Vertex is the vertex layout consumed by mesh pipelines.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	TexCoord mgl32.Vec2
}

func vertexBindings() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func vertexAttributes() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Normal)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}

// Mesh is an indexed triangle list in device-local memory.
//
// Meshes are reference counted. Every draw that records a mesh holds a reference until
// the frame slot that recorded it is reused, so the owner may release its reference at
// any time.
type Mesh struct {
	ref.Count

	device     ref.Ptr[*gpu.Device]
	vertices   *gpu.Buffer
	indices    *gpu.Buffer
	indexCount int
}

// NewMesh uploads vertices and indices through staging buffers and waits for the copy.
func NewMesh(device *gpu.Device, vertices []Vertex, indices []uint32) (*Mesh, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return nil, errors.Newf("mesh needs vertices and indices, got %d and %d", len(vertices), len(indices))
	}

	m := &Mesh{indexCount: len(indices)}

	var err error
	m.vertices, err = device.CreateBuffer(len(vertices)*int(unsafe.Sizeof(Vertex{})),
		core1_0.BufferUsageTransferDst|core1_0.BufferUsageVertexBuffer,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, errors.Wrap(err, "mesh vertex buffer")
	}

	m.indices, err = device.CreateBuffer(len(indices)*4,
		core1_0.BufferUsageTransferDst|core1_0.BufferUsageIndexBuffer,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		device.DestroyBuffer(m.vertices)
		return nil, errors.Wrap(err, "mesh index buffer")
	}

	if err := device.UploadBuffer(m.vertices, vertices); err == nil {
		err = device.UploadBuffer(m.indices, indices)
	}
	if err != nil {
		device.DestroyBuffer(m.vertices)
		device.DestroyBuffer(m.indices)
		return nil, errors.Wrap(err, "upload mesh")
	}

	m.device.Assign(device)
	m.Init(m.destroy)
	return m, nil
}

func (m *Mesh) destroy() {
	device := m.device.Get()
	device.DestroyBuffer(m.vertices)
	device.DestroyBuffer(m.indices)
	m.device.Reset()
}

func (m *Mesh) IndexCount() int {
	return m.indexCount
}

// record binds the mesh buffers and draws it once.
func (m *Mesh) record(driver core1_0.CoreDeviceDriver, cmd core1_0.CommandBuffer) {
	driver.CmdBindVertexBuffers(cmd, 0, []core1_0.Buffer{m.vertices.Buffer}, []int{0})
	driver.CmdBindIndexBuffer(cmd, m.indices.Buffer, 0, core1_0.IndexTypeUInt32)
	driver.CmdDrawIndexed(cmd, m.indexCount, 1, 0, 0, 0)
}
