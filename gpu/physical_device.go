package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// QueueType identifies the kind of work a queue, command pool or command buffer serves.
type QueueType int

const (
	Graphics QueueType = iota
	Compute
	Transfer

	queueTypeCount
)

func (t QueueType) String() string {
	switch t {
	case Graphics:
		return "Graphics"
	case Compute:
		return "Compute"
	case Transfer:
		return "Transfer"
	}
	return "Unknown"
}

// QueueFamilyIndices holds the family chosen for each queue type, or -1.
type QueueFamilyIndices struct {
	Graphics int
	Compute  int
	Transfer int
}

// Family returns the family index serving t.
func (q QueueFamilyIndices) Family(t QueueType) int {
	switch t {
	case Compute:
		return q.Compute
	case Transfer:
		return q.Transfer
	}
	return q.Graphics
}

// Unique returns the distinct family indices in graphics, compute, transfer order.
func (q QueueFamilyIndices) Unique() []int {
	var out []int
	for _, idx := range []int{q.Graphics, q.Compute, q.Transfer} {
		if idx < 0 {
			continue
		}
		seen := false
		for _, o := range out {
			if o == idx {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, idx)
		}
	}
	return out
}

// SelectQueueFamilies picks a family for each requested capability. Compute prefers a
// family without graphics, transfer prefers a family with neither graphics nor compute,
// and either falls back to the first family offering the capability at all. Transfer
// finally falls back to the graphics or compute family, which carry transfer implicitly.
// Graphics is always the first graphics-capable family.
func SelectQueueFamilies(families []core1_0.QueueFlags, requested core1_0.QueueFlags) (QueueFamilyIndices, error) {
	indices := QueueFamilyIndices{Graphics: -1, Compute: -1, Transfer: -1}

	find := func(want, without core1_0.QueueFlags) int {
		for i, flags := range families {
			if flags&want != 0 && flags&without == 0 {
				return i
			}
		}
		return -1
	}

	if requested&core1_0.QueueGraphics != 0 {
		indices.Graphics = find(core1_0.QueueGraphics, 0)
		if indices.Graphics < 0 {
			return indices, errors.Wrap(ErrQueueFamilyNotFound, "graphics")
		}
	}

	if requested&core1_0.QueueCompute != 0 {
		indices.Compute = find(core1_0.QueueCompute, core1_0.QueueGraphics)
		if indices.Compute < 0 {
			indices.Compute = find(core1_0.QueueCompute, 0)
		}
		if indices.Compute < 0 {
			return indices, errors.Wrap(ErrQueueFamilyNotFound, "compute")
		}
	}

	if requested&core1_0.QueueTransfer != 0 {
		indices.Transfer = find(core1_0.QueueTransfer, core1_0.QueueGraphics|core1_0.QueueCompute)
		if indices.Transfer < 0 {
			indices.Transfer = find(core1_0.QueueTransfer, 0)
		}
		// Graphics and compute families accept transfer commands whether or not they
		// report the flag.
		switch {
		case indices.Transfer >= 0:
		case indices.Graphics >= 0:
			indices.Transfer = indices.Graphics
		case indices.Compute >= 0:
			indices.Transfer = indices.Compute
		default:
			indices.Transfer = find(core1_0.QueueGraphics|core1_0.QueueCompute, 0)
		}
		if indices.Transfer < 0 {
			return indices, errors.Wrap(ErrQueueFamilyNotFound, "transfer")
		}
	}

	return indices, nil
}

// depthFormatPriority runs from the most precise combined depth/stencil format down to
// plain 16-bit depth.
var depthFormatPriority = []core1_0.Format{
	core1_0.FormatD32SignedFloatS8UnsignedInt,
	core1_0.FormatD32SignedFloat,
	core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
	core1_0.FormatD16UnsignedNormalizedS8UnsignedInt,
	core1_0.FormatD16UnsignedNormalized,
}

// ChooseDepthFormat returns the first format of the priority list accepted by supported.
func ChooseDepthFormat(supported func(core1_0.Format) bool) (core1_0.Format, error) {
	for _, format := range depthFormatPriority {
		if supported(format) {
			return format, nil
		}
	}
	return 0, ErrNoDepthFormat
}

// HasStencil reports whether a depth format carries a stencil aspect.
func HasStencil(format core1_0.Format) bool {
	switch format {
	case core1_0.FormatD32SignedFloatS8UnsignedInt,
		core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
		core1_0.FormatD16UnsignedNormalizedS8UnsignedInt:
		return true
	}
	return false
}

// MemoryTypeIndex returns the first memory type allowed by typeBits whose property flags
// contain want.
func MemoryTypeIndex(types []core1_0.MemoryPropertyFlags, typeBits uint32, want core1_0.MemoryPropertyFlags) (int, error) {
	for i, flags := range types {
		if typeBits&(1<<uint(i)) != 0 && flags&want == want {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrNoMemoryType, "type bits %#x, flags %s", typeBits, want)
}

// choosePhysicalDevice prefers the first discrete GPU and otherwise takes the first
// enumerated adapter.
func choosePhysicalDevice(types []core1_0.PhysicalDeviceType) int {
	if len(types) == 0 {
		return -1
	}
	for i, t := range types {
		if t == core1_0.PhysicalDeviceTypeDiscreteGPU {
			return i
		}
	}
	return 0
}

// PhysicalDevice is the capability snapshot of the selected adapter. It is immutable after
// selection and owns no GPU objects.
type PhysicalDevice struct {
	instance core1_0.CoreInstanceDriver
	handle   core1_0.PhysicalDevice

	Name              string
	Type              core1_0.PhysicalDeviceType
	VendorID          uint32
	DeviceID          uint32
	PipelineCacheUUID uuid.UUID

	MemoryTypes   []core1_0.MemoryPropertyFlags
	QueueFamilies []core1_0.QueueFlags
	QueueIndices  QueueFamilyIndices
	Extensions    map[string]bool
}

// SelectPhysicalDevice enumerates the adapters of instance and snapshots the preferred one.
func SelectPhysicalDevice(instance core1_0.CoreInstanceDriver) (*PhysicalDevice, error) {
	devices, _, err := instance.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}

	var types []core1_0.PhysicalDeviceType
	for _, device := range devices {
		props, err := instance.GetPhysicalDeviceProperties(device)
		if err != nil {
			return nil, errors.Wrap(err, "physical device properties")
		}
		types = append(types, props.DeviceType)
	}

	chosen := choosePhysicalDevice(types)
	if chosen < 0 {
		return nil, ErrNoSuitableAdapter
	}

	return snapshotPhysicalDevice(instance, devices[chosen])
}

func snapshotPhysicalDevice(instance core1_0.CoreInstanceDriver, handle core1_0.PhysicalDevice) (*PhysicalDevice, error) {
	props, err := instance.GetPhysicalDeviceProperties(handle)
	if err != nil {
		return nil, errors.Wrap(err, "physical device properties")
	}

	pd := &PhysicalDevice{
		instance:          instance,
		handle:            handle,
		Name:              props.DeviceName,
		Type:              props.DeviceType,
		VendorID:          props.VendorID,
		DeviceID:          props.DeviceID,
		PipelineCacheUUID: props.PipelineCacheUUID,
		Extensions:        map[string]bool{},
	}

	memProps := instance.GetPhysicalDeviceMemoryProperties(handle)
	for _, memoryType := range memProps.MemoryTypes {
		pd.MemoryTypes = append(pd.MemoryTypes, memoryType.PropertyFlags)
	}

	for _, family := range instance.GetPhysicalDeviceQueueFamilyProperties(handle) {
		pd.QueueFamilies = append(pd.QueueFamilies, family.QueueFlags)
	}

	pd.QueueIndices, err = SelectQueueFamilies(pd.QueueFamilies, core1_0.QueueGraphics|core1_0.QueueCompute|core1_0.QueueTransfer)
	if err != nil {
		return nil, err
	}

	extensions, _, err := instance.EnumerateDeviceExtensionProperties(handle)
	if err != nil {
		return nil, errors.Wrap(err, "device extension properties")
	}
	for name := range extensions {
		pd.Extensions[name] = true
	}

	return pd, nil
}

// Handle returns the driver handle of the adapter.
func (pd *PhysicalDevice) Handle() core1_0.PhysicalDevice {
	return pd.handle
}

// Instance returns the instance driver the adapter was enumerated from.
func (pd *PhysicalDevice) Instance() core1_0.CoreInstanceDriver {
	return pd.instance
}

// SupportsFormat reports whether format offers features under optimal tiling.
func (pd *PhysicalDevice) SupportsFormat(format core1_0.Format, features core1_0.FormatFeatureFlags) bool {
	props := pd.instance.GetPhysicalDeviceFormatProperties(pd.handle, format)
	return props.OptimalTilingFeatures&features == features
}

// FindDepthFormat picks the most precise depth format usable as a depth/stencil attachment.
func (pd *PhysicalDevice) FindDepthFormat() (core1_0.Format, error) {
	return ChooseDepthFormat(func(format core1_0.Format) bool {
		return pd.SupportsFormat(format, core1_0.FormatFeatureDepthStencilAttachment)
	})
}
