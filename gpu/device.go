package gpu

import (
	"time"

	"github.com/FilipHusnjak/Neon-sub000/internal/logging"
	"github.com/FilipHusnjak/Neon-sub000/internal/ref"
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/exp/slog"
)

// maxSampledImageSets bounds the descriptor pool used for sampled attachment views.
const maxSampledImageSets = 256

// DeviceOptions configures logical device creation.
type DeviceOptions struct {
	// Presentation enables the swapchain extension.
	Presentation bool
	// FenceTimeout bounds a single fence wait. Zero waits forever.
	FenceTimeout time.Duration
	// FenceAttempts is the number of timed waits before ErrDeviceLost. Defaults to
	// DefaultFenceAttempts.
	FenceAttempts int
	Logger        *slog.Logger
}

// Device is the logical device with its queues, long-lived command pools and the
// descriptor pool backing sampled attachment views.
//
// Device is reference counted. NewDevice returns it with one reference held by the
// caller; the device is destroyed when the last reference is released.
type Device struct {
	ref.Count

	driver   core1_0.CoreDeviceDriver
	physical *PhysicalDevice
	logger   *slog.Logger

	queues    [queueTypeCount]core1_0.Queue
	allocator *Allocator

	graphicsPool *CommandPool
	computePool  *CommandPool

	descriptorPool   core1_0.DescriptorPool
	sampledSetLayout core1_0.DescriptorSetLayout

	fenceTimeout  time.Duration
	fenceAttempts int
}

// NewDevice creates the logical device on pd with one queue per distinct family.
func NewDevice(pd *PhysicalDevice, opts DeviceOptions) (*Device, error) {
	logger := logging.OrDiscard(opts.Logger)

	var queueInfos []core1_0.DeviceQueueCreateInfo
	for _, family := range pd.QueueIndices.Unique() {
		queueInfos = append(queueInfos, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1.0},
		})
	}

	var extensionNames []string
	if opts.Presentation {
		if !pd.Extensions[khr_swapchain.ExtensionName] {
			return nil, errors.Newf("device %q does not support %s", pd.Name, khr_swapchain.ExtensionName)
		}
		extensionNames = append(extensionNames, khr_swapchain.ExtensionName)
	}
	if pd.Extensions[khr_portability_subset.ExtensionName] {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	driver, _, err := pd.instance.CreateDevice(pd.handle, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueInfos,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create logical device on %q", pd.Name)
	}

	attempts := opts.FenceAttempts
	if attempts <= 0 {
		attempts = DefaultFenceAttempts
	}

	d := &Device{
		driver:        driver,
		physical:      pd,
		logger:        logger,
		allocator:     newAllocator(driver, pd.MemoryTypes, logger),
		fenceTimeout:  opts.FenceTimeout,
		fenceAttempts: attempts,
	}
	d.Init(d.destroy)

	for t := QueueType(0); t < queueTypeCount; t++ {
		d.queues[t] = driver.GetQueue(pd.QueueIndices.Family(t), 0)
	}

	if err := d.createLongLived(); err != nil {
		d.Release()
		return nil, err
	}

	logger.Debug("created logical device",
		slog.String("Adapter", pd.Name),
		slog.Int("GraphicsFamily", pd.QueueIndices.Graphics),
		slog.Int("ComputeFamily", pd.QueueIndices.Compute),
		slog.Int("TransferFamily", pd.QueueIndices.Transfer))
	return d, nil
}

func (d *Device) createLongLived() error {
	var err error
	d.graphicsPool, err = NewCommandPool(d, Graphics)
	if err != nil {
		return err
	}
	d.computePool, err = NewCommandPool(d, Compute)
	if err != nil {
		return err
	}

	d.descriptorPool, _, err = d.driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		Flags:   core1_0.DescriptorPoolCreateFreeDescriptorSet,
		MaxSets: maxSampledImageSets,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: maxSampledImageSets,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}

	d.sampledSetLayout, _, err = d.driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: []core1_0.DescriptorSetLayoutBinding{
			{
				Binding:         0,
				DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
				DescriptorCount: 1,

				StageFlags: core1_0.StageFragment,
			},
		},
	})
	return errors.Wrap(err, "create sampled image set layout")
}

func (d *Device) destroy() {
	if _, err := d.driver.DeviceWaitIdle(); err != nil {
		d.logger.Error("wait idle before device destruction", slog.Any("error", err))
	}

	if d.sampledSetLayout.Initialized() {
		d.driver.DestroyDescriptorSetLayout(d.sampledSetLayout, nil)
	}
	if d.descriptorPool.Initialized() {
		d.driver.DestroyDescriptorPool(d.descriptorPool, nil)
	}
	if d.computePool != nil {
		d.computePool.Destroy()
	}
	if d.graphicsPool != nil {
		d.graphicsPool.Destroy()
	}

	d.driver.DestroyDevice(nil)
	d.logger.Debug("destroyed logical device", slog.String("Adapter", d.physical.Name))
}

// Driver exposes the device driver for recording commands.
func (d *Device) Driver() core1_0.CoreDeviceDriver {
	return d.driver
}

func (d *Device) Physical() *PhysicalDevice {
	return d.physical
}

func (d *Device) Logger() *slog.Logger {
	return d.logger
}

func (d *Device) Allocator() *Allocator {
	return d.allocator
}

// Queue returns the queue serving t.
func (d *Device) Queue(t QueueType) core1_0.Queue {
	return d.queues[t]
}

// CommandPool returns the long-lived pool used for t. Transfer work shares the graphics
// pool, which keeps uploads free of queue ownership transfers.
func (d *Device) CommandPool(t QueueType) *CommandPool {
	if t == Compute {
		return d.computePool
	}
	return d.graphicsPool
}

// WaitIdle blocks until the device has finished all submitted work.
func (d *Device) WaitIdle() error {
	res, err := d.driver.DeviceWaitIdle()
	if res == core1_0.VKErrorDeviceLost {
		return errors.WithSecondaryError(errors.Wrap(ErrDeviceLost, "device wait idle"), err)
	}
	return errors.Wrap(err, "device wait idle")
}

// DepthFormat returns the preferred depth attachment format of the adapter.
func (d *Device) DepthFormat() (core1_0.Format, error) {
	return d.physical.FindDepthFormat()
}

// CreateImage creates an image through the device allocator.
func (d *Device) CreateImage(info ImageInfo) (*Image, error) {
	return d.allocator.CreateImage(info)
}

func (d *Device) DestroyImage(image *Image) {
	d.allocator.DestroyImage(image)
}

// CreateBuffer creates a buffer through the device allocator.
func (d *Device) CreateBuffer(size int, usage core1_0.BufferUsageFlags, memFlags core1_0.MemoryPropertyFlags) (*Buffer, error) {
	return d.allocator.CreateBuffer(size, usage, memFlags)
}

func (d *Device) DestroyBuffer(buffer *Buffer) {
	d.allocator.DestroyBuffer(buffer)
}

// CreateImageView creates a 2D view over the first mip and layer of an image the device
// does not own, such as a swapchain image.
func (d *Device) CreateImageView(image core1_0.Image, format core1_0.Format, aspect core1_0.ImageAspectFlags) (core1_0.ImageView, error) {
	view, _, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	return view, errors.Wrap(err, "create image view")
}

func (d *Device) DestroyImageView(view core1_0.ImageView) {
	d.driver.DestroyImageView(view, nil)
}

// CreateSampler creates the linear, edge-clamped sampler used to read attachments.
func (d *Device) CreateSampler() (core1_0.Sampler, error) {
	sampler, _, err := d.driver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeClampToEdge,
		AddressModeV: core1_0.SamplerAddressModeClampToEdge,
		AddressModeW: core1_0.SamplerAddressModeClampToEdge,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     1,
	})
	return sampler, errors.Wrap(err, "create sampler")
}

func (d *Device) DestroySampler(sampler core1_0.Sampler) {
	d.driver.DestroySampler(sampler, nil)
}

// CreateRenderPass creates a render pass from info.
func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (core1_0.RenderPass, error) {
	renderPass, _, err := d.driver.CreateRenderPass(nil, info)
	return renderPass, errors.Wrap(err, "create render pass")
}

func (d *Device) DestroyRenderPass(renderPass core1_0.RenderPass) {
	d.driver.DestroyRenderPass(renderPass, nil)
}

// CreateFramebuffer creates a single-layer framebuffer over views.
func (d *Device) CreateFramebuffer(renderPass core1_0.RenderPass, views []core1_0.ImageView, width, height int) (core1_0.Framebuffer, error) {
	framebuffer, _, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  renderPass,
		Layers:      1,
		Attachments: views,
		Width:       width,
		Height:      height,
	})
	return framebuffer, errors.Wrap(err, "create framebuffer")
}

func (d *Device) DestroyFramebuffer(framebuffer core1_0.Framebuffer) {
	d.driver.DestroyFramebuffer(framebuffer, nil)
}

// SampledImageSetLayout is the layout of sets allocated by AllocateSampledImageSet: a
// single combined image sampler at binding 0, visible to fragment shaders.
func (d *Device) SampledImageSetLayout() core1_0.DescriptorSetLayout {
	return d.sampledSetLayout
}

// AllocateSampledImageSet allocates a set with the sampled image layout.
func (d *Device) AllocateSampledImageSet() (core1_0.DescriptorSet, error) {
	sets, _, err := d.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: d.descriptorPool,
		SetLayouts:     []core1_0.DescriptorSetLayout{d.sampledSetLayout},
	})
	if err != nil {
		return core1_0.DescriptorSet{}, errors.Wrap(err, "allocate sampled image set")
	}
	return sets[0], nil
}

// WriteSampledImageSet points set at view read through sampler.
func (d *Device) WriteSampledImageSet(set core1_0.DescriptorSet, view core1_0.ImageView, sampler core1_0.Sampler) error {
	err := d.driver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          set,
			DstBinding:      0,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   view,
					Sampler:     sampler,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		},
	}, nil)
	return errors.Wrap(err, "write sampled image set")
}

// FreeDescriptorSet returns set to the device descriptor pool.
func (d *Device) FreeDescriptorSet(set core1_0.DescriptorSet) {
	d.driver.FreeDescriptorSets(set)
}
