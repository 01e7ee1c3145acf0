package gpu

import (
	"bytes"
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"golang.org/x/exp/slog"
)

// Allocator creates buffers and images with dedicated memory of a compatible type.
// It is deliberately simple: one allocation per resource, no suballocation.
type Allocator struct {
	driver      core1_0.CoreDeviceDriver
	memoryTypes []core1_0.MemoryPropertyFlags
	logger      *slog.Logger

	liveBuffers atomic.Int32
	liveImages  atomic.Int32
}

func newAllocator(driver core1_0.CoreDeviceDriver, memoryTypes []core1_0.MemoryPropertyFlags, logger *slog.Logger) *Allocator {
	return &Allocator{
		driver:      driver,
		memoryTypes: memoryTypes,
		logger:      logger,
	}
}

// Buffer is a buffer bound to its own device memory.
type Buffer struct {
	Buffer core1_0.Buffer
	Memory core1_0.DeviceMemory
	Size   int
	Usage  core1_0.BufferUsageFlags

	allocator *Allocator
}

// ImageInfo describes a single-mip 2D image and the view created for it.
type ImageInfo struct {
	Width       int
	Height      int
	Format      core1_0.Format
	Usage       core1_0.ImageUsageFlags
	Aspect      core1_0.ImageAspectFlags
	MemoryFlags core1_0.MemoryPropertyFlags
}

// Image is an image, its memory and a view over the whole image.
type Image struct {
	Image  core1_0.Image
	Memory core1_0.DeviceMemory
	View   core1_0.ImageView
	Info   ImageInfo
}

func (a *Allocator) allocate(size int, typeBits uint32, flags core1_0.MemoryPropertyFlags) (core1_0.DeviceMemory, error) {
	typeIndex, err := MemoryTypeIndex(a.memoryTypes, typeBits, flags)
	if err != nil {
		return core1_0.DeviceMemory{}, err
	}

	memory, _, err := a.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: typeIndex,
	})
	if err != nil {
		return core1_0.DeviceMemory{}, errors.Wrapf(err, "allocate %d bytes from memory type %d", size, typeIndex)
	}

	a.logger.Debug("allocated device memory", slog.Int("Size", size), slog.Int("MemoryTypeIndex", typeIndex))
	return memory, nil
}

// CreateBuffer creates a buffer of size bytes backed by memory with at least memFlags.
func (a *Allocator) CreateBuffer(size int, usage core1_0.BufferUsageFlags, memFlags core1_0.MemoryPropertyFlags) (*Buffer, error) {
	if size <= 0 {
		return nil, errors.Newf("buffer size must be positive, got %d", size)
	}

	buffer, _, err := a.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create buffer")
	}

	reqs := a.driver.GetBufferMemoryRequirements(buffer)
	memory, err := a.allocate(reqs.Size, reqs.MemoryTypeBits, memFlags)
	if err != nil {
		a.driver.DestroyBuffer(buffer, nil)
		return nil, err
	}

	_, err = a.driver.BindBufferMemory(buffer, memory, 0)
	if err != nil {
		a.driver.DestroyBuffer(buffer, nil)
		a.driver.FreeMemory(memory, nil)
		return nil, errors.Wrap(err, "bind buffer memory")
	}

	a.liveBuffers.Add(1)
	return &Buffer{
		Buffer:    buffer,
		Memory:    memory,
		Size:      size,
		Usage:     usage,
		allocator: a,
	}, nil
}

// DestroyBuffer destroys the buffer and frees its memory. Nil is ignored.
func (a *Allocator) DestroyBuffer(buffer *Buffer) {
	if buffer == nil {
		return
	}
	a.driver.DestroyBuffer(buffer.Buffer, nil)
	a.driver.FreeMemory(buffer.Memory, nil)
	a.liveBuffers.Add(-1)
}

// Write copies data into host-visible buffer memory starting at offset. Data is encoded
// with binary.Write, so slices of fixed-size values and plain byte slices both work.
func (b *Buffer) Write(offset int, data any) error {
	size, err := encodedSize(data)
	if err != nil {
		return err
	}
	if offset+size > b.Size {
		return errors.Newf("write of %d bytes at offset %d overflows %d byte buffer", size, offset, b.Size)
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return errors.Wrap(err, "encode buffer contents")
	}

	driver := b.allocator.driver
	ptr, _, err := driver.MapMemory(b.Memory, offset, size, 0)
	if err != nil {
		return errors.Wrap(err, "map buffer memory")
	}
	defer driver.UnmapMemory(b.Memory)

	copy(unsafe.Slice((*byte)(ptr), size), buf.Bytes())
	return nil
}

func encodedSize(data any) (int, error) {
	size := binary.Size(data)
	if size <= 0 {
		return 0, errors.Newf("cannot encode %T", data)
	}
	return size, nil
}

// CreateImage creates an optimal-tiling image, binds memory and creates its view.
func (a *Allocator) CreateImage(info ImageInfo) (*Image, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, errors.Newf("image extent must be positive, got %dx%d", info.Width, info.Height)
	}
	if info.MemoryFlags == 0 {
		info.MemoryFlags = core1_0.MemoryPropertyDeviceLocal
	}

	image, _, err := a.driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType: core1_0.ImageType2D,
		Extent: core1_0.Extent3D{
			Width:  info.Width,
			Height: info.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        info.Format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         info.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create image")
	}

	reqs := a.driver.GetImageMemoryRequirements(image)
	memory, err := a.allocate(reqs.Size, reqs.MemoryTypeBits, info.MemoryFlags)
	if err != nil {
		a.driver.DestroyImage(image, nil)
		return nil, err
	}

	_, err = a.driver.BindImageMemory(image, memory, 0)
	if err != nil {
		a.driver.DestroyImage(image, nil)
		a.driver.FreeMemory(memory, nil)
		return nil, errors.Wrap(err, "bind image memory")
	}

	view, _, err := a.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   info.Format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     info.Aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		a.driver.DestroyImage(image, nil)
		a.driver.FreeMemory(memory, nil)
		return nil, errors.Wrap(err, "create image view")
	}

	a.liveImages.Add(1)
	a.logger.Debug("created image",
		slog.Int("Width", info.Width),
		slog.Int("Height", info.Height),
		slog.String("Format", info.Format.String()))

	return &Image{
		Image:  image,
		Memory: memory,
		View:   view,
		Info:   info,
	}, nil
}

// DestroyImage destroys the view, the image and its memory. Nil is ignored.
func (a *Allocator) DestroyImage(image *Image) {
	if image == nil {
		return
	}
	a.driver.DestroyImageView(image.View, nil)
	a.driver.DestroyImage(image.Image, nil)
	a.driver.FreeMemory(image.Memory, nil)
	a.liveImages.Add(-1)
}

// LiveBuffers reports how many buffers created by a have not been destroyed.
func (a *Allocator) LiveBuffers() int {
	return int(a.liveBuffers.Load())
}

// LiveImages reports how many images created by a have not been destroyed.
func (a *Allocator) LiveImages() int {
	return int(a.liveImages.Load())
}
