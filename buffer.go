package vkimage

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// DeviceBufferCreateInfo describes a linear buffer and its memory placement.
type DeviceBufferCreateInfo struct {
	Size        int
	Usage       core1_0.BufferUsageFlags
	SharingMode core1_0.SharingMode

	MemoryProperties core1_0.MemoryPropertyFlags
}

// DeviceBuffer owns a buffer handle and the device memory bound to it, with
// the same paired lifetime and idempotent Destroy as DeviceImage. Its main
// role here is staging pixel data for image uploads.
type DeviceBuffer struct {
	ctx Context

	buffer core1_0.Buffer
	memory core1_0.DeviceMemory
	size   int

	valid bool
}

// NewDeviceBuffer allocates a buffer and its backing memory and binds them
// at offset 0.
func NewDeviceBuffer(ctx Context, o DeviceBufferCreateInfo) (*DeviceBuffer, error) {
	device := ctx.Device()

	buffer, _, err := device.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        o.Size,
		Usage:       o.Usage,
		SharingMode: o.SharingMode,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create buffer")
	}

	memReqs := device.GetBufferMemoryRequirements(buffer)
	memoryTypeIndex, err := FindMemoryType(ctx.MemoryProperties(), memReqs.MemoryTypeBits, o.MemoryProperties)
	if err != nil {
		device.DestroyBuffer(buffer, nil)
		return nil, err
	}

	memory, _, err := device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		device.DestroyBuffer(buffer, nil)
		return nil, errors.Wrap(err, "failed to allocate buffer memory")
	}

	_, err = device.BindBufferMemory(buffer, memory, 0)
	if err != nil {
		device.DestroyBuffer(buffer, nil)
		device.FreeMemory(memory, nil)
		return nil, errors.Wrap(err, "failed to bind buffer memory")
	}

	return &DeviceBuffer{
		ctx:    ctx,
		buffer: buffer,
		memory: memory,
		size:   o.Size,
		valid:  true,
	}, nil
}

// NewStagingBuffer allocates a host-visible, host-coherent transfer-source
// buffer of the given size.
func NewStagingBuffer(ctx Context, size int) (*DeviceBuffer, error) {
	return NewDeviceBuffer(ctx, DeviceBufferCreateInfo{
		Size:             size,
		Usage:            core1_0.BufferUsageTransferSrc,
		SharingMode:      core1_0.SharingModeExclusive,
		MemoryProperties: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent,
	})
}

// Write serializes data with the platform byte order into the buffer's
// memory, starting at offset 0. The buffer's memory must be host-visible.
func (b *DeviceBuffer) Write(data any) error {
	size := binary.Size(data)
	if size < 0 {
		return errors.Newf("buffer write: %T has no fixed binary size", data)
	}
	if size > b.size {
		return errors.Newf("buffer write: %d bytes exceed buffer size %d", size, b.size)
	}

	device := b.ctx.Device()

	memoryPtr, _, err := device.MapMemory(b.memory, 0, size, 0)
	if err != nil {
		return err
	}
	defer device.UnmapMemory(b.memory)

	dataBuffer := unsafe.Slice((*byte)(memoryPtr), size)

	buf := &bytes.Buffer{}
	err = binary.Write(buf, common.ByteOrder, data)
	if err != nil {
		return err
	}

	copy(dataBuffer, buf.Bytes())
	return nil
}

// Handle returns the native buffer handle.
func (b *DeviceBuffer) Handle() core1_0.Buffer {
	return b.buffer
}

// Size returns the buffer's size in bytes.
func (b *DeviceBuffer) Size() int {
	return b.size
}

// Valid reports whether the instance currently owns live resources.
func (b *DeviceBuffer) Valid() bool {
	return b.valid
}

// Destroy releases the buffer and frees its memory, then resets the
// receiver to the zero value. Idempotent.
func (b *DeviceBuffer) Destroy() {
	if !b.valid {
		*b = DeviceBuffer{}
		return
	}

	device := b.ctx.Device()
	device.DestroyBuffer(b.buffer, nil)
	device.FreeMemory(b.memory, nil)

	*b = DeviceBuffer{}
}
