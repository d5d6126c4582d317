package vkimage

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	driver "github.com/vkngwrapper/core/v3/loader"
	"golang.org/x/exp/slog"
)

// Device is the slice of the Vulkan device driver this package records
// commands against. core1_0.CoreDeviceDriver satisfies it; tests substitute
// fakes.
type Device interface {
	CreateImage(allocationCallbacks *driver.AllocationCallbacks, createInfo core1_0.ImageCreateInfo) (core1_0.Image, common.VkResult, error)
	DestroyImage(image core1_0.Image, allocationCallbacks *driver.AllocationCallbacks)
	GetImageMemoryRequirements(image core1_0.Image) *core1_0.MemoryRequirements
	BindImageMemory(image core1_0.Image, memory core1_0.DeviceMemory, offset int) (common.VkResult, error)

	AllocateMemory(allocationCallbacks *driver.AllocationCallbacks, allocateInfo core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, common.VkResult, error)
	FreeMemory(memory core1_0.DeviceMemory, allocationCallbacks *driver.AllocationCallbacks)
	MapMemory(memory core1_0.DeviceMemory, offset int, size int, flags core1_0.MemoryMapFlags) (unsafe.Pointer, common.VkResult, error)
	UnmapMemory(memory core1_0.DeviceMemory)

	CreateBuffer(allocationCallbacks *driver.AllocationCallbacks, createInfo core1_0.BufferCreateInfo) (core1_0.Buffer, common.VkResult, error)
	DestroyBuffer(buffer core1_0.Buffer, allocationCallbacks *driver.AllocationCallbacks)
	GetBufferMemoryRequirements(buffer core1_0.Buffer) *core1_0.MemoryRequirements
	BindBufferMemory(buffer core1_0.Buffer, memory core1_0.DeviceMemory, offset int) (common.VkResult, error)

	CreateImageView(allocationCallbacks *driver.AllocationCallbacks, createInfo core1_0.ImageViewCreateInfo) (core1_0.ImageView, common.VkResult, error)
	DestroyImageView(imageView core1_0.ImageView, allocationCallbacks *driver.AllocationCallbacks)
	CreateSampler(allocationCallbacks *driver.AllocationCallbacks, createInfo core1_0.SamplerCreateInfo) (core1_0.Sampler, common.VkResult, error)
	DestroySampler(sampler core1_0.Sampler, allocationCallbacks *driver.AllocationCallbacks)

	CmdPipelineBarrier(commandBuffer core1_0.CommandBuffer, srcStageMask core1_0.PipelineStageFlags, dstStageMask core1_0.PipelineStageFlags, dependencyFlags core1_0.DependencyFlags, memoryBarriers []core1_0.MemoryBarrier, bufferMemoryBarriers []core1_0.BufferMemoryBarrier, imageMemoryBarriers []core1_0.ImageMemoryBarrier) error
	CmdCopyBufferToImage(commandBuffer core1_0.CommandBuffer, srcBuffer core1_0.Buffer, dstImage core1_0.Image, dstImageLayout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) error

	CreateCommandPool(allocationCallbacks *driver.AllocationCallbacks, createInfo core1_0.CommandPoolCreateInfo) (core1_0.CommandPool, common.VkResult, error)
	DestroyCommandPool(pool core1_0.CommandPool, allocationCallbacks *driver.AllocationCallbacks)
	AllocateCommandBuffers(allocateInfo core1_0.CommandBufferAllocateInfo) ([]core1_0.CommandBuffer, common.VkResult, error)
	BeginCommandBuffer(commandBuffer core1_0.CommandBuffer, beginInfo core1_0.CommandBufferBeginInfo) (common.VkResult, error)
	EndCommandBuffer(commandBuffer core1_0.CommandBuffer) (common.VkResult, error)
	FreeCommandBuffers(buffers ...core1_0.CommandBuffer)
	QueueSubmit(queue core1_0.Queue, fence *core1_0.Fence, submits ...core1_0.SubmitInfo) (common.VkResult, error)
	QueueWaitIdle(queue core1_0.Queue) (common.VkResult, error)
}

var _ Device = (core1_0.CoreDeviceDriver)(nil)

// Context is the device-access contract DeviceImage and DeviceBuffer consume:
// handle access, read-only device property queries, and scoped single-use
// command recording with guaranteed submit-and-wait on release.
type Context interface {
	Device() Device

	// FormatProperties reports the device's feature support for format.
	FormatProperties(format core1_0.Format) *core1_0.FormatProperties
	// MemoryProperties reports the device's enumerated memory types.
	MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties

	// BeginSingleTimeCommands allocates a one-time-submit command buffer and
	// begins recording into it.
	BeginSingleTimeCommands() (core1_0.CommandBuffer, error)
	// EndSingleTimeCommands ends recording, submits the buffer to the
	// graphics queue, blocks until the queue is idle, and frees the buffer.
	EndSingleTimeCommands(commandBuffer core1_0.CommandBuffer) error
}

// RenderContextCreateInfo carries the device handles a RenderContext wraps.
// The caller remains responsible for destroying the instance and device.
type RenderContextCreateInfo struct {
	InstanceDriver core1_0.CoreInstanceDriver
	DeviceDriver   core1_0.CoreDeviceDriver
	PhysicalDevice core1_0.PhysicalDevice

	GraphicsQueue            core1_0.Queue
	GraphicsQueueFamilyIndex int

	// Logger receives command-submission diagnostics. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// RenderContext is the concrete Context used against a live device. It owns
// a command pool on the graphics queue family; everything else is borrowed.
type RenderContext struct {
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver
	physicalDevice core1_0.PhysicalDevice

	graphicsQueue core1_0.Queue
	commandPool   core1_0.CommandPool

	logger *slog.Logger
}

// NewRenderContext wraps previously created device handles and allocates the
// command pool that backs single-time command submission.
func NewRenderContext(o RenderContextCreateInfo) (*RenderContext, error) {
	if o.InstanceDriver == nil || o.DeviceDriver == nil {
		return nil, errors.New("render context requires instance and device drivers")
	}
	if !o.PhysicalDevice.Initialized() {
		return nil, errors.New("render context requires a physical device")
	}

	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pool, _, err := o.DeviceDriver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: o.GraphicsQueueFamilyIndex,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create command pool")
	}

	return &RenderContext{
		instanceDriver: o.InstanceDriver,
		deviceDriver:   o.DeviceDriver,
		physicalDevice: o.PhysicalDevice,
		graphicsQueue:  o.GraphicsQueue,
		commandPool:    pool,
		logger:         logger,
	}, nil
}

func (c *RenderContext) Device() Device {
	return c.deviceDriver
}

// PhysicalDevice returns the wrapped physical device handle.
func (c *RenderContext) PhysicalDevice() core1_0.PhysicalDevice {
	return c.physicalDevice
}

func (c *RenderContext) FormatProperties(format core1_0.Format) *core1_0.FormatProperties {
	return c.instanceDriver.GetPhysicalDeviceFormatProperties(c.physicalDevice, format)
}

func (c *RenderContext) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return c.instanceDriver.GetPhysicalDeviceMemoryProperties(c.physicalDevice)
}

func (c *RenderContext) BeginSingleTimeCommands() (core1_0.CommandBuffer, error) {
	buffers, _, err := c.deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        c.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return core1_0.CommandBuffer{}, err
	}

	buffer := buffers[0]
	_, err = c.deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		c.deviceDriver.FreeCommandBuffers(buffer)
		return core1_0.CommandBuffer{}, err
	}

	return buffer, nil
}

func (c *RenderContext) EndSingleTimeCommands(commandBuffer core1_0.CommandBuffer) error {
	defer c.deviceDriver.FreeCommandBuffers(commandBuffer)

	_, err := c.deviceDriver.EndCommandBuffer(commandBuffer)
	if err != nil {
		return err
	}

	_, err = c.deviceDriver.QueueSubmit(c.graphicsQueue, nil,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{commandBuffer},
		},
	)
	if err != nil {
		c.logger.Error("single-time command submission failed", "err", err)
		return err
	}

	_, err = c.deviceDriver.QueueWaitIdle(c.graphicsQueue)
	return err
}

// Destroy releases the command pool. Idempotent; the wrapped instance and
// device handles are left untouched.
func (c *RenderContext) Destroy() {
	if c.commandPool.Initialized() {
		c.deviceDriver.DestroyCommandPool(c.commandPool, nil)
		c.commandPool = core1_0.CommandPool{}
	}
}
