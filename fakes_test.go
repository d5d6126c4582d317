package vkimage

import (
	"testing"
	"unsafe"

	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	driver "github.com/vkngwrapper/core/v3/loader"
)

// recordedBarrier captures one CmdPipelineBarrier call.
type recordedBarrier struct {
	srcStage core1_0.PipelineStageFlags
	dstStage core1_0.PipelineStageFlags
	barriers []core1_0.ImageMemoryBarrier
}

// recordedCopy captures one CmdCopyBufferToImage call.
type recordedCopy struct {
	layout  core1_0.ImageLayout
	regions []core1_0.BufferImageCopy
}

// fakeDevice implements Device in memory, recording every call so tests can
// assert on resource accounting and recorded command parameters. The zero
// value is usable; error fields inject failures.
type fakeDevice struct {
	events []string

	imagesCreated   int
	imagesDestroyed int
	imageInfos      []core1_0.ImageCreateInfo

	buffersCreated   int
	buffersDestroyed int

	memoryAllocated int
	memoryFreed     int
	allocInfos      []core1_0.MemoryAllocateInfo

	imagesBound  int
	buffersBound int

	viewsCreated   int
	viewsDestroyed int
	viewInfos      []core1_0.ImageViewCreateInfo

	samplersCreated   int
	samplersDestroyed int
	samplerInfos      []core1_0.SamplerCreateInfo

	barriers []recordedBarrier
	copies   []recordedCopy

	mapped []byte

	memoryTypeBits uint32

	createImageErr error
	allocateErr    error
	bindImageErr   error
	createViewErr  error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		// Every requirement query reports type 0 as acceptable.
		memoryTypeBits: 0x1,
	}
}

func (d *fakeDevice) record(event string) {
	d.events = append(d.events, event)
}

func (d *fakeDevice) CreateImage(allocationCallbacks *driver.AllocationCallbacks, createInfo core1_0.ImageCreateInfo) (core1_0.Image, common.VkResult, error) {
	if d.createImageErr != nil {
		return core1_0.Image{}, core1_0.VKErrorUnknown, d.createImageErr
	}
	d.imagesCreated++
	d.imageInfos = append(d.imageInfos, createInfo)
	d.record("CreateImage")
	return core1_0.Image{}, core1_0.VKSuccess, nil
}

func (d *fakeDevice) DestroyImage(image core1_0.Image, allocationCallbacks *driver.AllocationCallbacks) {
	d.imagesDestroyed++
	d.record("DestroyImage")
}

func (d *fakeDevice) GetImageMemoryRequirements(image core1_0.Image) *core1_0.MemoryRequirements {
	return &core1_0.MemoryRequirements{
		Size:           1024,
		Alignment:      16,
		MemoryTypeBits: d.memoryTypeBits,
	}
}

func (d *fakeDevice) BindImageMemory(image core1_0.Image, memory core1_0.DeviceMemory, offset int) (common.VkResult, error) {
	if d.bindImageErr != nil {
		return core1_0.VKErrorUnknown, d.bindImageErr
	}
	d.imagesBound++
	d.record("BindImageMemory")
	return core1_0.VKSuccess, nil
}

func (d *fakeDevice) AllocateMemory(allocationCallbacks *driver.AllocationCallbacks, allocateInfo core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, common.VkResult, error) {
	if d.allocateErr != nil {
		return core1_0.DeviceMemory{}, core1_0.VKErrorUnknown, d.allocateErr
	}
	d.memoryAllocated++
	d.allocInfos = append(d.allocInfos, allocateInfo)
	d.record("AllocateMemory")
	return core1_0.DeviceMemory{}, core1_0.VKSuccess, nil
}

func (d *fakeDevice) FreeMemory(memory core1_0.DeviceMemory, allocationCallbacks *driver.AllocationCallbacks) {
	d.memoryFreed++
	d.record("FreeMemory")
}

func (d *fakeDevice) MapMemory(memory core1_0.DeviceMemory, offset int, size int, flags core1_0.MemoryMapFlags) (unsafe.Pointer, common.VkResult, error) {
	if size < 1 {
		size = 1
	}
	if len(d.mapped) < size {
		d.mapped = make([]byte, size)
	}
	d.record("MapMemory")
	return unsafe.Pointer(&d.mapped[0]), core1_0.VKSuccess, nil
}

func (d *fakeDevice) UnmapMemory(memory core1_0.DeviceMemory) {
	d.record("UnmapMemory")
}

func (d *fakeDevice) CreateBuffer(allocationCallbacks *driver.AllocationCallbacks, createInfo core1_0.BufferCreateInfo) (core1_0.Buffer, common.VkResult, error) {
	d.buffersCreated++
	d.record("CreateBuffer")
	return core1_0.Buffer{}, core1_0.VKSuccess, nil
}

func (d *fakeDevice) DestroyBuffer(buffer core1_0.Buffer, allocationCallbacks *driver.AllocationCallbacks) {
	d.buffersDestroyed++
	d.record("DestroyBuffer")
}

func (d *fakeDevice) GetBufferMemoryRequirements(buffer core1_0.Buffer) *core1_0.MemoryRequirements {
	return &core1_0.MemoryRequirements{
		Size:           1024,
		Alignment:      16,
		MemoryTypeBits: d.memoryTypeBits,
	}
}

func (d *fakeDevice) BindBufferMemory(buffer core1_0.Buffer, memory core1_0.DeviceMemory, offset int) (common.VkResult, error) {
	d.buffersBound++
	d.record("BindBufferMemory")
	return core1_0.VKSuccess, nil
}

func (d *fakeDevice) CreateImageView(allocationCallbacks *driver.AllocationCallbacks, createInfo core1_0.ImageViewCreateInfo) (core1_0.ImageView, common.VkResult, error) {
	if d.createViewErr != nil {
		return core1_0.ImageView{}, core1_0.VKErrorUnknown, d.createViewErr
	}
	d.viewsCreated++
	d.viewInfos = append(d.viewInfos, createInfo)
	d.record("CreateImageView")
	return core1_0.ImageView{}, core1_0.VKSuccess, nil
}

func (d *fakeDevice) DestroyImageView(imageView core1_0.ImageView, allocationCallbacks *driver.AllocationCallbacks) {
	d.viewsDestroyed++
	d.record("DestroyImageView")
}

func (d *fakeDevice) CreateSampler(allocationCallbacks *driver.AllocationCallbacks, createInfo core1_0.SamplerCreateInfo) (core1_0.Sampler, common.VkResult, error) {
	d.samplersCreated++
	d.samplerInfos = append(d.samplerInfos, createInfo)
	d.record("CreateSampler")
	return core1_0.Sampler{}, core1_0.VKSuccess, nil
}

func (d *fakeDevice) DestroySampler(sampler core1_0.Sampler, allocationCallbacks *driver.AllocationCallbacks) {
	d.samplersDestroyed++
	d.record("DestroySampler")
}

func (d *fakeDevice) CmdPipelineBarrier(commandBuffer core1_0.CommandBuffer, srcStageMask core1_0.PipelineStageFlags, dstStageMask core1_0.PipelineStageFlags, dependencyFlags core1_0.DependencyFlags, memoryBarriers []core1_0.MemoryBarrier, bufferMemoryBarriers []core1_0.BufferMemoryBarrier, imageMemoryBarriers []core1_0.ImageMemoryBarrier) error {
	d.barriers = append(d.barriers, recordedBarrier{
		srcStage: srcStageMask,
		dstStage: dstStageMask,
		barriers: imageMemoryBarriers,
	})
	d.record("CmdPipelineBarrier")
	return nil
}

func (d *fakeDevice) CmdCopyBufferToImage(commandBuffer core1_0.CommandBuffer, srcBuffer core1_0.Buffer, dstImage core1_0.Image, dstImageLayout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) error {
	d.copies = append(d.copies, recordedCopy{
		layout:  dstImageLayout,
		regions: regions,
	})
	d.record("CmdCopyBufferToImage")
	return nil
}

func (d *fakeDevice) CreateCommandPool(allocationCallbacks *driver.AllocationCallbacks, createInfo core1_0.CommandPoolCreateInfo) (core1_0.CommandPool, common.VkResult, error) {
	d.record("CreateCommandPool")
	return core1_0.CommandPool{}, core1_0.VKSuccess, nil
}

func (d *fakeDevice) DestroyCommandPool(pool core1_0.CommandPool, allocationCallbacks *driver.AllocationCallbacks) {
	d.record("DestroyCommandPool")
}

func (d *fakeDevice) AllocateCommandBuffers(allocateInfo core1_0.CommandBufferAllocateInfo) ([]core1_0.CommandBuffer, common.VkResult, error) {
	d.record("AllocateCommandBuffers")
	buffers := make([]core1_0.CommandBuffer, allocateInfo.CommandBufferCount)
	return buffers, core1_0.VKSuccess, nil
}

func (d *fakeDevice) BeginCommandBuffer(commandBuffer core1_0.CommandBuffer, beginInfo core1_0.CommandBufferBeginInfo) (common.VkResult, error) {
	d.record("BeginCommandBuffer")
	return core1_0.VKSuccess, nil
}

func (d *fakeDevice) EndCommandBuffer(commandBuffer core1_0.CommandBuffer) (common.VkResult, error) {
	d.record("EndCommandBuffer")
	return core1_0.VKSuccess, nil
}

func (d *fakeDevice) FreeCommandBuffers(buffers ...core1_0.CommandBuffer) {
	d.record("FreeCommandBuffers")
}

func (d *fakeDevice) QueueSubmit(queue core1_0.Queue, fence *core1_0.Fence, submits ...core1_0.SubmitInfo) (common.VkResult, error) {
	d.record("QueueSubmit")
	return core1_0.VKSuccess, nil
}

func (d *fakeDevice) QueueWaitIdle(queue core1_0.Queue) (common.VkResult, error) {
	d.record("QueueWaitIdle")
	return core1_0.VKSuccess, nil
}

var _ Device = (*fakeDevice)(nil)

// fakeContext implements Context over a fakeDevice, simulating the
// single-time command protocol with plain event recording.
type fakeContext struct {
	device *fakeDevice

	formatProps map[core1_0.Format]*core1_0.FormatProperties
	memProps    *core1_0.PhysicalDeviceMemoryProperties

	begun     int
	ended     int
	submitErr error
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		device: newFakeDevice(),
		memProps: &core1_0.PhysicalDeviceMemoryProperties{
			MemoryTypes: []core1_0.MemoryType{
				{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
				{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
			},
		},
	}
}

func (c *fakeContext) Device() Device {
	return c.device
}

func (c *fakeContext) FormatProperties(format core1_0.Format) *core1_0.FormatProperties {
	props, ok := c.formatProps[format]
	if !ok {
		return &core1_0.FormatProperties{}
	}
	return props
}

func (c *fakeContext) MemoryProperties() *core1_0.PhysicalDeviceMemoryProperties {
	return c.memProps
}

func (c *fakeContext) BeginSingleTimeCommands() (core1_0.CommandBuffer, error) {
	c.begun++
	c.device.record("BeginSingleTimeCommands")
	return core1_0.CommandBuffer{}, nil
}

func (c *fakeContext) EndSingleTimeCommands(commandBuffer core1_0.CommandBuffer) error {
	c.ended++
	c.device.record("EndSingleTimeCommands")
	return c.submitErr
}

var _ Context = (*fakeContext)(nil)

// makeTestImage constructs a DeviceImage against ctx with common color-image
// settings.
func makeTestImage(t *testing.T, ctx *fakeContext, width, height, layerCount int) *DeviceImage {
	t.Helper()

	img, err := NewDeviceImage(ctx, DeviceImageCreateInfo{
		Extent:           core1_0.Extent3D{Width: width, Height: height, Depth: 1},
		LayerCount:       layerCount,
		Aspect:           core1_0.ImageAspectColor,
		Format:           core1_0.FormatR8G8B8A8SRGB,
		Usage:            core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		SharingMode:      core1_0.SharingModeExclusive,
		Samples:          core1_0.Samples1,
		MemoryProperties: core1_0.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		t.Fatalf("NewDeviceImage: %+v", err)
	}
	return img
}
