package vkimage

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// texelSize is the byte stride between layers CopyAllFromBuffer assumes in
// its source buffer. The batched copy path only supports 4-byte texel
// formats.
const texelSize = 4

// DeviceImageCreateInfo describes the image resource to allocate.
type DeviceImageCreateInfo struct {
	Extent     core1_0.Extent3D
	LayerCount int
	Aspect     core1_0.ImageAspectFlags
	Format     core1_0.Format

	// Tiling is accepted for API symmetry with the underlying create call,
	// but every image is created optimal-tiled regardless of its value.
	Tiling      core1_0.ImageTiling
	Usage       core1_0.ImageUsageFlags
	SharingMode core1_0.SharingMode
	Samples     core1_0.SampleCountFlags

	MemoryProperties core1_0.MemoryPropertyFlags
}

// DeviceImage owns a native image handle and the device memory bound to it.
// The two are allocated together, bound at offset 0, and released together
// by Destroy. Instances are single-owner: ownership moves via Adopt, never
// by copying, and a moved-from or destroyed instance is the zero value,
// on which Destroy is a safe no-op.
type DeviceImage struct {
	ctx Context

	image  core1_0.Image
	memory core1_0.DeviceMemory

	extent           core1_0.Extent3D
	format           core1_0.Format
	subresourceRange core1_0.ImageSubresourceRange

	valid bool
}

// NewDeviceImage allocates an image and its backing memory and binds them.
// The image dimensionality follows the extent: depth 1 is a 2D image, depth
// greater than 1 is a 3D image, and depth 0 returns ErrInvalidExtent. Images
// always have exactly one mip level. A zero LayerCount is a caller bug and
// panics.
func NewDeviceImage(ctx Context, o DeviceImageCreateInfo) (*DeviceImage, error) {
	if o.LayerCount <= 0 {
		panic("vkimage: device image layer count must be at least 1")
	}

	var imageType core1_0.ImageType
	switch {
	case o.Extent.Depth == 1:
		imageType = core1_0.ImageType2D
	case o.Extent.Depth > 1:
		imageType = core1_0.ImageType3D
	default:
		return nil, errors.Wrapf(ErrInvalidExtent, "depth %d", o.Extent.Depth)
	}

	device := ctx.Device()

	image, _, err := device.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType:     imageType,
		Extent:        o.Extent,
		MipLevels:     1,
		ArrayLayers:   o.LayerCount,
		Format:        o.Format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         o.Usage,
		SharingMode:   o.SharingMode,
		Samples:       o.Samples,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create image")
	}

	memReqs := device.GetImageMemoryRequirements(image)
	memoryTypeIndex, err := FindMemoryType(ctx.MemoryProperties(), memReqs.MemoryTypeBits, o.MemoryProperties)
	if err != nil {
		device.DestroyImage(image, nil)
		return nil, err
	}

	memory, _, err := device.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		device.DestroyImage(image, nil)
		return nil, errors.Wrap(err, "failed to allocate image memory")
	}

	_, err = device.BindImageMemory(image, memory, 0)
	if err != nil {
		device.DestroyImage(image, nil)
		device.FreeMemory(memory, nil)
		return nil, errors.Wrap(err, "failed to bind image memory")
	}

	return &DeviceImage{
		ctx:    ctx,
		image:  image,
		memory: memory,
		extent: o.Extent,
		format: o.Format,
		subresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     o.Aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     o.LayerCount,
		},
		valid: true,
	}, nil
}

// Destroy releases the image and frees its memory, then resets the receiver
// to the zero value. Calling it again, or on a zero or moved-from instance,
// is a no-op.
func (img *DeviceImage) Destroy() {
	if !img.valid {
		*img = DeviceImage{}
		return
	}

	device := img.ctx.Device()
	device.DestroyImage(img.image, nil)
	device.FreeMemory(img.memory, nil)

	*img = DeviceImage{}
}

// Adopt destroys the receiver's current resources and takes ownership of
// other's, leaving other zeroed so its Destroy becomes a no-op. Adopting
// into a zero DeviceImage is a plain ownership transfer.
func (img *DeviceImage) Adopt(other *DeviceImage) {
	if img == other {
		return
	}

	img.Destroy()
	*img = *other
	*other = DeviceImage{}
}

// Handle returns the native image handle.
func (img *DeviceImage) Handle() core1_0.Image {
	return img.image
}

// Extent returns the image's 3D size.
func (img *DeviceImage) Extent() core1_0.Extent3D {
	return img.extent
}

// Format returns the pixel format chosen at construction.
func (img *DeviceImage) Format() core1_0.Format {
	return img.format
}

// SubresourceRange returns the full subresource range of the image.
func (img *DeviceImage) SubresourceRange() core1_0.ImageSubresourceRange {
	return img.subresourceRange
}

// LayerCount returns the number of array layers.
func (img *DeviceImage) LayerCount() int {
	return img.subresourceRange.LayerCount
}

// Valid reports whether the instance currently owns live resources.
func (img *DeviceImage) Valid() bool {
	return img.valid
}

type layoutPair struct {
	from core1_0.ImageLayout
	to   core1_0.ImageLayout
}

type transitionRule struct {
	srcAccess core1_0.AccessFlags
	dstAccess core1_0.AccessFlags
	srcStage  core1_0.PipelineStageFlags
	dstStage  core1_0.PipelineStageFlags
}

// transitionRules is the closed set of supported layout transitions. Pairs
// outside it are rejected rather than derived.
var transitionRules = map[layoutPair]transitionRule{
	{core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal}: {
		srcAccess: 0,
		dstAccess: core1_0.AccessTransferWrite,
		srcStage:  core1_0.PipelineStageTopOfPipe,
		dstStage:  core1_0.PipelineStageTransfer,
	},
	{core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal}: {
		srcAccess: core1_0.AccessTransferWrite,
		dstAccess: core1_0.AccessShaderRead,
		srcStage:  core1_0.PipelineStageTransfer,
		dstStage:  core1_0.PipelineStageFragmentShader,
	},
}

// TransitionLayout records a pipeline barrier moving the image's full
// subresource range from oldLayout to newLayout, submits it, and blocks
// until the device has executed it. The image does not track its own layout;
// the caller supplies both sides of the transition. Pairs outside the
// supported table return ErrUnsupportedTransition. Queue-family ownership
// transfer is not modeled.
func (img *DeviceImage) TransitionLayout(oldLayout, newLayout core1_0.ImageLayout) error {
	rule, ok := transitionRules[layoutPair{oldLayout, newLayout}]
	if !ok {
		return errors.Wrapf(ErrUnsupportedTransition, "%s -> %s", oldLayout, newLayout)
	}

	commandBuffer, err := img.ctx.BeginSingleTimeCommands()
	if err != nil {
		return err
	}

	err = img.ctx.Device().CmdPipelineBarrier(commandBuffer,
		rule.srcStage, rule.dstStage,
		0, nil, nil,
		[]core1_0.ImageMemoryBarrier{
			{
				OldLayout: oldLayout,
				NewLayout: newLayout,

				SrcQueueFamilyIndex: -1,
				DstQueueFamilyIndex: -1,

				Image:            img.image,
				SubresourceRange: img.subresourceRange,

				SrcAccessMask: rule.srcAccess,
				DstAccessMask: rule.dstAccess,
			},
		})
	if err != nil {
		return err
	}

	return img.ctx.EndSingleTimeCommands(commandBuffer)
}

// CopyFromBuffer copies layerCount tightly packed array layers starting at
// startingLayer out of buffer into the image, which must already be in
// transfer-destination layout. One region, one copy command, one blocking
// submission.
func (img *DeviceImage) CopyFromBuffer(buffer core1_0.Buffer, startingLayer, layerCount int) error {
	region := core1_0.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,

		ImageSubresource: core1_0.ImageSubresourceLayers{
			AspectMask:     img.subresourceRange.AspectMask,
			MipLevel:       0,
			BaseArrayLayer: startingLayer,
			LayerCount:     layerCount,
		},

		ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: img.extent,
	}

	commandBuffer, err := img.ctx.BeginSingleTimeCommands()
	if err != nil {
		return err
	}

	err = img.ctx.Device().CmdCopyBufferToImage(commandBuffer, buffer, img.image,
		core1_0.ImageLayoutTransferDstOptimal, region)
	if err != nil {
		return err
	}

	return img.ctx.EndSingleTimeCommands(commandBuffer)
}

// CopyAllFromBuffer copies every array layer from startingLayer to the end
// of the image out of one source buffer, reading layer i of the run at byte
// offset i*width*height*4. All regions are batched into a single copy
// command. Regions are fixed to the color aspect and a depth-1 extent; the
// image must already be in transfer-destination layout.
func (img *DeviceImage) CopyAllFromBuffer(buffer core1_0.Buffer, startingLayer int) error {
	regions := make([]core1_0.BufferImageCopy, img.LayerCount()-startingLayer)
	for i := range regions {
		regions[i] = core1_0.BufferImageCopy{
			BufferOffset: i * img.extent.Width * img.extent.Height * texelSize,
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: startingLayer + i,
				LayerCount:     1,
			},
			ImageExtent: core1_0.Extent3D{
				Width:  img.extent.Width,
				Height: img.extent.Height,
				Depth:  1,
			},
		}
	}

	commandBuffer, err := img.ctx.BeginSingleTimeCommands()
	if err != nil {
		return err
	}

	err = img.ctx.Device().CmdCopyBufferToImage(commandBuffer, buffer, img.image,
		core1_0.ImageLayoutTransferDstOptimal, regions...)
	if err != nil {
		return err
	}

	return img.ctx.EndSingleTimeCommands(commandBuffer)
}

// CopyFromBuffers copies buffers[i] into array layer startingLayer+i, one
// copy command per buffer, all recorded into a single submission that blocks
// until complete. The image must already be in transfer-destination layout.
func (img *DeviceImage) CopyFromBuffers(buffers []core1_0.Buffer, startingLayer int) error {
	commandBuffer, err := img.ctx.BeginSingleTimeCommands()
	if err != nil {
		return err
	}

	region := core1_0.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,

		ImageSubresource: core1_0.ImageSubresourceLayers{
			AspectMask: img.subresourceRange.AspectMask,
			MipLevel:   0,
			LayerCount: 1,
		},

		ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: img.extent,
	}

	for i, buffer := range buffers {
		region.ImageSubresource.BaseArrayLayer = startingLayer + i

		err = img.ctx.Device().CmdCopyBufferToImage(commandBuffer, buffer, img.image,
			core1_0.ImageLayoutTransferDstOptimal, region)
		if err != nil {
			return err
		}
	}

	return img.ctx.EndSingleTimeCommands(commandBuffer)
}
