package vkimage

import (
	"image"
	"image/draw"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Texture bundles a sampled device image with the view and sampler needed to
// bind it to a descriptor set.
type Texture struct {
	Image   *DeviceImage
	View    core1_0.ImageView
	Sampler core1_0.Sampler

	ctx Context
}

// NewTextureFromImage uploads a single decoded image as a sampled 2D
// texture.
func NewTextureFromImage(ctx Context, source image.Image) (*Texture, error) {
	return NewTextureFromImages(ctx, []image.Image{source})
}

// NewTextureFromImages uploads one decoded image per array layer into a
// sampled RGBA texture. All layers must share the same dimensions. The full
// staged-upload protocol runs synchronously: stage pixels, transition to
// transfer destination, batch-copy every layer, transition to shader read,
// then build the view and sampler.
func NewTextureFromImages(ctx Context, layers []image.Image) (*Texture, error) {
	if len(layers) == 0 {
		return nil, errors.New("texture requires at least one source image")
	}

	bounds := layers[0].Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	for i, layer := range layers[1:] {
		layerBounds := layer.Bounds()
		if layerBounds.Dx() != width || layerBounds.Dy() != height {
			return nil, errors.Newf("texture layer %d is %dx%d, want %dx%d",
				i+1, layerBounds.Dx(), layerBounds.Dy(), width, height)
		}
	}

	img, err := NewDeviceImage(ctx, DeviceImageCreateInfo{
		Extent:           core1_0.Extent3D{Width: width, Height: height, Depth: 1},
		LayerCount:       len(layers),
		Aspect:           core1_0.ImageAspectColor,
		Format:           core1_0.FormatR8G8B8A8SRGB,
		Tiling:           core1_0.ImageTilingOptimal,
		Usage:            core1_0.ImageUsageTransferDst | core1_0.ImageUsageSampled,
		SharingMode:      core1_0.SharingModeExclusive,
		Samples:          core1_0.Samples1,
		MemoryProperties: core1_0.MemoryPropertyDeviceLocal,
	})
	if err != nil {
		return nil, err
	}

	layerSize := width * height * texelSize
	staging, err := NewStagingBuffer(ctx, layerSize*len(layers))
	if err != nil {
		img.Destroy()
		return nil, err
	}
	defer staging.Destroy()

	pixelData := make([]byte, 0, layerSize*len(layers))
	for _, layer := range layers {
		pixelData = append(pixelData, rgbaPixels(layer)...)
	}

	err = staging.Write(pixelData)
	if err != nil {
		img.Destroy()
		return nil, err
	}

	err = img.TransitionLayout(core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal)
	if err != nil {
		img.Destroy()
		return nil, err
	}

	err = img.CopyAllFromBuffer(staging.Handle(), 0)
	if err != nil {
		img.Destroy()
		return nil, err
	}

	err = img.TransitionLayout(core1_0.ImageLayoutTransferDstOptimal, core1_0.ImageLayoutShaderReadOnlyOptimal)
	if err != nil {
		img.Destroy()
		return nil, err
	}

	view, err := img.CreateView()
	if err != nil {
		img.Destroy()
		return nil, err
	}

	sampler, _, err := ctx.Device().CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     0,
	})
	if err != nil {
		ctx.Device().DestroyImageView(view, nil)
		img.Destroy()
		return nil, errors.Wrap(err, "failed to create sampler")
	}

	return &Texture{
		Image:   img,
		View:    view,
		Sampler: sampler,
		ctx:     ctx,
	}, nil
}

// rgbaPixels converts src into tightly packed RGBA bytes.
func rgbaPixels(src image.Image) []byte {
	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != 4*rgba.Rect.Dx() {
		converted := image.NewRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))
		draw.Draw(converted, converted.Bounds(), src, src.Bounds().Min, draw.Src)
		rgba = converted
	}
	return rgba.Pix
}

// Destroy releases the sampler, view and image. Idempotent.
func (t *Texture) Destroy() {
	if t.ctx == nil {
		return
	}

	device := t.ctx.Device()

	if t.Sampler.Initialized() {
		device.DestroySampler(t.Sampler, nil)
		t.Sampler = core1_0.Sampler{}
	}

	if t.View.Initialized() {
		device.DestroyImageView(t.View, nil)
		t.View = core1_0.ImageView{}
	}

	if t.Image != nil {
		t.Image.Destroy()
		t.Image = nil
	}

	t.ctx = nil
}
