package vkimage

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// NewImageView builds a view over image covering layerCount array layers at
// mip 0. A single layer yields a 2D view; multiple layers yield a 2D-array
// view; zero layers returns ErrInvalidLayerCount.
func NewImageView(ctx Context, image core1_0.Image, aspect core1_0.ImageAspectFlags, format core1_0.Format, layerCount int) (core1_0.ImageView, error) {
	var viewType core1_0.ImageViewType
	switch {
	case layerCount == 1:
		viewType = core1_0.ImageViewType2D
	case layerCount > 1:
		viewType = core1_0.ImageViewType2DArray
	default:
		return core1_0.ImageView{}, errors.Wrapf(ErrInvalidLayerCount, "layer count %d", layerCount)
	}

	view, _, err := ctx.Device().CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask: aspect,

			BaseMipLevel: 0,
			LevelCount:   1,

			BaseArrayLayer: 0,
			LayerCount:     layerCount,
		},
	})
	if err != nil {
		return core1_0.ImageView{}, errors.Wrap(err, "failed to create image view")
	}

	return view, nil
}

// CreateView builds a view over the whole image using its own aspect mask,
// format and layer count.
func (img *DeviceImage) CreateView() (core1_0.ImageView, error) {
	return NewImageView(img.ctx, img.image, img.subresourceRange.AspectMask, img.format, img.LayerCount())
}
