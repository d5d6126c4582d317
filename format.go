package vkimage

import "github.com/vkngwrapper/core/v3/core1_0"

// FindSupportedFormat returns the first candidate format whose
// device-reported feature set for the requested tiling contains all of
// features, or core1_0.FormatUndefined when no candidate qualifies.
func FindSupportedFormat(ctx Context, candidates []core1_0.Format, tiling core1_0.ImageTiling, features core1_0.FormatFeatureFlags) core1_0.Format {
	for _, format := range candidates {
		props := ctx.FormatProperties(format)

		if tiling == core1_0.ImageTilingLinear && (props.LinearTilingFeatures&features) == features {
			return format
		} else if tiling == core1_0.ImageTilingOptimal && (props.OptimalTilingFeatures&features) == features {
			return format
		}
	}

	return core1_0.FormatUndefined
}

// FindDepthFormat selects an optimal-tiling depth attachment format from the
// commonly supported candidates.
func FindDepthFormat(ctx Context) core1_0.Format {
	return FindSupportedFormat(ctx,
		[]core1_0.Format{
			core1_0.FormatD32SignedFloat,
			core1_0.FormatD32SignedFloatS8UnsignedInt,
			core1_0.FormatD24UnsignedNormalizedS8UnsignedInt,
		},
		core1_0.ImageTilingOptimal,
		core1_0.FormatFeatureDepthStencilAttachment)
}

// HasStencilComponent reports whether format carries a stencil aspect.
func HasStencilComponent(format core1_0.Format) bool {
	return format == core1_0.FormatD32SignedFloatS8UnsignedInt ||
		format == core1_0.FormatD24UnsignedNormalizedS8UnsignedInt
}
