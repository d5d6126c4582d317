package vkimage

import "github.com/cockroachdb/errors"

// Sentinel errors for caller-recoverable failures. Precondition violations
// that indicate a caller bug (such as a zero layer count at construction)
// panic instead.
var (
	// ErrInvalidExtent is returned when an image extent has zero depth.
	ErrInvalidExtent = errors.New("image extent depth must be at least 1")

	// ErrInvalidLayerCount is returned when a view is requested over zero
	// array layers.
	ErrInvalidLayerCount = errors.New("image view layer count must be at least 1")

	// ErrUnsupportedTransition is returned by TransitionLayout for any
	// layout pair outside the supported transition table.
	ErrUnsupportedTransition = errors.New("unsupported image layout transition")

	// ErrNoSuitableMemoryType is returned when no device memory type
	// satisfies both the type bitmask and the requested property flags.
	ErrNoSuitableMemoryType = errors.New("no suitable memory type")
)
