package vkimage

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// FindMemoryType returns the index of the first device memory type whose bit
// is set in typeBits and whose property flags contain all of required.
// Returns ErrNoSuitableMemoryType when no type matches; callers are expected
// to request property combinations the device can satisfy.
func FindMemoryType(memProperties *core1_0.PhysicalDeviceMemoryProperties, typeBits uint32, required core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range memProperties.MemoryTypes {
		typeBit := uint32(1 << i)

		if (typeBits&typeBit) != 0 && (memoryType.PropertyFlags&required) == required {
			return i, nil
		}
	}

	return 0, errors.Wrapf(ErrNoSuitableMemoryType, "type bits %#x, properties %s", typeBits, required)
}
