// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"math"

	"github.com/nyx-os/nyx/kernel/mem"
)

// Frame describes a physical memory page index. Frames are ordered; frame N
// starts at physical address N * mem.PageSize.
type Frame uint64

const (
	// InvalidFrame is returned by page allocators when they fail to
	// reserve a requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical address of this frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress returns the Frame that contains the given physical
// address. Non-page-aligned addresses are rounded down to the frame that
// contains them.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(physAddr >> mem.PageShift)
}
