// Package allocator implements the kernel's boot-time physical frame
// allocator along with the package-level wiring that exposes it to the rest
// of the kernel via pmm.SetFrameAllocator.
package allocator

import (
	"github.com/nyx-os/nyx/kernel"
	"github.com/nyx-os/nyx/kernel/hal/multiboot"
	"github.com/nyx-os/nyx/kernel/kfmt/early"
	"github.com/nyx-os/nyx/kernel/mem"
	"github.com/nyx-os/nyx/kernel/mem/pmm"
)

var (
	// EarlyAllocator is the sole physical frame allocator used by this
	// kernel. There is no bitmap or buddy allocator to hand frames over
	// to once boot completes: the allocator never reclaims, by design.
	EarlyAllocator bootMemAllocator

	errBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// bootMemAllocator hands out physical frames from the memory regions
// reported by the bootloader, skipping the kernel image and the Multiboot2
// information blob. Allocations only ever move forward: once a frame has
// been returned it is never returned again, and deallocation is not
// supported.
type bootMemAllocator struct {
	initialized bool

	// kernelStart/kernelEnd mark the frame range occupied by the kernel
	// image (inclusive). hasKernelSpan is false until Init is called with
	// a non-empty span.
	kernelStart, kernelEnd pmm.Frame
	hasKernelSpan          bool

	// multibootStart/multibootEnd mark the frame range occupied by the
	// Multiboot2 information blob (inclusive). hasMultibootSpan mirrors
	// hasKernelSpan.
	multibootStart, multibootEnd pmm.Frame
	hasMultibootSpan              bool

	// nextFreeFrame is the next candidate frame to hand out.
	nextFreeFrame pmm.Frame

	// curAreaValid indicates whether curArea holds a usable area.
	curAreaValid bool
	curArea      multiboot.MemoryMapEntry

	lastAllocFrame pmm.Frame
}

// Init configures the allocator with the kernel image and Multiboot2 info
// spans that must be excluded from allocation, and prints the system memory
// map to the active console. kernelEnd and multibootEnd are exclusive upper
// bounds, matching the (addr, size) convention used by the ELF section
// headers and the Multiboot2 info tag itself.
func Init(kernelStart, kernelEnd, multibootStart, multibootEnd uintptr) {
	EarlyAllocator.init(kernelStart, kernelEnd, multibootStart, multibootEnd)
	EarlyAllocator.printMemoryMap()
	pmm.SetFrameAllocator(EarlyAllocator.AllocFrame)
}

func (alloc *bootMemAllocator) init(kernelStart, kernelEnd, multibootStart, multibootEnd uintptr) {
	alloc.kernelStart = pmm.FrameFromAddress(kernelStart)
	alloc.multibootStart = pmm.FrameFromAddress(multibootStart)

	// kernelEnd/multibootEnd are exclusive; the last frame they occupy is
	// the frame containing the byte immediately before the bound.
	alloc.hasKernelSpan = kernelEnd > kernelStart
	if alloc.hasKernelSpan {
		alloc.kernelEnd = pmm.FrameFromAddress(kernelEnd - 1)
	}
	alloc.hasMultibootSpan = multibootEnd > multibootStart
	if alloc.hasMultibootSpan {
		alloc.multibootEnd = pmm.FrameFromAddress(multibootEnd - 1)
	}
	alloc.initialized = true

	alloc.chooseNextArea()
}

func (alloc *bootMemAllocator) printMemoryMap() {
	early.Printf("[boot_mem_alloc] system memory map:\n")
	var totalFree mem.Size
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		early.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())
		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	early.Printf("[boot_mem_alloc] free memory: %dKb\n", uint64(totalFree/mem.Kb))
}

// chooseNextArea selects the usable memory area with the smallest base
// address whose last frame is still >= nextFreeFrame, fast-forwarding
// nextFreeFrame to the area's start if it currently lies before it.
func (alloc *bootMemAllocator) chooseNextArea() {
	alloc.curAreaValid = false

	var bestBase uint64
	haveBest := false

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		lastFrame, ok := lastWholeFrame(region)
		if !ok || lastFrame < alloc.nextFreeFrame {
			return true
		}

		if !haveBest || region.PhysAddress < bestBase {
			haveBest = true
			bestBase = region.PhysAddress
			alloc.curArea = *region
			alloc.curAreaValid = true
		}

		return true
	})

	if alloc.curAreaValid {
		startFrame := pmm.FrameFromAddress(uintptr(alloc.curArea.PhysAddress))
		if alloc.nextFreeFrame < startFrame {
			alloc.nextFreeFrame = startFrame
		}
	}
}

// lastWholeFrame returns the last frame that lies entirely inside area; a
// trailing partial frame is not handed out. ok is false when the area ends
// before the first frame boundary.
func lastWholeFrame(area *multiboot.MemoryMapEntry) (pmm.Frame, bool) {
	end := pmm.FrameFromAddress(uintptr(area.PhysAddress + area.Length))
	if end == 0 {
		return 0, false
	}
	return end - 1, true
}

// AllocFrame returns the next free frame, skipping frames that belong to the
// kernel image or the Multiboot2 information blob, or an error if no usable
// region contains an unreserved frame.
func (alloc *bootMemAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	if !alloc.initialized {
		alloc.init(0, 0, 0, 0)
	}

	for {
		if !alloc.curAreaValid {
			return pmm.InvalidFrame, errBootAllocOutOfMemory
		}

		candidate := alloc.nextFreeFrame
		curAreaLastFrame, _ := lastWholeFrame(&alloc.curArea)

		switch {
		case candidate > curAreaLastFrame:
			alloc.chooseNextArea()
		case alloc.hasKernelSpan && candidate >= alloc.kernelStart && candidate <= alloc.kernelEnd:
			alloc.nextFreeFrame = alloc.kernelEnd + 1
		case alloc.hasMultibootSpan && candidate >= alloc.multibootStart && candidate <= alloc.multibootEnd:
			alloc.nextFreeFrame = alloc.multibootEnd + 1
		default:
			alloc.nextFreeFrame++
			alloc.lastAllocFrame = candidate
			return candidate, nil
		}
	}
}

// DeallocFrame is defined for interface completeness but is intentionally
// unimplemented: the boot allocator never reclaims frames.
func (alloc *bootMemAllocator) DeallocFrame(_ pmm.Frame) *kernel.Error {
	return &kernel.Error{Module: "boot_mem_alloc", Message: "deallocation is not supported"}
}
