// Package vmm implements the kernel's virtual memory manager: a 4-level
// amd64 page table mapper built on top of the recursive self-mapping
// installed by the boot trampoline, backed by the physical frame allocator
// in kernel/mem/pmm.
package vmm

import (
	"github.com/nyx-os/nyx/kernel"
	"github.com/nyx-os/nyx/kernel/mem/pmm"
)

// Init prepares the virtual memory manager for use. The page tables
// themselves are already active by the time this runs (the boot trampoline
// installs the initial recursively-mapped P4); Init exists as the single
// place future setup (e.g. validating the recursive mapping) would be added,
// mirroring FA.init and IX.init in the boot sequence.
func Init() *kernel.Error {
	return nil
}

// Map pulls a fresh frame from the system frame allocator and maps it at
// virtual address addr with the given flags, returning the backing frame.
func Map(addr uintptr, flags PageTableEntryFlag) (pmm.Frame, *kernel.Error) {
	return MapAddr(addr, flags, pmm.AllocFrame)
}

// IdentityMapAddr identity-maps the frame containing addr (phys == virt)
// using the system frame allocator for any page tables that need creating.
func IdentityMapAddr(addr uintptr, flags PageTableEntryFlag) *kernel.Error {
	return IdentityMap(addr, flags, pmm.AllocFrame)
}

// KernToPhys converts an address in the higher-half linear physical-memory
// mapping window to the physical address it represents. Purely arithmetic;
// it does not consult the page tables.
func KernToPhys(v uintptr) uintptr {
	return v - higherHalfBase
}

// PhysToKern converts a physical address to its corresponding address in the
// higher-half linear physical-memory mapping window. Purely arithmetic; it
// does not consult the page tables.
func PhysToKern(p uintptr) uintptr {
	return p + higherHalfBase
}
