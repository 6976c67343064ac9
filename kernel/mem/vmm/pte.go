package vmm

import (
	"github.com/nyx-os/nyx/kernel"
	"github.com/nyx-os/nyx/kernel/mem"
	"github.com/nyx-os/nyx/kernel/mem/pmm"
)

// ErrInvalidMapping is returned when trying to look up a virtual memory
// address that is not currently mapped.
var ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

// pageTableEntry describes a single 64-bit page table entry. The entry
// encodes a physical frame address together with a set of flags; the layout
// is architecture-dependent.
type pageTableEntry uintptr

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) == uintptr(flags)
}

// HasAnyFlag returns true if this entry has at least one of the input flags set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uintptr(pte) & uintptr(flags)) != 0
}

// SetFlags sets the input list of flags on the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) | uintptr(flags))
}

// ClearFlags unsets the input list of flags on the page table entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uintptr(*pte) &^ uintptr(flags))
}

// Frame returns the physical page frame that this page table entry points to.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame((uintptr(pte) & ptePhysPageMask) >> mem.PageShift)
}

// SetFrame updates the page table entry to point to the given physical frame.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = pageTableEntry((uintptr(*pte) &^ ptePhysPageMask) | frame.Address())
}

// pteForAddress returns the page table entry that resolves the given virtual
// address, along with the page level (0 = L4) it was found at. The walk
// stops as soon as it reaches a huge page entry (L3 or L2) or the final L1
// entry; it returns ErrInvalidMapping if any table along the way is not
// present.
func pteForAddress(virtAddr uintptr) (*pageTableEntry, uint8, *kernel.Error) {
	var (
		err        *kernel.Error
		entry      *pageTableEntry
		foundLevel uint8
	)

	walk(virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			entry = nil
			err = ErrInvalidMapping
			return false
		}

		entry = pte
		foundLevel = pteLevel
		return !pte.HasFlags(FlagHugePage) && pteLevel < pageLevels-1
	})

	return entry, foundLevel, err
}
