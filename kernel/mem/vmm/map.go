package vmm

import (
	"unsafe"

	"github.com/nyx-os/nyx/kernel"
	"github.com/nyx-os/nyx/kernel/mem"
	"github.com/nyx-os/nyx/kernel/mem/pmm"
)

var (
	// nextAddrFn is overridden by tests to intercept the virtual address
	// of a freshly created page table before it is zeroed. The kernel
	// build inlines this away.
	nextAddrFn = func(entryAddr uintptr) uintptr {
		return entryAddr
	}

	// flushTLBEntryFn is overridden by tests; calling the real
	// flushTLBEntry outside ring 0 would fault.
	flushTLBEntryFn = flushTLBEntry

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported by map_to/unmap"}
)

// MapTo establishes a mapping between a virtual page and a physical frame
// using the currently active page table hierarchy, installing intermediate
// tables on demand via allocFn. The target L1 entry must be unused;
// violating that precondition is an invariant breach reported via err.
func MapTo(page Page, frame pmm.Frame, flags PageTableEntryFlag, allocFn pmm.FrameAllocatorFn) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagPresent) {
				err = &kernel.Error{Module: "vmm", Message: "target page table entry is already in use"}
				return false
			}

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		// Next-level table does not exist yet: allocate a frame for
		// it, install it, then zero its contents through the
		// recursive address it has just become reachable at.
		if !pte.HasFlags(FlagPresent) {
			var newTableFrame pmm.Frame
			newTableFrame, err = allocFn()
			if err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			nextTableAddr := uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel+1]
			mem.Memset(nextAddrFn(nextTableAddr), 0, mem.PageSize)
		}

		return true
	})

	return err
}

// MapTemporary establishes a temporary RW mapping of a physical frame at a
// fixed reserved virtual address, overwriting any previous occupant. MapAddr
// uses it to zero a freshly allocated data frame through this scratch slot
// before the frame is mapped at its real address, so callers never observe
// another page's leftover contents. It is exempt from MapTo's unused-entry
// precondition since the slot is reused by design.
func MapTemporary(frame pmm.Frame, allocFn pmm.FrameAllocatorFn) (Page, *kernel.Error) {
	page := PageFromAddress(tempMappingAddr)
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | FlagRW)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		if !pte.HasFlags(FlagPresent) {
			var newTableFrame pmm.Frame
			newTableFrame, err = allocFn()
			if err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW)

			nextTableAddr := uintptr(unsafe.Pointer(pte)) << pageLevelBits[pteLevel+1]
			mem.Memset(nextAddrFn(nextTableAddr), 0, mem.PageSize)
		}

		return true
	})

	if err != nil {
		return 0, err
	}
	return page, nil
}

// Unmap removes a mapping previously installed via MapTo, Map or
// MapTemporary by zeroing its L1 entry. Huge pages are
// not supported: encountering one mid-walk is fatal.
func Unmap(page Page) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if pteLevel == pageLevels-1 {
			if !pte.HasFlags(FlagPresent) {
				err = ErrInvalidMapping
				return false
			}
			*pte = 0
			flushTLBEntryFn(page.Address())
			return true
		}

		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	return err
}

// IdentityMap maps the physical frame containing addr to the virtual page at
// the same address (phys == virt), a convenience used for early boot
// mappings such as the framebuffer or the multiboot info blob.
func IdentityMap(addr uintptr, flags PageTableEntryFlag, allocFn pmm.FrameAllocatorFn) *kernel.Error {
	frame := pmm.FrameFromAddress(addr)
	return MapTo(PageFromAddress(addr), frame, flags, allocFn)
}

// MapAddr maps a fresh frame (pulled from allocFn) at the virtual address
// addr, returning the frame that backs it. The frame is zeroed through a
// temporary mapping before being installed at addr.
func MapAddr(addr uintptr, flags PageTableEntryFlag, allocFn pmm.FrameAllocatorFn) (pmm.Frame, *kernel.Error) {
	frame, err := allocFn()
	if err != nil {
		return pmm.InvalidFrame, err
	}

	tmpPage, err := MapTemporary(frame, allocFn)
	if err != nil {
		return pmm.InvalidFrame, err
	}
	mem.Memset(tmpPage.Address(), 0, mem.PageSize)

	if err := MapTo(PageFromAddress(addr), frame, flags, allocFn); err != nil {
		return pmm.InvalidFrame, err
	}

	return frame, nil
}
