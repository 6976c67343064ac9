package vmm

import (
	"unsafe"

	"github.com/nyx-os/nyx/kernel/mem"
)

// ptePtrFn returns a pointer to the supplied entry address. It is overridden
// by tests so that walk (and Translate) can run against a mock page table
// laid out in regular heap memory. In the kernel build this is inlined away.
var ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
	return unsafe.Pointer(entryAddr)
}

// pageTableWalker is invoked by walk for the page table entry that
// corresponds to each page level, starting at L4 (level 0) down to L1 (level
// pageLevels-1). Returning false aborts the walk.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address using the
// recursively-mapped active page tables, invoking walkFn with the entry at
// each level.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level                            uint8
		tableAddr, entryAddr, entryIndex uintptr
	)

	// tableAddr starts out as the recursively-mapped virtual address of
	// the active L4 table.
	for level, tableAddr = 0, pdtVirtualAddr; level < pageLevels; level, tableAddr = level+1, entryAddr {
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		entryAddr = tableAddr + (entryIndex << mem.PointerShift)

		if !walkFn(level, (*pageTableEntry)(ptePtrFn(entryAddr))) {
			return
		}

		// Shifting left by this level's index width adds one more
		// layer of recursive indirection, yielding the virtual
		// address of the table that the entry at entryAddr points to.
		entryAddr <<= pageLevelBits[level]
	}
}
