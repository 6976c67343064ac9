package vmm

import (
	"github.com/nyx-os/nyx/kernel"
	"github.com/nyx-os/nyx/kernel/mem"
)

// Translate returns the physical address that corresponds to the supplied
// virtual address, or ErrInvalidMapping if the address is not currently
// mapped. Huge page entries at L3 (1GiB) and L2 (2MiB) are honored by
// synthesizing the physical address from the huge frame's base and the bits
// of the virtual address that the huge mapping does not consume.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, level, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	if pte.HasFlags(FlagHugePage) {
		hugeOffsetMask := uintptr(1)<<pageLevelShifts[level] - 1
		return pte.Frame().Address() + (virtAddr & hugeOffsetMask), nil
	}

	return pte.Frame().Address() + (virtAddr & (uintptr(mem.PageSize) - 1)), nil
}
