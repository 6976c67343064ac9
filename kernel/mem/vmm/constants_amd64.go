package vmm

import "math"

const (
	// pageLevels is the number of page table levels walked on amd64 (P4,
	// P3, P2, P1).
	pageLevels = 4

	// ptePhysPageMask extracts the physical frame address (bits 12-51)
	// encoded in a page table entry.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// tempMappingAddr is a reserved virtual page used for temporary
	// single-frame mappings, e.g. to zero a freshly allocated page table
	// before installing its recursive address. It uses table indices
	// 510, 511, 511, 511 so the mapping never collides with the
	// recursive P4 entry at index 511,511,511,511.
	tempMappingAddr = uintptr(0xffffff7ffffff000)

	// higherHalfBase is the start of the linear physical-memory mapping
	// window. Physical address p is reachable at higherHalfBase + p.
	higherHalfBase = uintptr(0xFFFF_8000_0000_0000)
)

var (
	// pdtVirtualAddr is the virtual address that, thanks to the
	// recursive P4 self-mapping, aliases the active L4 table: setting
	// every page-level index bit to 1 makes the MMU fold back onto the
	// P4 table at every level of the walk.
	pdtVirtualAddr = uintptr(math.MaxUint64 &^ ((1 << 12) - 1))

	// pageLevelBits is the number of virtual address bits consumed by
	// each page level; 9 bits select one of 512 entries per level.
	pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

	// pageLevelShifts is the bit offset of each page level's index field
	// within a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

// PageTableEntryFlag describes a flag that can be applied to a page table
// entry.
type PageTableEntryFlag uintptr

// Page table entry flags, matching the bit layout mandated by the amd64 MMU.
const (
	FlagPresent PageTableEntryFlag = 1 << iota
	FlagRW
	FlagUserAccessible
	FlagWriteThroughCaching
	FlagDoNotCache
	FlagAccessed
	FlagDirty
	FlagHugePage
	FlagGlobal

	// FlagNoExecute occupies bit 63 of the entry.
	FlagNoExecute = 1 << 63
)
