// Package multiboot decodes the Multiboot2 information blob handed to the
// kernel by the bootloader: the memory map tag, the ELF section headers tag
// (used to compute the kernel image span) and the framebuffer tag. The blob
// is treated as read-only, bit-exact foreign data; every accessor here walks
// it via unsafe pointer arithmetic rather than copying it.
package multiboot

import "unsafe"

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

// info describes the multiboot info section header.
type info struct {
	// Total size of multiboot info section.
	totalSize uint32

	// Always set to zero; reserved for future use
	reserved uint32
}

// tagHeader describes the header the preceedes each tag.
type tagHeader struct {
	// The type of the tag
	tagType tagType

	// The size of the tag including the header but *not* including any
	// padding. According to the spec, each tag starts at a 8-byte aligned
	// address.
	size uint32
}

// mmapHeader describes the header for a memory map specification.
type mmapHeader struct {
	// The size of each entry.
	entrySize uint32

	// The version of the entries that follow.
	entryVersion uint32
}

// elfSectionsHeader describes the header that precedes the ELF section
// header array in a type-9 tag.
type elfSectionsHeader struct {
	numSections uint32
	entrySize   uint32
	shndx       uint32
}

// elfSection64 mirrors a 64-bit ELF section header as embedded in the
// Multiboot2 ELF-sections tag.
type elfSection64 struct {
	nameIndex uint32
	sectionType uint32
	flags     uint64
	addr      uint64
	offset    uint64
	size      uint64
	link      uint32
	info      uint32
	addrAlign uint64
	entSize   uint64
}

const (
	elfSectionFlagAllocated = uint64(1 << 1)
)

// FramebufferType defines the type of the initialized framebuffer.
type FramebufferType uint8

const (
	// FrameBufferTypeIndexed specifies a 256-color palette.
	FrameBufferTypeIndexed FramebufferType = iota

	// FramebufferTypeRGB specifies direct RGB mode.
	FramebufferTypeRGB

	// FramebufferTypeEGA specifies EGA text mode.
	FramebufferTypeEGA
)

// FramebufferInfo provides information about the initialized framebuffer.
type FramebufferInfo struct {
	// The framebuffer physical address.
	PhysAddr uint64

	// Row pitch in bytes.
	Pitch uint32

	// Width and height in pixels (or characters if Type = FramebufferTypeEGA)
	Width, Height uint32

	// Bits per pixel (non EGA modes only).
	Bpp uint8

	// Framebuffer type.
	Type FramebufferType
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String returns a human-readable label for a memory entry type, used when
// logging the system memory map.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemAcpiReclaimable:
		return "acpi reclaimable"
	case MemNvs:
		return "nvs"
	default:
		return "reserved"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

var (
	infoData uintptr
)

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// InfoSpan returns the physical address range occupied by the Multiboot2
// information blob itself, so callers can exclude it from the frame
// allocator the same way they exclude the kernel image.
func InfoSpan() (start, end uintptr) {
	hdr := (*info)(unsafe.Pointer(infoData))
	return infoData, infoData + uintptr(hdr.totalSize)
}

// Valid reports whether the Multiboot2 blob at the current info pointer
// carries a well-formed end tag (type 0, size 8) located at exactly
// total_size - 8, as required by the Multiboot2 specification.
func Valid() bool {
	hdr := (*info)(unsafe.Pointer(infoData))
	if hdr.totalSize < 16 {
		return false
	}

	endPtr := infoData + uintptr(hdr.totalSize-8)
	endTag := (*tagHeader)(unsafe.Pointer(endPtr))
	return endTag.tagType == tagMbSectionEnd && endTag.size == 8
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	// curPtr points to the memory map header (2 dwords long)
	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += 8

	var entry *MemoryMapEntry
	for curPtr != endPtr {
		entry = (*MemoryMapEntry)(unsafe.Pointer(curPtr))

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}

		curPtr += uintptr(ptrMapHeader.entrySize)
	}
}

// KernelSpan scans the ELF section headers tag and returns the lowest and
// highest+1 addresses among sections that were allocated into memory by the
// loader (SHF_ALLOC). These addresses bound the physical frames occupied by
// the running kernel image. If no ELF-sections tag is present, ok is false.
func KernelSpan() (start, end uintptr, ok bool) {
	curPtr, size := findTagByType(tagElfSymbols)
	if size == 0 {
		return 0, 0, false
	}

	hdr := (*elfSectionsHeader)(unsafe.Pointer(curPtr))
	sectionPtr := curPtr + unsafe.Sizeof(elfSectionsHeader{})

	var (
		haveAny         bool
		lowest, highest uint64
	)
	for i := uint32(0); i < hdr.numSections; i, sectionPtr = i+1, sectionPtr+uintptr(hdr.entrySize) {
		section := (*elfSection64)(unsafe.Pointer(sectionPtr))
		if section.flags&elfSectionFlagAllocated == 0 || section.size == 0 {
			continue
		}

		sectionEnd := section.addr + section.size
		if !haveAny || section.addr < lowest {
			lowest = section.addr
		}
		if !haveAny || sectionEnd > highest {
			highest = sectionEnd
		}
		haveAny = true
	}

	if !haveAny {
		return 0, 0, false
	}
	return uintptr(lowest), uintptr(highest), true
}

// GetFramebufferInfo returns information about the framebuffer initialized by the
// bootloader. This function returns nil if no framebuffer info is available.
func GetFramebufferInfo() *FramebufferInfo {
	var info *FramebufferInfo

	curPtr, size := findTagByType(tagFramebufferInfo)
	if size != 0 {
		info = (*FramebufferInfo)(unsafe.Pointer(curPtr))
	}

	return info
}

// findTagByType scans the multiboot info data looking for the start of of the
// specified type. It returns a pointer to the tag contents start offset and
// the content length exluding the tag header.
//
// If the tag is not present in the multiboot info, findTagByType will return
// back (0,0).
func findTagByType(tagType tagType) (uintptr, uint32) {
	var ptrTagHeader *tagHeader

	curPtr := infoData + 8
	for ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)); ptrTagHeader.tagType != tagMbSectionEnd; ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)) {
		if ptrTagHeader.tagType == tagType {
			return curPtr + 8, ptrTagHeader.size - 8
		}

		// Tags are aligned at 8-byte aligned addresses
		curPtr += uintptr(int32(ptrTagHeader.size+7) & ^7)
	}

	return 0, 0
}
