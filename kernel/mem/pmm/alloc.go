package pmm

import "github.com/nyx-os/nyx/kernel"

// FrameAllocatorFn allocates a single physical frame. It is implemented by
// the boot-time allocator in kernel/mem/pmm/allocator and consumed by the
// virtual memory manager whenever a fresh page table needs backing storage.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// allocFn holds the system-wide frame allocator registered via
// SetFrameAllocator. It starts out nil; callers that invoke AllocFrame before
// an allocator has been installed will panic with a nil pointer dereference,
// which is the expected failure mode this early in boot.
var allocFn FrameAllocatorFn

// SetFrameAllocator registers the frame allocator that AllocFrame will
// delegate to. The kernel boot sequence installs the boot memory allocator
// here before the virtual memory manager is initialized.
func SetFrameAllocator(fn FrameAllocatorFn) {
	allocFn = fn
}

// AllocFrame allocates a single physical frame using the registered
// allocator.
func AllocFrame() (Frame, *kernel.Error) {
	return allocFn()
}
