package irq

import "unsafe"

// gateTypeInterrupt64 marks a gate as present, ring-0, 64-bit interrupt gate
// (0x8E): present=1, DPL=00, type=1110.
const gateTypeInterrupt64 = 0x8E

// kernelCodeSelector is the GDT selector for ring-0 code, installed by the
// boot-time GDT setup this module treats as an external collaborator.
const kernelCodeSelector = 0x08

// gate is a single 64-bit-mode IDT gate descriptor (16 bytes).
type gate struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

func (g *gate) set(handlerAddr uintptr, present bool) {
	*g = gate{}
	if !present {
		return
	}
	g.offsetLow = uint16(handlerAddr)
	g.offsetMid = uint16(handlerAddr >> 16)
	g.offsetHigh = uint32(handlerAddr >> 32)
	g.selector = kernelCodeSelector
	g.typeAttr = gateTypeInterrupt64
}

// pseudoDescriptor is the 10-byte structure lidt expects: a 16-bit table
// limit (size in bytes, minus one) followed by the table's 64-bit base
// address.
type pseudoDescriptor struct {
	limit uint16
	base  uint64
}

var (
	idt       [256]gate
	idtPtr    pseudoDescriptor
	dispatchers [256]Handler
)

// Handler processes an interrupt or exception. It is invoked with
// interrupts disabled and must not block.
type Handler func(ctx *Context)

// trampolineAddr is overridden by tests; the real implementation returns the
// address of the assembly entry stub for vector, or 0 if none exists.
var trampolineAddr = func(vector Vector) uintptr {
	return trampolineTable(vector)
}

// loadIDTFn invokes lidt with the pseudo-descriptor. Overridden by tests.
var loadIDTFn = loadIDT

// loadIDT executes `lidt` against idtPtr. Implemented in assembly.
func loadIDT(ptr *pseudoDescriptor)

// trampolineTable returns the address of the compiled-in assembly entry
// stub for vector, or 0 if this build does not carry one (every vector this
// kernel actually dispatches on has one; all others are left absent so
// their gate stays non-present). Implemented in assembly.
func trampolineTable(vector Vector) uintptr

// Install registers handler to run whenever vector fires and marks the
// corresponding IDT gate present, pointing at the assembly trampoline for
// that vector. Installing a handler for a vector with no compiled-in
// trampoline is a programming error and is silently ignored, matching the
// "if non-null" language of the construction contract.
func Install(vector Vector, handler Handler) {
	addr := trampolineAddr(vector)
	if addr == 0 {
		return
	}

	dispatchers[vector] = handler
	idt[vector].set(addr, true)
}

// Load builds the pseudo-descriptor for the current IDT contents and
// installs it via lidt.
func Load() {
	idtPtr.limit = uint16(unsafe.Sizeof(idt) - 1)
	idtPtr.base = uint64(uintptr(unsafe.Pointer(&idt[0])))
	loadIDTFn(&idtPtr)
}

// dispatch is the single entrypoint every assembly trampoline tail-calls
// into (by symbol name, Plan 9 asm convention: ·dispatch(SB)).
func dispatch(ctx *Context) {
	Dispatch(ctx)
}
