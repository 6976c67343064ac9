// Package irq builds and loads the Interrupt Descriptor Table, drives the
// 8259A PIC pair and dispatches CPU exceptions and hardware IRQs to
// registered handlers.
package irq

import "github.com/nyx-os/nyx/kernel/kfmt/early"

// Registers is a snapshot of the general-purpose registers saved by an
// interrupt entry trampoline before it tail-calls Dispatch.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// Frame is the portion of the stack that the CPU itself pushes on interrupt
// entry and that iretq consumes on return. This kernel never changes
// privilege level on interrupt entry (no user-mode, per Non-goals), so the
// CPU does not push SS/RSP and neither does the trampoline.
type Frame struct {
	RIP    uint64
	CS     uint64
	RFlags uint64
}

// Context is passed to every handler. Its layout is bit-exact with what the
// assembly entry trampolines construct on the stack: Regs, then the vector
// number, then the CPU-provided error code (zero for vectors that don't push
// one), then the iretq Frame.
type Context struct {
	Regs      Registers
	Vector    uint64
	ErrorCode uint64
	Frame     Frame
}

// Dump prints the context to the active console, used when reporting a
// fatal CPU exception.
func (c *Context) Dump() {
	early.Printf("RAX = %16x RBX = %16x\n", c.Regs.RAX, c.Regs.RBX)
	early.Printf("RCX = %16x RDX = %16x\n", c.Regs.RCX, c.Regs.RDX)
	early.Printf("RSI = %16x RDI = %16x\n", c.Regs.RSI, c.Regs.RDI)
	early.Printf("RBP = %16x\n", c.Regs.RBP)
	early.Printf("R8  = %16x R9  = %16x\n", c.Regs.R8, c.Regs.R9)
	early.Printf("R10 = %16x R11 = %16x\n", c.Regs.R10, c.Regs.R11)
	early.Printf("R12 = %16x R13 = %16x\n", c.Regs.R12, c.Regs.R13)
	early.Printf("R14 = %16x R15 = %16x\n", c.Regs.R14, c.Regs.R15)
	early.Printf("RIP = %16x CS  = %16x\n", c.Frame.RIP, c.Frame.CS)
	early.Printf("RFL = %16x\n", c.Frame.RFlags)
}

// Vector identifies an IDT slot.
type Vector uint8

// CPU exception vectors fixed by the Intel architecture (0x00-0x1F).
const (
	DivideByZero       Vector = 0
	Debug              Vector = 1
	NMI                Vector = 2
	Breakpoint         Vector = 3
	Overflow           Vector = 4
	BoundRangeExceeded Vector = 5
	InvalidOpcode      Vector = 6
	DeviceNotAvailable Vector = 7
	DoubleFault        Vector = 8
	InvalidTSS         Vector = 10
	SegmentNotPresent  Vector = 11
	StackSegmentFault  Vector = 12
	GPFException       Vector = 13
	PageFaultException Vector = 14

	FloatingPointException     Vector = 16
	AlignmentCheck             Vector = 17
	MachineCheck               Vector = 18
	SIMDFloatingPointException Vector = 19
)

// Vectors that carry a CPU-pushed error code. Every other vector gets a
// zero placeholder pushed in its place by the entry trampoline, keeping the
// Context layout uniform across all vectors.
var vectorsWithErrorCode = map[Vector]bool{
	DoubleFault:        true,
	InvalidTSS:         true,
	SegmentNotPresent:  true,
	StackSegmentFault:  true,
	GPFException:       true,
	PageFaultException: true,
	AlignmentCheck:     true,
}

// HasErrorCode reports whether the CPU pushes a hardware error code for this
// vector.
func (v Vector) HasErrorCode() bool {
	return vectorsWithErrorCode[v]
}

// Hardware IRQ vector assignments after PIC remapping (§4.3).
const (
	TimerVector    Vector = 0x20
	KeyboardVector Vector = 0x21

	// SelfTestVector is raised by software immediately after the IDT is
	// loaded to confirm that dispatch is wired up correctly.
	SelfTestVector Vector = 0x80
)
