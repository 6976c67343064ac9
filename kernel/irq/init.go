package irq

import (
	"github.com/nyx-os/nyx/kernel"
	"github.com/nyx-os/nyx/kernel/cpu"
	"github.com/nyx-os/nyx/kernel/irq/pic"
	"github.com/nyx-os/nyx/kernel/kfmt/early"
)

// State describes where the interrupt subsystem is in its one-way
// initialization sequence (§4.3's state machine).
type State uint8

const (
	Disabled State = iota
	PICInitialized
	IDTLoaded
	SelfTested
	Enabled
)

var state State

// errSelfTestFailed is raised if the software-triggered int 0x80 does not
// reach the dispatcher, indicating the IDT was not installed correctly.
var errSelfTestFailed = &kernel.Error{Module: "irq", Message: "self-test vector did not dispatch"}

// exceptionVectors lists every CPU exception vector idt_amd64.s carries a
// compiled entry trampoline for (0x09 and 0x0F are reserved/unassigned and
// have no stub).
var exceptionVectors = []Vector{
	DivideByZero, Debug, NMI, Breakpoint, Overflow, BoundRangeExceeded,
	InvalidOpcode, DeviceNotAvailable, DoubleFault, InvalidTSS,
	SegmentNotPresent, StackSegmentFault, GPFException, PageFaultException,
	FloatingPointException, AlignmentCheck, MachineCheck, SIMDFloatingPointException,
}

// raiseSelfTest executes `int 0x80`. Implemented in assembly.
func raiseSelfTest()

// Init programs the PIC pair, builds and loads the IDT, verifies dispatch
// with a software self-test, then enables maskable interrupts. Transitions
// are one-way: Disabled -> PIC-initialized -> IDT-loaded -> Self-tested ->
// Enabled.
func Init() *kernel.Error {
	pic.Init(pic.DefaultMasterOffset, pic.DefaultSlaveOffset)
	state = PICInitialized

	for _, vector := range exceptionVectors {
		Install(vector, exceptionHandler)
	}
	Install(TimerVector, timerHandler)
	Install(KeyboardVector, keyboardHandler)
	Install(SelfTestVector, selfTestHandler)

	Load()
	state = IDTLoaded

	selfTestFired = false
	raiseSelfTest()
	if !selfTestFired {
		return errSelfTestFailed
	}
	state = SelfTested

	cpu.EnableInterrupts()
	state = Enabled

	early.Printf("[irq] interrupts enabled, PIC offsets 0x%x/0x%x\n", uint64(pic.DefaultMasterOffset), uint64(pic.DefaultSlaveOffset))
	return nil
}

// Current returns the current state of the interrupt subsystem.
func Current() State {
	return state
}
