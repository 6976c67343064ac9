package irq

import (
	"github.com/nyx-os/nyx/kernel"
	"github.com/nyx-os/nyx/kernel/irq/pic"
	"github.com/nyx-os/nyx/kernel/kfmt/early"
)

// panicFn is overridden by tests; the real implementation halts the CPU.
var panicFn = kernel.Panic

var errUnhandledException = &kernel.Error{Module: "irq", Message: "unhandled CPU exception"}

// Dispatch routes an incoming interrupt to the handler registered via
// Install. CPU exception vectors (0x00-0x0F) always go through the default
// fatal handler regardless of whether a caller installed one; vectors with
// no installed handler fall through to the "unknown" branch. After routing,
// pic.Pair.SendEOI is notified unconditionally: it is a no-op for vectors
// that belong to neither controller (e.g. the 0x80 self-test).
func Dispatch(ctx *Context) {
	vector := Vector(ctx.Vector)

	switch {
	case vector <= 0x0F:
		exceptionHandler(ctx)
	case dispatchers[vector] != nil:
		dispatchers[vector](ctx)
	default:
		unknownVectorHandler(ctx)
	}

	pic.Pair.SendEOI(uint8(vector))
}

// exceptionHandler is the fixed handler for CPU exception vectors
// (0x00-0x0F): it logs the vector and error code and halts.
func exceptionHandler(ctx *Context) {
	early.Printf("[irq] CPU exception 0x%x, error code: 0x%x\n", ctx.Vector, ctx.ErrorCode)
	ctx.Dump()
	panicFn(errUnhandledException)
}

func unknownVectorHandler(ctx *Context) {
	early.Printf("[irq] unknown vector 0x%x\n", ctx.Vector)
	panicFn(errUnhandledException)
}

// selfTestFired is set by the default 0x80 handler installed in Init; the
// init routine polls it after raising int 0x80 to confirm dispatch works
// before enabling maskable interrupts.
var selfTestFired bool

func selfTestHandler(_ *Context) {
	early.Printf("[irq] self-test vector 0x80 dispatched successfully\n")
	selfTestFired = true
}

// timerHandler is the default IRQ0 body: acknowledged via the EOI that
// Dispatch always sends, no further work.
func timerHandler(_ *Context) {}

// keyboardHandler is the default IRQ1 body: read the pending scan code out
// of the keyboard controller's output buffer and forward it to whatever
// sink kernel/driver/keyboard has registered, if any.
func keyboardHandler(_ *Context) {
	deliverScanCode(inb(0x60))
}

// scanCodeSink receives raw scan codes read from the keyboard controller.
// Installed by kernel/driver/keyboard so this package does not itself need
// to know about scan-code buffering.
var scanCodeSink func(byte)

func deliverScanCode(code byte) {
	if scanCodeSink != nil {
		scanCodeSink(code)
	}
}

// SetScanCodeSink registers the function invoked with each scan code read
// from port 0x60 on IRQ1.
func SetScanCodeSink(sink func(byte)) {
	scanCodeSink = sink
}

// inb reads a single byte from the given I/O port. Implemented in assembly.
func inb(port uint16) byte
