// Package keyboard buffers raw PS/2 scan codes delivered by the interrupt
// subsystem on IRQ1 so callers outside interrupt context can drain them at
// their own pace.
package keyboard

import "github.com/nyx-os/nyx/kernel/irq"

// bufferSize is the ring's fixed capacity. A scan code arriving when the
// ring is full overwrites the oldest unread one; this kernel has no
// blocking or dynamic allocation to fall back on (no user-mode, no heap).
const bufferSize = 64

var (
	ring      [bufferSize]byte
	readIdx   int
	writeIdx  int
	available int
)

// Init registers the ring buffer as the sink for scan codes the irq package
// reads off port 0x60 whenever IRQ1 fires.
func Init() {
	irq.SetScanCodeSink(push)
}

// push is invoked from within the keyboard interrupt handler; it must not
// block and must not allocate.
func push(code byte) {
	ring[writeIdx] = code
	writeIdx = (writeIdx + 1) % bufferSize

	if available == bufferSize {
		// Buffer full: drop the oldest unread byte instead of blocking.
		readIdx = (readIdx + 1) % bufferSize
		return
	}
	available++
}

// ReadScanCode returns the oldest buffered scan code, if any.
func ReadScanCode() (byte, bool) {
	if available == 0 {
		return 0, false
	}

	code := ring[readIdx]
	readIdx = (readIdx + 1) % bufferSize
	available--
	return code, true
}
