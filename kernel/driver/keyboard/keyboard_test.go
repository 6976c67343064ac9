package keyboard

import "testing"

func reset() {
	readIdx, writeIdx, available = 0, 0, 0
}

func TestPushAndReadScanCode(t *testing.T) {
	reset()

	push(0x1E)
	push(0x9E)

	if code, ok := ReadScanCode(); !ok || code != 0x1E {
		t.Fatalf("expected first scan code 0x1E; got 0x%x, ok=%v", code, ok)
	}
	if code, ok := ReadScanCode(); !ok || code != 0x9E {
		t.Fatalf("expected second scan code 0x9E; got 0x%x, ok=%v", code, ok)
	}
	if _, ok := ReadScanCode(); ok {
		t.Fatalf("expected empty ring to report no scan code")
	}
}

func TestPushOverwritesOldestWhenFull(t *testing.T) {
	reset()

	for i := 0; i < bufferSize; i++ {
		push(byte(i))
	}
	push(0xFF) // ring is full; must drop the oldest (0x00) instead of blocking

	code, ok := ReadScanCode()
	if !ok || code != 1 {
		t.Fatalf("expected oldest surviving scan code to be 1; got 0x%x, ok=%v", code, ok)
	}
}

func TestInitRegistersSink(t *testing.T) {
	reset()
	Init()
}
