package vmm

import "github.com/nyx-os/nyx/kernel/cpu"

// flushTLBEntry flushes the local TLB entry for a particular virtual
// address via invlpg. A var so tests can override it without touching the
// real CPU.
var flushTLBEntry = cpu.FlushTLBEntry
