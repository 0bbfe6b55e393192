package lock

import (
	"os"
	"syscall"
)

// Prober answers whether a process id belongs to a live process. The
// signal-based default is platform-dependent, so the core logic depends on
// this interface and tests substitute a fake.
type Prober interface {
	Alive(pid int) bool
}

// SignalProber probes with signal 0, which checks process existence without
// delivering a signal.
type SignalProber struct{}

// Alive reports whether pid denotes a live process
func (SignalProber) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return true
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
