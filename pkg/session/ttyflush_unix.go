//go:build !windows
// +build !windows

package session

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// flushTTYInput best-effort flushes any pending unread input bytes queued for
// the controlling terminal (e.g. terminal integration replies like OSC/DSR
// that would otherwise be consumed as "typed characters" by the remote shell).
//
// Never returns an error; callers treat this as an opportunistic hygiene step
// right before starting an interactive PTY session.
func flushTTYInput() {
	tty, err := os.OpenFile("/dev/tty", os.O_RDONLY, 0)
	if err != nil {
		return
	}
	defer func() { _ = tty.Close() }()

	fd := int(tty.Fd())
	if fd < 0 {
		return
	}

	// tcflush(fd, TCIFLUSH) via ioctl(TCFLSH). TCFLSH is 0x540B on both Linux
	// (asm-generic/ioctls.h) and Darwin (sys/ttycom.h); TCIFLUSH is 0.
	const TCFLSH = 0x540B
	_, _, _ = unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(TCFLSH), uintptr(unix.TCIFLUSH))

	// Short non-blocking drain window to catch reply bursts that arrive right
	// after the flush.
	_ = unix.SetNonblock(fd, true)
	defer func() { _ = unix.SetNonblock(fd, false) }()

	deadline := time.Now().Add(200 * time.Millisecond)
	buf := make([]byte, 512)
	for time.Now().Before(deadline) {
		n, rerr := unix.Read(fd, buf)
		if n > 0 {
			deadline = time.Now().Add(75 * time.Millisecond)
			continue
		}
		if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
			break
		}
		break
	}
}
