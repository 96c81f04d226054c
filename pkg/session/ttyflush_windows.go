//go:build windows
// +build windows

package session

// flushTTYInput is a no-op on Windows; console input queues are managed by
// the console host and the interactive path does not use raw /dev/tty there.
func flushTTYInput() {
	// no-op
}
