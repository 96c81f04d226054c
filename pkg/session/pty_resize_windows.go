//go:build windows
// +build windows

package session

import "os"

// startPTYResizeWatcher is a no-op on Windows: there is no SIGWINCH to watch,
// and referencing it anywhere in a Windows build fails compilation. Initial
// PTY sizing is handled at session start on a best-effort basis.
func startPTYResizeWatcher(_ *os.File) {
	// no-op
}
