//go:build !linux

package engine

import "os"

// datasync falls back to a full Sync on platforms without a separate
// data-only sync syscall wired up here.
func datasync(f *os.File) error {
	return f.Sync()
}
