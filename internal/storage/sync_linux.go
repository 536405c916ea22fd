//go:build linux

package storage

import (
	"os"

	"golang.org/x/sys/unix"
)

// fdatasync skips flushing file metadata that page writes never change.
func fdatasync(f *os.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
