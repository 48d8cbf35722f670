//go:build unix

// Package platform opens source files for archive creation without
// following symbolic links.
package platform

import (
	"errors"
	"os"
	"syscall"
)

// OpenRegular opens name under root for reading. It returns ErrSymlink when
// name is a symbolic link and ErrNotRegular for devices, pipes, and sockets.
func OpenRegular(root *os.Root, name string) (*os.File, os.FileInfo, error) {
	f, err := root.OpenFile(name, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		if errors.Is(err, syscall.ELOOP) {
			return nil, nil, ErrSymlink
		}
		return nil, nil, err
	}
	return checkRegular(f)
}
