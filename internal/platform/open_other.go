//go:build !unix

// Package platform opens source files for archive creation without
// following symbolic links.
package platform

import (
	"io/fs"
	"os"
)

// OpenRegular opens name under root for reading. It returns ErrSymlink when
// name is a symbolic link and ErrNotRegular for anything but a regular file.
func OpenRegular(root *os.Root, name string) (*os.File, os.FileInfo, error) {
	info, err := root.Lstat(name)
	if err != nil {
		return nil, nil, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, nil, ErrSymlink
	}
	f, err := root.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return checkRegular(f)
}
