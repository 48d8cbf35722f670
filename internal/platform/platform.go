package platform

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrSymlink is returned when attempting to open a symbolic link.
	ErrSymlink = errors.New("symbolic links not supported")

	// ErrNotRegular is returned for files that are not regular files.
	ErrNotRegular = errors.New("not a regular file")
)

func checkRegular(f *os.File) (*os.File, os.FileInfo, error) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%s: %w", f.Name(), ErrNotRegular)
	}
	return f, info, nil
}
