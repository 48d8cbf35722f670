package fsys

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChild(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, prefix string
		child        string
		isDir        bool
	}{
		{"a/b/c.txt", "a/", "b", true},
		{"a/b.txt", "a/", "b.txt", false},
		{"top.txt", "", "top.txt", false},
		{"x/y", "", "x", true},
	}
	for _, tt := range tests {
		child, isDir := Child(tt.name, tt.prefix)
		assert.Equal(t, tt.child, child, tt.name)
		assert.Equal(t, tt.isDir, isDir, tt.name)
	}
}

func TestBaseAndPrefix(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".", Base("."))
	assert.Equal(t, "c.txt", Base("a/b/c.txt"))
	assert.Equal(t, "top", Base("top"))
	assert.Equal(t, "", DirPrefix("."))
	assert.Equal(t, "a/b/", DirPrefix("a/b"))
}

func TestInfo(t *testing.T) {
	t.Parallel()

	fi := NewInfo("c.txt", 12)
	assert.Equal(t, "c.txt", fi.Name())
	assert.Equal(t, int64(12), fi.Size())
	assert.False(t, fi.IsDir())
	assert.Equal(t, FileMode, fi.Mode())

	di := NewDirInfo("b")
	assert.True(t, di.IsDir())
	assert.Equal(t, fs.ModeDir, di.Mode().Type())

	de := NewDirEntry(di)
	assert.True(t, de.IsDir())
	assert.Equal(t, fs.ModeDir, de.Type())
	info, err := de.Info()
	assert.NoError(t, err)
	assert.Equal(t, "b", info.Name())
}
