package tree

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/vpk/internal/layout"
	"github.com/meigma/vpk/internal/vpktype"
)

func node(path, name, ext string, preload uint16, src string) *Node {
	e := layout.DirectoryEntry{PreloadBytes: preload, Terminator: layout.EntryTerminator}
	e.SetLocation(layout.External{ArchiveIndex: 0, Offset: 0})
	return &Node{Path: path, Filename: name, Extension: ext, Entry: e, Source: bytes.NewReader([]byte(src))}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	nodes := []*Node{
		node("materials/models", "crate", "vmt", 4, "abcdefgh"),
		node("materials/models", "barrel", "vmt", 0, ""),
		node("sound", "boom", "wav", 2, "xy"),
		node("materials", "skybox", "vtf", 0, ""),
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nodes))

	const treeOffset, embedded = 28, 1000
	d, err := Decode(buf.Bytes(), treeOffset, embedded)
	require.NoError(t, err)
	require.Len(t, d.Entries, 4)

	keys := make([]string, 0, len(d.Entries))
	for _, h := range d.Entries {
		keys = append(keys, h.Key)
	}
	assert.Equal(t, []string{
		"materials/models/barrel.vmt",
		"materials/models/crate.vmt",
		"materials/skybox.vtf",
		"sound/boom.wav",
	}, keys)

	crate, ok := d.Lookup("materials/models/crate.vmt")
	require.True(t, ok)
	assert.Equal(t, uint64(4), crate.PreloadSize())
	assert.Equal(t, uint64(embedded), crate.EmbeddedDataStart)

	// Preload bytes sit right after the record, inside the encoded tree.
	rel := crate.PreloadPosition - treeOffset
	assert.Equal(t, "abcd", string(buf.Bytes()[rel:rel+4]))

	boom, ok := d.Lookup("sound/boom.wav")
	require.True(t, ok)
	rel = boom.PreloadPosition - treeOffset
	assert.Equal(t, "xy", string(buf.Bytes()[rel:rel+2]))
}

func TestEncode_Layout(t *testing.T) {
	t.Parallel()

	n := node("p", "f", "e", 0, "")
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []*Node{n}))

	want := []byte("e\x00p\x00f\x00")
	want = append(want, n.Entry.Encode()...)
	want = append(want, 0, 0, 0)
	assert.Equal(t, want, buf.Bytes())
}

func TestEncode_Empty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, nil))
	assert.Equal(t, []byte{0}, buf.Bytes())

	d, err := Decode(buf.Bytes(), 28, 29)
	require.NoError(t, err)
	assert.Empty(t, d.Entries)
}

func TestSort_Duplicate(t *testing.T) {
	t.Parallel()

	err := Sort([]*Node{
		node("a", "b", "c", 0, ""),
		node("x", "y", "z", 0, ""),
		node("a", "b", "c", 0, ""),
	})
	require.ErrorIs(t, err, vpktype.ErrAlreadyExists)
}

func TestSort_InvalidNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    *Node
	}{
		{"empty path", node("", "f", "e", 0, "")},
		{"empty filename", node("p", "", "e", 0, "")},
		{"empty extension", node("p", "f", "", 0, "")},
		{"non-ascii", node("p", "café", "e", 0, "")},
		{"nul", node("p\x00q", "f", "e", 0, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Sort([]*Node{tt.n})
			assert.ErrorIs(t, err, vpktype.ErrMalformedData)
		})
	}
}

func TestEncode_PreloadWithoutSource(t *testing.T) {
	t.Parallel()

	n := node("p", "f", "e", 3, "")
	n.Source = nil
	err := Encode(&bytes.Buffer{}, []*Node{n})
	require.ErrorIs(t, err, vpktype.ErrMalformedData)
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	good := node("p", "f", "e", 2, "zz")
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, []*Node{good}))
	full := buf.Bytes()

	badTerm := good.Entry
	badTerm.Terminator = 0
	withBadTerm := append([]byte("e\x00p\x00f\x00"), badTerm.Encode()...)
	withBadTerm = append(withBadTerm, 0, 0, 0)

	tests := []struct {
		name string
		b    []byte
	}{
		{"unterminated extension", []byte("ext")},
		{"missing path level", []byte("e\x00")},
		{"truncated record", full[:10]},
		{"truncated preload", full[:6+layout.DirectoryEntrySize+1]},
		{"bad terminator", withBadTerm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.b, 28, 0)
			assert.ErrorIs(t, err, vpktype.ErrMalformedData)
		})
	}
}

func TestDecode_DuplicateKey(t *testing.T) {
	t.Parallel()

	n := node("p", "f", "e", 0, "")
	rec := n.Entry.Encode()
	b := []byte("e\x00p\x00f\x00")
	b = append(b, rec...)
	b = append(b, "f\x00"...)
	b = append(b, rec...)
	b = append(b, 0, 0, 0)

	_, err := Decode(b, 28, 0)
	require.ErrorIs(t, err, vpktype.ErrMalformedData)
}

func TestSplitKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key                 string
		path, filename, ext string
		ok                  bool
	}{
		{"a/b/c.txt", "a/b", "c", "txt", true},
		{" /readme. ", " ", "readme", " ", true},
		{"dir/archive.tar.gz", "dir", "archive.tar", "gz", true},
		{"nodir.txt", "", "", "", false},
		{"dir/noext", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			p, f, e, ok := SplitKey(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.path, p)
			assert.Equal(t, tt.filename, f)
			assert.Equal(t, tt.ext, e)
			if ok {
				assert.Equal(t, tt.key, Key(p, f, e))
			}
		})
	}
}
