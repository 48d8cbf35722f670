// Package layout encodes and decodes the fixed-size records of a VPK v2
// archive. Every multi-byte integer is little-endian and records are packed
// with no padding; offsets below are byte offsets within each record.
package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/vpk/internal/vpktype"
)

// Signature is the magic number at the start of every VPK index file.
const Signature uint32 = 0x55AA1234

// Version2 is the only format version this package reads and writes.
const Version2 uint32 = 2

// Record sizes in bytes.
const (
	CommonHeaderSize    = 8
	HeaderSize          = 28
	DirectoryEntrySize  = 18
	ArchiveMD5EntrySize = 28
	OtherMD5Size        = 48

	// SignatureSectionSize is the only non-zero signature section size seen
	// in shipped archives (public key + signature with length prefixes).
	SignatureSectionSize = 296
)

// EmbeddedArchiveIndex marks entry data stored after the tree in the index file.
const EmbeddedArchiveIndex uint16 = 0x7FFF

// EntryTerminator ends every directory entry record.
const EntryTerminator uint16 = 0xFFFF

func checkSize(what string, b []byte, want int) error {
	if len(b) != want {
		return fmt.Errorf("%w: %s is %d bytes, want %d", vpktype.ErrMalformedData, what, len(b), want)
	}
	return nil
}

// CommonHeader is the prefix shared by every VPK version.
//
//	0  Signature u32
//	4  Version   u32
type CommonHeader struct {
	Signature uint32
	Version   uint32
}

// DecodeCommonHeader decodes the first 8 bytes of an index file.
func DecodeCommonHeader(b []byte) (CommonHeader, error) {
	if err := checkSize("common header", b, CommonHeaderSize); err != nil {
		return CommonHeader{}, err
	}
	return CommonHeader{
		Signature: binary.LittleEndian.Uint32(b[0:4]),
		Version:   binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// Header is the VPK v2 index file header.
//
//	0  Signature              u32
//	4  Version                u32
//	8  TreeSize               u32
//	12 FileDataSectionSize    u32
//	16 ArchiveMD5SectionSize  u32
//	20 OtherMD5SectionSize    u32
//	24 SignatureSectionSize   u32
type Header struct {
	Signature             uint32
	Version               uint32
	TreeSize              uint32
	FileDataSectionSize   uint32
	ArchiveMD5SectionSize uint32
	OtherMD5SectionSize   uint32
	SignatureSectionSize  uint32
}

// NewHeader returns a header with the fixed fields set.
func NewHeader() Header {
	return Header{
		Signature:           Signature,
		Version:             Version2,
		OtherMD5SectionSize: OtherMD5Size,
	}
}

// DecodeHeader decodes a 28-byte header.
func DecodeHeader(b []byte) (Header, error) {
	if err := checkSize("header", b, HeaderSize); err != nil {
		return Header{}, err
	}
	return Header{
		Signature:             binary.LittleEndian.Uint32(b[0:4]),
		Version:               binary.LittleEndian.Uint32(b[4:8]),
		TreeSize:              binary.LittleEndian.Uint32(b[8:12]),
		FileDataSectionSize:   binary.LittleEndian.Uint32(b[12:16]),
		ArchiveMD5SectionSize: binary.LittleEndian.Uint32(b[16:20]),
		OtherMD5SectionSize:   binary.LittleEndian.Uint32(b[20:24]),
		SignatureSectionSize:  binary.LittleEndian.Uint32(b[24:28]),
	}, nil
}

// Encode returns the 28-byte wire form of h.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Signature)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TreeSize)
	binary.LittleEndian.PutUint32(b[12:16], h.FileDataSectionSize)
	binary.LittleEndian.PutUint32(b[16:20], h.ArchiveMD5SectionSize)
	binary.LittleEndian.PutUint32(b[20:24], h.OtherMD5SectionSize)
	binary.LittleEndian.PutUint32(b[24:28], h.SignatureSectionSize)
	return b
}

// IsValid checks the signature, version, and the two fixed section sizes.
// Offsets derived from h must not be trusted before IsValid succeeds.
func (h Header) IsValid() error {
	switch {
	case h.Signature != Signature:
		return fmt.Errorf("%w: signature 0x%08X", vpktype.ErrInvalidHeader, h.Signature)
	case h.Version != Version2:
		return fmt.Errorf("%w: version %d", vpktype.ErrInvalidHeader, h.Version)
	case h.OtherMD5SectionSize != OtherMD5Size:
		return fmt.Errorf("%w: other md5 section size %d", vpktype.ErrInvalidHeader, h.OtherMD5SectionSize)
	case h.SignatureSectionSize != 0 && h.SignatureSectionSize != SignatureSectionSize:
		return fmt.Errorf("%w: signature section size %d", vpktype.ErrInvalidHeader, h.SignatureSectionSize)
	}
	return nil
}

// CheckFits reports ErrInvalidHeader when the declared sections extend past
// an index file of the given length.
func (h Header) CheckFits(indexSize int64) error {
	if indexSize < 0 || h.End() > uint64(indexSize) {
		return fmt.Errorf("%w: sections end at %d, file is %d bytes", vpktype.ErrInvalidHeader, h.End(), indexSize)
	}
	return nil
}

// TreeStart is the absolute offset of the directory tree.
func (h Header) TreeStart() uint64 { return HeaderSize }

// DataStart is the absolute offset of the embedded archive data.
func (h Header) DataStart() uint64 { return h.TreeStart() + uint64(h.TreeSize) }

// ArchiveMD5Start is the absolute offset of the archive MD5 section.
func (h Header) ArchiveMD5Start() uint64 {
	return h.DataStart() + uint64(h.FileDataSectionSize)
}

// OtherMD5Start is the absolute offset of the other MD5 section.
func (h Header) OtherMD5Start() uint64 {
	return h.ArchiveMD5Start() + uint64(h.ArchiveMD5SectionSize)
}

// SignatureStart is the absolute offset of the signature section.
func (h Header) SignatureStart() uint64 {
	return h.OtherMD5Start() + uint64(h.OtherMD5SectionSize)
}

// End is the total number of bytes the header declares.
func (h Header) End() uint64 {
	return h.SignatureStart() + uint64(h.SignatureSectionSize)
}

// DirectoryEntry is the record that follows each filename in the tree.
//
//	0  CRC          u32
//	4  PreloadBytes u16
//	6  ArchiveIndex u16 (EmbeddedArchiveIndex = data follows the tree)
//	8  DataOffset   u32
//	12 DataLength   u32
//	16 Terminator   u16 (EntryTerminator)
type DirectoryEntry struct {
	CRC          uint32
	PreloadBytes uint16
	ArchiveIndex uint16
	DataOffset   uint32
	DataLength   uint32
	Terminator   uint16
}

// DecodeDirectoryEntry decodes and validates an 18-byte entry record.
func DecodeDirectoryEntry(b []byte) (DirectoryEntry, error) {
	if err := checkSize("directory entry", b, DirectoryEntrySize); err != nil {
		return DirectoryEntry{}, err
	}
	e := DirectoryEntry{
		CRC:          binary.LittleEndian.Uint32(b[0:4]),
		PreloadBytes: binary.LittleEndian.Uint16(b[4:6]),
		ArchiveIndex: binary.LittleEndian.Uint16(b[6:8]),
		DataOffset:   binary.LittleEndian.Uint32(b[8:12]),
		DataLength:   binary.LittleEndian.Uint32(b[12:16]),
		Terminator:   binary.LittleEndian.Uint16(b[16:18]),
	}
	if err := e.Validate(); err != nil {
		return DirectoryEntry{}, err
	}
	return e, nil
}

// Encode returns the 18-byte wire form of e.
func (e DirectoryEntry) Encode() []byte {
	b := make([]byte, DirectoryEntrySize)
	binary.LittleEndian.PutUint32(b[0:4], e.CRC)
	binary.LittleEndian.PutUint16(b[4:6], e.PreloadBytes)
	binary.LittleEndian.PutUint16(b[6:8], e.ArchiveIndex)
	binary.LittleEndian.PutUint32(b[8:12], e.DataOffset)
	binary.LittleEndian.PutUint32(b[12:16], e.DataLength)
	binary.LittleEndian.PutUint16(b[16:18], e.Terminator)
	return b
}

// Validate checks the terminator.
func (e DirectoryEntry) Validate() error {
	if e.Terminator != EntryTerminator {
		return fmt.Errorf("%w: directory entry terminator 0x%04X", vpktype.ErrMalformedData, e.Terminator)
	}
	return nil
}

// TotalSize is the logical size of the entry: preload plus body.
func (e DirectoryEntry) TotalSize() uint64 {
	return uint64(e.PreloadBytes) + uint64(e.DataLength)
}

// PreloadOnly reports whether the entry has no body beyond its preload bytes.
func (e DirectoryEntry) PreloadOnly() bool { return e.DataLength == 0 }

// Location decodes where the entry body lives.
func (e DirectoryEntry) Location() Location {
	if e.ArchiveIndex == EmbeddedArchiveIndex {
		return Embedded{Offset: e.DataOffset}
	}
	return External{ArchiveIndex: e.ArchiveIndex, Offset: e.DataOffset}
}

// SetLocation stores loc into the archive index and data offset fields.
func (e *DirectoryEntry) SetLocation(loc Location) {
	switch l := loc.(type) {
	case Embedded:
		e.ArchiveIndex = EmbeddedArchiveIndex
		e.DataOffset = l.Offset
	case External:
		e.ArchiveIndex = l.ArchiveIndex
		e.DataOffset = l.Offset
	}
}

// Location is where an entry's body bytes live: Embedded or External.
type Location interface {
	isLocation()
}

// Embedded body bytes follow the tree in the index file. Offset is relative
// to the start of the embedded data section.
type Embedded struct {
	Offset uint32
}

// External body bytes live in data file ArchiveIndex at Offset.
type External struct {
	ArchiveIndex uint16
	Offset       uint32
}

func (Embedded) isLocation() {}
func (External) isLocation() {}

// ArchiveMD5Entry is one checksummed range of a data file.
//
//	0  ArchiveIndex   u32
//	4  StartingOffset u32
//	8  Count          u32
//	12 MD5            [16]byte
type ArchiveMD5Entry struct {
	ArchiveIndex   uint32
	StartingOffset uint32
	Count          uint32
	MD5            [16]byte
}

// DecodeArchiveMD5Entry decodes a 28-byte archive MD5 record.
func DecodeArchiveMD5Entry(b []byte) (ArchiveMD5Entry, error) {
	if err := checkSize("archive md5 entry", b, ArchiveMD5EntrySize); err != nil {
		return ArchiveMD5Entry{}, err
	}
	e := ArchiveMD5Entry{
		ArchiveIndex:   binary.LittleEndian.Uint32(b[0:4]),
		StartingOffset: binary.LittleEndian.Uint32(b[4:8]),
		Count:          binary.LittleEndian.Uint32(b[8:12]),
	}
	copy(e.MD5[:], b[12:28])
	return e, nil
}

// Encode returns the 28-byte wire form of e.
func (e ArchiveMD5Entry) Encode() []byte {
	b := make([]byte, ArchiveMD5EntrySize)
	binary.LittleEndian.PutUint32(b[0:4], e.ArchiveIndex)
	binary.LittleEndian.PutUint32(b[4:8], e.StartingOffset)
	binary.LittleEndian.PutUint32(b[8:12], e.Count)
	copy(b[12:28], e.MD5[:])
	return b
}

// DecodeArchiveMD5Section decodes a whole archive MD5 section.
func DecodeArchiveMD5Section(b []byte) ([]ArchiveMD5Entry, error) {
	if len(b)%ArchiveMD5EntrySize != 0 {
		return nil, fmt.Errorf("%w: archive md5 section is %d bytes, not a multiple of %d",
			vpktype.ErrMalformedData, len(b), ArchiveMD5EntrySize)
	}
	entries := make([]ArchiveMD5Entry, 0, len(b)/ArchiveMD5EntrySize)
	for off := 0; off < len(b); off += ArchiveMD5EntrySize {
		e, err := DecodeArchiveMD5Entry(b[off : off+ArchiveMD5EntrySize])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// EncodeArchiveMD5Section concatenates the wire form of every entry.
func EncodeArchiveMD5Section(entries []ArchiveMD5Entry) []byte {
	b := make([]byte, 0, len(entries)*ArchiveMD5EntrySize)
	for _, e := range entries {
		b = append(b, e.Encode()...)
	}
	return b
}

// OtherMD5Section holds checksums of the index file's own sections.
//
//	0  TreeChecksum              [16]byte
//	16 ArchiveMD5SectionChecksum [16]byte
//	32 Unknown                   [16]byte
type OtherMD5Section struct {
	TreeChecksum              [16]byte
	ArchiveMD5SectionChecksum [16]byte
	Unknown                   [16]byte
}

// DecodeOtherMD5Section decodes a 48-byte other MD5 section.
func DecodeOtherMD5Section(b []byte) (OtherMD5Section, error) {
	if err := checkSize("other md5 section", b, OtherMD5Size); err != nil {
		return OtherMD5Section{}, err
	}
	var s OtherMD5Section
	copy(s.TreeChecksum[:], b[0:16])
	copy(s.ArchiveMD5SectionChecksum[:], b[16:32])
	copy(s.Unknown[:], b[32:48])
	return s, nil
}

// Encode returns the 48-byte wire form of s.
func (s OtherMD5Section) Encode() []byte {
	b := make([]byte, OtherMD5Size)
	copy(b[0:16], s.TreeChecksum[:])
	copy(b[16:32], s.ArchiveMD5SectionChecksum[:])
	copy(b[32:48], s.Unknown[:])
	return b
}
