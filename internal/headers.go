// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package internal implements the wire-level ZIP record layouts consumed
// by the streaming decoder. All multi-byte integers are little-endian.
package internal

import (
	"encoding/binary"
)

// Each record type is identified by a header signature. Signature values
// begin with the two byte constant marker of 0x4b50, representing the
// characters "PK".
const (
	CentralDirectorySignature            uint32 = 0x02014b50
	LocalFileHeaderSignature             uint32 = 0x04034b50
	DigitalHeaderSignature               uint32 = 0x05054b50
	EndOfCentralDirSignature             uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature        uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature uint32 = 0x07064b50
	DataDescriptorSignature              uint32 = 0x08074b50
	ArchiveExtraDataSignature            uint32 = 0x08064b50
)

// SignatureMarker is the low 16 bits shared by every record signature ("PK").
const SignatureMarker uint16 = 0x4b50

// Fixed record sizes, excluding the 4-byte signature that precedes each
// record in the stream.
const (
	LocalFileHeaderLen  = 26
	CentralDirectoryLen = 42
	EndOfCentralDirLen  = 18
	Zip64EndRecordLen   = 52 // up to the start of the extensible data sector
	Zip64LocatorLen     = 16
	DataDescriptorLen   = 12 // crc32 + two 32-bit sizes
	DataDescriptor64Len = 20 // crc32 + two 64-bit sizes
)

// General purpose bit flags relevant to decoding.
const (
	FlagEncrypted       uint16 = 1 << 0  // traditional PKWARE encryption
	FlagSizesUnknown    uint16 = 1 << 3  // sizes/CRC deferred to a data descriptor
	FlagStrongEncrypted uint16 = 1 << 6  // strong encryption
	FlagUTF8            uint16 = 1 << 11 // filename and comment are UTF-8
)

// LocalFileHeader is the fixed portion of a local file header record.
type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
}

// DecodeLocalFileHeader decodes the 26 fixed bytes that follow a local
// file header signature. The buffer must hold at least LocalFileHeaderLen
// bytes.
func DecodeLocalFileHeader(buf []byte) LocalFileHeader {
	b := ReadBuf(buf)
	return LocalFileHeader{
		VersionNeededToExtract: b.Uint16(),
		GeneralPurposeBitFlag:  b.Uint16(),
		CompressionMethod:      b.Uint16(),
		LastModFileTime:        b.Uint16(),
		LastModFileDate:        b.Uint16(),
		CRC32:                  b.Uint32(),
		CompressedSize:         b.Uint32(),
		UncompressedSize:       b.Uint32(),
		FilenameLength:         b.Uint16(),
		ExtraFieldLength:       b.Uint16(),
	}
}

// SuffixLength returns the number of variable-length bytes following the
// fixed portion: filename then extra field.
func (h LocalFileHeader) SuffixLength() int {
	return int(h.FilenameLength) + int(h.ExtraFieldLength)
}

// CentralDirectory is the fixed portion of a central directory file header.
type CentralDirectory struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	FileCommentLength      uint16
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
}

// DecodeCentralDirectory decodes the 42 fixed bytes that follow a central
// directory header signature.
func DecodeCentralDirectory(buf []byte) CentralDirectory {
	b := ReadBuf(buf)
	return CentralDirectory{
		VersionMadeBy:          b.Uint16(),
		VersionNeededToExtract: b.Uint16(),
		GeneralPurposeBitFlag:  b.Uint16(),
		CompressionMethod:      b.Uint16(),
		LastModFileTime:        b.Uint16(),
		LastModFileDate:        b.Uint16(),
		CRC32:                  b.Uint32(),
		CompressedSize:         b.Uint32(),
		UncompressedSize:       b.Uint32(),
		FilenameLength:         b.Uint16(),
		ExtraFieldLength:       b.Uint16(),
		FileCommentLength:      b.Uint16(),
		DiskNumberStart:        b.Uint16(),
		InternalFileAttributes: b.Uint16(),
		ExternalFileAttributes: b.Uint32(),
		LocalHeaderOffset:      b.Uint32(),
	}
}

// SuffixLength returns the variable-length trailer size: filename, extra
// field and comment.
func (d CentralDirectory) SuffixLength() int {
	return int(d.FilenameLength) + int(d.ExtraFieldLength) + int(d.FileCommentLength)
}

// EndOfCentralDirectory is the fixed portion of the end of central
// directory record.
type EndOfCentralDirectory struct {
	ThisDiskNum                     uint16
	DiskNumWithTheStartOfCentralDir uint16
	TotalNumberOfEntriesOnThisDisk  uint16
	TotalNumberOfEntries            uint16
	CentralDirSize                  uint32
	CentralDirOffset                uint32
	CommentLength                   uint16
}

// DecodeEndOfCentralDir decodes the 18 fixed bytes that follow the EOCD
// signature.
func DecodeEndOfCentralDir(buf []byte) EndOfCentralDirectory {
	b := ReadBuf(buf)
	return EndOfCentralDirectory{
		ThisDiskNum:                     b.Uint16(),
		DiskNumWithTheStartOfCentralDir: b.Uint16(),
		TotalNumberOfEntriesOnThisDisk:  b.Uint16(),
		TotalNumberOfEntries:            b.Uint16(),
		CentralDirSize:                  b.Uint32(),
		CentralDirOffset:                b.Uint32(),
		CommentLength:                   b.Uint16(),
	}
}

// Zip64EndOfCentralDirectory is the fixed portion of the Zip64 end of
// central directory record. Size counts the record bytes following the
// Size field itself; anything beyond the 44 fixed bytes is the extensible
// data sector.
type Zip64EndOfCentralDirectory struct {
	Size                            uint64
	VersionMadeBy                   uint16
	VersionNeededToExtract          uint16
	ThisDiskNum                     uint32
	DiskNumWithTheStartOfCentralDir uint32
	TotalNumberOfEntriesOnThisDisk  uint64
	TotalNumberOfEntries            uint64
	CentralDirSize                  uint64
	CentralDirOffset                uint64
}

// DecodeZip64EndOfCentralDir decodes the 52 fixed bytes that follow the
// Zip64 EOCD signature.
func DecodeZip64EndOfCentralDir(buf []byte) Zip64EndOfCentralDirectory {
	b := ReadBuf(buf)
	return Zip64EndOfCentralDirectory{
		Size:                            b.Uint64(),
		VersionMadeBy:                   b.Uint16(),
		VersionNeededToExtract:          b.Uint16(),
		ThisDiskNum:                     b.Uint32(),
		DiskNumWithTheStartOfCentralDir: b.Uint32(),
		TotalNumberOfEntriesOnThisDisk:  b.Uint64(),
		TotalNumberOfEntries:            b.Uint64(),
		CentralDirSize:                  b.Uint64(),
		CentralDirOffset:                b.Uint64(),
	}
}

// DataSectorLength returns the size of the extensible data sector that
// trails the fixed record.
func (z Zip64EndOfCentralDirectory) DataSectorLength() int {
	if z.Size <= 44 {
		return 0
	}
	return int(z.Size - 44)
}

// Zip64EndOfCentralDirectoryLocator points at the Zip64 EOCD record.
type Zip64EndOfCentralDirectoryLocator struct {
	EndOfCentralDirStartDiskNum uint32
	Zip64EndOfCentralDirOffset  uint64
	TotalNumberOfDisks          uint32
}

// DecodeZip64EndOfCentralDirLocator decodes the 16 fixed bytes that follow
// the locator signature.
func DecodeZip64EndOfCentralDirLocator(buf []byte) Zip64EndOfCentralDirectoryLocator {
	b := ReadBuf(buf)
	return Zip64EndOfCentralDirectoryLocator{
		EndOfCentralDirStartDiskNum: b.Uint32(),
		Zip64EndOfCentralDirOffset:  b.Uint64(),
		TotalNumberOfDisks:          b.Uint32(),
	}
}

// DataDescriptor carries the after-the-fact CRC and sizes of a streamed
// entry. Sizes are 32-bit on the wire unless the entry is Zip64.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

// DecodeDataDescriptor decodes a data descriptor body (no signature).
// The buffer must hold DataDescriptor64Len bytes when zip64 is set,
// DataDescriptorLen otherwise.
func DecodeDataDescriptor(buf []byte, zip64 bool) DataDescriptor {
	b := ReadBuf(buf)
	d := DataDescriptor{CRC32: b.Uint32()}
	if zip64 {
		d.CompressedSize = b.Uint64()
		d.UncompressedSize = b.Uint64()
	} else {
		d.CompressedSize = uint64(b.Uint32())
		d.UncompressedSize = uint64(b.Uint32())
	}
	return d
}

// ReadBuf is a little-endian cursor over a byte slice.
type ReadBuf []byte

func (b *ReadBuf) Uint8() uint8 {
	v := (*b)[0]
	*b = (*b)[1:]
	return v
}

func (b *ReadBuf) Uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *ReadBuf) Uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *ReadBuf) Uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}

// Sub consumes and returns the next n bytes.
func (b *ReadBuf) Sub(n int) ReadBuf {
	b2 := (*b)[:n]
	*b = (*b)[n:]
	return b2
}
