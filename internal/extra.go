// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"io/fs"
	"time"
)

// Extra field tag IDs recognized by the decoder.
// See http://mdfs.net/Docs/Comp/Archiving/Zip/ExtraField.
const (
	Zip64ExtraTag       uint16 = 0x0001 // Zip64 extended information
	NTFSExtraTag        uint16 = 0x000a // NTFS timestamps (skipped)
	PKWareUnixExtraTag  uint16 = 0x000d // PKWARE Unix
	ExtTimeExtraTag     uint16 = 0x5455 // extended timestamp
	InfoZipUnix1Tag     uint16 = 0x5855 // Info-ZIP Unix v1
	UnicodePathExtraTag uint16 = 0x7075 // Info-ZIP Unicode Path
	InfoZipUnix2Tag     uint16 = 0x7855 // Info-ZIP Unix v2 (uid/gid)
	InfoZipNewUnixTag   uint16 = 0x7875 // Info-ZIP New Unix (variable-size ids)
	ASiUnixExtraTag     uint16 = 0x756e // ASi Unix (mode, symlink target)
)

// Unix file type bits carried in the ASi Unix extra field mode.
const (
	s_IFMT   = 0xf000
	s_IFLNK  = 0xa000
	s_IFDIR  = 0x4000
	s_IFSOCK = 0xc000
	s_IFIFO  = 0x1000
	s_IFCHR  = 0x2000
	s_IFBLK  = 0x6000
)

// ExtraFieldSet holds the values decoded from a header's extra field
// block. Zero values mean the corresponding field was absent.
type ExtraFieldSet struct {
	Zip64 bool // a Zip64 extended information record was present

	UncompressedSize    uint64
	HasUncompressedSize bool
	CompressedSize      uint64
	HasCompressedSize   bool

	ModTime    time.Time
	AccessTime time.Time

	UID      int
	GID      int
	HasOwner bool

	UnixMode uint16 // raw Unix mode bits from the ASi Unix field
	HasMode  bool

	UnicodePath string // UTF-8 path override from the Unicode Path field
	LinkTarget  string // symlink target from the ASi Unix field
}

// ParseExtraFields walks the TLV records of an extra field block.
// needUSize/needCSize indicate that the fixed header carried the
// 0xFFFFFFFF placeholder and the true size lives in the Zip64 record;
// the Zip64 sizes are only consumed for placeholdered fields, matching
// the ordering rules of the format. Unrecognized tags are skipped using
// their declared size. Truncated records end the walk without error.
func ParseExtraFields(data []byte, needUSize, needCSize bool) ExtraFieldSet {
	var set ExtraFieldSet

	b := ReadBuf(data)
	for len(b) >= 4 {
		tag := b.Uint16()
		size := int(b.Uint16())
		if size > len(b) {
			break
		}
		field := b.Sub(size)

		switch tag {
		case Zip64ExtraTag:
			set.Zip64 = true
			if needUSize && len(field) >= 8 {
				set.UncompressedSize = field.Uint64()
				set.HasUncompressedSize = true
			}
			if needCSize && len(field) >= 8 {
				set.CompressedSize = field.Uint64()
				set.HasCompressedSize = true
			}

		case ExtTimeExtraTag:
			if len(field) < 5 {
				continue
			}
			flags := field.Uint8()
			if flags&1 != 0 {
				set.ModTime = time.Unix(int64(int32(field.Uint32())), 0).UTC()
			}

		case PKWareUnixExtraTag, InfoZipUnix1Tag:
			if len(field) < 8 {
				continue
			}
			set.AccessTime = time.Unix(int64(int32(field.Uint32())), 0).UTC()
			set.ModTime = time.Unix(int64(int32(field.Uint32())), 0).UTC()
			if len(field) >= 4 {
				set.UID = int(field.Uint16())
				set.GID = int(field.Uint16())
				set.HasOwner = true
			}

		case InfoZipUnix2Tag:
			if len(field) < 4 {
				continue
			}
			set.UID = int(field.Uint16())
			set.GID = int(field.Uint16())
			set.HasOwner = true

		case InfoZipNewUnixTag:
			// version(1) uidSize(1) uid gidSize(1) gid
			if len(field) < 3 {
				continue
			}
			if v := field.Uint8(); v != 1 {
				continue
			}
			uid, ok := readVariableID(&field)
			if !ok {
				continue
			}
			gid, ok := readVariableID(&field)
			if !ok {
				continue
			}
			set.UID, set.GID = uid, gid
			set.HasOwner = true

		case UnicodePathExtraTag:
			// version(1) nameCRC32(4) utf8 name
			if len(field) < 6 {
				continue
			}
			if v := field.Uint8(); v != 1 {
				continue
			}
			field.Uint32() // CRC of the legacy name, not validated here
			set.UnicodePath = string(field)

		case ASiUnixExtraTag:
			// crc32(4) mode(2) sizdev(4) uid(2) gid(2) link target
			if len(field) < 14 {
				continue
			}
			field.Uint32() // field CRC, ignored
			set.UnixMode = field.Uint16()
			set.HasMode = true
			field.Uint32() // size of device / link length, ignored
			set.UID = int(field.Uint16())
			set.GID = int(field.Uint16())
			set.HasOwner = true
			if len(field) > 0 && set.UnixMode&s_IFMT == s_IFLNK {
				set.LinkTarget = string(field)
			}

		case NTFSExtraTag:
			// High-precision NTFS timestamps, not needed for decoding.
		}
	}

	return set
}

// readVariableID reads one New-Unix-style length-prefixed integer,
// tolerating the 1/2/4/8-byte sizes encoders actually emit.
func readVariableID(b *ReadBuf) (int, bool) {
	if len(*b) < 1 {
		return 0, false
	}
	size := int(b.Uint8())
	if size > len(*b) {
		return 0, false
	}
	id := b.Sub(size)
	switch size {
	case 1:
		return int(id.Uint8()), true
	case 2:
		return int(id.Uint16()), true
	case 4:
		return int(id.Uint32()), true
	case 8:
		return int(id.Uint64()), true
	}
	return 0, false
}

// FileMode maps the raw Unix mode bits from an ASi Unix extra field to a
// Go fs.FileMode.
func (s ExtraFieldSet) FileMode() fs.FileMode {
	mode := fs.FileMode(s.UnixMode & 0777)
	switch s.UnixMode & s_IFMT {
	case s_IFDIR:
		mode |= fs.ModeDir
	case s_IFLNK:
		mode |= fs.ModeSymlink
	case s_IFSOCK:
		mode |= fs.ModeSocket
	case s_IFIFO:
		mode |= fs.ModeNamedPipe
	case s_IFCHR:
		mode |= fs.ModeCharDevice
	case s_IFBLK:
		mode |= fs.ModeDevice
	}
	return mode
}
