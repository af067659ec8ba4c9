// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unzipstream

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"io/fs"
	"time"
)

// Entry represents one archive member emitted by the decoder. Its payload
// is read from the Entry itself: the decoder feeds decompressed bytes in
// as they are decoded, and reading drains them. An Entry must be fully
// read (or closed, which discards the remainder) before the decoder can
// move on to the next one.
type Entry struct {
	// Name is the entry path, decoded and sanitized: forward slashes,
	// no leading separators or ".."/"." segments. Directory entries
	// keep their trailing slash.
	Name string

	// IsDir reports whether the entry is a directory: declared
	// uncompressed size zero and a path ending in a separator.
	IsDir bool

	// IsSymlink reports whether the entry is a symbolic link. The link
	// target is LinkTarget when the archive carried it in an extra
	// field, otherwise it is the entry's payload.
	IsSymlink bool

	// Size is the uncompressed size. Valid only when SizeKnown; streamed
	// entries defer their size to a trailing data descriptor.
	Size      int64
	SizeKnown bool

	Mode    fs.FileMode
	ModTime time.Time

	// UID and GID are Unix owner ids, valid when HasOwner.
	UID      int
	GID      int
	HasOwner bool

	Method     CompressionMethod
	CRC32      uint32
	LinkTarget string

	err error // per-entry failure (encrypted, unsupported method/version)
	pr  *io.PipeReader
}

// Err returns the entry's failure, if any. An errored entry carries no
// payload; the decoder drains its bytes internally and continues with the
// next record.
func (e *Entry) Err() error {
	return e.err
}

// Read reads the entry's decoded payload. It returns the per-entry error
// for errored entries, and ErrChecksum or ErrSizeMismatch at the end of a
// payload that fails verification.
func (e *Entry) Read(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	if e.pr == nil {
		return 0, io.EOF
	}
	return e.pr.Read(p)
}

// Close discards any unread payload so the decoder can proceed. It does
// not invalidate the decoder; closing an already-drained entry is a no-op.
func (e *Entry) Close() error {
	if e.err != nil || e.pr == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, e.pr)
	if err == io.EOF {
		return nil
	}
	return err
}

// entrySink is the decoder-side write end of an entry's payload. It
// counts and hashes decompressed bytes on the way into the pipe. Errored
// entries get a sink with a nil pipe that swallows everything, keeping
// stream position tracking correct without delivering data.
type entrySink struct {
	pw      *io.PipeWriter
	hash    hash.Hash32
	written int64
}

func newEntrySink(pw *io.PipeWriter) *entrySink {
	return &entrySink{pw: pw, hash: crc32.NewIEEE()}
}

func (s *entrySink) Write(p []byte) (int, error) {
	if s.pw == nil {
		s.written += int64(len(p))
		return len(p), nil
	}
	s.hash.Write(p)
	n, err := s.pw.Write(p)
	s.written += int64(n)
	return n, err
}

// finish closes the sink, verifying size and CRC against the header or
// data descriptor values. Verification failures surface on the entry's
// reader, not as stream failures. A zero wantCRC is treated as "not set",
// matching encoders that leave the field blank when deferring to a
// descriptor.
func (s *entrySink) finish(wantCRC uint32, wantSize int64, sizeKnown bool) {
	if s.pw == nil {
		return
	}
	if sizeKnown && s.written != wantSize {
		s.pw.CloseWithError(fmt.Errorf("%w: read %d, want %d", ErrSizeMismatch, s.written, wantSize))
		return
	}
	if wantCRC != 0 && s.hash.Sum32() != wantCRC {
		s.pw.CloseWithError(fmt.Errorf("%w: got %x, want %x", ErrChecksum, s.hash.Sum32(), wantCRC))
		return
	}
	s.pw.Close()
}

// fail closes the sink with err, unblocking any pending reader.
func (s *entrySink) fail(err error) {
	if s.pw != nil {
		s.pw.CloseWithError(err)
	}
}
