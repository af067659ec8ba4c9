// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package unzipstream provides a forward-only streaming ZIP decoder.
//
// Unlike random-access readers that locate the central directory first,
// the decoder consumes an arbitrary, chunked byte stream (a network
// socket, a pipe, a file read) and incrementally emits archive entries as
// their local file headers arrive, without buffering the archive in
// memory. It handles standard, Zip64 and streamed (unknown-size, data
// descriptor terminated) entries, with "store" and "deflate" compression.
//
// # Basic Usage
//
// Pull entries from any io.Reader:
//
//	r := unzipstream.NewReader(src)
//	for {
//		entry, err := r.Next()
//		if err == io.EOF {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		if entry.Err() != nil {
//			continue // encrypted or unsupported, skipped
//		}
//		io.Copy(dst, entry)
//	}
//
// Or extract straight to disk:
//
//	err := unzipstream.Extract(src, "output/")
package unzipstream

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strings"

	"github.com/lemon4ksan/unzipstream/internal"
)

// LatestZipVersion is the maximum ZIP specification version supported by
// this implementation. Version 63 corresponds to ZIP 6.3. Entries needing
// a later version are skipped with ErrVersion.
const LatestZipVersion uint16 = 63

// maxPadding is how many unrecognized leading bytes are tolerated while
// hunting for the next record signature. Covers short self-extractor
// stub prefixes and inter-record padding without masking real corruption.
const maxPadding = 26

// parserState describes what the decoder expects next from the stream.
// Exactly one state is active at a time; transitions are driven by the
// signature read at start-of-record or by completion of the fixed- or
// variable-length record tied to the current state.
type parserState int

const (
	stateStreamStart parserState = iota
	stateStart
	stateLocalFileHeader
	stateLocalFileHeaderSuffix
	stateFileData
	stateFileDataEnd
	stateDataDescriptor
	stateCentralDirectoryFileHeader
	stateCentralDirectoryFileHeaderSuffix
	stateZip64EndRecord
	stateZip64EndDataSector
	stateZip64Locator
	stateCentralDirectoryEnd
	stateCentralDirectoryEndComment
	stateTrailingJunk
	stateError
)

// descriptorPattern is the data descriptor signature as raw stream bytes.
var descriptorPattern = []byte{0x50, 0x4b, 0x07, 0x08}

// payloadRoute moves compressed payload bytes toward the current entry's
// sink and decides when the payload ends. The variant is selected once,
// when the entry's header is parsed, and never changes.
type payloadRoute interface {
	// feed consumes up to len(p) bytes of payload, returning how many
	// were taken and whether the payload is complete.
	feed(p []byte) (consumed int, done bool, err error)
}

// countedRoute streams a payload whose compressed length is known.
type countedRoute struct {
	dst       io.Writer
	remaining int64
}

func (r *countedRoute) feed(p []byte) (int, bool, error) {
	if r.remaining == 0 {
		return 0, true, nil
	}
	n := int64(len(p))
	if n > r.remaining {
		n = r.remaining
	}
	if n == 0 {
		return 0, false, nil
	}
	wrote, err := r.dst.Write(p[:n])
	r.remaining -= int64(wrote)
	if err != nil {
		return wrote, false, err
	}
	return int(n), r.remaining == 0, nil
}

// matcherRoute streams a payload whose length is unknown, searching it
// for the trailing data descriptor. Bytes handed over are owned by the
// matcher; once the descriptor is confirmed, rest holds the unconsumed
// tail that belongs to the stream again.
type matcherRoute struct {
	m    *matcher
	rest []byte
}

func (r *matcherRoute) feed(p []byte) (int, bool, error) {
	rest, done, err := r.m.push(p)
	if done {
		r.rest = rest
	}
	return len(p), done, err
}

// outStream tracks the destination plumbing of the entry currently in
// FileData: its sink, the payload route, the verification values, and
// the inflate pipeline for deflated entries.
type outStream struct {
	entry *Entry
	sink  *entrySink
	route payloadRoute

	crcWant    uint32
	sizeWant   int64
	verifySize bool

	// set when the header's flag bit 3 promised a trailing data
	// descriptor even though the compressed size was declared
	trailingDescriptor bool
	zip64              bool

	compw *io.PipeWriter // inflate input; nil for stored payloads
	done  chan error     // inflate goroutine completion
}

// Parser is the streaming decoder state machine. It implements io.Writer:
// feed it archive bytes in chunks of any size, and it emits entries
// through the callback given to NewParser. Close signals end-of-input.
//
// The parser applies backpressure: Write blocks while the current entry's
// payload has not been drained by the entry's consumer, so the entry
// callback must hand the entry to another goroutine (or use Reader, which
// does exactly that). Memory in flight stays bounded to one entry's
// buffered payload regardless of archive size.
type Parser struct {
	config

	onEntry func(*Entry) error

	state    parserState
	buf      []byte
	skipped  int   // padding bytes tolerated in the current junk run
	consumed int64 // total bytes consumed from the stream

	header  internal.LocalFileHeader
	cdh     internal.CentralDirectory
	discard int // pending byte count for comment/data-sector states

	cur    *outStream
	err    error
	closed bool
}

// config carries the tunable decoder settings shared by Parser, Reader
// and the extraction helpers.
type config struct {
	textDecoder   TextDecoder
	decompressors decompressorsMap
	onProcessed   func(*Entry)
}

func newConfig(opts ...Option) config {
	cfg := config{decompressors: newDecompressors()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Option configures a Parser, Reader or extraction run.
type Option func(*config)

// WithTextDecoder overrides the legacy code page used for filenames in
// archives without the UTF-8 flag. Default is CP437.
func WithTextDecoder(d TextDecoder) Option {
	return func(c *config) { c.textDecoder = d }
}

// WithDecompressor registers a codec for an additional compression
// method, lifting that method out of the unsupported set.
func WithDecompressor(method CompressionMethod, d Decompressor) Option {
	return func(c *config) { c.decompressors[method] = d }
}

// OnEntryProcessed sets a callback invoked by Extract after each entry
// has been written to disk. It has no effect on Parser or Reader.
func OnEntryProcessed(fn func(*Entry)) Option {
	return func(c *config) { c.onProcessed = fn }
}

// NewParser creates a decoder that passes each decoded entry to onEntry.
// The callback must not read the entry's payload synchronously; it is a
// handoff point, and reading belongs to another goroutine.
func NewParser(onEntry func(*Entry) error, opts ...Option) *Parser {
	return &Parser{
		config:  newConfig(opts...),
		onEntry: onEntry,
		state:   stateStreamStart,
	}
}

// Write feeds archive bytes to the decoder. Chunk boundaries are
// irrelevant; a record split across chunks is reassembled. Write blocks
// while downstream consumers lag (see Parser docs). A fatal decode error
// is returned from the failing call and every call after it.
func (p *Parser) Write(data []byte) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if p.err != nil {
		return 0, p.err
	}

	p.buf = append(p.buf, data...)
	if err := p.process(); err != nil {
		p.fail(err)
		return len(data), err
	}
	return len(data), nil
}

// Close signals end-of-input. It returns nil when the stream ended at a
// record boundary or in trailing junk, ErrTruncated when the decoder
// still expected data, and ErrFormat when no ZIP structure was ever
// recognized.
func (p *Parser) Close() error {
	if p.closed {
		return p.err
	}
	p.closed = true
	if p.err != nil {
		return p.err
	}

	var err error
	switch p.state {
	case stateTrailingJunk:
		// Normal end after the central directory.
	case stateStart:
		// Many streams stop after the last local entry without any
		// central directory; that is a legal end as long as no record
		// is half-buffered.
		if len(p.buf) > 0 {
			err = ErrTruncated
		}
	case stateStreamStart:
		err = ErrFormat
	case stateFileData:
		if mr, ok := p.cur.route.(*matcherRoute); ok {
			// Give the consumer what was held back before failing.
			mr.m.flush()
		}
		err = ErrTruncated
	default:
		err = ErrTruncated
	}

	if err != nil {
		p.fail(err)
	}
	return err
}

// fail records a fatal error: the current entry's sink is poisoned, all
// buffered and future input is discarded.
func (p *Parser) fail(err error) {
	p.err = err
	p.state = stateError
	p.buf = nil
	if p.cur != nil {
		if p.cur.compw != nil {
			p.cur.compw.CloseWithError(err)
		}
		p.cur.sink.fail(err)
		p.cur = nil
	}
}

// process runs the state machine over the buffered input until it either
// needs more bytes than are buffered or hits a fatal error. No fixed-size
// record is decoded before all of its bytes are present.
func (p *Parser) process() error {
	for {
		switch p.state {
		case stateStreamStart, stateStart:
			if len(p.buf) < 4 {
				return nil
			}
			if err := p.dispatchSignature(); err != nil {
				return err
			}

		case stateLocalFileHeader:
			if len(p.buf) < internal.LocalFileHeaderLen {
				return nil
			}
			p.header = internal.DecodeLocalFileHeader(p.buf)
			p.advance(internal.LocalFileHeaderLen)
			p.state = stateLocalFileHeaderSuffix

		case stateLocalFileHeaderSuffix:
			need := p.header.SuffixLength()
			if len(p.buf) < need {
				return nil
			}
			if err := p.openEntry(p.buf[:need]); err != nil {
				return err
			}
			p.advance(need)
			p.state = stateFileData

		case stateFileData:
			n, done, err := p.cur.route.feed(p.buf)
			p.advance(n)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrInflate, err)
			}
			if !done {
				return nil
			}
			if mr, ok := p.cur.route.(*matcherRoute); ok && len(mr.rest) > 0 {
				p.buf = append(append(make([]byte, 0, len(mr.rest)+len(p.buf)), mr.rest...), p.buf...)
				mr.rest = nil
			}
			if p.cur.trailingDescriptor {
				if err := p.closeTransform(); err != nil {
					return err
				}
				p.state = stateDataDescriptor
			} else {
				if err := p.finishEntry(); err != nil {
					return err
				}
			}

		case stateDataDescriptor:
			descLen := internal.DataDescriptorLen
			if p.cur.zip64 {
				descLen = internal.DataDescriptor64Len
			}
			if len(p.buf) < descLen {
				return nil
			}
			body := p.buf
			if binary.LittleEndian.Uint32(p.buf[:4]) == internal.DataDescriptorSignature {
				// The signature is optional on the wire.
				if len(p.buf) < 4+descLen {
					return nil
				}
				body = p.buf[4:]
				p.advance(4)
			}
			desc := internal.DecodeDataDescriptor(body, p.cur.zip64)
			p.advance(descLen)
			p.cur.crcWant = desc.CRC32
			p.cur.sizeWant = int64(desc.UncompressedSize)
			p.cur.verifySize = true
			if err := p.finishEntry(); err != nil {
				return err
			}

		case stateCentralDirectoryFileHeader:
			if len(p.buf) < internal.CentralDirectoryLen {
				return nil
			}
			p.cdh = internal.DecodeCentralDirectory(p.buf)
			p.advance(internal.CentralDirectoryLen)
			p.state = stateCentralDirectoryFileHeaderSuffix

		case stateCentralDirectoryFileHeaderSuffix:
			// Entries were already emitted from their local headers;
			// the central directory copy is consumed and dropped.
			need := p.cdh.SuffixLength()
			if len(p.buf) < need {
				return nil
			}
			p.advance(need)
			p.state = stateStart

		case stateZip64EndRecord:
			if len(p.buf) < internal.Zip64EndRecordLen {
				return nil
			}
			rec := internal.DecodeZip64EndOfCentralDir(p.buf)
			p.advance(internal.Zip64EndRecordLen)
			p.discard = rec.DataSectorLength()
			p.state = stateZip64EndDataSector

		case stateZip64EndDataSector, stateCentralDirectoryEndComment:
			n := p.discard
			if n > len(p.buf) {
				n = len(p.buf)
			}
			p.advance(n)
			p.discard -= n
			if p.discard > 0 {
				return nil
			}
			if p.state == stateZip64EndDataSector {
				p.state = stateStart
			} else {
				p.state = stateTrailingJunk
			}

		case stateZip64Locator:
			if len(p.buf) < internal.Zip64LocatorLen {
				return nil
			}
			internal.DecodeZip64EndOfCentralDirLocator(p.buf)
			p.advance(internal.Zip64LocatorLen)
			p.state = stateStart

		case stateCentralDirectoryEnd:
			if len(p.buf) < internal.EndOfCentralDirLen {
				return nil
			}
			end := internal.DecodeEndOfCentralDir(p.buf)
			p.advance(internal.EndOfCentralDirLen)
			p.discard = int(end.CommentLength)
			p.state = stateCentralDirectoryEndComment

		case stateTrailingJunk:
			// Appended signatures, self-extractor trailers and other
			// junk after the end record are discarded without error.
			p.advance(len(p.buf))
			return nil

		default:
			return p.err
		}
	}
}

// dispatchSignature routes the 4-byte signature at the head of the buffer
// to its record state. Unrecognized bytes are tolerated as padding for up
// to maxPadding bytes, scanning forward for the "PK" marker shared by
// every signature; beyond that the stream is structurally invalid.
func (p *Parser) dispatchSignature() error {
	sig := binary.LittleEndian.Uint32(p.buf[:4])
	switch sig {
	case internal.LocalFileHeaderSignature:
		p.state = stateLocalFileHeader
	case internal.CentralDirectorySignature:
		p.state = stateCentralDirectoryFileHeader
	case internal.EndOfCentralDirSignature:
		p.state = stateCentralDirectoryEnd
	case internal.Zip64EndOfCentralDirSignature:
		p.state = stateZip64EndRecord
	case internal.Zip64EndOfCentralDirLocatorSignature:
		p.state = stateZip64Locator
	default:
		advance := 4
		for j := 1; j <= 3; j++ {
			if p.buf[j] != 'P' {
				continue
			}
			if j+1 < 4 && p.buf[j+1] != 'K' {
				continue
			}
			advance = j
			break
		}
		p.skipped += advance
		if p.skipped > maxPadding {
			return fmt.Errorf("%w: invalid signature 0x%08x at offset %d", ErrFormat, sig, p.consumed)
		}
		p.advance(advance)
		return nil
	}
	p.skipped = 0
	p.advance(4)
	return nil
}

// openEntry decodes the local header suffix (filename and extra fields),
// constructs the Entry, emits it, and prepares the payload route.
func (p *Parser) openEntry(suffix []byte) error {
	h := p.header
	rawName := suffix[:h.FilenameLength]
	extra := suffix[h.FilenameLength:]

	needUSize := h.UncompressedSize == math.MaxUint32
	needCSize := h.CompressedSize == math.MaxUint32
	fields := internal.ParseExtraFields(extra, needUSize, needCSize)

	uncompressedSize := int64(h.UncompressedSize)
	if fields.HasUncompressedSize {
		uncompressedSize = int64(fields.UncompressedSize)
	}
	compressedSize := int64(h.CompressedSize)
	if fields.HasCompressedSize {
		compressedSize = int64(fields.CompressedSize)
	}

	name := decodeText(rawName, h.GeneralPurposeBitFlag, fields.UnicodePath, p.textDecoder)

	// Directory detection must look at the path before sanitization.
	isDir := uncompressedSize == 0 && strings.HasSuffix(name, "/")
	name = sanitizePath(name)

	sizeKnown := h.GeneralPurposeBitFlag&internal.FlagSizesUnknown == 0
	method := CompressionMethod(h.CompressionMethod)

	mode := fs.FileMode(0644)
	if isDir {
		mode = 0755 | fs.ModeDir
	}
	if fields.HasMode {
		mode = fields.FileMode()
	}

	modTime := msDosToTime(h.LastModFileDate, h.LastModFileTime)
	if !fields.ModTime.IsZero() {
		modTime = fields.ModTime
	}

	entry := &Entry{
		Name:       name,
		IsDir:      isDir,
		IsSymlink:  mode&fs.ModeSymlink != 0,
		Size:       uncompressedSize,
		SizeKnown:  sizeKnown,
		Mode:       mode,
		ModTime:    modTime,
		UID:        fields.UID,
		GID:        fields.GID,
		HasOwner:   fields.HasOwner,
		Method:     method,
		CRC32:      h.CRC32,
		LinkTarget: fields.LinkTarget,
	}

	// Per-entry failures skip the entry, not the stream: the sink is
	// errored and auto-draining so position tracking stays correct.
	var entryErr error
	switch {
	case h.GeneralPurposeBitFlag&(internal.FlagEncrypted|internal.FlagStrongEncrypted) != 0:
		entryErr = fmt.Errorf("%w: %s", ErrEncryption, name)
	case h.VersionNeededToExtract > LatestZipVersion:
		entryErr = fmt.Errorf("%w: %s needs version %d", ErrVersion, name, h.VersionNeededToExtract)
	default:
		if _, ok := p.decompressors[method]; !ok {
			entryErr = fmt.Errorf("%w: %s uses method %d", ErrAlgorithm, name, method)
		}
	}

	var sink *entrySink
	if entryErr != nil {
		entry.err = entryErr
		sink = newEntrySink(nil)
	} else {
		pr, pw := io.Pipe()
		entry.pr = pr
		sink = newEntrySink(pw)
	}

	cur := &outStream{
		entry:      entry,
		sink:       sink,
		crcWant:    h.CRC32,
		sizeWant:   uncompressedSize,
		verifySize: sizeKnown,
		zip64:      fields.Zip64,
	}

	// Compressed bytes go straight to the sink for stored payloads, and
	// through the inflate pipeline for everything else. Errored entries
	// discard raw bytes without decompressing.
	var dst io.Writer = sink
	if entryErr == nil && method != Stored {
		cur.compw, cur.done = startDecompress(p.decompressors[method], sink)
		dst = cur.compw
	}

	if sizeKnown {
		cur.route = &countedRoute{dst: dst, remaining: compressedSize}
	} else if compressedSize > 0 {
		// Flag bit 3 with a declared size: count the payload out, then
		// parse the promised descriptor as its own record.
		cur.route = &countedRoute{dst: dst, remaining: compressedSize}
		cur.trailingDescriptor = true
	} else {
		cur.route = p.newDescriptorMatcher(cur, dst)
	}

	p.cur = cur
	if err := p.onEntry(entry); err != nil {
		return err
	}
	return nil
}

// newDescriptorMatcher builds the matcher route that hunts the payload
// for the entry's data descriptor. A candidate signature only terminates
// the entry when the descriptor's compressed size agrees with the bytes
// streamed so far; for non-Zip64 descriptors a match modulo 4 GiB is also
// accepted, a best-effort workaround for pre-Zip64 encoders streaming
// huge files (the uncompressed size cannot be trusted in that case, so
// size verification is skipped for it).
func (p *Parser) newDescriptorMatcher(cur *outStream, dst io.Writer) *matcherRoute {
	descLen := internal.DataDescriptorLen
	if cur.zip64 {
		descLen = internal.DataDescriptor64Len
	}

	onMatch := func(buf []byte, written int64) (int, bool, error) {
		desc := internal.DecodeDataDescriptor(buf[4:], cur.zip64)
		wrapped := false
		if desc.CompressedSize != uint64(written) {
			if cur.zip64 || desc.CompressedSize != uint64(written)&math.MaxUint32 {
				return 0, false, nil
			}
			wrapped = true
		}
		cur.crcWant = desc.CRC32
		cur.sizeWant = int64(desc.UncompressedSize)
		cur.verifySize = !wrapped
		return 4 + descLen, true, nil
	}

	out := func(b []byte) error {
		_, err := dst.Write(b)
		return err
	}

	return &matcherRoute{m: newMatcher(descriptorPattern, descLen, out, onMatch)}
}

// closeTransform shuts down the inflate pipeline, surfacing any codec
// failure. Inflate errors are fatal to the whole stream: the compressed
// byte bookkeeping can no longer be trusted once the codec desynced.
func (p *Parser) closeTransform() error {
	if p.cur.compw == nil {
		return nil
	}
	p.cur.compw.Close()
	p.cur.compw = nil
	if err := <-p.cur.done; err != nil {
		return fmt.Errorf("%w: %v", ErrInflate, err)
	}
	return nil
}

// finishEntry closes the current entry's sink, verifying CRC and size,
// and returns the machine to Start.
func (p *Parser) finishEntry() error {
	p.state = stateFileDataEnd
	if err := p.closeTransform(); err != nil {
		return err
	}
	cur := p.cur
	cur.sink.finish(cur.crcWant, cur.sizeWant, cur.verifySize)
	p.cur = nil
	p.state = stateStart
	return nil
}

// advance consumes n bytes from the front of the buffer.
func (p *Parser) advance(n int) {
	if n == 0 {
		return
	}
	p.consumed += int64(n)
	rest := len(p.buf) - n
	copy(p.buf, p.buf[n:])
	p.buf = p.buf[:rest]
}

// startDecompress runs the decompression codec on its own goroutine,
// copying inflated bytes into the sink. The returned writer accepts
// compressed bytes; the channel reports the codec outcome after the
// writer is closed. A codec failure also poisons the writer so the
// feeding side unblocks immediately.
func startDecompress(d Decompressor, sink *entrySink) (*io.PipeWriter, chan error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)

	go func() {
		rc, err := d.Decompress(pr)
		if err != nil {
			pr.CloseWithError(err)
			done <- err
			return
		}
		_, err = io.Copy(sink, rc)
		if cerr := rc.Close(); err == nil {
			err = cerr
		}
		pr.CloseWithError(err)
		done <- err
	}()

	return pw, done
}
