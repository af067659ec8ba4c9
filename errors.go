package unzipstream

import "errors"

var (
	// ErrFormat is returned when the input is not a valid ZIP stream.
	// It is fatal: no further entries are decoded after it.
	ErrFormat = errors.New("unzipstream: not a valid zip stream")

	// ErrTruncated is returned when the input ends while the decoder
	// still expects data for the current record or entry.
	ErrTruncated = errors.New("unzipstream: stream finished in an invalid state")

	// ErrInflate is returned when the DEFLATE codec fails mid-entry.
	// It is fatal: the compressed byte bookkeeping can no longer be trusted.
	ErrInflate = errors.New("unzipstream: inflate error")

	// ErrAlgorithm is returned on an entry whose compression method is
	// not supported. The entry is skipped; decoding continues.
	ErrAlgorithm = errors.New("unzipstream: unsupported compression algorithm")

	// ErrEncryption is returned on an encrypted entry. Encrypted entries
	// are rejected, not decrypted; decoding continues.
	ErrEncryption = errors.New("unzipstream: encrypted entry not supported")

	// ErrVersion is returned on an entry whose version-needed-to-extract
	// exceeds the supported ZIP specification version.
	ErrVersion = errors.New("unzipstream: unsupported zip version")

	// ErrChecksum is returned from an entry read when the payload CRC32
	// does not match the header or data descriptor value.
	ErrChecksum = errors.New("unzipstream: checksum error")

	// ErrSizeMismatch is returned from an entry read when the payload
	// size does not match the declared uncompressed size.
	ErrSizeMismatch = errors.New("unzipstream: uncompressed size mismatch")

	// ErrInsecurePath is reported during extraction when a file path
	// escapes the destination despite sanitization (Zip Slip).
	ErrInsecurePath = errors.New("unzipstream: insecure file path")

	// ErrClosed is returned when feeding a decoder that has been closed.
	ErrClosed = errors.New("unzipstream: decoder is closed")
)
