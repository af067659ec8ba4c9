// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unzipstream

import (
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
)

// CompressionMethod represents the compression algorithm of an archive entry.
type CompressionMethod uint16

// Compression methods according to the ZIP specification. Only Stored and
// Deflated are decoded natively; others require WithDecompressor.
const (
	Stored    CompressionMethod = 0  // No compression - file stored as-is
	Deflated  CompressionMethod = 8  // DEFLATE compression (most common)
	Deflate64 CompressionMethod = 9  // DEFLATE64(tm) enhanced compression
	BZIP2     CompressionMethod = 12 // BZIP2 compression
	LZMA      CompressionMethod = 14 // LZMA compression
	ZStandard CompressionMethod = 93 // Zstandard compression
)

// Decompressor transforms compressed data back into raw data.
type Decompressor interface {
	// Decompress returns a stream of uncompressed data.
	Decompress(src io.Reader) (io.ReadCloser, error)
}

type decompressorsMap map[CompressionMethod]Decompressor

// StoredDecompressor implements the "Store" method (no compression).
type StoredDecompressor struct{}

func (sd *StoredDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	if rc, ok := src.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(src), nil
}

// DeflateDecompressor implements the "Deflate" method.
type DeflateDecompressor struct{}

func (dd *DeflateDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

// ZstdDecompressor implements the Zstandard method (93). It is not
// registered by default; enable it with
// WithDecompressor(ZStandard, &ZstdDecompressor{}).
type ZstdDecompressor struct{}

func (zd *ZstdDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// newDecompressors builds the decompressor registry with the built-in
// Stored and Deflated codecs registered.
func newDecompressors() decompressorsMap {
	return decompressorsMap{
		Stored:   new(StoredDecompressor),
		Deflated: new(DeflateDecompressor),
	}
}
