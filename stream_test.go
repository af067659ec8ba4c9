// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unzipstream

import (
	"bytes"
	"io"
	"testing"
)

func TestReaderSkipsUnreadPayloads(t *testing.T) {
	stream := buildArchive(t,
		fixtureEntry{name: "one", data: bytes.Repeat([]byte("a"), 10000)},
		fixtureEntry{name: "two", data: bytes.Repeat([]byte("b"), 10000)},
		fixtureEntry{name: "three", data: []byte("wanted")},
	)

	r := NewReader(bytes.NewReader(stream))

	// Call Next without reading any payloads: the unread bytes must be
	// discarded, not deadlock the pump.
	var names []string
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		names = append(names, e.Name)
		if e.Name == "three" {
			data, err := io.ReadAll(e)
			if err != nil || string(data) != "wanted" {
				t.Errorf("Payload mismatch: %q %v", data, err)
			}
		}
	}

	if len(names) != 3 {
		t.Fatalf("Entry count mismatch: got %v", names)
	}
}

func TestReaderNextAfterEOF(t *testing.T) {
	stream := buildArchive(t, fixtureEntry{name: "f", data: []byte("x")})
	r := NewReader(bytes.NewReader(stream))

	for {
		if _, err := r.Next(); err != nil {
			break
		}
	}
	// EOF must be sticky.
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next after EOF: got %v, want io.EOF", err)
	}
}

func TestReaderDrain(t *testing.T) {
	src := &countingReader{r: bytes.NewReader(buildArchive(t,
		fixtureEntry{name: "a", data: bytes.Repeat([]byte("x"), 5000)},
		fixtureEntry{name: "b", data: []byte("y")},
	))}

	r := NewReader(src)
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if err := r.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if !src.eof {
		t.Error("Drain did not read the source to completion")
	}
}

type countingReader struct {
	r   io.Reader
	eof bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err == io.EOF {
		c.eof = true
	}
	return n, err
}
