// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unzipstream

import (
	"bytes"
	"testing"
)

// collectOut returns an emit function appending to the given buffer.
func collectOut(out *bytes.Buffer) func([]byte) error {
	return func(p []byte) error {
		out.Write(p)
		return nil
	}
}

func TestMatcherPassThrough(t *testing.T) {
	var out bytes.Buffer
	pattern := []byte("PK\x07\x08")
	m := newMatcher(pattern, 4, collectOut(&out), func(buf []byte, written int64) (int, bool, error) {
		t.Fatal("onMatch called without a candidate in the stream")
		return 0, false, nil
	})

	data := []byte("payload bytes without any signature in them")
	if _, done, err := m.push(data); done || err != nil {
		t.Fatalf("push: done=%v err=%v", done, err)
	}

	// A pattern-length tail is held back until more input arrives.
	held := len(pattern) - 1
	if got, want := out.String(), string(data[:len(data)-held]); got != want {
		t.Errorf("Emitted bytes mismatch: got %q, want %q", got, want)
	}

	if err := m.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if out.String() != string(data) {
		t.Errorf("Flushed bytes mismatch: got %q, want %q", out.String(), data)
	}
}

func TestMatcherSplitAcrossPushes(t *testing.T) {
	var out bytes.Buffer
	pattern := []byte("PK\x07\x08")
	m := newMatcher(pattern, 4, collectOut(&out), func(buf []byte, written int64) (int, bool, error) {
		if !bytes.Equal(buf[4:8], []byte("ABCD")) {
			return 0, false, nil
		}
		return 8, true, nil
	})

	stream := []byte("some payload" + "PK\x07\x08" + "ABCD" + "leftover")

	// Feed one byte at a time so the pattern and its trailing bytes are
	// split across every possible push boundary.
	var rest []byte
	var done bool
	var err error
	for i := 0; i < len(stream) && !done; i++ {
		rest, done, err = m.push(stream[i : i+1])
		if err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	if !done {
		t.Fatal("Matcher did not confirm the candidate")
	}
	if out.String() != "some payload" {
		t.Errorf("Emitted bytes mismatch: got %q, want %q", out.String(), "some payload")
	}
	// Fed byte-by-byte, the match resolves as soon as the last needed
	// byte arrives, so nothing beyond it has entered the matcher.
	if len(rest) != 0 {
		t.Errorf("Unexpected rest: %q", rest)
	}
}

func TestMatcherFalsePositive(t *testing.T) {
	var out bytes.Buffer
	pattern := []byte("PK\x07\x08")
	calls := 0
	m := newMatcher(pattern, 4, collectOut(&out), func(buf []byte, written int64) (int, bool, error) {
		calls++
		if !bytes.Equal(buf[4:8], []byte("GOOD")) {
			return 0, false, nil
		}
		return 8, true, nil
	})

	stream := []byte("aaa" + "PK\x07\x08" + "BAD!" + "bbb" + "PK\x07\x08" + "GOOD" + "tail")
	rest, done, err := m.push(stream)
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	if calls != 2 {
		t.Errorf("onMatch call count mismatch: got %d, want %d", calls, 2)
	}
	if !done {
		t.Fatal("Matcher did not confirm the second candidate")
	}
	// The rejected candidate's bytes belong to the payload.
	if got, want := out.String(), "aaa"+"PK\x07\x08"+"BAD!"+"bbb"; got != want {
		t.Errorf("Emitted bytes mismatch: got %q, want %q", got, want)
	}
	if string(rest) != "tail" {
		t.Errorf("Rest mismatch: got %q, want %q", rest, "tail")
	}
}

func TestMatcherWrittenCount(t *testing.T) {
	var out bytes.Buffer
	pattern := []byte("PK\x07\x08")
	var sawWritten int64 = -1
	m := newMatcher(pattern, 4, collectOut(&out), func(buf []byte, written int64) (int, bool, error) {
		sawWritten = written
		return 8, true, nil
	})

	if _, done, err := m.push([]byte("0123456789" + "PK\x07\x08" + "xxxx")); !done || err != nil {
		t.Fatalf("push: done=%v err=%v", done, err)
	}
	if sawWritten != 10 {
		t.Errorf("Written count mismatch: got %d, want %d", sawWritten, 10)
	}
}
