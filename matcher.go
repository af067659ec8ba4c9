// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unzipstream

import (
	"bytes"
)

// matchFunc inspects a candidate match. buf starts at the pattern and
// holds at least len(pattern)+extraLen bytes; written is the number of
// bytes passed through before the pattern. It returns the number of bytes
// the match consumed (pattern included) and whether the candidate was a
// true match. A rejected candidate makes the matcher emit the pattern
// bytes as ordinary data and resume scanning after them.
type matchFunc func(buf []byte, written int64) (consumed int, matched bool, err error)

// matcher scans a continuously appended byte stream for a fixed pattern
// that is followed by at least extraLen bytes. Bytes strictly before a
// confirmed match are emitted to out as pass-through data. It exists
// because data descriptor records are not length-prefixed: the only way
// to find the end of a streamed entry's payload is to search it for the
// descriptor signature and validate the sizes it declares.
type matcher struct {
	pattern  []byte
	extraLen int
	out      func([]byte) error
	onMatch  matchFunc

	buf     []byte
	written int64 // pass-through bytes emitted so far
	done    bool
}

func newMatcher(pattern []byte, extraLen int, out func([]byte) error, onMatch matchFunc) *matcher {
	return &matcher{
		pattern:  pattern,
		extraLen: extraLen,
		out:      out,
		onMatch:  onMatch,
	}
}

// push appends data and scans. When a match is confirmed it returns the
// bytes remaining after the consumed match and done=true; those bytes
// belong to the caller again. Until then all input is either emitted as
// pass-through or held back in case it begins a match.
func (m *matcher) push(data []byte) (rest []byte, done bool, err error) {
	if m.done {
		return data, true, nil
	}
	m.buf = append(m.buf, data...)

	for {
		i := bytes.Index(m.buf, m.pattern)
		if i < 0 {
			// Keep a pattern-length tail: it may be the start of a
			// match completed by the next push.
			keep := len(m.pattern) - 1
			if emit := len(m.buf) - keep; emit > 0 {
				if err := m.emit(m.buf[:emit]); err != nil {
					return nil, false, err
				}
				m.buf = append(m.buf[:0], m.buf[emit:]...)
			}
			return nil, false, nil
		}

		if i > 0 {
			if err := m.emit(m.buf[:i]); err != nil {
				return nil, false, err
			}
			m.buf = append(m.buf[:0], m.buf[i:]...)
		}

		if len(m.buf) < len(m.pattern)+m.extraLen {
			// Candidate found but not enough trailing bytes to judge it.
			return nil, false, nil
		}

		consumed, matched, err := m.onMatch(m.buf, m.written)
		if err != nil {
			return nil, false, err
		}
		if matched {
			m.done = true
			rest = m.buf[consumed:]
			m.buf = nil
			return rest, true, nil
		}

		// False positive. Emit just the pattern bytes and rescan from the
		// byte after them, so repeated collisions cannot loop forever.
		if err := m.emit(m.buf[:len(m.pattern)]); err != nil {
			return nil, false, err
		}
		m.buf = append(m.buf[:0], m.buf[len(m.pattern):]...)
	}
}

// flush emits any held-back bytes. Called at end-of-input when no match
// was confirmed.
func (m *matcher) flush() error {
	if m.done || len(m.buf) == 0 {
		return nil
	}
	err := m.emit(m.buf)
	m.buf = nil
	return err
}

func (m *matcher) emit(p []byte) error {
	if err := m.out(p); err != nil {
		return err
	}
	m.written += int64(len(p))
	return nil
}
