// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unzipstream

import "io"

// Reader adapts the push-style Parser into a pull iterator over archive
// entries. A pump goroutine copies from the source into the parser; the
// parser's backpressure keeps the pump in lockstep with the consumer, so
// never more than one entry's payload is buffered at a time.
type Reader struct {
	entries chan *Entry
	result  chan error

	cur  *Entry
	err  error
	done bool
}

// NewReader starts decoding src. Decoding advances only as the returned
// Reader is consumed.
func NewReader(src io.Reader, opts ...Option) *Reader {
	r := &Reader{
		entries: make(chan *Entry),
		result:  make(chan error, 1),
	}

	p := NewParser(func(e *Entry) error {
		r.entries <- e
		return nil
	}, opts...)

	go func() {
		_, err := io.Copy(p, src)
		if cerr := p.Close(); err == nil {
			err = cerr
		}
		close(r.entries)
		r.result <- err
	}()

	return r
}

// Next returns the next entry in the archive. Any unread payload of the
// previous entry is discarded first, so a consumer may call Next in a
// loop without draining entries it does not care about. After the last
// entry Next returns io.EOF, or the fatal decode error if the stream
// did not end cleanly.
func (r *Reader) Next() (*Entry, error) {
	if r.cur != nil {
		r.cur.Close()
		r.cur = nil
	}
	if r.done {
		if r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	}

	e, ok := <-r.entries
	if !ok {
		r.done = true
		r.err = <-r.result
		if r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	}
	r.cur = e
	return e, nil
}

// Drain consumes and discards the rest of the archive. Useful when the
// wanted entry has been found but the source (an HTTP body, for example)
// should still be read to completion.
func (r *Reader) Drain() error {
	for {
		if _, err := r.Next(); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}
