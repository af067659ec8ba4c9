// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unzipstream

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/lemon4ksan/unzipstream/internal"
)

// TextDecoder converts raw filename or comment bytes from a legacy code
// page to a Go string. It is only consulted when the header's UTF-8 flag
// is not set.
type TextDecoder func([]byte) string

// DecodeCP437 decodes IBM code page 437, the historical default for ZIP
// filenames. It is the fallback TextDecoder.
func DecodeCP437(raw []byte) string {
	s, err := charmap.CodePage437.NewDecoder().Bytes(raw)
	if err != nil {
		// CP437 maps every byte; decoding cannot actually fail.
		return string(raw)
	}
	return string(s)
}

// DecodeCP866 decodes the DOS Cyrillic code page, common in archives
// produced by legacy Russian tooling.
func DecodeCP866(raw []byte) string {
	s, err := charmap.CodePage866.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(s)
}

// decodeText decodes filename bytes. UTF-8 wins when flag bit 11 is set;
// otherwise a Unicode Path extra field overrides the legacy bytes, and
// failing that the legacy decoder applies. Non-UTF-8 bytes with the flag
// set are still decoded via the legacy path rather than producing mojibake.
func decodeText(raw []byte, flags uint16, unicodeOverride string, decoder TextDecoder) string {
	if flags&internal.FlagUTF8 != 0 && utf8.Valid(raw) {
		return string(raw)
	}
	if unicodeOverride != "" {
		return unicodeOverride
	}
	if decoder == nil {
		decoder = DecodeCP437
	}
	return decoder(raw)
}
