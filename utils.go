// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unzipstream

import (
	"context"
	"io"
	"strings"
	"time"
)

// msDosToTime converts the legacy MS-DOS date/time pair to time.Time.
func msDosToTime(dosDate uint16, dosTime uint16) time.Time {
	day := dosDate & 0x1F
	month := (dosDate >> 5) & 0x0F
	year := int((dosDate>>9)&0x7F) + 1980
	second := (dosTime & 0x1F) * 2
	minute := (dosTime >> 5) & 0x3F
	hour := (dosTime >> 11) & 0x1F

	if month < 1 || month > 12 {
		month = 1
	}
	if day < 1 || day > 31 {
		day = 1
	}

	return time.Date(year, time.Month(month), int(day), int(hour), int(minute), int(second), 0, time.UTC)
}

// sanitizePath normalizes an entry path so it cannot escape an extraction
// root: backslashes become forward slashes, and any leading separators or
// "."/".." segments are stripped. A trailing "/" is preserved so directory
// entries stay recognizable.
func sanitizePath(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")

	for {
		switch {
		case strings.HasPrefix(name, "/"):
			name = name[1:]
		case strings.HasPrefix(name, "../"):
			name = name[3:]
		case strings.HasPrefix(name, "./"):
			name = name[2:]
		case name == ".." || name == ".":
			return ""
		default:
			return name
		}
	}
}

// contextReader wraps an io.Reader to make it respect context cancellation.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (n int, err error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
