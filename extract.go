// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package unzipstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var copyBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 64*1024)
		return &buf
	},
}

// Extract decodes the archive from src and writes its entries under the
// destination directory. See ExtractWithContext.
func Extract(src io.Reader, dest string, options ...Option) error {
	return ExtractWithContext(context.Background(), src, dest, options...)
}

// ExtractWithContext decodes the archive from src and writes its entries
// under the destination directory, in a single pass and without staging
// the archive on disk or in memory.
//
// Includes Zip Slip protection to ensure files stay within the target
// path. Per-entry failures (encrypted or unsupported entries, filesystem
// errors) are skipped and collected; a combined error is returned after
// the rest of the archive has been extracted (Best Effort). A fatal
// stream error stops extraction immediately.
func ExtractWithContext(ctx context.Context, src io.Reader, dest string, options ...Option) error {
	cfg := newConfig(options...)
	dest = filepath.Clean(dest)
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	type dirTime struct {
		path    string
		modTime time.Time
	}

	var errs []error
	var dirsToRestore []dirTime

	r := NewReader(&contextReader{ctx: ctx, r: src}, options...)
	for {
		entry, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, err)
			return errors.Join(errs...)
		}
		if entry.Err() != nil {
			errs = append(errs, entry.Err())
			continue
		}
		if entry.Name == "" {
			// The name sanitized away to nothing; there is nowhere
			// meaningful to put the payload.
			continue
		}

		fpath := filepath.Join(dest, filepath.FromSlash(entry.Name))

		// Zip Slip Protection
		if fpath != dest && !strings.HasPrefix(fpath, dest+string(os.PathSeparator)) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInsecurePath, fpath))
			continue
		}

		if err := writeEntry(fpath, entry); err != nil {
			errs = append(errs, fmt.Errorf("extract %s: %w", entry.Name, err))
			continue
		}
		if entry.IsDir && !entry.ModTime.IsZero() {
			dirsToRestore = append(dirsToRestore, dirTime{fpath, entry.ModTime})
		}
		if cfg.onProcessed != nil {
			cfg.onProcessed(entry)
		}
	}

	// Directory mod times are restored last, after the writes inside
	// them are over, deepest first.
	for i := len(dirsToRestore) - 1; i >= 0; i-- {
		d := dirsToRestore[i]
		os.Chtimes(d.path, time.Now(), d.modTime)
	}

	return errors.Join(errs...)
}

func writeEntry(fpath string, entry *Entry) error {
	switch {
	case entry.IsDir:
		return os.MkdirAll(fpath, 0755)

	case entry.IsSymlink:
		target := entry.LinkTarget
		if target == "" {
			// Older encoders store the target as the entry payload.
			raw, err := io.ReadAll(entry)
			if err != nil {
				return err
			}
			target = string(raw)
		}
		if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
			return err
		}
		os.Remove(fpath)
		return os.Symlink(target, fpath)

	default:
		if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		bufp := copyBufPool.Get().(*[]byte)
		_, err = io.CopyBuffer(f, entry, *bufp)
		copyBufPool.Put(bufp)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}

		perm := entry.Mode.Perm()
		if perm == 0 {
			perm = 0644
		}
		// Best-effort attempts to restore metadata. Errors are ignored as
		// they may occur on file systems that don't support these operations.
		os.Chmod(fpath, perm)
		if !entry.ModTime.IsZero() {
			os.Chtimes(fpath, time.Now(), entry.ModTime)
		}
		return nil
	}
}
