// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfmirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// progressReader wraps an io.Reader and emits throttled progress events.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	path       string
	emit       func(ProgressEvent)
	lastEmit   time.Time
	interval   time.Duration
}

func newProgressReader(r io.Reader, total, offset int64, path string, emit func(ProgressEvent)) *progressReader {
	return &progressReader{
		reader:     r,
		total:      total,
		downloaded: offset,
		path:       path,
		emit:       emit,
		lastEmit:   time.Now(),
		interval:   200 * time.Millisecond,
	}
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		if time.Since(pr.lastEmit) >= pr.interval || err == io.EOF {
			pr.emit(ProgressEvent{
				Event:      "file_progress",
				Path:       pr.path,
				Downloaded: pr.downloaded,
				Total:      pr.total,
			})
			pr.lastEmit = time.Now()
		}
	}
	return n, err
}

// Fetcher downloads manifest items into the mirrored local layout. Partial
// files are resumed in place with Range requests; a file that already has
// its final size is treated as complete and never re-transferred.
type Fetcher struct {
	httpc *http.Client
	cfg   Settings
	emit  func(ProgressEvent)
}

// NewFetcher creates a Fetcher. progress may be nil.
func NewFetcher(cfg Settings, progress ProgressFunc) *Fetcher {
	cfg.ApplyDefaults()
	return &Fetcher{httpc: buildHTTPClient(), cfg: cfg, emit: eventSink(progress)}
}

func newFetcher(httpc *http.Client, cfg Settings, emit func(ProgressEvent)) *Fetcher {
	return &Fetcher{httpc: httpc, cfg: cfg, emit: emit}
}

// Dest returns the local path item mirrors to.
func (f *Fetcher) Dest(item ManifestItem) string {
	rel := strings.TrimPrefix(item.RelPath, "/")
	return filepath.Join(f.cfg.OutputDir, filepath.FromSlash(rel))
}

// Fetch downloads one item. It returns skipped=true when the destination was
// already complete and no transfer happened. Transient failures are retried
// up to Settings.Retries with waits of Backoff * 2^(n-1); after that a
// *TransferError is returned and the caller moves on to the next item.
func (f *Fetcher) Fetch(ctx context.Context, item ManifestItem) (skipped bool, err error) {
	dst := f.Dest(item)

	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, &FilesystemError{Path: dst, Err: err}
		}
	}

	// Existing file of the expected final size doubles as the completion
	// marker: skip without transferring.
	if item.Size > 0 {
		if fi, err := os.Stat(dst); err == nil && fi.Size() == item.Size {
			f.emit(ProgressEvent{Event: "file_done", Path: item.RelPath, Total: item.Size, Message: "skip (already complete)"})
			return true, nil
		}
	}

	f.emit(ProgressEvent{Event: "file_start", Path: item.RelPath, Total: item.Size})

	bo := NewBackoff(f.cfg.Backoff)
	var lastErr error

	for attempt := 0; attempt <= f.cfg.Retries; attempt++ {
		if attempt > 0 {
			f.emit(ProgressEvent{Event: "retry", Path: item.RelPath, Attempt: attempt, Message: lastErr.Error()})
			if !SleepCtx(ctx, bo.Next()) {
				return false, ctx.Err()
			}
		}

		err := f.attempt(ctx, item, dst)
		if err == nil {
			f.emit(ProgressEvent{Event: "file_done", Path: item.RelPath, Total: item.Size})
			return false, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Connection refused, timeouts, bad statuses: all retryable here,
		// the retry count is the only limit.
		lastErr = err
	}

	return false, &TransferError{Path: item.RelPath, Err: lastErr}
}

// attempt performs one bounded transfer attempt, resuming from the current
// local length.
func (f *Fetcher) attempt(ctx context.Context, item ManifestItem, dst string) error {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	var offset int64
	if fi, err := os.Stat(dst); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(attemptCtx, "GET", item.URL, nil)
	if err != nil {
		return err
	}
	addAuth(req, f.cfg.Token)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := f.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		// The server has nothing past our offset: already fully
		// retrieved. Success, despite the error-class status.
		return nil
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		// Server ignored the range (or none was sent): restart clean.
		flags |= os.O_TRUNC
		offset = 0
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return &statusError{Code: resp.StatusCode, Status: resp.Status}
	}

	out, err := os.OpenFile(dst, flags, 0o644)
	if err != nil {
		return &FilesystemError{Path: dst, Err: err}
	}

	total := item.Size
	if total == 0 && resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}
	pr := newProgressReader(resp.Body, total, offset, item.RelPath, f.emit)

	_, cerr := io.Copy(out, pr)
	if closeErr := out.Close(); cerr == nil {
		cerr = closeErr
	}
	return cerr
}
