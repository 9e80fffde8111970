// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"hfmirror/pkg/hfmirror"
)

// Mirror downloads the Drive object behind rawURL into cfg.OutputDir. A
// folder is mirrored recursively; a file lands directly under the output
// directory. Per-file failures are tallied in the Summary rather than
// aborting the run.
func Mirror(ctx context.Context, rawURL string, cfg Settings, progress hfmirror.ProgressFunc) (hfmirror.Summary, error) {
	loc, err := ParseURL(rawURL)
	if err != nil {
		return hfmirror.Summary{}, err
	}
	return MirrorLocator(ctx, loc, cfg, progress)
}

// MirrorLocator is Mirror for a pre-parsed locator.
func MirrorLocator(ctx context.Context, loc Locator, cfg Settings, progress hfmirror.ProgressFunc) (hfmirror.Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.ApplyDefaults()
	c := NewClient(cfg, progress)

	c.emit(hfmirror.ProgressEvent{Event: "scan_start", Path: loc.ID, Message: "resolving drive object"})

	obj := Object{ID: loc.ID, Name: loc.ID}
	if cfg.APIKey != "" {
		// The URL shape does not always reveal the object type; stat settles it.
		got, err := c.Stat(ctx, loc.ID)
		if err != nil {
			return hfmirror.Summary{}, err
		}
		obj = got
		loc.IsFolder = got.IsFolder()
	}

	var sum hfmirror.Summary
	if loc.IsFolder {
		root := filepath.Join(cfg.OutputDir, sanitizeName(obj.Name))
		if err := c.mirrorFolder(ctx, obj.ID, root, &sum); err != nil {
			return sum, err
		}
	} else {
		atomic.AddInt64(&sum.Planned, 1)
		c.fetchInto(ctx, obj, filepath.Join(cfg.OutputDir, sanitizeName(obj.Name)), &sum)
	}

	if ctx.Err() != nil {
		return sum, ctx.Err()
	}
	c.emit(hfmirror.ProgressEvent{
		Event: "done",
		Message: fmt.Sprintf("mirror complete (downloaded %d, skipped %d, failed %d)",
			sum.Downloaded, sum.Skipped, sum.Failed),
	})
	return sum, nil
}

// Stat fetches metadata for a single object. Requires an API key.
func (c *Client) Stat(ctx context.Context, id string) (Object, error) {
	if c.cfg.APIKey == "" {
		return Object{}, fmt.Errorf("stat %s: an API key is required", id)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u := fmt.Sprintf("%s/drive/v3/files/%s?fields=id,name,mimeType,size&key=%s",
		c.cfg.APIEndpoint, id, c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Object{}, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return Object{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Object{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Object{}, fmt.Errorf("stat %s: drive API returned %s", id, resp.Status)
	}
	var f driveFile
	if err := json.Unmarshal(body, &f); err != nil {
		return Object{}, fmt.Errorf("stat %s: %w", id, err)
	}
	obj := Object{ID: f.ID, Name: f.Name, MimeType: f.MimeType}
	if f.Size != "" {
		fmt.Sscan(f.Size, &obj.Size)
	}
	return obj, nil
}

// mirrorFolder lists one folder, recurses into subfolders depth first and
// downloads the folder's files through a bounded pool. A listing failure
// abandons that subtree but never the run.
func (c *Client) mirrorFolder(ctx context.Context, folderID, dir string, sum *hfmirror.Summary) error {
	objs, err := c.ListFolder(ctx, folderID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.emit(hfmirror.ProgressEvent{
			Level:   "warn",
			Event:   "error",
			Path:    folderID,
			Message: fmt.Sprintf("abandoning folder: %v", err),
		})
		atomic.AddInt64(&sum.ListingShortfalls, 1)
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &hfmirror.FilesystemError{Path: dir, Err: err}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)

	for _, obj := range objs {
		if obj.IsFolder() {
			if err := c.mirrorFolder(ctx, obj.ID, filepath.Join(dir, sanitizeName(obj.Name)), sum); err != nil {
				return err
			}
			continue
		}
		obj := obj
		atomic.AddInt64(&sum.Planned, 1)
		g.Go(func() error {
			c.fetchInto(gctx, obj, filepath.Join(dir, sanitizeName(obj.Name)), sum)
			return nil
		})
	}
	return g.Wait()
}

// fetchInto downloads one file and tallies the outcome.
func (c *Client) fetchInto(ctx context.Context, obj Object, dest string, sum *hfmirror.Summary) {
	skipped, err := c.Fetch(ctx, obj, dest)
	switch {
	case err != nil:
		atomic.AddInt64(&sum.Failed, 1)
		c.emit(hfmirror.ProgressEvent{Level: "error", Event: "error", Path: obj.Name, Message: err.Error()})
	case skipped:
		atomic.AddInt64(&sum.Skipped, 1)
	default:
		atomic.AddInt64(&sum.Downloaded, 1)
	}
}

// Fetch downloads one file to dest, resuming a previous partial transfer via
// a Range request. A file already present with the expected size is skipped.
func (c *Client) Fetch(ctx context.Context, obj Object, dest string) (skipped bool, err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, &hfmirror.FilesystemError{Path: filepath.Dir(dest), Err: err}
	}
	if obj.Size > 0 {
		if st, err := os.Stat(dest); err == nil && st.Size() == obj.Size {
			c.emit(hfmirror.ProgressEvent{Event: "file_done", Path: obj.Name, Message: "skip (already complete)"})
			return true, nil
		}
	}

	bo := hfmirror.NewBackoff(c.cfg.Backoff)
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			c.emit(hfmirror.ProgressEvent{
				Level:   "warn",
				Event:   "retry",
				Path:    obj.Name,
				Attempt: attempt,
				Message: lastErr.Error(),
			})
			if !hfmirror.SleepCtx(ctx, bo.Next()) {
				return false, ctx.Err()
			}
		}
		if err := c.attempt(ctx, obj, dest); err != nil {
			lastErr = err
			continue
		}
		c.emit(hfmirror.ProgressEvent{Event: "file_done", Path: obj.Name})
		return false, nil
	}
	return false, &hfmirror.TransferError{Path: obj.Name, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, obj Object, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var offset int64
	if st, err := os.Stat(dest); err == nil {
		offset = st.Size()
	}

	resp, err := c.get(ctx, c.downloadURL(obj.ID), offset)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Public downloads of large files answer with an interstitial scan
	// warning; confirm it and retry the request.
	if c.cfg.APIKey == "" && strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		token := confirmToken(resp, body)
		if token == "" {
			return fmt.Errorf("download of %s blocked by an interstitial page", obj.ID)
		}
		resp.Body.Close()
		resp, err = c.get(ctx, c.downloadURL(obj.ID)+"&confirm="+token, offset)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
	}

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		// The file is already fully retrieved.
		return nil
	case http.StatusPartialContent:
		flags |= os.O_APPEND
	case http.StatusOK:
		flags |= os.O_TRUNC
		offset = 0
	default:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	c.emit(hfmirror.ProgressEvent{Event: "file_start", Path: obj.Name, Total: obj.Size, Downloaded: offset})

	f, err := os.OpenFile(dest, flags, 0o644)
	if err != nil {
		return &hfmirror.FilesystemError{Path: dest, Err: err}
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	return f.Close()
}

func (c *Client) get(ctx context.Context, rawURL string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	return c.httpc.Do(req)
}

// sanitizeName keeps Drive object names from escaping the output tree.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
