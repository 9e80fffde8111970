// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfmirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// treeNode is one element of the tree API's JSON array response.
type treeNode struct {
	Type string `json:"type"` // "file"|"directory" (sometimes "blob"|"tree")
	Path string `json:"path"`
	Size int64  `json:"size,omitempty"`
}

// apiError is the tree API's JSON error payload.
type apiError struct {
	Error string `json:"error"`
}

// Lister enumerates one directory of a repository through the paginated
// tree API.
type Lister struct {
	httpc *http.Client
	cfg   Settings
	emit  func(ProgressEvent)
}

// NewLister creates a Lister. progress may be nil.
func NewLister(cfg Settings, progress ProgressFunc) *Lister {
	cfg.ApplyDefaults()
	return &Lister{httpc: buildHTTPClient(), cfg: cfg, emit: eventSink(progress)}
}

// newLister is used internally to share the HTTP client and event sink.
func newLister(httpc *http.Client, cfg Settings, emit func(ProgressEvent)) *Lister {
	return &Lister{httpc: httpc, cfg: cfg, emit: emit}
}

// List fetches every page of one directory and returns its entries in
// API-returned order. Each call re-fetches from scratch.
//
// Outcomes:
//   - (entries, nil): the directory listed completely.
//   - (nil, ErrNotADirectory): the path is a single file. Only possible on
//     the first page; once entries have been yielded the same API error
//     merely ends the listing with what was collected.
//   - (entries, *ListingError): retries were exhausted (or the page cap was
//     hit) partway through. entries holds whatever was produced; the caller
//     decides whether a partial result is usable.
func (l *Lister) List(ctx context.Context, loc Locator) ([]Entry, error) {
	var entries []Entry
	cursor := ""

	for page := 0; ; page++ {
		if page >= l.cfg.MaxPages {
			// A remote that returns an empty page plus a cursor forever
			// would otherwise loop here. Fail closed.
			return entries, &ListingError{Path: loc.Path, Err: fmt.Errorf("exceeded %d pages, cursor never settled", l.cfg.MaxPages)}
		}

		nodes, next, err := l.fetchPage(ctx, loc, cursor)
		if err != nil {
			if errors.Is(err, ErrNotADirectory) {
				if len(entries) == 0 && cursor == "" {
					return nil, ErrNotADirectory
				}
				// Entries already yielded: do not reclassify the path.
				l.warn(loc, "listing ended early: "+err.Error())
				return entries, nil
			}
			return entries, &ListingError{Path: loc.Path, Err: err}
		}

		for _, n := range nodes {
			if n.Path == "" {
				continue
			}
			e := Entry{Path: n.Path, Size: n.Size}
			if n.Type == "directory" || n.Type == "tree" {
				e.Kind = EntryDirectory
			}
			entries = append(entries, e)
		}

		l.emit(ProgressEvent{Event: "list_page", Path: loc.Path, Total: int64(len(nodes))})

		if next == "" {
			return entries, nil
		}
		cursor = next
	}
}

// fetchPage requests a single listing page, retrying transient failures with
// exponential backoff. ErrNotADirectory is a discovery outcome and is never
// retried.
func (l *Lister) fetchPage(ctx context.Context, loc Locator, cursor string) ([]treeNode, string, error) {
	bo := NewBackoff(l.cfg.Backoff)
	var lastErr error

	for attempt := 0; attempt <= l.cfg.Retries; attempt++ {
		if attempt > 0 {
			l.emit(ProgressEvent{Event: "retry", Path: loc.Path, Attempt: attempt, Message: lastErr.Error()})
			if !SleepCtx(ctx, bo.Next()) {
				return nil, "", ctx.Err()
			}
		}

		nodes, next, err := l.fetchOnce(ctx, loc, cursor)
		if err == nil {
			return nodes, next, nil
		}
		if errors.Is(err, ErrNotADirectory) || ctx.Err() != nil {
			return nil, "", err
		}
		lastErr = err
	}
	return nil, "", lastErr
}

func (l *Lister) fetchOnce(ctx context.Context, loc Locator, cursor string) ([]treeNode, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", treeURL(l.cfg.Endpoint, loc, cursor), nil)
	if err != nil {
		return nil, "", err
	}
	addAuth(req, l.cfg.Token)

	resp, err := l.httpc.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, "", err
	}

	// The API answers with either a JSON array of nodes or a JSON error
	// object. "Is not a directory" arrives as the latter, usually with a
	// 4xx status; it is a type-discovery signal, not a fault.
	var nodes []treeNode
	if jerr := json.Unmarshal(body, &nodes); jerr == nil {
		if resp.StatusCode != http.StatusOK {
			return nil, "", &statusError{Code: resp.StatusCode, Status: resp.Status}
		}
		return nodes, resp.Header.Get(headerNextCursor), nil
	}

	var apiErr apiError
	if jerr := json.Unmarshal(body, &apiErr); jerr == nil && apiErr.Error != "" {
		if isNotADirectoryMessage(apiErr.Error) {
			return nil, "", fmt.Errorf("%w: %s", ErrNotADirectory, apiErr.Error)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, "", &statusError{Code: resp.StatusCode, Status: resp.Status}
		}
		return nil, "", fmt.Errorf("API error: %s", apiErr.Error)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, "", &statusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return nil, "", fmt.Errorf("unexpected API response (not a list or error object)")
}

func (l *Lister) warn(loc Locator, msg string) {
	l.emit(ProgressEvent{Level: "warn", Event: "error", Path: loc.Path, Message: msg})
}

// isNotADirectoryMessage matches the API messages that mean "this path is a
// file". The phrasing comes from the hub itself; both variants are seen.
func isNotADirectoryMessage(msg string) bool {
	return strings.Contains(msg, "is not a directory") || strings.Contains(msg, "Cannot get tree")
}
