// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfmirror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testSettings(endpoint string) Settings {
	return Settings{
		Endpoint: endpoint,
		Retries:  2,
		Backoff:  time.Millisecond,
		Timeout:  5 * time.Second,
		MaxPages: 50,
	}
}

func modelLoc(path string) Locator {
	return Locator{RepoID: "owner/repo", Ref: "main", Path: path}
}

func TestLister_Paginates(t *testing.T) {
	// 3 pages of 2 files; cursor on all but the last.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := 0
		switch r.URL.Query().Get("cursor") {
		case "":
			page = 0
		case "c1":
			page = 1
		case "c2":
			page = 2
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
		if page < 2 {
			w.Header().Set(headerNextCursor, fmt.Sprintf("c%d", page+1))
		}
		fmt.Fprintf(w, `[{"type":"file","path":"f%d-a.bin","size":10},{"type":"file","path":"f%d-b.bin","size":20}]`, page, page)
	}))
	defer srv.Close()

	l := NewLister(testSettings(srv.URL), nil)
	entries, err := l.List(context.Background(), modelLoc(""))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("got %d entries, want 6", len(entries))
	}

	seen := map[string]bool{}
	for _, e := range entries {
		if seen[e.Path] {
			t.Errorf("duplicate entry %q", e.Path)
		}
		seen[e.Path] = true
	}
	if entries[0].Path != "f0-a.bin" || entries[5].Path != "f2-b.bin" {
		t.Errorf("entries out of page order: first=%q last=%q", entries[0].Path, entries[5].Path)
	}
}

func TestLister_ClassifiesDirectories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"type":"directory","path":"sub"},{"type":"file","path":"a.txt","size":3},{"type":"tree","path":"other"}]`)
	}))
	defer srv.Close()

	l := NewLister(testSettings(srv.URL), nil)
	entries, err := l.List(context.Background(), modelLoc(""))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Kind != EntryDirectory || entries[2].Kind != EntryDirectory {
		t.Error("directory and tree types should classify as EntryDirectory")
	}
	if entries[1].Kind != EntryFile || entries[1].Size != 3 {
		t.Errorf("file entry = %+v", entries[1])
	}
}

func TestLister_NotADirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"config.json is not a directory"}`)
	}))
	defer srv.Close()

	l := NewLister(testSettings(srv.URL), nil)
	entries, err := l.List(context.Background(), modelLoc("config.json"))
	if !errors.Is(err, ErrNotADirectory) {
		t.Fatalf("err = %v, want ErrNotADirectory", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestLister_NotADirectoryAfterEntriesEndsListing(t *testing.T) {
	// First page yields entries with a cursor; the cursor page answers with
	// the file-case error. The path must NOT be reclassified.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			w.Header().Set(headerNextCursor, "c1")
			fmt.Fprint(w, `[{"type":"file","path":"a.txt","size":1}]`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"Cannot get tree for this path"}`)
	}))
	defer srv.Close()

	l := NewLister(testSettings(srv.URL), nil)
	entries, err := l.List(context.Background(), modelLoc(""))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "a.txt" {
		t.Errorf("entries = %+v, want the one yielded before the error", entries)
	}
}

func TestLister_RetriesThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `[{"type":"file","path":"a.txt","size":1}]`)
	}))
	defer srv.Close()

	var retries int32
	l := NewLister(testSettings(srv.URL), func(ev ProgressEvent) {
		if ev.Event == "retry" {
			atomic.AddInt32(&retries, 1)
		}
	})

	entries, err := l.List(context.Background(), modelLoc(""))
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
	if got := atomic.LoadInt32(&retries); got != 2 {
		t.Errorf("%d retry events, want 2", got)
	}
}

func TestLister_ExhaustedRetriesNoEntries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l := NewLister(testSettings(srv.URL), nil)
	entries, err := l.List(context.Background(), modelLoc(""))

	var le *ListingError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *ListingError", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
	// Retries=2 means 3 attempts
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("server hit %d times, want 3", got)
	}
}

func TestLister_PartialThenExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			w.Header().Set(headerNextCursor, "c1")
			fmt.Fprint(w, `[{"type":"file","path":"a.txt","size":1}]`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := NewLister(testSettings(srv.URL), nil)
	entries, err := l.List(context.Background(), modelLoc(""))

	var le *ListingError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *ListingError", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want the 1 produced before the fault", len(entries))
	}
}

func TestLister_CursorLoopFailsClosed(t *testing.T) {
	// Remote always answers an empty page plus a cursor.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerNextCursor, "again")
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	cfg := testSettings(srv.URL)
	cfg.MaxPages = 5

	l := NewLister(cfg, nil)
	_, err := l.List(context.Background(), modelLoc(""))

	var le *ListingError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *ListingError after page cap", err)
	}
}

func TestLister_SendsCursorAndAuth(t *testing.T) {
	var sawAuth, sawCursor bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok" {
			sawAuth = true
		}
		if r.URL.Query().Get("cursor") == "" {
			w.Header().Set(headerNextCursor, "next-page")
			fmt.Fprint(w, `[]`)
			return
		}
		if r.URL.Query().Get("cursor") == "next-page" {
			sawCursor = true
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	cfg := testSettings(srv.URL)
	cfg.Token = "tok"

	l := NewLister(cfg, nil)
	if _, err := l.List(context.Background(), modelLoc("sub/dir")); err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !sawAuth {
		t.Error("token was not sent as a bearer header")
	}
	if !sawCursor {
		t.Error("cursor was not re-submitted as a query parameter")
	}
}
