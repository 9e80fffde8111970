// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package gdrive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantID   string
		isFolder bool
	}{
		{"file view link", "https://drive.google.com/file/d/1AbC-dEf_G/view?usp=sharing", "1AbC-dEf_G", false},
		{"folder link", "https://drive.google.com/drive/folders/1Af7wcE1EkGdeVmd8wbjvy4qCjejE2RCW", "1Af7wcE1EkGdeVmd8wbjvy4qCjejE2RCW", true},
		{"uc link", "https://drive.google.com/uc?id=1AbC-dEf_G&export=download", "1AbC-dEf_G", false},
		{"open link", "https://drive.google.com/open?id=1AbC-dEf_G", "1AbC-dEf_G", false},
		{"bare id", "1Af7wcE1EkGdeVmd8wbjvy4qCjejE2RCW", "1Af7wcE1EkGdeVmd8wbjvy4qCjejE2RCW", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := ParseURL(tt.url)
			if err != nil {
				t.Fatalf("ParseURL(%q) failed: %v", tt.url, err)
			}
			if loc.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", loc.ID, tt.wantID)
			}
			if loc.IsFolder != tt.isFolder {
				t.Errorf("IsFolder = %v, want %v", loc.IsFolder, tt.isFolder)
			}
		})
	}

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := ParseURL("https://example.com/nothing"); err == nil {
			t.Error("expected an error")
		}
	})
}

func driveSettings(apiURL string) Settings {
	return Settings{
		APIKey:         "test-key",
		APIEndpoint:    apiURL,
		ExportEndpoint: apiURL,
		Retries:        1,
		Backoff:        time.Millisecond,
		Timeout:        5 * time.Second,
	}
}

// newFakeDrive serves files.get, files.list and alt=media for a folder
// "root" holding a.txt and a subfolder "sub" holding b.txt. The root listing
// is split into two pages.
func newFakeDrive(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.URL.Path == "/drive/v3/files":
			if q.Get("key") == "" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			switch {
			case strings.Contains(q.Get("q"), "'root'") && q.Get("pageToken") == "":
				fmt.Fprint(w, `{"nextPageToken":"p2","files":[{"id":"fa","name":"a.txt","mimeType":"text/plain","size":"5"}]}`)
			case strings.Contains(q.Get("q"), "'root'") && q.Get("pageToken") == "p2":
				fmt.Fprint(w, `{"files":[{"id":"dsub","name":"sub","mimeType":"application/vnd.google-apps.folder"}]}`)
			case strings.Contains(q.Get("q"), "'dsub'"):
				fmt.Fprint(w, `{"files":[{"id":"fb","name":"b.txt","mimeType":"text/plain","size":"5"}]}`)
			default:
				fmt.Fprint(w, `{"files":[]}`)
			}
		case r.URL.Path == "/drive/v3/files/root":
			fmt.Fprint(w, `{"id":"root","name":"root","mimeType":"application/vnd.google-apps.folder"}`)
		case r.URL.Path == "/drive/v3/files/fa" && q.Get("alt") == "media":
			fmt.Fprint(w, "AAAAA")
		case r.URL.Path == "/drive/v3/files/fb" && q.Get("alt") == "media":
			fmt.Fprint(w, "BBBBB")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestListFolder_Paginates(t *testing.T) {
	srv := newFakeDrive(t)
	defer srv.Close()

	c := NewClient(driveSettings(srv.URL), nil)
	objs, err := c.ListFolder(context.Background(), "root")
	if err != nil {
		t.Fatalf("ListFolder failed: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("got %d objects, want 2", len(objs))
	}
	if objs[0].Name != "a.txt" || objs[0].Size != 5 || objs[0].IsFolder() {
		t.Errorf("objs[0] = %+v", objs[0])
	}
	if objs[1].Name != "sub" || !objs[1].IsFolder() {
		t.Errorf("objs[1] = %+v", objs[1])
	}
}

func TestListFolder_RequiresAPIKey(t *testing.T) {
	c := NewClient(Settings{}, nil)
	if _, err := c.ListFolder(context.Background(), "root"); err == nil {
		t.Error("expected an error without an API key")
	}
}

func TestMirror_Folder(t *testing.T) {
	srv := newFakeDrive(t)
	defer srv.Close()

	cfg := driveSettings(srv.URL)
	cfg.OutputDir = t.TempDir()

	sum, err := MirrorLocator(context.Background(), Locator{ID: "root", IsFolder: true}, cfg, nil)
	if err != nil {
		t.Fatalf("MirrorLocator failed: %v", err)
	}
	if sum.Planned != 2 || sum.Downloaded != 2 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}

	for rel, want := range map[string]string{
		filepath.Join("root", "a.txt"):        "AAAAA",
		filepath.Join("root", "sub", "b.txt"): "BBBBB",
	} {
		got, err := os.ReadFile(filepath.Join(cfg.OutputDir, rel))
		if err != nil {
			t.Fatalf("missing %s: %v", rel, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", rel, got, want)
		}
	}
}

func TestMirror_SecondRunSkips(t *testing.T) {
	srv := newFakeDrive(t)
	defer srv.Close()

	cfg := driveSettings(srv.URL)
	cfg.OutputDir = t.TempDir()

	loc := Locator{ID: "root", IsFolder: true}
	if _, err := MirrorLocator(context.Background(), loc, cfg, nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	sum, err := MirrorLocator(context.Background(), loc, cfg, nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if sum.Skipped != 2 || sum.Downloaded != 0 {
		t.Errorf("second run summary = %+v, want 2 skipped", sum)
	}
}

func TestMirror_ListingShortfall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/drive/v3/files/root" {
			fmt.Fprint(w, `{"id":"root","name":"root","mimeType":"application/vnd.google-apps.folder"}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := driveSettings(srv.URL)
	cfg.OutputDir = t.TempDir()

	sum, err := MirrorLocator(context.Background(), Locator{ID: "root", IsFolder: true}, cfg, nil)
	if err != nil {
		t.Fatalf("MirrorLocator failed: %v", err)
	}
	if sum.ListingShortfalls != 1 {
		t.Errorf("shortfalls = %d, want 1", sum.ListingShortfalls)
	}
	if sum.OK() {
		t.Error("summary should not be OK")
	}
}

func TestMirror_PublicFileConfirmToken(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/uc" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		hits++
		if r.URL.Query().Get("confirm") == "" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, `<a href="/uc?export=download&amp;confirm=tok42&amp;id=pubfile">Download anyway</a>`)
			return
		}
		if r.URL.Query().Get("confirm") != "tok42" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "public-bytes")
	}))
	defer srv.Close()

	cfg := Settings{
		ExportEndpoint: srv.URL,
		OutputDir:      t.TempDir(),
		Retries:        1,
		Backoff:        time.Millisecond,
		Timeout:        5 * time.Second,
	}

	sum, err := MirrorLocator(context.Background(), Locator{ID: "pubfile"}, cfg, nil)
	if err != nil {
		t.Fatalf("MirrorLocator failed: %v", err)
	}
	if sum.Downloaded != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if hits != 2 {
		t.Errorf("server hits = %d, want interstitial plus confirmed request", hits)
	}
	got, err := os.ReadFile(filepath.Join(cfg.OutputDir, "pubfile"))
	if err != nil {
		t.Fatalf("missing output: %v", err)
	}
	if string(got) != "public-bytes" {
		t.Errorf("content = %q", got)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain.txt", "plain.txt"},
		{"a/b", "a_b"},
		{`a\b`, "a_b"},
		{"..", "_"},
		{"", "_"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
