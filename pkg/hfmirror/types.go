// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfmirror

import "time"

// Kind is the resource-kind hint carried by a Locator.
//
// A "tree" URL is directory-biased but unverified (KindUnknown); the walker
// settles it with the first listing call. A "resolve" URL is a direct content
// link (KindFile) and never touches the listing endpoint.
type Kind int

const (
	KindUnknown Kind = iota
	KindFile
	KindDirectory
)

// Locator identifies a path inside a HuggingFace repository.
// Immutable once parsed; build new values instead of mutating shared ones.
type Locator struct {
	// RepoID is the repository ID in "owner/name" format. Required.
	RepoID string

	// IsDataset selects the datasets API instead of the models API.
	IsDataset bool

	// Ref is the branch, tag, or commit. Defaults to "main".
	Ref string

	// Path is the location within the repository, "/"-separated with no
	// leading slash. Empty means the repository root.
	Path string

	// Kind is the resource-kind hint derived from the URL shape.
	Kind Kind
}

// EntryKind classifies a single listing result.
type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryDirectory
)

// Entry is one result from a directory listing.
type Entry struct {
	Kind EntryKind
	// Path is root-anchored within the repo, "/"-separated, no leading slash.
	Path string
	Size int64
}

// ManifestItem is the unit of work handed to the Fetcher: one download URL
// paired with the relative path it should be saved under.
type ManifestItem struct {
	URL     string `json:"url"`
	RelPath string `json:"path"`
	// Size is the expected final size in bytes, or 0 when unknown.
	Size int64 `json:"size,omitempty"`
}

// Manifest is the ordered list of items discovered by a walk.
// Order is discovery order: depth-first, pre-order by directory, entries
// within a page in API-returned order.
type Manifest struct {
	Items []ManifestItem `json:"items"`

	// Shortfalls counts directories whose listing terminated early after
	// exhausting retries. Their siblings are unaffected, but a nonzero
	// value means the manifest may be incomplete.
	Shortfalls int `json:"shortfalls,omitempty"`
}

// Settings configures mirroring behavior.
//
// The zero value is usable after ApplyDefaults; at minimum set OutputDir.
type Settings struct {
	// OutputDir is the local base directory the remote tree is mirrored
	// under. Defaults to ".".
	OutputDir string

	// ForceFile treats the root path as a single file even when the URL
	// looks like a directory.
	ForceFile bool

	// Retries is the number of retry attempts after a failed request or
	// transfer (so Retries=3 means up to 4 attempts). Defaults to 3.
	Retries int

	// Backoff is the base delay for exponential backoff. The wait before
	// retry n (1-indexed) is Backoff * 2^(n-1). Defaults to 1s.
	Backoff time.Duration

	// Timeout bounds a single listing request or transfer attempt.
	// Defaults to 60s.
	Timeout time.Duration

	// Workers is the number of concurrent file transfers. Values <= 1
	// mean sequential downloads in manifest order.
	Workers int

	// MaxPages caps listing pages per directory, guarding against a remote
	// that keeps returning empty pages with a cursor. Defaults to 1000.
	MaxPages int

	// Token is a HuggingFace access token for private or gated repos.
	Token string

	// Endpoint overrides the hub URL, e.g. for mirrors. Defaults to
	// https://huggingface.co.
	Endpoint string
}

// ApplyDefaults fills in zero-valued fields.
func (s *Settings) ApplyDefaults() {
	if s.OutputDir == "" {
		s.OutputDir = "."
	}
	if s.Retries <= 0 {
		s.Retries = 3
	}
	if s.Backoff <= 0 {
		s.Backoff = time.Second
	}
	if s.Timeout <= 0 {
		s.Timeout = 60 * time.Second
	}
	if s.MaxPages <= 0 {
		s.MaxPages = 1000
	}
}

// DefaultSettings returns Settings with all defaults filled in.
func DefaultSettings() Settings {
	var s Settings
	s.ApplyDefaults()
	return s
}

// ProgressEvent is a progress update emitted while mirroring.
//
// Event values:
//   - "scan_start": tree walking has begun
//   - "list_page": one listing page was consumed
//   - "plan_item": a file was added to the manifest
//   - "file_start": a transfer started
//   - "file_progress": periodic transfer update
//   - "file_done": transfer complete (Message carries "skip (...)" info)
//   - "retry": a retry is about to happen after a backoff wait
//   - "error": a per-item or per-directory failure
//   - "done": the run finished; Message carries the summary
type ProgressEvent struct {
	Time  time.Time `json:"time"`
	Level string    `json:"level,omitempty"` // "info" when empty
	Event string    `json:"event"`

	Repo string `json:"repo,omitempty"`
	Ref  string `json:"ref,omitempty"`
	Path string `json:"path,omitempty"`

	Total      int64 `json:"total,omitempty"`
	Downloaded int64 `json:"downloaded,omitempty"`

	// Attempt is the 1-based retry attempt, set on "retry" events.
	Attempt int    `json:"attempt,omitempty"`
	Message string `json:"message,omitempty"`
}

// ProgressFunc receives progress events. It may be called from multiple
// goroutines when Workers > 1 and must be safe for concurrent use.
type ProgressFunc func(ProgressEvent)

// Summary aggregates the outcome of a run.
type Summary struct {
	Planned    int64 `json:"planned"`
	Downloaded int64 `json:"downloaded"`
	Skipped    int64 `json:"skipped"`
	Failed     int64 `json:"failed"`

	// ListingShortfalls counts subtrees abandoned after listing retries
	// were exhausted.
	ListingShortfalls int64 `json:"listingShortfalls"`
}

// OK reports whether the run completed with nothing missing.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.ListingShortfalls == 0
}
