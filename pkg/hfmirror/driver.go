// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfmirror

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Mirror parses rawURL and mirrors the tree it points at under
// cfg.OutputDir. See MirrorLocator.
func Mirror(ctx context.Context, rawURL string, cfg Settings, progress ProgressFunc) (Summary, error) {
	loc, err := ParseURL(rawURL)
	if err != nil {
		return Summary{}, err
	}
	return MirrorLocator(ctx, loc, cfg, progress)
}

// MirrorLocator walks loc into a manifest and fetches every item,
// translating remote paths into the mirrored local layout.
//
// Per-item failures never abort the run: they are logged through progress,
// counted in the Summary, and the remaining manifest is still attempted. The
// returned error is non-nil only for conditions that prevent the run
// entirely: an invalid locator, an output root that cannot be created, or
// context cancellation. Check Summary.OK for the per-item verdict.
func MirrorLocator(ctx context.Context, loc Locator, cfg Settings, progress ProgressFunc) (Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.ApplyDefaults()

	if !ValidRepoID(loc.RepoID) {
		return Summary{}, &InvalidURLError{URL: loc.RepoID, Reason: "expected owner/name"}
	}
	if loc.Ref == "" {
		loc.Ref = "main"
	}

	emit := eventSink(progress)
	emit = stampLocator(emit, loc)

	emit(ProgressEvent{Event: "scan_start", Message: "walking remote tree"})

	httpc := buildHTTPClient()
	walker := newWalker(newLister(httpc, cfg, emit), cfg, emit)

	man, err := walker.Walk(ctx, loc)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	sum.Planned = int64(len(man.Items))
	sum.ListingShortfalls = int64(man.Shortfalls)

	if len(man.Items) == 0 {
		emit(ProgressEvent{Event: "done", Message: "no files found to download"})
		return sum, nil
	}

	// Total inability to create the output root is process-fatal; anything
	// below it is handled per item.
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return sum, &FilesystemError{Path: cfg.OutputDir, Err: err}
	}

	fetcher := newFetcher(httpc, cfg, emit)

	if cfg.Workers > 1 {
		fetchPooled(ctx, fetcher, man.Items, cfg.Workers, &sum, emit)
	} else {
		for _, item := range man.Items {
			if ctx.Err() != nil {
				break
			}
			fetchOne(ctx, fetcher, item, &sum, emit)
		}
	}

	if ctx.Err() != nil {
		return sum, ctx.Err()
	}

	emit(ProgressEvent{
		Event: "done",
		Message: fmt.Sprintf("mirror complete (downloaded %d, skipped %d, failed %d)",
			sum.Downloaded, sum.Skipped, sum.Failed),
	})
	return sum, nil
}

// Plan walks loc and returns the manifest without transferring anything.
func Plan(ctx context.Context, loc Locator, cfg Settings) (*Manifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.ApplyDefaults()
	if !ValidRepoID(loc.RepoID) {
		return nil, &InvalidURLError{URL: loc.RepoID, Reason: "expected owner/name"}
	}
	if loc.Ref == "" {
		loc.Ref = "main"
	}
	return NewWalker(cfg, nil).Walk(ctx, loc)
}

// fetchOne runs a single fetch and tallies the outcome. Counters are atomic
// so the same path serves the pooled variant.
func fetchOne(ctx context.Context, f *Fetcher, item ManifestItem, sum *Summary, emit func(ProgressEvent)) {
	skipped, err := f.Fetch(ctx, item)
	switch {
	case err != nil:
		atomic.AddInt64(&sum.Failed, 1)
		emit(ProgressEvent{Level: "error", Event: "error", Path: item.RelPath, Message: err.Error()})
	case skipped:
		atomic.AddInt64(&sum.Skipped, 1)
	default:
		atomic.AddInt64(&sum.Downloaded, 1)
	}
}

// fetchPooled downloads items with a bounded number of workers. Destination
// paths are unique per manifest entry, so concurrent writers never collide.
func fetchPooled(ctx context.Context, f *Fetcher, items []ManifestItem, workers int, sum *Summary, emit func(ProgressEvent)) {
	type token struct{}
	lim := make(chan token, workers)
	var wg sync.WaitGroup

	for _, item := range items {
		select {
		case lim <- token{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}

		it := item
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-lim }()
			fetchOne(ctx, f, it, sum, emit)
		}()
	}
	wg.Wait()
}

// eventSink wraps a ProgressFunc into a never-nil emitter that stamps times.
func eventSink(progress ProgressFunc) func(ProgressEvent) {
	if progress == nil {
		return func(ProgressEvent) {}
	}
	return func(ev ProgressEvent) {
		if ev.Time.IsZero() {
			ev.Time = time.Now().UTC()
		}
		progress(ev)
	}
}

// stampLocator fills repo/ref on every event that leaves emit.
func stampLocator(emit func(ProgressEvent), loc Locator) func(ProgressEvent) {
	return func(ev ProgressEvent) {
		if ev.Repo == "" {
			ev.Repo = loc.RepoID
		}
		if ev.Ref == "" {
			ev.Ref = loc.Ref
		}
		emit(ev)
	}
}
