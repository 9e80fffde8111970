// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfmirror

import (
	"context"
	"errors"
)

// Walker turns a root Locator into a flat Manifest by recursively listing
// directories.
//
// Recursion depth is bounded by the actual depth of the remote tree; the hub
// does not permit cycles and the walker does not defend against them.
type Walker struct {
	lister *Lister
	cfg    Settings
	emit   func(ProgressEvent)
}

// NewWalker creates a Walker. progress may be nil.
func NewWalker(cfg Settings, progress ProgressFunc) *Walker {
	cfg.ApplyDefaults()
	emit := eventSink(progress)
	return &Walker{lister: newLister(buildHTTPClient(), cfg, emit), cfg: cfg, emit: emit}
}

func newWalker(lister *Lister, cfg Settings, emit func(ProgressEvent)) *Walker {
	return &Walker{lister: lister, cfg: cfg, emit: emit}
}

// Walk computes the manifest for loc.
//
// A root that is a file (resolve URL, ForceFile, or a listing that answers
// "not a directory") yields exactly one item. Directory entries are recursed
// into depth-first; their items are spliced into the output in place. A
// subtree whose listing exhausts retries is abandoned and counted in
// Manifest.Shortfalls, leaving siblings untouched.
func (w *Walker) Walk(ctx context.Context, loc Locator) (*Manifest, error) {
	m := &Manifest{}

	if loc.Kind == KindFile || w.cfg.ForceFile {
		w.addFile(m, loc, loc.Path, 0)
		return m, nil
	}

	if err := w.walkDir(ctx, loc, m, true); err != nil {
		return m, err
	}
	return m, nil
}

// walkDir lists one directory and recurses. root is true only for the
// original argument: the file-vs-directory disambiguation happens exactly
// once, there.
func (w *Walker) walkDir(ctx context.Context, loc Locator, m *Manifest, root bool) error {
	entries, err := w.lister.List(ctx, loc)
	if err != nil {
		if errors.Is(err, ErrNotADirectory) {
			if root {
				// Single file masquerading as the root directory.
				w.addFile(m, loc, loc.Path, 0)
				return nil
			}
			// A listed directory that denies being one; nothing to mirror.
			w.emit(ProgressEvent{Level: "warn", Event: "error", Path: loc.Path, Message: "listed as directory but is not one"})
			m.Shortfalls++
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var le *ListingError
		if errors.As(err, &le) {
			// Partial or empty result after exhausted retries: keep what
			// was produced, record the shortfall, let siblings proceed.
			w.emit(ProgressEvent{Level: "warn", Event: "error", Path: loc.Path, Message: le.Error()})
			m.Shortfalls++
		} else {
			return err
		}
	}

	for _, e := range entries {
		switch e.Kind {
		case EntryDirectory:
			sub := loc
			sub.Path = e.Path
			sub.Kind = KindUnknown
			if err := w.walkDir(ctx, sub, m, false); err != nil {
				return err
			}
		default:
			w.addFile(m, loc, e.Path, e.Size)
		}
	}
	return nil
}

func (w *Walker) addFile(m *Manifest, loc Locator, path string, size int64) {
	item := ManifestItem{
		URL:     resolveURL(w.cfg.Endpoint, loc, path),
		RelPath: path,
		Size:    size,
	}
	m.Items = append(m.Items, item)
	w.emit(ProgressEvent{Event: "plan_item", Path: path, Total: size})
}
