// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package tui renders mirror progress on a terminal. Interactive sessions get
// a live progress bar; pipes and dumb terminals get plain log lines.
package tui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"golang.org/x/term"

	"hfmirror/pkg/hfmirror"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

// Renderer consumes progress events for one mirror run.
//
// Tree walking finishes before the first transfer starts, so by the time a
// file event arrives the planned totals are final and the bar can be sized.
type Renderer struct {
	repo string
	ref  string

	mu          sync.Mutex
	interactive bool
	closed      bool

	planned    int
	totalBytes int64
	doneBytes  int64

	// last cumulative progress per in-flight file, to feed the bar deltas
	fileBytes map[string]int64

	bar *pb.ProgressBar
}

// NewRenderer creates a renderer for the given repository and ref.
func NewRenderer(repo, ref string) *Renderer {
	if ref == "" {
		ref = "main"
	}
	return &Renderer{
		repo:        repo,
		ref:         ref,
		interactive: term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("TERM") != "dumb" && os.Getenv("NO_COLOR") == "",
		fileBytes:   map[string]int64{},
	}
}

// Handler returns a ProgressFunc feeding this renderer. Safe for concurrent
// callers.
func (r *Renderer) Handler() hfmirror.ProgressFunc {
	return func(ev hfmirror.ProgressEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}
		r.apply(ev)
	}
}

// Close finalizes the bar and restores the cursor.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if r.bar != nil {
		r.bar.Finish()
		r.bar = nil
	}
}

func (r *Renderer) apply(ev hfmirror.ProgressEvent) {
	switch ev.Event {
	case "scan_start":
		fmt.Printf("Scanning %s@%s ...\n", r.repo, r.ref)

	case "plan_item":
		r.planned++
		r.totalBytes += ev.Total

	case "file_start":
		r.ensureBar()
		if r.bar == nil {
			fmt.Printf("downloading: %s (%s)\n", ev.Path, humanBytes(ev.Total))
		}
		// A resumed transfer starts with bytes already on disk.
		if ev.Downloaded > 0 {
			r.advance(ev.Path, ev.Downloaded)
		}

	case "file_progress":
		if r.bar != nil {
			r.advance(ev.Path, ev.Downloaded)
		}

	case "file_done":
		r.ensureBar()
		if strings.HasPrefix(ev.Message, "skip") {
			if r.bar == nil {
				fmt.Printf("%s %s %s\n", dimColor.Sprint("skip:"), ev.Path, dimColor.Sprint(ev.Message))
			}
			r.settle(ev.Path)
			return
		}
		if r.bar == nil {
			fmt.Printf("%s %s\n", okColor.Sprint("done:"), ev.Path)
		}
		r.settle(ev.Path)

	case "retry":
		line := fmt.Sprintf("retry %s (attempt %d): %s", ev.Path, ev.Attempt, ev.Message)
		r.println(warnColor.Sprint(line))

	case "error":
		r.println(errColor.Sprint("error: " + ev.Message))

	case "done":
		if r.bar != nil {
			r.bar.Finish()
			r.bar = nil
		}
		fmt.Println(ev.Message)
	}
}

// ensureBar lazily starts the byte bar once transfers begin.
func (r *Renderer) ensureBar() {
	if !r.interactive || r.bar != nil || r.totalBytes <= 0 {
		return
	}
	r.bar = pb.New64(r.totalBytes)
	r.bar.Set(pb.Bytes, true)
	r.bar.Start()
}

// advance moves the bar by the delta between the file's last reported
// cumulative count and the new one.
func (r *Renderer) advance(path string, cum int64) {
	if r.bar == nil {
		return
	}
	prev := r.fileBytes[path]
	if cum > prev {
		r.bar.Add64(cum - prev)
		r.doneBytes += cum - prev
		r.fileBytes[path] = cum
	}
}

// settle clears per-file bookkeeping once a transfer ends.
func (r *Renderer) settle(path string) {
	delete(r.fileBytes, path)
}

// println writes a line without corrupting the live bar.
func (r *Renderer) println(s string) {
	if r.bar != nil {
		r.bar.Write()
	}
	fmt.Fprintln(os.Stderr, s)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit && exp < 6 {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
