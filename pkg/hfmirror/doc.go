// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

/*
Package hfmirror mirrors a HuggingFace repository tree onto local storage,
preserving directory structure, skipping files that are already present, and
tolerating transient network failures with exponential backoff.

# Features

  - Recursive listing: paginated tree API walked to arbitrary depth
  - Resumable transfers: partial files continue from their current length
  - Idempotent runs: a file of the correct final size is never re-fetched
  - Retry with backoff: per-request and per-transfer, base * 2^(n-1)
  - File-vs-directory disambiguation of the root argument
  - Partial failure isolation: a failing subtree never blocks its siblings
  - Progress events: real-time callbacks for CLI/TUI/server integration

# Quick Start

	sum, err := hfmirror.Mirror(ctx,
		"https://huggingface.co/google/flan-t5-base/tree/main",
		hfmirror.Settings{OutputDir: "./flan-t5-base"},
		nil)
	if err != nil {
		log.Fatal(err)
	}
	if !sum.OK() {
		log.Printf("incomplete: %d failed, %d listing shortfalls", sum.Failed, sum.ListingShortfalls)
	}

A "resolve" URL, or Settings.ForceFile, fetches a single file instead:

	hfmirror.Mirror(ctx,
		"https://huggingface.co/google/flan-t5-base/resolve/main/config.json",
		hfmirror.Settings{OutputDir: "."}, nil)

# Pieces

ParseURL, Lister, Walker and Fetcher are exported individually for callers
that want to plan without downloading or fetch a prebuilt manifest; Mirror
wires them together.
*/
package hfmirror
