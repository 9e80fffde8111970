// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfmirror

import (
	"errors"
	"fmt"
)

// ErrNotADirectory signals that a path handed to the lister is actually a
// single file. It is a discovery outcome, not a failure: the walker reacts by
// emitting the single-file interpretation of the path.
var ErrNotADirectory = errors.New("path is not a directory")

// InvalidURLError is returned when the root URL cannot be parsed into a
// Locator. It is fatal and aborts before any I/O.
type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid URL %q: %s", e.URL, e.Reason)
}

// ListingError is returned when the metadata endpoint exhausted its retries
// for one directory. The subtree is abandoned; siblings proceed.
type ListingError struct {
	Path string
	Err  error
}

func (e *ListingError) Error() string {
	p := e.Path
	if p == "" {
		p = "<root>"
	}
	return fmt.Sprintf("listing %s: %v", p, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

// TransferError is returned when a single file exhausted its transfer
// retries. It is recorded as a failed item; the run continues.
type TransferError struct {
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// FilesystemError is returned when a destination directory cannot be
// created. Fatal for that item only.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem %s: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// statusError carries a non-2xx HTTP response through the retry loop.
type statusError struct {
	Code   int
	Status string
}

func (e *statusError) Error() string {
	return "bad status: " + e.Status
}
