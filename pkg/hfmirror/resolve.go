// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfmirror

import (
	"net/url"
	"strings"
)

// ParseURL parses a huggingface.co URL into a Locator. Pure, no I/O.
//
// Recognized shapes:
//
//	https://huggingface.co/<owner>/<name>
//	https://huggingface.co/<owner>/<name>/tree/<ref>[/<path...>]
//	https://huggingface.co/<owner>/<name>/resolve/<ref>/<path...>
//	https://huggingface.co/datasets/<owner>/<name>[/tree|resolve/...]
//
// An unrecognized third segment is folded into the path with ref "main",
// matching what the hub does for bare /<owner>/<name>/<path> links.
func ParseURL(raw string) (Locator, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Locator{}, &InvalidURLError{URL: raw, Reason: err.Error()}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if host != "huggingface.co" {
		return Locator{}, &InvalidURLError{URL: raw, Reason: "host is not huggingface.co"}
	}

	segs := splitPath(u.Path)

	loc := Locator{Ref: "main"}
	if len(segs) > 0 && segs[0] == "datasets" {
		loc.IsDataset = true
		segs = segs[1:]
	}
	if len(segs) < 2 {
		return Locator{}, &InvalidURLError{URL: raw, Reason: "expected owner/name in path"}
	}
	loc.RepoID = segs[0] + "/" + segs[1]

	if len(segs) > 2 {
		switch segs[2] {
		case "tree":
			if len(segs) > 3 {
				loc.Ref = segs[3]
				loc.Path = strings.Join(segs[4:], "/")
			}
		case "resolve":
			loc.Kind = KindFile
			if len(segs) > 3 {
				loc.Ref = segs[3]
				loc.Path = strings.Join(segs[4:], "/")
			}
		default:
			loc.Path = strings.Join(segs[2:], "/")
		}
	}

	return loc, nil
}

// splitPath returns the non-empty segments of a URL path.
func splitPath(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// ValidRepoID checks "owner/name" shape.
func ValidRepoID(id string) bool {
	parts := strings.Split(id, "/")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}
