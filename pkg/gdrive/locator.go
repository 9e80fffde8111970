// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package gdrive

import (
	"fmt"
	"regexp"
)

// Locator identifies a single Drive object.
type Locator struct {
	ID       string
	IsFolder bool
}

var (
	reFileD  = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	reFolder = regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`)
	reID     = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	reBareID = regexp.MustCompile(`^[a-zA-Z0-9_-]{10,}$`)
)

// ParseURL extracts the Drive object ID from a shared link. Accepted shapes:
//
//	https://drive.google.com/file/d/<id>/view
//	https://drive.google.com/drive/folders/<id>
//	https://drive.google.com/uc?id=<id>
//	https://drive.google.com/open?id=<id>
//	<id>                                       (bare ID, assumed to be a file)
func ParseURL(raw string) (Locator, error) {
	if m := reFolder.FindStringSubmatch(raw); m != nil {
		return Locator{ID: m[1], IsFolder: true}, nil
	}
	if m := reFileD.FindStringSubmatch(raw); m != nil {
		return Locator{ID: m[1]}, nil
	}
	if m := reID.FindStringSubmatch(raw); m != nil {
		return Locator{ID: m[1]}, nil
	}
	if reBareID.MatchString(raw) {
		return Locator{ID: raw}, nil
	}
	return Locator{}, fmt.Errorf("not a recognizable Google Drive URL or ID: %q", raw)
}
