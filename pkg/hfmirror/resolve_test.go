// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfmirror

import (
	"errors"
	"testing"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Locator
	}{
		{
			name: "tree with ref",
			url:  "https://huggingface.co/google/flan-t5-base/tree/main",
			want: Locator{RepoID: "google/flan-t5-base", Ref: "main", Kind: KindUnknown},
		},
		{
			name: "tree with nested path",
			url:  "https://huggingface.co/stabilityai/sdxl-base/tree/main/text_encoder/weights",
			want: Locator{RepoID: "stabilityai/sdxl-base", Ref: "main", Path: "text_encoder/weights", Kind: KindUnknown},
		},
		{
			name: "tree with tag ref",
			url:  "https://huggingface.co/google/flan-t5-base/tree/v1.0",
			want: Locator{RepoID: "google/flan-t5-base", Ref: "v1.0", Kind: KindUnknown},
		},
		{
			name: "resolve is a file",
			url:  "https://huggingface.co/google/flan-t5-base/resolve/main/config.json",
			want: Locator{RepoID: "google/flan-t5-base", Ref: "main", Path: "config.json", Kind: KindFile},
		},
		{
			name: "bare repo",
			url:  "https://huggingface.co/google/flan-t5-base",
			want: Locator{RepoID: "google/flan-t5-base", Ref: "main"},
		},
		{
			name: "tree without ref",
			url:  "https://huggingface.co/google/flan-t5-base/tree",
			want: Locator{RepoID: "google/flan-t5-base", Ref: "main"},
		},
		{
			name: "unrecognized marker folds into path",
			url:  "https://huggingface.co/google/flan-t5-base/some/nested/path",
			want: Locator{RepoID: "google/flan-t5-base", Ref: "main", Path: "some/nested/path"},
		},
		{
			name: "dataset tree",
			url:  "https://huggingface.co/datasets/tiange/Cap3D/tree/main/PointCloud_pt_zips",
			want: Locator{RepoID: "tiange/Cap3D", IsDataset: true, Ref: "main", Path: "PointCloud_pt_zips"},
		},
		{
			name: "www host accepted",
			url:  "https://www.huggingface.co/google/flan-t5-base",
			want: Locator{RepoID: "google/flan-t5-base", Ref: "main"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseURL(tt.url)
			if err != nil {
				t.Fatalf("ParseURL(%q) failed: %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("ParseURL(%q) = %+v, want %+v", tt.url, got, tt.want)
			}
		})
	}
}

func TestParseURL_Invalid(t *testing.T) {
	urls := []string{
		"https://example.com/google/flan-t5-base/tree/main",
		"https://huggingface.co/",
		"https://huggingface.co/google",
		"https://huggingface.co/datasets/tiange",
		"://not-a-url",
	}

	for _, u := range urls {
		_, err := ParseURL(u)
		if err == nil {
			t.Errorf("ParseURL(%q) should fail", u)
			continue
		}
		var ie *InvalidURLError
		if !errors.As(err, &ie) {
			t.Errorf("ParseURL(%q) error = %T, want *InvalidURLError", u, err)
		}
	}
}

func TestValidRepoID(t *testing.T) {
	valid := []string{"owner/name", "a/b"}
	invalid := []string{"", "owner", "/name", "owner/", "a/b/c"}

	for _, id := range valid {
		if !ValidRepoID(id) {
			t.Errorf("ValidRepoID(%q) = false, want true", id)
		}
	}
	for _, id := range invalid {
		if ValidRepoID(id) {
			t.Errorf("ValidRepoID(%q) = true, want false", id)
		}
	}
}
