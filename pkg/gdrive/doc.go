// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package gdrive mirrors Google Drive files and folders to local storage.
//
// It speaks the Drive v3 REST API directly: folder contents are listed with
// files.list (pageToken pagination), and file bytes are fetched either through
// the API (alt=media, when an API key is set) or through the public
// uc?export=download endpoint with its confirm-token dance for large files.
//
// Folder mirroring recurses depth first and downloads the files of each
// folder through a bounded worker pool. Files that already exist locally with
// the expected size are skipped, so an interrupted mirror can be rerun.
package gdrive
