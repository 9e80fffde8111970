// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfmirror

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultEndpoint is the default HuggingFace Hub URL.
// Override via Settings.Endpoint for mirrors or enterprise deployments.
const DefaultEndpoint = "https://huggingface.co"

// headerNextCursor carries the pagination cursor for the next listing page.
const headerNextCursor = "X-Next-Cursor"

func getEndpoint(endpoint string) string {
	if endpoint == "" {
		return DefaultEndpoint
	}
	return strings.TrimSuffix(endpoint, "/")
}

// buildHTTPClient creates an HTTP client with sensible defaults.
// Per-attempt deadlines come from request contexts, not the client.
func buildHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}

// addAuth adds authentication and user-agent headers to a request.
func addAuth(req *http.Request, token string) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "hfmirror/1")
}

// treeURL builds the paginated listing endpoint for a directory. The cursor
// from the previous page, if any, is re-submitted as a query parameter.
func treeURL(endpoint string, loc Locator, cursor string) string {
	ep := getEndpoint(endpoint)
	api := "models"
	if loc.IsDataset {
		api = "datasets"
	}
	// loc.RepoID contains "/" which must stay a literal slash
	u := fmt.Sprintf("%s/api/%s/%s/tree/%s", ep, api, loc.RepoID, url.PathEscape(loc.Ref))
	if loc.Path != "" {
		u += "/" + pathEscapeAll(loc.Path)
	}
	if cursor != "" {
		u += "?cursor=" + url.QueryEscape(cursor)
	}
	return u
}

// resolveURL builds the direct content link for a file path, under the same
// repository and ref the path was discovered with.
func resolveURL(endpoint string, loc Locator, path string) string {
	ep := getEndpoint(endpoint)
	if loc.IsDataset {
		return fmt.Sprintf("%s/datasets/%s/resolve/%s/%s", ep, loc.RepoID, url.PathEscape(loc.Ref), pathEscapeAll(path))
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s", ep, loc.RepoID, url.PathEscape(loc.Ref), pathEscapeAll(path))
}

func pathEscapeAll(p string) string {
	segs := strings.Split(p, "/")
	for i := range segs {
		segs[i] = url.PathEscape(segs[i])
	}
	return strings.Join(segs, "/")
}
