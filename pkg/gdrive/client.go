// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"hfmirror/pkg/hfmirror"
)

const (
	// DefaultAPIEndpoint is the Drive v3 REST API base.
	DefaultAPIEndpoint = "https://www.googleapis.com"
	// DefaultExportEndpoint serves public downloads without an API key.
	DefaultExportEndpoint = "https://drive.google.com"

	folderMimeType = "application/vnd.google-apps.folder"
)

// Settings configures a Drive mirror run.
type Settings struct {
	// OutputDir is the local root the tree is mirrored under.
	OutputDir string

	// APIKey enables listing and API downloads. Without it only public
	// single files can be fetched through the export endpoint.
	APIKey string

	Retries int
	Backoff time.Duration
	Timeout time.Duration
	Workers int

	APIEndpoint    string
	ExportEndpoint string
}

// ApplyDefaults fills zero values in place.
func (s *Settings) ApplyDefaults() {
	if s.OutputDir == "" {
		s.OutputDir = "."
	}
	if s.Retries <= 0 {
		s.Retries = 3
	}
	if s.Backoff <= 0 {
		s.Backoff = time.Second
	}
	if s.Timeout <= 0 {
		s.Timeout = 60 * time.Second
	}
	if s.Workers <= 0 {
		s.Workers = 1
	}
	if s.APIEndpoint == "" {
		s.APIEndpoint = DefaultAPIEndpoint
	}
	if s.ExportEndpoint == "" {
		s.ExportEndpoint = DefaultExportEndpoint
	}
}

// Object is one entry of a Drive folder listing.
type Object struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// IsFolder reports whether the object is a Drive folder.
func (o Object) IsFolder() bool { return o.MimeType == folderMimeType }

type driveFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	// Drive serializes sizes as decimal strings.
	Size string `json:"size"`
}

type driveList struct {
	NextPageToken string      `json:"nextPageToken"`
	Files         []driveFile `json:"files"`
}

type driveError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the Drive API for one mirror run.
type Client struct {
	httpc *http.Client
	cfg   Settings
	emit  func(hfmirror.ProgressEvent)
}

// NewClient returns a client using cfg. The progress callback may be nil.
func NewClient(cfg Settings, progress hfmirror.ProgressFunc) *Client {
	cfg.ApplyDefaults()
	emit := func(hfmirror.ProgressEvent) {}
	if progress != nil {
		emit = func(ev hfmirror.ProgressEvent) {
			if ev.Time.IsZero() {
				ev.Time = time.Now().UTC()
			}
			progress(ev)
		}
	}
	return &Client{
		httpc: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		cfg:  cfg,
		emit: emit,
	}
}

// ListFolder returns every object inside folderID, following pagination until
// the listing is exhausted. It needs an API key.
func (c *Client) ListFolder(ctx context.Context, folderID string) ([]Object, error) {
	if c.cfg.APIKey == "" {
		return nil, fmt.Errorf("listing folder %s: an API key is required", folderID)
	}

	var out []Object
	token := ""
	for {
		page, next, err := c.listPage(ctx, folderID, token)
		if err != nil {
			return out, err
		}
		out = append(out, page...)
		c.emit(hfmirror.ProgressEvent{
			Event:   "list_page",
			Path:    folderID,
			Message: fmt.Sprintf("listed %d objects", len(page)),
		})
		if next == "" {
			return out, nil
		}
		token = next
	}
}

// listPage fetches one files.list page, retrying transient failures.
func (c *Client) listPage(ctx context.Context, folderID, token string) ([]Object, string, error) {
	bo := hfmirror.NewBackoff(c.cfg.Backoff)
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			c.emit(hfmirror.ProgressEvent{
				Level:   "warn",
				Event:   "retry",
				Path:    folderID,
				Attempt: attempt,
				Message: lastErr.Error(),
			})
			if !hfmirror.SleepCtx(ctx, bo.Next()) {
				return nil, "", ctx.Err()
			}
		}
		objs, next, err := c.listOnce(ctx, folderID, token)
		if err == nil {
			return objs, next, nil
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("listing folder %s: %w", folderID, lastErr)
}

func (c *Client) listOnce(ctx context.Context, folderID, token string) ([]Object, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	q := url.Values{}
	q.Set("q", fmt.Sprintf("'%s' in parents and trashed=false", folderID))
	q.Set("fields", "nextPageToken,files(id,name,mimeType,size)")
	q.Set("pageSize", "1000")
	q.Set("key", c.cfg.APIKey)
	if token != "" {
		q.Set("pageToken", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.APIEndpoint+"/drive/v3/files?"+q.Encode(), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode != http.StatusOK {
		var de driveError
		if json.Unmarshal(body, &de) == nil && de.Error.Message != "" {
			return nil, "", fmt.Errorf("drive API %d: %s", resp.StatusCode, de.Error.Message)
		}
		return nil, "", fmt.Errorf("drive API returned %s", resp.Status)
	}

	var list driveList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, "", fmt.Errorf("decoding listing: %w", err)
	}

	objs := make([]Object, 0, len(list.Files))
	for _, f := range list.Files {
		size, _ := strconv.ParseInt(f.Size, 10, 64)
		objs = append(objs, Object{ID: f.ID, Name: f.Name, MimeType: f.MimeType, Size: size})
	}
	return objs, list.NextPageToken, nil
}

var confirmRe = regexp.MustCompile(`confirm=([0-9A-Za-z_-]+)`)

// downloadURL picks the transport for a file. With an API key the bytes come
// from the API (alt=media); otherwise the public export endpoint is used.
func (c *Client) downloadURL(fileID string) string {
	if c.cfg.APIKey != "" {
		return fmt.Sprintf("%s/drive/v3/files/%s?alt=media&key=%s",
			c.cfg.APIEndpoint, url.PathEscape(fileID), url.QueryEscape(c.cfg.APIKey))
	}
	return fmt.Sprintf("%s/uc?export=download&id=%s", c.cfg.ExportEndpoint, url.QueryEscape(fileID))
}

// confirmToken scans an interstitial HTML page for the virus-scan confirm
// token Drive emits for large public files. Empty when absent.
func confirmToken(resp *http.Response, body []byte) string {
	for _, ck := range resp.Cookies() {
		if strings.HasPrefix(ck.Name, "download_warning") {
			return ck.Value
		}
	}
	if m := confirmRe.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return ""
}
