package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	appLog "breakcal/internal/log"
)

// Subscription is a calendar published at a URL that is re-imported on a
// schedule.
type Subscription struct {
	// ID labels the events imported from this URL in the store.
	ID  string
	URL string
}

// FetchResult is the payload of one subscription.
type FetchResult struct {
	Subscription Subscription
	Body         []byte
	FromCache    bool // true when the body came from disk (304 or fallback)

	// validators of a fresh download, written to the cache by Commit
	meta *cacheMeta
}

// cacheMeta holds HTTP validators for one subscription URL.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads subscriptions with conditional requests and keeps the
// last good payload on disk so a flaky server does not empty the agenda.
// A fresh download only replaces the cached payload once the caller has
// accepted it and calls Commit.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher creates a Fetcher caching under cacheDir. A nil client gets a
// 15s timeout client.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir}
}

// Fetch downloads one subscription. Any failure without a cached payload
// to fall back on is returned as *IOError.
func (f *Fetcher) Fetch(ctx context.Context, sub Subscription) (FetchResult, error) {
	label := redactURL(sub.URL)
	if sub.URL == "" {
		return FetchResult{}, &IOError{Source: sub.ID, Err: errors.New("subscription URL is empty")}
	}

	dir := f.cacheDirFor(sub.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return FetchResult{}, &IOError{Source: label, Err: err}
	}

	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "payload.ics"))

	fallback := func(cause error) (FetchResult, error) {
		if len(cached) == 0 {
			return FetchResult{}, &IOError{Source: label, Err: cause}
		}
		appLog.Error("ics fetch failed, using cached payload", cause, "id", sub.ID, "url", label)
		return FetchResult{Subscription: sub, Body: cached, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.URL, nil)
	if err != nil {
		return FetchResult{}, &IOError{Source: label, Err: err}
	}
	req.Header.Set("Accept", "text/calendar")
	// Only send validators when there is something to revalidate.
	if len(cached) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("ics fetch start", "id", sub.ID, "url", label)

	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := Read(resp.Body, label)
		if err != nil {
			return fallback(err)
		}
		m := &cacheMeta{
			URL:          sub.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		appLog.Info("ics fetch success", "id", sub.ID, "url", label, "bytes", len(body))
		return FetchResult{Subscription: sub, Body: body, meta: m}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, &IOError{Source: label, Err: errors.New("304 Not Modified without cached payload")}
		}
		appLog.Info("ics fetch not modified", "id", sub.ID, "url", label)
		return FetchResult{Subscription: sub, Body: cached, FromCache: true}, nil

	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return fallback(fmt.Errorf("unexpected status %s", resp.Status))
	}
}

// Commit stores a freshly downloaded payload as the subscription's last
// good payload. Results served from the cache are left alone.
func (f *Fetcher) Commit(res FetchResult) error {
	if res.FromCache || res.meta == nil {
		return nil
	}
	dir := f.cacheDirFor(res.meta.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return saveCache(dir, *res.meta, res.Body)
}

func (f *Fetcher) cacheDirFor(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

func saveCache(dir string, meta cacheMeta, body []byte) error {
	// Body first so meta never points at a missing payload.
	if err := os.WriteFile(filepath.Join(dir, "payload.ics"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps only scheme and host; subscription paths and queries
// usually embed a private token.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
