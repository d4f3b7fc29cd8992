package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// listingTimeLayout matches origin listings of the form "3/12/2024 8:30 AM".
const listingTimeLayout = "1/2/2006 3:04 PM"

// Lister fetches the origin directory listing and extracts file records.
// Listing content that doesn't match the pattern is skipped; only a listing
// with zero matches is an error.
type Lister struct {
	client  *http.Client
	baseURL string
	path    string
	headers map[string]string
	pattern *regexp.Regexp
	retry   RetryPolicy
}

// NewLister creates a Lister. pattern must capture five groups in order:
// date, time, size, href, display name.
func NewLister(client *http.Client, baseURL, path string, headers map[string]string, pattern *regexp.Regexp, retry RetryPolicy) *Lister {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Lister{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    path,
		headers: headers,
		pattern: pattern,
		retry:   retry,
	}
}

// List fetches and parses the directory listing. Transport failures are
// retried under the lister's policy; exhaustion surfaces a TransportError
// and aborts the cycle before any ledger mutation.
func (ls *Lister) List(ctx context.Context) ([]RemoteFile, error) {
	l := sub("lister")
	url := ls.baseURL + ls.path

	var body string
	err := ls.retry.Do(ctx, func() error {
		var fetchErr error
		body, fetchErr = ls.fetch(ctx, url)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}

	files, skipped := ls.parse(body)
	if len(files) == 0 {
		l.Error("listing parsed to zero entries", "url", url)
		return nil, ErrEmptyListing
	}
	l.Info("listing fetched", "url", url, "entries", len(files), "skippedEntries", skipped)
	return files, nil
}

func (ls *Lister) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build listing request: %w", err)
	}
	for k, v := range ls.headers {
		req.Header.Set(k, v)
	}

	resp, err := ls.client.Do(req)
	if err != nil {
		return "", &TransportError{Op: "fetch listing", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{
			Op:  "fetch listing",
			URL: url,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "read listing", URL: url, Err: err}
	}
	return string(data), nil
}

// parse extracts every pattern match from the whole body. Origins delimit
// entries with <br> tags as often as with physical newlines, so matching must
// not depend on line structure. Returns the extracted records and the count
// of matched entries that didn't parse.
func (ls *Lister) parse(body string) ([]RemoteFile, int) {
	l := sub("lister")
	var files []RemoteFile
	skipped := 0

	for _, m := range ls.pattern.FindAllStringSubmatch(body, -1) {
		if len(m) < 6 {
			skipped++
			continue
		}
		dateStr, timeStr, sizeStr, href, name := m[1], m[2], m[3], m[4], m[5]

		modified, err := time.Parse(listingTimeLayout, dateStr+" "+timeStr)
		if err != nil {
			l.Warn("unparseable listing timestamp, skipping entry", "name", name, "err", err)
			skipped++
			continue
		}
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			l.Warn("unparseable listing size, skipping entry", "name", name, "err", err)
			skipped++
			continue
		}

		files = append(files, RemoteFile{
			Name:       name,
			ModifiedAt: modified.UTC(),
			SizeBytes:  size,
			URL:        ls.baseURL + href,
		})
	}
	return files, skipped
}
