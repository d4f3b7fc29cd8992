// Package population fetches the population statistics dataset. Unlike the
// directory mirror this is a plain fetch-and-overwrite: no diffing, no
// ledger, the previous payload is simply replaced.
package population

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/statmirror/statmirror/sync"
)

// Fetcher retrieves the population dataset and writes it through a Sink.
type Fetcher struct {
	client   *http.Client
	url      string
	headers  map[string]string
	sink     sync.Sink
	fileName string
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher storing the payload under fileName.
func NewFetcher(client *http.Client, url string, headers map[string]string, sink sync.Sink, fileName string, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fetcher{
		client:   client,
		url:      url,
		headers:  headers,
		sink:     sink,
		fileName: fileName,
		logger:   logger,
	}
}

// Run fetches the dataset and overwrites the stored payload. The response is
// re-indented before storage so the mirror copy stays diffable by hand.
func (f *Fetcher) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return fmt.Errorf("build population request: %w", err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch population data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch population data: unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read population response: %w", err)
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "    "); err != nil {
		return fmt.Errorf("population response is not valid JSON: %w", err)
	}

	if err := f.sink.Put(ctx, f.fileName, &indented, int64(indented.Len())); err != nil {
		return fmt.Errorf("store population data: %w", err)
	}
	f.logger.Info("population dataset stored", "file", f.fileName, "bytes", indented.Len())
	return nil
}
