package sync

import (
	"context"
	"fmt"
	"net/http"
	gosync "sync"
	"time"

	"golang.org/x/time/rate"
)

// Downloader retrieves the files a diff marked NEW or UPDATED and writes
// their bytes through the Sink. It never touches the ledger: per-file
// outcomes go back to the Tracker for commit.
type Downloader struct {
	client  *http.Client
	sink    Sink
	headers map[string]string
	workers int
	retry   RetryPolicy
	limiter *rate.Limiter // nil = unthrottled
}

// DownloaderConfig holds downloader tuning.
type DownloaderConfig struct {
	Workers        int
	Retry          RetryPolicy
	RequestsPerSec float64 // ≤0 disables throttling
}

// DefaultDownloaderConfig downloads with four workers, the default retry
// policy, and no throttle.
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		Workers: 4,
		Retry:   DefaultRetryPolicy(),
	}
}

// NewDownloader creates a Downloader writing through sink.
func NewDownloader(client *http.Client, sink Sink, headers map[string]string, cfg DownloaderConfig) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1)
	}
	return &Downloader{
		client:  client,
		sink:    sink,
		headers: headers,
		workers: cfg.Workers,
		retry:   cfg.Retry,
		limiter: limiter,
	}
}

// Fetch downloads the batch with at most the configured number of transfers
// in flight. Files complete in arbitrary order. A file that exhausts its
// retry budget is marked failed; sibling downloads proceed regardless.
// The returned map has one outcome per requested file name.
func (d *Downloader) Fetch(ctx context.Context, files []RemoteFile) map[string]Outcome {
	l := sub("downloader")
	queue := newJobQueue(files)
	outcomes := make(map[string]Outcome, queue.len())
	if queue.len() == 0 {
		return outcomes
	}
	l.Info("download batch starting", "files", queue.len(), "workers", d.workers)

	var (
		mu gosync.Mutex
		wg gosync.WaitGroup
	)
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok := queue.pop()
				if !ok {
					return
				}
				err := d.fetchOne(ctx, job)
				if err != nil {
					err = &DownloadError{Name: job.Name, Err: err}
					l.Warn("download failed", "file", job.Name, "err", err)
				} else {
					l.Info("downloaded", "file", job.Name, "bytes", job.SizeBytes)
				}
				mu.Lock()
				outcomes[job.Name] = Outcome{Name: job.Name, Err: err}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return outcomes
}

// fetchOne retrieves a single file under the retry policy and stores it.
func (d *Downloader) fetchOne(ctx context.Context, job RemoteFile) error {
	return d.retry.Do(ctx, func() error {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		for k, v := range d.headers {
			req.Header.Set(k, v)
		}

		resp, err := d.client.Do(req)
		if err != nil {
			return &TransportError{Op: "download", URL: job.URL, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &TransportError{
				Op:  "download",
				URL: job.URL,
				Err: fmt.Errorf("unexpected status %d", resp.StatusCode),
			}
		}

		// Sink writes overwrite, so a retried transfer is safe to repeat.
		// The listing size is the expected size; zero means unknown.
		size := job.SizeBytes
		if size <= 0 {
			size = -1
		}
		if err := d.sink.Put(ctx, job.Name, resp.Body, size); err != nil {
			return &TransportError{Op: "store", URL: job.URL, Err: err}
		}
		return nil
	})
}
