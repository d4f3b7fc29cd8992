package sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSink collects writes in memory for test assertions.
type memSink struct {
	mu      gosync.Mutex
	files   map[string][]byte
	removed []string
	putErr  error
}

func newMemSink() *memSink {
	return &memSink{files: make(map[string][]byte)}
}

func (s *memSink) Put(_ context.Context, name string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("short write for %s: got %d want %d", name, len(data), size)
	}
	s.files[name] = data
	return nil
}

func (s *memSink) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, name)
	delete(s.files, name)
	return nil
}

func (s *memSink) get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	return data, ok
}

func fastDownloaderConfig(workers int) DownloaderConfig {
	return DownloaderConfig{Workers: workers, Retry: fastRetry()}
}

func TestDownloader_FetchesBatch(t *testing.T) {
	content := map[string]string{
		"/a.txt": "alpha",
		"/b.txt": "bravo-longer",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := content[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body)) //nolint:errcheck
	}))
	defer srv.Close()

	sink := newMemSink()
	d := NewDownloader(srv.Client(), sink, nil, fastDownloaderConfig(2))

	files := []RemoteFile{
		{Name: "a.txt", URL: srv.URL + "/a.txt", SizeBytes: 5},
		{Name: "b.txt", URL: srv.URL + "/b.txt", SizeBytes: 12},
	}
	outcomes := d.Fetch(context.Background(), files)
	require.Len(t, outcomes, 2)
	for name, o := range outcomes {
		assert.NoError(t, o.Err, name)
	}

	data, ok := sink.get("a.txt")
	require.True(t, ok)
	assert.Equal(t, "alpha", string(data))
}

func TestDownloader_ConcurrencyBound(t *testing.T) {
	const workers = 3
	var inFlight, peak atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		w.Write([]byte("payload")) //nolint:errcheck
	}))
	defer srv.Close()

	files := make([]RemoteFile, 10)
	for i := range files {
		name := fmt.Sprintf("f%02d.txt", i)
		files[i] = RemoteFile{Name: name, URL: srv.URL + "/" + name, SizeBytes: 7}
	}

	d := NewDownloader(srv.Client(), newMemSink(), nil, fastDownloaderConfig(workers))
	outcomes := d.Fetch(context.Background(), files)

	require.Len(t, outcomes, 10)
	for name, o := range outcomes {
		assert.NoError(t, o.Err, name)
	}
	assert.LessOrEqual(t, peak.Load(), int32(workers), "in-flight transfers exceeded worker bound")
}

func TestDownloader_FailureIsolatedPerFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.txt" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	sink := newMemSink()
	d := NewDownloader(srv.Client(), sink, nil, fastDownloaderConfig(2))
	files := []RemoteFile{
		{Name: "good.txt", URL: srv.URL + "/good.txt", SizeBytes: 2},
		{Name: "bad.txt", URL: srv.URL + "/bad.txt", SizeBytes: 2},
	}

	outcomes := d.Fetch(context.Background(), files)
	require.Len(t, outcomes, 2)
	assert.NoError(t, outcomes["good.txt"].Err)

	var de *DownloadError
	require.ErrorAs(t, outcomes["bad.txt"].Err, &de)
	assert.Equal(t, "bad.txt", de.Name)

	_, ok := sink.get("good.txt")
	assert.True(t, ok, "sibling download survives a failure")
}

func TestDownloader_RetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("eventually")) //nolint:errcheck
	}))
	defer srv.Close()

	sink := newMemSink()
	d := NewDownloader(srv.Client(), sink, nil, fastDownloaderConfig(1))
	outcomes := d.Fetch(context.Background(), []RemoteFile{
		{Name: "flaky.txt", URL: srv.URL + "/flaky.txt", SizeBytes: 10},
	})

	require.NoError(t, outcomes["flaky.txt"].Err)
	assert.Equal(t, int32(3), calls.Load())
	_, ok := sink.get("flaky.txt")
	assert.True(t, ok)
}

func TestDownloader_SizeMismatchFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("short")) //nolint:errcheck
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client(), newMemSink(), nil, fastDownloaderConfig(1))
	outcomes := d.Fetch(context.Background(), []RemoteFile{
		{Name: "x.txt", URL: srv.URL + "/x.txt", SizeBytes: 999},
	})

	var de *DownloadError
	require.ErrorAs(t, outcomes["x.txt"].Err, &de)
}

func TestDownloader_DeduplicatesBatch(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("once")) //nolint:errcheck
	}))
	defer srv.Close()

	d := NewDownloader(srv.Client(), newMemSink(), nil, fastDownloaderConfig(2))
	f := RemoteFile{Name: "dup.txt", URL: srv.URL + "/dup.txt", SizeBytes: 4}
	outcomes := d.Fetch(context.Background(), []RemoteFile{f, f, f})

	require.Len(t, outcomes, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDownloader_EmptyBatchIsNoop(t *testing.T) {
	d := NewDownloader(nil, newMemSink(), nil, fastDownloaderConfig(2))
	outcomes := d.Fetch(context.Background(), nil)
	assert.Empty(t, outcomes)
}
