package population

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statmirror/statmirror/sync"
)

func TestRun_StoresIndentedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"Year":"2021","Population":331893745}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	sink := sync.NewFileSink(fs, "/mirror")
	f := NewFetcher(srv.Client(), srv.URL, nil, sink, "population.json", nil)

	require.NoError(t, f.Run(context.Background()))

	data, err := afero.ReadFile(fs, "/mirror/population.json")
	require.NoError(t, err)
	want := `{
    "data": [
        {
            "Year": "2021",
            "Population": 331893745
        }
    ]
}`
	assert.Equal(t, want, string(data))
}

func TestRun_SendsConfiguredHeaders(t *testing.T) {
	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		w.Write([]byte(`{}`)) //nolint:errcheck
	}))
	defer srv.Close()

	sink := sync.NewFileSink(afero.NewMemMapFs(), "/mirror")
	headers := map[string]string{"User-Agent": "statmirror/1.0 (ops@example.test)"}
	f := NewFetcher(srv.Client(), srv.URL, headers, sink, "population.json", nil)

	require.NoError(t, f.Run(context.Background()))
	assert.Equal(t, "statmirror/1.0 (ops@example.test)", gotAgent)
}

func TestRun_OverwritesPreviousPayload(t *testing.T) {
	payload := `{"data":"v1"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload)) //nolint:errcheck
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	sink := sync.NewFileSink(fs, "/mirror")
	f := NewFetcher(srv.Client(), srv.URL, nil, sink, "population.json", nil)

	require.NoError(t, f.Run(context.Background()))
	payload = `{"data":"v2"}`
	require.NoError(t, f.Run(context.Background()))

	data, err := afero.ReadFile(fs, "/mirror/population.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "v2")
	assert.NotContains(t, string(data), "v1")
}

func TestRun_RejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance page</html>")) //nolint:errcheck
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	sink := sync.NewFileSink(fs, "/mirror")
	f := NewFetcher(srv.Client(), srv.URL, nil, sink, "population.json", nil)

	err := f.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not valid JSON")

	exists, _ := afero.Exists(fs, "/mirror/population.json")
	assert.False(t, exists, "invalid payload must not replace the stored copy")
}

func TestRun_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sink := sync.NewFileSink(afero.NewMemMapFs(), "/mirror")
	f := NewFetcher(srv.Client(), srv.URL, nil, sink, "population.json", nil)

	err := f.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 429")
}
