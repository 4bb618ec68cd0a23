package cvm

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdacli/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(baseURL string) config.CVMConfig {
	return config.CVMConfig{
		BaseURL:      baseURL,
		FilePrefix:   "cda_fi_",
		UserAgent:    "test-agent",
		ListTimeout:  5 * time.Second,
		FetchTimeout: 5 * time.Second,
	}
}

const listingHTML = `<html><body><pre>
<a href="cda_fi_202312.zip">cda_fi_202312.zip</a> 2024-01-05 120M
<a href="cda_fi_202401.zip">cda_fi_202401.zip</a> 2024-02-05 118M
<a href="cda_fi_202402.zip">cda_fi_202402.zip</a> 2024-03-05 121M
<a href="cda_fi_202402.zip">cda_fi_202402.zip</a> duplicate row
<a href="meta_cda.txt">meta_cda.txt</a>
</pre></body></html>`

func TestListAvailableParsesAndSortsDescending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		io.WriteString(w, listingHTML)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), testLogger())

	periods, err := client.ListAvailable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"202402", "202401", "202312"}, periods)
}

func TestListAvailableNoArchives(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html><body>nothing here</body></html>")
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), testLogger())

	_, err := client.ListAvailable(context.Background())
	assert.ErrorIs(t, err, ErrNoArchives)
}

func TestListAvailableStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), testLogger())

	_, err := client.ListAvailable(context.Background())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestDiscoverLatest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, listingHTML)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), testLogger())

	period, url, err := client.DiscoverLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "202402", period)
	assert.Equal(t, srv.URL+"/cda_fi_202402.zip", url)
}

func TestArchiveURL(t *testing.T) {
	client := NewClient(testConfig("https://example.com/dados"), testLogger())
	assert.Equal(t, "https://example.com/dados/cda_fi_202401.zip", client.ArchiveURL("202401"))
}

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestFetchReturnsArchive(t *testing.T) {
	zipData := buildZip(t, map[string][]byte{
		"cda_fi_BLC_4_202401.csv": []byte("TP_FUNDO;CNPJ_FUNDO\nFI;123"),
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cda_fi_202401.zip", r.URL.Path)
		w.Write(zipData)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), testLogger())

	archive, err := client.Fetch(context.Background(), "202401")
	require.NoError(t, err)
	assert.Equal(t, "202401", archive.Period())
	assert.Equal(t, len(zipData), archive.Size())
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), testLogger())

	_, err := client.Fetch(context.Background(), "209912")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestArchiveCSVFiles(t *testing.T) {
	zipData := buildZip(t, map[string][]byte{
		"cda_fi_BLC_4_202401.csv": []byte("a;b"),
		"cda_fi_BLC_1_202401.CSV": []byte("a;b"),
		"meta_cda.txt":            []byte("notes"),
	})

	archive := NewArchive("202401", zipData)

	names, err := archive.CSVFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"cda_fi_BLC_1_202401.CSV", "cda_fi_BLC_4_202401.csv"}, names)
}

func TestArchiveOpenDecodesLatin1(t *testing.T) {
	// "AÇÃO" in ISO 8859-1: C7 = Ç, C3 = Ã.
	latin1 := []byte{'A', 0xC7, 0xC3, 'O'}
	zipData := buildZip(t, map[string][]byte{
		"cda_fi_BLC_4_202401.csv": latin1,
	})

	archive := NewArchive("202401", zipData)

	rc, err := archive.Open("cda_fi_BLC_4_202401.csv")
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "AÇÃO", string(content))
}

func TestArchiveOpenMissingFile(t *testing.T) {
	zipData := buildZip(t, map[string][]byte{"a.csv": []byte("x")})
	archive := NewArchive("202401", zipData)

	_, err := archive.Open("missing.csv")
	assert.Error(t, err)
}

func TestArchiveCorruptZip(t *testing.T) {
	archive := NewArchive("202401", []byte("not a zip"))

	_, err := archive.CSVFiles()
	assert.Error(t, err)
}
