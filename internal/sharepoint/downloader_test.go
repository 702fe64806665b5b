package sharepoint

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadFile(t *testing.T) {
	var downloadAuth string
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/drives/d1/items/i1":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"id":"i1","name":"report.pdf","@microsoft.graph.downloadUrl":"%s/download/i1"}`, srv.URL)
		case "/drives/d1/items/i2":
			fmt.Fprintf(w, `{"id":"i2","name":"notes.txt","@content.downloadUrl":"%s/download/i2"}`, srv.URL)
		case "/download/i1":
			downloadAuth = r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF-1.4 content"))
		case "/download/i2":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("hello"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv, &sleepRecorder{})

	file, err := c.DownloadFile(context.Background(), srv.URL, "d1", "i1")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", file.Name)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.Equal(t, []byte("%PDF-1.4 content"), file.Content)
	assert.Empty(t, downloadAuth, "pre-signed download must not carry the bearer token")

	file, err = c.DownloadFile(context.Background(), srv.URL, "d1", "i2")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", file.Name)
	assert.Equal(t, []byte("hello"), file.Content)
}

func TestDownloadFileWithoutContentType(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/drives/d1/items/i3":
			fmt.Fprintf(w, `{"id":"i3","name":"plain","@microsoft.graph.downloadUrl":"%s/download/i3"}`, srv.URL)
		case "/download/i3":
			// nil keeps net/http from sniffing a type into the response
			w.Header()["Content-Type"] = nil
			w.Write([]byte("hello plain text"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv, &sleepRecorder{})

	file, err := c.DownloadFile(context.Background(), srv.URL, "d1", "i3")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", file.ContentType)
	assert.Equal(t, "text/plain; charset=utf-8", file.DetectedType)
	assert.Equal(t, []byte("hello plain text"), file.Content)
}

func TestDownloadFileFailures(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/drives/d1/items/nourl":
			w.Write([]byte(`{"id":"nourl","name":"x.bin"}`))
		case "/drives/d1/items/gone":
			fmt.Fprintf(w, `{"id":"gone","@microsoft.graph.downloadUrl":"%s/download/gone"}`, srv.URL)
		case "/download/gone":
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte("link expired"))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":"itemNotFound"}}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(srv, &sleepRecorder{})

	_, err := c.DownloadFile(context.Background(), srv.URL, "d1", "missing")
	assert.ErrorIs(t, err, ErrMetadataFetchFailed)

	_, err = c.DownloadFile(context.Background(), srv.URL, "d1", "nourl")
	assert.ErrorIs(t, err, ErrDownloadURLMissing)

	_, err = c.DownloadFile(context.Background(), srv.URL, "d1", "gone")
	require.ErrorIs(t, err, ErrDownloadFailed)
	assert.Contains(t, err.Error(), "link expired")
}
