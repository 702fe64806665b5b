package sharepoint

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func newTestClient(srv *httptest.Server, rec *sleepRecorder) *Client {
	return NewClient("test-token", WithHTTPClient(srv.Client()), WithSleep(rec.sleep))
}

func TestBackoffSchedule(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>Something went wrong</html>"))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := newTestClient(srv, rec)

	_, err := c.do(context.Background(), request{method: http.MethodGet, url: srv.URL, maxRetries: DefaultMaxRetries})
	require.ErrorIs(t, err, ErrTransientExhausted)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
	assert.EqualValues(t, 4, hits.Load())
}

func TestTokenExpiredIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"InvalidAuthenticationToken","message":"Lifetime validation failed","innerError":{"code":"TokenExpired"}}}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	_, err := newTestClient(srv, rec).ListFolder(context.Background(), srv.URL, "d1", "root")
	require.ErrorIs(t, err, ErrTokenExpired)
	assert.Empty(t, rec.delays)
	assert.EqualValues(t, 1, hits.Load())
}

func TestUnauthorizedClassification(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"outer code expired", `{"error":{"code":"ExpiredAuthenticationToken"}}`, ErrTokenExpired},
		{"unauthenticated", `{"error":{"code":"unauthenticated"}}`, ErrTokenExpired},
		{"other code", `{"error":{"code":"InvalidAuthenticationToken","innerError":{"code":"BadSignature"}}}`, ErrAuthFailed},
		{"not json", `Unauthorized`, ErrAuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			rec := &sleepRecorder{}
			_, err := newTestClient(srv, rec).do(context.Background(), request{method: http.MethodGet, url: srv.URL, maxRetries: 3})
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, rec.delays)
		})
	}
}

func TestRetryRecoversFromHTMLPage(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	resp, err := newTestClient(srv, rec).do(context.Background(), request{method: http.MethodGet, url: srv.URL, maxRetries: 3})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"value":[]}`, string(resp.Body))
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
}

func TestNetworkErrorsExhaustRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	rec := &sleepRecorder{}
	c := NewClient("test-token", WithSleep(rec.sleep))
	_, err := c.do(context.Background(), request{method: http.MethodGet, url: url, maxRetries: 2})
	require.ErrorIs(t, err, ErrTransientExhausted)
	assert.Len(t, rec.delays, 2)
}

func TestNonSuccessStatusIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"itemNotFound"}}`))
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	resp, err := newTestClient(srv, rec).do(context.Background(), request{method: http.MethodGet, url: srv.URL, maxRetries: 3})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Empty(t, rec.delays)
}

func TestBearerTokenIsSent(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, &sleepRecorder{}).do(context.Background(), request{method: http.MethodGet, url: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", auth)
}

func TestCancelledContextStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := NewClient("test-token", WithHTTPClient(srv.Client()), WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))
	_, err := c.do(ctx, request{method: http.MethodGet, url: srv.URL, maxRetries: 3})
	assert.ErrorIs(t, err, context.Canceled)
}
