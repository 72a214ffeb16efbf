package authclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	refreshOK    bool
	alwaysDeny   bool
	apiCalls     atomic.Int32
	refreshCalls atomic.Int32
	authorized   atomic.Bool
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/echo", func(w http.ResponseWriter, r *http.Request) {
		f.apiCalls.Add(1)
		if f.alwaysDeny || !f.authorized.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		if r.Method != http.MethodPost || !f.refreshOK {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.authorized.Store(true)
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeServer) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL + "/")
	require.NoError(t, err)
	return c, srv.URL
}

func TestFetchWithAuth_NoRefreshWhenAuthorized(t *testing.T) {
	f := &fakeServer{}
	f.authorized.Store(true)
	c, base := newTestClient(t, f)

	req, err := http.NewRequest(http.MethodGet, base+"/api/echo", nil)
	require.NoError(t, err)

	resp, err := c.FetchWithAuth(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), f.apiCalls.Load())
	assert.Equal(t, int32(0), f.refreshCalls.Load())
}

func TestFetchWithAuth_RefreshesAndReplaysBody(t *testing.T) {
	f := &fakeServer{refreshOK: true}
	c, base := newTestClient(t, f)

	req, err := http.NewRequest(http.MethodPost, base+"/api/echo", strings.NewReader(`{"n":1}`))
	require.NoError(t, err)

	resp, err := c.FetchWithAuth(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"n":1}`, string(body))
	assert.Equal(t, int32(2), f.apiCalls.Load())
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestFetchWithAuth_RefreshRefused(t *testing.T) {
	f := &fakeServer{refreshOK: false}
	c, base := newTestClient(t, f)

	req, err := http.NewRequest(http.MethodGet, base+"/api/echo", nil)
	require.NoError(t, err)

	resp, err := c.FetchWithAuth(context.Background(), req)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Nil(t, resp)
	assert.Equal(t, int32(1), f.apiCalls.Load())
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestFetchWithAuth_RetriesAtMostOnce(t *testing.T) {
	f := &fakeServer{refreshOK: true, alwaysDeny: true}
	c, base := newTestClient(t, f)

	req, err := http.NewRequest(http.MethodGet, base+"/api/echo", nil)
	require.NoError(t, err)

	resp, err := c.FetchWithAuth(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(2), f.apiCalls.Load())
	assert.Equal(t, int32(1), f.refreshCalls.Load())
}

func TestLogin_StatusError(t *testing.T) {
	f := &fakeServer{}
	c, _ := newTestClient(t, f)

	_, err := c.Login(context.Background(), "admin", "admin123")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Status)
}
