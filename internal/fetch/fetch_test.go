package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGet_UserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cl, err := New(Options{Timeout: 2 * time.Second, UserAgent: "test-agent/1.0"})
	require.NoError(t, err)
	resp, err := cl.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, "test-agent/1.0", gotUA)
}

func TestGet_StatusErrorNoRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cl, err := New(Options{Timeout: 2 * time.Second})
	require.NoError(t, err)
	_, err = cl.Get(context.Background(), srv.URL)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadGateway, se.Code)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGet_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	cl, err := New(Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = cl.Get(ctx, srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_BadProxy(t *testing.T) {
	_, err := New(Options{ProxyHTTP: "://bad"})
	require.Error(t, err)
}
