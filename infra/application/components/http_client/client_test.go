package http_client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInstrumentedClient_PostJSONWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["msg"] != "ping" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	cli := NewClient("t", &HTTPClientConfig{
		BaseURL: srv.URL,
		Retry:   &RetryConfig{Enabled: true, MaxAttempts: 3, InitialBackoff: time.Millisecond},
	})
	var out struct {
		OK bool `json:"ok"`
	}
	_, err := cli.Post(context.Background(), "/hook", map[string]string{"msg": "ping"}, nil, &out)
	require.NoError(t, err)
	require.True(t, out.OK)
	require.Equal(t, int32(2), calls.Load())
}

func TestInstrumentedClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusConflict)
	}))
	defer srv.Close()

	cli := NewClient("t", &HTTPClientConfig{BaseURL: srv.URL})
	_, err := cli.Get(context.Background(), "x", map[string]string{"a": "1"}, nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusConflict, se.StatusCode)
	require.Equal(t, "nope", se.Body)
}
