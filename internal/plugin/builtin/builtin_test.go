package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/http_client"
	"github.com/timelyrain333/bifang-sub000/internal/plugin"
)

type clients map[string]*http_client.InstrumentedClient

func (c clients) Client(name string) (*http_client.InstrumentedClient, error) {
	if cli, ok := c[name]; ok {
		return cli, nil
	}
	return nil, fmt.Errorf("http client %s not found", name)
}

func TestNoop(t *testing.T) {
	p, err := plugin.New(NoopName, plugin.Env{})
	require.NoError(t, err)

	v, err := p.Run(context.Background(), map[string]any{"b": 1, "a": 2})
	require.NoError(t, err)
	r, err := plugin.Normalize(v)
	require.NoError(t, err)
	require.True(t, r.Success)
	require.Equal(t, []string{"a", "b"}, r.Data["keys"])

	_, err = p.Run(context.Background(), map[string]any{"fail": true})
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Run(ctx, map[string]any{"sleep": "1m"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCredentialCheck(t *testing.T) {
	p, err := plugin.New("aws_credential_check", plugin.Env{})
	require.NoError(t, err)
	require.Equal(t, plugin.ProviderAWS, p.Descriptor().Provider)

	v, err := p.Run(context.Background(), map[string]any{"access_key_id": "AK"})
	require.NoError(t, err)
	r, _ := plugin.Normalize(v)
	require.False(t, r.Success)
	require.Contains(t, r.Message, "secret_access_key")

	v, err = p.Run(context.Background(), map[string]any{"access_key_id": "AK", "secret_access_key": "SK", "region": "us-east-1"})
	require.NoError(t, err)
	r, _ = plugin.Normalize(v)
	require.True(t, r.Success)
}

func TestWebhookForwarder(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		if r.Header.Get("X-Token") != "t1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got["severity"] == "bad" {
			_, _ = w.Write([]byte(`{"status":"rejected","error":"severity not accepted"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","id":"abc"}`))
	}))
	defer srv.Close()

	cli := http_client.NewClient("webhook", &http_client.HTTPClientConfig{Timeout: 2 * time.Second})
	p, err := plugin.New(WebhookName, plugin.Env{HTTPClients: clients{"webhook": cli}})
	require.NoError(t, err)

	cfg := map[string]any{
		"url":     srv.URL + "/hook",
		"payload": map[string]any{"severity": "high"},
		"headers": map[string]any{"X-Token": "t1"},
	}
	v, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	r, err := plugin.Normalize(v)
	require.NoError(t, err)
	require.True(t, r.Success)
	require.Equal(t, "high", got["severity"])
	require.Equal(t, "abc", r.Data["response"].(map[string]any)["id"])

	cfg["payload"] = map[string]any{"severity": "bad"}
	v, err = p.Run(context.Background(), cfg)
	require.NoError(t, err)
	r, _ = plugin.Normalize(v)
	require.False(t, r.Success)
	require.Equal(t, "severity not accepted", r.Message)

	cfg["headers"] = map[string]any{}
	_, err = p.Run(context.Background(), cfg)
	var se *http_client.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusUnauthorized, se.StatusCode)

	_, err = p.Run(context.Background(), map[string]any{"url": srv.URL, "client": "other"})
	require.Error(t, err)
}
