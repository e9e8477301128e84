package http_client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
)

// StatusError 非 2xx/3xx 响应, Body 截断到 4KB
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http error status=%d body=%s", e.StatusCode, e.Body)
}

type InstrumentedClient struct {
	Name           string
	BaseURL        string
	DefaultHeaders map[string]string
	Client         *http.Client
	Retry          *RetryConfig
	Underlying     *http.Transport
}

// NewClient 构建带 otelhttp transport 的客户端; 组件与 CLI 共用
func NewClient(name string, cfg *HTTPClientConfig) *InstrumentedClient {
	if cfg == nil {
		cfg = &HTTPClientConfig{}
	}
	cfg.applyDefaults()
	underlying := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &InstrumentedClient{
		Name:           name,
		BaseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		DefaultHeaders: cfg.DefaultHeaders,
		Client:         &http.Client{Timeout: cfg.Timeout, Transport: otelhttp.NewTransport(underlying)},
		Retry:          cfg.Retry,
		Underlying:     underlying,
	}
}

func (ic *InstrumentedClient) buildURL(path string, q map[string]string) (string, error) {
	full := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if path != "" && path[0] != '/' {
			path = "/" + path
		}
		full = ic.BaseURL + path
	}
	u, err := url.Parse(full)
	if err != nil {
		return "", err
	}
	if len(q) > 0 {
		qs := u.Query()
		for k, v := range q {
			qs.Set(k, v)
		}
		u.RawQuery = qs.Encode()
	}
	return u.String(), nil
}

// Do 发送请求; out 为 *[]byte / *string 时原样读取, 否则按 JSON 解码
func (ic *InstrumentedClient) Do(ctx context.Context, method, path string, query, headers map[string]string, body interface{}, out interface{}) (*http.Response, error) {
	if method == "" {
		method = http.MethodGet
	}
	targetURL, err := ic.buildURL(path, query)
	if err != nil {
		return nil, err
	}

	var payload []byte
	contentType := ""
	switch b := body.(type) {
	case nil:
	case []byte:
		payload = b
	case string:
		payload = []byte(b)
	default:
		if payload, err = json.Marshal(b); err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		contentType = "application/json"
	}

	newReq := func() (*http.Request, error) {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, targetURL, rd)
		if err != nil {
			return nil, err
		}
		for k, v := range ic.DefaultHeaders {
			req.Header.Set(k, v)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if contentType != "" && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", contentType)
		}
		if req.Header.Get("Accept") == "" {
			req.Header.Set("Accept", "application/json, */*")
		}
		return req, nil
	}

	start := time.Now()
	resp, err := ic.doWithRetry(ctx, newReq)
	fields := []zap.Field{
		zap.String("client", ic.Name),
		zap.String("method", method),
		zap.String("url", targetURL),
		zap.Duration("latency", time.Since(start)),
	}
	if err != nil {
		logging.Error(ctx, "http_client_request", append(fields, zap.Error(err))...)
		return resp, err
	}
	logging.Info(ctx, "http_client_request", append(fields, zap.Int("status", resp.StatusCode))...)
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(slurp))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp, nil
	}
	switch o := out.(type) {
	case *[]byte:
		*o, err = io.ReadAll(resp.Body)
	case *string:
		var raw []byte
		raw, err = io.ReadAll(resp.Body)
		*o = string(raw)
	default:
		if err = json.NewDecoder(resp.Body).Decode(out); errors.Is(err, io.EOF) {
			err = nil
		}
	}
	if err != nil {
		return resp, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

func (ic *InstrumentedClient) Get(ctx context.Context, path string, query, headers map[string]string, out interface{}) (*http.Response, error) {
	return ic.Do(ctx, http.MethodGet, path, query, headers, nil, out)
}

func (ic *InstrumentedClient) Post(ctx context.Context, path string, body interface{}, headers map[string]string, out interface{}) (*http.Response, error) {
	return ic.Do(ctx, http.MethodPost, path, nil, headers, body, out)
}

// doWithRetry 仅对网络错误和 5xx 重试, 每次重建请求体
func (ic *InstrumentedClient) doWithRetry(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	attempts := 1
	var backoff time.Duration
	if ic.Retry != nil && ic.Retry.Enabled && ic.Retry.MaxAttempts > 1 {
		attempts = ic.Retry.MaxAttempts
		backoff = ic.Retry.InitialBackoff
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := ic.Client.Do(req)
		if err == nil && (resp.StatusCode < 500 || attempt == attempts) {
			return resp, nil
		}
		if err == nil {
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			_ = resp.Body.Close()
		} else {
			lastErr = err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * ic.Retry.BackoffMultiplier)
		if backoff > ic.Retry.MaxBackoff {
			backoff = ic.Retry.MaxBackoff
		}
	}
	return nil, lastErr
}
