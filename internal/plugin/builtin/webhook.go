package builtin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/timelyrain333/bifang-sub000/internal/plugin"
)

const (
	WebhookName          = "webhook_forwarder"
	defaultWebhookClient = "webhook"
)

// webhookForwarder 把告警 payload POST 到外部地址, 用 gjson 读取返回中的状态和错误字段
type webhookForwarder struct {
	clients plugin.HTTPClients
}

func init() {
	plugin.MustRegister(WebhookName, func(env plugin.Env) (plugin.Plugin, error) {
		return &webhookForwarder{clients: env.HTTPClients}, nil
	})
}

func (w *webhookForwarder) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        WebhookName,
		ConfigKeys:  []string{"url", "client", "payload", "headers", "status_path", "error_path"},
		Description: "forwards an alert payload to a webhook endpoint",
	}
}

func (w *webhookForwarder) Run(ctx context.Context, cfg map[string]any) (any, error) {
	if w.clients == nil {
		return nil, errors.New("webhook_forwarder: http_clients component not available")
	}
	url, _ := cfg["url"].(string)
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("webhook_forwarder: url is required")
	}
	name := stringOr(cfg["client"], defaultWebhookClient)
	cli, err := w.clients.Client(name)
	if err != nil {
		return nil, fmt.Errorf("webhook_forwarder: %w", err)
	}

	payload, _ := cfg["payload"].(map[string]any)
	if payload == nil {
		payload = map[string]any{"source": "bifang"}
	}
	headers := map[string]string{}
	if hs, ok := cfg["headers"].(map[string]any); ok {
		for k, v := range hs {
			headers[k] = fmt.Sprint(v)
		}
	}

	var body []byte
	resp, err := cli.Post(ctx, url, payload, headers, &body)
	if err != nil {
		return nil, fmt.Errorf("webhook_forwarder: post %s: %w", url, err)
	}

	out := plugin.Result{
		Success: true,
		Message: "webhook delivered",
		Data:    map[string]any{"http_status": resp.StatusCode},
		Logs:    fmt.Sprintf("POST %s -> %d (%d bytes)", url, resp.StatusCode, len(body)),
	}
	if !gjson.ValidBytes(body) {
		return out, nil
	}
	out.Data["response"] = gjson.ParseBytes(body).Value()
	if e := gjson.GetBytes(body, stringOr(cfg["error_path"], "error")); e.Exists() && e.String() != "" {
		out.Success, out.Message = false, e.String()
		return out, nil
	}
	if s := gjson.GetBytes(body, stringOr(cfg["status_path"], "status")); s.Exists() {
		switch strings.ToLower(s.String()) {
		case "ok", "success", "true", "accepted":
		default:
			out.Success, out.Message = false, "webhook returned status "+s.String()
		}
	}
	return out, nil
}

func stringOr(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}
