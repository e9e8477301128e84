package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/timelyrain333/bifang-sub000/internal/plugin"
)

// credentialCheck 检查解析后的配置里是否带齐了对应云厂商的密钥, 不调用云 API
type credentialCheck struct {
	provider string
	required []string
}

var credentialChecks = []credentialCheck{
	{provider: plugin.ProviderAWS, required: []string{"access_key_id", "secret_access_key"}},
	{provider: plugin.ProviderAliyun, required: []string{"access_key_id", "access_key_secret"}},
}

func init() {
	for _, c := range credentialChecks {
		c := c
		plugin.MustRegister(c.name(), func(plugin.Env) (plugin.Plugin, error) { return c, nil })
	}
}

func (c credentialCheck) name() string { return c.provider + "_credential_check" }

func (c credentialCheck) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        c.name(),
		Provider:    c.provider,
		ConfigKeys:  append([]string{"region"}, c.required...),
		Description: "verifies that " + c.provider + " credentials resolve for the task",
	}
}

func (c credentialCheck) Run(ctx context.Context, cfg map[string]any) (any, error) {
	var missing []string
	for _, k := range c.required {
		if v, _ := cfg[k].(string); strings.TrimSpace(v) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return plugin.Result{
			Success: false,
			Message: fmt.Sprintf("%s credentials missing: %s", c.provider, strings.Join(missing, ", ")),
			Data:    map[string]any{"missing": missing},
		}, nil
	}
	region, _ := cfg["region"].(string)
	return plugin.Result{
		Success: true,
		Message: c.provider + " credentials present",
		Data:    map[string]any{"region": region},
		Logs:    fmt.Sprintf("checked %d keys", len(c.required)),
	}, nil
}
