package builtin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/timelyrain333/bifang-sub000/internal/plugin"
)

const NoopName = "noop"

// noop 诊断用: 可选 sleep / fail / panic, 用来验证调度与重试链路
type noop struct{}

func init() {
	plugin.MustRegister(NoopName, func(plugin.Env) (plugin.Plugin, error) { return noop{}, nil })
}

func (noop) Descriptor() plugin.Descriptor {
	return plugin.Descriptor{
		Name:        NoopName,
		ConfigKeys:  []string{"sleep", "fail", "panic"},
		Description: "diagnostic plugin that echoes its configuration keys",
	}
}

func (noop) Run(ctx context.Context, cfg map[string]any) (any, error) {
	if s, ok := cfg["sleep"].(string); ok && s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("noop: bad sleep %q: %w", s, err)
		}
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if v, _ := cfg["panic"].(bool); v {
		panic("noop: panic requested")
	}
	if v, _ := cfg["fail"].(bool); v {
		return nil, errors.New("noop: failure requested")
	}
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return plugin.Result{
		Success: true,
		Message: "noop finished",
		Data:    map[string]any{"keys": keys},
		Logs:    fmt.Sprintf("noop ran with %d config keys", len(keys)),
	}, nil
}
