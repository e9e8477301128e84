package plugin

import (
	"errors"
	"fmt"
)

var ErrNonConformingResult = errors.New("plugin returned a non-conforming result")

// Result 插件返回值约定
type Result struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Logs    string         `json:"logs"`
}

// Normalize 接受 Result / *Result / 带 bool success 的 map, 其余一律视为错误
func Normalize(v any) (Result, error) {
	switch r := v.(type) {
	case Result:
		return r, nil
	case *Result:
		if r == nil {
			return Result{}, fmt.Errorf("%w: nil *Result", ErrNonConformingResult)
		}
		return *r, nil
	case map[string]any:
		return fromMap(r)
	case nil:
		return Result{}, fmt.Errorf("%w: nil", ErrNonConformingResult)
	default:
		return Result{}, fmt.Errorf("%w: %T", ErrNonConformingResult, v)
	}
}

func fromMap(m map[string]any) (Result, error) {
	var out Result
	ok := false
	if out.Success, ok = m["success"].(bool); !ok {
		return Result{}, fmt.Errorf("%w: missing bool field success", ErrNonConformingResult)
	}
	if raw, exists := m["message"]; exists && raw != nil {
		if out.Message, ok = raw.(string); !ok {
			return Result{}, fmt.Errorf("%w: message is %T", ErrNonConformingResult, raw)
		}
	}
	if raw, exists := m["data"]; exists && raw != nil {
		if out.Data, ok = raw.(map[string]any); !ok {
			return Result{}, fmt.Errorf("%w: data is %T", ErrNonConformingResult, raw)
		}
	}
	if raw, exists := m["logs"]; exists && raw != nil {
		if out.Logs, ok = raw.(string); !ok {
			return Result{}, fmt.Errorf("%w: logs is %T", ErrNonConformingResult, raw)
		}
	}
	return out, nil
}
