package service

import (
	"errors"
	"fmt"
)

var (
	ErrPoolFull       = errors.New("worker pool queue is full")
	ErrPoolClosed     = errors.New("worker pool is closed")
	ErrAlreadyQueued  = errors.New("task already queued")
	ErrHandleNotFound = errors.New("handle not found")
	ErrHardTimeout    = errors.New("plugin exceeded the hard timeout")
	ErrTaskInactive   = errors.New("task is not active")
)

// PluginError 插件内部错误(返回 error / panic / 返回值不合约 / 软超时), 可自动重试
type PluginError struct {
	Plugin string
	Kind   string
	Err    error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Plugin, e.Kind, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

// InfraError 存储或 broker 不可用, 不自动重试
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *InfraError) Unwrap() error { return e.Err }

func IsRetryable(err error) bool {
	var pe *PluginError
	return errors.As(err, &pe)
}

// panicError 插件 panic 时的值
type panicError struct{ value any }

func (p panicError) Error() string { return fmt.Sprint(p.value) }
