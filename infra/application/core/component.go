package core

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Component 组件生命周期接口
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HealthCheck() error
	Dependencies() []string
	IsActive() bool
}

// BaseComponent 组件的公共部分，业务组件以指针方式嵌入
type BaseComponent struct {
	name   string
	active atomic.Bool
	deps   []string
}

func NewBaseComponent(name string, deps ...string) *BaseComponent {
	return &BaseComponent{name: name, deps: deps}
}

func (c *BaseComponent) Name() string           { return c.name }
func (c *BaseComponent) Dependencies() []string { return c.deps }
func (c *BaseComponent) IsActive() bool         { return c.active.Load() }
func (c *BaseComponent) SetActive(active bool)  { c.active.Store(active) }

func (c *BaseComponent) Start(ctx context.Context) error {
	c.active.Store(true)
	return nil
}

func (c *BaseComponent) Stop(ctx context.Context) error {
	c.active.Store(false)
	return nil
}

func (c *BaseComponent) HealthCheck() error {
	if !c.active.Load() {
		return fmt.Errorf("component %s is not active", c.name)
	}
	return nil
}

// AddDependencies 在 StartAll 之前追加启动顺序约束，重复项忽略
func (c *BaseComponent) AddDependencies(deps ...string) {
	for _, d := range deps {
		if d == "" || d == c.name || c.hasDep(d) {
			continue
		}
		c.deps = append(c.deps, d)
	}
}

func (c *BaseComponent) hasDep(name string) bool {
	for _, d := range c.deps {
		if d == name {
			return true
		}
	}
	return false
}
