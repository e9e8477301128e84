package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/http_client"
)

var ErrPluginNotFound = errors.New("plugin not found")

// 云厂商族, 决定解析配置时可以合并哪类凭据
const (
	ProviderNone   = ""
	ProviderAWS    = "aws"
	ProviderAliyun = "aliyun"
)

type Descriptor struct {
	Name        string
	Provider    string   // 所属云厂商族, 与凭据无关的插件为空
	ConfigKeys  []string // 期望的配置键, 仅用于展示
	Description string
}

// Plugin 引擎把它当成黑盒: 输入扁平配置, 输出 Result 形状的值
type Plugin interface {
	Descriptor() Descriptor
	Run(ctx context.Context, cfg map[string]any) (any, error)
}

// HTTPClients 由 http_clients 组件实现
type HTTPClients interface {
	Client(name string) (*http_client.InstrumentedClient, error)
}

// Env 创建插件时可用的基础设施, 字段可能为 nil
type Env struct {
	HTTPClients HTTPClients
}

type Factory func(env Env) (Plugin, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

func Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("plugin: empty name or nil factory")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[name]; dup {
		return fmt.Errorf("plugin: duplicate name %s", name)
	}
	factories[name] = f
	return nil
}

// MustRegister 在 init() 中使用
func MustRegister(name string, f Factory) {
	if err := Register(name, f); err != nil {
		panic(err)
	}
}

func Names() []string {
	mu.RLock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	mu.RUnlock()
	sort.Strings(out)
	return out
}

func New(name string, env Env) (Plugin, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	p, err := f(env)
	if err != nil {
		return nil, fmt.Errorf("create plugin %s: %w", name, err)
	}
	return p, nil
}

// Lookup 只取描述信息, 不需要 Env
func Lookup(name string) (Descriptor, error) {
	p, err := New(name, Env{})
	if err != nil {
		return Descriptor{}, err
	}
	return p.Descriptor(), nil
}
