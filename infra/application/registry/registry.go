package registry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/timelyrain333/bifang-sub000/infra/application/config"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
)

// BuilderFunc 返回 (enabled, component, error); enabled=false 时跳过注册
type BuilderFunc func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error)

type Builder struct {
	Name string
	Fn   BuilderFunc
	// Auto: 名称与构建期依赖从组件实例推断(infra:"dep:x" 标签)
	Auto bool
	// Deps 构建期依赖, 决定 builder 执行顺序
	Deps []string

	prebuilt   core.Component
	preEnabled bool
}

var builders []*Builder

func findBuilder(name string) *Builder {
	for _, b := range builders {
		if b.Name == name {
			return b
		}
	}
	return nil
}

// Register 显式名称, 无构建期依赖
func Register(name string, fn BuilderFunc) {
	RegisterWithDeps(name, nil, fn)
}

// RegisterWithDeps builder 内部需要从 container 解析 deps 时使用
func RegisterWithDeps(name string, deps []string, fn BuilderFunc) {
	if name == "" {
		panic("registry: empty name in Register")
	}
	if findBuilder(name) != nil {
		panic("registry: duplicate builder name " + name)
	}
	builders = append(builders, &Builder{Name: name, Fn: fn, Deps: deps})
}

// RegisterAuto 构建出的组件 Name() 必须稳定且非空
func RegisterAuto(fn BuilderFunc) { builders = append(builders, &Builder{Auto: true, Fn: fn}) }

// BuildAndRegisterAll:
// 1. auto builder 预构建, 推断名称
// 2. 从标签推断 auto builder 的构建期依赖
// 3. 按依赖拓扑排序
// 4. 构建并注册, 最后应用运行期依赖扩展
func BuildAndRegisterAll(cfg *config.AppConfig, c *core.Container) error {
	if err := prebuildAuto(cfg, c); err != nil {
		return err
	}
	ordered, err := topoSortBuilders(builders)
	if err != nil {
		return err
	}
	for _, b := range ordered {
		enabled, comp := b.preEnabled, b.prebuilt
		if !b.Auto {
			enabled, comp, err = b.Fn(cfg, c)
			if err != nil {
				return fmt.Errorf("build %s failed: %w", b.Name, err)
			}
		}
		if !enabled || comp == nil {
			continue
		}
		if err := c.Register(b.Name, comp); err != nil {
			return fmt.Errorf("register %s failed: %w", b.Name, err)
		}
	}
	applyRuntimeDepExtensions(c)
	return nil
}

func prebuildAuto(cfg *config.AppConfig, c *core.Container) error {
	for _, b := range builders {
		if !b.Auto {
			continue
		}
		b.prebuilt, b.preEnabled = nil, false
		enabled, comp, err := b.Fn(cfg, c)
		if err != nil {
			return fmt.Errorf("prebuild auto component failed: %w", err)
		}
		if comp == nil || !enabled {
			continue
		}
		name := comp.Name()
		if name == "" {
			return fmt.Errorf("auto builder produced unnamed component")
		}
		if existing := findBuilder(name); existing != nil && existing != b {
			return fmt.Errorf("duplicate inferred name: %s", name)
		}
		b.Name, b.prebuilt, b.preEnabled = name, comp, true
	}
	for _, b := range builders {
		if !b.Auto || b.prebuilt == nil {
			continue
		}
		b.Deps = nil
		for _, d := range inferTagDependencies(b.prebuilt) {
			if findBuilder(d) != nil {
				b.Deps = append(b.Deps, d)
			}
		}
	}
	return nil
}

// inferTagDependencies 提取 `infra:"dep:<name>"` 中的组件名, 可选依赖的 ? 后缀被去掉
func inferTagDependencies(comp core.Component) []string {
	v := reflect.ValueOf(comp)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	t := v.Type()
	seen := map[string]struct{}{}
	var out []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("infra")
		if f.PkgPath != "" || !strings.HasPrefix(tag, "dep:") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(tag, "dep:")), "?")
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// topoSortBuilders Kahn 算法, 同层按名称排序保证稳定
func topoSortBuilders(list []*Builder) ([]*Builder, error) {
	nameMap := map[string]*Builder{}
	inDeg := map[string]int{}
	adj := map[string][]string{}
	for _, b := range list {
		if b.Name != "" {
			nameMap[b.Name] = b
			inDeg[b.Name] = 0
		}
	}
	for _, b := range list {
		if b.Name == "" {
			continue
		}
		for _, d := range b.Deps {
			if _, ok := nameMap[d]; !ok {
				continue
			}
			adj[d] = append(adj[d], b.Name)
			inDeg[b.Name]++
		}
	}
	var ready []string
	for n, d := range inDeg {
		if d == 0 {
			ready = append(ready, n)
		}
	}
	var ordered []*Builder
	for len(ready) > 0 {
		sort.Strings(ready)
		n := ready[0]
		ready = ready[1:]
		ordered = append(ordered, nameMap[n])
		for _, nxt := range adj[n] {
			if inDeg[nxt]--; inDeg[nxt] == 0 {
				ready = append(ready, nxt)
			}
		}
	}
	if len(ordered) != len(nameMap) {
		var cyc []string
		for n, d := range inDeg {
			if d > 0 {
				cyc = append(cyc, n)
			}
		}
		sort.Strings(cyc)
		return nil, fmt.Errorf("registry: cyclic builder deps: %v", cyc)
	}
	return ordered, nil
}
