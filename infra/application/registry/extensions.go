package registry

import (
	"log"
	"sync"

	"github.com/timelyrain333/bifang-sub000/infra/application/core"
)

// 运行期依赖扩展: 组件注册后, StartAll 排序前应用
var (
	runtimeDepExtMap = map[string][]string{}
	runtimeDepExtMu  sync.Mutex
)

// ExtendRuntimeDependencies 声明 target 额外依赖 deps, 只影响启动/停止顺序;
// 需在 BuildAndRegisterAll 之前调用(一般在 init 中)
func ExtendRuntimeDependencies(target string, deps ...string) {
	if target == "" || len(deps) == 0 {
		return
	}
	runtimeDepExtMu.Lock()
	defer runtimeDepExtMu.Unlock()
	runtimeDepExtMap[target] = append(runtimeDepExtMap[target], deps...)
}

// applyRuntimeDepExtensions 只追加已注册的依赖, 未启用的组件直接忽略
func applyRuntimeDepExtensions(c *core.Container) {
	runtimeDepExtMu.Lock()
	defer runtimeDepExtMu.Unlock()
	for target, extra := range runtimeDepExtMap {
		comp, err := c.Resolve(target)
		if err != nil {
			continue
		}
		extender, ok := comp.(interface{ AddDependencies(...string) })
		if !ok {
			log.Printf("registry: component %s does not support AddDependencies; extension skipped", target)
			continue
		}
		var present []string
		for _, d := range extra {
			if _, err := c.Resolve(d); err == nil {
				present = append(present, d)
			}
		}
		extender.AddDependencies(present...)
	}
	runtimeDepExtMap = map[string][]string{}
}
