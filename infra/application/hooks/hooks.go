package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type HookFunc func(ctx context.Context) error

type Phase string

const (
	BeforeStart    Phase = "before_start"
	AfterStart     Phase = "after_start"
	BeforeShutdown Phase = "before_shutdown"
	AfterShutdown  Phase = "after_shutdown"
)

type Hook struct {
	Name     string
	Phase    Phase
	Function HookFunc
	Priority int // 数值越小越先执行
}

type Manager struct {
	hooks map[Phase][]*Hook
	mutex sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{hooks: make(map[Phase][]*Hook)}
}

func (m *Manager) Register(hook *Hook) error {
	if hook == nil || hook.Function == nil {
		return fmt.Errorf("hook and hook function cannot be nil")
	}
	switch hook.Phase {
	case BeforeStart, AfterStart, BeforeShutdown, AfterShutdown:
	default:
		return fmt.Errorf("invalid hook phase: %s", hook.Phase)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	list := append(m.hooks[hook.Phase], hook)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	m.hooks[hook.Phase] = list
	return nil
}

// Execute 顺序执行，遇错即停
func (m *Manager) Execute(ctx context.Context, phase Phase) error {
	m.mutex.RLock()
	list := make([]*Hook, len(m.hooks[phase]))
	copy(list, m.hooks[phase])
	m.mutex.RUnlock()

	for _, h := range list {
		if err := h.Function(ctx); err != nil {
			return fmt.Errorf("hook %s failed: %w", h.Name, err)
		}
	}
	return nil
}
