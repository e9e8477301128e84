package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/timelyrain333/bifang-sub000/infra/application/hooks"
)

// LifecycleManager 按依赖顺序启动组件，逆序停止
type LifecycleManager struct {
	container      *Container
	hookManager    *hooks.Manager
	mutex          sync.Mutex
	started        []Component
	shutdownCalled bool
	timeout        time.Duration
}

func NewLifecycleManager(container *Container) *LifecycleManager {
	return NewLifecycleManagerWithManager(container, hooks.NewManager())
}

func NewLifecycleManagerWithManager(container *Container, hm *hooks.Manager) *LifecycleManager {
	if hm == nil {
		hm = hooks.NewManager()
	}
	return &LifecycleManager{
		container:   container,
		hookManager: hm,
		timeout:     30 * time.Second,
	}
}

// SetTimeout 单个组件启动/停止超时
func (lm *LifecycleManager) SetTimeout(timeout time.Duration) { lm.timeout = timeout }

func (lm *LifecycleManager) AddHook(name string, phase hooks.Phase, fn hooks.HookFunc, priority int) error {
	return lm.hookManager.Register(&hooks.Hook{Name: name, Phase: phase, Function: fn, Priority: priority})
}

func (lm *LifecycleManager) StartAll(ctx context.Context) error {
	if err := lm.hookManager.Execute(ctx, hooks.BeforeStart); err != nil {
		return fmt.Errorf("before_start hooks failed: %w", err)
	}

	components, err := lm.container.ValidateDependencies()
	if err != nil {
		return fmt.Errorf("failed to sort components: %w", err)
	}

	for _, comp := range components {
		startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := comp.Start(startCtx)
		cancel()
		if err != nil {
			log.Printf("Failed to start component %s: %v", comp.Name(), err)
			lm.stopStarted(context.Background())
			return fmt.Errorf("failed to start component %s: %w", comp.Name(), err)
		}
		lm.mutex.Lock()
		lm.started = append(lm.started, comp)
		lm.mutex.Unlock()
		log.Printf("Component %s started successfully", comp.Name())
	}

	if err := lm.hookManager.Execute(ctx, hooks.AfterStart); err != nil {
		log.Printf("after_start hooks failed: %v", err)
	}
	return nil
}

// StopAll 只执行一次
func (lm *LifecycleManager) StopAll(ctx context.Context) {
	lm.mutex.Lock()
	if lm.shutdownCalled {
		lm.mutex.Unlock()
		return
	}
	lm.shutdownCalled = true
	lm.mutex.Unlock()

	log.Println("Initiating shutdown sequence...")
	if err := lm.hookManager.Execute(ctx, hooks.BeforeShutdown); err != nil {
		log.Printf("before_shutdown hooks failed: %v", err)
	}
	lm.stopStarted(ctx)
	if err := lm.hookManager.Execute(ctx, hooks.AfterShutdown); err != nil {
		log.Printf("after_shutdown hooks failed: %v", err)
	}
	log.Println("Shutdown sequence completed")
}

func (lm *LifecycleManager) stopStarted(ctx context.Context) {
	lm.mutex.Lock()
	started := lm.started
	lm.started = nil
	lm.mutex.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		comp := started[i]
		if !comp.IsActive() {
			continue
		}
		log.Printf("Stopping component: %s", comp.Name())
		stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		if err := comp.Stop(stopCtx); err != nil {
			log.Printf("Error stopping component %s: %v", comp.Name(), err)
		}
		cancel()
	}
}
