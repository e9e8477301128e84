package application

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/timelyrain333/bifang-sub000/infra/application/autowire"
	"github.com/timelyrain333/bifang-sub000/infra/application/config"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	"github.com/timelyrain333/bifang-sub000/infra/application/hooks"
	"github.com/timelyrain333/bifang-sub000/infra/application/registry"
)

type App struct {
	container        *core.Container
	lifecycleManager *core.LifecycleManager
	configManager    *config.ConfigManager

	bootOnce sync.Once
	bootErr  error

	shutdownTimeout time.Duration
}

var (
	appMu     sync.RWMutex
	globalApp *App
)

// GetApp 返回最近一次 NewApp 创建的实例
func GetApp() *App {
	appMu.RLock()
	defer appMu.RUnlock()
	return globalApp
}

func NewApp(env string, configPath string) *App {
	if p, err := filepath.Abs(configPath); err == nil {
		configPath = p
	}
	container := core.NewContainer()
	app := &App{
		configManager:    config.NewConfigManager(env, configPath),
		container:        container,
		lifecycleManager: core.NewLifecycleManagerWithManager(container, hooks.GetGlobalHookManager()),
		shutdownTimeout:  30 * time.Second,
	}
	appMu.Lock()
	globalApp = app
	appMu.Unlock()
	return app
}

func (app *App) SetShutdownTimeout(d time.Duration) { app.shutdownTimeout = d }

// SetBizConfig 必须在 Run 之前调用
func (app *App) SetBizConfig(b any) { app.configManager.SetBizConfig(b) }

func (app *App) GetConfig() *config.AppConfig { return app.configManager.GetConfig() }

func (app *App) Container() *core.Container { return app.container }

func (app *App) GetComponent(name string) (core.Component, error) {
	return app.container.Resolve(name)
}

func (app *App) AddHook(name string, phase hooks.Phase, fn hooks.HookFunc, priority int) error {
	return app.lifecycleManager.AddHook(name, phase, fn, priority)
}

// Boot 加载配置, 构建组件并完成依赖注入; 只执行一次
func (app *App) Boot() error {
	app.bootOnce.Do(func() {
		if err := app.configManager.LoadConfig(); err != nil {
			app.bootErr = fmt.Errorf("load config failed: %w", err)
			return
		}
		cfg := app.configManager.GetConfig()
		if err := registry.BuildAndRegisterAll(cfg, app.container); err != nil {
			app.bootErr = fmt.Errorf("register components failed: %w", err)
			return
		}
		if err := autowire.InjectAll(app.container); err != nil {
			app.bootErr = fmt.Errorf("autowire failed: %w", err)
		}
	})
	return app.bootErr
}

// Run 监听 SIGINT/SIGTERM; 收到第二个信号或超过 shutdownTimeout 时强制退出
func (app *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		stop()
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigCh:
		case <-time.After(app.shutdownTimeout):
		}
		fmt.Fprintln(os.Stderr, "[graceful] forcing process exit")
		os.Exit(1)
	}()
	return app.RunWithContext(ctx)
}

// RunWithContext 启动全部组件, ctx 结束后优雅停止
func (app *App) RunWithContext(ctx context.Context) error {
	if err := app.Boot(); err != nil {
		return err
	}
	if err := app.lifecycleManager.StartAll(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout)
	defer cancel()
	app.lifecycleManager.StopAll(shutdownCtx)
	return nil
}

func (app *App) Shutdown(ctx context.Context) { app.lifecycleManager.StopAll(ctx) }
