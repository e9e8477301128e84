package http_client

import (
	"context"
	"fmt"
	"sync"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
)

// HTTPClientsComponent 按名称管理出站客户端
type HTTPClientsComponent struct {
	*core.BaseComponent
	cfg     *HTTPClientsConfig
	mu      sync.RWMutex
	clients map[string]*InstrumentedClient
}

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *HTTPClientsConfig) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("http_clients component disabled")
	}
	cfg.applyDefaults()
	return NewHTTPClientsComponent(cfg), nil
}

func NewHTTPClientsComponent(cfg *HTTPClientsConfig) *HTTPClientsComponent {
	return &HTTPClientsComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_HTTP_CLIENTS, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		clients:       map[string]*InstrumentedClient{},
	}
}

func (hc *HTTPClientsComponent) Start(ctx context.Context) error {
	if err := hc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	hc.mu.Lock()
	for name, cCfg := range hc.cfg.Clients {
		hc.clients[name] = NewClient(name, cCfg)
	}
	hc.mu.Unlock()
	logging.Infof(ctx, "http_clients component started, clients=%d", len(hc.cfg.Clients))
	return nil
}

func (hc *HTTPClientsComponent) Stop(ctx context.Context) error {
	defer func() { _ = hc.BaseComponent.Stop(ctx) }()
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	for _, cli := range hc.clients {
		cli.Underlying.CloseIdleConnections()
	}
	return nil
}

func (hc *HTTPClientsComponent) Client(name string) (*InstrumentedClient, error) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	if name == "" {
		name = hc.cfg.Default
	}
	cli, ok := hc.clients[name]
	if !ok {
		return nil, fmt.Errorf("http client %s not found", name)
	}
	return cli, nil
}
