package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/http_server"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/notify"
)

// NotifyController 每个用户一条 SSE 长连接, 推送任务状态快照
type NotifyController struct {
	*core.BaseComponent
	Bus *notify.Bus `infra:"dep:notify_bus"`
}

func NewNotifyController() *NotifyController {
	return &NotifyController{BaseComponent: core.NewBaseComponent(bizConsts.COMP_CTRL_NOTIFY)}
}

func init() {
	http_server.RegisterRoutes(func(r chi.Router, c *core.Container) error {
		comp, err := c.Resolve(bizConsts.COMP_CTRL_NOTIFY)
		if err != nil {
			return err
		}
		ctrl, ok := comp.(*NotifyController)
		if !ok {
			return fmt.Errorf("notify_ctrl type assertion failed")
		}
		ctrl.Routes(r)
		return nil
	})
}

func (c *NotifyController) Routes(r chi.Router) {
	r.Get("/api/v1/notifications/stream", c.stream)
}

func (c *NotifyController) stream(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == 0 {
		writeErr(w, http.StatusUnauthorized, "user_required")
		return
	}
	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sub := c.Bus.Subscribe(uid)
	defer c.Bus.Unsubscribe(sub)
	ctx := r.Context()
	logging.Debug(ctx, "notification stream opened", zap.Int64("user_id", uid))

	if err := writeEvent(w, rc, notify.Connected()); err != nil {
		return
	}
	interval := c.Bus.HeartbeatInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Debug(ctx, "notification stream closed", zap.Int64("user_id", uid))
			return
		case <-heartbeat.C:
			if err := writeEvent(w, rc, notify.Heartbeat()); err != nil {
				return
			}
		case <-sub.Ready():
			for _, m := range sub.Drain() {
				if err := writeEvent(w, rc, m); err != nil {
					return
				}
			}
		}
	}
}

// writeEvent 一条 data 帧后立即 flush
func writeEvent(w http.ResponseWriter, rc *http.ResponseController, m notify.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_ = rc.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return err
	}
	return rc.Flush()
}
