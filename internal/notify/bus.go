package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
	"github.com/timelyrain333/bifang-sub000/infra/application/components/redis"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	"github.com/timelyrain333/bifang-sub000/infra/application/core"
	"github.com/timelyrain333/bifang-sub000/internal/config"
	bizConsts "github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/metrics"
	"github.com/timelyrain333/bifang-sub000/internal/model"
)

// Subscription 一个长连接的队列; 满了丢最旧的
type Subscription struct {
	userID int64
	size   int
	mu     sync.Mutex
	queue  []Message
	signal chan struct{}
	closed bool
}

func (s *Subscription) UserID() int64 { return s.userID }

// Ready 有新消息时可读
func (s *Subscription) Ready() <-chan struct{} { return s.signal }

// Drain 取走当前积压的全部消息
func (s *Subscription) Drain() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.queue
	s.queue = nil
	return out
}

// push 返回是否丢弃了旧消息
func (s *Subscription) push(m Message) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	dropped := false
	if len(s.queue) >= s.size {
		s.queue = s.queue[1:]
		dropped = true
	}
	s.queue = append(s.queue, m)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
	return dropped
}

// Bus 按用户分发任务状态快照
type Bus struct {
	*core.BaseComponent
	Redis *redis.RedisComponent `infra:"dep:redis?"`

	cfg   config.NotifyConfig
	mu    sync.RWMutex
	subs  map[int64]map[*Subscription]struct{}
	relay *RedisRelay
}

func NewBus(cfg config.NotifyConfig) *Bus {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	return &Bus{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_NOTIFY_BUS, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		subs:          make(map[int64]map[*Subscription]struct{}),
	}
}

func (b *Bus) Start(ctx context.Context) error {
	if err := b.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if b.cfg.RedisChannel == "" || b.Redis == nil || b.Redis.Client() == nil {
		return nil
	}
	relay := NewRedisRelay(b.Redis.Client(), b.cfg.RedisChannel, b.deliverLocal)
	if err := relay.Start(ctx); err != nil {
		return err
	}
	b.relay = relay
	logging.Info(ctx, "notify bus relaying through redis", zap.String("channel", b.cfg.RedisChannel))
	return nil
}

func (b *Bus) Stop(ctx context.Context) error {
	if b.relay != nil {
		b.relay.Stop()
	}
	b.mu.Lock()
	for _, set := range b.subs {
		for s := range set {
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
		}
	}
	b.subs = make(map[int64]map[*Subscription]struct{})
	b.mu.Unlock()
	return b.BaseComponent.Stop(ctx)
}

func (b *Bus) HeartbeatInterval() time.Duration { return b.cfg.HeartbeatInterval }

func (b *Bus) Subscribe(userID int64) *Subscription {
	s := &Subscription{userID: userID, size: b.cfg.QueueSize, signal: make(chan struct{}, 1)}
	b.mu.Lock()
	set, ok := b.subs[userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[userID] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil {
		return
	}
	b.mu.Lock()
	if set, ok := b.subs[s.userID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.userID)
		}
	}
	b.mu.Unlock()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Publish 投递给指定用户; 0 与重复的用户被忽略. 开启 redis 中转时只经由中转投递, 避免重复.
func (b *Bus) Publish(ctx context.Context, msg Message, userIDs ...int64) {
	users := uniqueUsers(userIDs)
	if len(users) == 0 {
		return
	}
	if b.relay != nil {
		err := b.relay.Publish(ctx, envelope{Users: users, Message: msg})
		if err == nil {
			return
		}
		logging.Warn(ctx, "notify relay publish failed, delivering locally", zap.Error(err))
	}
	b.deliverLocal(users, msg)
}

// PublishTaskStatus 发给任务创建者, 以及触发本次执行的用户(若不同)
func (b *Bus) PublishTaskStatus(ctx context.Context, task *model.Task, executionID, triggeredBy int64) {
	if task == nil {
		return
	}
	b.Publish(ctx, Message{
		Type:        TypeTaskStatus,
		TaskID:      task.ID,
		TaskName:    task.Name,
		Status:      string(task.Status),
		LastRunAt:   task.LastRunAt,
		ExecutionID: executionID,
	}, task.CreatedBy, triggeredBy)
}

func (b *Bus) deliverLocal(users []int64, msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, uid := range users {
		for s := range b.subs[uid] {
			if s.push(msg) {
				metrics.NotifyDropped()
			}
		}
	}
}

func uniqueUsers(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		dup := false
		for _, o := range out {
			if o == id {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, id)
		}
	}
	return out
}
