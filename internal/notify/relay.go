package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/timelyrain333/bifang-sub000/infra/application/components/logging"
)

// RedisRelay 通过 redis pub/sub 让调度、worker、web 进程共享同一条通知流
type RedisRelay struct {
	client  goredis.UniversalClient
	channel string
	deliver func(users []int64, msg Message)

	pubsub *goredis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedisRelay(client goredis.UniversalClient, channel string, deliver func([]int64, Message)) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, deliver: deliver}
}

func (r *RedisRelay) Start(ctx context.Context) error {
	ps := r.client.Subscribe(ctx, r.channel)
	// 等待订阅确认, 否则启动后立即发布的消息可能丢
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.pubsub = ps
	loopCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(loopCtx, ps.Channel())
	return nil
}

func (r *RedisRelay) loop(ctx context.Context, ch <-chan *goredis.Message) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				logging.Warn(ctx, "notify relay: bad payload", zap.Error(err))
				continue
			}
			r.deliver(env.Users, env.Message)
		}
	}
}

func (r *RedisRelay) Publish(ctx context.Context, env envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

func (r *RedisRelay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.pubsub != nil {
		_ = r.pubsub.Close()
	}
	r.wg.Wait()
}
