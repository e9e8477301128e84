package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timelyrain333/bifang-sub000/internal/config"
	"github.com/timelyrain333/bifang-sub000/internal/consts"
	"github.com/timelyrain333/bifang-sub000/internal/model"
)

func newBus(t *testing.T, size int) *Bus {
	b := NewBus(config.NotifyConfig{QueueSize: size, HeartbeatInterval: time.Second})
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b
}

func TestBus_DropOldest(t *testing.T) {
	b := newBus(t, 3)
	s := b.Subscribe(1)
	for i := int64(1); i <= 5; i++ {
		b.Publish(context.Background(), Message{Type: TypeTaskStatus, TaskID: i}, 1)
	}
	<-s.Ready()
	got := s.Drain()
	require.Len(t, got, 3)
	require.Equal(t, []int64{3, 4, 5}, []int64{got[0].TaskID, got[1].TaskID, got[2].TaskID})
	require.Empty(t, s.Drain())
}

func TestBus_FanOutCreatorAndTrigger(t *testing.T) {
	b := newBus(t, 10)
	creator, trigger, other := b.Subscribe(1), b.Subscribe(2), b.Subscribe(3)
	now := time.Now()
	task := &model.Task{ID: 9, Name: "scan", Status: consts.TaskRunning, CreatedBy: 1, LastRunAt: &now}

	b.PublishTaskStatus(context.Background(), task, 77, 2)
	require.Len(t, creator.Drain(), 1)
	msgs := trigger.Drain()
	require.Len(t, msgs, 1)
	require.Equal(t, int64(77), msgs[0].ExecutionID)
	require.Empty(t, other.Drain())

	// 触发者就是创建者时只投一次
	b.PublishTaskStatus(context.Background(), task, 78, 1)
	require.Len(t, creator.Drain(), 1)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := newBus(t, 10)
	s := b.Subscribe(5)
	b.Unsubscribe(s)
	b.Publish(context.Background(), Message{Type: TypeTaskStatus, TaskID: 1}, 5)
	require.Empty(t, s.Drain())
}

func TestMessage_JSON(t *testing.T) {
	hb, err := json.Marshal(Heartbeat())
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"heartbeat"}`, string(hb))

	m := Message{Type: TypeTaskStatus, TaskID: 4, Status: "failed"}
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"task_status","taskId":4,"status":"failed","lastRunAt":null}`, string(raw))

	var back envelope
	require.NoError(t, json.Unmarshal([]byte(`{"users":[1,2],"message":`+string(raw)+`}`), &back))
	require.Equal(t, []int64{1, 2}, back.Users)
	require.Equal(t, m, back.Message)
}
