package notify

import (
	"encoding/json"
	"time"
)

const (
	TypeConnected  = "connected"
	TypeHeartbeat  = "heartbeat"
	TypeTaskStatus = "task_status"
)

// Message 推送给前端的一条消息; connected / heartbeat 只序列化 type
type Message struct {
	Type        string     `json:"type"`
	TaskID      int64      `json:"taskId"`
	TaskName    string     `json:"taskName,omitempty"`
	Status      string     `json:"status"`
	LastRunAt   *time.Time `json:"lastRunAt"`
	ExecutionID int64      `json:"executionId,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.Type != TypeTaskStatus {
		return json.Marshal(struct {
			Type string `json:"type"`
		}{m.Type})
	}
	type plain Message
	return json.Marshal(plain(m))
}

func Connected() Message { return Message{Type: TypeConnected} }
func Heartbeat() Message { return Message{Type: TypeHeartbeat} }

// envelope redis 中转时附带接收人
type envelope struct {
	Users   []int64 `json:"users"`
	Message Message `json:"message"`
}

// UnmarshalJSON 与 MarshalJSON 对称, 防止递归
func (m *Message) UnmarshalJSON(b []byte) error {
	type plain Message
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*m = Message(p)
	return nil
}
