package schedule

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/timelyrain333/bifang-sub000/internal/model"
)

// Entry 调度表中的一项, 只在内存中, 每次 reload 整体重建
type Entry struct {
	TaskID       int64
	TaskName     string
	PluginName   string
	Trigger      Trigger
	RegisteredAt time.Time
	NextFire     time.Time
	LastFire     time.Time
}

// Registry task id -> Entry; 进程内独占, 不跨进程共享
type Registry struct {
	mu      sync.RWMutex
	entries map[int64]*Entry
	now     func() time.Time
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{entries: make(map[int64]*Entry), now: now}
}

// Register manual / 未启用 / 空 schedule 等同于 Unregister, 返回 (false, nil);
// 校验失败时移除旧条目并返回 ErrInvalidSchedule
func (r *Registry) Register(task *model.Task) (bool, error) {
	if task == nil {
		return false, fmt.Errorf("%w: nil task", ErrInvalidSchedule)
	}
	if !task.Schedulable() || strings.TrimSpace(task.Schedule) == "" {
		r.Unregister(task.ID)
		return false, nil
	}
	trig, err := Parse(task.TriggerType, task.Schedule)
	if err != nil {
		r.Unregister(task.ID)
		return false, fmt.Errorf("task %d: %w", task.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[task.ID]; ok && cur.Trigger.Equal(trig) {
		// 同样的规则重复注册不重置下次触发时间
		cur.TaskName, cur.PluginName = task.Name, task.PluginName
		return true, nil
	}
	now := r.now()
	next := trig.Next(now)
	if next.IsZero() {
		delete(r.entries, task.ID)
		return false, fmt.Errorf("task %d: %w: %q never fires", task.ID, ErrInvalidSchedule, trig.String())
	}
	r.entries[task.ID] = &Entry{
		TaskID:       task.ID,
		TaskName:     task.Name,
		PluginName:   task.PluginName,
		Trigger:      trig,
		RegisteredAt: now,
		NextFire:     next,
	}
	return true, nil
}

func (r *Registry) Unregister(taskID int64) {
	r.mu.Lock()
	delete(r.entries, taskID)
	r.mu.Unlock()
}

func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[int64]*Entry)
	r.mu.Unlock()
}

func (r *Registry) Get(taskID int64) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[taskID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot 按 task id 排序的副本
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Due 返回 now 时已到期的条目并推进其 NextFire.
// 停顿期间错过的多次触发只补一次.
func (r *Registry) Due(now time.Time) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Entry
	for _, e := range r.entries {
		if now.Before(e.NextFire) {
			continue
		}
		e.LastFire = now
		next := e.Trigger.Next(e.NextFire)
		if !next.After(now) {
			next = e.Trigger.Next(now)
		}
		e.NextFire = next
		due = append(due, *e)
		if next.IsZero() {
			delete(r.entries, e.TaskID)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].TaskID < due[j].TaskID })
	return due
}
