package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// intervalRotatingWriter 按固定时间间隔切分文件: <base>.log.<tag>
// 间隔 >= 24h 时 tag 为日期, 否则精确到秒
type intervalRotatingWriter struct {
	mu       sync.Mutex
	dir      string
	baseName string
	cfg      *RotateConfig
	now      func() time.Time

	file     *os.File
	openedAt time.Time
}

func newIntervalRotatingWriter(dir, baseName string, rc *RotateConfig) (*intervalRotatingWriter, error) {
	if rc == nil || rc.RotateInterval <= 0 {
		return nil, fmt.Errorf("invalid rotate interval")
	}
	w := &intervalRotatingWriter{dir: dir, baseName: baseName, cfg: rc, now: time.Now}
	if err := w.rotateLocked(w.now()); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *intervalRotatingWriter) layout() string {
	if w.cfg.RotateInterval >= 24*time.Hour {
		return "20060102"
	}
	return "20060102150405"
}

func (w *intervalRotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	if now.Sub(w.openedAt) >= w.cfg.RotateInterval {
		if err := w.rotateLocked(now); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

func (w *intervalRotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *intervalRotatingWriter) rotateLocked(now time.Time) error {
	if w.file != nil {
		_ = w.file.Sync()
		_ = w.file.Close()
	}
	name := fmt.Sprintf("%s.log.%s", w.baseName, now.Format(w.layout()))
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return fmt.Errorf("open rotated log file: %w", err)
	}
	w.file = f
	w.openedAt = now
	if w.cfg.CleanupEnabled && w.cfg.MaxAge > 0 {
		w.cleanupLocked(now.Add(-w.cfg.MaxAge))
	}
	return nil
}

// cleanupLocked 删除 tag 早于 cutoff 的历史文件
func (w *intervalRotatingWriter) cleanupLocked(cutoff time.Time) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	prefix := w.baseName + ".log."
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		stamp := strings.TrimPrefix(e.Name(), prefix)
		var layout string
		switch len(stamp) {
		case 8:
			layout = "20060102"
		case 14:
			layout = "20060102150405"
		default:
			continue
		}
		t, err := time.ParseInLocation(layout, stamp, time.Local)
		if err != nil {
			continue
		}
		if t.Before(cutoff) {
			_ = os.Remove(filepath.Join(w.dir, e.Name()))
		}
	}
}
