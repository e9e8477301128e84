package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/timelyrain333/bifang-sub000/internal/consts"
)

var ErrInvalidSchedule = errors.New("invalid schedule")

var (
	spacedStep   = regexp.MustCompile(`\*\s+/`)
	allowedField = regexp.MustCompile(`^[0-9*/,\-]+$`)
)

// Trigger 解析后的触发规则
type Trigger struct {
	Type     consts.TriggerType
	Expr     string        // 规范化后的 cron 表达式
	Interval time.Duration // interval 类型
	cron     cron.Schedule
}

// Equal 比较触发规则本身, 不比较解析产物
func (t Trigger) Equal(o Trigger) bool {
	return t.Type == o.Type && t.Expr == o.Expr && t.Interval == o.Interval
}

// Next after 之后的下一次触发时间
func (t Trigger) Next(after time.Time) time.Time {
	if t.Type == consts.TriggerInterval {
		return after.Add(t.Interval)
	}
	return t.cron.Next(after)
}

func (t Trigger) String() string {
	if t.Type == consts.TriggerInterval {
		return fmt.Sprintf("every %s", t.Interval)
	}
	return t.Expr
}

// Parse triggerType 为 manual 时返回错误, 调用方应先判断
func Parse(triggerType consts.TriggerType, raw string) (Trigger, error) {
	switch triggerType {
	case consts.TriggerCron:
		expr, err := NormalizeCron(raw)
		if err != nil {
			return Trigger{}, err
		}
		sched, err := cron.ParseStandard(expr)
		if err != nil {
			return Trigger{}, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, expr, err)
		}
		return Trigger{Type: consts.TriggerCron, Expr: expr, cron: sched}, nil
	case consts.TriggerInterval:
		d, err := ParseInterval(raw)
		if err != nil {
			return Trigger{}, err
		}
		return Trigger{Type: consts.TriggerInterval, Interval: d}, nil
	default:
		return Trigger{}, fmt.Errorf("%w: trigger type %q is not schedulable", ErrInvalidSchedule, triggerType)
	}
}

// ParseInterval 正整数秒
func ParseInterval(raw string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: interval %q is not an integer", ErrInvalidSchedule, raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidSchedule, n)
	}
	return time.Duration(n) * time.Second, nil
}

// NormalizeCron 两个修复后校验为 5 个字段:
//  1. "* /5" 合并为 "*/5"
//  2. 整个表达式没有空格且以 4 个以上 * 结尾时, 视第一个 token 为分钟字段补上分隔符
//
// 只允许 0-9 * / - , 字符; 不支持秒字段和英文月份/星期
func NormalizeCron(raw string) (string, error) {
	expr := strings.TrimSpace(raw)
	if expr == "" {
		return "", fmt.Errorf("%w: empty cron expression", ErrInvalidSchedule)
	}
	expr = spacedStep.ReplaceAllString(expr, "*/")
	if !strings.ContainsAny(expr, " \t") {
		expr = splitTrailingStars(expr)
	}
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return "", fmt.Errorf("%w: cron %q must have 5 fields, got %d", ErrInvalidSchedule, raw, len(fields))
	}
	for i, f := range fields {
		if !allowedField.MatchString(f) {
			return "", fmt.Errorf("%w: cron %q field %d (%q) has illegal characters", ErrInvalidSchedule, raw, i+1, f)
		}
	}
	return strings.Join(fields, " "), nil
}

// splitTrailingStars "*/5****" -> "*/5 * * * *"; 多余的 * 丢弃
func splitTrailingStars(expr string) string {
	head := strings.TrimRight(expr, "*")
	stars := len(expr) - len(head)
	if stars < 4 {
		return expr
	}
	if head == "" || strings.HasSuffix(head, "/") {
		// "*****" 或 "*/****" 这类, 首个 * 属于分钟字段
		head += "*"
	}
	return head + " * * * *"
}
