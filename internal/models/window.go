package models

import (
	"fmt"
	"time"
)

// DefaultWindowSize 单次 getDevicesLogValues 请求覆盖的最大时长
// 上游大约 90 秒处理一天的数据，时间越长越容易超时
const DefaultWindowSize = 24 * time.Hour

// RunMode 运行模式
type RunMode string

const (
	// RunModeScheduled cron 模式：提取最近 24 小时，按小时写文件
	RunModeScheduled RunMode = "scheduled"
	// RunModeAdHoc 手动指定时间范围，写一个覆盖整个范围的文件
	RunModeAdHoc RunMode = "adhoc"
)

// TimeRange 时间范围 [From, To]
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Validate 校验 From <= To
func (r TimeRange) Validate() error {
	if r.To.Before(r.From) {
		return fmt.Errorf("invalid time range: from %s is after to %s",
			r.From.Format(TimeLayout), r.To.Format(TimeLayout))
	}
	return nil
}

// Duration 范围时长
func (r TimeRange) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// Contains 判断 t 是否在 [From, To) 内
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// Overlaps 判断两个范围是否有交集（端点相接不算）
func (r TimeRange) Overlaps(other TimeRange) bool {
	return other.To.After(r.From) && other.From.Before(r.To)
}

// SplitBackward 从 To 开始向前按 size 切分，最后一段截断到 From
// 返回结果按时间倒序（最新的在前）；From == To 时返回空
func (r TimeRange) SplitBackward(size time.Duration) []TimeRange {
	if size <= 0 {
		size = r.Duration()
	}

	var windows []TimeRange
	end := r.To
	for end.After(r.From) {
		start := end.Add(-size)
		if start.Before(r.From) {
			start = r.From
		}
		windows = append(windows, TimeRange{From: start, To: end})
		end = start
	}
	return windows
}

// String 便于日志输出
func (r TimeRange) String() string {
	return r.From.Format(TimeLayout) + " - " + r.To.Format(TimeLayout)
}
