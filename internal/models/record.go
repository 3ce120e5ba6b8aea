package models

import (
	"sort"
	"time"
)

const (
	// TimeLayout SLV 接口与输出文件使用的时间格式
	TimeLayout = "2006-01-02 15:04:05"
	// CompactTimeLayout 文件名中使用的时间格式
	CompactTimeLayout = "20060102150405"
)

// WideRecord 宽表记录：一个设备在一个时刻的全部指标
// Values 中不存在的指标视为 null
type WideRecord struct {
	GeoZoneNamesPath string
	DeviceName       string
	EventTime        time.Time
	UpdateTime       time.Time
	Values           map[Metric]float64
}

// RecordKey 自然键 (location, device, event time)
type RecordKey struct {
	GeoZoneNamesPath string
	DeviceName       string
	EventTime        int64 // Unix 秒，与存储精度一致；不直接用 time.Time 以避免时区差异影响比较
}

// Key 返回记录的自然键
func (r WideRecord) Key() RecordKey {
	return RecordKey{
		GeoZoneNamesPath: r.GeoZoneNamesPath,
		DeviceName:       r.DeviceName,
		EventTime:        r.EventTime.Unix(),
	}
}

// Value 返回指标值，ok 为 false 表示 null
func (r WideRecord) Value(m Metric) (float64, bool) {
	v, ok := r.Values[m]
	return v, ok
}

// Set 设置指标值
func (r *WideRecord) Set(m Metric, v float64) {
	if r.Values == nil {
		r.Values = make(map[Metric]float64, len(TrackedMetrics))
	}
	r.Values[m] = v
}

// SortRecords 按 (location, device, event time, update time) 升序稳定排序
func SortRecords(records []WideRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return recordLess(records[i], records[j])
	})
}

func recordLess(a, b WideRecord) bool {
	if a.GeoZoneNamesPath != b.GeoZoneNamesPath {
		return a.GeoZoneNamesPath < b.GeoZoneNamesPath
	}
	if a.DeviceName != b.DeviceName {
		return a.DeviceName < b.DeviceName
	}
	if !a.EventTime.Equal(b.EventTime) {
		return a.EventTime.Before(b.EventTime)
	}
	return a.UpdateTime.Before(b.UpdateTime)
}

// EventSpan 返回记录中最早和最晚的事件时间；空切片返回零值和 false
func EventSpan(records []WideRecord) (first, last time.Time, ok bool) {
	for i, r := range records {
		if i == 0 || r.EventTime.Before(first) {
			first = r.EventTime
		}
		if i == 0 || r.EventTime.After(last) {
			last = r.EventTime
		}
	}
	return first, last, len(records) > 0
}
