// Package transformer 将 SLV 长表读数转换为宽表记录
//
// 每个 (位置, 设备, 事件时间, 更新时间) 生成一条记录，每个跟踪指标一列。
// 不同指标可能在略有不同的时刻上报，所以按"任一指标有值即产生记录"合并，
// 某个指标缺失不会导致其他指标丢失。
package transformer

import (
	"sort"

	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/internal/models"
)

// PivotTransformer 长表 → 宽表转换器
type PivotTransformer struct {
	tracked map[models.Metric]struct{}
	logger  *zap.Logger
}

// NewPivotTransformer 创建转换器；metrics 为需要保留的指标
func NewPivotTransformer(metrics []models.Metric, logger *zap.Logger) *PivotTransformer {
	tracked := make(map[models.Metric]struct{}, len(metrics))
	for _, m := range metrics {
		tracked[m] = struct{}{}
	}
	return &PivotTransformer{
		tracked: tracked,
		logger:  logger,
	}
}

type groupKey struct {
	path       string
	device     string
	eventTime  int64
	updateTime int64
}

// Pivot 转换读数
//
// 转换流程：
// 1. 按设备 ID 关联设备，取得位置和设备名
// 2. 丢弃没有匹配设备、设备缺少位置/名称、或没有数值的读数
// 3. 丢弃不在跟踪列表中的指标
// 4. 按 (位置, 设备名, 事件时间, 更新时间) 分组，每个指标写入对应列
//
// 输入顺序不影响结果：读数先按固定顺序排序，同一分组同一指标重复出现时保留排序后的第一条。
// 返回结果按 (位置, 设备名, 事件时间, 更新时间) 升序。
func (t *PivotTransformer) Pivot(readings []models.RawReading, devices []models.Device) []models.WideRecord {
	byID := make(map[int64]models.Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}

	sorted := make([]models.RawReading, len(readings))
	copy(sorted, readings)
	sortCanonical(sorted)

	groups := make(map[groupKey]int)
	var records []models.WideRecord
	var unmatched, empty, untracked, duplicate int

	for _, r := range sorted {
		d, ok := byID[r.DeviceID]
		if !ok || d.GeoZoneNamesPath == "" || d.Name == "" {
			unmatched++
			continue
		}
		if r.Value == nil {
			empty++
			continue
		}
		if _, ok := t.tracked[r.Metric]; !ok {
			untracked++
			continue
		}

		k := groupKey{
			path:       d.GeoZoneNamesPath,
			device:     d.Name,
			eventTime:  r.EventTime.UnixNano(),
			updateTime: r.UpdateTime.UnixNano(),
		}
		idx, ok := groups[k]
		if !ok {
			records = append(records, models.WideRecord{
				GeoZoneNamesPath: d.GeoZoneNamesPath,
				DeviceName:       d.Name,
				EventTime:        r.EventTime,
				UpdateTime:       r.UpdateTime,
			})
			idx = len(records) - 1
			groups[k] = idx
		}

		if _, exists := records[idx].Value(r.Metric); exists {
			duplicate++
			continue
		}
		records[idx].Set(r.Metric, *r.Value)
	}

	models.SortRecords(records)

	t.logger.Debug("Pivoted readings",
		zap.Int("readings", len(readings)),
		zap.Int("records", len(records)),
		zap.Int("unmatched", unmatched),
		zap.Int("empty", empty),
		zap.Int("untracked", untracked),
		zap.Int("duplicate", duplicate),
	)

	return records
}

// sortCanonical 完全确定的排序：(事件时间, 设备, 指标, 更新时间, 数值)，nil 数值排在最后
func sortCanonical(readings []models.RawReading) {
	sort.SliceStable(readings, func(i, j int) bool {
		a, b := readings[i], readings[j]
		if !a.EventTime.Equal(b.EventTime) {
			return a.EventTime.Before(b.EventTime)
		}
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		if a.Metric != b.Metric {
			return a.Metric < b.Metric
		}
		if !a.UpdateTime.Equal(b.UpdateTime) {
			return a.UpdateTime.Before(b.UpdateTime)
		}
		switch {
		case a.Value == nil:
			return false
		case b.Value == nil:
			return true
		default:
			return *a.Value < *b.Value
		}
	})
}
