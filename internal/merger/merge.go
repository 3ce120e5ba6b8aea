// Package merger 合并已存储数据和新提取数据，按自然键去重
package merger

import (
	"sort"

	"github.com/datagridint/slv-extractor/internal/models"
)

// Merge 合并 existing 和 fresh
//
// existing 在前、fresh 在后拼接，按 (位置, 设备名, 事件时间) 去重并保留第一次出现的记录：
// 同一时刻已存储的数据优先于新提取的数据。existing 为 nil 时结果即 fresh（同样去重）。
// existing 内部本身存在重复键时保留切片中靠前的一条。
// 返回结果按 (位置, 设备名, 事件时间) 升序，任意两条记录的自然键都不相同。
func Merge(existing, fresh []models.WideRecord) []models.WideRecord {
	seen := make(map[models.RecordKey]struct{}, len(existing)+len(fresh))
	merged := make([]models.WideRecord, 0, len(existing)+len(fresh))

	for _, batch := range [][]models.WideRecord{existing, fresh} {
		for _, r := range batch {
			k := r.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			merged = append(merged, r)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.GeoZoneNamesPath != b.GeoZoneNamesPath {
			return a.GeoZoneNamesPath < b.GeoZoneNamesPath
		}
		if a.DeviceName != b.DeviceName {
			return a.DeviceName < b.DeviceName
		}
		return a.EventTime.Before(b.EventTime)
	})

	return merged
}

// Stats 合并前后的记录数（用于日志）
type Stats struct {
	Existing int
	Fresh    int
	Merged   int
}

// Dropped 去重丢弃的记录数
func (s Stats) Dropped() int {
	return s.Existing + s.Fresh - s.Merged
}
