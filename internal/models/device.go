package models

import "time"

// CategoryStreetlight 路灯设备分类（SLV categoryStrId）
const CategoryStreetlight = "streetlight"

// Device SLV 设备（仅保留提取需要的字段）
type Device struct {
	ID               int64  `json:"id"`
	GeoZoneNamesPath string `json:"geoZoneNamesPath"`
	Name             string `json:"name"`
	Category         string `json:"categoryStrId"`
	IDOnController   string `json:"idOnController"`
}

// RawReading 单条指标读数（长表格式）
// Value 为 nil 表示上游未返回数值
type RawReading struct {
	DeviceID   int64
	Metric     Metric
	EventTime  time.Time
	UpdateTime time.Time
	Value      *float64
	Status     string
}

// DeviceIDs 提取设备 ID 列表
func DeviceIDs(devices []Device) []int64 {
	ids := make([]int64, 0, len(devices))
	for _, d := range devices {
		ids = append(ids, d.ID)
	}
	return ids
}
