package models

import (
	"fmt"
	"strings"
)

// Metric SLV 设备上报的指标名称（与 getDevicesLogValues 的 name 字段一致）
type Metric string

const (
	MetricTemperature      Metric = "Temperature"
	MetricRunningHoursLamp Metric = "RunningHoursLamp"
	MetricEnergy           Metric = "Energy"
	MetricCurrent          Metric = "Current"
	MetricMainVoltage      Metric = "MainVoltage"
	MetricMeteredPower     Metric = "MeteredPower"
	MetricPowerFactor      Metric = "PowerFactor"
)

// TrackedMetrics 需要提取的指标，顺序即输出列顺序
var TrackedMetrics = []Metric{
	MetricTemperature,
	MetricRunningHoursLamp,
	MetricEnergy,
	MetricCurrent,
	MetricMainVoltage,
	MetricMeteredPower,
	MetricPowerFactor,
}

// AllMetrics SLV 能上报的全部指标。大部分目前没有数据，ParseMetrics 用它区分拼写错误和没有输出列的指标
var AllMetrics = []Metric{
	"RSSI",
	"BallastFailure",
	"ControllerFailure",
	"CycleCount",
	"DefaultLostNode",
	"BallastTemp",
	"FlickerCount",
	"FlickeringFailure",
	"HighVoltage",
	"HighCurrent",
	"HighOLCTemperature",
	"brandId",
	MetricRunningHoursLamp,
	"LampCurrent",
	MetricEnergy,
	"LampCommandLevel",
	"LampLevel",
	"LampCommandSwitch",
	"LampSwitch",
	"LampVoltage",
	"power",
	"LampFailure",
	"LowVoltage",
	"LowCurrent",
	"LowPowerFactor",
	"LuxLevel",
	MetricCurrent,
	MetricMainVoltage,
	MetricMeteredPower,
	MetricPowerFactor,
	"RelayFailure",
	"TalqAddress",
	MetricTemperature,
	"modelFunctionId",
	"MacAddress",
}

// 关系库列名；current 是 SQL 保留字，使用 current_amps
var metricColumns = map[Metric]string{
	MetricTemperature:      "temperature",
	MetricRunningHoursLamp: "running_hours_lamp",
	MetricEnergy:           "energy",
	MetricCurrent:          "current_amps",
	MetricMainVoltage:      "main_voltage",
	MetricMeteredPower:     "metered_power",
	MetricPowerFactor:      "power_factor",
}

// IsTracked 判断指标是否在提取列表中
func (m Metric) IsTracked() bool {
	_, ok := metricColumns[m]
	return ok
}

// ColumnName 返回关系库中的列名；未跟踪的指标返回空字符串
func (m Metric) ColumnName() string {
	return metricColumns[m]
}

// MetricNames 转换为字符串列表（用于请求参数）
func MetricNames(metrics []Metric) []string {
	names := make([]string, 0, len(metrics))
	for _, m := range metrics {
		names = append(names, string(m))
	}
	return names
}

// ParseMetrics 解析配置中的指标名称
// 名称必须是 SLV 能上报的指标，并且在输出表中有对应的列；重复的名称只保留一次。
// names 为空时返回全部跟踪指标。
func ParseMetrics(names []string) ([]Metric, error) {
	known := make(map[Metric]struct{}, len(AllMetrics))
	for _, m := range AllMetrics {
		known[m] = struct{}{}
	}

	metrics := make([]Metric, 0, len(names))
	seen := make(map[Metric]struct{}, len(names))
	for _, name := range names {
		m := Metric(strings.TrimSpace(name))
		if m == "" {
			continue
		}
		if _, ok := known[m]; !ok {
			return nil, fmt.Errorf("unknown metric %q", name)
		}
		if !m.IsTracked() {
			return nil, fmt.Errorf("metric %q has no output column", name)
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		metrics = append(metrics, m)
	}

	if len(metrics) == 0 {
		return append([]Metric(nil), TrackedMetrics...), nil
	}
	return metrics, nil
}
