package slv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/datagridint/slv-extractor/internal/models"
)

// profileProperty getProfilProperties 返回的键值对
type profileProperty struct {
	Key   string     `json:"key"`
	Value flexString `json:"value"`
}

// deviceDTO getGeoZoneDevices 返回的设备（只解析需要的字段）
type deviceDTO struct {
	ID               int64      `json:"id"`
	GeoZoneNamesPath string     `json:"geoZoneNamesPath"`
	CategoryStrID    string     `json:"categoryStrId"`
	IDOnController   flexString `json:"idOnController"`
	Name             string     `json:"name"`
}

// logValueDTO getDevicesLogValues 返回的单条读数
type logValueDTO struct {
	DeviceID   int64           `json:"deviceId"`
	Name       string          `json:"name"`
	EventTime  json.RawMessage `json:"eventTime"`
	UpdateTime json.RawMessage `json:"updateTime"`
	Value      json.RawMessage `json:"value"`
	Status     flexString      `json:"status"`
}

// flexString 兼容字符串和数字
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = flexString(str)
		return nil
	}
	*s = flexString(data)
	return nil
}

var timeLayouts = []string{
	models.TimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006/01/02 15:04:05",
}

// parseTime 解析 SLV 时间：无时区字符串按 loc 解析，RFC3339 或毫秒时间戳转换到 loc
func parseTime(raw json.RawMessage, loc *time.Location) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t, nil
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.In(loc), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	}

	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time %s", raw)
	}
	return time.UnixMilli(ms).In(loc), nil
}

// parseValue 解析读数值；null、空串、非数字返回 nil
func parseValue(raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
	} else {
		s = string(raw)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}

func (d deviceDTO) toModel() models.Device {
	return models.Device{
		ID:               d.ID,
		GeoZoneNamesPath: d.GeoZoneNamesPath,
		Name:             d.Name,
		Category:         d.CategoryStrID,
		IDOnController:   string(d.IDOnController),
	}
}

func (v logValueDTO) toModel(loc *time.Location) (models.RawReading, error) {
	eventTime, err := parseTime(v.EventTime, loc)
	if err != nil {
		return models.RawReading{}, fmt.Errorf("eventTime: %w", err)
	}
	updateTime, err := parseTime(v.UpdateTime, loc)
	if err != nil {
		return models.RawReading{}, fmt.Errorf("updateTime: %w", err)
	}
	// 存储只保留到秒，入口处统一截断，保证自然键在读回后不变
	return models.RawReading{
		DeviceID:   v.DeviceID,
		Metric:     models.Metric(v.Name),
		EventTime:  eventTime.Truncate(time.Second),
		UpdateTime: updateTime.Truncate(time.Second),
		Value:      parseValue(v.Value),
		Status:     string(v.Status),
	}, nil
}
