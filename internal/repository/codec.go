package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/datagridint/slv-extractor/internal/models"
)

const (
	colGeoZoneNamesPath = "geoZoneNamesPath"
	colName             = "name"
	colEventTime        = "eventTime"
	colUpdateTime       = "updateTime"
)

// RecordHeader 文件表头：位置、设备名、事件时间、更新时间，然后每个跟踪指标一列
func RecordHeader() []string {
	header := []string{colGeoZoneNamesPath, colName, colEventTime, colUpdateTime}
	for _, m := range models.TrackedMetrics {
		header = append(header, string(m))
	}
	return header
}

// recordToRow 将记录转换为一行字符串，null 指标为空串
func recordToRow(r models.WideRecord, loc *time.Location) []string {
	row := []string{
		r.GeoZoneNamesPath,
		r.DeviceName,
		formatTime(r.EventTime, loc),
		formatTime(r.UpdateTime, loc),
	}
	for _, m := range models.TrackedMetrics {
		if v, ok := r.Value(m); ok {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			row = append(row, "")
		}
	}
	return row
}

// rowDecoder 按表头名称解析行，列顺序可以与 RecordHeader 不同
type rowDecoder struct {
	index map[string]int
	loc   *time.Location
}

func newRowDecoder(header []string, loc *time.Location) (*rowDecoder, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{colGeoZoneNamesPath, colName, colEventTime} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}
	return &rowDecoder{index: index, loc: loc}, nil
}

func (d *rowDecoder) cell(row []string, col string) string {
	i, ok := d.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (d *rowDecoder) decode(row []string) (models.WideRecord, error) {
	r := models.WideRecord{
		GeoZoneNamesPath: d.cell(row, colGeoZoneNamesPath),
		DeviceName:       d.cell(row, colName),
	}

	var err error
	if r.EventTime, err = parseTime(d.cell(row, colEventTime), d.loc); err != nil {
		return r, fmt.Errorf("eventTime: %w", err)
	}
	if r.EventTime.IsZero() {
		return r, fmt.Errorf("eventTime is empty")
	}
	if r.UpdateTime, err = parseTime(d.cell(row, colUpdateTime), d.loc); err != nil {
		return r, fmt.Errorf("updateTime: %w", err)
	}

	for _, m := range models.TrackedMetrics {
		s := d.cell(row, string(m))
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return r, fmt.Errorf("%s: %w", m, err)
		}
		r.Set(m, v)
	}
	return r, nil
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	return t.In(loc).Format(models.TimeLayout)
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(models.TimeLayout, s, loc)
}
