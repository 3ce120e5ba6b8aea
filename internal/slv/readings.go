package slv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/internal/models"
)

// FetchReadings 获取设备在 rng 内的指标读数
//
// 上游处理时间随范围线性增长，所以从 rng.To 开始向前按 WindowSize 分段请求，
// 最后一段截断到 rng.From。rng.To 不包含在内。任意一段失败则整体失败，已获取的数据丢弃。
// 返回结果按 (event time, device id, metric) 升序。
func (c *Client) FetchReadings(ctx context.Context, sess *Session, deviceIDs []int64, metrics []models.Metric, rng models.TimeRange) ([]models.RawReading, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if len(deviceIDs) == 0 || len(metrics) == 0 {
		return nil, nil
	}

	walk := models.TimeRange{From: rng.From, To: rng.To.Add(-time.Second)}
	windows := walk.SplitBackward(c.opts.WindowSize)

	seen := make(map[readingKey]struct{})
	var readings []models.RawReading
	for _, w := range windows {
		batch, err := c.getDevicesLogValues(ctx, sess, deviceIDs, metrics, w)
		if err != nil {
			return nil, err
		}
		// 相邻窗口共享边界时刻，边界上的读数会被返回两次
		for _, r := range batch {
			k := keyOf(r)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			readings = append(readings, r)
		}
	}

	SortReadings(readings)
	return readings, nil
}

// getDevicesLogValues 单个窗口的请求
func (c *Client) getDevicesLogValues(ctx context.Context, sess *Session, deviceIDs []int64, metrics []models.Metric, w models.TimeRange) ([]models.RawReading, error) {
	form := url.Values{}
	for _, id := range deviceIDs {
		form.Add("deviceId", strconv.FormatInt(id, 10))
	}
	for _, m := range metrics {
		form.Add("name", string(m))
	}
	form.Set("from", w.From.In(c.opts.Location).Format(models.TimeLayout))
	form.Set("to", w.To.In(c.opts.Location).Format(models.TimeLayout))

	c.logger.Info("Retrieving device data",
		zap.String("from", form.Get("from")),
		zap.String("to", form.Get("to")),
		zap.Int("device_count", len(deviceIDs)),
	)

	start := time.Now()
	resp, err := c.apiRequest(sess, methodGetDevicesLogValues).
		SetContext(ctx).
		SetFormDataFromValues(form).
		Post(loggingAPIPath)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", methodGetDevicesLogValues, err)
	}
	c.logger.Info("getDevicesLogValues request finished",
		zap.Duration("duration", time.Since(start)),
		zap.Int("status_code", resp.StatusCode()),
	)
	if err := checkResponse(methodGetDevicesLogValues, resp); err != nil {
		c.logger.Error("Failed to retrieve values in range",
			zap.String("range", w.String()),
			zap.Error(err),
		)
		return nil, err
	}

	var dtos []logValueDTO
	if err := json.Unmarshal(resp.Body(), &dtos); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", ErrUpstream, methodGetDevicesLogValues, err)
	}

	readings := make([]models.RawReading, 0, len(dtos))
	for _, d := range dtos {
		r, err := d.toModel(c.opts.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: device %d metric %s: %v", ErrUpstream, d.DeviceID, d.Name, err)
		}
		readings = append(readings, r)
	}
	return readings, nil
}

type readingKey struct {
	deviceID   int64
	metric     models.Metric
	eventTime  int64
	updateTime int64
}

func keyOf(r models.RawReading) readingKey {
	return readingKey{
		deviceID:   r.DeviceID,
		metric:     r.Metric,
		eventTime:  r.EventTime.UnixNano(),
		updateTime: r.UpdateTime.UnixNano(),
	}
}

// SortReadings 按 (event time, device id, metric) 升序稳定排序
func SortReadings(readings []models.RawReading) {
	sort.SliceStable(readings, func(i, j int) bool {
		a, b := readings[i], readings[j]
		if !a.EventTime.Equal(b.EventTime) {
			return a.EventTime.Before(b.EventTime)
		}
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.Metric < b.Metric
	})
}
