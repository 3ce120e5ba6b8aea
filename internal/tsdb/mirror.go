// Package tsdb 将宽表记录同步写入 InfluxDB，供看板查询
package tsdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/common/config"
	"github.com/datagridint/slv-extractor/internal/models"
)

const (
	// Measurement InfluxDB measurement 名称
	Measurement = "slv_readings"

	defaultPingTimeout = 5 * time.Second
	batchSize          = 500
)

// ErrConnectionFailed InfluxDB 不可用
var ErrConnectionFailed = errors.New("influxdb connection failed")

// pointWriter api.WriteAPIBlocking 的子集
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Mirror 阻塞写入，写完即返回错误
type Mirror struct {
	client influxdb2.Client
	writer pointWriter
	logger *zap.Logger
}

// Connect 创建客户端并 ping
func Connect(ctx context.Context, cfg *config.InfluxDBConfig, logger *zap.Logger) (*Mirror, error) {
	opts := influxdb2.DefaultOptions()
	if cfg.Timeout > 0 {
		opts.SetHTTPRequestTimeout(uint(cfg.Timeout / time.Second))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	logger.Info("Connected to InfluxDB",
		zap.String("url", cfg.URL),
		zap.String("bucket", cfg.Bucket),
	)

	return &Mirror{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger,
	}, nil
}

// Write 写入记录；没有任何指标值的记录跳过
func (m *Mirror) Write(ctx context.Context, records []models.WideRecord) error {
	points := make([]*write.Point, 0, len(records))
	for _, r := range records {
		if p := recordToPoint(r); p != nil {
			points = append(points, p)
		}
	}

	for start := 0; start < len(points); start += batchSize {
		end := start + batchSize
		if end > len(points) {
			end = len(points)
		}
		if err := m.writer.WritePoint(ctx, points[start:end]...); err != nil {
			return fmt.Errorf("failed to write points to influxdb: %w", err)
		}
	}

	m.logger.Info("Mirrored records to InfluxDB", zap.Int("points", len(points)))
	return nil
}

// Close 关闭客户端
func (m *Mirror) Close() {
	if m.client != nil {
		m.client.Close()
	}
}

// recordToPoint tags: zone, device；fields: 非 null 指标；时间戳为事件时间
func recordToPoint(r models.WideRecord) *write.Point {
	if len(r.Values) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(r.Values))
	for _, metric := range models.TrackedMetrics {
		if v, ok := r.Value(metric); ok {
			fields[string(metric)] = v
		}
	}
	if len(fields) == 0 {
		return nil
	}

	return write.NewPoint(
		Measurement,
		map[string]string{
			"zone":   r.GeoZoneNamesPath,
			"device": r.DeviceName,
		},
		fields,
		r.EventTime,
	)
}
