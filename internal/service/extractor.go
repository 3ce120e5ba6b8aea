package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/internal/merger"
	"github.com/datagridint/slv-extractor/internal/models"
	"github.com/datagridint/slv-extractor/internal/notifier"
	"github.com/datagridint/slv-extractor/internal/repository"
	"github.com/datagridint/slv-extractor/internal/slv"
	"github.com/datagridint/slv-extractor/internal/transformer"
)

// UpstreamClient SLV API（*slv.Client 实现）
type UpstreamClient interface {
	Authenticate(ctx context.Context, creds slv.Credentials) (*slv.Session, error)
	GetRootZone(ctx context.Context, sess *slv.Session) (string, error)
	ListDevices(ctx context.Context, sess *slv.Session, zoneID, category string) ([]models.Device, error)
	FetchReadings(ctx context.Context, sess *slv.Session, deviceIDs []int64, metrics []models.Metric, rng models.TimeRange) ([]models.RawReading, error)
}

// RunLock 运行互斥锁（*redis.Lock 实现）
type RunLock interface {
	Acquire(ctx context.Context, token string) error
	Release(ctx context.Context, token string) error
}

// Mirror 时序库镜像（*tsdb.Mirror 实现）
type Mirror interface {
	Write(ctx context.Context, records []models.WideRecord) error
}

// Options 单次运行参数
type Options struct {
	Credentials slv.Credentials
	Category    string
	Metrics     []models.Metric
	Mode        models.RunMode
	Range       models.TimeRange
}

// Dependencies 外部依赖；Mirror、Notifier、Lock 可以为空
type Dependencies struct {
	Client   UpstreamClient
	Store    repository.Store
	Mirror   Mirror
	Notifier notifier.Notifier
	Lock     RunLock
}

// ExtractorService SLV 提取服务
type ExtractorService struct {
	opts   Options
	deps   Dependencies
	pivot  *transformer.PivotTransformer
	logger *zap.Logger

	closers []func()
}

// NewExtractorService 创建提取服务
func NewExtractorService(opts Options, deps Dependencies, logger *zap.Logger) (*ExtractorService, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("upstream client is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := opts.Range.Validate(); err != nil {
		return nil, err
	}
	if opts.Category == "" {
		opts.Category = models.CategoryStreetlight
	}
	if len(opts.Metrics) == 0 {
		opts.Metrics = models.TrackedMetrics
	}
	if opts.Mode == "" {
		opts.Mode = models.RunModeAdHoc
	}

	return &ExtractorService{
		opts:   opts,
		deps:   deps,
		pivot:  transformer.NewPivotTransformer(opts.Metrics, logger),
		logger: logger,
	}, nil
}

// Run 执行一次完整的提取
//
// 流程：
// 1. 获取运行锁（可选）
// 2. 登录，读取根 geoZone，列出路灯设备
// 3. 分段获取读数；没有读数时直接返回，不写存储
// 4. 长表转宽表，与已存储数据合并去重后写回
// 5. 写入 InfluxDB、发布运行事件（可选，失败只记录日志）
func (s *ExtractorService) Run(ctx context.Context) (*models.RunSummary, error) {
	summary := &models.RunSummary{
		RunID:     uuid.NewString(),
		Mode:      s.opts.Mode,
		From:      s.opts.Range.From,
		To:        s.opts.Range.To,
		StartedAt: time.Now(),
	}
	logger := s.logger.With(zap.String("run_id", summary.RunID))

	logger.Info("Starting SLV extraction",
		zap.String("mode", string(s.opts.Mode)),
		zap.String("range", s.opts.Range.String()),
	)

	if s.deps.Lock != nil {
		if err := s.deps.Lock.Acquire(ctx, summary.RunID); err != nil {
			return nil, fmt.Errorf("failed to acquire run lock: %w", err)
		}
		defer func() {
			// ctx 可能已取消，释放锁仍需执行
			if err := s.deps.Lock.Release(context.WithoutCancel(ctx), summary.RunID); err != nil {
				logger.Warn("Failed to release run lock", zap.Error(err))
			}
		}()
	}

	sess, err := s.deps.Client.Authenticate(ctx, s.opts.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}

	zoneID, err := s.deps.Client.GetRootZone(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to get root zone: %w", err)
	}

	devices, err := s.deps.Client.ListDevices(ctx, sess, zoneID, s.opts.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	summary.Devices = len(devices)
	logger.Info("Loaded device catalog",
		zap.String("zone_id", zoneID),
		zap.Int("devices", len(devices)),
	)

	readings, err := s.deps.Client.FetchReadings(ctx, sess, models.DeviceIDs(devices), s.opts.Metrics, s.opts.Range)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch readings: %w", err)
	}
	summary.Readings = len(readings)

	if len(readings) == 0 {
		logger.Info("No readings retrieved from SLV in this time range")
		summary.FinishedAt = time.Now()
		s.notify(ctx, logger, summary)
		return summary, nil
	}

	fresh := s.pivot.Pivot(readings, devices)
	summary.FreshRecords = len(fresh)

	existing, err := s.deps.Store.FetchExisting(ctx, s.opts.Range)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch existing records: %w", err)
	}
	summary.ExistingRecords = len(existing)

	merged := merger.Merge(existing, fresh)
	summary.MergedRecords = len(merged)

	stats := merger.Stats{Existing: len(existing), Fresh: len(fresh), Merged: len(merged)}
	logger.Info("Merged records",
		zap.Int("existing", stats.Existing),
		zap.Int("fresh", stats.Fresh),
		zap.Int("merged", stats.Merged),
		zap.Int("dropped", stats.Dropped()),
	)

	if err := s.deps.Store.Write(ctx, s.opts.Range, merged); err != nil {
		return nil, fmt.Errorf("failed to write records: %w", err)
	}
	summary.Persisted = true

	if s.deps.Mirror != nil {
		if err := s.deps.Mirror.Write(ctx, merged); err != nil {
			logger.Warn("Failed to mirror records to time series database", zap.Error(err))
		}
	}

	summary.FinishedAt = time.Now()
	s.notify(ctx, logger, summary)

	logger.Info("SLV extraction finished",
		zap.Int("records", summary.MergedRecords),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

func (s *ExtractorService) notify(ctx context.Context, logger *zap.Logger, summary *models.RunSummary) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.Notify(ctx, *summary); err != nil {
		logger.Warn("Failed to publish run summary", zap.Error(err))
	}
}

// Close 释放 Build 创建的连接
func (s *ExtractorService) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
