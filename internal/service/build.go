package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/common/database"
	"github.com/datagridint/slv-extractor/common/mqtt"
	commonredis "github.com/datagridint/slv-extractor/common/redis"
	"github.com/datagridint/slv-extractor/internal/config"
	"github.com/datagridint/slv-extractor/internal/notifier"
	"github.com/datagridint/slv-extractor/internal/repository"
	"github.com/datagridint/slv-extractor/internal/slv"
	"github.com/datagridint/slv-extractor/internal/tsdb"
)

// Build 根据配置创建 SLV 客户端、存储和可选的 Redis/MQTT/InfluxDB 连接
// 调用方负责 Close
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (svc *ExtractorService, err error) {
	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	client, err := slv.NewClient(slv.Options{
		BaseURL:            cfg.SLV.BaseURL,
		Timeout:            cfg.SLV.RequestTimeout,
		RetryCount:         cfg.SLV.RetryCount,
		InsecureSkipVerify: cfg.SLV.InsecureSkipVerify,
		WindowSize:         cfg.SLV.WindowSize,
		Location:           cfg.Location,
	}, logger)
	if err != nil {
		return nil, err
	}

	deps := Dependencies{Client: client}

	switch cfg.Storage.Backend {
	case "postgres", "sqlite":
		var store *repository.SQLStore
		store, closers, err = buildSQLStore(ctx, cfg, logger, closers)
		if err != nil {
			return nil, err
		}
		deps.Store = store
	default:
		store, err := repository.NewFileStore(repository.FileStoreOptions{
			Dir:         cfg.Storage.Directory,
			Prefix:      cfg.Storage.FilePrefix,
			Format:      repository.FileFormat(cfg.Storage.FileFormat),
			Mode:        cfg.Mode,
			FallbackDir: cfg.Storage.FallbackDir,
			Location:    cfg.Location,
		}, logger)
		if err != nil {
			return nil, err
		}
		deps.Store = store
	}

	var notifiers notifier.Multi

	if cfg.Redis.Enabled {
		redisClient := commonredis.NewRedisClient(&cfg.Redis.RedisConfig)
		closers = append(closers, func() { commonredis.Close(redisClient) })
		if err = commonredis.Ping(ctx, redisClient); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		if cfg.Redis.Stream != "" {
			notifiers = append(notifiers, notifier.NewStreamNotifier(notifier.NewRedisPublisher(redisClient), cfg.Redis.Stream, logger))
		}
		if cfg.Redis.LockKey != "" {
			deps.Lock = commonredis.NewLock(redisClient, cfg.Redis.LockKey, cfg.Redis.LockTTL)
		}
	}

	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.NewClient(&cfg.MQTT.MQTTConfig, logger)
		if err != nil {
			return nil, err
		}
		closers = append(closers, mqttClient.Disconnect)
		notifiers = append(notifiers, notifier.NewMQTTNotifier(mqttClient, cfg.MQTT.Topic, mqttClient.QoS(), logger))
	}

	if len(notifiers) > 0 {
		deps.Notifier = notifiers
	}

	if cfg.InfluxDB.Enabled {
		mirror, err := tsdb.Connect(ctx, &cfg.InfluxDB.InfluxDBConfig, logger)
		if err != nil {
			return nil, err
		}
		closers = append(closers, mirror.Close)
		deps.Mirror = mirror
	}

	svc, err = NewExtractorService(Options{
		Credentials: slv.Credentials{
			Username: cfg.SLV.Username,
			Password: cfg.SLV.Password,
		},
		Category: cfg.SLV.Category,
		Metrics:  cfg.Metrics,
		Mode:     cfg.Mode,
		Range:    cfg.Range,
	}, deps, logger)
	if err != nil {
		return nil, err
	}
	svc.closers = closers
	return svc, nil
}

func buildSQLStore(ctx context.Context, cfg *config.Config, logger *zap.Logger, closers []func()) (*repository.SQLStore, []func(), error) {
	var (
		db      *sql.DB
		dialect repository.Dialect
		err     error
	)
	if cfg.Storage.Backend == "postgres" {
		dialect = repository.DialectPostgres
		db, err = database.NewPostgresDB(ctx, &cfg.Database)
	} else {
		dialect = repository.DialectSQLite
		db, err = database.NewSQLiteDB(cfg.Storage.SQLitePath)
	}
	if err != nil {
		return nil, closers, fmt.Errorf("failed to connect to database: %w", err)
	}
	closers = append(closers, func() { database.Close(db) })

	store, err := repository.NewSQLStore(db, dialect, cfg.Storage.Table, cfg.Location, logger)
	if err != nil {
		return nil, closers, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, closers, err
	}
	return store, closers, nil
}
