package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/common/logger"
	"github.com/datagridint/slv-extractor/internal/config"
	"github.com/datagridint/slv-extractor/internal/service"
)

const serviceName = "slv-extractor"

func main() {
	os.Exit(run())
}

func run() int {
	// 加载配置
	cfg, err := config.Load(os.Args[1:], time.Now())
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			fmt.Fprint(os.Stdout, config.Usage)
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, config.ErrUsage) {
			fmt.Fprint(os.Stderr, config.Usage)
			return 2
		}
		return 1
	}

	// 初始化Logger
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	log.Info("Starting slv-extractor",
		zap.String("mode", string(cfg.Mode)),
		zap.String("range", cfg.Range.String()),
		zap.String("storage", cfg.Storage.Backend),
	)

	// 收到 SIGINT/SIGTERM 时取消当前运行
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.Build(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to create extractor service", zap.Error(err))
		return 1
	}
	defer svc.Close()

	summary, err := svc.Run(ctx)
	if err != nil {
		log.Error("Extraction failed", zap.Error(err))
		return 1
	}

	log.Info("Extraction completed",
		zap.String("run_id", summary.RunID),
		zap.Int("records", summary.MergedRecords),
		zap.Bool("persisted", summary.Persisted),
	)
	return 0
}
