package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/datagridint/slv-extractor/common/config"

	_ "github.com/lib/pq"
)

// 提取器按计划运行一次即退出，同一时刻只有读已有记录或写入一条连接在用
const (
	defaultMaxOpenConns = 2
	defaultMaxIdleConns = 1
	connMaxLifetime     = 30 * time.Minute
	connectTimeout      = 10 * time.Second
)

// NewPostgresDB 创建PostgreSQL数据库连接
// 连接池按短时运行的命令行进程配置；未配置 max_conns/max_idle 时使用较小的默认值
func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpen, maxIdle := poolSettings(cfg)
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return db, nil
}

// poolSettings 返回最大打开连接数和最大空闲连接数，空闲数不超过打开数
func poolSettings(cfg *config.DatabaseConfig) (maxOpen, maxIdle int) {
	maxOpen, maxIdle = defaultMaxOpenConns, defaultMaxIdleConns
	if cfg.MaxConns > 0 {
		maxOpen = cfg.MaxConns
	}
	if cfg.MaxIdle > 0 {
		maxIdle = cfg.MaxIdle
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	return maxOpen, maxIdle
}

// Close 关闭数据库连接
func Close(db *sql.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
