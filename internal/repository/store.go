package repository

import (
	"context"
	"errors"

	"github.com/datagridint/slv-extractor/internal/models"
)

// ErrStorage 读写存储失败
var ErrStorage = errors.New("storage error")

// Store 宽表记录的持久化接口（文件或关系库）
type Store interface {
	// FetchExisting 返回与 rng 重叠的已存储记录；没有数据时返回 nil
	FetchExisting(ctx context.Context, rng models.TimeRange) ([]models.WideRecord, error)

	// Write 用 records 整体替换 rng 对应的已存储数据
	Write(ctx context.Context, rng models.TimeRange, records []models.WideRecord) error
}
