package repository

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/internal/models"
)

// FileFormat 文件格式
type FileFormat string

const (
	FormatCSV  FileFormat = "csv"
	FormatXLSX FileFormat = "xlsx"

	// DefaultFilePrefix 数据文件名前缀
	DefaultFilePrefix = "slv"
)

// FileStoreOptions 文件存储配置
type FileStoreOptions struct {
	Dir         string
	Prefix      string
	Format      FileFormat
	Mode        models.RunMode // scheduled: 每小时一个文件；adhoc: 整个范围一个文件
	FallbackDir string         // 写入 Dir 失败时改写到这里（只重试一次）
	Location    *time.Location // 文件名和时间列使用的时区
}

// FileStore 将记录保存为 <prefix>-<start>-<end>.<format> 文件
type FileStore struct {
	opts   FileStoreOptions
	codec  fileCodec
	logger *zap.Logger
}

var _ Store = (*FileStore)(nil)

// fileCodec 单个文件的读写
type fileCodec interface {
	write(w io.Writer, records []models.WideRecord, loc *time.Location) error
	read(path string, loc *time.Location) ([]models.WideRecord, error)
}

// NewFileStore 创建文件存储
func NewFileStore(opts FileStoreOptions, logger *zap.Logger) (*FileStore, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultFilePrefix
	}
	if opts.Format == "" {
		opts.Format = FormatCSV
	}
	if opts.Mode == "" {
		opts.Mode = models.RunModeScheduled
	}
	if opts.FallbackDir == "" {
		opts.FallbackDir = "."
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	var codec fileCodec
	switch opts.Format {
	case FormatCSV:
		codec = csvCodec{}
	case FormatXLSX:
		codec = xlsxCodec{}
	default:
		return nil, fmt.Errorf("unsupported file format %q", opts.Format)
	}

	return &FileStore{
		opts:   opts,
		codec:  codec,
		logger: logger,
	}, nil
}

// FileName 返回覆盖 [start, end) 的文件名
func (s *FileStore) FileName(start, end time.Time) string {
	return fmt.Sprintf("%s-%s-%s.%s",
		s.opts.Prefix,
		start.In(s.opts.Location).Format(models.CompactTimeLayout),
		end.In(s.opts.Location).Format(models.CompactTimeLayout),
		s.opts.Format,
	)
}

// parseFileName 从文件名解析覆盖范围；不是本存储的文件返回 false
func (s *FileStore) parseFileName(name string) (models.TimeRange, bool) {
	prefix := s.opts.Prefix + "-"
	suffix := "." + string(s.opts.Format)
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return models.TimeRange{}, false
	}

	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix), "-")
	if len(parts) != 2 {
		return models.TimeRange{}, false
	}
	start, err := time.ParseInLocation(models.CompactTimeLayout, parts[0], s.opts.Location)
	if err != nil {
		return models.TimeRange{}, false
	}
	end, err := time.ParseInLocation(models.CompactTimeLayout, parts[1], s.opts.Location)
	if err != nil {
		return models.TimeRange{}, false
	}
	return models.TimeRange{From: start, To: end}, true
}

// FetchExisting 读取目录中覆盖范围与 rng 重叠的所有文件
func (s *FileStore) FetchExisting(ctx context.Context, rng models.TimeRange) ([]models.WideRecord, error) {
	entries, err := os.ReadDir(s.opts.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list %s: %v", ErrStorage, s.opts.Dir, err)
	}

	var records []models.WideRecord
	files := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		covered, ok := s.parseFileName(e.Name())
		if !ok || !covered.Overlaps(rng) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(s.opts.Dir, e.Name())
		batch, err := s.codec.read(path, s.opts.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, path, err)
		}
		records = append(records, batch...)
		files++
	}

	if files == 0 {
		return nil, nil
	}

	s.logger.Info("Loaded existing data from files",
		zap.Int("files", files),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// Write 写入记录
// adhoc 模式写一个覆盖整个 rng 的文件；scheduled 模式从 rng.To 向前每小时写一个文件，没有数据的小时跳过
func (s *FileStore) Write(ctx context.Context, rng models.TimeRange, records []models.WideRecord) error {
	s.logger.Info("Writing to file(s)",
		zap.String("mode", string(s.opts.Mode)),
		zap.Int("records", len(records)),
	)

	if s.opts.Mode != models.RunModeScheduled {
		return s.writeWithFallback(records, rng.From, rng.To)
	}

	for _, hour := range rng.SplitBackward(time.Hour) {
		if err := ctx.Err(); err != nil {
			return err
		}
		var batch []models.WideRecord
		for _, r := range records {
			if hour.Contains(r.EventTime) {
				batch = append(batch, r)
			}
		}
		if len(batch) == 0 {
			continue
		}
		if err := s.writeWithFallback(batch, hour.From, hour.To); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) writeWithFallback(records []models.WideRecord, start, end time.Time) error {
	name := s.FileName(start, end)

	err := s.writeFile(s.opts.Dir, name, records)
	if err == nil {
		return nil
	}

	s.logger.Warn("The file could not be saved to the specified directory, saving in the fallback directory instead",
		zap.String("dir", s.opts.Dir),
		zap.String("fallback_dir", s.opts.FallbackDir),
		zap.Error(err),
	)
	if ferr := s.writeFile(s.opts.FallbackDir, name, records); ferr != nil {
		return fmt.Errorf("%w: write %s: %v (fallback: %v)", ErrStorage, name, err, ferr)
	}
	return nil
}

// writeFile 先写临时文件再重命名，已存在的同名文件被整体替换
func (s *FileStore) writeFile(dir, name string, records []models.WideRecord) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := s.codec.write(tmp, records, s.opts.Location); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpPath)
		return err
	}

	s.logger.Debug("Wrote file",
		zap.String("path", filepath.Join(dir, name)),
		zap.Int("records", len(records)),
	)
	return nil
}
