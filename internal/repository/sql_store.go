package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/datagridint/slv-extractor/internal/models"
)

// Dialect 关系库方言
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"

	// DefaultTable 默认表名
	DefaultTable = "slv_readings"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore 将宽表记录保存在关系库的一张表中
// 主键为自然键 (geo_zone_names_path, device_name, event_time)
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
	loc     *time.Location
	logger  *zap.Logger
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore 创建关系库存储
func NewSQLStore(db *sql.DB, dialect Dialect, table string, loc *time.Location, logger *zap.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	switch dialect {
	case DialectPostgres, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if loc == nil {
		loc = time.Local
	}
	return &SQLStore{
		db:      db,
		dialect: dialect,
		table:   table,
		loc:     loc,
		logger:  logger,
	}, nil
}

// placeholder 第 n 个参数占位符（从 1 开始）
func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func (s *SQLStore) columns() []string {
	cols := []string{"geo_zone_names_path", "device_name", "event_time", "update_time"}
	for _, m := range models.TrackedMetrics {
		cols = append(cols, m.ColumnName())
	}
	return cols
}

// EnsureSchema 表不存在时创建
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	timeType, floatType := "TIMESTAMP", "DOUBLE PRECISION"
	if s.dialect == DialectSQLite {
		timeType, floatType = "TEXT", "REAL"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", s.table)
	fmt.Fprintf(&b, "\tgeo_zone_names_path TEXT NOT NULL,\n")
	fmt.Fprintf(&b, "\tdevice_name TEXT NOT NULL,\n")
	fmt.Fprintf(&b, "\tevent_time %s NOT NULL,\n", timeType)
	fmt.Fprintf(&b, "\tupdate_time %s,\n", timeType)
	for _, m := range models.TrackedMetrics {
		fmt.Fprintf(&b, "\t%s %s,\n", m.ColumnName(), floatType)
	}
	b.WriteString("\tPRIMARY KEY (geo_zone_names_path, device_name, event_time)\n)")

	if _, err := s.db.ExecContext(ctx, b.String()); err != nil {
		return fmt.Errorf("%w: create table %s: %v", ErrStorage, s.table, err)
	}
	return nil
}

// FetchExisting 查询事件时间落在 [rng.From, rng.To] 内的记录
func (s *SQLStore) FetchExisting(ctx context.Context, rng models.TimeRange) ([]models.WideRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE event_time >= %s AND event_time <= %s
		ORDER BY geo_zone_names_path, device_name, event_time
	`, strings.Join(s.columns(), ", "), s.table, s.placeholder(1), s.placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, s.timeArg(rng.From), s.timeArg(rng.To))
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrStorage, s.table, err)
	}
	defer rows.Close()

	var records []models.WideRecord
	for rows.Next() {
		var (
			r                models.WideRecord
			eventRaw, updRaw any
			values           = make([]sql.NullFloat64, len(models.TrackedMetrics))
		)
		dest := []any{&r.GeoZoneNamesPath, &r.DeviceName, &eventRaw, &updRaw}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", ErrStorage, s.table, err)
		}

		if r.EventTime, err = s.decodeTime(eventRaw); err != nil {
			return nil, fmt.Errorf("%w: event_time: %v", ErrStorage, err)
		}
		if r.UpdateTime, err = s.decodeTime(updRaw); err != nil {
			return nil, fmt.Errorf("%w: update_time: %v", ErrStorage, err)
		}
		for i, m := range models.TrackedMetrics {
			if values[i].Valid {
				r.Set(m, values[i].Float64)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %v", ErrStorage, s.table, err)
	}

	s.logger.Info("Loaded existing data from database",
		zap.String("table", s.table),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// Write 在一个事务内删除覆盖范围内的旧记录并插入 records
// 删除范围为 rng 与 records 事件时间范围的并集
func (s *SQLStore) Write(ctx context.Context, rng models.TimeRange, records []models.WideRecord) error {
	from, to := rng.From, rng.To
	if first, last, ok := models.EventSpan(records); ok {
		if first.Before(from) {
			from = first
		}
		if last.After(to) {
			to = last
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorage, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Warn("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE event_time >= %s AND event_time <= %s`,
		s.table, s.placeholder(1), s.placeholder(2))
	res, err := tx.ExecContext(ctx, deleteQuery, s.timeArg(from), s.timeArg(to))
	if err != nil {
		return fmt.Errorf("%w: delete from %s: %v", ErrStorage, s.table, err)
	}
	deleted, _ := res.RowsAffected()

	cols := s.columns()
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = s.placeholder(i + 1)
	}
	insertQuery := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		s.table, strings.Join(cols, ", "), strings.Join(marks, ", "))

	for _, r := range records {
		if _, err = tx.ExecContext(ctx, insertQuery, s.recordArgs(r)...); err != nil {
			return fmt.Errorf("%w: insert into %s: %v", ErrStorage, s.table, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorage, err)
	}

	s.logger.Info("Wrote records to database",
		zap.String("table", s.table),
		zap.Int64("deleted", deleted),
		zap.Int("inserted", len(records)),
	)
	return nil
}

func (s *SQLStore) recordArgs(r models.WideRecord) []any {
	args := []any{r.GeoZoneNamesPath, r.DeviceName, s.timeArg(r.EventTime), s.nullableTimeArg(r.UpdateTime)}
	for _, m := range models.TrackedMetrics {
		if v, ok := r.Value(m); ok {
			args = append(args, v)
		} else {
			args = append(args, nil)
		}
	}
	return args
}

// timeArg 时间统一以本地时区的墙上时间写入，两种方言都按文本比较/转换
func (s *SQLStore) timeArg(t time.Time) string {
	return t.In(s.loc).Format(models.TimeLayout)
}

func (s *SQLStore) nullableTimeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return s.timeArg(t)
}

// decodeTime postgres 返回不带时区的 time.Time，sqlite 返回文本
func (s *SQLStore) decodeTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return time.Date(v.Year(), v.Month(), v.Day(), v.Hour(), v.Minute(), v.Second(), v.Nanosecond(), s.loc), nil
	case string:
		return parseTime(v, s.loc)
	case []byte:
		return parseTime(string(v), s.loc)
	default:
		return time.Time{}, fmt.Errorf("unexpected time value %T", raw)
	}
}
