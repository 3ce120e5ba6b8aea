package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/datagridint/slv-extractor/common/config"
	"github.com/datagridint/slv-extractor/internal/models"
)

const (
	// DateLayout 命令行日期格式 YYYY/MM/DD HH:MM:SS
	DateLayout = "2006/01/02 15:04:05"

	// EpochStart 只指定 -t 时的起始时间
	EpochStart = "2015/01/01 00:00:00"

	DefaultBaseURL = "https://mycityisgreen.com/reports"
)

// ErrUsage 命令行参数错误：打印用法，退出码 2
var ErrUsage = errors.New("usage error")

// ErrHelp 指定了 -h
var ErrHelp = flag.ErrHelp

// Usage 用法说明
const Usage = `Usage: slv-extractor -d <directory> -f <fromdate (YYYY/MM/DD HH:MM:SS)> -t <todate (YYYY/MM/DD HH:MM:SS)> [-c <config.yaml>]

  -d, --directory  output directory for data files (created if missing)
  -f, --fromdate   start of the range to extract
  -t, --todate     end of the range to extract (alone: everything since ` + EpochStart + `)
  -c, --config     optional YAML configuration file
  -h               show this help

Without dates the last 24 hours up to the current hour are extracted and written as hourly files.
`

// Config SLV 提取服务配置
type Config struct {
	SLV struct {
		BaseURL            string        `yaml:"base_url"`
		Username           string        `yaml:"username"`
		Password           string        `yaml:"password"`
		RequestTimeout     time.Duration `yaml:"request_timeout"` // 0 表示不限制
		RetryCount         int           `yaml:"retry_count"`
		InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
		WindowSize         time.Duration `yaml:"window_size"`
		Timezone           string        `yaml:"timezone"` // SLV 返回的时间按此时区解释
		Category           string        `yaml:"category"`
		Metrics            []string      `yaml:"metrics"` // 空表示全部跟踪指标
	} `yaml:"slv"`

	Storage struct {
		Backend     string `yaml:"backend"` // file | postgres | sqlite
		Directory   string `yaml:"directory"`
		FallbackDir string `yaml:"fallback_dir"`
		FilePrefix  string `yaml:"file_prefix"`
		FileFormat  string `yaml:"file_format"` // csv | xlsx
		Table       string `yaml:"table"`
		SQLitePath  string `yaml:"sqlite_path"`
	} `yaml:"storage"`

	Database config.DatabaseConfig `yaml:"database"`

	Redis struct {
		Enabled            bool `yaml:"enabled"`
		config.RedisConfig `yaml:",inline"`
		Stream             string        `yaml:"stream"`   // 运行事件，空表示不发布
		LockKey            string        `yaml:"lock_key"` // 运行锁，空表示不加锁
		LockTTL            time.Duration `yaml:"lock_ttl"`
	} `yaml:"redis"`

	MQTT struct {
		Enabled           bool `yaml:"enabled"`
		config.MQTTConfig `yaml:",inline"`
		Topic             string `yaml:"topic"`
	} `yaml:"mqtt"`

	InfluxDB struct {
		Enabled               bool `yaml:"enabled"`
		config.InfluxDBConfig `yaml:",inline"`
	} `yaml:"influxdb"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	// 以下由命令行决定
	Mode       models.RunMode   `yaml:"-"`
	Range      models.TimeRange `yaml:"-"`
	Location   *time.Location   `yaml:"-"`
	Metrics    []models.Metric  `yaml:"-"`
	ConfigFile string           `yaml:"-"`
}

type cliArgs struct {
	directory  string
	fromDate   string
	toDate     string
	configFile string
}

// Load 加载配置：环境变量默认值，YAML 文件覆盖，最后是命令行参数
// now 用于计算默认的 24 小时范围
func Load(args []string, now time.Time) (*Config, error) {
	cli, err := parseArgs(args)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	loadEnv(cfg)

	cfg.ConfigFile = cli.configFile
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = os.Getenv("SLV_CONFIG_FILE")
	}
	if cfg.ConfigFile != "" {
		if err := loadFile(cfg, cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if cli.directory != "" {
		cfg.Storage.Directory = cli.directory
	}

	cfg.Location, err = time.LoadLocation(cfg.SLV.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timezone %q: %v", ErrUsage, cfg.SLV.Timezone, err)
	}

	cfg.Metrics, err = models.ParseMetrics(cfg.SLV.Metrics)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if err := cfg.resolveRange(cli, now.In(cfg.Location)); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend == "file" {
		if err := os.MkdirAll(cfg.Storage.Directory, 0755); err != nil {
			return nil, fmt.Errorf("%w: directory %s does not exist and could not be created: %v",
				ErrUsage, cfg.Storage.Directory, err)
		}
	}

	return cfg, nil
}

func parseArgs(args []string) (cliArgs, error) {
	var cli cliArgs

	fs := flag.NewFlagSet("slv-extractor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cli.directory, "d", "", "output directory")
	fs.StringVar(&cli.directory, "directory", "", "output directory")
	fs.StringVar(&cli.fromDate, "f", "", "from date")
	fs.StringVar(&cli.fromDate, "fromdate", "", "from date")
	fs.StringVar(&cli.toDate, "t", "", "to date")
	fs.StringVar(&cli.toDate, "todate", "", "to date")
	fs.StringVar(&cli.configFile, "c", "", "config file")
	fs.StringVar(&cli.configFile, "config", "", "config file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cli, ErrHelp
		}
		return cli, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() > 0 {
		return cli, fmt.Errorf("%w: unexpected arguments %v", ErrUsage, fs.Args())
	}
	return cli, nil
}

func loadEnv(cfg *Config) {
	cfg.SLV.BaseURL = getEnv("SLV_BASE_URL", DefaultBaseURL)
	cfg.SLV.Username = getEnv("SLV_USERNAME", "")
	cfg.SLV.Password = getEnv("SLV_PASSWORD", "")
	cfg.SLV.RequestTimeout = getEnvDuration("SLV_REQUEST_TIMEOUT", 5*time.Minute)
	cfg.SLV.RetryCount = getEnvInt("SLV_RETRY_COUNT", 0)
	cfg.SLV.InsecureSkipVerify = getEnv("SLV_INSECURE_SKIP_VERIFY", "false") == "true"
	cfg.SLV.WindowSize = getEnvDuration("SLV_WINDOW_SIZE", models.DefaultWindowSize)
	cfg.SLV.Timezone = getEnv("SLV_TIMEZONE", "Local")
	cfg.SLV.Category = getEnv("SLV_CATEGORY", models.CategoryStreetlight)
	if value := getEnv("SLV_METRICS", ""); value != "" {
		cfg.SLV.Metrics = strings.Split(value, ",")
	}

	cfg.Storage.Backend = getEnv("STORAGE_BACKEND", "file")
	cfg.Storage.Directory = getEnv("SLV_DATA_DIR", "../data")
	cfg.Storage.FallbackDir = getEnv("SLV_FALLBACK_DIR", ".")
	cfg.Storage.FilePrefix = getEnv("SLV_FILE_PREFIX", "slv")
	cfg.Storage.FileFormat = getEnv("SLV_FILE_FORMAT", "csv")
	cfg.Storage.Table = getEnv("SLV_TABLE", "slv_readings")
	cfg.Storage.SQLitePath = getEnv("SLV_SQLITE_PATH", "slv.db")

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Database = "slv"
	cfg.Database.SSLMode = "disable"
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.RedisConfig.LoadFromEnv("REDIS")
	cfg.Redis.Stream = getEnv("REDIS_RUN_STREAM", "slv:runs")
	cfg.Redis.LockKey = getEnv("REDIS_LOCK_KEY", "")
	cfg.Redis.LockTTL = getEnvDuration("REDIS_LOCK_TTL", 2*time.Hour)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "slv-extractor"
	cfg.MQTT.MQTTConfig.LoadFromEnv("MQTT")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))
	cfg.MQTT.Topic = getEnv("MQTT_RUN_TOPIC", "slv/extractor/runs")

	cfg.InfluxDB.Enabled = getEnv("INFLUXDB_ENABLED", "false") == "true"
	cfg.InfluxDB.URL = "http://localhost:8086"
	cfg.InfluxDB.Timeout = 30 * time.Second
	cfg.InfluxDB.InfluxDBConfig.LoadFromEnv("INFLUXDB")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: failed to read config file: %v", ErrUsage, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: failed to parse config file %s: %v", ErrUsage, path, err)
	}
	return nil
}

// resolveRange 根据 -f/-t 计算时间范围和运行模式
// 都不指定：截止到当前整点的 24 小时，scheduled 模式
func (c *Config) resolveRange(cli cliArgs, now time.Time) error {
	// 按本地墙上时间取整点，Truncate 对非整小时偏移的时区不正确
	to := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	from := to.Add(-models.DefaultWindowSize)

	if cli.fromDate == "" && cli.toDate == "" {
		c.Mode = models.RunModeScheduled
		c.Range = models.TimeRange{From: from, To: to}
		return nil
	}

	c.Mode = models.RunModeAdHoc
	var err error
	if cli.toDate != "" {
		if to, err = time.ParseInLocation(DateLayout, cli.toDate, c.Location); err != nil {
			return fmt.Errorf("%w: invalid todate %q, must be in YYYY/MM/DD HH:MM:SS format", ErrUsage, cli.toDate)
		}
	}
	switch {
	case cli.fromDate != "":
		if from, err = time.ParseInLocation(DateLayout, cli.fromDate, c.Location); err != nil {
			return fmt.Errorf("%w: invalid fromdate %q, must be in YYYY/MM/DD HH:MM:SS format", ErrUsage, cli.fromDate)
		}
	default:
		from, _ = time.ParseInLocation(DateLayout, EpochStart, c.Location)
	}

	c.Range = models.TimeRange{From: from, To: to}
	if err := c.Range.Validate(); err != nil {
		return fmt.Errorf("%w: the from date must be before the to date", ErrUsage)
	}
	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.SLV.Username == "" || c.SLV.Password == "" {
		return fmt.Errorf("%w: SLV credentials are required (SLV_USERNAME / SLV_PASSWORD)", ErrUsage)
	}
	switch c.Storage.Backend {
	case "file":
		if c.Storage.Directory == "" {
			return fmt.Errorf("%w: storage directory is empty", ErrUsage)
		}
		switch c.Storage.FileFormat {
		case "csv", "xlsx":
		default:
			return fmt.Errorf("%w: unsupported file format %q", ErrUsage, c.Storage.FileFormat)
		}
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: unsupported storage backend %q", ErrUsage, c.Storage.Backend)
	}
	if c.SLV.RetryCount < 0 {
		return fmt.Errorf("%w: retry count must not be negative", ErrUsage)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
