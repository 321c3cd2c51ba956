package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalidConfig 配置校验失败
var ErrInvalidConfig = errors.New("invalid config")

// AppConfig 应用配置
type AppConfig struct {
	Server   ServerConfig      `toml:"server"`
	Database DatabaseConfig    `toml:"database"`
	Loader   LoaderConfig      `toml:"loader"`
	Template TemplateConfig    `toml:"template"`
	Symbols  map[string]string `toml:"symbols"`
	Input    InputConfig       `toml:"input"`
	Google   GoogleConfig      `toml:"google"`
	Redis    RedisConfig       `toml:"redis"`
	Log      LogConfig         `toml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port    int  `toml:"port"`
	DevMode bool `toml:"dev_mode"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string   `toml:"driver"` // pgx / sqlite3
	DSN             string   `toml:"dsn"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
}

// LoaderConfig 写库批次配置
type LoaderConfig struct {
	BatchSize      int      `toml:"batch_size"`
	BatchTimeout   Duration `toml:"batch_timeout"`
	MaxRetries     int      `toml:"max_retries"`
	InitialBackoff Duration `toml:"initial_backoff"`
	PingTimeout    Duration `toml:"ping_timeout"`
}

// InputConfig 输入文件配置
type InputConfig struct {
	Encoding string `toml:"encoding"` // utf-8 / shift_jis
	Sheet    string `toml:"sheet"`    // xlsx 的 Sheet 名，空则取第一个
}

// GoogleConfig Google Sheets 读取配置
type GoogleConfig struct {
	CredentialsFile string `toml:"credentials_file"`
}

// RedisConfig 导入互斥锁配置
type RedisConfig struct {
	Addr    string   `toml:"addr"`
	LockKey string   `toml:"lock_key"`
	LockTTL Duration `toml:"lock_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // text / json
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	Path          string
	FileFound     bool
	PortSpecified bool
}

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:    20262,
			DevMode: false,
		},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			DSN:             filepath.Join("data", "tmc-schedule.db"),
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: Duration(30 * time.Minute),
		},
		Loader: LoaderConfig{
			BatchSize:      500,
			BatchTimeout:   Duration(30 * time.Second),
			MaxRetries:     3,
			InitialBackoff: Duration(500 * time.Millisecond),
			PingTimeout:    Duration(5 * time.Second),
		},
		Template: Preset(DefaultTemplate),
		Input: InputConfig{
			Encoding: "utf-8",
		},
		Redis: RedisConfig{
			LockKey: "tmc-schedule:import",
			LockTTL: Duration(10 * time.Minute),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverAny, ok := raw["server"]
	if !ok {
		return false
	}

	serverMap, ok := serverAny.(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// templateNameInToml 读取 [template].name，用于先套用预设再叠加覆盖项
func templateNameInToml(data []byte) string {
	var raw struct {
		Template struct {
			Name string `toml:"name"`
		} `toml:"template"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return ""
	}
	return raw.Template.Name
}

// GetExeDir 获取可执行文件所在目录
func GetExeDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// DefaultConfigPath config.toml 默认位置（可执行文件同目录）
func DefaultConfigPath() string {
	exeDir, err := GetExeDir()
	if err != nil {
		exeDir = "."
	}
	return filepath.Join(exeDir, "config.toml")
}

// LoadConfigWithInfo 从 config.toml 加载配置并返回元信息
// path 为空时使用可执行文件同目录下的 config.toml
func LoadConfigWithInfo(path string) (*AppConfig, LoadConfigInfo, error) {
	if path == "" {
		path = DefaultConfigPath()
	}
	info := LoadConfigInfo{Path: path}
	config := DefaultConfig()

	// .env 不存在时忽略
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		info.FileFound = true
		info.PortSpecified = isPortSpecifiedInToml(data)
		if name := templateNameInToml(data); name != "" {
			preset, ok := LookupPreset(name)
			if !ok {
				return nil, info, fmt.Errorf("%w: unknown template preset %q", ErrInvalidConfig, name)
			}
			config.Template = preset
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, info, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// 配置文件不存在，使用默认配置
	default:
		return nil, info, err
	}

	if err := applyEnv(config); err != nil {
		return nil, info, err
	}
	if err := config.Validate(); err != nil {
		return nil, info, err
	}
	return config, info, nil
}

// LoadConfig 从 config.toml 加载配置
func LoadConfig(path string) (*AppConfig, error) {
	config, _, err := LoadConfigWithInfo(path)
	return config, err
}

// applyEnv 环境变量覆盖（用于部署 / 本地运行）
func applyEnv(config *AppConfig) error {
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		config.Database.DSN = v
		config.Database.Driver = "pgx"
	}
	if v := strings.TrimSpace(os.Getenv("DB_DRIVER")); v != "" {
		config.Database.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		config.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); v != "" {
		config.Google.CredentialsFile = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		config.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("TMC_BATCH_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: TMC_BATCH_SIZE: %v", ErrInvalidConfig, err)
		}
		config.Loader.BatchSize = n
	}
	return nil
}

// Validate 校验配置
func (c *AppConfig) Validate() error {
	switch c.Database.Driver {
	case "pgx", "sqlite3":
	default:
		return fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("%w: database dsn is empty", ErrInvalidConfig)
	}
	if c.Loader.BatchSize <= 0 || c.Loader.BatchSize > MaxBatchSize {
		return fmt.Errorf("%w: loader.batch_size must be in 1..%d, got %d", ErrInvalidConfig, MaxBatchSize, c.Loader.BatchSize)
	}
	if c.Loader.MaxRetries < 0 {
		return fmt.Errorf("%w: loader.max_retries must be >= 0", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Input.Encoding) {
	case "", "utf-8", "utf8", "shift_jis", "sjis", "cp932":
	default:
		return fmt.Errorf("%w: unsupported input encoding %q", ErrInvalidConfig, c.Input.Encoding)
	}
	return c.Template.Validate()
}

// MaxBatchSize 单批最大行数（4 列 × 5000 行仍低于 SQLite / Postgres 的参数上限）
const MaxBatchSize = 5000

// SaveConfig 保存配置到 config.toml
func SaveConfig(config *AppConfig, path string) error {
	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// EnsureDataDir 确保 SQLite 数据文件所在目录存在
func EnsureDataDir(config *AppConfig) (string, error) {
	if config.Database.Driver != "sqlite3" {
		return "", nil
	}
	dir := filepath.Dir(config.Database.DSN)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// Duration 支持 "30s" 形式的 TOML 时长
type Duration time.Duration

// Std 转为 time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalText 实现 encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}
