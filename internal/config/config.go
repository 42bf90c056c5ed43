package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is built once at
// process start and passed to every component that needs it.
type Config struct {
	DataDir string        `yaml:"data_dir" mapstructure:"data_dir"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Source  SourceConfig  `yaml:"source" mapstructure:"source"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Export  ExportConfig  `yaml:"export" mapstructure:"export"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`

	loggerConfigured bool
}

// StoreConfig configures the reconciliation database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Host        string `yaml:"host" mapstructure:"host"`
	Port        int    `yaml:"port" mapstructure:"port"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
	Database    string `yaml:"database" mapstructure:"database"`
	Table       string `yaml:"table" mapstructure:"table"`
	CommitEvery int    `yaml:"commit_every" mapstructure:"commit_every"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`

	// DataDir anchors the default SQLite file; copied from Config.DataDir.
	DataDir string `yaml:"-" mapstructure:"-"`
}

// BrowserConfig configures the headless browser session.
type BrowserConfig struct {
	Engine            string `yaml:"engine" mapstructure:"engine"`
	ExecutablePath    string `yaml:"executable_path" mapstructure:"executable_path"`
	Headless          bool   `yaml:"headless" mapstructure:"headless"`
	UserAgent         string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	SettleMillis      int    `yaml:"settle_millis" mapstructure:"settle_millis"`
	ScrollPauseMillis int    `yaml:"scroll_pause_millis" mapstructure:"scroll_pause_millis"`
	ScrollMaxAttempts int    `yaml:"scroll_max_attempts" mapstructure:"scroll_max_attempts"`
	ClickAttempts     int    `yaml:"click_attempts" mapstructure:"click_attempts"`
}

// Timeout returns the navigation and element wait timeout.
func (b BrowserConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSecs) * time.Second
}

// Settle returns the delay applied after each navigation.
func (b BrowserConfig) Settle() time.Duration {
	return time.Duration(b.SettleMillis) * time.Millisecond
}

// ScrollPause returns the delay between lazy-load scrolls.
func (b BrowserConfig) ScrollPause() time.Duration {
	return time.Duration(b.ScrollPauseMillis) * time.Millisecond
}

// SourceConfig describes the upstream earnings site.
type SourceConfig struct {
	BaseURL            string `yaml:"base_url" mapstructure:"base_url"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
	SelectorsPath      string `yaml:"selectors_path" mapstructure:"selectors_path"`
}

// QuoteURL returns the base quote page for a ticker.
func (s SourceConfig) QuoteURL(ticker string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.ToUpper(strings.TrimSpace(ticker))
}

// CacheConfig configures the HTML document cache.
type CacheConfig struct {
	Dir              string `yaml:"dir" mapstructure:"dir"`
	MaxAgeHours      int    `yaml:"max_age_hours" mapstructure:"max_age_hours"`
	CleanupBeforeRun bool   `yaml:"cleanup_before_run" mapstructure:"cleanup_before_run"`
}

// MaxAge returns the purge threshold.
func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// ExportConfig configures file sinks.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// BatchConfig configures multi-ticker runs.
type BatchConfig struct {
	MaxConcurrentTickers int `yaml:"max_concurrent_tickers" mapstructure:"max_concurrent_tickers"`
	BreakerFailures      int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerCooldownSecs  int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// CacheDir resolves the cache directory, defaulting under DataDir.
func (c *Config) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	return filepath.Join(c.DataDir, "html_cache")
}

// ExportDir resolves the export directory, defaulting under DataDir.
func (c *Config) ExportDir() string {
	if c.Export.Dir != "" {
		return c.Export.Dir
	}
	return filepath.Join(c.DataDir, "export")
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("EARNINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", "data")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.password", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("store.host", "127.0.0.1")
	v.SetDefault("store.port", 5432)
	v.SetDefault("store.user", "postgres")
	v.SetDefault("store.database", "epsilon")
	v.SetDefault("store.table", "earnings")
	v.SetDefault("store.commit_every", 500)
	v.SetDefault("browser.engine", "chromium")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.executable_path", "")
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("browser.timeout_secs", 30)
	v.SetDefault("browser.settle_millis", 500)
	v.SetDefault("browser.scroll_pause_millis", 500)
	v.SetDefault("browser.scroll_max_attempts", 3)
	v.SetDefault("browser.click_attempts", 2)
	v.SetDefault("source.base_url", "https://www.earningshub.com/quote")
	v.SetDefault("source.rate_limit_per_minute", 60)
	v.SetDefault("source.selectors_path", "")
	v.SetDefault("cache.dir", "")
	v.SetDefault("export.dir", "")
	v.SetDefault("cache.max_age_hours", 3)
	v.SetDefault("cache.cleanup_before_run", true)
	v.SetDefault("batch.max_concurrent_tickers", 1)
	v.SetDefault("batch.breaker_failures", 5)
	v.SetDefault("batch.breaker_cooldown_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Store.DataDir = cfg.DataDir

	return &cfg, nil
}

// InitLogger installs the global zap logger. It runs once per Config; later
// calls are no-ops.
func InitLogger(cfg *Config) error {
	if cfg.loggerConfigured {
		return nil
	}

	var zapCfg zap.Config
	if cfg.Log.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	cfg.loggerConfigured = true

	return nil
}

// LoggerConfigured reports whether InitLogger has run for this Config.
func (c *Config) LoggerConfigured() bool {
	return c.loggerConfigured
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
		if c.Source.BaseURL == "" {
			errs = append(errs, "source.base_url is required")
		}
		if c.Browser.TimeoutSecs <= 0 {
			errs = append(errs, "browser.timeout_secs must be > 0")
		}
		if c.Batch.MaxConcurrentTickers < 1 || c.Batch.MaxConcurrentTickers > 16 {
			errs = append(errs, "batch.max_concurrent_tickers must be between 1 and 16")
		}
	case "store":
		if err := c.Store.Validate(); err != nil {
			return err
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if err := c.Store.Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Validate checks store settings before any connection is attempted.
func (s StoreConfig) Validate() error {
	var problems []string

	switch s.Driver {
	case "postgres":
		if s.DatabaseURL == "" {
			if s.Port <= 0 || s.Port > 65535 {
				problems = append(problems, fmt.Sprintf("invalid port: %d", s.Port))
			}
			if strings.TrimSpace(s.Host) == "" {
				problems = append(problems, "host is empty")
			}
			if strings.TrimSpace(s.User) == "" {
				problems = append(problems, "user is empty")
			}
			if strings.TrimSpace(s.Database) == "" {
				problems = append(problems, "database is empty")
			}
		}
	case "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unsupported driver: %q", s.Driver))
	}

	if !identRe.MatchString(s.Table) {
		problems = append(problems, fmt.Sprintf("invalid table name: %q", s.Table))
	}
	if s.CommitEvery <= 0 {
		problems = append(problems, "commit_every must be > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: store settings: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ConnString returns the DSN for the configured driver.
func (s StoreConfig) ConnString() string {
	if s.DatabaseURL != "" {
		return s.DatabaseURL
	}
	if s.Driver == "sqlite" {
		return filepath.Join(s.DataDir, "earnings.db")
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.User, s.Password),
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Path:   "/" + s.Database,
	}
	return u.String()
}

// LogFields describes the connection target without secrets.
func (s StoreConfig) LogFields() []zap.Field {
	fields := []zap.Field{zap.String("driver", s.Driver), zap.String("table", s.Table)}
	if s.DatabaseURL != "" {
		return append(fields, zap.String("database_url", redactURL(s.DatabaseURL)))
	}
	return append(fields,
		zap.String("host", s.Host),
		zap.Int("port", s.Port),
		zap.String("user", s.User),
		zap.String("database", s.Database),
	)
}

var dsnPasswordRe = regexp.MustCompile(`(?i)(password=)\S+`)

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return dsnPasswordRe.ReplaceAllString(raw, "${1}xxxxx")
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
