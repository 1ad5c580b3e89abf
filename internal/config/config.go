package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Cron       CronConfig       `mapstructure:"cron"`
	NSE        ExchangeConfig   `mapstructure:"nse"`
	BSE        ExchangeConfig   `mapstructure:"bse"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Timetable  TimetableConfig  `mapstructure:"timetable"`
	Calendar   CalendarConfig   `mapstructure:"calendar"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Discovery  string `mapstructure:"discovery"`
	Enrichment string `mapstructure:"enrichment"`
}

// ExchangeConfig is shared by both exchange clients.
type ExchangeConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Referer       string        `mapstructure:"referer"`
	UserAgent     string        `mapstructure:"user_agent"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	BaseBackoff   time.Duration `mapstructure:"base_backoff"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`

	// BrowserWarmup lets the client fetch session cookies with a headless
	// browser after the plain HTTP warm-up is refused.
	BrowserWarmup  bool          `mapstructure:"browser_warmup"`
	BrowserTimeout time.Duration `mapstructure:"browser_timeout"`
}

type EnrichmentConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
	PacingDelay     time.Duration `mapstructure:"pacing_delay"`
}

type TimetableConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	WorkDir         string        `mapstructure:"work_dir"`
	MaxRedirects    int           `mapstructure:"max_redirects"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	MaxArchiveBytes int64         `mapstructure:"max_archive_bytes"`
	WindowSize      int           `mapstructure:"window_size"`
	FileMarker      string        `mapstructure:"file_marker"`
}

type CalendarConfig struct {
	Timezone string   `mapstructure:"timezone"`
	Holidays []string `mapstructure:"holidays"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("IPO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.discovery", "0 */30 * * * *")
	v.SetDefault("cron.enrichment", "0 5,35 * * * *")

	v.SetDefault("nse.base_url", "https://www.nseindia.com")
	v.SetDefault("nse.referer", "https://www.nseindia.com/market-data/all-upcoming-issues-ipo")
	v.SetDefault("nse.user_agent", defaultUserAgent)
	v.SetDefault("nse.timeout", "20s")
	v.SetDefault("nse.max_retries", 3)
	v.SetDefault("nse.base_backoff", "2s")
	v.SetDefault("nse.rate_per_second", 1.0)
	v.SetDefault("nse.burst", 1)
	v.SetDefault("nse.browser_warmup", false)
	v.SetDefault("nse.browser_timeout", "45s")

	v.SetDefault("bse.base_url", "https://api.bseindia.com")
	v.SetDefault("bse.referer", "https://www.bseindia.com/")
	v.SetDefault("bse.user_agent", defaultUserAgent)
	v.SetDefault("bse.timeout", "20s")
	v.SetDefault("bse.max_retries", 3)
	v.SetDefault("bse.base_backoff", "2s")
	v.SetDefault("bse.rate_per_second", 1.0)
	v.SetDefault("bse.burst", 1)
	v.SetDefault("bse.browser_warmup", false)
	v.SetDefault("bse.browser_timeout", "45s")

	v.SetDefault("enrichment.batch_size", 25)
	v.SetDefault("enrichment.freshness_window", "6h")
	v.SetDefault("enrichment.pacing_delay", "3s")

	v.SetDefault("timetable.enabled", true)
	v.SetDefault("timetable.work_dir", "")
	v.SetDefault("timetable.max_redirects", 3)
	v.SetDefault("timetable.download_timeout", "2m")
	v.SetDefault("timetable.max_archive_bytes", 200<<20)
	v.SetDefault("timetable.window_size", 2500)
	v.SetDefault("timetable.file_marker", "rhp")

	v.SetDefault("calendar.timezone", "Asia/Kolkata")
	v.SetDefault("calendar.holidays", []string{})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
