package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"setfetch/internal/batch"
	"setfetch/internal/coordinator"
	"setfetch/internal/fetcher"
	"setfetch/internal/ratelimit"
	"setfetch/internal/snapshot"
	"setfetch/internal/source"
)

// EnvPrefix is prepended to every environment variable, e.g.
// SETFETCH_HTTP_MAX_RETRIES for http.max_retries
const EnvPrefix = "SETFETCH"

// HTTPConfig holds the retry settings for plain HTTP sources
type HTTPConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// RenderConfig holds the browser settings for rendered sources
type RenderConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Settle           time.Duration `mapstructure:"settle"`
	SessionRetries   int           `mapstructure:"session_retries"`
	SessionRetryWait time.Duration `mapstructure:"session_retry_wait"`
	MinContentLength int           `mapstructure:"min_content_length"`
	NotFoundMarkers  []string      `mapstructure:"not_found_markers"`
	ChromePath       string        `mapstructure:"chrome_path"`
	NoSandbox        bool          `mapstructure:"no_sandbox"`
	Headful          bool          `mapstructure:"headful"`
}

// DelayConfig holds the per-source throttle delays
type DelayConfig struct {
	Rendered  time.Duration            `mapstructure:"rendered"`
	API       time.Duration            `mapstructure:"api"`
	Overrides map[string]time.Duration `mapstructure:"overrides"`
}

// BatchConfig controls pacing across symbols
type BatchConfig struct {
	InterSymbolDelay time.Duration `mapstructure:"inter_symbol_delay"`
	Concurrency      int           `mapstructure:"concurrency"`
}

// SnapshotConfig selects where records are persisted
type SnapshotConfig struct {
	Store      string `mapstructure:"store"`
	Dir        string `mapstructure:"dir"`
	Format     string `mapstructure:"format"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LogConfig selects the log handler
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Snapshot store kinds
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreNone   = "none"
)

// Config holds all configuration for setfetch.
type Config struct {
	Symbols       []string `mapstructure:"symbols"`
	BaseURL       string   `mapstructure:"base_url"`
	UserAgent     string   `mapstructure:"user_agent"`
	HistoryMonths int      `mapstructure:"history_months"`
	Granularity   string   `mapstructure:"granularity"`

	HTTP     HTTPConfig     `mapstructure:"http"`
	Render   RenderConfig   `mapstructure:"render"`
	Delays   DelayConfig    `mapstructure:"delays"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Log      LogConfig      `mapstructure:"log"`
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"symbols":            "symbols",
	"base-url":           "base_url",
	"out":                "snapshot.dir",
	"format":             "snapshot.format",
	"store":              "snapshot.store",
	"sqlite-path":        "snapshot.sqlite_path",
	"inter-symbol-delay": "batch.inter_symbol_delay",
	"concurrency":        "batch.concurrency",
	"max-retries":        "http.max_retries",
	"timeout":            "http.timeout",
	"log-level":          "log.level",
	"log-format":         "log.format",
}

// Flags returns the command line flag set understood by Load
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("setfetch", pflag.ContinueOnError)
	fs.StringSlice("symbols", nil, "comma separated symbols to fetch (also accepted as arguments)")
	fs.String("base-url", "", "upstream base URL")
	fs.String("out", "", "snapshot directory")
	fs.String("format", "", "snapshot format: json or yaml")
	fs.String("store", "", "snapshot store: file, sqlite or none")
	fs.String("sqlite-path", "", "SQLite database path for --store=sqlite")
	fs.Duration("inter-symbol-delay", 0, "pause between symbols")
	fs.Int("concurrency", 0, "symbols processed at once")
	fs.Int("max-retries", 0, "total attempts per HTTP request")
	fs.Duration("timeout", 0, "per-attempt HTTP timeout")
	fs.Bool("no-render", false, "fetch rendered pages over plain HTTP instead of a browser")
	fs.String("config", "", "path to a config file")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("log-format", "", "log format: text or json")
	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("symbols", []string{})
	v.SetDefault("base_url", "https://www.set.or.th")
	v.SetDefault("user_agent", fetcher.DefaultUserAgent)
	v.SetDefault("history_months", coordinator.DefaultHistoryMonths)
	v.SetDefault("granularity", coordinator.DefaultGranularity)

	policy := fetcher.DefaultRetryPolicy()
	v.SetDefault("http.max_retries", policy.MaxRetries)
	v.SetDefault("http.timeout", policy.Timeout)
	v.SetDefault("http.backoff_base", policy.BackoffBase)

	render := fetcher.DefaultRenderedOptions()
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.timeout", render.Policy.Timeout)
	v.SetDefault("render.settle", render.Settle)
	v.SetDefault("render.session_retries", render.SessionRetries)
	v.SetDefault("render.session_retry_wait", render.SessionRetryWait)
	v.SetDefault("render.min_content_length", fetcher.DefaultMinContentLength)
	v.SetDefault("render.not_found_markers", []string{fetcher.DefaultNotFoundMarker})
	v.SetDefault("render.chrome_path", "")
	v.SetDefault("render.no_sandbox", false)
	v.SetDefault("render.headful", false)

	v.SetDefault("delays.rendered", ratelimit.DefaultRenderedDelay)
	v.SetDefault("delays.api", ratelimit.DefaultAPIDelay)
	v.SetDefault("delays.overrides", map[string]time.Duration{})

	v.SetDefault("batch.inter_symbol_delay", batch.DefaultInterSymbolDelay)
	v.SetDefault("batch.concurrency", 1)

	v.SetDefault("snapshot.store", StoreFile)
	v.SetDefault("snapshot.dir", "data")
	v.SetDefault("snapshot.format", string(snapshot.FormatJSON))
	v.SetDefault("snapshot.sqlite_path", "setfetch.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration from defaults, an optional config file,
// environment variables and flags, in increasing order of precedence.
// Positional arguments in flags are appended to the symbol list.
//
// The config file is config.yaml in the working directory or
// $HOME/.setfetch, unless --config names one explicitly.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := ""
	if flags != nil {
		configFile, _ = flags.GetString("config")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.setfetch")

		// Read config file (ignore if not found)
		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
		if noRender, _ := flags.GetBool("no-render"); noRender {
			v.Set("render.enabled", false)
		}
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if flags != nil {
		cfg.Symbols = append(cfg.Symbols, flags.Args()...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("base_url %q must be an absolute URL", c.BaseURL)
	}
	if c.HistoryMonths < 1 {
		add("history_months must be at least 1")
	}
	switch c.Granularity {
	case "day", "month", "year":
	default:
		add("granularity %q must be day, month or year", c.Granularity)
	}

	if c.HTTP.MaxRetries < 1 {
		add("http.max_retries must be at least 1")
	}
	if c.HTTP.Timeout <= 0 {
		add("http.timeout must be positive")
	}
	if c.HTTP.BackoffBase < 0 {
		add("http.backoff_base must not be negative")
	}

	if c.Render.Timeout <= 0 {
		add("render.timeout must be positive")
	}
	if c.Render.Settle < 0 || c.Render.SessionRetryWait < 0 {
		add("render waits must not be negative")
	}
	if c.Render.SessionRetries < 1 {
		add("render.session_retries must be at least 1")
	}

	if c.Delays.Rendered < 0 || c.Delays.API < 0 {
		add("delays must not be negative")
	}
	for name, d := range c.Delays.Overrides {
		if _, err := source.Parse(name); err != nil {
			add("delays.overrides: %v", err)
		}
		if d < 0 {
			add("delays.overrides.%s must not be negative", name)
		}
	}

	if c.Batch.InterSymbolDelay < 0 {
		add("batch.inter_symbol_delay must not be negative")
	}
	if c.Batch.Concurrency < 1 {
		add("batch.concurrency must be at least 1")
	}

	switch c.Snapshot.Store {
	case StoreFile, StoreSQLite, StoreNone:
	default:
		add("snapshot.store %q must be file, sqlite or none", c.Snapshot.Store)
	}
	if _, err := snapshot.ParseFormat(c.Snapshot.Format); err != nil {
		add("snapshot.format: %v", err)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("log.format %q must be text or json", c.Log.Format)
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RetryPolicy returns the HTTP retry policy
func (c *Config) RetryPolicy() fetcher.RetryPolicy {
	return fetcher.RetryPolicy{
		MaxRetries:  c.HTTP.MaxRetries,
		Timeout:     c.HTTP.Timeout,
		BackoffBase: c.HTTP.BackoffBase,
	}
}

// RenderedOptions returns the rendered transport options
func (c *Config) RenderedOptions() fetcher.RenderedOptions {
	policy := c.RetryPolicy()
	policy.Timeout = c.Render.Timeout
	return fetcher.RenderedOptions{
		Policy:           policy,
		Settle:           c.Render.Settle,
		SessionRetries:   c.Render.SessionRetries,
		SessionRetryWait: c.Render.SessionRetryWait,
		Complete:         fetcher.MinLengthAndNoMarker(c.Render.MinContentLength, c.Render.NotFoundMarkers...),
	}
}

// RateDelays returns the limiter delays. Unknown override names are skipped;
// Validate reports them.
func (c *Config) RateDelays() ratelimit.Delays {
	d := ratelimit.Delays{
		Rendered:  c.Delays.Rendered,
		API:       c.Delays.API,
		Overrides: map[source.Source]time.Duration{},
	}
	for name, delay := range c.Delays.Overrides {
		if src, err := source.Parse(name); err == nil {
			d.Overrides[src] = delay
		}
	}
	return d
}

// BatchOptions returns the batch runner options
func (c *Config) BatchOptions() batch.Options {
	return batch.Options{
		InterSymbolDelay: c.Batch.InterSymbolDelay,
		Concurrency:      c.Batch.Concurrency,
	}
}
