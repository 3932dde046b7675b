package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge" mapstructure:"bridge"`
	Reader  ReaderConfig  `yaml:"reader" mapstructure:"reader"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Cookies CookiesConfig `yaml:"cookies" mapstructure:"cookies"`
	Breaker BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// BridgeConfig configures the local browser bridge daemon. The bridge is
// optional: an empty base URL disables tier 0 entirely.
type BridgeConfig struct {
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	ProbeTimeoutSecs int    `yaml:"probe_timeout_secs" mapstructure:"probe_timeout_secs"`
}

// ReaderConfig holds rendering service API settings.
type ReaderConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FetchConfig configures the direct (non-rendering) fetch tier.
type FetchConfig struct {
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// CookiesConfig configures the on-disk session cookie store.
type CookiesConfig struct {
	Dir             string            `yaml:"dir" mapstructure:"dir"`
	StaleAfterHours int               `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
	Scopes          map[string]string `yaml:"scopes" mapstructure:"scopes"`
}

// BreakerConfig configures the rendering service circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// SourcesConfig points at an optional per-source profile override file.
type SourcesConfig struct {
	File string `yaml:"file" mapstructure:"file"`
}

// ServerConfig configures the extraction daemon.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the configuration is usable for the given mode
// ("extract" for fetch/batch/cookies commands, "serve" for the daemon).
func (c *Config) Validate(mode string) error {
	var missing []string

	check := func() {
		if c.Reader.Key == "" {
			missing = append(missing, "reader.key is required")
		}
		if c.Breaker.FailureThreshold < 1 {
			missing = append(missing, "breaker.failure_threshold must be >= 1")
		}
		if c.Breaker.CooldownSecs < 1 {
			missing = append(missing, "breaker.cooldown_secs must be >= 1")
		}
		if c.Fetch.TimeoutSecs < 1 {
			missing = append(missing, "fetch.timeout_secs must be >= 1")
		}
	}

	switch mode {
	case "extract":
		check()
	case "serve":
		check()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("EXTRACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("bridge.base_url", "")
	v.SetDefault("bridge.probe_timeout_secs", 2)
	v.SetDefault("reader.base_url", "https://r.jina.ai")
	v.SetDefault("fetch.timeout_secs", 10)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; ResearchBot/1.0)")
	v.SetDefault("fetch.rate_per_sec", 4)
	v.SetDefault("cookies.dir", "cookies")
	v.SetDefault("cookies.stale_after_hours", 24)
	v.SetDefault("cookies.scopes", map[string]string{"x.com": ".x.com"})
	v.SetDefault("breaker.failure_threshold", 3)
	v.SetDefault("breaker.cooldown_secs", 300)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
