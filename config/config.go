// Package config loads the voice client configuration from defaults, an
// optional YAML file, .env files and VALPER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/testing-zone/Valper-AI/audio"
	"github.com/testing-zone/Valper-AI/cache"
	"github.com/testing-zone/Valper-AI/remote"
	"github.com/testing-zone/Valper-AI/telemetry"
)

// EnvPrefix is the prefix of environment overrides, e.g. VALPER_SERVER_URL.
const EnvPrefix = "VALPER"

// DefaultFile is the config file name looked up when --config is not given.
const DefaultFile = "valper.yaml"

// Config is the complete client configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig locates the backend.
type ServerConfig struct {
	URL               string        `mapstructure:"url"`
	APIPrefix         string        `mapstructure:"api_prefix"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RateLimit         float64       `mapstructure:"rate_limit"`
	RateBurst         int           `mapstructure:"rate_burst"`
	VersionConstraint string        `mapstructure:"version_constraint"`
}

// AudioConfig selects the device backend.
type AudioConfig struct {
	Backend     string `mapstructure:"backend"`
	SampleRate  int    `mapstructure:"sample_rate"`
	Channels    int    `mapstructure:"channels"`
	FFmpegPath  string `mapstructure:"ffmpeg_path"`
	FFplayPath  string `mapstructure:"ffplay_path"`
	InputFormat string `mapstructure:"input_format"`
	InputDevice string `mapstructure:"input_device"`
}

// PipelineConfig tunes the interaction pipeline.
type PipelineConfig struct {
	Voice                   string        `mapstructure:"voice"`
	StageTimeout            time.Duration `mapstructure:"stage_timeout"`
	HealthInterval          time.Duration `mapstructure:"health_interval"`
	AssistantTextExpression string        `mapstructure:"assistant_text_expression"`
}

// CacheConfig configures the synthesis cache.
type CacheConfig struct {
	Backend    string        `mapstructure:"backend"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
	Prefix     string        `mapstructure:"prefix"`
	Redis      RedisConfig   `mapstructure:"redis"`
}

// RedisConfig locates the Redis server of the redis cache backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MetricsConfig enables the Prometheus endpoint and the live monitor.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Monitor bool   `mapstructure:"monitor"`
	// Summary prints the session's client metrics on exit.
	Summary bool `mapstructure:"summary"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SetDefaults registers every key with its default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.url", remote.DefaultBaseURL)
	v.SetDefault("server.api_prefix", remote.DefaultAPIPrefix)
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.rate_limit", 0.0)
	v.SetDefault("server.rate_burst", 1)
	v.SetDefault("server.version_constraint", remote.DefaultVersionConstraint)

	v.SetDefault("audio.backend", audio.BackendExec)
	v.SetDefault("audio.sample_rate", audio.DefaultCaptureFormat.SampleRate)
	v.SetDefault("audio.channels", audio.DefaultCaptureFormat.Channels)
	v.SetDefault("audio.ffmpeg_path", "ffmpeg")
	v.SetDefault("audio.ffplay_path", "ffplay")
	v.SetDefault("audio.input_format", "")
	v.SetDefault("audio.input_device", "")

	v.SetDefault("pipeline.voice", remote.DefaultVoice)
	v.SetDefault("pipeline.stage_timeout", 60*time.Second)
	v.SetDefault("pipeline.health_interval", 30*time.Second)
	v.SetDefault("pipeline.assistant_text_expression", remote.DefaultAssistantTextExpression)

	v.SetDefault("cache.backend", cache.BackendMemory)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.max_entries", 64)
	v.SetDefault("cache.prefix", "valper")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", "127.0.0.1:9464")
	v.SetDefault("metrics.monitor", true)
	v.SetDefault("metrics.summary", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "valper")
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The web frontend's variable name is accepted for the backend URL.
	_ = v.BindEnv("server.url", EnvPrefix+"_SERVER_URL", EnvPrefix+"_API_URL")
	return v
}

// LoadDotEnv loads the given .env files, skipping those that do not exist.
// Variables already set in the environment win. It returns the files read.
func LoadDotEnv(paths ...string) ([]string, error) {
	var loaded []string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// Load reads path (when non-empty) into v and decodes the result. A missing
// explicit file is an error; defaults and environment always apply.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string
	Message string
	Value   string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return "config validation error: " + e.Field + ": " + e.Message + " (got: " + e.Value + ")"
	}
	return "config validation error: " + e.Field + ": " + e.Message
}

// Validate checks every section and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, msg, value string) {
		errs = append(errs, &ValidationError{Field: field, Message: msg, Value: value})
	}

	if u, err := url.Parse(c.Server.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("server.url", "must be an absolute http(s) URL", c.Server.URL)
	}
	if c.Server.Timeout < 0 {
		add("server.timeout", "must not be negative", c.Server.Timeout.String())
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative", fmt.Sprint(c.Server.RateLimit))
	}

	switch strings.ToLower(c.Audio.Backend) {
	case audio.BackendExec, audio.BackendPortAudio:
	default:
		add("audio.backend", "must be one of: exec, portaudio", c.Audio.Backend)
	}
	if c.Audio.SampleRate <= 0 {
		add("audio.sample_rate", "must be positive", fmt.Sprint(c.Audio.SampleRate))
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		add("audio.channels", "must be 1 or 2", fmt.Sprint(c.Audio.Channels))
	}

	if c.Pipeline.StageTimeout < 0 {
		add("pipeline.stage_timeout", "must not be negative", c.Pipeline.StageTimeout.String())
	}
	if c.Pipeline.HealthInterval < 0 {
		add("pipeline.health_interval", "must not be negative", c.Pipeline.HealthInterval.String())
	}

	switch strings.ToLower(c.Cache.Backend) {
	case cache.BackendNone, cache.BackendMemory:
	case cache.BackendRedis:
		if c.Cache.Redis.Addr == "" {
			add("cache.redis.addr", "is required for the redis backend", "")
		}
	default:
		add("cache.backend", "must be one of: none, memory, redis", c.Cache.Backend)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		add("metrics.addr", "is required when metrics are enabled", "")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		add("telemetry.endpoint", "is required when telemetry is enabled", "")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		add("telemetry.sample_ratio", "must be between 0 and 1", fmt.Sprint(c.Telemetry.SampleRatio))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("log.level", "must be one of: debug, info, warn, error", c.Log.Level)
	}

	return errors.Join(errs...)
}

// TraceConfig returns the OTLP exporter settings for a client at version.
func (c *Config) TraceConfig(version string) telemetry.Config {
	return telemetry.Config{
		Endpoint:       c.Telemetry.Endpoint,
		ServiceName:    c.Telemetry.ServiceName,
		ServiceVersion: version,
		SampleRatio:    c.Telemetry.SampleRatio,
	}
}

// DeviceConfig returns the audio device settings.
func (c *Config) DeviceConfig() audio.DeviceConfig {
	return audio.DeviceConfig{
		Backend: c.Audio.Backend,
		Format: audio.Format{
			SampleRate: c.Audio.SampleRate,
			Channels:   c.Audio.Channels,
			BitDepth:   audio.DefaultCaptureFormat.BitDepth,
		},
		FFmpegPath:  c.Audio.FFmpegPath,
		FFplayPath:  c.Audio.FFplayPath,
		InputFormat: c.Audio.InputFormat,
		InputDevice: c.Audio.InputDevice,
	}
}

// CacheConfig returns the synthesis cache settings.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{
		Backend:       c.Cache.Backend,
		TTL:           c.Cache.TTL,
		MaxEntries:    c.Cache.MaxEntries,
		RedisAddr:     c.Cache.Redis.Addr,
		RedisPassword: c.Cache.Redis.Password,
		RedisDB:       c.Cache.Redis.DB,
		Prefix:        c.Cache.Prefix,
	}
}
