// Package config loads the mediaflow settings: server, logging, storage,
// polling and the provider configuration used by generation nodes.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/feitianbubu/mediaflow"
)

const envPrefix = "MEDIAFLOW"

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           string   `mapstructure:"port"`
	APIKey         string   `mapstructure:"apiKey"`
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
	Pprof          bool     `mapstructure:"pprof"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// RedisConfig selects the canvas backing store. An empty URL keeps canvases in memory.
type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

type BackendConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type TasksConfig struct {
	PollInterval time.Duration `mapstructure:"pollInterval"`
	MaxAttempts  int           `mapstructure:"maxAttempts"`
	CleanupSpec  string        `mapstructure:"cleanupSpec"`
}

// ProviderEntry is one configured provider, referenced by id from nodeProviders
type ProviderEntry struct {
	ID                       string `mapstructure:"id"`
	mediaflow.ProviderConfig `mapstructure:",squash"`
}

// Config is the whole settings file
type Config struct {
	Server        ServerConfig      `mapstructure:"server"`
	Log           LogConfig         `mapstructure:"log"`
	Redis         RedisConfig       `mapstructure:"redis"`
	Backend       BackendConfig     `mapstructure:"backend"`
	Tasks         TasksConfig       `mapstructure:"tasks"`
	Providers     []ProviderEntry   `mapstructure:"providers"`
	NodeProviders map[string]string `mapstructure:"nodeProviders"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "9000")
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("redis.ttl", 7*24*time.Hour)
	v.SetDefault("backend.timeout", 120*time.Second)
	v.SetDefault("tasks.pollInterval", mediaflow.DefaultPollInterval)
	v.SetDefault("tasks.maxAttempts", mediaflow.DefaultMaxAttempts)
	v.SetDefault("tasks.cleanupSpec", "@every 10m")
}

// Load reads the YAML file at path. With an empty path, config.yaml in the
// working directory is used when present and defaults otherwise.
// Every key can be overridden by MEDIAFLOW_<SECTION>_<KEY>.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the provider section
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.ID == "" {
			return &mediaflow.ValidationError{Field: "providers", Message: "provider #" + strconv.Itoa(i) + " has no id"}
		}
		if seen[p.ID] {
			return &mediaflow.ValidationError{Field: "providers", Message: "duplicate provider id " + p.ID}
		}
		seen[p.ID] = true

		switch p.Protocol {
		case mediaflow.ProtocolGoogle, mediaflow.ProtocolOpenAI, mediaflow.ProtocolOpenAIResponses, mediaflow.ProtocolClaude:
		default:
			return &mediaflow.ConfigError{Kind: mediaflow.ConfigUnsupportedProtocol, Provider: p.ID, Protocol: p.Protocol}
		}
	}
	return nil
}

// ProviderIDFor returns the provider id mapped to a node type.
// Keys are matched case-insensitively since viper lowercases map keys.
func (c *Config) ProviderIDFor(nodeType mediaflow.NodeType) string {
	if id, ok := c.NodeProviders[string(nodeType)]; ok {
		return id
	}
	for k, id := range c.NodeProviders {
		if strings.EqualFold(k, string(nodeType)) {
			return id
		}
	}
	return ""
}

// ProviderConfig returns the configuration of a provider id
func (c *Config) ProviderConfig(id string) (mediaflow.ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == id {
			return p.ProviderConfig, true
		}
	}
	return mediaflow.ProviderConfig{}, false
}

// NewLogger builds the process logger
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", c.Level)
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build(zap.AddCaller())
}
