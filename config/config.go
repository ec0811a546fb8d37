// Package config loads batchtr settings with viper.
//
// Sources, highest priority first:
//
//  1. command line flags bound with BindFlags
//  2. BATCHTR_* environment variables (BATCHTR_CHUNK_SIZE, BATCHTR_LOG_LEVEL, ...)
//  3. the config file: --config, or .batchtr.yaml in the working directory
//     or the home directory
//  4. built-in defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/minios-linux/batchtr/logging"
	"github.com/minios-linux/batchtr/translate"
)

// FileName is the config file name without extension.
const FileName = ".batchtr"

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "BATCHTR"

// Config holds the resolved settings.
type Config struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Proxy    string `mapstructure:"proxy"`
	// Language is the target language: a code (vi, pt_BR) or a name.
	Language string `mapstructure:"language"`

	ChunkSize     int           `mapstructure:"chunk_size"`
	Concurrency   int           `mapstructure:"concurrency"`
	MaxRetryDepth int           `mapstructure:"max_retry_depth"`
	MaxRetries    int           `mapstructure:"max_retries"`
	Timeout       time.Duration `mapstructure:"timeout"`

	// Glossary is the path of a YAML glossary file.
	Glossary string `mapstructure:"glossary"`
	// Memory is the path of the translation memory database.
	Memory string `mapstructure:"memory"`
	// NoMemory disables the translation memory.
	NoMemory bool `mapstructure:"no_memory"`
	// Prompt is the path of a system prompt override file.
	Prompt string `mapstructure:"prompt"`

	Log     LogConfig     `mapstructure:"log"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Events  EventsConfig  `mapstructure:"events"`
	Server  ServerConfig  `mapstructure:"server"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BreakerConfig struct {
	// Failures is the number of consecutive provider failures that open the
	// circuit. 0 disables the breaker.
	Failures int           `mapstructure:"failures"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type EventsConfig struct {
	// URL of the NATS server. Empty disables usage events.
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Subject string `mapstructure:"subject"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every key with its default value. Keys must be
// registered for AutomaticEnv to see them during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("provider", "google")
	v.SetDefault("model", "")
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("proxy", "")
	v.SetDefault("language", "")
	v.SetDefault("chunk_size", translate.DefaultChunkSize)
	v.SetDefault("concurrency", translate.DefaultConcurrency)
	v.SetDefault("max_retry_depth", translate.DefaultMaxRetryDepth)
	v.SetDefault("max_retries", 3)
	v.SetDefault("timeout", 120*time.Second)
	v.SetDefault("glossary", "")
	v.SetDefault("memory", "")
	v.SetDefault("no_memory", false)
	v.SetDefault("prompt", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatText)
	v.SetDefault("breaker.failures", 5)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("events.url", "")
	v.SetDefault("events.token", "")
	v.SetDefault("events.subject", "batchtr.usage")
	v.SetDefault("server.addr", ":8080")
}

// Init sets up defaults, environment binding and the config file on v and
// reads the file. cfgFile overrides the search path. A missing config file
// is not an error unless cfgFile names it. It returns the file used, if any.
func Init(v *viper.Viper, cfgFile string) (string, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("reading config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// BindFlags binds command line flags to config keys. Flag names use dashes
// ("chunk-size"); keys use underscores ("chunk_size"). Flags that do not
// exist in fs are skipped.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for flag, key := range keys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

// Load decodes v into a Config.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	return &c, nil
}

// Validate checks values that are required for every command. The target
// language is checked by commands that need one.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return errors.New("provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required for provider '%s' (--model or model: in %s.yaml)", c.Provider, FileName)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.MaxRetryDepth <= 0 {
		return fmt.Errorf("max_retry_depth must be positive, got %d", c.MaxRetryDepth)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Breaker.Failures < 0 {
		return fmt.Errorf("breaker.failures must not be negative, got %d", c.Breaker.Failures)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("log.format must be %q or %q, got %q", logging.FormatText, logging.FormatJSON, c.Log.Format)
	}
	return nil
}

// Options returns the pipeline options described by c. language is the
// resolved prompt language name.
func (c *Config) Options(language string) translate.Options {
	return translate.Options{
		Language:      language,
		Model:         c.Model,
		ChunkSize:     c.ChunkSize,
		Concurrency:   c.Concurrency,
		MaxRetryDepth: c.MaxRetryDepth,
	}
}
