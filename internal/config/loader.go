// Package config loads the service configuration from the environment, an
// optional config file and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/example/availability-scheduler/internal/application"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "SCHEDULER"

// Storage backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config captures configuration values for the scheduler service.
type Config struct {
	HTTPPort        int
	Store           string
	SQLiteDSN       string
	PostgresDSN     string
	SuggestionLimit int
	TriggerPolicy   application.TriggerPolicy
	ConflictRetries int
	MemberCacheTTL  time.Duration
	LogLevel        string
	LogFormat       string
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type loadOptions struct {
	envFile    string
	configFile string
}

// Option customises Load.
type Option func(*loadOptions)

// WithEnvFile reads additional defaults from a dotenv file. A missing file is ignored.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) { o.envFile = path }
}

// WithConfigFile reads a YAML, TOML or JSON file. It takes precedence over
// SCHEDULER_CONFIG_FILE.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) { o.configFile = path }
}

var defaults = map[string]any{
	"http_port":        8080,
	"store":            StoreSQLite,
	"sqlite_dsn":       "data/scheduler.db",
	"postgres_dsn":     "",
	"suggestion_limit": 10,
	"trigger_policy":   string(application.TriggerImmediate),
	"conflict_retries": 3,
	"member_cache_ttl": "30s",
	"log_level":        "info",
	"log_format":       "json",
	"allowed_origins":  "*",
	"request_timeout":  "15s",
	"shutdown_timeout": "10s",
	"config_file":      "",
}

// Load resolves configuration with the precedence environment, config file,
// .env file, built-in defaults. Missing and invalid keys are reported together.
func Load(opts ...Option) (Config, error) {
	o := loadOptions{envFile: ".env"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if o.envFile != "" {
		values, err := godotenv.Read(o.envFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", o.envFile, err)
		default:
			for name, value := range values {
				if key, ok := strings.CutPrefix(name, EnvPrefix+"_"); ok {
					v.SetDefault(strings.ToLower(key), value)
				}
			}
		}
	}

	configFile := o.configFile
	if configFile == "" {
		configFile = strings.TrimSpace(v.GetString("config_file"))
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	p := parser{v: v}
	cfg := Config{
		HTTPPort:        p.getInt("http_port", 1),
		Store:           strings.ToLower(p.getString("store")),
		SQLiteDSN:       p.getString("sqlite_dsn"),
		PostgresDSN:     p.getString("postgres_dsn"),
		SuggestionLimit: p.getInt("suggestion_limit", 1),
		ConflictRetries: p.getInt("conflict_retries", 0),
		MemberCacheTTL:  p.getDuration("member_cache_ttl", 0),
		LogLevel:        strings.ToLower(p.getString("log_level")),
		LogFormat:       strings.ToLower(p.getString("log_format")),
		AllowedOrigins:  p.getList("allowed_origins"),
		RequestTimeout:  p.getDuration("request_timeout", 0),
		ShutdownTimeout: p.getDuration("shutdown_timeout", time.Second),
	}

	if cfg.HTTPPort > 65535 {
		p.invalidKey("http_port")
	}

	policy, err := application.ParseTriggerPolicy(p.getString("trigger_policy"))
	if err != nil {
		p.invalidKey("trigger_policy")
	}
	cfg.TriggerPolicy = policy

	switch cfg.Store {
	case StoreSQLite:
		if cfg.SQLiteDSN == "" {
			p.missingKey("sqlite_dsn")
		}
	case StorePostgres:
		if cfg.PostgresDSN == "" {
			p.missingKey("postgres_dsn")
		}
	case StoreMemory:
	default:
		p.invalidKey("store")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		p.invalidKey("log_level")
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		p.invalidKey("log_format")
	}

	if err := p.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parser reads typed values and records the keys it could not accept.
type parser struct {
	v       *viper.Viper
	missing []string
	invalid []string
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

func (p *parser) missingKey(key string) { p.missing = append(p.missing, envName(key)) }

func (p *parser) invalidKey(key string) { p.invalid = append(p.invalid, envName(key)) }

func (p *parser) getString(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) getInt(key string, floor int) int {
	raw := p.getString(key)
	n, err := strconv.Atoi(raw)
	if err != nil || n < floor {
		p.invalidKey(key)
		return 0
	}
	return n
}

func (p *parser) getDuration(key string, floor time.Duration) time.Duration {
	raw := p.getString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d < floor {
		p.invalidKey(key)
		return 0
	}
	return d
}

func (p *parser) getList(key string) []string {
	var out []string
	for _, item := range strings.Split(p.getString(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (p *parser) err() error {
	var errs []error
	if len(p.missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required configuration: %s", strings.Join(p.missing, ", ")))
	}
	if len(p.invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid configuration values: %s", strings.Join(p.invalid, ", ")))
	}
	return errors.Join(errs...)
}
