// Package config loads server settings from an optional checkbell.yaml and
// the environment. Environment variables override the file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

const productionEnv = "production"

type Config struct {
	Port              string
	Environment       string
	AllowSeed         bool
	StoreBackend      string
	DataDir           string
	RedisAddr         string
	RedisPrefix       string
	PostgresDSN       string
	Departments       []string
	Location          *time.Location
	SchedulerInterval time.Duration
	EmailAPIKey       string
	FromName          string
	FromAddress       string

	// notify holds department addresses keyed by lower-cased department,
	// since viper folds map keys.
	notify map[string]string
}

func defaults(v *viper.Viper) {
	v.SetDefault("port", "4000")
	v.SetDefault("environment", "development")
	v.SetDefault("allow_seed", false)
	v.SetDefault("store_backend", BackendFile)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_prefix", "checkbell:")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("departments", "Leitstand,Technik,Qualität,Logistik")
	v.SetDefault("timezone", "Local")
	v.SetDefault("scheduler_interval", "1m")
	v.SetDefault("email_api_key", "")
	v.SetDefault("from_name", "CheckBell")
	v.SetDefault("from_address", "")
}

// Load reads checkbell.yaml from dir when present. A missing file is not an
// error; defaults and the environment apply.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = "."
	}

	v := viper.New()
	v.SetConfigName("checkbell")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AutomaticEnv()
	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading checkbell.yaml: %w", err)
		}
	}

	cfg := &Config{
		Port:              v.GetString("port"),
		Environment:       v.GetString("environment"),
		AllowSeed:         v.GetBool("allow_seed"),
		StoreBackend:      strings.ToLower(v.GetString("store_backend")),
		DataDir:           v.GetString("data_dir"),
		RedisAddr:         v.GetString("redis_addr"),
		RedisPrefix:       v.GetString("redis_prefix"),
		PostgresDSN:       v.GetString("postgres_dsn"),
		Departments:       splitList(v.Get("departments")),
		SchedulerInterval: v.GetDuration("scheduler_interval"),
		EmailAPIKey:       v.GetString("email_api_key"),
		FromName:          v.GetString("from_name"),
		FromAddress:       v.GetString("from_address"),
		notify:            make(map[string]string),
	}

	for dep, addr := range v.GetStringMapString("notify") {
		cfg.notify[strings.ToLower(dep)] = addr
	}

	loc, err := loadLocation(v.GetString("timezone"))
	if err != nil {
		return nil, err
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendFile, BackendRedis:
	default:
		return fmt.Errorf("store_backend must be %s or %s, got %q", BackendFile, BackendRedis, c.StoreBackend)
	}
	if len(c.Departments) == 0 {
		return fmt.Errorf("departments must not be empty")
	}
	if c.SchedulerInterval <= 0 {
		return fmt.Errorf("scheduler_interval must be positive, got %s", c.SchedulerInterval)
	}
	return nil
}

// SeedEnabled reports whether the HTTP seed route may be served.
func (c *Config) SeedEnabled() bool {
	return c.Environment != productionEnv || c.AllowSeed
}

// Recipients returns the notification address of each configured department
// that has one.
func (c *Config) Recipients() map[string]string {
	out := make(map[string]string)
	for _, dep := range c.Departments {
		if addr := c.notify[strings.ToLower(dep)]; addr != "" {
			out[dep] = addr
		}
	}
	return out
}

func loadLocation(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// splitList accepts a YAML sequence or a comma separated string.
func splitList(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case string:
		parts = strings.Split(v, ",")
	case []any:
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
	case []string:
		parts = v
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
