// Package appconfig loads settings for the nopassword-server binary from
// flags, environment variables and an optional config file.
package appconfig

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	nopw "github.com/MrEthical07/goNoPassword"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validDrivers   = []string{"memory", "redis", "sqlite", "postgres", "mongo"}
	validSinks     = []string{"log", "mail"}
)

// Settings is everything the server needs at startup.
type Settings struct {
	Engine  nopw.Config
	Store   StoreSettings
	SMTP    SMTPSettings
	HTTP    HTTPSettings
	Log     LogSettings
	Janitor JanitorSettings
	Sinks   []string

	// Principals seeds the in-memory principal directory. Only a config
	// file can set it: a [[principals]] table with id, username, email and
	// active keys.
	Principals []nopw.Principal
}

type StoreSettings struct {
	// Driver is one of memory, redis, sqlite, postgres or mongo.
	Driver string
	// DSN is the gorm DSN for sqlite and postgres.
	DSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string
}

type SMTPSettings struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	SenderName string
	SiteName   string
	Subject    string
}

type HTTPSettings struct {
	Addr         string
	AllowOrigins []string
	MetricsPath  string
}

type LogSettings struct {
	Level       string
	Development bool
}

type JanitorSettings struct {
	Enabled  bool
	Schedule string
}

// envKeys maps viper keys to environment variables.
var envKeys = map[string]string{
	"code.length":         "CODE_LENGTH",
	"code.hash_algorithm": "HASH_ALGORITHM",
	"code.numeric":        "NUMERIC_CODES",
	"code.ttl":            "CODE_TTL",
	"code.secret":         "SECRET",
	"code.max_attempts":   "CODE_MAX_ATTEMPTS",
	"code.prune_grace":    "CODE_PRUNE_GRACE",
	"link.server_url":     "SERVER_URL",
	"link.secure":         "SECURE_URLS",
	"link.login_path":     "LOGIN_PATH",
	"link.hide_username":  "HIDE_USERNAME",
	"delivery.timeout":    "DELIVERY_TIMEOUT",
	"delivery.async":      "DELIVERY_ASYNC",
	"delivery.sinks":      "DELIVERY_SINKS",
	"store.driver":        "STORE_DRIVER",
	"store.dsn":           "STORE_DSN",
	"store.key_prefix":    "STORE_KEY_PREFIX",
	"redis.addr":          "REDIS_ADDR",
	"redis.password":      "REDIS_PASSWORD",
	"redis.db":            "REDIS_DB",
	"mongo.uri":           "MONGO_URI",
	"mongo.database":      "MONGO_DATABASE",
	"mongo.collection":    "MONGO_COLLECTION",
	"smtp.host":           "SMTP_HOST",
	"smtp.port":           "SMTP_PORT",
	"smtp.username":       "SMTP_USERNAME",
	"smtp.password":       "SMTP_PASSWORD",
	"smtp.from":           "SMTP_FROM",
	"smtp.sender_name":    "SMTP_SENDER_NAME",
	"smtp.site_name":      "SITE_NAME",
	"smtp.subject":        "SMTP_SUBJECT",
	"http.addr":           "HTTP_ADDR",
	"http.allow_origins":  "HTTP_ALLOW_ORIGINS",
	"http.metrics_path":   "METRICS_PATH",
	"log.level":           "LOG_LEVEL",
	"log.development":     "LOG_DEVELOPMENT",
	"janitor.enabled":     "JANITOR_ENABLED",
	"janitor.schedule":    "JANITOR_SCHEDULE",
	"audit.enabled":       "AUDIT_ENABLED",
	"audit.buffer_size":   "AUDIT_BUFFER_SIZE",
	"metrics.enabled":     "METRICS_ENABLED",
	"metrics.latency":     "METRICS_LATENCY",
}

func setDefaults(v *viper.Viper) {
	def := nopw.DefaultConfig()

	v.SetDefault("code.length", def.Code.Length)
	v.SetDefault("code.hash_algorithm", def.Code.HashAlgorithm)
	v.SetDefault("code.numeric", def.Code.Numeric)
	v.SetDefault("code.ttl", def.Code.TTL)
	v.SetDefault("code.max_attempts", def.Code.MaxGenerateAttempts)
	v.SetDefault("code.prune_grace", def.Code.PruneGrace)

	v.SetDefault("link.server_url", def.Link.ServerURL)
	v.SetDefault("link.secure", def.Link.Secure)
	v.SetDefault("link.login_path", def.Link.LoginPath)
	v.SetDefault("link.hide_username", def.Link.HideUsername)

	v.SetDefault("delivery.timeout", def.Delivery.Timeout)
	v.SetDefault("delivery.async", def.Delivery.Async)
	v.SetDefault("delivery.sinks", []string{"log"})

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.key_prefix", "nplc")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("mongo.database", "nopassword")
	v.SetDefault("mongo.collection", "login_codes")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.subject", "Your login code")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.metrics_path", "/metrics")

	v.SetDefault("log.level", "info")

	v.SetDefault("janitor.enabled", true)
	v.SetDefault("janitor.schedule", "@every 5m")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.buffer_size", def.Audit.BufferSize)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.latency", true)
}

// Flags registers the command-line flags understood by Load.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a config file (toml, yaml or json)")
	fs.String("http.addr", ":8080", "listen address")
	fs.String("store.driver", "memory", "code store: "+strings.Join(validDrivers, ", "))
	fs.String("store.dsn", "", "gorm DSN for sqlite or postgres")
	fs.String("log.level", "info", "log level: "+strings.Join(validLogLevels, ", "))
	fs.Bool("log.development", false, "human readable logs")
}

// Load parses args and merges flags, environment and the config file, in
// that order of precedence, over the defaults.
func Load(args []string) (*Settings, error) {
	fs := pflag.NewFlagSet("nopassword-server", pflag.ContinueOnError)
	Flags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return load(fs)
}

func load(fs *pflag.FlagSet) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	// Only flags set explicitly override env and file values.
	var bindErr error
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(f.Name, f)
	})
	if bindErr != nil {
		return nil, bindErr
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Settings, error) {
	cfg := nopw.DefaultConfig()
	cfg.Code.Length = v.GetInt("code.length")
	cfg.Code.HashAlgorithm = strings.ToLower(v.GetString("code.hash_algorithm"))
	cfg.Code.Numeric = v.GetBool("code.numeric")
	cfg.Code.TTL = v.GetDuration("code.ttl")
	cfg.Code.MaxGenerateAttempts = v.GetInt("code.max_attempts")
	cfg.Code.Secret = []byte(v.GetString("code.secret"))
	cfg.Code.PruneGrace = v.GetDuration("code.prune_grace")

	cfg.Link.ServerURL = v.GetString("link.server_url")
	cfg.Link.Secure = v.GetBool("link.secure")
	cfg.Link.LoginPath = v.GetString("link.login_path")
	cfg.Link.HideUsername = v.GetBool("link.hide_username")

	cfg.Delivery.Timeout = v.GetDuration("delivery.timeout")
	cfg.Delivery.Async = v.GetBool("delivery.async")

	cfg.Audit.Enabled = v.GetBool("audit.enabled")
	cfg.Audit.BufferSize = v.GetInt("audit.buffer_size")
	cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	cfg.Metrics.EnableLatencyHistograms = v.GetBool("metrics.latency")

	s := &Settings{
		Engine: cfg,
		Store: StoreSettings{
			Driver:          strings.ToLower(v.GetString("store.driver")),
			DSN:             v.GetString("store.dsn"),
			RedisAddr:       v.GetString("redis.addr"),
			RedisPassword:   v.GetString("redis.password"),
			RedisDB:         v.GetInt("redis.db"),
			KeyPrefix:       v.GetString("store.key_prefix"),
			MongoURI:        v.GetString("mongo.uri"),
			MongoDatabase:   v.GetString("mongo.database"),
			MongoCollection: v.GetString("mongo.collection"),
		},
		SMTP: SMTPSettings{
			Host:       v.GetString("smtp.host"),
			Port:       v.GetInt("smtp.port"),
			Username:   v.GetString("smtp.username"),
			Password:   v.GetString("smtp.password"),
			From:       v.GetString("smtp.from"),
			SenderName: v.GetString("smtp.sender_name"),
			SiteName:   v.GetString("smtp.site_name"),
			Subject:    v.GetString("smtp.subject"),
		},
		HTTP: HTTPSettings{
			Addr:         v.GetString("http.addr"),
			AllowOrigins: splitList(v.GetStringSlice("http.allow_origins")),
			MetricsPath:  v.GetString("http.metrics_path"),
		},
		Log: LogSettings{
			Level:       strings.ToLower(v.GetString("log.level")),
			Development: v.GetBool("log.development"),
		},
		Janitor: JanitorSettings{
			Enabled:  v.GetBool("janitor.enabled"),
			Schedule: v.GetString("janitor.schedule"),
		},
		Sinks: splitList(v.GetStringSlice("delivery.sinks")),
	}

	if err := v.UnmarshalKey("principals", &s.Principals); err != nil {
		return nil, fmt.Errorf("decode principals: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks server settings and the embedded engine config.
func (s *Settings) Validate() error {
	if err := s.Engine.Validate(); err != nil {
		return err
	}
	if !slices.Contains(validLogLevels, s.Log.Level) {
		return fmt.Errorf("invalid log level %q", s.Log.Level)
	}
	if !slices.Contains(validDrivers, s.Store.Driver) {
		return fmt.Errorf("invalid store driver %q", s.Store.Driver)
	}

	switch s.Store.Driver {
	case "sqlite", "postgres":
		if s.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", s.Store.Driver)
		}
	case "redis":
		if s.Store.RedisAddr == "" {
			return errors.New("redis.addr is required")
		}
	case "mongo":
		if s.Store.MongoURI == "" {
			return errors.New("mongo.uri is required")
		}
	}

	if len(s.Sinks) == 0 {
		return errors.New("at least one delivery sink is required")
	}
	for _, sink := range s.Sinks {
		if !slices.Contains(validSinks, sink) {
			return fmt.Errorf("invalid delivery sink %q", sink)
		}
		if sink == "mail" {
			if s.SMTP.Host == "" || s.SMTP.From == "" {
				return errors.New("smtp.host and smtp.from are required for the mail sink")
			}
			if s.SMTP.Port <= 0 {
				return errors.New("smtp.port must be > 0")
			}
		}
	}

	if s.Janitor.Enabled && s.Janitor.Schedule == "" {
		return errors.New("janitor.schedule is required when the janitor is enabled")
	}
	if s.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	return nil
}

// splitList accepts both list values and a single comma separated string, the
// form environment variables arrive in.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, strings.ToLower(part))
			}
		}
	}
	return out
}

// Timeouts used by the server around startup and shutdown.
const (
	StartupTimeout  = 10 * time.Second
	ShutdownTimeout = 15 * time.Second
)
