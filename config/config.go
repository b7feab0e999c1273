package config

import (
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	ProbeHTTP  = "http"
	ProbeTCP   = "tcp"
	ProbeMySQL = "mysql"
)

// ErrNoValidBackends is returned when filtering leaves no usable backend.
var ErrNoValidBackends = errors.New("no valid backend addresses")

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
	Timeout  string `mapstructure:"timeout"`
	Type     string `mapstructure:"type"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
}

type RelayConfig struct {
	DialTimeout    string `mapstructure:"dial_timeout"`
	ReadTimeout    string `mapstructure:"read_timeout"`
	MaxConnections int64  `mapstructure:"max_connections"`
}

type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Relay       RelayConfig       `mapstructure:"relay"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Backends    []string          `mapstructure:"backends"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// Load reads configuration from defaults, an optional YAML file, TCPLB_*
// environment variables and the given command-line arguments, in increasing
// order of precedence. Positional arguments replace the backend list.
func Load(args []string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", "127.0.0.1:8080")
	v.SetDefault("health_check.interval", "10s")
	v.SetDefault("health_check.timeout", "5s")
	v.SetDefault("health_check.type", ProbeHTTP)
	v.SetDefault("health_check.path", "/")
	v.SetDefault("health_check.dsn", "")
	v.SetDefault("relay.dial_timeout", "5s")
	v.SetDefault("relay.read_timeout", "0s")
	v.SetDefault("relay.max_connections", 0)
	v.SetDefault("metrics.address", "")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("backends", []string{"127.0.0.1:8081", "127.0.0.1:8082"})

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		v.Set("backends", fs.Args())
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TCPLB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Info("config file not found, using defaults, flags and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("tcplb", pflag.ContinueOnError)

	fs.String("config", "", "path to a YAML config file")
	fs.String("listen", "127.0.0.1:8080", "address to accept client connections on")
	fs.String("env", EnvDev, "environment: dev, staging or prod")
	fs.String("log-level", LogLevelInfo, "log level: debug, info, warn or error")
	fs.StringSlice("backends", nil, "backend ip:port addresses, in rotation order")
	fs.String("health-interval", "10s", "delay between health probes of a backend")
	fs.String("health-type", ProbeHTTP, "health probe: http, tcp or mysql")
	fs.String("metrics-addr", "", "address of the admin HTTP server (disabled when empty)")

	return fs
}

var flagKeys = map[string]string{
	"listen":          "server.address",
	"env":             "server.environment",
	"log-level":       "logging.level",
	"backends":        "backends",
	"health-interval": "health_check.interval",
	"health-type":     "health_check.type",
	"metrics-addr":    "metrics.address",
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		// Unchanged flags must not shadow config file values.
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(ValidateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Timeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&hc.Type,
						validation.Required,
						validation.In(ProbeHTTP, ProbeTCP, ProbeMySQL),
					),
					validation.Field(&hc.Path,
						validation.When(hc.Type == ProbeHTTP, validation.Required),
					),
					validation.Field(&hc.DSN,
						validation.When(hc.Type == ProbeMySQL, validation.Required),
					),
				)
			}),
		),
		validation.Field(&c.Relay,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RelayConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RelayConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.DialTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&rc.ReadTimeout,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&rc.MaxConnections,
						validation.Min(int64(0)),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.Address,
						validation.When(mc.Address != "", validation.By(ValidateHostPort)),
					),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.Required,
			validation.Length(1, 0),
		),
	)
}

// ValidateAddress reports whether addr is a socket address: an IP literal
// and a port, such as 127.0.0.1:9001 or [::1]:9001. Host names are rejected.
func ValidateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_socket_addr", "must be in ip:port format")
	}

	if err := validation.Validate(host, validation.Required, is.IP); err != nil {
		return validation.NewError("validation_invalid_ip", "host must be an IP address")
	}

	if err := validation.Validate(port, validation.Required, is.Port); err != nil {
		return validation.NewError("validation_invalid_port", "port must be between 1 and 65535")
	}

	return nil
}

// BackendAddresses drops entries that are not valid socket addresses,
// keeping the order of the rest.
func BackendAddresses(addrs []string, logger *slog.Logger) ([]string, error) {
	valid := make([]string, 0, len(addrs))

	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if err := ValidateAddress(addr); err != nil {
			logger.Warn("Ignoring invalid backend address",
				slog.String("address", addr),
				slog.String("error", err.Error()))
			continue
		}
		valid = append(valid, addr)
	}

	if len(valid) == 0 {
		return nil, ErrNoValidBackends
	}

	return valid, nil
}

// Duration parses a duration already checked by Validate.
func Duration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

// ValidateHostPort checks a listen address in host:port form. The host may be
// empty or a host name; use ValidateAddress for backend addresses.
func ValidateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}
