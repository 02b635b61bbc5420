package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tirasundara/ledger-service/internal/auth"
	"github.com/tirasundara/ledger-service/internal/rates"
)

// EnvPrefix prefixes every environment variable, e.g. LEDGER_STORE_DRIVER
const EnvPrefix = "LEDGER"

// Config holds every setting of the ledger
type Config struct {
	Store  StoreConfig  `mapstructure:"store"`
	Rates  RatesConfig  `mapstructure:"rates"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Ledger LedgerConfig `mapstructure:"ledger"`
	Log    LogConfig    `mapstructure:"log"`
}

type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Badger   BadgerConfig   `mapstructure:"badger"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type BadgerConfig struct {
	Path string `mapstructure:"path"`
}

type PostgresConfig struct {
	DSN     string `mapstructure:"dsn"`
	Migrate bool   `mapstructure:"migrate"`
}

type RatesConfig struct {
	Source string      `mapstructure:"source"`
	BCB    BCBConfig   `mapstructure:"bcb"`
	CSV    CSVConfig   `mapstructure:"csv"`
	Flat   FlatConfig  `mapstructure:"flat"`
	Cache  CacheConfig `mapstructure:"cache"`
}

type BCBConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CSVConfig struct {
	Path       string `mapstructure:"path"`
	DateFormat string `mapstructure:"date_format"`
}

type FlatConfig struct {
	Rate string `mapstructure:"rate"`
}

type CacheConfig struct {
	Size int `mapstructure:"size"`
}

type AuthConfig struct {
	Salt string `mapstructure:"salt"`
}

type LedgerConfig struct {
	MaxAttempts int    `mapstructure:"max_attempts"`
	Timezone    string `mapstructure:"timezone"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "badger")
	v.SetDefault("store.badger.path", "./data/ledger")
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.migrate", true)
	v.SetDefault("rates.source", "bcb")
	v.SetDefault("rates.bcb.url", rates.DefaultBCBURL)
	v.SetDefault("rates.bcb.timeout", 10*time.Second)
	v.SetDefault("rates.csv.path", "")
	v.SetDefault("rates.csv.date_format", "2006-01-02")
	v.SetDefault("rates.flat.rate", "0")
	v.SetDefault("rates.cache.size", 512)
	v.SetDefault("auth.salt", auth.DefaultSalt)
	v.SetDefault("ledger.max_attempts", 3)
	v.SetDefault("ledger.timezone", "UTC")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "logfmt")
}

// RegisterFlags adds the global flags every command accepts
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a config file (toml, yaml, json)")
	fs.String("store", "", "Storage driver: memory, badger or postgres")
	fs.String("rates", "", "Interest rate source: bcb, csv or flat")
	fs.String("log-level", "", "Log level: debug, info, warn or error")
}

// Load merges flags, LEDGER_* environment variables, an optional config
// file and defaults, in that order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, flag := range map[string]string{
			"store.driver": "store",
			"rates.source": "rates",
			"log.level":    "log-level",
		} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", flag, err)
				}
			}
		}

		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration data: %w", err)
	}

	return config, nil
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case "memory", "badger":
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			errs = append(errs, errors.New("store.postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.Rates.Source {
	case "bcb":
	case "csv":
		if c.Rates.CSV.Path == "" {
			errs = append(errs, errors.New("rates.csv.path is required for the csv source"))
		}
	case "flat":
		rate, err := decimal.NewFromString(c.Rates.Flat.Rate)
		if err != nil || rate.IsNegative() {
			errs = append(errs, fmt.Errorf("rates.flat.rate must be a non-negative decimal, got %q", c.Rates.Flat.Rate))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rates.source %q", c.Rates.Source))
	}

	if c.Rates.Cache.Size < 0 {
		errs = append(errs, errors.New("rates.cache.size cannot be negative"))
	}

	if c.Ledger.MaxAttempts < 1 {
		errs = append(errs, errors.New("ledger.max_attempts must be at least 1"))
	}

	if _, err := time.LoadLocation(c.Ledger.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("ledger.timezone: %w", err))
	}

	switch c.Log.Format {
	case "logfmt", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}

	if _, err := level.Parse(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// Location returns the time zone whose calendar days the ledger uses
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NewLogger builds a leveled go-kit logger writing to w
func (c *Config) NewLogger(w io.Writer) log.Logger {
	var logger log.Logger
	if c.Log.Format == "json" {
		logger = log.NewJSONLogger(log.NewSyncWriter(w))
	} else {
		logger = log.NewLogfmtLogger(log.NewSyncWriter(w))
	}

	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	lvl, err := level.Parse(c.Log.Level)
	if err != nil {
		lvl = level.InfoValue()
	}
	return level.NewFilter(logger, level.Allow(lvl))
}
