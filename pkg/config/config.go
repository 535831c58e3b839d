package config

import (
	"cmp"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X ...config.Version=..."
var Version = "dev"

const EnvPrefix = "GEOF"

// Environment variables of earlier deployments, still honoured as overrides.
const (
	EnvPGHost     = "RESTFUL_GEOF_PG_HOST"
	EnvPGPort     = "RESTFUL_GEOF_PG_PORT"
	EnvPGUsername = "RESTFUL_GEOF_PG_USERNAME"
	EnvPGPassword = "RESTFUL_GEOF_PG_PASSWORD"
)

// Config holds application-wide configuration
type Config struct {
	REST        RESTConfig        `mapstructure:"rest"`
	PG          PGConfig          `mapstructure:"pg"`
	SchemaCache SchemaCacheConfig `mapstructure:"schemaCache"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	LogLevel    string            `mapstructure:"logLevel"`

	// ConfigFile is the file the configuration was read from, if any.
	ConfigFile string `mapstructure:"-"`
}

type RESTConfig struct {
	ListenAddr string    `mapstructure:"listenAddr"`
	Prefix     string    `mapstructure:"prefix"`
	TLS        TLSConfig `mapstructure:"tls"`

	// Zero disables the corresponding http.Server timeout.
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout  time.Duration `mapstructure:"idleTimeout"`
}

type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"certFile"`
	KeyFile  string `mapstructure:"keyFile"`
}

// PGConfig describes the server to connect to. The database is not part of
// it; every request names its own.
type PGConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"maxConns"`
}

type SchemaCacheConfig struct {
	Size int `mapstructure:"size"`
	// ReloadDatabase is the database to LISTEN in for schema reload
	// notifications. Empty disables the listener.
	ReloadDatabase string `mapstructure:"reloadDatabase"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("rest.listenAddr", ":8080")
	v.SetDefault("rest.prefix", "/api")
	v.SetDefault("rest.tls.enabled", false)
	v.SetDefault("rest.tls.certFile", "")
	v.SetDefault("rest.tls.keyFile", "")
	v.SetDefault("rest.readTimeout", 30*time.Second)
	v.SetDefault("rest.writeTimeout", 60*time.Second)
	v.SetDefault("rest.idleTimeout", 120*time.Second)
	v.SetDefault("pg.host", "localhost")
	v.SetDefault("pg.port", 5432)
	v.SetDefault("pg.user", "")
	v.SetDefault("pg.password", "")
	v.SetDefault("pg.sslmode", "prefer")
	v.SetDefault("pg.maxConns", 4)
	v.SetDefault("schemaCache.size", 256)
	v.SetDefault("schemaCache.reloadDatabase", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads config from file, GEOF_* environment variables and whatever
// flags are bound to v. Without cfgFile, geof.yaml is looked up in
// $HOME/.config and the working directory; a missing file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("geof")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		cfg.ConfigFile = v.ConfigFileUsed()
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.applyLegacyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyLegacyEnv() error {
	c.PG.Host = cmp.Or(os.Getenv(EnvPGHost), c.PG.Host)
	c.PG.User = cmp.Or(os.Getenv(EnvPGUsername), c.PG.User)
	c.PG.Password = cmp.Or(os.Getenv(EnvPGPassword), c.PG.Password)
	if port := os.Getenv(EnvPGPort); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPGPort, port)
		}
		c.PG.Port = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error", "none":
	default:
		return fmt.Errorf("logLevel: unknown level %q", c.LogLevel)
	}
	if c.REST.Prefix != "" && !strings.HasPrefix(c.REST.Prefix, "/") {
		return fmt.Errorf("rest.prefix: %q must start with /", c.REST.Prefix)
	}
	if c.REST.ReadTimeout < 0 || c.REST.WriteTimeout < 0 || c.REST.IdleTimeout < 0 {
		return errors.New("rest: timeouts must not be negative")
	}
	if c.PG.Port <= 0 || c.PG.Port > 65535 {
		return fmt.Errorf("pg.port: %d out of range", c.PG.Port)
	}
	if c.PG.MaxConns <= 0 {
		return fmt.Errorf("pg.maxConns: must be positive, got %d", c.PG.MaxConns)
	}
	if c.SchemaCache.Size <= 0 {
		return fmt.Errorf("schemaCache.size: must be positive, got %d", c.SchemaCache.Size)
	}
	return nil
}

// ConnString returns a connection URL without a database.
func (c PGConfig) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/",
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// PoolConfig returns the base pool config shared by all per-database pools.
func (c PGConfig) PoolConfig() (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(c.ConnString())
	if err != nil {
		return nil, fmt.Errorf("pg: %w", err)
	}
	if c.MaxConns > 0 {
		poolCfg.MaxConns = c.MaxConns
	}
	return poolCfg, nil
}
