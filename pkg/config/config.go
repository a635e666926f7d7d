package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edgeflare/pgsynth/pkg/catalog"
	"github.com/edgeflare/pgsynth/pkg/graph"
	"github.com/edgeflare/pgsynth/pkg/model"
	"github.com/edgeflare/pgsynth/pkg/route"
	"github.com/edgeflare/pgsynth/pkg/synth"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set at build time.
var Version = "dev"

// Config holds application-wide configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Generator GeneratorConfig `mapstructure:"generator"`
	REST      RESTConfig      `mapstructure:"rest"`
	Reload    ReloadConfig    `mapstructure:"reload"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type DatabaseConfig struct {
	ConnString         string `mapstructure:"conn_string"`
	ExtractConcurrency int    `mapstructure:"extract_concurrency" validate:"min=1,max=32"`
	MaxConns           int32  `mapstructure:"max_conns" validate:"min=0"`
	ConnectRetries     uint64 `mapstructure:"connect_retries"`
}

// CatalogConfig points at an offline catalog snapshot instead of a live database.
type CatalogConfig struct {
	File   string         `mapstructure:"file"`
	Inline map[string]any `mapstructure:"inline"`
}

type GeneratorConfig struct {
	IncludedNamespaces []string      `mapstructure:"included_namespaces"`
	ExcludedNamespaces []string      `mapstructure:"excluded_namespaces"`
	NamingStrategy     string        `mapstructure:"naming_strategy" validate:"oneof=verbatim snake camel"`
	MaxNestedDepth     int           `mapstructure:"max_nested_depth" validate:"min=0,max=8"`
	DefaultPageSize    int           `mapstructure:"default_page_size" validate:"min=1"`
	MaxPageSize        int           `mapstructure:"max_page_size" validate:"gtefield=DefaultPageSize"`
	ExposeRoutines     bool          `mapstructure:"expose_routines"`
	StrictTypes        bool          `mapstructure:"strict_types"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"min=0"`
}

type RESTConfig struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`
	BasePath   string `mapstructure:"base_path" validate:"omitempty,startswith=/"`
	CORS        bool     `mapstructure:"cors"`
	CORSOrigins []string `mapstructure:"cors_origins" validate:"dive,required"`
}

type ReloadConfig struct {
	Notify    bool          `mapstructure:"notify"`
	Channel   string        `mapstructure:"channel" validate:"required_if=Notify true"`
	Interval  time.Duration `mapstructure:"interval" validate:"min=0"`
	WatchFile bool          `mapstructure:"watch_file"`
	NATS      NATSConfig    `mapstructure:"nats"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url" validate:"omitempty,url"`
	Subject string `mapstructure:"subject" validate:"required_with=URL"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.conn_string", "")
	v.SetDefault("database.extract_concurrency", 4)
	v.SetDefault("database.max_conns", 0)
	v.SetDefault("database.connect_retries", 3)
	v.SetDefault("catalog.file", "")
	v.SetDefault("generator.included_namespaces", []string{})
	v.SetDefault("generator.excluded_namespaces", []string{})
	v.SetDefault("generator.naming_strategy", "verbatim")
	v.SetDefault("generator.max_nested_depth", 1)
	v.SetDefault("generator.default_page_size", 100)
	v.SetDefault("generator.max_page_size", 1000)
	v.SetDefault("generator.expose_routines", true)
	v.SetDefault("generator.strict_types", false)
	v.SetDefault("generator.timeout", 30*time.Second)
	v.SetDefault("rest.listen_addr", ":8080")
	v.SetDefault("rest.base_path", "")
	v.SetDefault("rest.cors", true)
	v.SetDefault("rest.cors_origins", []string{"*"})
	v.SetDefault("reload.notify", false)
	v.SetDefault("reload.channel", "pgsynth")
	v.SetDefault("reload.interval", time.Duration(0))
	v.SetDefault("reload.watch_file", false)
	v.SetDefault("reload.nats.url", "")
	v.SetDefault("reload.nats.subject", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads config from file, environment (PGSYNTH_ prefix, dots become
// underscores) and flags, in increasing precedence, then validates it.
// Flags are matched by their full key, as in --generator.max_page_size.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pgsynth")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PGSYNTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks option ranges and that a catalog source is configured.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (%v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Database.ConnString == "" && c.Catalog.File == "" && len(c.Catalog.Inline) == 0 {
		return errors.New("invalid config: one of database.conn_string, catalog.file or catalog.inline is required")
	}
	if err := c.Generator.Scope().Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Reload.WatchFile && c.Catalog.File == "" {
		return errors.New("invalid config: reload.watch_file requires catalog.file")
	}
	if c.Reload.Notify && c.Database.ConnString == "" {
		return errors.New("invalid config: reload.notify requires database.conn_string")
	}
	return nil
}

// Scope returns the namespace selection.
func (g GeneratorConfig) Scope() catalog.Scope {
	return catalog.Scope{Include: g.IncludedNamespaces, Exclude: g.ExcludedNamespaces}
}

// Synth maps the generator and REST sections onto pass options.
func (c *Config) Synth() synth.Options {
	g := c.Generator
	return synth.Options{
		Scope: g.Scope(),
		Graph: graph.Options{StrictTypes: g.StrictTypes, MaxNestedDepth: g.MaxNestedDepth},
		Model: model.Options{
			NamingStrategy: model.NamingStrategy(g.NamingStrategy),
			MaxNestedDepth: g.MaxNestedDepth,
			ExposeRoutines: g.ExposeRoutines,
		},
		Route: route.Options{
			BasePath:        c.REST.BasePath,
			DefaultPageSize: g.DefaultPageSize,
			MaxPageSize:     g.MaxPageSize,
			ExposeRoutines:  g.ExposeRoutines,
		},
		Timeout: g.Timeout,
	}
}

// Logger builds the process logger.
func (l LogConfig) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
