package config

import (
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
)

const envPrefix = "FUSION"

type Config struct {
	Server    Server    `mapstructure:"server"`
	Service   Service   `mapstructure:"service"`
	Log       Log       `mapstructure:"log"`
	CORS      CORS      `mapstructure:"cors"`
	Telemetry Telemetry `mapstructure:"telemetry"`
	Remote    Remote    `mapstructure:"remote"`
}

type Server struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type Service struct {
	Name    string `mapstructure:"name"`
	Message string `mapstructure:"message"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORS struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type Telemetry struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// Remote points at an etcd, consul or firestore key holding a YAML
// document layered over the local file.
type Remote struct {
	Provider string `mapstructure:"provider"`
	Endpoint string `mapstructure:"endpoint"`
	Path     string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	v.SetDefault("service.name", "fusion-backend")
	v.SetDefault("service.message", "Fusion backend running")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)

	v.SetDefault("remote.provider", "")
	v.SetDefault("remote.endpoint", "")
	v.SetDefault("remote.path", "")
}

// Loader reads configuration from defaults, an optional config.yaml, an
// optional remote provider and FUSION_* environment variables, in that order
// of increasing precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader searches paths for config.yaml. With no paths it looks in the
// working directory and /etc/fusion.
func NewLoader(paths ...string) *Loader {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "/etc/fusion"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	if provider := l.v.GetString("remote.provider"); provider != "" {
		endpoint := l.v.GetString("remote.endpoint")
		path := l.v.GetString("remote.path")
		if err := l.v.AddRemoteProvider(provider, endpoint, path); err != nil {
			return nil, errors.Wrapf(err, "adding remote config provider %s", provider)
		}
		if err := l.v.ReadRemoteConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading remote config from %s%s", endpoint, path)
		}
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFile is the file the loader read, empty when running on defaults.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the re-read configuration each time the loaded
// file changes. Invalid edits are passed to onError and otherwise ignored.
// It is a no-op when no file was loaded.
func (l *Loader) Watch(onChange func(fsnotify.Event, *Config), onError func(error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(errors.Wrapf(err, "reloading %s", e.Name))
			}
			return
		}
		onChange(e, cfg)
	})
	l.v.WatchConfig()
}

func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return errors.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}
