// Package config loads cvsync settings from defaults, an optional config
// file, a .env file and CVSYNC_* environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// CVSYNC_SYNC_DEBOUNCE=5s.
const EnvPrefix = "CVSYNC"

// Config is the full cvsync configuration.
type Config struct {
	// Identity is a plain session identity for local use.
	Identity string `mapstructure:"identity"`
	// Token is a signed session token. It wins over Identity.
	Token string `mapstructure:"token"`

	Sync      SyncConfig      `mapstructure:"sync"`
	Render    RenderConfig    `mapstructure:"render"`
	Export    ExportConfig    `mapstructure:"export"`
	Local     LocalConfig     `mapstructure:"local"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Legacy    LegacyConfig    `mapstructure:"legacy"`
	Templates TemplatesConfig `mapstructure:"templates"`
	Log       LogConfig       `mapstructure:"log"`
	Preview   PreviewConfig   `mapstructure:"preview"`
	Watch     WatchConfig     `mapstructure:"watch"`
}

type SyncConfig struct {
	Debounce      time.Duration `mapstructure:"debounce"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type RenderConfig struct {
	// URL of the rendering service. Empty disables the live preview.
	URL      string        `mapstructure:"url"`
	Debounce time.Duration `mapstructure:"debounce"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	Capacity int           `mapstructure:"capacity"`
}

type ExportConfig struct {
	// ConverterURL of the document conversion service.
	ConverterURL string `mapstructure:"converter_url"`
	// Dir receives exported files.
	Dir string `mapstructure:"dir"`
	// FetchStyles inlines external stylesheets before conversion.
	FetchStyles bool `mapstructure:"fetch_styles"`
}

type LocalConfig struct {
	Path string `mapstructure:"path"`
}

// RemoteConfig selects the remote document store. An empty DSN keeps
// documents in memory for the lifetime of the process.
type RemoteConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type AuthConfig struct {
	Secret   string `mapstructure:"secret"`
	Issuer   string `mapstructure:"issuer"`
	Audience string `mapstructure:"audience"`
}

type LegacyConfig struct {
	Path   string `mapstructure:"path"`
	Backup bool   `mapstructure:"backup"`
}

type TemplatesConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type PreviewConfig struct {
	Port int `mapstructure:"port"`
}

type WatchConfig struct {
	// Path of a JSON or YAML document file mirrored into the session.
	Path     string        `mapstructure:"path"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// DataDir returns the directory holding cvsync state, ~/.cvsync.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".cvsync"
	}
	return filepath.Join(home, ".cvsync")
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	dir := DataDir()
	return &Config{
		Sync: SyncConfig{
			Debounce:      2 * time.Second,
			RetryInterval: 30 * time.Second,
		},
		Render: RenderConfig{
			Debounce: 1500 * time.Millisecond,
			Cooldown: 2 * time.Second,
			Capacity: 10,
		},
		Export: ExportConfig{
			Dir:         ".",
			FetchStyles: true,
		},
		Local:     LocalConfig{Path: filepath.Join(dir, "state.db")},
		Remote:    RemoteConfig{Driver: "sqlite3"},
		Legacy:    LegacyConfig{Path: filepath.Join(dir, "legacy.json"), Backup: true},
		Templates: TemplatesConfig{Path: filepath.Join(dir, "templates.toml")},
		Log:       LogConfig{Level: "info", File: filepath.Join(dir, "logs", "cvsync.log")},
		Preview:   PreviewConfig{Port: 8765},
		Watch:     WatchConfig{Debounce: 300 * time.Millisecond},
	}
}

// Options controls where Load looks.
type Options struct {
	// File is an explicit config file. Empty searches for cvsync.{yaml,toml}
	// in the working directory and DataDir.
	File string
	// EnvFile is loaded into the environment if present. Defaults to ".env".
	EnvFile string
	// SearchPaths overrides the config file search directories.
	SearchPaths []string
}

// Load resolves the configuration.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("cvsync")
		paths := opts.SearchPaths
		if paths == nil {
			paths = []string{".", DataDir()}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Sync.Debounce <= 0:
		return fmt.Errorf("sync.debounce must be positive")
	case c.Sync.RetryInterval <= 0:
		return fmt.Errorf("sync.retry_interval must be positive")
	case c.Render.Debounce < 0:
		return fmt.Errorf("render.debounce must not be negative")
	case c.Render.Cooldown < 0:
		return fmt.Errorf("render.cooldown must not be negative")
	case c.Render.Capacity < 1:
		return fmt.Errorf("render.capacity must be at least 1")
	case c.Preview.Port < 0 || c.Preview.Port > 65535:
		return fmt.Errorf("preview.port out of range: %d", c.Preview.Port)
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("identity", d.Identity)
	v.SetDefault("token", d.Token)
	v.SetDefault("sync.debounce", d.Sync.Debounce)
	v.SetDefault("sync.retry_interval", d.Sync.RetryInterval)
	v.SetDefault("render.url", d.Render.URL)
	v.SetDefault("render.debounce", d.Render.Debounce)
	v.SetDefault("render.cooldown", d.Render.Cooldown)
	v.SetDefault("render.capacity", d.Render.Capacity)
	v.SetDefault("export.converter_url", d.Export.ConverterURL)
	v.SetDefault("export.dir", d.Export.Dir)
	v.SetDefault("export.fetch_styles", d.Export.FetchStyles)
	v.SetDefault("local.path", d.Local.Path)
	v.SetDefault("remote.driver", d.Remote.Driver)
	v.SetDefault("remote.dsn", d.Remote.DSN)
	v.SetDefault("auth.secret", d.Auth.Secret)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.audience", d.Auth.Audience)
	v.SetDefault("legacy.path", d.Legacy.Path)
	v.SetDefault("legacy.backup", d.Legacy.Backup)
	v.SetDefault("templates.path", d.Templates.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("preview.port", d.Preview.Port)
	v.SetDefault("watch.path", d.Watch.Path)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
}
