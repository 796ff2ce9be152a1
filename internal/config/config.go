package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Platform PlatformConfig `mapstructure:"platform"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Chat     ChatConfig     `mapstructure:"chat"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// PlatformConfig points at the remote academic-assistant backend.
type PlatformConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Language string        `mapstructure:"language"`
	Channel  string        `mapstructure:"channel"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sqlite3, mysql, redis or memory
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ChatConfig tunes the chat session store.
type ChatConfig struct {
	IntroMessage     string        `mapstructure:"intro_message"`
	PendingMessage   string        `mapstructure:"pending_message"`
	DefaultTitle     string        `mapstructure:"default_title"`
	TitleLimit       int           `mapstructure:"title_limit"`
	HighlightTTL     time.Duration `mapstructure:"highlight_ttl"`
	IdentityCacheTTL time.Duration `mapstructure:"identity_cache_ttl"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the provided path, with AQB_* environment
// variables filling in unset keys.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = "config.yaml"
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("AQB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover everything
		// except the platform base URL, validated below.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Platform.BaseURL == "" {
		return nil, fmt.Errorf("platform.base_url must be configured")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8090")
	v.SetDefault("platform.base_url", "")
	v.SetDefault("platform.timeout", 60*time.Second)
	v.SetDefault("platform.language", "ru")
	v.SetDefault("platform.channel", "web")
	v.SetDefault("storage.driver", "sqlite3")
	v.SetDefault("storage.dsn", "./data/client.db")
	v.SetDefault("chat.intro_message", "Привет! Я академический ассистент. Чем могу помочь?")
	v.SetDefault("chat.pending_message", "Думаю над ответом…")
	v.SetDefault("chat.default_title", "Новый диалог")
	v.SetDefault("chat.title_limit", 48)
	v.SetDefault("chat.highlight_ttl", 700*time.Millisecond)
	v.SetDefault("chat.identity_cache_ttl", 5*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
