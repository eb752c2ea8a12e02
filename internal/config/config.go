package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// global configuration structure
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// Telegram bot configuration
type BotConfig struct {
	Token   string        `mapstructure:"token"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// webhook server configuration
type WebhookConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	ListenPort string `mapstructure:"listen_port"`
	DebugPath  string `mapstructure:"debug_path"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
}

// logging configuration
type LoggerConfig struct {
	Directory string            `mapstructure:"directory"`
	Rotation  LogRotationConfig `mapstructure:"rotation"`
	Level     string            `mapstructure:"level"`
}

// log rotation settings
type LogRotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
}

// state store settings; driver is "file" or "database"
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	log.Printf("Using config file: %s", v.ConfigFileUsed())

	// Unmarshal configuration
	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		log.Fatal("Configuration not initialized, call Load() first")
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.webhook.listen_port", "8443")
	v.SetDefault("bot.webhook.debug_path", "/debug")
	v.SetDefault("bot.webhook.cert_file", "")
	v.SetDefault("bot.webhook.key_file", "")

	v.SetDefault("logger.directory", "logs")
	v.SetDefault("logger.rotation.max_size", 10)
	v.SetDefault("logger.rotation.max_backups", 30)
	v.SetDefault("logger.rotation.max_age", 90)
	v.SetDefault("logger.rotation.compress", true)
	v.SetDefault("logger.level", "INFO")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.charset", "utf8mb4")

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "data/state.json")
}
