package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr             string        `mapstructure:"addr"`
	DataDir          string        `mapstructure:"data-dir"`
	DBPath           string        `mapstructure:"db-path"`
	ReportDir        string        `mapstructure:"report-dir"`
	RetentionDays    int           `mapstructure:"retention-days"`
	SettleDelay      time.Duration `mapstructure:"settle-delay"`
	MockLatency      time.Duration `mapstructure:"mock-latency"`
	MockSeed         uint64        `mapstructure:"mock-seed"`
	TelegramBotToken string        `mapstructure:"telegram-bot-token"`
	TelegramChatID   string        `mapstructure:"telegram-chat-id"`
}

// Load reads GUARDIAN_* environment variables on top of an optional config
// file. A missing file is not an error.
func Load(configPath string) (Config, error) {
	var cfg Config

	v := viper.New()
	v.SetEnvPrefix("GUARDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("data-dir", "./data")
	v.SetDefault("db-path", "")
	v.SetDefault("report-dir", "")
	v.SetDefault("retention-days", 14)
	v.SetDefault("settle-delay", 500*time.Millisecond)
	v.SetDefault("mock-latency", 300*time.Millisecond)
	v.SetDefault("mock-seed", uint64(42))
	v.SetDefault("telegram-bot-token", "")
	v.SetDefault("telegram-chat-id", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "guardian.db")
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = filepath.Join(cfg.DataDir, "reports")
	}
	if cfg.RetentionDays <= 0 {
		return cfg, fmt.Errorf("invalid retention-days: %d", cfg.RetentionDays)
	}
	if cfg.SettleDelay < 0 {
		return cfg, fmt.Errorf("invalid settle-delay: %s", cfg.SettleDelay)
	}
	return cfg, nil
}
