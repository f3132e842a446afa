package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB      DBConfig      `mapstructure:"db"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Storage StorageConfig `mapstructure:"storage"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	Sweep   SweepConfig   `mapstructure:"sweep"`
	Upload  UploadConfig  `mapstructure:"upload"`
	AppHost string        `mapstructure:"host"`
}

type DBConfig struct {
	Source string `mapstructure:"source"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// StorageConfig selects the blob backend once at startup.
// Backend must be "local" or "s3"; anything else is a configuration error.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// Configured reports whether the SMTP transport has credentials. Without
// them the notifier is disabled and expiry warnings are retried each sweep.
func (c SMTPConfig) Configured() bool {
	return c.Username != "" && c.Password != ""
}

type SweepConfig struct {
	NotifyLeadHours  int `mapstructure:"notify_lead_hours"`
	IntervalMinutes  int `mapstructure:"interval_minutes"`
	MinRetentionDays int `mapstructure:"min_retention_days"`
}

func (c SweepConfig) NotifyLeadTime() time.Duration {
	return time.Duration(c.NotifyLeadHours) * time.Hour
}

func (c SweepConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c SweepConfig) MinRetention() time.Duration {
	return time.Duration(c.MinRetentionDays) * 24 * time.Hour
}

type UploadConfig struct {
	MaxSizeBytes      int64    `mapstructure:"max_size_bytes"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

func Load() (*Config, error) {
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/configs")
	viper.SetConfigName("settings")
	viper.SetConfigType("yml")

	viper.SetDefault("storage.backend", "local")
	viper.SetDefault("storage.path", "./uploads")
	viper.SetDefault("storage.prefix", "sejf")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("sweep.notify_lead_hours", 24)
	viper.SetDefault("sweep.interval_minutes", 60)
	viper.SetDefault("sweep.min_retention_days", 1)
	viper.SetDefault("upload.max_size_bytes", 16*1024*1024)
	viper.SetDefault("upload.allowed_extensions", []string{
		"txt", "pdf", "png", "jpg", "jpeg", "gif", "doc", "docx", "xls", "xlsx", "zip",
	})

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Storage.Backend != "local" && cfg.Storage.Backend != "s3" {
		return nil, fmt.Errorf("unknown storage backend %q (expected \"local\" or \"s3\")", cfg.Storage.Backend)
	}

	return &cfg, nil
}
