package cli

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/baseline"
)

const (
	defaultBindHost           = "127.0.0.1"
	defaultAPIPort            = 8080
	defaultQueryTimeout       = 30 * time.Second
	defaultMaxConcurrentReads = 8
	defaultWorkers            = 2
	defaultQueueSize          = 256
	defaultRetentionDays      = 30 // days, 0 = disabled
	defaultBackupInterval     = 6 * time.Hour
	defaultBackupKeepLast     = 24
)

// serviceConfig is internal runtime configuration. It is package-private
// to keep defaults and shape local to the CLI entrypoint.
type serviceConfig struct {
	APIPort            int           `mapstructure:"api-port"`
	APIAddr            string        `mapstructure:"api-addr"`
	DBPath             string        `mapstructure:"db-path"`
	BaselinePath       string        `mapstructure:"baseline-path"`
	BaselineWindow     int           `mapstructure:"baseline-window"`
	ProfilePath        string        `mapstructure:"analysis-profile"`
	Workers            int           `mapstructure:"workers"`
	QueueSize          int           `mapstructure:"queue-size"`
	QueryTimeout       time.Duration `mapstructure:"query-timeout"`
	MaxConcurrentReads int           `mapstructure:"max-concurrent-queries"`
	RetentionDays      int           `mapstructure:"retention-days"`

	BackupEnabled        bool          `mapstructure:"backup-enabled"`
	BackupDir            string        `mapstructure:"backup-dir"`
	BackupInterval       time.Duration `mapstructure:"backup-interval"`
	BackupKeepLast       int           `mapstructure:"backup-keep-last"`
	BackupBucketURL      string        `mapstructure:"backup-bucket-url"`
	BackupS3Endpoint     string        `mapstructure:"backup-s3-endpoint"`
	BackupS3Region       string        `mapstructure:"backup-s3-region"`
	BackupS3AccessKey    string        `mapstructure:"backup-s3-access-key"`
	BackupS3SecretKey    string        `mapstructure:"backup-s3-secret-key"`
	BackupS3SessionToken string        `mapstructure:"backup-s3-session-token"`
	BackupS3UseSSL       bool          `mapstructure:"backup-s3-use-ssl"`

	ConfigPath string `mapstructure:"-"` // not from config file
}

func loadConfig(configPath string) (serviceConfig, error) {
	var cfg serviceConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	dataDir := filepath.Join(home, ".local", "share", "remedyiq")

	v := viper.New()
	v.SetEnvPrefix("REMEDYIQ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("db-path", filepath.Join(dataDir, "remedyiq.duckdb"))
	v.SetDefault("baseline-path", filepath.Join(dataDir, "baseline.jsonl"))
	v.SetDefault("baseline-window", baseline.DefaultWindow)
	v.SetDefault("workers", defaultWorkers)
	v.SetDefault("queue-size", defaultQueueSize)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("max-concurrent-queries", defaultMaxConcurrentReads)
	v.SetDefault("retention-days", defaultRetentionDays)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-dir", filepath.Join(dataDir, "backups"))
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("backup-bucket-url", "")
	v.SetDefault("backup-s3-endpoint", "")
	v.SetDefault("backup-s3-region", "")
	v.SetDefault("backup-s3-access-key", "")
	v.SetDefault("backup-s3-secret-key", "")
	v.SetDefault("backup-s3-session-token", "")
	v.SetDefault("backup-s3-use-ssl", true)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "remedyiq", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.Workers <= 0 {
		return cfg, fmt.Errorf("invalid workers: %d", cfg.Workers)
	}
	if cfg.QueueSize <= 0 {
		return cfg, fmt.Errorf("invalid queue-size: %d", cfg.QueueSize)
	}
	if cfg.RetentionDays < 0 {
		return cfg, fmt.Errorf("invalid retention-days: %d", cfg.RetentionDays)
	}
	if cfg.BackupEnabled && cfg.DBPath == "" {
		return cfg, errors.New("backup-enabled requires an on-disk db-path")
	}

	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.BaselinePath = expandHome(home, cfg.BaselinePath)
	cfg.ProfilePath = expandHome(home, cfg.ProfilePath)
	cfg.BackupDir = expandHome(home, cfg.BackupDir)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
