package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Auth     AuthConfig     `koanf:"auth"`
	Adapters AdaptersConfig `koanf:"adapters"`
	Ingress  IngressConfig  `koanf:"ingress"`
	Digest   DigestConfig   `koanf:"digest"`
	Daemon   DaemonConfig   `koanf:"daemon"`
}

type ServerConfig struct {
	Port            int    `koanf:"port"`
	LogLevel        string `koanf:"log_level"`
	ReadTimeout     string `koanf:"read_timeout"`
	WriteTimeout    string `koanf:"write_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
}

type StoreConfig struct {
	DataPath     string `koanf:"data_path"`
	LockTimeout  string `koanf:"lock_timeout"`
	LockRetry    string `koanf:"lock_retry"`
	LockMaxRetry int    `koanf:"lock_max_retry"`
}

type AuthConfig struct {
	Identity    string `koanf:"identity"`
	Secret      string `koanf:"secret"`
	Contact     string `koanf:"contact"`
	SessionPath string `koanf:"session_path"`
	Timeout     string `koanf:"timeout"`
}

type AdaptersConfig struct {
	Telegram TelegramConfig `koanf:"telegram"`
}

type TelegramConfig struct {
	Enabled       bool   `koanf:"enabled"`
	BotToken      string `koanf:"bot_token"`
	UpdateTimeout int    `koanf:"update_timeout"`
	ReviewChatID  int64  `koanf:"review_chat_id"`
	DigestChatID  int64  `koanf:"digest_chat_id"`
}

type IngressConfig struct {
	Token string `koanf:"token"`
}

type DigestConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Schedule string `koanf:"schedule"`
	MaxItems int    `koanf:"max_items"`
}

type DaemonConfig struct {
	ShutdownTimeout        string `koanf:"shutdown_timeout"`
	HealthCheckInterval    string `koanf:"health_check_interval"`
	StartupShutdownTimeout string `koanf:"startup_shutdown_timeout"`
	PreflightTimeout       string `koanf:"preflight_timeout"`
	StaleLockTTL           string `koanf:"stale_lock_ttl"`
}

const (
	DefaultServerPort                   = 8080
	DefaultServerLogLevel               = "info"
	DefaultServerReadTimeout            = "10s"
	DefaultServerWriteTimeout           = "10s"
	DefaultServerIdleTimeout            = "60s"
	DefaultServerShutdownTimeout        = "5s"
	DefaultStoreLockTimeout             = "30s"
	DefaultStoreLockRetry               = "100ms"
	DefaultStoreLockMaxRetry            = 300
	DefaultAuthTimeout                  = "30s"
	DefaultTelegramUpdateTimeout        = 60
	DefaultDigestEnabled                = true
	DefaultDigestSchedule               = "0 9 * * *"
	DefaultDigestMaxItems               = 50
	DefaultDaemonShutdownTimeout        = "30s"
	DefaultDaemonHealthCheckInterval    = "30s"
	DefaultDaemonStartupShutdownTimeout = "10s"
	DefaultDaemonPreflightTimeout       = "10s"
	DefaultDaemonStaleLockTTL           = "15m"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.port":                      DefaultServerPort,
		"server.log_level":                 DefaultServerLogLevel,
		"server.read_timeout":              DefaultServerReadTimeout,
		"server.write_timeout":             DefaultServerWriteTimeout,
		"server.idle_timeout":              DefaultServerIdleTimeout,
		"server.shutdown_timeout":          DefaultServerShutdownTimeout,
		"store.data_path":                  filepath.Join(os.Getenv("HOME"), ".kurier", "data"),
		"store.lock_timeout":               DefaultStoreLockTimeout,
		"store.lock_retry":                 DefaultStoreLockRetry,
		"store.lock_max_retry":             DefaultStoreLockMaxRetry,
		"auth.session_path":                filepath.Join(os.Getenv("HOME"), ".kurier", "data", "sessions", "session.json"),
		"auth.timeout":                     DefaultAuthTimeout,
		"adapters.telegram.update_timeout": DefaultTelegramUpdateTimeout,
		"digest.enabled":                   DefaultDigestEnabled,
		"digest.schedule":                  DefaultDigestSchedule,
		"digest.max_items":                 DefaultDigestMaxItems,
		"daemon.shutdown_timeout":          DefaultDaemonShutdownTimeout,
		"daemon.health_check_interval":     DefaultDaemonHealthCheckInterval,
		"daemon.startup_shutdown_timeout":  DefaultDaemonStartupShutdownTimeout,
		"daemon.preflight_timeout":         DefaultDaemonPreflightTimeout,
		"daemon.stale_lock_ttl":            DefaultDaemonStaleLockTTL,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".kurier", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("KURIER_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "KURIER_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	// Post-Process: Inject standard Env Vars if missing
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" && cfg.Adapters.Telegram.BotToken == "" {
		cfg.Adapters.Telegram.BotToken = token
	}

	return &cfg, nil
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	dataPath, err := expandConfiguredPath(cfg.Store.DataPath)
	if err != nil {
		return err
	}
	if dataPath != "" {
		cfg.Store.DataPath = dataPath
	}

	sessionPath, err := expandConfiguredPath(cfg.Auth.SessionPath)
	if err != nil {
		return err
	}
	if sessionPath != "" {
		cfg.Auth.SessionPath = sessionPath
	}

	return nil
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return trimmed, nil
}
