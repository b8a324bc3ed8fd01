// Package config загружает настройки клиента и dev сервера из файла
// (toml, json или yaml) и переменных окружения MEETSYNC_*.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/iudanet/meetsync/internal/client/websocket"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "MEETSYNC_"

// Config полная конфигурация
type Config struct {
	Client  ClientConfig  `toml:"client" json:"client" yaml:"client"`
	Server  ServerConfig  `toml:"server" json:"server" yaml:"server"`
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`
}

// ClientConfig настройки клиента
type ClientConfig struct {
	// ServerURL адрес сервера, например http://localhost:8000
	ServerURL string `toml:"server_url" json:"server_url" yaml:"server_url"`
	// DBPath путь к локальной bbolt базе
	DBPath string `toml:"db_path" json:"db_path" yaml:"db_path"`
	// QuotaBytes максимальный размер локальной базы, 0 без ограничения
	QuotaBytes int64 `toml:"quota_bytes" json:"quota_bytes" yaml:"quota_bytes"`

	ReconnectMinDelayMs int `toml:"reconnect_min_delay_ms" json:"reconnect_min_delay_ms" yaml:"reconnect_min_delay_ms"`
	ReconnectMaxDelayMs int `toml:"reconnect_max_delay_ms" json:"reconnect_max_delay_ms" yaml:"reconnect_max_delay_ms"`
	// OfflineThreshold число неудачных переподключений до уведомления
	OfflineThreshold int `toml:"offline_threshold" json:"offline_threshold" yaml:"offline_threshold"`
	// AutoupdateDelayMs окно накопления автообновлений, 0 применяет сразу
	AutoupdateDelayMs int `toml:"autoupdate_delay_ms" json:"autoupdate_delay_ms" yaml:"autoupdate_delay_ms"`

	DisplayOnly bool `toml:"display_only" json:"display_only" yaml:"display_only"`
	Compression bool `toml:"compression" json:"compression" yaml:"compression"`
}

// ServerConfig настройки dev сервера
type ServerConfig struct {
	Addr   string `toml:"addr" json:"addr" yaml:"addr"`
	DBPath string `toml:"db_path" json:"db_path" yaml:"db_path"`
	// JWTSecret ключ подписи токенов, лучше задавать через MEETSYNC_JWT_SECRET
	JWTSecret   string `toml:"jwt_secret" json:"jwt_secret" yaml:"jwt_secret"`
	TokenTTLSec int    `toml:"token_ttl_sec" json:"token_ttl_sec" yaml:"token_ttl_sec"`
	// RateLimit запросов к auth в минуту с одного адреса
	RateLimit int `toml:"rate_limit" json:"rate_limit" yaml:"rate_limit"`
	// AdminPassword пароль учетной записи admin, создаваемой при первом запуске
	AdminPassword string `toml:"admin_password" json:"admin_password" yaml:"admin_password"`
	GuestEnabled  bool   `toml:"guest_enabled" json:"guest_enabled" yaml:"guest_enabled"`
}

// LoggingConfig настройки логирования
type LoggingConfig struct {
	// Level: debug, info, warn, error
	Level string `toml:"level" json:"level" yaml:"level"`
	// Format: text или json
	Format string `toml:"format" json:"format" yaml:"format"`
}

// DefaultConfig возвращает настройки по умолчанию
func DefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			ServerURL:           "http://localhost:8000",
			DBPath:              "meetsync-client.db",
			ReconnectMinDelayMs: 2000,
			ReconnectMaxDelayMs: 5000,
			OfflineThreshold:    3,
			AutoupdateDelayMs:   0,
			Compression:         true,
		},
		Server: ServerConfig{
			Addr:        ":8000",
			DBPath:      "meetsync-server.db",
			TokenTTLSec: 3600,
			RateLimit:   30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load читает конфигурацию из path. Формат определяется по расширению.
// Отсутствующий файл не ошибка: используются значения по умолчанию.
// Переменные окружения применяются поверх файла.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}
	return cfg, nil
}

// ApplyEnvOverrides применяет переменные окружения MEETSYNC_*
func (c *Config) ApplyEnvOverrides() {
	// Client
	if v := os.Getenv(EnvPrefix + "SERVER_URL"); v != "" {
		c.Client.ServerURL = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		c.Client.DBPath = v
	}
	if v, ok := envBool("DISPLAY_ONLY"); ok {
		c.Client.DisplayOnly = v
	}

	// Server
	if v := os.Getenv(EnvPrefix + "SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "SERVER_DB_PATH"); v != "" {
		c.Server.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv(EnvPrefix + "ADMIN_PASSWORD"); v != "" {
		c.Server.AdminPassword = v
	}
	if v, ok := envBool("GUEST_ENABLED"); ok {
		c.Server.GuestEnabled = v
	}

	// Logging
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

func envBool(name string) (bool, bool) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// WebsocketSettings собирает настройки транспорта
func (c *ClientConfig) WebsocketSettings() *websocket.Settings {
	s := websocket.DefaultSettings()
	s.ReconnectMinDelay = time.Duration(c.ReconnectMinDelayMs) * time.Millisecond
	s.ReconnectMaxDelay = time.Duration(c.ReconnectMaxDelayMs) * time.Millisecond
	s.OfflineThreshold = c.OfflineThreshold
	s.DisplayOnly = c.DisplayOnly
	s.Compression = c.Compression
	return s
}

// AutoupdateDelay окно накопления автообновлений
func (c *ClientConfig) AutoupdateDelay() time.Duration {
	return time.Duration(c.AutoupdateDelayMs) * time.Millisecond
}

// TokenTTL время жизни токена доступа
func (c *ServerConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLSec) * time.Second
}
