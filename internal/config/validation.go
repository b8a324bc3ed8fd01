package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate проверяет конфигурацию и возвращает все найденные ошибки разом
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Client.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("client.server_url must be an http(s) URL, got %q", c.Client.ServerURL))
	}
	if c.Client.DBPath == "" {
		errs = append(errs, errors.New("client.db_path cannot be empty"))
	}
	if c.Client.QuotaBytes < 0 {
		errs = append(errs, errors.New("client.quota_bytes cannot be negative"))
	}
	if c.Client.ReconnectMinDelayMs <= 0 {
		errs = append(errs, errors.New("client.reconnect_min_delay_ms must be positive"))
	}
	if c.Client.ReconnectMaxDelayMs < c.Client.ReconnectMinDelayMs {
		errs = append(errs, errors.New("client.reconnect_max_delay_ms must not be less than reconnect_min_delay_ms"))
	}
	if c.Client.OfflineThreshold < 1 {
		errs = append(errs, errors.New("client.offline_threshold must be at least 1"))
	}
	if c.Client.AutoupdateDelayMs < 0 {
		errs = append(errs, errors.New("client.autoupdate_delay_ms cannot be negative"))
	}

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr cannot be empty"))
	}
	if c.Server.TokenTTLSec <= 0 {
		errs = append(errs, errors.New("server.token_ttl_sec must be positive"))
	}
	if c.Server.RateLimit <= 0 {
		errs = append(errs, errors.New("server.rate_limit must be positive"))
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
