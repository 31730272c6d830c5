// Package config holds the bot configuration: Telegram transport settings,
// X login credentials, browser options, and storage paths. Config is loaded
// from a YAML file with environment-variable overrides for secrets.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all brokebot configuration.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	X        XConfig        `yaml:"x"`
	Browser  BrowserConfig  `yaml:"browser"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// TelegramConfig configures the bot transport.
type TelegramConfig struct {
	Token  string  `yaml:"token"`
	Admins []int64 `yaml:"admins"` // static allow-list for admin commands
}

// XConfig configures the X (Twitter) evidence source.
type XConfig struct {
	LoginUser  string `yaml:"login_user"`
	LoginPass  string `yaml:"login_pass"`
	Keyword    string `yaml:"keyword"`     // required reply keyword, e.g. "$Broke"
	CookieFile string `yaml:"cookie_file"` // persisted session cookie bundle
}

// BrowserConfig configures the scraping browser.
type BrowserConfig struct {
	Headless   bool   `yaml:"headless"`
	Bin        string `yaml:"bin"`         // chrome binary path, empty = auto-detect
	NavTimeout string `yaml:"nav_timeout"` // per-navigation bound, e.g. "30s"
	PageSettle string `yaml:"page_settle"` // extra wait after load for the timeline to render
}

// StorageConfig configures persistence.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		X: XConfig{
			Keyword:    "$Broke",
			CookieFile: "x_cookies.json",
		},
		Browser: BrowserConfig{
			Headless:   true,
			NavTimeout: "30s",
			PageSettle: "5s",
		},
		Storage: StorageConfig{
			DatabasePath: "brokebot.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the given path, applies defaults for
// missing fields, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// applyEnvOverrides lets secrets come from the environment instead of the
// config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("X_LOGIN_USER"); v != "" {
		c.X.LoginUser = v
	}
	if v := os.Getenv("X_LOGIN_PASS"); v != "" {
		c.X.LoginPass = v
	}
	if v := os.Getenv("ADMINS"); v != "" {
		if admins, err := parseAdminList(v); err == nil {
			c.Telegram.Admins = admins
		}
	}
}

// parseAdminList parses a comma-separated list of Telegram user ids.
func parseAdminList(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	admins := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", p, err)
		}
		admins = append(admins, id)
	}
	return admins, nil
}

// Validate checks that the configuration is usable for serving.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required (or set TELEGRAM_TOKEN)")
	}
	if c.X.Keyword == "" {
		return fmt.Errorf("x.keyword is required")
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required")
	}
	if _, err := c.NavTimeout(); err != nil {
		return fmt.Errorf("browser.nav_timeout: %w", err)
	}
	if _, err := c.PageSettle(); err != nil {
		return fmt.Errorf("browser.page_settle: %w", err)
	}
	return nil
}

// IsAdmin reports whether the given Telegram user id is on the admin
// allow-list.
func (c *Config) IsAdmin(telegramID int64) bool {
	for _, id := range c.Telegram.Admins {
		if id == telegramID {
			return true
		}
	}
	return false
}

// NavTimeout returns the parsed navigation timeout.
func (c *Config) NavTimeout() (time.Duration, error) {
	if c.Browser.NavTimeout == "" {
		return 30 * time.Second, nil
	}
	return time.ParseDuration(c.Browser.NavTimeout)
}

// PageSettle returns the parsed post-load settle delay.
func (c *Config) PageSettle() (time.Duration, error) {
	if c.Browser.PageSettle == "" {
		return 5 * time.Second, nil
	}
	return time.ParseDuration(c.Browser.PageSettle)
}

// ValidatePostURL checks that a task post URL is well-formed and absolute.
func ValidatePostURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("post url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid post url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("post url must be http(s), got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("post url has no host")
	}
	return nil
}
