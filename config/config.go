// Package config loads the host configuration from defaults, a YAML file and
// PHASORVIZ_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides. Nested keys use a double
// underscore: PHASORVIZ_STORAGE__MAX_LOAD_BYTES sets storage.max_load_bytes.
const EnvPrefix = "PHASORVIZ_"

// PlatformType selects how the content is rendered.
type PlatformType string

const (
	PlatformWebview  PlatformType = "webview"
	PlatformHeadless PlatformType = "headless"
	PlatformBrowser  PlatformType = "browser"
)

// ConfirmMode decides destructive-action confirmations on terminal platforms.
type ConfirmMode string

const (
	ConfirmAsk ConfirmMode = "ask"
	ConfirmYes ConfirmMode = "yes"
	ConfirmNo  ConfirmMode = "no"
)

// Config is the top-level phasorviz configuration, corresponding to config.yml.
type Config struct {
	Content  ContentConfig  `yaml:"content" koanf:"content"`
	Storage  StorageConfig  `yaml:"storage" koanf:"storage"`
	Notice   NoticeConfig   `yaml:"notice" koanf:"notice"`
	Platform PlatformType   `yaml:"platform" koanf:"platform"`
	Headless HeadlessConfig `yaml:"headless" koanf:"headless"`
	Server   ServerConfig   `yaml:"server" koanf:"server"`
	Confirm  ConfirmConfig  `yaml:"confirm" koanf:"confirm"`
	App      AppConfig      `yaml:"app" koanf:"app"`
	Log      LogConfig      `yaml:"log" koanf:"log"`
}

// ContentConfig locates the web content. URL wins over Dir.
type ContentConfig struct {
	URL string `yaml:"url" koanf:"url"`
	Dir string `yaml:"dir" koanf:"dir"`
}

// StorageConfig locates the save sandbox.
type StorageConfig struct {
	DownloadsDir string `yaml:"downloads_dir" koanf:"downloads_dir"`
	Subdir       string `yaml:"subdir" koanf:"subdir"`
	MaxLoadBytes int64  `yaml:"max_load_bytes" koanf:"max_load_bytes"`
}

// NoticeConfig bounds toast messages.
type NoticeConfig struct {
	MaxLen int `yaml:"max_len" koanf:"max_len"`
}

// HeadlessConfig tunes the browser-automation platform.
type HeadlessConfig struct {
	ShowBrowser bool   `yaml:"show_browser" koanf:"show_browser"`
	Bin         string `yaml:"bin" koanf:"bin"`
}

// ServerConfig configures the content server and websocket bridge.
type ServerConfig struct {
	Addr            string `yaml:"addr" koanf:"addr"`
	AllowAllOrigins bool   `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

// ConfirmConfig holds confirmation settings.
type ConfirmConfig struct {
	Auto ConfirmMode `yaml:"auto" koanf:"auto"`
}

// AppConfig holds build metadata overrides.
type AppConfig struct {
	VersionCode string `yaml:"version_code" koanf:"version_code"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" koanf:"level"`
	Dev   bool   `yaml:"dev" koanf:"dev"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Content: ContentConfig{Dir: "/usr/share/phasorviz/www"},
		Storage: StorageConfig{
			DownloadsDir: defaultDownloadsDir(),
			Subdir:       "phasorviz",
			MaxLoadBytes: 10240,
		},
		Notice:   NoticeConfig{MaxLen: 128},
		Platform: PlatformWebview,
		Server:   ServerConfig{Addr: "127.0.0.1:0"},
		Confirm:  ConfirmConfig{Auto: ConfirmAsk},
		Log:      LogConfig{Level: "info"},
	}
}

func defaultDownloadsDir() string {
	if dir := os.Getenv("XDG_DOWNLOAD_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir, _ = os.UserHomeDir()
	}
	return filepath.Join(dir, "phasorviz", "config.yml")
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (PHASORVIZ_*). A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
	}

	// PHASORVIZ_SERVER__ADDR -> server.addr
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validPlatforms = map[PlatformType]bool{
	PlatformWebview:  true,
	PlatformHeadless: true,
	PlatformBrowser:  true,
}

var validConfirmModes = map[ConfirmMode]bool{
	ConfirmAsk: true,
	ConfirmYes: true,
	ConfirmNo:  true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Content.URL == "" && c.Content.Dir == "" {
		return fmt.Errorf("one of content.url or content.dir is required")
	}
	if !validPlatforms[c.Platform] {
		return fmt.Errorf("invalid platform %q: must be one of webview, headless, browser", c.Platform)
	}
	if c.Storage.DownloadsDir == "" {
		return fmt.Errorf("storage.downloads_dir is required")
	}
	sub := c.Storage.Subdir
	if sub == "" || sub == "." || sub == ".." || strings.ContainsAny(sub, `/\`) {
		return fmt.Errorf("invalid storage.subdir %q: must be a single directory name", sub)
	}
	if c.Storage.MaxLoadBytes <= 0 {
		return fmt.Errorf("storage.max_load_bytes must be positive")
	}
	if c.Notice.MaxLen <= 0 {
		return fmt.Errorf("notice.max_len must be positive")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if !validConfirmModes[c.Confirm.Auto] {
		return fmt.Errorf("invalid confirm.auto %q: must be one of ask, yes, no", c.Confirm.Auto)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	return nil
}
