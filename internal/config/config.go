package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/danhigham/huddle/internal/domain"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	configFileName     = "config.yaml"
	sessionFileName    = "session.yaml"
)

type Config struct {
	Server      ServerConfig `yaml:"server"`
	HTTP        HTTPConfig   `yaml:"http"`
	LogLevel    string       `yaml:"log_level"`
	MetricsAddr string       `yaml:"metrics_addr"`
}

type ServerConfig struct {
	APIURL string `yaml:"api_url"`
	WSURL  string `yaml:"ws_url"`
}

type HTTPConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

func Dir() string {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(cfgDir, "huddle")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// Default returns a configuration with defaults applied and no endpoints.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Path returns the location of config.yaml inside dir.
func Path(dir string) string {
	return filepath.Join(dir, configFileName)
}

// Resolve loads config.yaml from dir when it exists and layers the values
// found in v on top. v carries command-line flags and HUDDLE_* environment
// variables under the keys api-url, ws-url, log-level, metrics-addr and
// http-timeout.
func Resolve(dir string, v *viper.Viper) (*Config, error) {
	cfg, err := Load(Path(dir))
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = Default()
	case err != nil:
		return nil, err
	}
	if v == nil {
		return cfg, nil
	}

	if s := v.GetString("api-url"); s != "" {
		cfg.Server.APIURL = s
	}
	if s := v.GetString("ws-url"); s != "" {
		cfg.Server.WSURL = s
	}
	if s := v.GetString("log-level"); s != "" {
		cfg.LogLevel = s
	}
	if s := v.GetString("metrics-addr"); s != "" {
		cfg.MetricsAddr = s
	}
	if d := v.GetDuration("http-timeout"); d > 0 {
		cfg.HTTP.Timeout = d
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = defaultHTTPTimeout
	}
}

// Validate checks that both server endpoints are set.
func (c *Config) Validate() error {
	if c.Server.APIURL == "" {
		return errors.New("server.api_url is required")
	}
	if c.Server.WSURL == "" {
		return errors.New("server.ws_url is required")
	}
	return nil
}

// SessionPath returns the location of the stored session inside dir.
func SessionPath(dir string) string {
	return filepath.Join(dir, sessionFileName)
}

// LoadSession reads a session written by SaveSession. A missing file yields
// domain.ErrNoSession.
func LoadSession(path string) (domain.Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Session{}, domain.ErrNoSession
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("read session: %w", err)
	}

	var s domain.Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return domain.Session{}, fmt.Errorf("parse session: %w", err)
	}
	if !s.Valid() {
		return domain.Session{}, domain.ErrNoSession
	}
	return s, nil
}

func SaveSession(path string, s domain.Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// RemoveSession deletes the stored session. Removing a missing file is not an error.
func RemoveSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}
