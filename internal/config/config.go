// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Wait() WaitConfig
	Locator() LocatorConfig
	Driver() DriverConfig
	Pool() PoolConfig
	Proxy() ProxyConfig

	// Wait Setters
	SetWaitTimeout(d time.Duration)
	SetHighlightCommands(bool)

	// Driver Setters
	SetDriverKind(kind string)
	SetDriverEndpoints(endpoints []string)
}

// Config holds the entire application configuration.
// Sections are exported for mapstructure and read through the Interface getters.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	WaitCfg    WaitConfig    `mapstructure:"wait" yaml:"wait"`
	LocatorCfg LocatorConfig `mapstructure:"locator" yaml:"locator"`
	DriverCfg  DriverConfig  `mapstructure:"driver" yaml:"driver"`
	PoolCfg    PoolConfig    `mapstructure:"pool" yaml:"pool"`
	ProxyCfg   ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Wait() WaitConfig       { return c.WaitCfg }
func (c *Config) Locator() LocatorConfig { return c.LocatorCfg }
func (c *Config) Driver() DriverConfig   { return c.DriverCfg }
func (c *Config) Pool() PoolConfig       { return c.PoolCfg }
func (c *Config) Proxy() ProxyConfig     { return c.ProxyCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetWaitTimeout(d time.Duration) { c.WaitCfg.Timeout = d }
func (c *Config) SetHighlightCommands(b bool)    { c.WaitCfg.HighlightCommands = b }

func (c *Config) SetDriverKind(kind string)             { c.DriverCfg.Kind = kind }
func (c *Config) SetDriverEndpoints(endpoints []string) { c.DriverCfg.Endpoints = endpoints }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names used for the console level column.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// WaitConfig tunes the synchronization behavior shared by every wait and action.
type WaitConfig struct {
	// Timeout bounds every wait call that does not pass its own override.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// PauseBetweenRetries is the fixed sleep between two poll ticks.
	PauseBetweenRetries time.Duration `mapstructure:"pause_between_retries" yaml:"pause_between_retries"`
	// TaskStartTimeout is how long an action waits for the system to report busy after it ran.
	TaskStartTimeout time.Duration `mapstructure:"task_start_timeout" yaml:"task_start_timeout"`
	// TaskCompletionTimeout substitutes a zero completion timeout passed to an action.
	TaskCompletionTimeout time.Duration `mapstructure:"task_completion_timeout" yaml:"task_completion_timeout"`
	// ResponseTimeout guards a single immediate driver lookup against a hung driver.
	ResponseTimeout time.Duration `mapstructure:"response_timeout" yaml:"response_timeout"`
	// MaxRelocations caps how often a stale handle is relocated for one operation.
	MaxRelocations    int    `mapstructure:"max_relocations" yaml:"max_relocations"`
	HighlightCommands bool   `mapstructure:"highlight_commands" yaml:"highlight_commands"`
	DebugCaptureDir   string `mapstructure:"debug_capture_dir" yaml:"debug_capture_dir"`
}

// LocatorConfig controls how Id-style locators are mapped to a native query.
// The id is inserted between prefix and suffix and used as a CSS selector.
type LocatorConfig struct {
	IDPrefix string `mapstructure:"id_prefix" yaml:"id_prefix"`
	IDSuffix string `mapstructure:"id_suffix" yaml:"id_suffix"`
}

// Supported driver kinds.
const (
	DriverCDP       = "cdp"
	DriverWebDriver = "webdriver"
)

// DriverConfig selects and tunes the browser driver implementation.
type DriverConfig struct {
	Kind string `mapstructure:"kind" yaml:"kind"`
	// Endpoints is the fixed set of hosts sessions are drawn from. For the cdp driver
	// "local" launches a browser process, anything else is a DevTools websocket URL.
	// For the webdriver driver each entry is a remote WebDriver URL.
	Endpoints    []string      `mapstructure:"endpoints" yaml:"endpoints"`
	Headless     bool          `mapstructure:"headless" yaml:"headless"`
	BrowserName  string        `mapstructure:"browser_name" yaml:"browser_name"`
	ImplicitWait time.Duration `mapstructure:"implicit_wait" yaml:"implicit_wait"`
	StartTimeout time.Duration `mapstructure:"start_timeout" yaml:"start_timeout"`
	Args         []string      `mapstructure:"args" yaml:"args"`
}

// PoolConfig tunes how sessions draw endpoints from the fixed host pool.
type PoolConfig struct {
	// AcquireTimeout bounds a blocking acquire; 0 waits until the caller's context ends.
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
}

// ProxyConfig defines the local authenticating passthrough proxies.
type ProxyConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	ListenHost string `mapstructure:"listen_host" yaml:"listen_host"`
	// BasePort is the port of the first proxy; 0 picks free ports.
	BasePort int `mapstructure:"base_port" yaml:"base_port"`
	// Size defaults to the number of driver endpoints.
	Size     int    `mapstructure:"size" yaml:"size"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
	// Upstream is an optional proxy URL; userinfo becomes Proxy-Authorization.
	Upstream string `mapstructure:"upstream" yaml:"upstream"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "aludra")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Wait --
	v.SetDefault("wait.timeout", "10s")
	v.SetDefault("wait.pause_between_retries", "100ms")
	v.SetDefault("wait.task_start_timeout", "2s")
	v.SetDefault("wait.task_completion_timeout", "30s")
	v.SetDefault("wait.response_timeout", "20s")
	v.SetDefault("wait.max_relocations", 3)
	v.SetDefault("wait.highlight_commands", false)
	v.SetDefault("wait.debug_capture_dir", "")

	// -- Locator --
	v.SetDefault("locator.id_prefix", `[id$="`)
	v.SetDefault("locator.id_suffix", `"]`)

	// -- Driver --
	v.SetDefault("driver.kind", DriverCDP)
	v.SetDefault("driver.endpoints", []string{"local"})
	v.SetDefault("driver.headless", true)
	v.SetDefault("driver.browser_name", "chrome")
	v.SetDefault("driver.implicit_wait", "0s")
	v.SetDefault("driver.start_timeout", "60s")

	// -- Pool --
	v.SetDefault("pool.acquire_timeout", "0s")

	// -- Proxy --
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.listen_host", "127.0.0.1")
	v.SetDefault("proxy.base_port", 0)
	v.SetDefault("proxy.size", 0)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("proxy.password", "ALUDRA_PROXY_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.ProxyCfg.Enabled && cfg.ProxyCfg.Password == "" {
		cfg.ProxyCfg.Password = os.Getenv("ALUDRA_PROXY_PASSWORD")
	}

	if cfg.WaitCfg.DebugCaptureDir != "" {
		dir, err := homedir.Expand(cfg.WaitCfg.DebugCaptureDir)
		if err != nil {
			return nil, fmt.Errorf("error expanding wait.debug_capture_dir: %w", err)
		}
		cfg.WaitCfg.DebugCaptureDir = dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.WaitCfg.Validate(); err != nil {
		return fmt.Errorf("wait configuration invalid: %w", err)
	}
	if err := c.DriverCfg.Validate(); err != nil {
		return fmt.Errorf("driver configuration invalid: %w", err)
	}
	if c.PoolCfg.AcquireTimeout < 0 {
		return fmt.Errorf("pool configuration invalid: acquire_timeout must not be negative")
	}
	if err := c.ProxyCfg.Validate(); err != nil {
		return fmt.Errorf("proxy configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the wait settings. A zero pause would make every wait busy-spin.
func (w *WaitConfig) Validate() error {
	if w.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if w.PauseBetweenRetries <= 0 {
		return fmt.Errorf("pause_between_retries must be a positive duration")
	}
	if w.TaskStartTimeout < 0 || w.TaskCompletionTimeout < 0 {
		return fmt.Errorf("task timeouts must not be negative")
	}
	if w.ResponseTimeout <= 0 {
		return fmt.Errorf("response_timeout must be a positive duration")
	}
	if w.MaxRelocations < 0 {
		return fmt.Errorf("max_relocations must not be negative")
	}
	return nil
}

// Validate checks the driver settings.
func (d *DriverConfig) Validate() error {
	switch d.Kind {
	case DriverCDP, DriverWebDriver:
	default:
		return fmt.Errorf("kind must be %q or %q, got %q", DriverCDP, DriverWebDriver, d.Kind)
	}
	if len(d.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}
	return nil
}

// Validate checks the proxy settings.
func (p *ProxyConfig) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.ListenHost == "" {
		return fmt.Errorf("listen_host is required when the proxy pool is enabled")
	}
	if p.BasePort < 0 || p.BasePort > 65535 {
		return fmt.Errorf("base_port must be between 0 and 65535")
	}
	if p.Size < 0 {
		return fmt.Errorf("size must not be negative")
	}
	return nil
}
