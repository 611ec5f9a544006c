// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Wait       WaitConfig       `mapstructure:"wait" yaml:"wait"`
	Overlay    OverlayConfig    `mapstructure:"overlay" yaml:"overlay"`
	Storefront StorefrontConfig `mapstructure:"storefront" yaml:"storefront"`
	Run        RunConfig        `mapstructure:"run" yaml:"run"`
}

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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the database connection details. Run results are only
// persisted when URL is set.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// Browser backends understood by the driver package.
const (
	BackendChromedp = "chromedp"
	BackendRod      = "rod"
)

// BrowserConfig holds settings for the browser instances driven by the scenarios.
type BrowserConfig struct {
	Backend           string         `mapstructure:"backend" yaml:"backend"`
	Headless          bool           `mapstructure:"headless" yaml:"headless"`
	BinaryPath        string         `mapstructure:"binary_path" yaml:"binary_path"`
	Args              []string       `mapstructure:"args" yaml:"args"`
	Viewport          ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	NavigationTimeout time.Duration  `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// LaunchInterval spaces out browser launches when scenarios run concurrently.
	LaunchInterval time.Duration `mapstructure:"launch_interval" yaml:"launch_interval"`
	Debug          bool          `mapstructure:"debug" yaml:"debug"`
}

// ViewportConfig is the initial window size. Maximize may override it.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// WaitConfig tunes the polling wait engine.
type WaitConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	HoverSettle  time.Duration `mapstructure:"hover_settle" yaml:"hover_settle"`
}

// MaxHoverSettle bounds the fixed delay applied after a hover.
const MaxHoverSettle = time.Second

// OverlayConfig describes the consent banner and the removal heuristics.
type OverlayConfig struct {
	Container       string        `mapstructure:"container" yaml:"container"`
	Accept          string        `mapstructure:"accept" yaml:"accept"`
	Submit          string        `mapstructure:"submit" yaml:"submit"`
	DismissProbe    time.Duration `mapstructure:"dismiss_probe" yaml:"dismiss_probe"`
	RemovalPatterns []string      `mapstructure:"removal_patterns" yaml:"removal_patterns"`
	RemovalIDs      []string      `mapstructure:"removal_ids" yaml:"removal_ids"`
}

// StorefrontConfig locates the shop under test.
type StorefrontConfig struct {
	BaseURL                  string       `mapstructure:"base_url" yaml:"base_url"`
	CartPath                 string       `mapstructure:"cart_path" yaml:"cart_path"`
	WishlistPath             string       `mapstructure:"wishlist_path" yaml:"wishlist_path"`
	ExpectedFilteredProducts int          `mapstructure:"expected_filtered_products" yaml:"expected_filtered_products"`
	Settle                   SettleConfig `mapstructure:"settle" yaml:"settle"`
}

// SettleConfig holds the fixed delays the storefront needs after slow, signal-less actions.
type SettleConfig struct {
	Submenu      time.Duration `mapstructure:"submenu" yaml:"submenu"`
	WishlistAdd  time.Duration `mapstructure:"wishlist_add" yaml:"wishlist_add"`
	WishlistLoad time.Duration `mapstructure:"wishlist_load" yaml:"wishlist_load"`
	CartLoad     time.Duration `mapstructure:"cart_load" yaml:"cart_load"`
	CartUpdate   time.Duration `mapstructure:"cart_update" yaml:"cart_update"`
	CartTransfer time.Duration `mapstructure:"cart_transfer" yaml:"cart_transfer"`
}

// RunConfig drives the scenario runner and its outputs.
type RunConfig struct {
	Scenarios       []string      `mapstructure:"scenarios" yaml:"scenarios"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	ScenarioTimeout time.Duration `mapstructure:"scenario_timeout" yaml:"scenario_timeout"`
	ScreenshotDir   string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	ReportFormat    string        `mapstructure:"report_format" yaml:"report_format"`
	ReportOutput    string        `mapstructure:"report_output" yaml:"report_output"`
	Schedule        string        `mapstructure:"schedule" yaml:"schedule"`
}

// DefaultBrowserArgs mirrors the flags the suite has always launched Chrome with.
var DefaultBrowserArgs = []string{
	"disable-notifications",
	"disable-popup-blocking",
	"start-maximized",
	"disable-blink-features=AutomationControlled",
	"disable-extensions",
	"no-sandbox",
	"disable-dev-shm-usage",
}

// NewDefaultConfig creates a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
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
	v.SetDefault("logger.service_name", "storefront")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.backend", BackendChromedp)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", DefaultBrowserArgs)
	v.SetDefault("browser.viewport.width", 1920)
	v.SetDefault("browser.viewport.height", 1080)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.launch_interval", "500ms")
	v.SetDefault("browser.debug", false)

	// -- Wait --
	v.SetDefault("wait.timeout", "15s")
	v.SetDefault("wait.probe_timeout", "5s")
	v.SetDefault("wait.poll_interval", "500ms")
	v.SetDefault("wait.hover_settle", "600ms")

	// -- Overlay --
	v.SetDefault("overlay.container", ".privacy_prompt")
	v.SetDefault("overlay.accept", "#privacy_pref_optin")
	v.SetDefault("overlay.submit", "#consent_prompt_submit")
	v.SetDefault("overlay.dismiss_probe", "500ms")
	v.SetDefault("overlay.removal_patterns", []string{"consent", "cookie", "overlay", "modal"})
	v.SetDefault("overlay.removal_ids", []string{"notice"})

	// -- Storefront --
	v.SetDefault("storefront.base_url", "https://ecommerce.tealiumdemo.com/")
	v.SetDefault("storefront.cart_path", "/checkout/cart/")
	v.SetDefault("storefront.wishlist_path", "/wishlist/")
	v.SetDefault("storefront.expected_filtered_products", 3)
	v.SetDefault("storefront.settle.submenu", "500ms")
	v.SetDefault("storefront.settle.wishlist_add", "3s")
	v.SetDefault("storefront.settle.wishlist_load", "2s")
	v.SetDefault("storefront.settle.cart_load", "2s")
	v.SetDefault("storefront.settle.cart_update", "2s")
	v.SetDefault("storefront.settle.cart_transfer", "1500ms")

	// -- Run --
	v.SetDefault("run.concurrency", 2)
	v.SetDefault("run.scenario_timeout", "5m")
	v.SetDefault("run.screenshot_dir", "screenshots")
	v.SetDefault("run.report_format", "text")
	v.SetDefault("run.report_output", "")
	v.SetDefault("run.schedule", "")
}

// NewConfigFromViper unmarshals, normalizes and validates a configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// The database URL usually carries credentials, so it is read from the environment too.
	_ = v.BindEnv("database.url", "STOREFRONT_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.ExpandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ExpandPaths resolves a leading "~" in every filesystem path of the configuration.
func (c *Config) ExpandPaths() error {
	paths := []*string{
		&c.Logger.LogFile,
		&c.Browser.BinaryPath,
		&c.Run.ScreenshotDir,
		&c.Run.ReportOutput,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Browser.Backend {
	case BackendChromedp, BackendRod:
	default:
		return fmt.Errorf("browser.backend must be one of %q or %q, got %q", BackendChromedp, BackendRod, c.Browser.Backend)
	}
	if err := c.Wait.Validate(); err != nil {
		return err
	}
	if c.Overlay.Container == "" {
		return fmt.Errorf("overlay.container is a required configuration field")
	}
	u, err := url.Parse(c.Storefront.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("storefront.base_url must be an absolute URL, got %q", c.Storefront.BaseURL)
	}
	if c.Run.Concurrency <= 0 {
		return fmt.Errorf("run.concurrency must be a positive integer")
	}
	if c.Run.ScenarioTimeout <= 0 {
		return fmt.Errorf("run.scenario_timeout must be positive")
	}
	return nil
}

// Validate checks the wait engine settings.
func (w *WaitConfig) Validate() error {
	if w.PollInterval <= 0 {
		return fmt.Errorf("wait.poll_interval must be positive")
	}
	if w.Timeout < w.PollInterval {
		return fmt.Errorf("wait.timeout must be at least wait.poll_interval")
	}
	if w.ProbeTimeout < w.PollInterval {
		return fmt.Errorf("wait.probe_timeout must be at least wait.poll_interval")
	}
	if w.HoverSettle < 0 || w.HoverSettle > MaxHoverSettle {
		return fmt.Errorf("wait.hover_settle must be between 0 and %v", MaxHoverSettle)
	}
	return nil
}

// URL joins a storefront path onto the base URL.
func (s StorefrontConfig) URL(path string) string {
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return s.BaseURL + path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return s.BaseURL + path
	}
	return base.ResolveReference(ref).String()
}
