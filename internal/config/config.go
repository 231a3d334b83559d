package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Device   DeviceConfig   `json:"device" mapstructure:"device"`
	Cache    CacheConfig    `json:"cache" mapstructure:"cache"`
	Download DownloadConfig `json:"download" mapstructure:"download"`
	Playlist PlaylistConfig `json:"playlist" mapstructure:"playlist"`
	Playback PlaybackConfig `json:"playback" mapstructure:"playback"`
	Network  NetworkConfig  `json:"network" mapstructure:"network"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`

	v *viper.Viper
}

// ServerConfig locates the remote catalog host and the local control API
type ServerConfig struct {
	BaseURL    string `json:"base_url" mapstructure:"base_url"`
	ListenAddr string `json:"listen_addr" mapstructure:"listen_addr"`
	// CORSOrigins may call the control API from a browser
	CORSOrigins []string `json:"cors_origins" mapstructure:"cors_origins"`
}

// DeviceConfig holds the environment signals the mode resolver reads.
// They are re-read from the live configuration on every resolution.
type DeviceConfig struct {
	UserAgent     string `json:"user_agent" mapstructure:"user_agent"`
	ViewportWidth int    `json:"viewport_width" mapstructure:"viewport_width"`
	Standalone    bool   `json:"standalone" mapstructure:"standalone"`
	ForceMode     string `json:"force_mode" mapstructure:"force_mode"` // "", "mobile" or "desktop"
}

// CacheConfig contains content cache settings
type CacheConfig struct {
	DBPath         string `json:"db_path" mapstructure:"db_path"`
	ThumbnailMaxPx int    `json:"thumbnail_max_px" mapstructure:"thumbnail_max_px"`
}

// DownloadConfig contains download-related settings
type DownloadConfig struct {
	ConcurrentDownloads int `json:"concurrent_downloads" mapstructure:"concurrent_downloads"`
}

// PlaylistConfig contains playlist store settings
type PlaylistConfig struct {
	RefreshIntervalSeconds int `json:"refresh_interval_seconds" mapstructure:"refresh_interval_seconds"`
}

// PlaybackConfig contains playback engine settings
type PlaybackConfig struct {
	Volume     float64 `json:"volume" mapstructure:"volume"`
	MPVEnabled bool    `json:"mpv_enabled" mapstructure:"mpv_enabled"`
}

// NetworkConfig contains network-related settings
type NetworkConfig struct {
	Timeout           int     `json:"timeout" mapstructure:"timeout"`                   // seconds, catalog calls
	DownloadTimeout   int     `json:"download_timeout" mapstructure:"download_timeout"` // seconds, proxy audio fetch
	MaxRetries        int     `json:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	Format     string `json:"format" mapstructure:"format"`
	Output     string `json:"output" mapstructure:"output"`
	FilePath   string `json:"file_path" mapstructure:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `json:"compress" mapstructure:"compress"`
}

// Load loads configuration from file or creates default
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath == "" {
		configPath = GetConfigPath()
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
			// First run: persist the defaults so the user has something to edit
			if err := v.WriteConfigAs(configPath); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// KORDIA_SERVER_BASE_URL overrides server.base_url, and so on
	v.SetEnvPrefix("KORDIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.v = v

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server base URL cannot be empty")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server base URL: %q", c.Server.BaseURL)
	}

	switch c.Device.ForceMode {
	case "", "mobile", "desktop":
	default:
		return fmt.Errorf("invalid force mode: %s (must be mobile, desktop or empty)", c.Device.ForceMode)
	}

	if c.Device.ViewportWidth < 0 {
		return fmt.Errorf("viewport width cannot be negative")
	}

	if c.Cache.DBPath == "" {
		return fmt.Errorf("cache database path cannot be empty")
	}

	if c.Cache.ThumbnailMaxPx < 64 || c.Cache.ThumbnailMaxPx > 2048 {
		return fmt.Errorf("thumbnail size must be between 64 and 2048 pixels")
	}

	if c.Download.ConcurrentDownloads < 1 {
		return fmt.Errorf("concurrent downloads must be at least 1")
	}

	if c.Download.ConcurrentDownloads > 16 {
		return fmt.Errorf("concurrent downloads cannot exceed 16")
	}

	if c.Playlist.RefreshIntervalSeconds < 5 {
		return fmt.Errorf("playlist refresh interval must be at least 5 seconds")
	}

	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0")
	}

	if c.Network.Timeout < 1 {
		return fmt.Errorf("network timeout must be at least 1 second")
	}

	if c.Network.DownloadTimeout < c.Network.Timeout {
		return fmt.Errorf("download timeout cannot be shorter than the network timeout")
	}

	if c.Network.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	if c.Network.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	validOutputs := map[string]bool{"file": true, "console": true, "both": true}
	if !validOutputs[c.Logging.Output] {
		return fmt.Errorf("invalid log output: %s (must be file, console, or both)", c.Logging.Output)
	}

	if c.Logging.MaxSizeMB < 1 {
		return fmt.Errorf("log max size must be at least 1 MB")
	}

	if c.Logging.MaxBackups < 0 {
		return fmt.Errorf("log max backups cannot be negative")
	}

	if c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("log max age cannot be negative")
	}

	return nil
}

// Save saves the configuration to file
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.Set("server", c.Server)
	v.Set("device", c.Device)
	v.Set("cache", c.Cache)
	v.Set("download", c.Download)
	v.Set("playlist", c.Playlist)
	v.Set("playback", c.Playback)
	v.Set("network", c.Network)
	v.Set("logging", c.Logging)

	return v.WriteConfigAs(path)
}

// Live returns the viper instance backing this configuration. Values read
// through it reflect file edits (after WatchChanges) and environment
// overrides at call time, unlike the unmarshalled struct.
func (c *Config) Live() *viper.Viper {
	if c.v == nil {
		c.v = viper.New()
		setDefaults(c.v)
		c.v.Set("device.user_agent", c.Device.UserAgent)
		c.v.Set("device.viewport_width", c.Device.ViewportWidth)
		c.v.Set("device.standalone", c.Device.Standalone)
		c.v.Set("device.force_mode", c.Device.ForceMode)
	}
	return c.v
}

// WatchChanges re-reads the config file whenever it changes on disk and
// calls onChange afterwards.
func (c *Config) WatchChanges(onChange func()) {
	v := c.Live()
	v.OnConfigChange(func(fsnotify.Event) {
		if onChange != nil {
			onChange()
		}
	})
	v.WatchConfig()
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	dataDir := GetDataDir()

	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("server.listen_addr", "127.0.0.1:7878")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("device.user_agent", "")
	v.SetDefault("device.viewport_width", 1280)
	v.SetDefault("device.standalone", false)
	v.SetDefault("device.force_mode", "")

	v.SetDefault("cache.db_path", filepath.Join(dataDir, "data", "kordia.db"))
	v.SetDefault("cache.thumbnail_max_px", 320)

	v.SetDefault("download.concurrent_downloads", 4)

	v.SetDefault("playlist.refresh_interval_seconds", 30)

	v.SetDefault("playback.volume", 0.7)
	v.SetDefault("playback.mpv_enabled", true)

	v.SetDefault("network.timeout", 15)
	v.SetDefault("network.download_timeout", 300)
	v.SetDefault("network.max_retries", 3)
	v.SetDefault("network.requests_per_second", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "file")
	v.SetDefault("logging.file_path", filepath.Join(dataDir, "logs", "kordia.log"))
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
	v.SetDefault("logging.compress", true)
}

// GetDataDir returns the application data directory. KORDIA_HOME wins over
// the platform default.
func GetDataDir() string {
	if home := os.Getenv("KORDIA_HOME"); home != "" {
		return home
	}
	appData := os.Getenv("APPDATA")
	if appData == "" {
		appData = os.Getenv("HOME")
	}
	return filepath.Join(appData, "Kordia")
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(GetDataDir(), "settings.json")
}
