package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable, e.g. ROOMSYNC_RELAY_URL.
const EnvPrefix = "ROOMSYNC"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Relay     *RelayConfig     `json:"relay" envconfig:"RELAY"`
	Presence  *PresenceConfig  `json:"presence" envconfig:"PRESENCE"`
	Reactions *ReactionsConfig `json:"reactions" envconfig:"REACTIONS"`
	Pause     *PauseConfig     `json:"pause" envconfig:"PAUSE"`
	Warning   *WarningConfig   `json:"warning" envconfig:"WARNING"`
	API       *APIConfig       `json:"api" envconfig:"API"`
	Journal   *JournalConfig   `json:"journal" envconfig:"JOURNAL"`
	Log       *LogConfig       `json:"log" envconfig:"LOG"`
}

// FUNCTIONAL DISCOVERY: Relay settings mirror the browser client so both back off identically
type RelayConfig struct {
	URL                  string        `json:"url" envconfig:"URL"`
	ReconnectDelay       time.Duration `json:"reconnect_delay" envconfig:"RECONNECT_DELAY"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts" envconfig:"MAX_RECONNECT_ATTEMPTS"`
	HeartbeatInterval    time.Duration `json:"heartbeat_interval" envconfig:"HEARTBEAT_INTERVAL"`
	WriteTimeout         time.Duration `json:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	QueueLimit           int           `json:"queue_limit" envconfig:"QUEUE_LIMIT"`
	RegisterAttempts     int           `json:"register_attempts" envconfig:"REGISTER_ATTEMPTS"`
	RegisterInterval     time.Duration `json:"register_interval" envconfig:"REGISTER_INTERVAL"`
}

type PresenceConfig struct {
	UserTimeout     time.Duration `json:"user_timeout" envconfig:"USER_TIMEOUT"`
	CleanupInterval time.Duration `json:"cleanup_interval" envconfig:"CLEANUP_INTERVAL"`
	RefreshInterval time.Duration `json:"refresh_interval" envconfig:"REFRESH_INTERVAL"`
}

// FUNCTIONAL DISCOVERY: An empty emoji file path keeps the built-in palette
type ReactionsConfig struct {
	EmojiFile string `json:"emoji_file" envconfig:"EMOJI_FILE"`
	Watch     bool   `json:"watch" envconfig:"WATCH"`
}

type PauseConfig struct {
	EndNoticeDuration time.Duration `json:"end_notice_duration" envconfig:"END_NOTICE_DURATION"`
}

type WarningConfig struct {
	Cooldown      time.Duration `json:"cooldown" envconfig:"COOLDOWN"`
	PostponeDelay time.Duration `json:"postpone_delay" envconfig:"POSTPONE_DELAY"`
}

// FUNCTIONAL DISCOVERY: The API only ever listens on loopback for the page integration
type APIConfig struct {
	Enabled      bool          `json:"enabled" envconfig:"ENABLED"`
	Host         string        `json:"host" envconfig:"HOST"`
	Port         int           `json:"port" envconfig:"PORT"`
	ReadTimeout  time.Duration `json:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" envconfig:"WRITE_TIMEOUT"`
}

type JournalConfig struct {
	Enabled    bool          `json:"enabled" envconfig:"ENABLED"`
	MaxEntries int           `json:"max_entries" envconfig:"MAX_ENTRIES"`
	Timeout    time.Duration `json:"timeout" envconfig:"TIMEOUT"`
}

type LogConfig struct {
	Level  string `json:"level" envconfig:"LEVEL"`
	Format string `json:"format" envconfig:"FORMAT"`
}

// FUNCTIONAL DISCOVERY: Defaults match the intervals the relay operators tuned for live classes:
// 3s reconnect base with five attempts, 5s heartbeat and sweep, 15s staleness, 2 minute warning window
func DefaultConfig() *Config {
	return &Config{
		Relay: &RelayConfig{
			URL:                  "ws://127.0.0.1:8765/ws",
			ReconnectDelay:       3 * time.Second,
			MaxReconnectAttempts: 5,
			HeartbeatInterval:    5 * time.Second,
			WriteTimeout:         5 * time.Second,
			QueueLimit:           256,
			RegisterAttempts:     10,
			RegisterInterval:     time.Second,
		},
		Presence: &PresenceConfig{
			UserTimeout:     15 * time.Second,
			CleanupInterval: 5 * time.Second,
			RefreshInterval: 5 * time.Minute,
		},
		Reactions: &ReactionsConfig{
			Watch: true,
		},
		Pause: &PauseConfig{
			EndNoticeDuration: 10 * time.Second,
		},
		Warning: &WarningConfig{
			Cooldown:      2 * time.Minute,
			PostponeDelay: 5 * time.Minute,
		},
		API: &APIConfig{
			Enabled:      true,
			Host:         "127.0.0.1",
			Port:         8766,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Journal: &JournalConfig{
			Enabled:    true,
			MaxEntries: 5000,
			Timeout:    5 * time.Second,
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// Critical for preventing runtime failures before the first dial
func (c *Config) Validate() error {
	if c.Relay == nil {
		return fmt.Errorf("relay configuration is required")
	}

	u, err := url.Parse(c.Relay.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("relay URL must be an absolute ws:// or wss:// URL")
	}

	if c.Relay.ReconnectDelay <= 0 {
		return fmt.Errorf("relay reconnect delay must be positive")
	}

	if c.Relay.MaxReconnectAttempts < 0 {
		return fmt.Errorf("relay max reconnect attempts cannot be negative")
	}

	if c.Relay.HeartbeatInterval <= 0 {
		return fmt.Errorf("relay heartbeat interval must be positive")
	}

	if c.Relay.WriteTimeout <= 0 {
		return fmt.Errorf("relay write timeout must be positive")
	}

	if c.Relay.QueueLimit <= 0 {
		return fmt.Errorf("relay queue limit must be positive")
	}

	if c.Relay.RegisterAttempts <= 0 {
		return fmt.Errorf("relay register attempts must be positive")
	}

	if c.Relay.RegisterInterval <= 0 {
		return fmt.Errorf("relay register interval must be positive")
	}

	if c.Presence == nil {
		return fmt.Errorf("presence configuration is required")
	}

	if c.Presence.UserTimeout <= 0 || c.Presence.CleanupInterval <= 0 || c.Presence.RefreshInterval <= 0 {
		return fmt.Errorf("presence intervals must be positive")
	}

	if c.Reactions == nil {
		return fmt.Errorf("reactions configuration is required")
	}

	if c.Pause == nil {
		return fmt.Errorf("pause configuration is required")
	}

	if c.Pause.EndNoticeDuration <= 0 {
		return fmt.Errorf("pause end notice duration must be positive")
	}

	if c.Warning == nil {
		return fmt.Errorf("warning configuration is required")
	}

	if c.Warning.Cooldown <= 0 {
		return fmt.Errorf("warning cooldown must be positive")
	}

	if c.Warning.PostponeDelay <= 0 {
		return fmt.Errorf("warning postpone delay must be positive")
	}

	if c.API == nil {
		return fmt.Errorf("API configuration is required")
	}

	if c.API.Enabled {
		if c.API.Port <= 0 || c.API.Port > 65535 {
			return fmt.Errorf("API port must be between 1 and 65535")
		}
		if c.API.Host == "" {
			return fmt.Errorf("API host cannot be empty")
		}
		if c.API.ReadTimeout <= 0 || c.API.WriteTimeout <= 0 {
			return fmt.Errorf("API timeouts must be positive")
		}
	}

	if c.Journal == nil {
		return fmt.Errorf("journal configuration is required")
	}

	if c.Journal.Enabled {
		if c.Journal.MaxEntries <= 0 {
			return fmt.Errorf("journal max entries must be positive")
		}
		if c.Journal.Timeout <= 0 {
			return fmt.Errorf("journal timeout must be positive")
		}
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be text or json")
	}

	return nil
}

// SlogLevel maps the configured level name onto slog.
func (l *LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level %q is not one of debug, info, warn, error", l.Level)
	}
	return level, nil
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// Variables left unset keep the defaults; malformed values are reported instead of ignored
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("failed to read %s_* environment: %w", EnvPrefix, err)
	}
	return config, nil
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Relay     *RelayConfigFile     `json:"relay"`
	Presence  *PresenceConfigFile  `json:"presence"`
	Reactions *ReactionsConfigFile `json:"reactions"`
	Pause     *PauseConfigFile     `json:"pause"`
	Warning   *WarningConfigFile   `json:"warning"`
	API       *APIConfigFile       `json:"api"`
	Journal   *JournalConfigFile   `json:"journal"`
	Log       *LogConfig           `json:"log"`
}

type RelayConfigFile struct {
	URL                  string `json:"url"`
	ReconnectDelay       string `json:"reconnect_delay"`
	MaxReconnectAttempts *int   `json:"max_reconnect_attempts"`
	HeartbeatInterval    string `json:"heartbeat_interval"`
	WriteTimeout         string `json:"write_timeout"`
	QueueLimit           int    `json:"queue_limit"`
	RegisterAttempts     int    `json:"register_attempts"`
	RegisterInterval     string `json:"register_interval"`
}

type PresenceConfigFile struct {
	UserTimeout     string `json:"user_timeout"`
	CleanupInterval string `json:"cleanup_interval"`
	RefreshInterval string `json:"refresh_interval"`
}

type ReactionsConfigFile struct {
	EmojiFile string `json:"emoji_file"`
	Watch     *bool  `json:"watch"`
}

type PauseConfigFile struct {
	EndNoticeDuration string `json:"end_notice_duration"`
}

type WarningConfigFile struct {
	Cooldown      string `json:"cooldown"`
	PostponeDelay string `json:"postpone_delay"`
}

type APIConfigFile struct {
	Enabled      *bool  `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

type JournalConfigFile struct {
	Enabled    *bool  `json:"enabled"`
	MaxEntries int    `json:"max_entries"`
	Timeout    string `json:"timeout"`
}

// FUNCTIONAL DISCOVERY: File-based configuration supports complex deployment scenarios
// JSON format chosen for readability and tooling support
func LoadFromFile(filepath string) (*Config, error) {
	return loadFileOnto(filepath, DefaultConfig())
}

func loadFileOnto(filepath string, config *Config) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if err := configFile.apply(config); err != nil {
		return nil, fmt.Errorf("invalid duration in %s: %w", filepath, err)
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

func (f *ConfigFile) apply(config *Config) error {
	if r := f.Relay; r != nil {
		if r.URL != "" {
			config.Relay.URL = r.URL
		}
		if err := setDuration(&config.Relay.ReconnectDelay, r.ReconnectDelay); err != nil {
			return err
		}
		if r.MaxReconnectAttempts != nil {
			config.Relay.MaxReconnectAttempts = *r.MaxReconnectAttempts
		}
		if err := setDuration(&config.Relay.HeartbeatInterval, r.HeartbeatInterval); err != nil {
			return err
		}
		if err := setDuration(&config.Relay.WriteTimeout, r.WriteTimeout); err != nil {
			return err
		}
		if r.QueueLimit > 0 {
			config.Relay.QueueLimit = r.QueueLimit
		}
		if r.RegisterAttempts > 0 {
			config.Relay.RegisterAttempts = r.RegisterAttempts
		}
		if err := setDuration(&config.Relay.RegisterInterval, r.RegisterInterval); err != nil {
			return err
		}
	}

	if p := f.Presence; p != nil {
		if err := setDuration(&config.Presence.UserTimeout, p.UserTimeout); err != nil {
			return err
		}
		if err := setDuration(&config.Presence.CleanupInterval, p.CleanupInterval); err != nil {
			return err
		}
		if err := setDuration(&config.Presence.RefreshInterval, p.RefreshInterval); err != nil {
			return err
		}
	}

	if r := f.Reactions; r != nil {
		if r.EmojiFile != "" {
			config.Reactions.EmojiFile = r.EmojiFile
		}
		if r.Watch != nil {
			config.Reactions.Watch = *r.Watch
		}
	}

	if p := f.Pause; p != nil {
		if err := setDuration(&config.Pause.EndNoticeDuration, p.EndNoticeDuration); err != nil {
			return err
		}
	}

	if w := f.Warning; w != nil {
		if err := setDuration(&config.Warning.Cooldown, w.Cooldown); err != nil {
			return err
		}
		if err := setDuration(&config.Warning.PostponeDelay, w.PostponeDelay); err != nil {
			return err
		}
	}

	if a := f.API; a != nil {
		if a.Enabled != nil {
			config.API.Enabled = *a.Enabled
		}
		if a.Host != "" {
			config.API.Host = a.Host
		}
		if a.Port > 0 {
			config.API.Port = a.Port
		}
		if err := setDuration(&config.API.ReadTimeout, a.ReadTimeout); err != nil {
			return err
		}
		if err := setDuration(&config.API.WriteTimeout, a.WriteTimeout); err != nil {
			return err
		}
	}

	if j := f.Journal; j != nil {
		if j.Enabled != nil {
			config.Journal.Enabled = *j.Enabled
		}
		if j.MaxEntries > 0 {
			config.Journal.MaxEntries = j.MaxEntries
		}
		if err := setDuration(&config.Journal.Timeout, j.Timeout); err != nil {
			return err
		}
	}

	if l := f.Log; l != nil {
		if l.Level != "" {
			config.Log.Level = l.Level
		}
		if l.Format != "" {
			config.Log.Format = l.Format
		}
	}

	return nil
}

func setDuration(dst *time.Duration, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment > defaults
// A missing or broken file is reported to the caller, which decides whether to continue
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if filepath == "" {
		return config, config.Validate()
	}

	fileConfig, err := loadFileOnto(filepath, config)
	if err != nil {
		return nil, err
	}
	return fileConfig, nil
}
