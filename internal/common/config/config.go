// Package config provides configuration management for the attendance agent.
// It supports loading configuration from environment variables, config files,
// and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the agent.
type Config struct {
	HR       HRConfig       `mapstructure:"hr"`
	Agent    AgentConfig    `mapstructure:"agent"`
	UIBridge UIBridgeConfig `mapstructure:"uibridge"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// HRConfig holds the remote HR service settings. DeviceID and DeviceToken
// live in the enrollment file, not here; this section only carries what an
// administrator pre-provisions.
type HRConfig struct {
	ServerURL string `mapstructure:"serverUrl"`
	EmpCode   string `mapstructure:"empCode"`
}

// AgentConfig holds the tracker and controller thresholds.
type AgentConfig struct {
	IdleThresholdSec     int `mapstructure:"idleThresholdSec"`     // no input for this long -> IDLE
	HeartbeatIntervalSec int `mapstructure:"heartbeatIntervalSec"` // overridden by enrollment response
	MoveThrottleMs       int `mapstructure:"moveThrottleMs"`       // record at most one move per window
	PatternBufferSize    int `mapstructure:"patternBufferSize"`    // ring buffer capacity
	TickIntervalMs       int `mapstructure:"tickIntervalMs"`       // state machine evaluation cadence
	DrainIntervalMs      int `mapstructure:"drainIntervalMs"`      // input queue drain cadence
	PopupDrainIntervalMs int `mapstructure:"popupDrainIntervalMs"` // drain cadence while popup is open
	DrainBatchLimit      int `mapstructure:"drainBatchLimit"`      // max events per drain pass
	WatchdogIntervalSec  int `mapstructure:"watchdogIntervalSec"`  // listener liveness check cadence
	ProcessPollSec       int `mapstructure:"processPollSec"`       // deny-list scan cadence
	IdleCapSec           int `mapstructure:"idleCapSec"`           // idle seconds cap (sleep/resume guard)
}

// UIBridgeConfig holds the local HTTP/websocket bridge settings.
type UIBridgeConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	ReadTimeout       int    `mapstructure:"readTimeout"`       // in seconds
	WriteTimeout      int    `mapstructure:"writeTimeout"`      // in seconds
	AnnotateWaitSec   int    `mapstructure:"annotateWaitSec"`   // bounded wait for break/submit
	SuspiciousWarning bool   `mapstructure:"suspiciousWarning"` // push warning dialogs to the UI
}

// NATSConfig holds the optional telemetry event bus configuration.
// An empty URL selects the in-memory bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// PathsConfig holds the local persistence locations.
type PathsConfig struct {
	DataDir string `mapstructure:"dataDir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// IdleThreshold returns the idle threshold as a time.Duration.
func (a *AgentConfig) IdleThreshold() time.Duration {
	return time.Duration(a.IdleThresholdSec) * time.Second
}

// HeartbeatInterval returns the heartbeat interval as a time.Duration.
func (a *AgentConfig) HeartbeatInterval() time.Duration {
	return time.Duration(a.HeartbeatIntervalSec) * time.Second
}

// MoveThrottle returns the move throttle window as a time.Duration.
func (a *AgentConfig) MoveThrottle() time.Duration {
	return time.Duration(a.MoveThrottleMs) * time.Millisecond
}

// TickInterval returns the evaluation cadence as a time.Duration.
func (a *AgentConfig) TickInterval() time.Duration {
	return time.Duration(a.TickIntervalMs) * time.Millisecond
}

// DrainInterval returns the drain cadence as a time.Duration.
func (a *AgentConfig) DrainInterval() time.Duration {
	return time.Duration(a.DrainIntervalMs) * time.Millisecond
}

// PopupDrainInterval returns the drain cadence used while a popup is open.
func (a *AgentConfig) PopupDrainInterval() time.Duration {
	return time.Duration(a.PopupDrainIntervalMs) * time.Millisecond
}

// WatchdogInterval returns the listener watchdog cadence.
func (a *AgentConfig) WatchdogInterval() time.Duration {
	return time.Duration(a.WatchdogIntervalSec) * time.Second
}

// ProcessPollInterval returns the deny-list scan cadence.
func (a *AgentConfig) ProcessPollInterval() time.Duration {
	return time.Duration(a.ProcessPollSec) * time.Second
}

// IdleCap returns the idle-seconds cap as a time.Duration.
func (a *AgentConfig) IdleCap() time.Duration {
	return time.Duration(a.IdleCapSec) * time.Second
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (u *UIBridgeConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(u.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (u *UIBridgeConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(u.WriteTimeout) * time.Second
}

// AnnotateWait returns the bounded wait for the annotate call.
func (u *UIBridgeConfig) AnnotateWait() time.Duration {
	return time.Duration(u.AnnotateWaitSec) * time.Second
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// HR defaults - empty means enrollment is required via env/config
	v.SetDefault("hr.serverUrl", "")
	v.SetDefault("hr.empCode", "")

	// Tracker/controller defaults, tuned for low CPU on old office machines
	v.SetDefault("agent.idleThresholdSec", 180)
	v.SetDefault("agent.heartbeatIntervalSec", 180)
	v.SetDefault("agent.moveThrottleMs", 500)
	v.SetDefault("agent.patternBufferSize", 30)
	v.SetDefault("agent.tickIntervalMs", 3000)
	v.SetDefault("agent.drainIntervalMs", 200)
	v.SetDefault("agent.popupDrainIntervalMs", 500)
	v.SetDefault("agent.drainBatchLimit", 200)
	v.SetDefault("agent.watchdogIntervalSec", 30)
	v.SetDefault("agent.processPollSec", 30)
	v.SetDefault("agent.idleCapSec", 600)

	// UI bridge defaults - loopback only
	v.SetDefault("uibridge.host", "127.0.0.1")
	v.SetDefault("uibridge.port", 8377)
	v.SetDefault("uibridge.readTimeout", 30)
	v.SetDefault("uibridge.writeTimeout", 60)
	v.SetDefault("uibridge.annotateWaitSec", 50)
	v.SetDefault("uibridge.suspiciousWarning", true)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "attendance-agent")
	v.SetDefault("nats.maxReconnects", 10)

	// Paths defaults
	v.SetDefault("paths.dataDir", defaultDataDir())

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")
}

// defaultDataDir returns the per-user agent data directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".attendance-agent"
	}
	return filepath.Join(home, ".attendance-agent")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the prefix ATTEND_ with underscore
// naming. The config file is config.yaml in the current directory,
// /etc/attendance-agent/, or the data directory.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ATTEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for keys whose env var naming differs from the
	// config key naming (AutomaticEnv does not fold camelCase).
	_ = v.BindEnv("hr.serverUrl", "ATTEND_HR_SERVER_URL")
	_ = v.BindEnv("hr.empCode", "ATTEND_HR_EMP_CODE")
	_ = v.BindEnv("paths.dataDir", "ATTEND_PATHS_DATA_DIR")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/attendance-agent/")
	v.AddConfigPath(defaultDataDir())

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are sane.
func validate(cfg *Config) error {
	var errs []string

	if cfg.UIBridge.Port <= 0 || cfg.UIBridge.Port > 65535 {
		errs = append(errs, "uibridge.port must be between 1 and 65535")
	}

	if cfg.Agent.IdleThresholdSec <= 0 {
		errs = append(errs, "agent.idleThresholdSec must be positive")
	}
	if cfg.Agent.HeartbeatIntervalSec <= 0 {
		errs = append(errs, "agent.heartbeatIntervalSec must be positive")
	}
	if cfg.Agent.PatternBufferSize <= 0 {
		errs = append(errs, "agent.patternBufferSize must be positive")
	}
	if cfg.Agent.DrainBatchLimit <= 0 {
		errs = append(errs, "agent.drainBatchLimit must be positive")
	}
	if cfg.Agent.IdleCapSec < cfg.Agent.IdleThresholdSec {
		errs = append(errs, "agent.idleCapSec must not be below agent.idleThresholdSec")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
