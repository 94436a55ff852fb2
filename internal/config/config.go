package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DriverConfig selects the camera driver implementation.
// Type selects a concrete implementation ("gphoto2" or "mock").
type DriverConfig struct {
	Type string `yaml:"type"` // "gphoto2" (real USB camera) or "mock" (dev/test)
}

// TriggerConfig describes an optional wired remote-release cable on GPIO,
// for camera bodies whose USB stack refuses the shutter-release call:
// - GND: connected to ground
// - FOCUS: autofocus line (activate by setting to LOW)
// - SHUTTER: trigger line (activate by setting to LOW)
type TriggerConfig struct {
	Enabled        bool `yaml:"enabled"`
	FocusPin       int  `yaml:"focus_pin"`        // GPIO pin for FOCUS line
	ShutterPin     int  `yaml:"shutter_pin"`      // GPIO pin for SHUTTER line
	FocusDelayMs   int  `yaml:"focus_delay_ms"`   // autofocus delay (ms)
	ShutterDelayMs int  `yaml:"shutter_delay_ms"` // shutter hold time (ms)
	MockGPIO       bool `yaml:"mock_gpio"`        // use mock GPIO (true=dev/test)
}

// WebConfig holds the HTTP command surface settings.
type WebConfig struct {
	Addr string `yaml:"addr"` // listen address, e.g. ":8360"
}

// TimingConfig holds the loop and deadline tunables. Zero values are
// replaced with defaults on load.
type TimingConfig struct {
	MonitorTickMs       int `yaml:"monitor_tick_ms"`        // connection health-check interval
	DetectAttempts      int `yaml:"detect_attempts"`        // autodetect attempts per reconnect cycle
	DetectPauseMs       int `yaml:"detect_pause_ms"`        // pause between autodetect attempts
	EventTickMs         int `yaml:"event_tick_ms"`          // event poll interval
	EventWaitMs         int `yaml:"event_wait_ms"`          // bounded wait inside one event poll
	CaptureDeadlineMs   int `yaml:"capture_deadline_ms"`    // overall capture wall-clock deadline
	CaptureRetryPauseMs int `yaml:"capture_retry_pause_ms"` // pause before the single transient retry
	SettleDelayMs       int `yaml:"settle_delay_ms"`        // firmware settle delay after a config write
}

// Config aggregates all application configuration.
type Config struct {
	CaptureDir string              `yaml:"capture_dir"`
	Web        WebConfig           `yaml:"web"`
	Driver     DriverConfig        `yaml:"driver"`
	Trigger    TriggerConfig       `yaml:"trigger"`
	Timing     TimingConfig        `yaml:"timing"`
	DebugLevel int                 `yaml:"debug_level"` // 0=off, 1=info, 2=live, 3=verbose, 4=trace
	Aliases    map[string][]string `yaml:"aliases,omitempty"`
}

// defaultAliases is the firmware compatibility table: different device
// firmwares expose the same logical parameter under different widget keys,
// tried in order. YAML `aliases` entries override per logical parameter.
var defaultAliases = map[string][]string{
	"iso":                  {"iso", "isospeed", "autoiso"},
	"shutterspeed":         {"shutterspeed", "shutter", "shutterspeed2", "exptime", "exposuretime"},
	"aperture":             {"aperture", "f-number", "fnumber", "aperture2"},
	"exposurecompensation": {"exposurecompensation", "expcomp", "exposurecomp", "exposure"},
	"shootingmode":         {"shootingmode", "capturemode", "capturemode2", "autoexposuremode", "exposuremode", "mode"},
	"whitebalance":         {"whitebalance", "whitebalanceadjust", "whitebalance2", "wb"},
	"focusmode":            {"focusmode", "autofocus", "afmode", "focusmode2"},
	"drivemode":            {"drivemode", "capturemode", "continuous"},
	"meteringmode":         {"meteringmode", "meteringmodedial", "metering"},
	"batterylevel":         {"batterylevel"},
	"remainingimages":      {"remainingimages"},
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with all defaults applied, for use when
// no config file is given.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() error {
	if c.CaptureDir == "" {
		c.CaptureDir = "captures"
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":8360"
	}
	switch c.Driver.Type {
	case "":
		c.Driver.Type = "gphoto2"
	case "gphoto2", "mock":
	default:
		return fmt.Errorf("driver.type must be \"gphoto2\" or \"mock\", got %q", c.Driver.Type)
	}

	if c.Trigger.Enabled {
		if c.Trigger.FocusPin <= 0 || c.Trigger.ShutterPin <= 0 {
			return fmt.Errorf("trigger enabled but focus_pin/shutter_pin not set")
		}
		if c.Trigger.FocusDelayMs <= 0 {
			c.Trigger.FocusDelayMs = 500 // 500ms for autofocus
		}
		if c.Trigger.ShutterDelayMs <= 0 {
			c.Trigger.ShutterDelayMs = 200 // 200ms shutter hold
		}
	}

	t := &c.Timing
	if t.MonitorTickMs <= 0 {
		t.MonitorTickMs = 500
	}
	if t.DetectAttempts <= 0 {
		t.DetectAttempts = 5
	}
	if t.DetectPauseMs <= 0 {
		t.DetectPauseMs = 200
	}
	if t.EventTickMs <= 0 {
		t.EventTickMs = 100
	}
	if t.EventWaitMs <= 0 {
		t.EventWaitMs = 300
	}
	if t.CaptureDeadlineMs <= 0 {
		t.CaptureDeadlineMs = 60_000
	}
	if t.CaptureRetryPauseMs <= 0 {
		t.CaptureRetryPauseMs = 1000
	}
	if t.SettleDelayMs <= 0 {
		t.SettleDelayMs = 100
	}

	if c.DebugLevel < 0 || c.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.DebugLevel)
	}
	return nil
}

// Alias returns the ordered widget-key alias list for a logical parameter.
// A YAML override replaces the default list for that parameter only.
func (c *Config) Alias(param string) []string {
	if keys, ok := c.Aliases[param]; ok && len(keys) > 0 {
		return keys
	}
	return defaultAliases[param]
}

// MonitorTick returns the connection health-check interval.
func (c *Config) MonitorTick() time.Duration {
	return time.Duration(c.Timing.MonitorTickMs) * time.Millisecond
}

// DetectPause returns the pause between autodetect attempts.
func (c *Config) DetectPause() time.Duration {
	return time.Duration(c.Timing.DetectPauseMs) * time.Millisecond
}

// EventTick returns the event poll interval.
func (c *Config) EventTick() time.Duration {
	return time.Duration(c.Timing.EventTickMs) * time.Millisecond
}

// EventWait returns the bounded wait for one event poll.
func (c *Config) EventWait() time.Duration {
	return time.Duration(c.Timing.EventWaitMs) * time.Millisecond
}

// CaptureDeadline returns the overall capture wall-clock deadline.
func (c *Config) CaptureDeadline() time.Duration {
	return time.Duration(c.Timing.CaptureDeadlineMs) * time.Millisecond
}

// CaptureRetryPause returns the pause before the single transient retry.
func (c *Config) CaptureRetryPause() time.Duration {
	return time.Duration(c.Timing.CaptureRetryPauseMs) * time.Millisecond
}

// SettleDelay returns the firmware settle delay after a config write.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Timing.SettleDelayMs) * time.Millisecond
}

// FocusDelay returns the wired-trigger autofocus delay.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Trigger.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the wired-trigger shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Trigger.ShutterDelayMs) * time.Millisecond
}
