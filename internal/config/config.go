// Package config provides configuration management for the plate labeller.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	// Default values
	DefaultPort        = 8353
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
	DefaultDataDir     = ".labeller"
	DefaultVideoDir    = "Videos/353_recordings"
	DefaultThreshold   = 0.95
	DefaultPolicy      = "set"
	DefaultPlateSlots  = 8
	DefaultLabelSuffix = ".json"
	DefaultStore       = "file"

	// Environment variable names
	EnvPort        = "LABELLER_PORT"
	EnvLogLevel    = "LABELLER_LOG_LEVEL"
	EnvLogFormat   = "LABELLER_LOG_FORMAT"
	EnvDataDir     = "LABELLER_DATA_DIR"
	EnvVideoDir    = "LABELLER_VIDEO_DIR"
	EnvThreshold   = "LABELLER_THRESHOLD"
	EnvPolicy      = "LABELLER_POLICY"
	EnvPlateSlots  = "LABELLER_PLATE_SLOTS"
	EnvLabelSuffix = "LABELLER_LABEL_SUFFIX"
	EnvStore       = "LABELLER_STORE"
	EnvFFmpeg      = "LABELLER_FFMPEG"
	EnvFFprobe     = "LABELLER_FFPROBE"
	EnvHeadless    = "LABELLER_HEADLESS"
	EnvAuthToken   = "LABELLER_AUTH_TOKEN"

	// Database filename
	DBFilename = "labeller.db"

	// Upper bound for plate slots; slots are small integers shown as check boxes.
	MaxPlateSlots = 64
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFormat() string
	DataDir() string
	DBPath() string
	VideoDir() string
	Threshold() float64
	Policy() string
	PlateSlots() int
	LabelSuffix() string
	Store() string
	FFmpegPath() string
	FFprobePath() string
	Headless() bool
	AuthToken() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	PortValue        int     `env:"LABELLER_PORT" envDefault:"8353"`
	LogLevelValue    string  `env:"LABELLER_LOG_LEVEL" envDefault:"info"`
	LogFormatValue   string  `env:"LABELLER_LOG_FORMAT" envDefault:"json"`
	DataDirValue     string  `env:"LABELLER_DATA_DIR"`
	VideoDirValue    string  `env:"LABELLER_VIDEO_DIR"`
	ThresholdValue   float64 `env:"LABELLER_THRESHOLD" envDefault:"0.95"`
	PolicyValue      string  `env:"LABELLER_POLICY" envDefault:"set"`
	PlateSlotsValue  int     `env:"LABELLER_PLATE_SLOTS" envDefault:"8"`
	LabelSuffixValue string  `env:"LABELLER_LABEL_SUFFIX" envDefault:".json"`
	StoreValue       string  `env:"LABELLER_STORE" envDefault:"file"`
	FFmpegValue      string  `env:"LABELLER_FFMPEG"`
	FFprobeValue     string  `env:"LABELLER_FFPROBE"`
	HeadlessValue    bool    `env:"LABELLER_HEADLESS" envDefault:"false"`
	AuthTokenValue   string  `env:"LABELLER_AUTH_TOKEN"`
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.DataDirValue == "" {
		cfg.DataDirValue = homeRelative(DefaultDataDir)
	}
	if cfg.VideoDirValue == "" {
		cfg.VideoDirValue = homeRelative(DefaultVideoDir)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) validate() error {
	if c.PortValue < 1 || c.PortValue > 65535 {
		return fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
	}
	if c.ThresholdValue <= 0 || c.ThresholdValue >= 1 {
		return fmt.Errorf("invalid %s: threshold must be in (0, 1)", EnvThreshold)
	}
	if c.PlateSlotsValue < 1 || c.PlateSlotsValue > MaxPlateSlots {
		return fmt.Errorf("invalid %s: must be between 1 and %d", EnvPlateSlots, MaxPlateSlots)
	}

	c.PolicyValue = strings.ToLower(c.PolicyValue)
	switch c.PolicyValue {
	case "single", "set", "text":
	default:
		return fmt.Errorf("invalid %s: %q (want single, set or text)", EnvPolicy, c.PolicyValue)
	}

	c.StoreValue = strings.ToLower(c.StoreValue)
	switch c.StoreValue {
	case "file", "sqlite":
	default:
		return fmt.Errorf("invalid %s: %q (want file or sqlite)", EnvStore, c.StoreValue)
	}

	if c.LabelSuffixValue == "" {
		return fmt.Errorf("invalid %s: suffix must not be empty", EnvLabelSuffix)
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.PortValue
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.LogLevelValue
}

// LogFormat returns the log output format (json or text)
func (c *EnvConfig) LogFormat() string {
	return c.LogFormatValue
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.DataDirValue
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.DataDirValue, DBFilename)
}

// VideoDir is where recordings are looked up when a relative path is opened.
func (c *EnvConfig) VideoDir() string {
	return c.VideoDirValue
}

// Threshold returns the similarity at or below which a frame becomes a keyframe.
func (c *EnvConfig) Threshold() float64 {
	return c.ThresholdValue
}

func (c *EnvConfig) Policy() string {
	return c.PolicyValue
}

func (c *EnvConfig) PlateSlots() int {
	return c.PlateSlotsValue
}

func (c *EnvConfig) LabelSuffix() string {
	return c.LabelSuffixValue
}

func (c *EnvConfig) Store() string {
	return c.StoreValue
}

func (c *EnvConfig) FFmpegPath() string {
	return c.FFmpegValue
}

func (c *EnvConfig) FFprobePath() string {
	return c.FFprobeValue
}

func (c *EnvConfig) Headless() bool {
	return c.HeadlessValue
}

func (c *EnvConfig) AuthToken() string {
	return c.AuthTokenValue
}

// homeRelative joins rel onto the user's home directory.
func homeRelative(rel string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return rel
	}
	return filepath.Join(home, rel)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
