package config

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"

	"jordanella.com/scroll-stitch/internal/cv"
	"jordanella.com/scroll-stitch/internal/scroll"
)

// Config holds the settings read from scrollshot.ini
type Config struct {
	// Capture
	Region             string // "x,y,width,height"; empty means the profile or flag decides
	Direction          string
	Profile            string
	ProfilesPath       string
	SampleRate         float64
	MaxScrollAttempts  int
	MaxIdleCycles      int
	MaxCaptureFailures int
	QueueCapacity      int

	// Matcher
	MatchThreshold      int
	Tolerance           int
	SampleStride        int
	MinOverlap          int
	DuplicateSimilarity float64

	// Output
	OutputDir    string
	OutputFormat string

	// Database
	DatabasePath  string
	RecordHistory bool

	// Logging
	LogLevel       string
	LogDir         string
	LoggingEnabled bool
}

// LoadFromINI loads configuration from an INI file. Missing keys keep
// their defaults.
func LoadFromINI(path string) (*Config, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	def := NewDefaultConfig()
	config := &Config{}

	capture := cfg.Section("Capture")
	config.Region = capture.Key("region").MustString(def.Region)
	config.Direction = capture.Key("direction").MustString(def.Direction)
	config.Profile = capture.Key("profile").MustString(def.Profile)
	config.ProfilesPath = capture.Key("profilesPath").MustString(def.ProfilesPath)
	config.SampleRate = capture.Key("sampleRate").MustFloat64(def.SampleRate)
	config.MaxScrollAttempts = capture.Key("maxScrollAttempts").MustInt(def.MaxScrollAttempts)
	config.MaxIdleCycles = capture.Key("maxIdleCycles").MustInt(def.MaxIdleCycles)
	config.MaxCaptureFailures = capture.Key("maxCaptureFailures").MustInt(def.MaxCaptureFailures)
	config.QueueCapacity = capture.Key("queueCapacity").MustInt(def.QueueCapacity)

	matcher := cfg.Section("Matcher")
	config.MatchThreshold = matcher.Key("threshold").MustInt(def.MatchThreshold)
	config.Tolerance = matcher.Key("tolerance").MustInt(def.Tolerance)
	config.SampleStride = matcher.Key("sampleStride").MustInt(def.SampleStride)
	config.MinOverlap = matcher.Key("minOverlap").MustInt(def.MinOverlap)
	config.DuplicateSimilarity = matcher.Key("duplicateSimilarity").MustFloat64(def.DuplicateSimilarity)

	output := cfg.Section("Output")
	config.OutputDir = output.Key("dir").MustString(def.OutputDir)
	config.OutputFormat = strings.ToLower(output.Key("format").MustString(def.OutputFormat))

	database := cfg.Section("Database")
	config.DatabasePath = database.Key("path").MustString(def.DatabasePath)
	config.RecordHistory = database.Key("recordHistory").MustBool(def.RecordHistory)

	logging := cfg.Section("Logging")
	config.LogLevel = logging.Key("level").MustString(def.LogLevel)
	config.LogDir = logging.Key("dir").MustString(def.LogDir)
	config.LoggingEnabled = logging.Key("eventLog").MustBool(def.LoggingEnabled)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return config, nil
}

// NewDefaultConfig returns the settings used when no file is present
func NewDefaultConfig() *Config {
	opts := scroll.DefaultOptions()
	return &Config{
		Direction:           cv.Vertical.String(),
		ProfilesPath:        "profiles.yaml",
		SampleRate:          opts.SampleRate,
		MaxScrollAttempts:   opts.MaxScrollAttempts,
		MaxIdleCycles:       opts.MaxIdleCycles,
		MaxCaptureFailures:  opts.MaxCaptureFailures,
		QueueCapacity:       opts.QueueCapacity,
		MatchThreshold:      int(opts.MatchThreshold),
		Tolerance:           int(opts.Match.Tolerance),
		SampleStride:        opts.Match.SampleStride,
		MinOverlap:          opts.Match.MinOverlap,
		DuplicateSimilarity: opts.Match.DuplicateSimilarity,
		OutputDir:           "captures",
		OutputFormat:        "png",
		DatabasePath:        "scrollshot.db",
		RecordHistory:       true,
		LogLevel:            "INFO",
		LogDir:              "logs",
		LoggingEnabled:      false,
	}
}

// Validate checks the values that cannot be caught later by session options
func (c *Config) Validate() error {
	if c.Region != "" {
		if _, err := cv.ParseRegion(c.Region); err != nil {
			return err
		}
	}
	if _, err := cv.ParseDirection(c.Direction); err != nil {
		return err
	}
	if c.Tolerance < 0 || c.Tolerance > 255 {
		return fmt.Errorf("tolerance must be in 0-255, got %d", c.Tolerance)
	}
	if c.MatchThreshold < 1 || c.MatchThreshold > 100 {
		return fmt.Errorf("threshold must be in 1-100, got %d", c.MatchThreshold)
	}
	return nil
}

// SessionOptions converts the capture and matcher sections to session options
func (c *Config) SessionOptions() scroll.Options {
	opts := scroll.DefaultOptions()
	opts.SampleRate = c.SampleRate
	opts.MatchThreshold = uint8(c.MatchThreshold)
	opts.MaxScrollAttempts = c.MaxScrollAttempts
	opts.MaxIdleCycles = c.MaxIdleCycles
	opts.MaxCaptureFailures = c.MaxCaptureFailures
	opts.QueueCapacity = c.QueueCapacity
	opts.Match = *cv.NewScrollMatchConfig(
		cv.WithThreshold(float64(c.MatchThreshold)),
		cv.WithTolerance(uint8(c.Tolerance)),
		cv.WithStride(c.SampleStride),
		cv.WithMinOverlap(c.MinOverlap),
		cv.WithDuplicateSimilarity(c.DuplicateSimilarity),
	)
	return opts
}

// SaveToINI saves configuration to an INI file
func SaveToINI(config *Config, path string) error {
	cfg := ini.Empty()

	capture := cfg.Section("Capture")
	capture.Key("region").SetValue(config.Region)
	capture.Key("direction").SetValue(config.Direction)
	capture.Key("profile").SetValue(config.Profile)
	capture.Key("profilesPath").SetValue(config.ProfilesPath)
	capture.Key("sampleRate").SetValue(fmt.Sprintf("%g", config.SampleRate))
	capture.Key("maxScrollAttempts").SetValue(fmt.Sprintf("%d", config.MaxScrollAttempts))
	capture.Key("maxIdleCycles").SetValue(fmt.Sprintf("%d", config.MaxIdleCycles))
	capture.Key("maxCaptureFailures").SetValue(fmt.Sprintf("%d", config.MaxCaptureFailures))
	capture.Key("queueCapacity").SetValue(fmt.Sprintf("%d", config.QueueCapacity))

	matcher := cfg.Section("Matcher")
	matcher.Key("threshold").SetValue(fmt.Sprintf("%d", config.MatchThreshold))
	matcher.Key("tolerance").SetValue(fmt.Sprintf("%d", config.Tolerance))
	matcher.Key("sampleStride").SetValue(fmt.Sprintf("%d", config.SampleStride))
	matcher.Key("minOverlap").SetValue(fmt.Sprintf("%d", config.MinOverlap))
	matcher.Key("duplicateSimilarity").SetValue(fmt.Sprintf("%g", config.DuplicateSimilarity))

	output := cfg.Section("Output")
	output.Key("dir").SetValue(config.OutputDir)
	output.Key("format").SetValue(config.OutputFormat)

	database := cfg.Section("Database")
	database.Key("path").SetValue(config.DatabasePath)
	database.Key("recordHistory").SetValue(fmt.Sprintf("%t", config.RecordHistory))

	logging := cfg.Section("Logging")
	logging.Key("level").SetValue(config.LogLevel)
	logging.Key("dir").SetValue(config.LogDir)
	logging.Key("eventLog").SetValue(fmt.Sprintf("%t", config.LoggingEnabled))

	return cfg.SaveTo(path)
}
