package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"jordanella.com/scroll-stitch/internal/config"
	"jordanella.com/scroll-stitch/internal/cv"
	"jordanella.com/scroll-stitch/internal/database"
	"jordanella.com/scroll-stitch/internal/encode"
	"jordanella.com/scroll-stitch/internal/events"
	"jordanella.com/scroll-stitch/internal/logging"
	"jordanella.com/scroll-stitch/internal/scroll"
	"jordanella.com/scroll-stitch/pkg/profiles"
)

func main() {
	configPath := flag.String("config", "scrollshot.ini", "Path to settings file")
	regionFlag := flag.String("region", "", "Capture region as x,y,width,height")
	directionFlag := flag.String("direction", "", "Scroll direction: vertical or horizontal")
	profileFlag := flag.String("profile", "", "Named capture profile")
	outPath := flag.String("out", "", "Output file (default: <output dir>/scroll_<time>.<format>)")
	rate := flag.Float64("rate", 0, "Captures per second")
	threshold := flag.Int("threshold", 0, "Minimum match similarity, 1-100")
	maxAttempts := flag.Int("max-attempts", 0, "Maximum frames to process")
	logLevel := flag.String("log-level", "", "DEBUG, INFO, WARN or ERROR")
	history := flag.Int("history", 0, "Print the most recent N sessions and exit")
	deleteID := flag.String("delete", "", "Delete a session from the history and exit")
	vacuum := flag.Bool("vacuum", false, "Compact the history database and exit")
	writeConfig := flag.Bool("write-config", false, "Write the effective settings to -config and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *writeConfig {
		if err := config.SaveToINI(cfg, *configPath); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		log.Printf("Wrote settings to %s", *configPath)
		return
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger := logging.NewLogger("Scrollshot").SetMinLevel(level)

	if *history > 0 || *deleteID != "" || *vacuum {
		if err := maintainHistory(cfg.DatabasePath, *history, *deleteID, *vacuum, logger); err != nil {
			log.Fatalf("History: %v", err)
		}
		return
	}

	// Region and direction: flag, then profile, then config
	opts := cfg.SessionOptions()
	regionStr, directionStr := cfg.Region, cfg.Direction

	profileName := cfg.Profile
	if *profileFlag != "" {
		profileName = *profileFlag
	}
	var region cv.Region
	direction, err := cv.ParseDirection(directionStr)
	if err != nil {
		log.Fatalf("Invalid direction: %v", err)
	}

	if profileName != "" {
		registry, err := loadProfiles(cfg.ProfilesPath)
		if err != nil {
			log.Fatalf("Failed to load profiles: %v", err)
		}
		logger.Debug(fmt.Sprintf("Loaded %d profiles from %s", registry.Count(), cfg.ProfilesPath))
		profile, ok := registry.Get(profileName)
		if !ok {
			log.Fatalf("Unknown profile %q (available: %v)", profileName, registry.Names())
		}
		region, direction = profile.Region, profile.Direction
		opts = profile.Apply(opts)
		regionStr = ""
	}

	if *regionFlag != "" {
		regionStr = *regionFlag
	}
	if regionStr != "" {
		if region, err = cv.ParseRegion(regionStr); err != nil {
			log.Fatalf("Invalid region: %v", err)
		}
	}
	if region.Width == 0 {
		log.Fatalf("No capture region: pass -region, -profile or set [Capture] region")
	}
	if *directionFlag != "" {
		if direction, err = cv.ParseDirection(*directionFlag); err != nil {
			log.Fatalf("Invalid direction: %v", err)
		}
	}

	if err := applyOverrides(&opts, *rate, *threshold, *maxAttempts); err != nil {
		log.Fatalf("Invalid flags: %v", err)
	}

	format, err := encode.ParseFormat(cfg.OutputFormat)
	if err != nil {
		log.Fatalf("Invalid output format: %v", err)
	}
	output := *outPath
	if output == "" {
		name := fmt.Sprintf("scroll_%s%s", time.Now().Format("2006-01-02_15-04-05"), format.Extension())
		output = filepath.Join(cfg.OutputDir, name)
	}

	if err := run(cfg, region, direction, opts, output, logger); err != nil {
		logger.Error("Capture failed", err)
		os.Exit(1)
	}
}

// applyOverrides sets the command line tunables on opts. Zero leaves a
// tunable unchanged.
func applyOverrides(opts *scroll.Options, rate float64, threshold, maxAttempts int) error {
	if rate < 0 {
		return fmt.Errorf("%w: rate must be positive, got %g", scroll.ErrInvalidRequest, rate)
	}
	if threshold < 0 || threshold > 100 {
		return fmt.Errorf("%w: threshold must be in 1-100, got %d", scroll.ErrInvalidRequest, threshold)
	}
	if maxAttempts < 0 {
		return fmt.Errorf("%w: max-attempts must be positive, got %d", scroll.ErrInvalidRequest, maxAttempts)
	}

	if rate > 0 {
		opts.SampleRate = rate
	}
	if threshold > 0 {
		opts.MatchThreshold = uint8(threshold)
	}
	if maxAttempts > 0 {
		opts.MaxScrollAttempts = maxAttempts
	}
	return nil
}

// loadProfiles reads a single profiles file, or every YAML file when path
// is a directory
func loadProfiles(path string) (*profiles.Registry, error) {
	registry := profiles.NewRegistry()

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		err = registry.LoadFromDirectory(path)
	} else {
		err = registry.LoadFromFile(path)
	}
	if err != nil {
		return nil, err
	}
	return registry, nil
}

// loadConfig reads path, falling back to defaults when it does not exist
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.NewDefaultConfig(), nil
	}
	return config.LoadFromINI(path)
}

func run(cfg *config.Config, region cv.Region, direction cv.Direction, opts scroll.Options, output string, logger *logging.Logger) error {
	bus := events.NewEventBus(256)

	if cfg.LoggingEnabled {
		eventLogger, err := logging.NewEventLogger(bus, cfg.LogDir)
		if err != nil {
			return err
		}
		defer eventLogger.Close()
		logger.Info(fmt.Sprintf("Writing events to %s", eventLogger.Path()))
	}

	var db *database.DB
	if cfg.RecordHistory {
		var err error
		db, err = openHistory(cfg.DatabasePath, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		recorder := database.NewErrorRecorder(db, bus, logger.Named("Database"))
		defer recorder.Close()
	}

	capturer := cv.NewScreenCapturer()
	engine := scroll.NewEngine(capturer, capturer).
		WithLogger(logger.Named("ScrollEngine")).
		WithEventBus(bus)

	// Drain pending events before the log file and database close
	defer bus.Stop()

	if err := engine.Init(region, direction, opts); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoWithContext("Capturing; scroll the content, press Ctrl+C to finish", map[string]interface{}{
		"region":    region.String(),
		"direction": direction.String(),
		"rate":      opts.SampleRate,
	})

	shot, err := scroll.NewScheduler(engine).Run(ctx)
	if err != nil {
		return err
	}

	if err := encode.Save(output, shot.Image); err != nil {
		return err
	}

	logger.InfoWithContext("Screenshot saved", map[string]interface{}{
		"path":        output,
		"width":       shot.Width,
		"height":      shot.Height,
		"frame_count": shot.FrameCount,
		"dropped":     shot.DroppedFrames,
		"reason":      string(shot.Reason),
	})

	if db != nil {
		record := &database.CaptureSession{
			ID:           shot.ID,
			StartedAt:    shot.StartedAt,
			FinishedAt:   shot.FinishedAt,
			Region:       shot.Region.String(),
			Direction:    shot.Direction.String(),
			DisplayIndex: shot.Display.Index,
			FrameCount:   shot.FrameCount,
			Width:        shot.Width,
			Height:       shot.Height,
			Reason:       string(shot.Reason),
			OutputPath:   &output,
		}
		if err := db.RecordSession(record); err != nil {
			logger.Error("Failed to record session", err)
		}
	}

	return nil
}

func openHistory(path string, logger *logging.Logger) (*database.DB, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	db.WithLogger(logger.Named("Database"))

	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
