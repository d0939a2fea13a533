// sonar.report monitors a single ultrasonic range transducer, learns the safe
// baseline distance for its environment, and emits a debounced danger signal
// for downstream obstacle-avoidance logic. One telemetry line per cycle goes
// to stdout; every cycle is also recorded to a local sqlite database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reef-data/sonar.report/internal/config"
	"github.com/reef-data/sonar.report/internal/pulse"
	"github.com/reef-data/sonar.report/internal/sonar"
	"github.com/reef-data/sonar.report/internal/sonardb"
	"github.com/reef-data/sonar.report/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Run in dev mode (replay fixtures instead of hardware)")
	serialPort = flag.String("port", "/dev/ttyUSB0", "Serial port of the sonar board (ignored in dev mode)")
	fixtures   = flag.String("fixtures", "fixtures.txt", "Echo profile replayed in dev mode")
	dbFile     = flag.String("db", "sonar_data.db", "Path to the telemetry database")
	tuningPath = flag.String("tuning", "", "Path to a tuning config JSON (defaults baked in when empty)")
)

const statsInterval = 30 * time.Second

func loadTuning() *config.TuningConfig {
	if *tuningPath != "" {
		cfg, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		return cfg
	}
	// Fall back to the canonical defaults file when running from a checkout,
	// else to the compiled-in defaults.
	if cfg, err := config.LoadTuningConfig(config.DefaultConfigPath); err == nil {
		return cfg
	}
	return config.EmptyTuningConfig()
}

func pipelineConfig(cfg *config.TuningConfig) sonar.PipelineConfig {
	return sonar.PipelineConfig{
		Sampler: sonar.SamplerConfig{
			Subsamples:       cfg.GetSubsampleCount(),
			InterSampleDelay: cfg.GetInterSampleDelay(),
			EchoMin:          sonar.EchoDuration(cfg.GetEchoMinMicros()),
			EchoMax:          sonar.EchoDuration(cfg.GetEchoMaxMicros()),
		},
		Converter: sonar.Converter{
			SpeedFactor: cfg.GetSpeedFactor(),
			MinDistCM:   cfg.GetMinDistanceCM(),
			MaxDistCM:   cfg.GetMaxDistanceCM(),
		},
		Filter: sonar.FilterConfig{
			Alpha:              cfg.GetSmoothingAlpha(),
			DropRejectFraction: cfg.GetDropRejectFraction(),
			StrikeThreshold:    cfg.GetStrikeThreshold(),
		},
		Classifier: sonar.ClassifierConfig{
			HysteresisCM: cfg.GetHysteresisCM(),
			SlopeWidthCM: cfg.GetSlopeWidthCM(),
			Window:       cfg.GetConfirmWindow(),
			EnterQuorum:  cfg.GetEnterQuorum(),
			ExitQuorum:   cfg.GetExitQuorum(),
		},
		BaselineSamples: cfg.GetBaselineSamples(),
		DangerMarginCM:  cfg.GetDangerMarginCM(),
		FixedEnterCM:    cfg.FixedEnterCM,
	}
}

func main() {
	flag.Parse()
	log.Printf("sonar.report %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	cfg := loadTuning()

	var src sonar.PulseSource
	if *devMode {
		data, err := os.ReadFile(*fixtures)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		profile, err := pulse.ParseProfile(data)
		if err != nil {
			log.Fatalf("failed to parse fixtures file: %v", err)
		}
		src = pulse.NewScriptedSource(profile, true)
		log.Printf("dev mode: replaying %d echo samples from %s", len(profile), *fixtures)
	} else {
		opts := pulse.DefaultSerialOptions()
		opts.EchoTimeout = cfg.GetEchoTimeout()
		opts.TriggerPulseWidthMicros = cfg.GetTriggerPulseWidth()
		s, err := pulse.OpenSerialSource(*serialPort, opts)
		if err != nil {
			log.Fatalf("failed to open sonar board: %v", err)
		}
		defer s.Close()
		src = s
	}

	db, err := sonardb.NewSonarDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	sessionID, err := db.BeginSession(cfg.GetMedium(), cfg)
	if err != nil {
		log.Fatalf("failed to begin session: %v", err)
	}
	log.Printf("session %s started (medium=%s, period=%s)", sessionID, cfg.GetMedium(), cfg.GetSamplePeriod())

	pipeline, err := sonar.NewPipeline(src, pipelineConfig(cfg))
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}
	stats := sonar.NewCycleStats()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println(sonar.CSVHeader)

	ticker := time.NewTicker(cfg.GetSamplePeriod())
	defer ticker.Stop()
	statsTicker := time.NewTicker(statsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			stats.LogStats()
			log.Printf("shutdown complete")
			return

		case <-statsTicker.C:
			stats.LogStats()

		case <-ticker.C:
			rec, err := pipeline.RunCycle(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				log.Printf("cycle failed: %v", err)
				continue
			}

			fmt.Println(rec.CSVLine())
			stats.AddCycle(rec)

			if err := db.RecordCycle(sessionID, rec); err != nil {
				log.Printf("failed to record cycle: %v", err)
			}
		}
	}
}
