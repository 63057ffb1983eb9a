package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/internal/anomaly"
	"github.com/wardenhq/warden/internal/api"
	"github.com/wardenhq/warden/internal/breakout"
	"github.com/wardenhq/warden/internal/clock"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/escalation"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/modes"
	"github.com/wardenhq/warden/internal/monitor"
	"github.com/wardenhq/warden/internal/profile"
	"github.com/wardenhq/warden/internal/telemetry"
	"github.com/wardenhq/warden/internal/tracking"
	"github.com/wardenhq/warden/internal/vitals"
	"github.com/wardenhq/warden/internal/websocket"
)

func runMonitor() {
	logging.Init(logging.Config{Format: "auto", Level: "info", Component: "warden"})

	cfg, err := config.Load(flagEnvFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "warden"})

	if flagStateFile == "" {
		log.Fatal().Msg("--state-file is required")
	}

	log.Info().Str("version", Version).Msg("Starting warden")

	defaults, err := profile.LoadDefaults(cfg.ThresholdsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load threshold defaults")
	}

	store, err := profile.NewStore(profile.DefaultStoreConfig(cfg.DataDir))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open profile store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close profile store")
		}
	}()

	sysClock := clock.System{}
	learner := profile.NewLearner(sysClock, defaults)
	if persisted, err := store.LoadAll(); err != nil {
		log.Error().Err(err).Msg("Failed to load persisted profiles, starting cold")
	} else {
		learner.Seed(persisted)
		log.Info().Int("profiles", len(persisted)).Msg("Seeded duration profiles")
	}

	tracker := tracking.New(sysClock)
	analytics := breakout.NewAnalytics(sysClock)

	runDir := filepath.Dir(flagStateFile)
	executor := newActionFileExecutor(filepath.Join(runDir, "warden-actions.jsonl"), flagStateFile)
	snapshots := newCheckpointDir(filepath.Join(runDir, "checkpoints"))
	manager := breakout.NewManager(sysClock, sysClock, executor, snapshots, analytics)

	metrics := telemetry.New()

	source := newStateFileSource(flagStateFile)

	var collector *vitals.Collector
	if cfg.TargetPID > 0 {
		collector, err = vitals.NewCollector(cfg.TargetPID)
		if err != nil {
			log.Warn().Err(err).Int32("pid", cfg.TargetPID).Msg("Vitals sampling disabled")
		}
	}

	mon := monitor.New(monitor.Options{
		Clock:      sysClock,
		Classifier: modes.NewRuleClassifier(),
		Tracker:    tracker,
		Learner:    learner,
		Saver:      store,
		Detector:   anomaly.NewDetector(sysClock),
		Breakouts:  manager,
		Analytics:  analytics,
		Scorer:     source,
		Metrics:    metrics,
		OnReset: func(tr escalation.Transition) {
			// Terminal condition for this subsystem: hand control to
			// the external checkpoint/reset machinery.
			log.Warn().Str("transition", tr.ID).Msg("Reset condition reached, signaling agent reset")
			if err := snapshots.RequestReset(tr.ID); err != nil {
				log.Error().Err(err).Msg("Failed to signal reset")
			}
		},
		Config: monitor.Config{AnomalyLogSize: cfg.AnomalyLogSize},
	})

	hub := websocket.NewHub(func() interface{} { return mon.Status(20) })
	mon.OnAnomaly(func(a anomaly.Anomaly) { hub.Broadcast("anomaly", a) })

	server := api.NewServer(cfg.ListenAddr, mon, metrics, hub)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	stopHub := make(chan struct{})

	g.Go(func() error {
		hub.Run(stopHub)
		return nil
	})
	g.Go(func() error {
		return server.ListenAndServe()
	})
	g.Go(func() error {
		<-ctx.Done()
		close(stopHub)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		tickLoop(ctx, cfg, mon, source, collector, hub)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Warden exited with error")
	}
	log.Info().Msg("Warden stopped")
}

// tickLoop drives the monitor. The interval follows the escalation
// tier: higher tiers watch the agent more closely.
func tickLoop(ctx context.Context, cfg config.Config, mon *monitor.Monitor, source *stateFileSource, collector *vitals.Collector, hub *websocket.Hub) {
	interval := cfg.TickInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		observeOnce(ctx, mon, source, collector, hub)

		suggested := escalation.CheckInterval(mon.Tier())
		if suggested < cfg.TickInterval {
			interval = suggested
		} else {
			interval = cfg.TickInterval
		}
		timer.Reset(interval)
	}
}

// observeOnce performs one monitor tick. A missing, malformed, or
// stale state file still goes to the monitor as an empty snapshot: the
// open mode keeps aging under anomaly detection, and a dark state
// source escalates through the unavailable confidence signal instead
// of silencing the watchdog.
func observeOnce(ctx context.Context, mon *monitor.Monitor, source *stateFileSource, collector *vitals.Collector, hub *websocket.Hub) monitor.TickReport {
	snap, ok := source.ReadSnapshot()
	if !ok {
		log.Debug().Msg("No fresh agent state this tick")
	} else if collector != nil {
		v := collector.Sample()
		if snap.Labels == nil {
			snap.Labels = make(map[string]string)
		}
		for k, val := range v.Labels() {
			snap.Labels[k] = val
		}
	}

	report := mon.Update(ctx, snap)
	if len(report.Anomalies) > 0 || report.Breakout != nil {
		hub.Broadcast("status", mon.Status(20))
	}
	return report
}
