// Command stinttracker is the StintFlow tracker agent: it polls the
// simulator's shared memory for pit activity and records stints into
// the shared document store.
//
// One tracker runs per workstation. Agents coordinate only through the
// store: concurrent observers of the same pit-out converge on a single
// canonical record, and stale agents are pruned collectively.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stintflow/config"
	"stintflow/logging"
	"stintflow/metrics"
	"stintflow/store"
	"stintflow/telemetry"
	"stintflow/tires"
	"stintflow/tracker"
)

type options struct {
	sessionID   string
	drivers     []string
	practice    bool
	agentName   string
	dryRun      bool
	metricsAddr string
	logLevel    string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "stinttracker",
		Short:         "Track stints by monitoring the simulator's shared memory",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.sessionID, "session-id", "", "id of the session to create stints in")
	flags.StringSliceVar(&opts.drivers, "drivers", nil, "driver names for this session")
	flags.BoolVar(&opts.practice, "practice", false, "practice mode: player must return to the garage before tracking starts")
	flags.StringVar(&opts.agentName, "agent-name", "", "agent registry name (default: host name)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "keep housekeeping but skip shared-memory access and database writes")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9137)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warning, error)")

	cmd.MarkFlagRequired("session-id")
	cmd.MarkFlagRequired("drivers")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Dir:           logging.DefaultDir(),
		Level:         opts.logLevel,
		RetentionDays: settings.Logging.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Close()

	events := tracker.NewEmitter(nil)

	agentName := opts.agentName
	if agentName == "" {
		agentName = settings.Agent.Name
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to the document store. In dry-run mode a missing store is
	// tolerated: the loop keeps its cadence with an in-memory persister
	// and no registry.
	db, err := store.Connect(ctx, settings, logger)
	if err != nil {
		if !opts.dryRun {
			return fmt.Errorf("connect to document store: %w", err)
		}
		logger.WithAction("stint_tracker", "main").
			Warnf("dry run without document store: %v", err)
		db = nil
	}
	if db != nil {
		defer db.Close(context.Background())

		if err := db.EnsureIndexes(ctx); err != nil {
			logger.WithAction("database", "ensure_indexes").
				Warnf("index creation failed: %v", err)
		}
	}

	var (
		persister store.StintPersister
		registry  tracker.Registry
		sessions  tracker.SessionSource
	)
	if opts.dryRun || db == nil {
		persister = store.NewMemoryStintStore()
	} else {
		persister = db
	}
	if db != nil {
		registry = db
		sessions = db

		if _, err := db.RegisterAgent(ctx, agentName); err != nil {
			if errors.Is(err, store.ErrNameConflict) {
				// A second tracker with this identity would pollute the
				// registry; refuse to track.
				events.Error(tracker.EventRegistrationConflict)
				return fmt.Errorf("agent name %q already registered", agentName)
			}
			logger.WithAction("stint_tracker", "agent_registration").
				Warnf("failed to register agent %q: %v", agentName, err)
		}
		defer func() {
			// Best-effort unregister with a fresh context; stale-agent
			// cleanup covers the failure case.
			unregCtx, cancel := context.WithTimeout(context.Background(), store.CleanupInterval)
			defer cancel()
			if err := db.DeleteAgent(unregCtx, agentName); err != nil {
				logger.WithAction("stint_tracker", "agent_registration").
					Debugf("failed to unregister agent %q: %v", agentName, err)
			}
		}()
	}

	var m *metrics.Metrics
	if opts.metricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := m.ListenAndServe(ctx, opts.metricsAddr); err != nil {
				logger.WithAction("stint_tracker", "metrics").
					Warnf("metrics endpoint failed: %v", err)
			}
		}()
	}

	reader, err := telemetry.NewSharedMemoryReader()
	if err != nil {
		return fmt.Errorf("prepare telemetry reader: %w", err)
	}
	defer reader.Close()

	extractor := tires.NewExtractor("", logger)

	t := tracker.New(tracker.Config{
		SessionID: opts.sessionID,
		Drivers:   opts.drivers,
		Practice:  opts.practice,
		AgentName: agentName,
		DryRun:    opts.dryRun,
	}, reader, extractor, persister, registry, sessions, events, logger, m)

	logger.WithAction("stint_tracker", "main").
		Infof("starting stint tracker for session %s", opts.sessionID)

	if err := t.Run(ctx); err != nil {
		return fmt.Errorf("tracker loop: %w", err)
	}

	logger.WithAction("stint_tracker", "main").Info("stint tracker stopped")
	return nil
}
