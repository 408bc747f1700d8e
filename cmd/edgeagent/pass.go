package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/edgeagent/pkg/agent"
	"github.com/cuemby/edgeagent/pkg/config"
	"github.com/cuemby/edgeagent/pkg/fileutil"
	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/metrics"
	"github.com/cuemby/edgeagent/pkg/retry"
	"github.com/cuemby/edgeagent/pkg/storage"
	"github.com/cuemby/edgeagent/pkg/types"
)

type passFunc func(ctx context.Context, env *agent.Env) (agent.Outcome, error)

// runPass executes one pass under a signal-aware context and records it in
// the journal. Overlapping runs of the same pass are skipped.
func runPass(cmd *cobra.Command, name string, fn passFunc) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	passID := uuid.NewString()
	log.WithPass(passID, name)
	logger := log.WithComponent("agent")

	lock, err := fileutil.TryLock(fileutil.LockPath(cfg.LockDir, "pass-"+name))
	if errors.Is(err, fileutil.ErrLocked) {
		logger.Info().Msg("Pass already running, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	defer lock.Unlock()

	manifest, err := config.LoadManifest(cfg.Manifest)
	if err != nil {
		return err
	}
	env := agent.NewEnv(cfg, manifest, "edgeagent/"+Version)

	started := time.Now()
	timer := metrics.NewTimer()
	logger.Info().Msg("Pass started")

	out, err := fn(ctx, env)

	timer.ObserveDurationVec(metrics.PassDuration, name)
	rec := types.PassRecord{
		ID:       passID,
		Command:  name,
		Started:  started.UTC(),
		Duration: timer.Duration(),
		Outcome:  out.Result,
		Detail:   out.Detail,
	}
	switch {
	case errors.Is(err, retry.ErrExhausted):
		rec.Outcome = types.OutcomeExhausted
		rec.Detail = err.Error()
	case err != nil:
		rec.Outcome = types.OutcomeFailed
		rec.Detail = err.Error()
	}

	journal(rec)
	if werr := metrics.WriteTextfile(cfg.MetricsTextfile); werr != nil {
		logger.Warn().Err(werr).Str("path", cfg.MetricsTextfile).Msg("Failed to write metrics textfile")
	}

	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.
		Str("outcome", string(rec.Outcome)).
		Dur("duration", rec.Duration).
		Str("detail", rec.Detail).
		Msg("Pass finished")
	return err
}

// openJournal opens the pass journal at path
var openJournal = func(path string) (storage.Store, error) {
	store, err := storage.NewBoltStore(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// journal records rec. The journal is informational, so failures are only
// logged.
func journal(rec types.PassRecord) {
	logger := log.WithComponent("journal")

	store, err := openJournal(cfg.StateDB)
	if err != nil {
		logger.Warn().Err(err).Msg("Journal unavailable")
		return
	}
	defer store.Close()

	recordPass(store, rec, cfg.JournalRetention)
}

func recordPass(store storage.Store, rec types.PassRecord, keep int) {
	logger := log.WithComponent("journal")

	if err := store.Record(rec); err != nil {
		logger.Warn().Err(err).Msg("Failed to record pass")
		return
	}
	if removed, err := store.Prune(keep); err != nil {
		logger.Warn().Err(err).Msg("Failed to prune journal")
	} else if removed > 0 {
		logger.Debug().Int("removed", removed).Msg("Journal pruned")
	}
}
