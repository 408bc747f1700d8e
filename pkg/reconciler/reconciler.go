package reconciler

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/metrics"
	"github.com/cuemby/edgeagent/pkg/system"
	"github.com/cuemby/edgeagent/pkg/types"
)

// Locator recovers the control-plane base location
type Locator interface {
	Locate(ctx context.Context) (bool, error)
}

// NotifyFunc reports a completed pass. It runs after the schedule step.
type NotifyFunc func(ctx context.Context, report Report) error

// Report summarizes one update pass
type Report struct {
	Updated           []string
	Failed            []string
	Bootstrapped      bool
	ScheduleVersion   int
	ScheduleRewritten bool
	Restarted         []string
}

// Changed reports whether the pass modified the device
func (r Report) Changed() bool {
	return len(r.Updated) > 0 || r.ScheduleRewritten || r.Bootstrapped
}

// Reconciler drives an update pass: artifacts, base-location bootstrap,
// schedule, service restarts and the completion notice
type Reconciler struct {
	artifacts    *ArtifactSyncer
	schedule     *ScheduleReconciler
	services     system.ServiceController
	locationFile string
	locator      Locator
	notify       NotifyFunc
}

// NewReconciler creates a new reconciler
func NewReconciler(artifacts *ArtifactSyncer, schedule *ScheduleReconciler, services system.ServiceController) *Reconciler {
	return &Reconciler{
		artifacts: artifacts,
		schedule:  schedule,
		services:  services,
	}
}

// WithBootstrap runs locator when locationFile is absent
func (r *Reconciler) WithBootstrap(locationFile string, locator Locator) *Reconciler {
	r.locationFile = locationFile
	r.locator = locator
	return r
}

// WithNotifier sets the completion notice
func (r *Reconciler) WithNotifier(fn NotifyFunc) *Reconciler {
	r.notify = fn
	return r
}

// Run performs one pass. Artifact, bootstrap and notification failures are
// logged and recorded in the report; a schedule or restart failure is
// returned.
func (r *Reconciler) Run(ctx context.Context, artifacts []types.ArtifactDescriptor, table types.ScheduleTable) (Report, error) {
	logger := log.WithComponent("reconciler")
	timer := metrics.NewTimer()

	report := Report{ScheduleVersion: table.Version}
	var errs []error

	restart := map[string]bool{}
	for i, res := range r.artifacts.Sync(ctx, artifacts) {
		switch {
		case res.Err != nil:
			report.Failed = append(report.Failed, res.Name)
		case res.Changed:
			report.Updated = append(report.Updated, res.Name)
			if svc := artifacts[i].Restart; svc != "" {
				restart[svc] = true
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if r.locator != nil && r.locationFile != "" {
		if _, err := os.Stat(r.locationFile); errors.Is(err, os.ErrNotExist) {
			logger.Warn().Str("path", r.locationFile).Msg("Base location missing, bootstrapping")
			if _, err := r.locator.Locate(ctx); err != nil {
				logger.Error().Err(err).Msg("Base location bootstrap failed")
			} else {
				report.Bootstrapped = true
			}
		}
	}

	rewritten, err := r.schedule.Reconcile(ctx, table)
	report.ScheduleRewritten = rewritten
	if err != nil {
		errs = append(errs, fmt.Errorf("schedule: %w", err))
	}

	for _, a := range artifacts {
		svc := a.Restart
		if !restart[svc] {
			continue
		}
		delete(restart, svc)
		if err := r.services.Restart(ctx, svc); err != nil {
			errs = append(errs, fmt.Errorf("restart %s: %w", svc, err))
			continue
		}
		report.Restarted = append(report.Restarted, svc)
		logger.Info().Str("service", svc).Msg("Service restarted after artifact update")
	}

	if r.notify != nil {
		if err := r.notify(ctx, report); err != nil {
			logger.Warn().Err(err).Msg("Update notification failed")
		}
	}

	logger.Info().
		Strs("updated", report.Updated).
		Strs("failed", report.Failed).
		Bool("schedule_rewritten", report.ScheduleRewritten).
		Dur("duration", timer.Duration()).
		Msg("Update pass finished")

	return report, errors.Join(errs...)
}
