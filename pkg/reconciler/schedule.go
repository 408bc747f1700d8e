package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/cuemby/edgeagent/pkg/fileutil"
	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/metrics"
	"github.com/cuemby/edgeagent/pkg/system"
	"github.com/cuemby/edgeagent/pkg/types"
)

// RenderSchedule renders the table as a crontab document. Every expression
// must parse as a standard five-field cron spec.
func RenderSchedule(t types.ScheduleTable) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# edgeagent schedule v%d\n", t.Version)
	for _, e := range t.Entries {
		expr := strings.TrimSpace(e.Cron)
		cmd := strings.TrimSpace(e.Command)
		if cmd == "" {
			return "", fmt.Errorf("schedule entry %q has no command", expr)
		}
		if _, err := cron.ParseStandard(expr); err != nil {
			return "", fmt.Errorf("schedule entry %q: %w", expr, err)
		}
		fmt.Fprintf(&b, "%s %s\n", expr, cmd)
	}
	return b.String(), nil
}

// ScheduleReconciler converges the persisted crontab to the desired table
type ScheduleReconciler struct {
	path        string
	lockDir     string
	services    system.ServiceController
	cronService string
}

// NewScheduleReconciler creates a new ScheduleReconciler
func NewScheduleReconciler(path, lockDir string, services system.ServiceController, cronService string) *ScheduleReconciler {
	return &ScheduleReconciler{
		path:        path,
		lockDir:     lockDir,
		services:    services,
		cronService: cronService,
	}
}

// Reconcile rewrites the crontab and reloads cron once when the persisted
// document differs from the desired one, ignoring surrounding whitespace. An
// absent crontab counts as different.
func (r *ScheduleReconciler) Reconcile(ctx context.Context, t types.ScheduleTable) (bool, error) {
	logger := log.WithComponent("reconciler")

	desired, err := RenderSchedule(t)
	if err != nil {
		return false, err
	}

	lock, err := fileutil.LockFile(fileutil.LockPath(r.lockDir, r.path))
	if err != nil {
		return false, err
	}
	defer lock.Unlock()

	current, exists, err := fileutil.ReadOptional(r.path)
	if err != nil {
		return false, fmt.Errorf("failed to read crontab: %w", err)
	}
	if exists && strings.TrimSpace(string(current)) == strings.TrimSpace(desired) {
		logger.Debug().Str("path", r.path).Msg("Schedule up to date")
		return false, nil
	}

	if err := fileutil.WriteAtomic(r.path, []byte(desired), 0600); err != nil {
		return false, fmt.Errorf("failed to write crontab: %w", err)
	}
	metrics.ScheduleRewrites.Inc()
	logger.Info().Str("path", r.path).Int("version", t.Version).Msg("Schedule rewritten")

	if err := r.services.Restart(ctx, r.cronService); err != nil {
		return true, err
	}
	return true, nil
}
