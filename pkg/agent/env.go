package agent

import (
	"context"
	"fmt"

	"github.com/cuemby/edgeagent/pkg/client"
	"github.com/cuemby/edgeagent/pkg/config"
	"github.com/cuemby/edgeagent/pkg/delivery"
	"github.com/cuemby/edgeagent/pkg/identity"
	"github.com/cuemby/edgeagent/pkg/led"
	"github.com/cuemby/edgeagent/pkg/locator"
	"github.com/cuemby/edgeagent/pkg/nodestore"
	"github.com/cuemby/edgeagent/pkg/nodesync"
	"github.com/cuemby/edgeagent/pkg/reconciler"
	"github.com/cuemby/edgeagent/pkg/retry"
	"github.com/cuemby/edgeagent/pkg/system"
	"github.com/cuemby/edgeagent/pkg/telemetry"
	"github.com/cuemby/edgeagent/pkg/types"
	"github.com/cuemby/edgeagent/pkg/watchdog"
)

// Env carries everything a pass needs. It is built once per process and
// handed to the components explicitly.
type Env struct {
	Config   *config.Config
	Manifest *config.Manifest

	Probe      led.Probe
	Interfaces system.InterfaceController
	Services   system.ServiceController

	// Fetcher downloads absolute URLs (artifacts, base location, deliveries)
	Fetcher *client.Client

	// UserAgent is sent to the control plane
	UserAgent string
}

// NewEnv wires the OS-backed collaborators from cfg
func NewEnv(cfg *config.Config, manifest *config.Manifest, userAgent string) *Env {
	runner := system.NewExecRunner()
	e := &Env{
		Config:     cfg,
		Manifest:   manifest,
		Probe:      led.NewSysfsProbe(cfg.LEDDir),
		Interfaces: system.NewNetIfd(runner),
		Services:   system.NewInitD(runner).WithDir(cfg.InitDir),
		UserAgent:  userAgent,
	}
	e.Fetcher = client.New("", e.transportOptions())
	return e
}

func (e *Env) transportOptions() client.Options {
	return client.Options{
		Timeout:   e.Config.HTTPTimeout,
		Retry:     e.FetchPolicy(),
		UserAgent: e.UserAgent,
	}
}

// apiOptions leaves retries to the callers' ReportPolicy loops, which
// re-run the whole token, lookup and post exchange
func (e *Env) apiOptions() client.Options {
	opts := e.transportOptions()
	opts.Retry = retry.Policy{MaxAttempts: 1}
	return opts
}

// ReportPolicy drives control-plane exchanges
func (e *Env) ReportPolicy(name string) retry.Policy {
	return retry.Policy{
		Name:        name,
		MaxAttempts: e.Config.ReportAttempts,
		Delay:       e.Config.ReportDelay,
		Backoff:     retry.BackoffExponential,
		MaxDelay:    30 * e.Config.ReportDelay,
	}
}

// FetchPolicy drives transport-level retries of downloads
func (e *Env) FetchPolicy() retry.Policy {
	return retry.Policy{
		Name:        "fetch",
		MaxAttempts: e.Config.FetchAttempts,
		Delay:       e.Config.FetchDelay,
		Backoff:     retry.BackoffExponential,
	}
}

// WatchPolicy drives the connectivity watchdog
func (e *Env) WatchPolicy() retry.Policy {
	return retry.Policy{
		Name:        "watchdog",
		MaxAttempts: e.Config.WatchAttempts,
		Delay:       e.Config.WatchDelay,
		Threshold:   e.Config.WatchThreshold,
	}
}

// EnablePolicy bounds attempts at bringing the WAN interface up
func (e *Env) EnablePolicy() retry.Policy {
	return retry.Policy{
		Name:        "enable-interface",
		MaxAttempts: e.Config.EnableAttempts,
		Delay:       e.Config.EnableDelay,
	}
}

// Identity resolves the persisted device identity
func (e *Env) Identity() (types.DeviceIdentity, error) {
	return identity.Resolve(e.Config.SerialFile, e.Config.NvmemPath)
}

// API returns a control-plane client rooted at the persisted base location
func (e *Env) API() (*client.Client, error) {
	base, err := config.ReadBaseURL(e.Config.ServerLocationFile)
	if err != nil {
		return nil, err
	}
	return client.New(base, e.apiOptions()), nil
}

// Sampler returns the LED connectivity sampler
func (e *Env) Sampler() *led.Sampler {
	return led.NewSampler(e.Probe)
}

// Reporter returns a telemetry reporter whose escalation is remediation
func (e *Env) Reporter(remediation func(ctx context.Context) error) (*telemetry.Reporter, error) {
	id, err := e.Identity()
	if err != nil {
		return nil, err
	}
	api, err := e.API()
	if err != nil {
		return nil, err
	}
	policy := e.ReportPolicy("telemetry")
	policy.Remediation = remediation
	return telemetry.NewReporter(api, id, policy), nil
}

func (e *Env) newWatchdog() *watchdog.Watchdog {
	return watchdog.New(e.Sampler(), e.Services, e.Config.TunnelService, e.WatchPolicy())
}

// Validator returns the router validator
func (e *Env) Validator() *watchdog.Validator {
	api := func() (watchdog.DeviceAPI, error) {
		c, err := e.API()
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return watchdog.NewValidator(e.Interfaces, e.Config.WANInterface, api, e.Identity).
		WithEnablePolicy(e.EnablePolicy()).
		WithLookupPolicy(e.ReportPolicy("validate"))
}

// Locator returns the base-location locator
func (e *Env) Locator() *locator.Locator {
	return locator.New(e.Fetcher, e.Config.LocatorURL, e.Config.ServerLocationFile).
		WithLockDir(e.Config.LockDir)
}

// NodeSyncer returns the tunnel node synchronizer
func (e *Env) NodeSyncer() (*nodesync.Syncer, error) {
	id, err := e.Identity()
	if err != nil {
		return nil, err
	}
	api, err := e.API()
	if err != nil {
		return nil, err
	}
	store := nodestore.NewFileStore(e.Config.NodeStore).WithLockDir(e.Config.LockDir)
	return nodesync.NewSyncer(
		nodesync.NewControlPlaneSource(api, id),
		store,
		nodesync.NewFileLedger(e.Config.LinkFile),
		e.Services,
		e.Config.TunnelService,
	), nil
}

// Reconciler returns the update-pass reconciler. The completion notice is
// built lazily because the pass may bootstrap the base location first.
func (e *Env) Reconciler() *reconciler.Reconciler {
	artifacts := reconciler.NewArtifactSyncer(e.Fetcher, e.Config.LockDir).WithPause(e.Config.ArtifactPause)
	schedule := reconciler.NewScheduleReconciler(e.Config.Crontab, e.Config.LockDir, e.Services, e.Config.CronService)

	return reconciler.NewReconciler(artifacts, schedule, e.Services).
		WithBootstrap(e.Config.ServerLocationFile, e.Locator()).
		WithNotifier(func(ctx context.Context, report reconciler.Report) error {
			reporter, err := e.Reporter(nil)
			if err != nil {
				return fmt.Errorf("notifier unavailable: %w", err)
			}
			return reporter.Report(ctx, types.EventUpdateCompleted, telemetry.Payload{
				Artifacts:       report.Updated,
				ScheduleVersion: report.ScheduleVersion,
			})
		})
}

// Deliveries returns the file delivery processor
func (e *Env) Deliveries() (*delivery.Processor, error) {
	id, err := e.Identity()
	if err != nil {
		return nil, err
	}
	api, err := e.API()
	if err != nil {
		return nil, err
	}
	return delivery.NewProcessor(api, id, e.ReportPolicy("delivery")).WithLockDir(e.Config.LockDir), nil
}
