package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/telemetry"
	"github.com/cuemby/edgeagent/pkg/types"
)

// Outcome is what a pass reports to the journal
type Outcome struct {
	Result types.PassOutcome
	Detail string
}

func outcome(changed bool, format string, args ...interface{}) Outcome {
	o := Outcome{Result: types.OutcomeOK, Detail: fmt.Sprintf(format, args...)}
	if changed {
		o.Result = types.OutcomeChanged
	}
	return o
}

// Watchdog samples connectivity and restarts the tunnel on persistent
// internet-only readings. An exhausted budget is not an error.
func (e *Env) Watchdog(ctx context.Context) (Outcome, error) {
	res, err := e.newWatchdog().Run(ctx)
	if err != nil {
		return Outcome{}, err
	}
	o := outcome(res.Remediations > 0, "state=%s attempts=%d remediations=%d", res.Outcome, res.Attempts, res.Remediations)
	if res.Exhausted {
		o.Result = types.OutcomeExhausted
	}
	return o, nil
}

// Online posts a heartbeat, annotated with the VPN flag when withVPN is set
func (e *Env) Online(ctx context.Context, withVPN bool) (Outcome, error) {
	var payload telemetry.Payload
	if withVPN {
		state := e.Sampler().Sample(ctx)
		payload.State = &state
	}

	var remediation func(ctx context.Context) error
	if e.Config.HeartbeatBounce {
		remediation = e.bounceWAN
	}
	reporter, err := e.Reporter(remediation)
	if err != nil {
		return Outcome{}, err
	}
	if err := reporter.Report(ctx, types.EventOnline, payload); err != nil {
		return Outcome{}, err
	}

	if payload.State != nil {
		return outcome(false, "state=%s", *payload.State), nil
	}
	return outcome(false, "heartbeat"), nil
}

// Validate enforces the control-plane activation flag on the WAN interface
func (e *Env) Validate(ctx context.Context) (Outcome, error) {
	res, err := e.Validator().Validate(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return outcome(res.Enabled || res.Disabled, "active=%t enabled=%t disabled=%t", res.Active, res.Enabled, res.Disabled), nil
}

// SyncNode converges the tunnel node store to the assigned descriptor
func (e *Env) SyncNode(ctx context.Context) (Outcome, error) {
	syncer, err := e.NodeSyncer()
	if err != nil {
		return Outcome{}, err
	}
	res, err := syncer.Sync(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if res.Skipped {
		return outcome(false, "descriptor unchanged"), nil
	}
	return outcome(res.Changed, "uuid=%s reloaded=%t", res.Node.UUID, res.Reloaded), nil
}

// Update runs an artifact and schedule reconciliation pass
func (e *Env) Update(ctx context.Context) (Outcome, error) {
	report, err := e.Reconciler().Run(ctx, e.Manifest.Artifacts, e.Manifest.Schedule)
	if err != nil {
		return Outcome{}, err
	}
	detail := fmt.Sprintf("updated=[%s] failed=[%s] schedule_rewritten=%t",
		strings.Join(report.Updated, ","), strings.Join(report.Failed, ","), report.ScheduleRewritten)
	return outcome(report.Changed(), "%s", detail), nil
}

// Locate refreshes the persisted base location
func (e *Env) Locate(ctx context.Context) (Outcome, error) {
	written, err := e.Locator().Locate(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return outcome(written, "written=%t", written), nil
}

// Deliver applies queued file deliveries
func (e *Env) Deliver(ctx context.Context) (Outcome, error) {
	p, err := e.Deliveries()
	if err != nil {
		return Outcome{}, err
	}
	res, err := p.Run(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return outcome(len(res.Applied)+len(res.Removed) > 0, "applied=%d removed=%d failed=%d skipped=%d",
		len(res.Applied), len(res.Removed), len(res.Failed), res.Skipped), nil
}

// bounceWAN restarts the uplink after heartbeats keep failing
func (e *Env) bounceWAN(ctx context.Context) error {
	iface := e.Config.WANInterface
	logger := log.WithComponent("agent")
	logger.Warn().Str("interface", iface).Msg("Bouncing WAN interface")
	if err := e.Interfaces.Down(ctx, iface); err != nil {
		return err
	}
	return e.Interfaces.Up(ctx, iface)
}
