package watchdog

import (
	"context"

	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/retry"
	"github.com/cuemby/edgeagent/pkg/system"
	"github.com/cuemby/edgeagent/pkg/types"
)

// Sampler classifies the current connectivity
type Sampler interface {
	Sample(ctx context.Context) types.ConnectivityState
}

// Watchdog restarts the tunnel when the device keeps reporting internet
// without VPN
type Watchdog struct {
	sampler  Sampler
	services system.ServiceController
	tunnel   string
	policy   retry.Policy
}

// New creates a new Watchdog. The policy remediation is replaced by a
// restart of the tunnel service.
func New(sampler Sampler, services system.ServiceController, tunnel string, policy retry.Policy) *Watchdog {
	if policy.Name == "" {
		policy.Name = "watchdog"
	}
	w := &Watchdog{
		sampler:  sampler,
		services: services,
		tunnel:   tunnel,
	}
	policy.Remediation = w.restartTunnel
	w.policy = policy
	return w
}

// Run samples until the VPN is up or the budget is spent
func (w *Watchdog) Run(ctx context.Context) (retry.Result[types.ConnectivityState], error) {
	logger := log.WithComponent("watchdog")

	res, err := retry.Watch(ctx, w.policy, retry.Rules[types.ConnectivityState]{
		Adverse: types.StateInternetOnly,
		Stop:    []types.ConnectivityState{types.StateConnected},
	}, func(ctx context.Context, attempt int) types.ConnectivityState {
		state := w.sampler.Sample(ctx)
		if state == types.StateError {
			logger.Error().Int("attempt", attempt).Msg("Status indicator unreadable")
		}
		return state
	})
	if err != nil {
		return res, err
	}

	event := logger.Info()
	if res.Exhausted {
		event = logger.Warn()
	}
	event.
		Str("state", string(res.Outcome)).
		Bool("exhausted", res.Exhausted).
		Int("attempts", res.Attempts).
		Int("remediations", res.Remediations).
		Msg("Watchdog finished")
	return res, nil
}

func (w *Watchdog) restartTunnel(ctx context.Context) error {
	logger := log.WithComponent("watchdog")
	logger.Warn().Str("service", w.tunnel).Msg("Restarting tunnel")
	return w.services.Restart(ctx, w.tunnel)
}
