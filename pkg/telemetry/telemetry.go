package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/edgeagent/pkg/client"
	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/metrics"
	"github.com/cuemby/edgeagent/pkg/retry"
	"github.com/cuemby/edgeagent/pkg/types"
)

// API is the subset of the control-plane client used for reporting
type API interface {
	Token(ctx context.Context, id types.DeviceIdentity) (*client.Token, error)
	LookupDevice(ctx context.Context, tok *client.Token, serial string) (*client.Device, error)
	PostOnline(ctx context.Context, tok *client.Token, ev client.OnlineEvent) error
	PostUpdate(ctx context.Context, tok *client.Token, ev client.UpdateEvent) error
}

// Payload carries the kind-specific event fields
type Payload struct {
	// State sets the VPN flag of an online event. Nil or a state other than
	// connected or internet-only omits the flag.
	State *types.ConnectivityState

	// Artifacts lists what an update pass replaced
	Artifacts []string

	// ScheduleVersion is the schedule table version in force after an update
	ScheduleVersion int
}

// Reporter posts device events to the control plane
type Reporter struct {
	api      API
	identity types.DeviceIdentity
	policy   retry.Policy
	now      func() time.Time
}

// NewReporter creates a new Reporter
func NewReporter(api API, identity types.DeviceIdentity, policy retry.Policy) *Reporter {
	if policy.Name == "" {
		policy.Name = "telemetry"
	}
	return &Reporter{
		api:      api,
		identity: identity,
		policy:   policy,
		now:      time.Now,
	}
}

// Report authenticates, looks the device up and posts the event, retrying
// the whole exchange under the reporter policy. A missing device or a
// malformed response ends the attempt loop at once.
func (r *Reporter) Report(ctx context.Context, kind types.EventKind, payload Payload) error {
	logger := log.WithComponent("telemetry")

	switch kind {
	case types.EventOnline, types.EventUpdateCompleted:
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}

	_, err := retry.Do(ctx, r.policy, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, client.Retryable(r.send(ctx, kind, payload))
	})
	if err != nil {
		metrics.TelemetryReports.WithLabelValues(string(kind), "failed").Inc()
		logger.Error().Err(err).Str("kind", string(kind)).Msg("Report failed")
		return err
	}

	metrics.TelemetryReports.WithLabelValues(string(kind), "ok").Inc()
	logger.Info().Str("kind", string(kind)).Msg("Report delivered")
	return nil
}

func (r *Reporter) send(ctx context.Context, kind types.EventKind, payload Payload) error {
	tok, err := r.api.Token(ctx, r.identity)
	if err != nil {
		return err
	}
	dev, err := r.api.LookupDevice(ctx, tok, r.identity.SerialNumber)
	if err != nil {
		return err
	}

	switch kind {
	case types.EventOnline:
		ev := client.OnlineEvent{
			SerialNumber:      r.identity.SerialNumber,
			BoardSerialNumber: r.identity.BoardSerialNumber,
			Device:            dev.ID,
		}
		if payload.State != nil {
			if connected, ok := payload.State.VPNFlag(); ok {
				ev.VPNConnected = &connected
			}
		}
		return r.api.PostOnline(ctx, tok, ev)
	default:
		return r.api.PostUpdate(ctx, tok, client.UpdateEvent{
			SerialNumber:      r.identity.SerialNumber,
			BoardSerialNumber: r.identity.BoardSerialNumber,
			Device:            dev.ID,
			Artifacts:         payload.Artifacts,
			ScheduleVersion:   payload.ScheduleVersion,
			CompletedAt:       r.now().UTC(),
		})
	}
}
