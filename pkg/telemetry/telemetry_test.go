package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/edgeagent/pkg/client"
	"github.com/cuemby/edgeagent/pkg/retry"
	"github.com/cuemby/edgeagent/pkg/types"
)

type fakeAPI struct {
	tokenErrs []error
	lookupErr error
	postErr   error

	tokenCalls int
	online     []client.OnlineEvent
	updates    []client.UpdateEvent
}

func (f *fakeAPI) Token(ctx context.Context, id types.DeviceIdentity) (*client.Token, error) {
	f.tokenCalls++
	if len(f.tokenErrs) > 0 {
		err := f.tokenErrs[0]
		f.tokenErrs = f.tokenErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &client.Token{Access: "tok"}, nil
}

func (f *fakeAPI) LookupDevice(ctx context.Context, tok *client.Token, serial string) (*client.Device, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	return &client.Device{ID: 42, SerialNumber: serial}, nil
}

func (f *fakeAPI) PostOnline(ctx context.Context, tok *client.Token, ev client.OnlineEvent) error {
	f.online = append(f.online, ev)
	return f.postErr
}

func (f *fakeAPI) PostUpdate(ctx context.Context, tok *client.Token, ev client.UpdateEvent) error {
	f.updates = append(f.updates, ev)
	return f.postErr
}

var identity = types.DeviceIdentity{SerialNumber: "SN1", BoardSerialNumber: "MLB1"}

func testPolicy(remediations *int) retry.Policy {
	return retry.Policy{
		Name:        "telemetry-test",
		MaxAttempts: 3,
		Delay:       time.Second,
		Backoff:     retry.BackoffExponential,
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
		Remediation: func(ctx context.Context) error {
			*remediations++
			return nil
		},
	}
}

func state(s types.ConnectivityState) *types.ConnectivityState { return &s }

func TestReportOnlineVPNFlag(t *testing.T) {
	tests := []struct {
		name    string
		state   *types.ConnectivityState
		present bool
		want    bool
	}{
		{"connected", state(types.StateConnected), true, true},
		{"internet only", state(types.StateInternetOnly), true, false},
		{"unknown", state(types.StateUnknown), false, false},
		{"error", state(types.StateError), false, false},
		{"no state", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			var rem int
			r := NewReporter(api, identity, testPolicy(&rem))

			require.NoError(t, r.Report(context.Background(), types.EventOnline, Payload{State: tt.state}))
			require.Len(t, api.online, 1)
			ev := api.online[0]
			assert.Equal(t, 42, ev.Device)
			assert.Equal(t, "MLB1", ev.BoardSerialNumber)
			if tt.present {
				require.NotNil(t, ev.VPNConnected)
				assert.Equal(t, tt.want, *ev.VPNConnected)
			} else {
				assert.Nil(t, ev.VPNConnected)
			}
		})
	}
}

func TestReportRetriesTransientFailures(t *testing.T) {
	api := &fakeAPI{tokenErrs: []error{errors.New("connection refused"), nil}}
	var rem int
	r := NewReporter(api, identity, testPolicy(&rem))

	require.NoError(t, r.Report(context.Background(), types.EventOnline, Payload{}))
	assert.Equal(t, 2, api.tokenCalls)
	assert.Equal(t, 0, rem)
}

func TestReportExhaustionEscalates(t *testing.T) {
	api := &fakeAPI{postErr: &client.StatusError{Code: 503}}
	var rem int
	r := NewReporter(api, identity, testPolicy(&rem))

	err := r.Report(context.Background(), types.EventOnline, Payload{})
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Len(t, api.online, 3)
	assert.Equal(t, 1, rem)
}

func TestReportDeviceNotFoundIsNotRetried(t *testing.T) {
	api := &fakeAPI{lookupErr: client.ErrDeviceNotFound}
	var rem int
	r := NewReporter(api, identity, testPolicy(&rem))

	err := r.Report(context.Background(), types.EventOnline, Payload{})
	assert.ErrorIs(t, err, client.ErrDeviceNotFound)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 1, api.tokenCalls)
	assert.Equal(t, 0, rem)
}

func TestReportRejectedCredentialsNotRetried(t *testing.T) {
	api := &fakeAPI{tokenErrs: []error{&client.StatusError{Code: 401}}}
	var rem int
	r := NewReporter(api, identity, testPolicy(&rem))

	err := r.Report(context.Background(), types.EventOnline, Payload{})
	var se *client.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, api.tokenCalls)
}

func TestReportUpdateCompleted(t *testing.T) {
	api := &fakeAPI{}
	var rem int
	r := NewReporter(api, identity, testPolicy(&rem))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	err := r.Report(context.Background(), types.EventUpdateCompleted, Payload{
		Artifacts:       []string{"edgeagent"},
		ScheduleVersion: 2,
	})
	require.NoError(t, err)
	require.Len(t, api.updates, 1)
	assert.Equal(t, []string{"edgeagent"}, api.updates[0].Artifacts)
	assert.Equal(t, 2, api.updates[0].ScheduleVersion)
	assert.Equal(t, fixed, api.updates[0].CompletedAt)
}

func TestReportUnknownKind(t *testing.T) {
	var rem int
	r := NewReporter(&fakeAPI{}, identity, testPolicy(&rem))
	assert.Error(t, r.Report(context.Background(), types.EventKind("reboot"), Payload{}))
}
