package watchdog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/edgeagent/pkg/client"
	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/retry"
	"github.com/cuemby/edgeagent/pkg/system"
	"github.com/cuemby/edgeagent/pkg/types"
)

// ErrInterfaceDown is returned when the WAN interface stays disabled after
// every enable attempt
var ErrInterfaceDown = errors.New("interface could not be enabled")

// DeviceAPI is the subset of the control-plane client used by validation
type DeviceAPI interface {
	Token(ctx context.Context, id types.DeviceIdentity) (*client.Token, error)
	LookupDevice(ctx context.Context, tok *client.Token, serial string) (*client.Device, error)
}

// IdentityFunc resolves the device identity once the uplink is available
type IdentityFunc func() (types.DeviceIdentity, error)

// Validation is the outcome of a router validation
type Validation struct {
	// Enabled is true when the interface had to be brought up
	Enabled bool

	// Active mirrors the device_status flag
	Active bool

	// Disabled is true when the interface was brought down
	Disabled bool
}

// Validator enforces the control-plane activation flag on the WAN interface
type Validator struct {
	ifaces   system.InterfaceController
	iface    string
	api      func() (DeviceAPI, error)
	identity IdentityFunc
	enable   retry.Policy
	lookup   retry.Policy
	settle   time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewValidator creates a new Validator. api is resolved lazily because the
// base location may only become readable once the uplink is up.
func NewValidator(ifaces system.InterfaceController, iface string, api func() (DeviceAPI, error), identity IdentityFunc) *Validator {
	return &Validator{
		ifaces:   ifaces,
		iface:    iface,
		api:      api,
		identity: identity,
		enable:   retry.Policy{Name: "enable-interface", MaxAttempts: 3, Delay: 5 * time.Second},
		lookup:   retry.Policy{Name: "validate", MaxAttempts: 3, Delay: 2 * time.Second},
		settle:   3 * time.Second,
		sleep:    retry.Sleep,
	}
}

// WithEnablePolicy bounds the attempts at bringing the interface up
func (v *Validator) WithEnablePolicy(p retry.Policy) *Validator {
	if p.Name == "" {
		p.Name = "enable-interface"
	}
	v.enable = p
	return v
}

// WithLookupPolicy bounds the device lookup
func (v *Validator) WithLookupPolicy(p retry.Policy) *Validator {
	if p.Name == "" {
		p.Name = "validate"
	}
	v.lookup = p
	return v
}

// Validate makes sure the interface is enabled, then disables it again when
// the control plane marks the device inactive
func (v *Validator) Validate(ctx context.Context) (Validation, error) {
	logger := log.WithComponent("watchdog")
	var res Validation

	enabled, err := v.ifaces.Enabled(ctx, v.iface)
	if err != nil {
		logger.Warn().Err(err).Str("interface", v.iface).Msg("Interface status unavailable")
	}
	if !enabled {
		if err := v.bringUp(ctx); err != nil {
			return res, err
		}
		res.Enabled = true
	}

	id, err := v.identity()
	if err != nil {
		return res, err
	}
	api, err := v.api()
	if err != nil {
		return res, err
	}

	dev, err := retry.Do(ctx, v.lookup, func(ctx context.Context, attempt int) (*client.Device, error) {
		tok, err := api.Token(ctx, id)
		if err != nil {
			return nil, client.Retryable(err)
		}
		dev, err := api.LookupDevice(ctx, tok, id.SerialNumber)
		return dev, client.Retryable(err)
	})
	if err != nil {
		return res, fmt.Errorf("device status: %w", err)
	}

	res.Active = dev.Status
	if res.Active {
		logger.Info().Str("serial", id.SerialNumber).Msg("Device status is valid")
		return res, nil
	}

	logger.Warn().Str("serial", id.SerialNumber).Str("interface", v.iface).Msg("Device inactive, disabling interface")
	if err := v.ifaces.Down(ctx, v.iface); err != nil {
		return res, err
	}
	res.Disabled = true
	return res, nil
}

func (v *Validator) bringUp(ctx context.Context) error {
	logger := log.WithComponent("watchdog")

	_, err := retry.Do(ctx, v.enable, func(ctx context.Context, attempt int) (struct{}, error) {
		logger.Info().Str("interface", v.iface).Int("attempt", attempt).Msg("Enabling interface")
		if err := v.ifaces.Up(ctx, v.iface); err != nil {
			return struct{}{}, err
		}
		if err := v.sleep(ctx, v.settle); err != nil {
			return struct{}{}, retry.Permanent(err)
		}
		enabled, err := v.ifaces.Enabled(ctx, v.iface)
		if err != nil {
			return struct{}{}, err
		}
		if !enabled {
			return struct{}{}, ErrInterfaceDown
		}
		return struct{}{}, nil
	})
	if errors.Is(err, retry.ErrExhausted) {
		return fmt.Errorf("%s: %w", v.iface, ErrInterfaceDown)
	}
	return err
}
