package led

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/metrics"
	"github.com/cuemby/edgeagent/pkg/types"
)

// Channel names one of the three status LEDs
type Channel string

const (
	Red   Channel = "Red"
	Green Channel = "Green"
	Blue  Channel = "Blue"
)

// Trigger tokens of interest
const (
	triggerOff = "none"
	triggerOn  = "default-on"
)

// DefaultDir is where the kernel exposes the LED class devices
const DefaultDir = "/sys/class/leds"

// Reading is the active trigger token of each channel
type Reading struct {
	Red   string
	Green string
	Blue  string
}

// Probe reads the raw LED state
type Probe interface {
	Read(ctx context.Context) (Reading, error)
}

// SysfsProbe reads LED0_<Channel>/trigger files under Dir
type SysfsProbe struct {
	Dir string
}

// NewSysfsProbe creates a probe rooted at dir
func NewSysfsProbe(dir string) *SysfsProbe {
	if dir == "" {
		dir = DefaultDir
	}
	return &SysfsProbe{Dir: dir}
}

// Read returns the active trigger of every channel
func (p *SysfsProbe) Read(ctx context.Context) (Reading, error) {
	var r Reading
	for _, ch := range []Channel{Red, Green, Blue} {
		token, err := p.readChannel(ch)
		if err != nil {
			return Reading{}, err
		}
		switch ch {
		case Red:
			r.Red = token
		case Green:
			r.Green = token
		case Blue:
			r.Blue = token
		}
	}
	return r, nil
}

func (p *SysfsProbe) readChannel(ch Channel) (string, error) {
	path := filepath.Join(p.Dir, "LED0_"+string(ch), "trigger")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s trigger: %w", ch, err)
	}
	token, ok := ActiveTrigger(string(data))
	if !ok {
		return "", fmt.Errorf("no active trigger in %s", path)
	}
	return token, nil
}

// ActiveTrigger extracts the bracketed token of a trigger listing such as
// "none timer [default-on] heartbeat"
func ActiveTrigger(listing string) (string, bool) {
	start := strings.IndexByte(listing, '[')
	if start < 0 {
		return "", false
	}
	end := strings.IndexByte(listing[start:], ']')
	if end < 0 {
		return "", false
	}
	token := strings.TrimSpace(listing[start+1 : start+end])
	return token, token != ""
}

// Classify maps a reading onto a connectivity state
func Classify(r Reading) types.ConnectivityState {
	switch {
	case r.Red == triggerOff && r.Green == triggerOn && r.Blue == triggerOn:
		return types.StateConnected
	case r.Red == triggerOn && r.Green == triggerOn && r.Blue == triggerOff:
		return types.StateInternetOnly
	default:
		return types.StateUnknown
	}
}

// Sampler classifies the LEDs into a connectivity state
type Sampler struct {
	probe Probe
}

// NewSampler creates a new Sampler
func NewSampler(probe Probe) *Sampler {
	return &Sampler{probe: probe}
}

// Sample reads and classifies the LEDs. An unreadable channel yields
// StateError.
func (s *Sampler) Sample(ctx context.Context) types.ConnectivityState {
	logger := log.WithComponent("led")

	state := types.StateError
	r, err := s.probe.Read(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read status LEDs")
	} else {
		state = Classify(r)
		logger.Debug().
			Str("red", r.Red).
			Str("green", r.Green).
			Str("blue", r.Blue).
			Str("state", string(state)).
			Msg("Sampled status LEDs")
	}

	metrics.SetConnectivity(string(state), []string{
		string(types.StateConnected),
		string(types.StateInternetOnly),
		string(types.StateUnknown),
		string(types.StateError),
	})
	return state
}
