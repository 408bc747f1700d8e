package led

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/edgeagent/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	reading Reading
	err     error
}

func (f fakeProbe) Read(ctx context.Context) (Reading, error) {
	return f.reading, f.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		reading Reading
		want    types.ConnectivityState
	}{
		{"connected", Reading{Red: "none", Green: "default-on", Blue: "default-on"}, types.StateConnected},
		{"internet only", Reading{Red: "default-on", Green: "default-on", Blue: "none"}, types.StateInternetOnly},
		{"all off", Reading{Red: "none", Green: "none", Blue: "none"}, types.StateUnknown},
		{"all on", Reading{Red: "default-on", Green: "default-on", Blue: "default-on"}, types.StateUnknown},
		{"red only", Reading{Red: "default-on", Green: "none", Blue: "none"}, types.StateUnknown},
		{"heartbeat", Reading{Red: "none", Green: "heartbeat", Blue: "default-on"}, types.StateUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.reading))
		})
	}
}

func TestActiveTrigger(t *testing.T) {
	tests := []struct {
		listing string
		want    string
		ok      bool
	}{
		{"[none] timer default-on\n", "none", true},
		{"none timer [default-on] heartbeat\n", "default-on", true},
		{"none timer default-on\n", "", false},
		{"[]", "", false},
		{"[none", "", false},
	}
	for _, tt := range tests {
		got, ok := ActiveTrigger(tt.listing)
		assert.Equal(t, tt.want, got, tt.listing)
		assert.Equal(t, tt.ok, ok, tt.listing)
	}
}

func writeTrigger(t *testing.T, dir string, ch Channel, content string) {
	t.Helper()
	chDir := filepath.Join(dir, "LED0_"+string(ch))
	require.NoError(t, os.MkdirAll(chDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(chDir, "trigger"), []byte(content), 0644))
}

func TestSysfsProbe(t *testing.T) {
	dir := t.TempDir()
	writeTrigger(t, dir, Red, "[none] timer default-on")
	writeTrigger(t, dir, Green, "none timer [default-on]")
	writeTrigger(t, dir, Blue, "none timer [default-on]")

	s := NewSampler(NewSysfsProbe(dir))
	assert.Equal(t, types.StateConnected, s.Sample(context.Background()))
}

func TestSamplerMissingChannelIsError(t *testing.T) {
	dir := t.TempDir()
	writeTrigger(t, dir, Red, "[none]")
	writeTrigger(t, dir, Green, "[default-on]")

	s := NewSampler(NewSysfsProbe(dir))
	assert.Equal(t, types.StateError, s.Sample(context.Background()))
}

func TestSamplerProbeError(t *testing.T) {
	s := NewSampler(fakeProbe{err: errors.New("permission denied")})
	assert.Equal(t, types.StateError, s.Sample(context.Background()))
}
