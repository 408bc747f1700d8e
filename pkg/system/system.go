package system

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/edgeagent/pkg/log"
)

// Runner executes a host command and returns its combined output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the host
type ExecRunner struct {
	// Timeout bounds each command (default: 60 seconds)
	Timeout time.Duration
}

// NewExecRunner creates a new ExecRunner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Timeout: 60 * time.Second}
}

// Run executes name with args
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	log.Logger.Debug().Str("cmd", name).Strs("args", args).Msg("Running command")
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s %v failed: %w output=%s", name, args, err, strings.TrimSpace(out.String()))
	}
	return out.Bytes(), nil
}

// InterfaceController manages a network interface
type InterfaceController interface {
	Enabled(ctx context.Context, iface string) (bool, error)
	Up(ctx context.Context, iface string) error
	Down(ctx context.Context, iface string) error
}

// ServiceController restarts init services
type ServiceController interface {
	Restart(ctx context.Context, service string) error
}

// NetIfd drives interfaces through the OpenWrt ifstatus/ifup/ifdown helpers
type NetIfd struct {
	runner Runner
}

// NewNetIfd creates a new NetIfd controller
func NewNetIfd(runner Runner) *NetIfd {
	return &NetIfd{runner: runner}
}

// autostartMarker is how ifstatus reports an interface set to come up at boot
const autostartMarker = `"autostart": true,`

// Enabled reports whether the interface is configured to autostart
func (n *NetIfd) Enabled(ctx context.Context, iface string) (bool, error) {
	out, err := n.runner.Run(ctx, "ifstatus", iface)
	if err != nil {
		return false, err
	}
	return strings.Contains(string(out), autostartMarker), nil
}

// Up brings the interface up
func (n *NetIfd) Up(ctx context.Context, iface string) error {
	_, err := n.runner.Run(ctx, "ifup", iface)
	return err
}

// Down brings the interface down
func (n *NetIfd) Down(ctx context.Context, iface string) error {
	_, err := n.runner.Run(ctx, "ifdown", iface)
	return err
}

// InitD restarts services through their /etc/init.d scripts
type InitD struct {
	runner Runner
	dir    string
}

// NewInitD creates a new InitD controller
func NewInitD(runner Runner) *InitD {
	return &InitD{runner: runner, dir: "/etc/init.d"}
}

// WithDir overrides the init script directory
func (i *InitD) WithDir(dir string) *InitD {
	i.dir = dir
	return i
}

// Restart runs "<dir>/<service> restart"
func (i *InitD) Restart(ctx context.Context, service string) error {
	script := filepath.Join(i.dir, service)
	if _, err := i.runner.Run(ctx, script, "restart"); err != nil {
		return fmt.Errorf("failed to restart %s: %w", service, err)
	}
	logger := log.WithComponent("system")
	logger.Info().Str("service", service).Msg("Service restarted")
	return nil
}
