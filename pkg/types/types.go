package types

import (
	"fmt"
	"time"
)

// ConnectivityState is the device connectivity derived from the status LEDs
type ConnectivityState string

const (
	StateConnected    ConnectivityState = "connected"
	StateInternetOnly ConnectivityState = "internet_only"
	StateUnknown      ConnectivityState = "unknown"
	StateError        ConnectivityState = "error"
)

// VPNFlag maps a connectivity state onto the tri-state VPN flag reported to
// the control plane. The second return value is false when the flag must be
// omitted from the event.
func (s ConnectivityState) VPNFlag() (connected bool, ok bool) {
	switch s {
	case StateConnected:
		return true, true
	case StateInternetOnly:
		return false, true
	default:
		return false, false
	}
}

// DeviceIdentity holds the two hardware identifiers of the router
type DeviceIdentity struct {
	SerialNumber      string
	BoardSerialNumber string
}

// Valid reports whether both identifiers are present
func (d DeviceIdentity) Valid() bool {
	return d.SerialNumber != "" && d.BoardSerialNumber != ""
}

// Transport is the tunnel transport of a node
type Transport string

const (
	TransportRaw       Transport = "raw"
	TransportWebSocket Transport = "ws"
)

// NodeConfig is the structured form of a tunnel endpoint descriptor. UUID is
// the stable key of the node inside the node store.
type NodeConfig struct {
	UUID             string    `yaml:"uuid"`
	Address          string    `yaml:"address"`
	Port             int       `yaml:"port"`
	Transport        Transport `yaml:"transport"`
	TLS              bool      `yaml:"tls"`
	TLSServerName    string    `yaml:"tls_server_name,omitempty"`
	TLSAllowInsecure bool      `yaml:"tls_allow_insecure,omitempty"`
	Fingerprint      string    `yaml:"fingerprint,omitempty"`
	Encryption       string    `yaml:"encryption"`
	WSHost           string    `yaml:"ws_host,omitempty"`
	WSPath           string    `yaml:"ws_path,omitempty"`
	TCPGuise         string    `yaml:"tcp_guise,omitempty"`
	TCPGuiseHost     string    `yaml:"tcp_guise_host,omitempty"`
	Remarks          string    `yaml:"remarks"`
}

// Static node fields rendered into every managed block
const (
	NodeProtocol = "vless"
	NodeToolType = "Xray"
	NodeTimeout  = "60"
	NodeAddMode  = "1"
	NodeAddFrom  = "导入"
)

// Endpoint returns host:port
func (n NodeConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", n.Address, n.Port)
}

// ArtifactDescriptor names a remotely managed file. Restart is the init
// service to restart when the file changes; empty means none.
type ArtifactDescriptor struct {
	Name      string `yaml:"name"`
	RemoteURL string `yaml:"url"`
	LocalPath string `yaml:"path"`
	Restart   string `yaml:"restart,omitempty"`
}

// ScheduleEntry is one line of the schedule table
type ScheduleEntry struct {
	Cron    string `yaml:"cron"`
	Command string `yaml:"command"`
}

// ScheduleTable is the desired cron table of the device
type ScheduleTable struct {
	Version int             `yaml:"version"`
	Entries []ScheduleEntry `yaml:"entries"`
}

// EventKind identifies a telemetry event
type EventKind string

const (
	EventOnline          EventKind = "online"
	EventUpdateCompleted EventKind = "update_completed"
)

// PassOutcome is the final outcome of a reconciliation pass
type PassOutcome string

const (
	OutcomeOK        PassOutcome = "ok"
	OutcomeChanged   PassOutcome = "changed"
	OutcomeExhausted PassOutcome = "exhausted"
	OutcomeFailed    PassOutcome = "failed"
)

// PassRecord is a journal entry for one agent invocation
type PassRecord struct {
	ID       string        `json:"id" yaml:"id"`
	Command  string        `json:"command" yaml:"command"`
	Started  time.Time     `json:"started" yaml:"started"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Outcome  PassOutcome   `json:"outcome" yaml:"outcome"`
	Detail   string        `json:"detail,omitempty" yaml:"detail,omitempty"`
}
