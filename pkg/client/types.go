package client

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDeviceNotFound is returned when the control plane has no device
	// for the serial number
	ErrDeviceNotFound = errors.New("device not found")

	// ErrUnexpectedResponse is returned when a response body does not have
	// the expected shape
	ErrUnexpectedResponse = errors.New("unexpected response")

	// ErrTooLarge is returned when a response body exceeds the read limit
	ErrTooLarge = errors.New("response body too large")
)

// StatusError reports a response with an unexpected status code
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Temporary reports whether retrying the request may succeed
func (e *StatusError) Temporary() bool {
	return e.Code == 429 || e.Code >= 500
}

// Token is an access token issued by the control plane
type Token struct {
	Access  string
	Refresh string
	Expires time.Time
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Device is a control-plane device record
type Device struct {
	ID           int    `json:"id"`
	SerialNumber string `json:"serial_number"`
	Status       bool   `json:"device_status"`
}

// OnlineEvent is posted to device-online/. VPNConnected is omitted when the
// connectivity state is neither connected nor internet-only.
type OnlineEvent struct {
	SerialNumber      string `json:"serial_number"`
	BoardSerialNumber string `json:"mlb_serial_number"`
	Device            int    `json:"device"`
	VPNConnected      *bool  `json:"vpn_connected,omitempty"`
}

// UpdateEvent is posted to device-update/ after an update pass
type UpdateEvent struct {
	SerialNumber      string    `json:"serial_number"`
	BoardSerialNumber string    `json:"mlb_serial_number"`
	Device            int       `json:"device"`
	Artifacts         []string  `json:"artifacts,omitempty"`
	ScheduleVersion   int       `json:"schedule_version,omitempty"`
	CompletedAt       time.Time `json:"completed_at"`
}

type deviceV2ray struct {
	ServerList int `json:"server_list"`
}

type serverList struct {
	V2rayLink string `json:"v2ray_link"`
}

// FileDelivery is a device-file/ entry
type FileDelivery struct {
	ID             int    `json:"id"`
	Status         bool   `json:"file_status"`
	ValidUntil     string `json:"file_valid_until"`
	Applied        bool   `json:"file_has_been_updated"`
	LocalLocation  string `json:"file_local_location"`
	RemoteLocation string `json:"file_remote_location"`
}

// ValidUntilDate parses ValidUntil (YYYY-MM-DD)
func (f FileDelivery) ValidUntilDate() (time.Time, error) {
	return time.Parse("2006-01-02", f.ValidUntil)
}

type fileDeliveryPatch struct {
	Applied   bool      `json:"file_has_been_updated"`
	AppliedAt time.Time `json:"file_has_been_updated_time"`
}
