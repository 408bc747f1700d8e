// Package telemetry reports device events (heartbeats with an optional VPN
// flag, update completions) to the control plane under a bounded retry loop.
package telemetry
