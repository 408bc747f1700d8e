// Package system wraps the host commands the agent depends on: the netifd
// helpers for the WAN interface and the init.d scripts for services. Callers
// depend on the InterfaceController and ServiceController interfaces so tests
// can substitute fakes.
package system
