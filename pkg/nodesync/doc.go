// Package nodesync keeps the tunnel node store aligned with the descriptor
// the control plane assigns to the device. The last applied descriptor is
// remembered in a ledger file so that an unchanged assignment costs nothing
// and never restarts the tunnel.
package nodesync
