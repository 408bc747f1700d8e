/*
Package watchdog keeps the router's uplink in the state the control plane
expects.

Watchdog samples the status LEDs under retry.Watch. Seeing internet without
VPN on consecutive samples escalates to a tunnel restart; seeing the VPN up
ends the run early. Running out of samples is not an error, the next
scheduled run starts over.

Validator brings the WAN interface up if it is disabled, then asks the
control plane whether the device is active and brings the interface down
when it is not.
*/
package watchdog
