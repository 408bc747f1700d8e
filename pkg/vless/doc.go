/*
Package vless parses tunnel endpoint descriptors of the form

	vless://<uuid>@<host>:<port>?<query>#<remarks>

into a types.NodeConfig.

The uuid, host and port are mandatory; anything missing or malformed yields
an error wrapping ErrInvalidDescriptor. Recognised query keys are
encryption, security, sni, fp, type, host, path, allowInsecure and
headerType; other keys are ignored. security=tls enables TLS, and only then
are sni, fp (default "random") and allowInsecure read. type=ws selects the
websocket transport with host and path; any other type selects the raw
transport where host and headerType describe the HTTP disguise.
*/
package vless
