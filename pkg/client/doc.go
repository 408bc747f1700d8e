/*
Package client provides the control-plane REST client used by the agent.

Every call goes through a hashicorp/go-retryablehttp client whose backoff is
driven by a retry.Policy, so transient failures (connection errors, 429 and
5xx responses) are retried at the transport level with the same schedule the
rest of the agent uses. After the last attempt the final response is handed
back and mapped onto a *StatusError.

# Endpoints

All paths are relative to <base>/api/:

	POST  token/                      form username/password -> access, refresh
	GET   devices/?serial_number=S    -> [{id, serial_number, device_status}]
	POST  device-online/              heartbeat, expects 201
	POST  device-update/              update completion, expects 201
	GET   device-v2ray/               -> [{server_list}]
	GET   server-list/{id}/           -> {v2ray_link}
	GET   device-file/                -> [{id, file_status, ...}]
	PATCH device-file/{id}/           mark a delivery as applied

Access tokens are JWTs. Their claims are decoded without verification to
record the expiry and to reject responses that are not tokens at all.

# Errors

ErrDeviceNotFound and ErrUnexpectedResponse are permanent for the current
pass. IsTransient classifies any other error for callers that retry at a
higher level.
*/
package client
