package vless

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/cuemby/edgeagent/pkg/types"
)

// Scheme is the only descriptor scheme accepted
const Scheme = "vless"

// Defaults applied when the query leaves a field unset
const (
	DefaultRemarks     = "No remarks"
	DefaultEncryption  = "none"
	DefaultFingerprint = "random"
	DefaultTCPGuise    = "none"
)

// ErrInvalidDescriptor is returned for any descriptor that cannot be parsed.
// It is never worth retrying.
var ErrInvalidDescriptor = errors.New("invalid tunnel descriptor")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidDescriptor, fmt.Sprintf(format, args...))
}

// Parse turns a vless://uuid@host:port?query#fragment URI into a node
// configuration
func Parse(raw string) (types.NodeConfig, error) {
	raw = strings.TrimSpace(raw)
	prefix := Scheme + "://"
	if !strings.HasPrefix(strings.ToLower(raw), prefix) {
		return types.NodeConfig{}, invalid("scheme must be %s", Scheme)
	}
	rest := raw[len(prefix):]

	// Fragment first: remarks may legally contain '?' or '@'
	rest, fragment, hasFragment := strings.Cut(rest, "#")
	authority, query, _ := strings.Cut(rest, "?")
	authority = strings.TrimSuffix(authority, "/")

	id, hostport, ok := strings.Cut(authority, "@")
	if !ok || id == "" {
		return types.NodeConfig{}, invalid("missing uuid")
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return types.NodeConfig{}, invalid("malformed uuid %q", id)
	}

	host, portStr, err := splitHostPort(hostport)
	if err != nil {
		return types.NodeConfig{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return types.NodeConfig{}, invalid("port %q out of range", portStr)
	}

	params := parseQuery(query)

	n := types.NodeConfig{
		UUID:       parsed.String(),
		Address:    host,
		Port:       port,
		Encryption: params.get("encryption", DefaultEncryption),
		TLS:        params.get("security", "") == "tls",
		Remarks:    DefaultRemarks,
	}

	if hasFragment && fragment != "" {
		n.Remarks = unescape(fragment)
	}

	if n.TLS {
		n.TLSServerName = params.get("sni", "")
		n.Fingerprint = params.get("fp", DefaultFingerprint)
		n.TLSAllowInsecure = truthy(params.get("allowInsecure", ""))
	}

	if params.get("type", "") == "ws" {
		n.Transport = types.TransportWebSocket
		n.WSHost = params.get("host", "")
		n.WSPath = params.get("path", "")
	} else {
		n.Transport = types.TransportRaw
		n.TCPGuise = params.get("headerType", DefaultTCPGuise)
		n.TCPGuiseHost = params.get("host", "")
	}

	// Every field ends up on a single line of the node store
	for name, v := range map[string]string{
		"host":        n.Address,
		"remarks":     n.Remarks,
		"encryption":  n.Encryption,
		"sni":         n.TLSServerName,
		"fp":          n.Fingerprint,
		"ws host":     n.WSHost,
		"ws path":     n.WSPath,
		"headerType":  n.TCPGuise,
		"header host": n.TCPGuiseHost,
	} {
		if strings.ContainsFunc(v, unicode.IsControl) {
			return types.NodeConfig{}, invalid("control character in %s", name)
		}
	}
	return n, nil
}

func splitHostPort(hostport string) (string, string, error) {
	if strings.HasPrefix(hostport, "[") {
		end := strings.Index(hostport, "]")
		if end < 0 {
			return "", "", invalid("malformed IPv6 host")
		}
		host := hostport[1:end]
		port, ok := strings.CutPrefix(hostport[end+1:], ":")
		if host == "" || !ok || port == "" {
			return "", "", invalid("missing host or port")
		}
		return host, port, nil
	}
	i := strings.LastIndex(hostport, ":")
	if i <= 0 || i == len(hostport)-1 {
		return "", "", invalid("missing host or port")
	}
	return hostport[:i], hostport[i+1:], nil
}

type query map[string]string

func (q query) get(key, fallback string) string {
	if v, ok := q[key]; ok && v != "" {
		return v
	}
	return fallback
}

// parseQuery splits on '&' and the first '='. Values are percent-decoded
// without turning '+' into a space, matching how descriptors are produced.
// Unknown keys are kept but never read.
func parseQuery(raw string) query {
	q := make(query)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		q[unescape(k)] = unescape(v)
	}
	return q
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	}
	return false
}
