package nodestore

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/cuemby/edgeagent/pkg/types"
)

// Header opens every managed node block
const Header = "config nodes 'lFQCkuzv'"

// block is a run of lines. Lines keep their terminators so foreign content
// renders back byte for byte.
type block struct {
	managed bool
	uuid    string
	lines   []string
}

// Document is a parsed node store
type Document struct {
	blocks []block
}

// Parse splits data into managed node blocks and foreign content
func Parse(data []byte) *Document {
	d := &Document{}
	lines := splitLines(string(data))

	var foreign []string
	flush := func() {
		if len(foreign) > 0 {
			d.blocks = append(d.blocks, block{lines: foreign})
			foreign = nil
		}
	}

	for i := 0; i < len(lines); {
		if strings.TrimSpace(lines[i]) != Header {
			foreign = append(foreign, lines[i])
			i++
			continue
		}
		flush()

		b := block{managed: true, lines: []string{lines[i]}}
		i++
		for i < len(lines) && isOptionLine(lines[i]) {
			b.lines = append(b.lines, lines[i])
			i++
		}
		b.uuid = optionsOf(b.lines)["uuid"]
		d.blocks = append(d.blocks, b)
	}
	flush()
	return d
}

// Bytes renders the document
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	for _, b := range d.blocks {
		for _, l := range b.lines {
			buf.WriteString(l)
		}
	}
	return buf.Bytes()
}

// Nodes returns the managed nodes in store order
func (d *Document) Nodes() []types.NodeConfig {
	var nodes []types.NodeConfig
	for _, b := range d.blocks {
		if b.managed {
			nodes = append(nodes, ParseBlock(b.lines))
		}
	}
	return nodes
}

// Upsert replaces the managed block keyed by n.UUID in place, or appends a
// new block when there is none. Later blocks with the same uuid are dropped.
// It reports whether the rendered document changed.
func (d *Document) Upsert(n types.NodeConfig) bool {
	rendered := Render(n)
	before := d.Bytes()

	idx := -1
	kept := d.blocks[:0:0]
	for _, b := range d.blocks {
		if b.managed && b.uuid == n.UUID {
			if idx >= 0 {
				continue
			}
			idx = len(kept)
			b.lines = rendered
		}
		kept = append(kept, b)
	}

	if idx < 0 {
		kept = appendSeparated(kept, rendered, n.UUID)
	}
	d.blocks = kept

	return !bytes.Equal(before, d.Bytes())
}

func appendSeparated(blocks []block, rendered []string, id string) []block {
	if n := len(blocks); n > 0 {
		last := &blocks[n-1]
		last.lines = ensureTerminated(last.lines)
		if tail := last.lines[len(last.lines)-1]; strings.TrimSpace(tail) != "" {
			blocks = append(blocks, block{lines: []string{"\n"}})
		}
	}
	return append(blocks, block{managed: true, uuid: id, lines: rendered})
}

func ensureTerminated(lines []string) []string {
	if len(lines) == 0 {
		return lines
	}
	last := lines[len(lines)-1]
	if !strings.HasSuffix(last, "\n") {
		out := append([]string(nil), lines...)
		out[len(out)-1] = last + "\n"
		return out
	}
	return lines
}

// field is one rendered option
type field struct {
	key   string
	value string
}

// fields returns the options of n in their fixed render order
func fields(n types.NodeConfig) []field {
	tls := "0"
	if n.TLS {
		tls = "1"
	}
	fs := []field{
		{"tls", tls},
		{"protocol", types.NodeProtocol},
		{"encryption", n.Encryption},
		{"add_from", types.NodeAddFrom},
		{"port", strconv.Itoa(n.Port)},
	}
	if n.Transport == types.TransportWebSocket {
		fs = append(fs, field{"ws_path", n.WSPath})
	}
	fs = append(fs,
		field{"remarks", n.Remarks},
		field{"add_mode", types.NodeAddMode},
	)
	if n.Transport == types.TransportWebSocket {
		fs = append(fs, field{"ws_host", n.WSHost})
	} else {
		fs = append(fs,
			field{"tcp_guise", n.TCPGuise},
			field{"tcp_guise_http_host", n.TCPGuiseHost},
		)
	}
	fs = append(fs,
		field{"type", types.NodeToolType},
		field{"timeout", types.NodeTimeout},
	)
	if n.TLS {
		insecure := "0"
		if n.TLSAllowInsecure {
			insecure = "1"
		}
		fs = append(fs,
			field{"fingerprint", n.Fingerprint},
			field{"tls_serverName", n.TLSServerName},
			field{"address", n.Address},
			field{"tls_allowInsecure", insecure},
		)
	} else {
		fs = append(fs, field{"address", n.Address})
	}
	fs = append(fs,
		field{"uuid", n.UUID},
		field{"transport", string(n.Transport)},
	)
	return fs
}

// Render produces the lines of a managed block for n
func Render(n types.NodeConfig) []string {
	fs := fields(n)
	lines := make([]string, 0, len(fs)+1)
	lines = append(lines, Header+"\n")
	for _, f := range fs {
		lines = append(lines, fmt.Sprintf("\toption %s %s\n", f.key, quote(f.value)))
	}
	return lines
}

// ParseBlock reads a managed block back into a node configuration
func ParseBlock(lines []string) types.NodeConfig {
	opts := optionsOf(lines)
	port, _ := strconv.Atoi(opts["port"])
	n := types.NodeConfig{
		UUID:             opts["uuid"],
		Address:          opts["address"],
		Port:             port,
		Transport:        types.Transport(opts["transport"]),
		TLS:              opts["tls"] == "1",
		TLSServerName:    opts["tls_serverName"],
		TLSAllowInsecure: opts["tls_allowInsecure"] == "1",
		Fingerprint:      opts["fingerprint"],
		Encryption:       opts["encryption"],
		WSHost:           opts["ws_host"],
		WSPath:           opts["ws_path"],
		TCPGuise:         opts["tcp_guise"],
		TCPGuiseHost:     opts["tcp_guise_http_host"],
		Remarks:          opts["remarks"],
	}
	return n
}

func isOptionLine(l string) bool {
	t := strings.TrimSpace(l)
	return strings.HasPrefix(t, "option ") || strings.HasPrefix(t, "list ")
}

func optionsOf(lines []string) map[string]string {
	opts := make(map[string]string)
	for _, l := range lines {
		t := strings.TrimSpace(l)
		rest, ok := strings.CutPrefix(t, "option ")
		if !ok {
			continue
		}
		key, value, _ := strings.Cut(rest, " ")
		opts[key] = unquote(strings.TrimSpace(value))
	}
	return opts
}

// quote renders s as one shell-quoted token. Control characters become
// spaces so a value can never spill onto another line.
func quote(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], `'\''`, "'")
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// splitLines splits s after every newline, keeping terminators
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
