package identity

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/cuemby/edgeagent/pkg/fileutil"
	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/types"
)

// ErrNoIdentity is returned when no identity can be read or extracted
var ErrNoIdentity = errors.New("device identity not available")

var (
	boardSerialRe = regexp.MustCompile(`mlb_serial_number\s+([A-Za-z0-9]+)`)
	serialRe      = regexp.MustCompile(`\bserial_number\s+([A-Za-z0-9]+)`)
)

// minRun is the shortest printable run kept when scanning a binary blob
const minRun = 4

// Read loads the identity from a two-line file: serial then board serial
func Read(path string) (types.DeviceIdentity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.DeviceIdentity{}, fmt.Errorf("%w: %s missing", ErrNoIdentity, path)
		}
		return types.DeviceIdentity{}, fmt.Errorf("failed to read identity: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		return types.DeviceIdentity{}, fmt.Errorf("%w: %s is incomplete", ErrNoIdentity, path)
	}
	id := types.DeviceIdentity{
		SerialNumber:      strings.TrimSpace(lines[0]),
		BoardSerialNumber: strings.TrimSpace(lines[1]),
	}
	if !id.Valid() {
		return types.DeviceIdentity{}, fmt.Errorf("%w: %s is incomplete", ErrNoIdentity, path)
	}
	return id, nil
}

// Save persists the identity in the two-line format
func Save(path string, id types.DeviceIdentity) error {
	content := id.SerialNumber + "\n" + id.BoardSerialNumber + "\n"
	return fileutil.WriteAtomic(path, []byte(content), 0644)
}

// printableRuns returns the runs of printable ASCII of at least minRun bytes,
// one per line
func printableRuns(blob []byte) string {
	var out strings.Builder
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start >= minRun {
			out.Write(blob[start:end])
			out.WriteByte('\n')
		}
		start = -1
	}
	for i, b := range blob {
		if (b >= 0x20 && b < 0x7f) || b == '\t' {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(blob))
	return out.String()
}

// Extract finds serial_number and mlb_serial_number in a binary blob
func Extract(blob []byte) (types.DeviceIdentity, error) {
	text := printableRuns(blob)

	var id types.DeviceIdentity
	if m := serialRe.FindStringSubmatch(text); m != nil {
		id.SerialNumber = m[1]
	}
	if m := boardSerialRe.FindStringSubmatch(text); m != nil {
		id.BoardSerialNumber = m[1]
	}
	if !id.Valid() {
		return types.DeviceIdentity{}, fmt.Errorf("%w: serial numbers not found in blob", ErrNoIdentity)
	}
	return id, nil
}

// Resolve reads the identity file, extracting from the nvmem blob and
// persisting the result the first time
func Resolve(path, nvmemPath string) (types.DeviceIdentity, error) {
	id, err := Read(path)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrNoIdentity) || nvmemPath == "" {
		return types.DeviceIdentity{}, err
	}

	logger := log.WithComponent("identity")
	logger.Info().Str("source", nvmemPath).Msg("Extracting device identity")

	blob, rerr := os.ReadFile(nvmemPath)
	if rerr != nil {
		return types.DeviceIdentity{}, fmt.Errorf("%w: %v", ErrNoIdentity, rerr)
	}
	id, err = Extract(blob)
	if err != nil {
		return types.DeviceIdentity{}, err
	}
	if err := Save(path, id); err != nil {
		return types.DeviceIdentity{}, fmt.Errorf("failed to persist identity: %w", err)
	}

	logger.Info().Str("serial_number", id.SerialNumber).Msg("Device identity persisted")
	return id, nil
}
