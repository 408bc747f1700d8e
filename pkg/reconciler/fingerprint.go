package reconciler

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/zeebo/blake3"
)

// Fingerprint is a 32-byte BLAKE3 digest of artifact content
type Fingerprint [32]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FingerprintBytes digests data
func FingerprintBytes(data []byte) Fingerprint {
	return blake3.Sum256(data)
}

// FingerprintFile digests the file at path, reading it in full. The boolean
// is false when the file does not exist.
func FingerprintFile(path string) (Fingerprint, bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Fingerprint{}, false, nil
	}
	if err != nil {
		return Fingerprint{}, false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp, true, nil
}
