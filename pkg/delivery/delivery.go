package delivery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/edgeagent/pkg/client"
	"github.com/cuemby/edgeagent/pkg/fileutil"
	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/retry"
	"github.com/cuemby/edgeagent/pkg/types"
)

// ErrInvalidLocation is returned for a delivery whose local path is not
// absolute
var ErrInvalidLocation = errors.New("delivery local location must be an absolute path")

// API is the subset of the control-plane client used for deliveries
type API interface {
	Token(ctx context.Context, id types.DeviceIdentity) (*client.Token, error)
	FileDeliveries(ctx context.Context, tok *client.Token) ([]client.FileDelivery, error)
	MarkDelivered(ctx context.Context, tok *client.Token, id int, at time.Time) error
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Result summarizes one delivery pass
type Result struct {
	Applied []int
	Removed []int
	Failed  []int
	Skipped int
}

// Processor applies queued file deliveries
type Processor struct {
	api      API
	identity types.DeviceIdentity
	policy   retry.Policy
	lockDir  string
	now      func() time.Time
}

// NewProcessor creates a new Processor
func NewProcessor(api API, identity types.DeviceIdentity, policy retry.Policy) *Processor {
	if policy.Name == "" {
		policy.Name = "delivery"
	}
	return &Processor{
		api:      api,
		identity: identity,
		policy:   policy,
		now:      time.Now,
	}
}

// WithLockDir places per-file lock files under dir
func (p *Processor) WithLockDir(dir string) *Processor {
	p.lockDir = dir
	return p
}

// Eligible reports whether d should be applied on day now. Active, not yet
// applied entries valid through today qualify.
func Eligible(d client.FileDelivery, now time.Time) (bool, error) {
	if !d.Status || d.Applied {
		return false, nil
	}
	until, err := d.ValidUntilDate()
	if err != nil {
		return false, fmt.Errorf("delivery %d: invalid file_valid_until %q: %w", d.ID, d.ValidUntil, err)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return !until.Before(today), nil
}

// Run lists the queued deliveries and applies each eligible one. A failed
// delivery is logged and never stops the others; only failing to list
// returns an error.
func (p *Processor) Run(ctx context.Context) (Result, error) {
	logger := log.WithComponent("delivery")
	var res Result

	type listing struct {
		tok   *client.Token
		files []client.FileDelivery
	}
	l, err := retry.Do(ctx, p.policy, func(ctx context.Context, attempt int) (listing, error) {
		tok, err := p.api.Token(ctx, p.identity)
		if err != nil {
			return listing{}, client.Retryable(err)
		}
		files, err := p.api.FileDeliveries(ctx, tok)
		if err != nil {
			return listing{}, client.Retryable(err)
		}
		return listing{tok: tok, files: files}, nil
	})
	if err != nil {
		return res, err
	}

	now := p.now()
	for _, d := range l.files {
		ok, err := Eligible(d, now)
		if err != nil {
			logger.Warn().Err(err).Msg("Skipping delivery")
			res.Failed = append(res.Failed, d.ID)
			continue
		}
		if !ok {
			res.Skipped++
			continue
		}

		removed, err := p.apply(ctx, d)
		if err != nil {
			logger.Error().Err(err).Int("delivery", d.ID).Str("path", d.LocalLocation).Msg("Delivery failed")
			res.Failed = append(res.Failed, d.ID)
			continue
		}

		if err := p.api.MarkDelivered(ctx, l.tok, d.ID, p.now()); err != nil {
			logger.Error().Err(err).Int("delivery", d.ID).Msg("Delivery applied but not acknowledged")
			res.Failed = append(res.Failed, d.ID)
			continue
		}

		if removed {
			res.Removed = append(res.Removed, d.ID)
			logger.Info().Int("delivery", d.ID).Str("path", d.LocalLocation).Msg("Delivered file removed")
		} else {
			res.Applied = append(res.Applied, d.ID)
			logger.Info().Int("delivery", d.ID).Str("path", d.LocalLocation).Msg("File delivered")
		}
	}
	return res, nil
}

// apply installs d. An empty remote location removes the local file.
func (p *Processor) apply(ctx context.Context, d client.FileDelivery) (bool, error) {
	path := filepath.Clean(d.LocalLocation)
	if !filepath.IsAbs(path) {
		return false, fmt.Errorf("%w: %q", ErrInvalidLocation, d.LocalLocation)
	}

	var data []byte
	if d.RemoteLocation != "" {
		var err error
		if data, err = p.api.Fetch(ctx, d.RemoteLocation); err != nil {
			return false, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	lock, err := fileutil.LockFile(fileutil.LockPath(p.lockDir, path))
	if err != nil {
		return false, err
	}
	defer lock.Unlock()

	if d.RemoteLocation == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		return true, nil
	}

	perm := fs.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return false, fileutil.WriteAtomic(path, data, perm)
}
