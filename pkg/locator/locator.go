package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/edgeagent/pkg/config"
	"github.com/cuemby/edgeagent/pkg/fileutil"
	"github.com/cuemby/edgeagent/pkg/log"
)

// Fetcher downloads an absolute URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Locator refreshes the persisted control-plane base location
type Locator struct {
	fetcher Fetcher
	url     string
	path    string
	lockDir string
}

// New creates a Locator that reads the base location from url and stores it
// at path
func New(fetcher Fetcher, url, path string) *Locator {
	return &Locator{
		fetcher: fetcher,
		url:     url,
		path:    path,
	}
}

// WithLockDir places the lock file for path under dir
func (l *Locator) WithLockDir(dir string) *Locator {
	l.lockDir = dir
	return l
}

// Locate fetches the published base location and persists it when it is
// valid and differs from the stored one. On any failure the stored value is
// kept. The boolean reports whether the file was written.
func (l *Locator) Locate(ctx context.Context) (bool, error) {
	logger := log.WithComponent("locator")

	data, err := l.fetcher.Fetch(ctx, l.url)
	if err != nil {
		logger.Error().Err(err).Str("url", l.url).Msg("Failed to fetch base location, keeping current value")
		return false, fmt.Errorf("fetch base location: %w", err)
	}

	line, _, _ := strings.Cut(string(data), "\n")
	base, err := config.NormalizeBaseURL(line)
	if err != nil {
		logger.Error().Err(err).Msg("Published base location rejected, keeping current value")
		return false, err
	}

	lock, err := fileutil.LockFile(fileutil.LockPath(l.lockDir, l.path))
	if err != nil {
		return false, err
	}
	defer lock.Unlock()

	if current, err := config.ReadBaseURL(l.path); err == nil && current == base {
		logger.Debug().Str("base", base).Msg("Base location unchanged")
		return false, nil
	}

	if err := fileutil.WriteAtomic(l.path, []byte(base+"\n"), 0644); err != nil {
		return false, fmt.Errorf("write base location: %w", err)
	}
	logger.Info().Str("base", base).Msg("Base location updated")
	return true, nil
}
