package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/edgeagent/pkg/fileutil"
	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/metrics"
	"github.com/cuemby/edgeagent/pkg/retry"
	"github.com/cuemby/edgeagent/pkg/types"
)

// errEmptyArtifact guards against replacing a file with an empty download
var errEmptyArtifact = errors.New("remote artifact is empty")

// Fetcher downloads an absolute URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ArtifactResult is the outcome for one artifact
type ArtifactResult struct {
	Name    string
	Changed bool
	Err     error
}

// ArtifactSyncer replaces local artifacts whose content drifted from the
// remote copy
type ArtifactSyncer struct {
	fetcher Fetcher
	lockDir string
	pause   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewArtifactSyncer creates a new ArtifactSyncer
func NewArtifactSyncer(fetcher Fetcher, lockDir string) *ArtifactSyncer {
	return &ArtifactSyncer{
		fetcher: fetcher,
		lockDir: lockDir,
		sleep:   retry.Sleep,
	}
}

// WithPause waits d between consecutive artifacts
func (s *ArtifactSyncer) WithPause(d time.Duration) *ArtifactSyncer {
	s.pause = d
	return s
}

// Sync processes artifacts in order. A failed artifact is reported in its
// result and never stops the others.
func (s *ArtifactSyncer) Sync(ctx context.Context, artifacts []types.ArtifactDescriptor) []ArtifactResult {
	logger := log.WithComponent("reconciler")
	results := make([]ArtifactResult, 0, len(artifacts))

	for i, a := range artifacts {
		if i > 0 && s.pause > 0 {
			if err := s.sleep(ctx, s.pause); err != nil {
				results = append(results, ArtifactResult{Name: a.Name, Err: err})
				break
			}
		}

		changed, err := s.syncOne(ctx, a)
		results = append(results, ArtifactResult{Name: a.Name, Changed: changed, Err: err})

		switch {
		case err != nil:
			logger.Error().Err(err).Str("artifact", a.Name).Msg("Artifact sync failed")
		case changed:
			metrics.ArtifactsUpdated.WithLabelValues(a.Name).Inc()
			logger.Info().Str("artifact", a.Name).Str("path", a.LocalPath).Msg("Artifact updated")
		default:
			logger.Debug().Str("artifact", a.Name).Msg("Artifact up to date")
		}
	}
	return results
}

func (s *ArtifactSyncer) syncOne(ctx context.Context, a types.ArtifactDescriptor) (bool, error) {
	data, err := s.fetcher.Fetch(ctx, a.RemoteURL)
	if err == nil && len(data) == 0 {
		err = errEmptyArtifact
	}
	if err != nil {
		metrics.ArtifactFetchFailures.WithLabelValues(a.Name).Inc()
		return false, fmt.Errorf("fetch %s: %w", a.Name, err)
	}
	remote := FingerprintBytes(data)

	lock, err := fileutil.LockFile(fileutil.LockPath(s.lockDir, a.LocalPath))
	if err != nil {
		return false, err
	}
	defer lock.Unlock()

	local, exists, err := FingerprintFile(a.LocalPath)
	if err != nil {
		return false, err
	}
	if exists && local == remote {
		return false, nil
	}

	if err := fileutil.WriteAtomic(a.LocalPath, data, 0755); err != nil {
		return false, err
	}
	return true, nil
}
