package nodesync

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/edgeagent/pkg/client"
	"github.com/cuemby/edgeagent/pkg/fileutil"
	"github.com/cuemby/edgeagent/pkg/log"
	"github.com/cuemby/edgeagent/pkg/nodestore"
	"github.com/cuemby/edgeagent/pkg/system"
	"github.com/cuemby/edgeagent/pkg/types"
	"github.com/cuemby/edgeagent/pkg/vless"
)

// Source yields the descriptor URI currently assigned to the device
type Source interface {
	Descriptor(ctx context.Context) (string, error)
}

// API is the subset of the control-plane client needed to fetch descriptors
type API interface {
	Token(ctx context.Context, id types.DeviceIdentity) (*client.Token, error)
	AssignedLink(ctx context.Context, tok *client.Token) (string, error)
}

// ControlPlaneSource fetches the descriptor from the control plane
type ControlPlaneSource struct {
	api      API
	identity types.DeviceIdentity
}

// NewControlPlaneSource creates a new ControlPlaneSource
func NewControlPlaneSource(api API, identity types.DeviceIdentity) *ControlPlaneSource {
	return &ControlPlaneSource{api: api, identity: identity}
}

// Descriptor implements Source
func (s *ControlPlaneSource) Descriptor(ctx context.Context) (string, error) {
	tok, err := s.api.Token(ctx, s.identity)
	if err != nil {
		return "", err
	}
	return s.api.AssignedLink(ctx, tok)
}

// Ledger remembers the last descriptor applied to the store
type Ledger interface {
	Last() (string, error)
	Save(uri string) error
}

// FileLedger keeps the last descriptor verbatim in a one-line file
type FileLedger struct {
	path string
}

// NewFileLedger creates a ledger backed by path
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Last returns the saved descriptor, or "" when none was saved
func (l *FileLedger) Last() (string, error) {
	data, _, err := fileutil.ReadOptional(l.path)
	if err != nil {
		return "", fmt.Errorf("failed to read descriptor ledger: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save records uri
func (l *FileLedger) Save(uri string) error {
	return fileutil.WriteAtomic(l.path, []byte(uri+"\n"), 0644)
}

// Result describes what a pass did
type Result struct {
	Skipped  bool
	Changed  bool
	Reloaded bool
	Node     types.NodeConfig
}

// Syncer applies the assigned descriptor to the node store
type Syncer struct {
	source   Source
	store    nodestore.Store
	ledger   Ledger
	services system.ServiceController
	tunnel   string
}

// NewSyncer creates a new Syncer that reloads the tunnel service after a
// store mutation
func NewSyncer(source Source, store nodestore.Store, ledger Ledger, services system.ServiceController, tunnel string) *Syncer {
	return &Syncer{
		source:   source,
		store:    store,
		ledger:   ledger,
		services: services,
		tunnel:   tunnel,
	}
}

// Sync runs one pass: fetch, compare with the ledger, parse, upsert, record,
// reload. A descriptor identical to the last applied one ends the pass
// without touching the store.
func (s *Syncer) Sync(ctx context.Context) (Result, error) {
	logger := log.WithComponent("nodesync")

	uri, err := s.source.Descriptor(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("fetch descriptor: %w", err)
	}
	uri = strings.TrimSpace(uri)

	last, err := s.ledger.Last()
	if err != nil {
		return Result{}, err
	}
	if uri == last {
		logger.Info().Msg("Descriptor unchanged, nothing to do")
		return Result{Skipped: true}, nil
	}

	node, err := vless.Parse(uri)
	if err != nil {
		return Result{}, err
	}

	changed, err := s.store.Upsert(node)
	if err != nil {
		return Result{}, err
	}

	// Recorded only once the store holds the node, so a failed write is
	// retried on the next pass
	if err := s.ledger.Save(uri); err != nil {
		return Result{}, fmt.Errorf("failed to save descriptor: %w", err)
	}

	res := Result{Changed: changed, Node: node}
	if !changed {
		logger.Info().Str("uuid", node.UUID).Msg("Node already up to date")
		return res, nil
	}

	if err := s.services.Restart(ctx, s.tunnel); err != nil {
		return res, err
	}
	res.Reloaded = true

	logger.Info().
		Str("uuid", node.UUID).
		Str("endpoint", node.Endpoint()).
		Str("transport", string(node.Transport)).
		Bool("tls", node.TLS).
		Msg("Tunnel node synchronized")
	return res, nil
}
