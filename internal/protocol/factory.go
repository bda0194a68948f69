package protocol

import (
	"fmt"
	"sort"
	"strings"

	"github.com/muurk/groundlink/internal/syncutil"
)

// Spec names a protocol and its positional arguments as written in an
// interface definition, e.g. {Name: "stream", Args: ["2", "0x1ACF", "true"]}.
type Spec struct {
	Name string
	Args []string
}

// Options carries collaborators shared by every protocol of one chain.
type Options struct {
	Reporter DiscardReporter
}

// Constructor builds a fresh protocol instance from positional arguments.
type Constructor func(args []string, opts Options) (Protocol, error)

var (
	registryMu syncutil.RWMutex
	registry   = map[string]Constructor{
		"stream":         newStreamFromArgs,
		"streamprotocol": newStreamFromArgs,
	}
)

// Register adds a named protocol constructor. Names are case-insensitive.
func Register(name string, c Constructor) error {
	key := strings.ToLower(strings.TrimSpace(name))
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistered, name)
	}
	registry[key] = c
	return nil
}

// Names returns the registered protocol names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds one protocol from a spec.
func New(spec Spec, opts Options) (Protocol, error) {
	registryMu.RLock()
	c, ok := registry[strings.ToLower(strings.TrimSpace(spec.Name))]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, spec.Name)
	}

	p, err := c(spec.Args, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s protocol: %w", spec.Name, err)
	}
	return p, nil
}

// BuildChain builds a fresh chain from specs in read order. Call it once per
// connection; chains must not be shared.
func BuildChain(specs []Spec, opts Options) (*Chain, error) {
	chain := NewChain()
	for i, spec := range specs {
		p, err := New(spec, opts)
		if err != nil {
			return nil, fmt.Errorf("protocol %d: %w", i, err)
		}
		chain.Add(p)
	}
	return chain, nil
}

// newStreamFromArgs takes [discard_leading_bytes, sync_pattern, fill_fields],
// all optional.
func newStreamFromArgs(args []string, opts Options) (Protocol, error) {
	if len(args) > 3 {
		return nil, fmt.Errorf("%w: stream takes at most 3, got %d", ErrTooManyArguments, len(args))
	}

	var cfg StreamConfig
	var err error
	if len(args) > 0 {
		if cfg.DiscardLeadingBytes, err = parseDiscard(args[0]); err != nil {
			return nil, err
		}
	}
	if len(args) > 1 {
		if cfg.SyncPattern, err = ParseSyncPattern(args[1]); err != nil {
			return nil, err
		}
	}
	if len(args) > 2 {
		if cfg.FillFields, err = parseBool(args[2]); err != nil {
			return nil, err
		}
	}

	return NewStreamProtocol(cfg, WithReporter(opts.Reporter))
}
