package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

// Builder constructs a fresh strategy instance for a run.
type Builder func(cfg Config) (Strategy, error)

// Info describes a registered strategy for status APIs.
type Info struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Defaults    map[string]any `json:"defaults,omitempty"`
}

type entry struct {
	info    Info
	builder Builder
}

// Registry manages a named collection of strategy builders that can be looked
// up at runtime. It is safe for concurrent use.
type Registry struct {
	entries map[string]entry
	mu      sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// DefaultRegistry returns a registry with every built-in strategy.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Info{
		Name:        SMACrossoverName,
		Description: "buy above the short SMA, sell below it, once the long SMA is warm",
		Defaults:    map[string]any{"short_window": DefaultShortWindow, "long_window": DefaultLongWindow},
	}, NewSMACrossover)
	r.Register(Info{
		Name:        AlwaysBuyName,
		Description: "buy every bar",
	}, NewAlwaysBuy)
	r.Register(Info{
		Name:        HoldName,
		Description: "never trade",
	}, NewHold)
	r.Register(Info{
		Name:        MeanReversionName,
		Description: "fade moves beyond k standard deviations from the rolling mean",
		Defaults:    map[string]any{"lookback": defaultLookback, "std_dev_threshold": defaultStdDevThreshold},
	}, NewMeanReversion)
	return r
}

// Register adds a builder under info.Name. An existing entry with the same
// name is replaced.
func (r *Registry) Register(info Info, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[info.Name] = entry{info: info, builder: b}
}

// Get retrieves a builder by name. Unknown names wrap domain.ErrUnknownStrategy.
func (r *Registry) Get(name string) (Builder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", name, domain.ErrUnknownStrategy)
	}
	return e.builder, nil
}

// Build looks up name and constructs a new instance with cfg.
func (r *Registry) Build(name string, cfg Config) (Strategy, error) {
	b, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	s, err := b(cfg)
	if err != nil {
		return nil, fmt.Errorf("strategy %q: %w", name, err)
	}
	return s, nil
}

// List returns the names of all registered strategies in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ListInfo returns the descriptions of all registered strategies, sorted by
// name.
func (r *Registry) ListInfo() []Info {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]Info, 0, len(names))
	for _, n := range names {
		if e, ok := r.entries[n]; ok {
			infos = append(infos, e.info)
		}
	}
	return infos
}
