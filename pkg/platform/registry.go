// Package platform maps platform identifiers to their active
// configuration and the strategy implementation bound to them.
//
// New platforms are added by registering a new strategy implementation,
// not by extending existing code.
package platform

import (
	"context"
	"fmt"
	"sort"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// ConfigSource provides platform configurations. Implemented by
// jobstore.Store; kept as an interface so the registry can be tested
// without a database.
type ConfigSource interface {
	GetPlatformConfig(ctx context.Context, platform downloader.Platform) (*downloader.PlatformConfig, error)
}

// Registry resolves a platform identifier to its configuration and
// strategy. Lookups distinguish "unsupported" (unknown identifier, no
// registered strategy) from "temporarily disabled" (known platform with
// a missing or inactive configuration).
type Registry struct {
	configs    ConfigSource
	strategies map[downloader.Platform]downloader.Strategy
}

// NewRegistry creates an empty registry backed by the given
// configuration source.
func NewRegistry(configs ConfigSource) *Registry {
	return &Registry{
		configs:    configs,
		strategies: make(map[downloader.Platform]downloader.Strategy),
	}
}

// Register binds a strategy to its platform. Registering a second
// strategy for the same platform replaces the first.
func (r *Registry) Register(s downloader.Strategy) {
	r.strategies[s.Platform()] = s
}

// Lookup resolves a platform to its active configuration and strategy.
//
// Returns ErrUnsupportedPlatform for identifiers outside the known set
// or without a registered strategy, and ErrPlatformInactive for known
// platforms that are unconfigured or disabled.
func (r *Registry) Lookup(ctx context.Context, p downloader.Platform) (*downloader.PlatformConfig, downloader.Strategy, error) {
	if !p.Valid() {
		return nil, nil, &downloader.Error{Op: "Lookup", Platform: p, Err: downloader.ErrUnsupportedPlatform}
	}
	strat, ok := r.strategies[p]
	if !ok {
		return nil, nil, &downloader.Error{Op: "Lookup", Platform: p, Err: downloader.ErrUnsupportedPlatform}
	}

	cfg, err := r.configs.GetPlatformConfig(ctx, p)
	if err != nil {
		if downloader.IsNotFound(err) {
			return nil, nil, &downloader.Error{Op: "Lookup", Platform: p, Err: downloader.ErrPlatformInactive}
		}
		return nil, nil, fmt.Errorf("load platform config: %w", err)
	}
	if !cfg.Active {
		return nil, nil, &downloader.Error{Op: "Lookup", Platform: p, Err: downloader.ErrPlatformInactive}
	}

	return cfg, strat, nil
}

// Strategy returns the registered strategy for a platform without
// consulting configuration. Used by the validation probe, which must
// work even for inactive platforms' URL patterns.
func (r *Registry) Strategy(p downloader.Platform) (downloader.Strategy, bool) {
	s, ok := r.strategies[p]
	return s, ok
}

// Platforms returns the registered platform identifiers in sorted order.
func (r *Registry) Platforms() []downloader.Platform {
	out := make([]downloader.Platform, 0, len(r.strategies))
	for p := range r.strategies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
