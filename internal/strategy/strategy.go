// Package strategy defines the Strategy callback contract consumed by the
// backtest orchestrator and provides a Registry for managing multiple
// strategy implementations.
package strategy

import (
	"sort"

	"backsim/internal/domain"
)

// Strategy is the narrow contract between the backtest core and a trading
// strategy. Implementations are driven synchronously, one bar at a time, and
// must not block.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Initialize seeds the strategy with warm-up bars before the replay
	// starts.
	Initialize(warmup []domain.Bar)

	// OnBar observes one bar and may return at most one signal, or nil.
	OnBar(bar domain.Bar) *domain.Signal

	// Reset clears all accumulated state so the strategy can be rerun.
	Reset()

	// PerformanceStats returns the strategy's own tallies for the final
	// report.
	PerformanceStats() map[string]any
}

// Registry holds a named collection of strategies for lookup and enumeration.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry, keyed by its Name().
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
