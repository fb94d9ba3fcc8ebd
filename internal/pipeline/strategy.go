package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Strategy is the trust boundary for one file family. Prove decides,
// authoritatively, whether a byte stream is what it claims to be and
// produces a canonical safe re-encoding; Normalize commits the
// canonical form and is idempotent given the same proved context.
//
// Strategies are selected per Policy and replaceable without touching
// the pipeline orchestration: registering a new family is the system's
// primary extension point.
type Strategy interface {
	// Family names the file family this strategy covers ("image", ...).
	Family() string

	// Prove validates structure and content-sniffs the true type. It
	// fails with *SizeError, *SpoofError, *StructureError, or
	// *DecodeError — all terminal rejections of the specific upload.
	Prove(ctx context.Context, fc FileContext) (FileContext, error)

	// Normalize commits the canonical form. For families where proof
	// already produced the canonical bytes it returns the context
	// unchanged.
	Normalize(ctx context.Context, fc FileContext) (FileContext, error)
}

// StrategyFactory builds a Strategy from policy options, letting each
// policy carry its own ceilings and allow-lists.
type StrategyFactory func(opts Options) Strategy

var (
	strategies   = make(map[string]StrategyFactory)
	strategiesMu sync.RWMutex
)

// RegisterStrategy adds a strategy factory for a file family.
// Panics if the family is already registered.
func RegisterStrategy(family string, f StrategyFactory) {
	strategiesMu.Lock()
	defer strategiesMu.Unlock()

	if _, exists := strategies[family]; exists {
		panic(fmt.Sprintf("strategy already registered: %s", family))
	}
	strategies[family] = f
}

// StrategyFor builds the strategy for a family with the given options.
// Returns false if no strategy is registered for the family.
func StrategyFor(family string, opts Options) (Strategy, bool) {
	strategiesMu.RLock()
	defer strategiesMu.RUnlock()

	f, ok := strategies[family]
	if !ok {
		return nil, false
	}
	return f(opts), true
}

// Families returns all registered family names, sorted.
func Families() []string {
	strategiesMu.RLock()
	defer strategiesMu.RUnlock()

	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearStrategies removes all registered strategies.
// Primarily useful for testing.
func ClearStrategies() {
	strategiesMu.Lock()
	defer strategiesMu.Unlock()
	strategies = make(map[string]StrategyFactory)
}
