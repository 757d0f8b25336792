// Package registry implements the EngineRegistry: a lazily populated map
// from symbol to MatchingEngine. Grounded in the teacher's engine.New
// construction and the original Python source's get_engine/_engines
// pattern, made safe for concurrent arrivals from multiple partitions via
// double-checked locking around the map.
package registry

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/saiputravu/matchd/internal/engine"
)

// Registry is a lazy symbol -> *engine.Engine map. Engine creation is rare
// (one per distinct symbol ever seen), so a single mutex taken only on
// lookup/insert is sufficient.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*engine.Engine
}

func New() *Registry {
	return &Registry{engines: make(map[string]*engine.Engine)}
}

// GetOrCreate returns the engine for symbol, starting a new one if this is
// the first time symbol has been seen.
func (r *Registry) GetOrCreate(symbol string) *engine.Engine {
	r.mu.RLock()
	e, ok := r.engines[symbol]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.engines[symbol]; ok {
		return e
	}
	e = engine.New(symbol)
	r.engines[symbol] = e
	log.Info().Str("symbol", symbol).Msg("started engine")
	return e
}

// Lookup returns the engine for symbol without creating one. Used by the
// read-only admin surface, which must never bring a symbol's engine into
// existence as a side effect of a query.
func (r *Registry) Lookup(symbol string) (*engine.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[symbol]
	return e, ok
}

// Symbols returns every symbol with a running engine.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for s := range r.engines {
		out = append(out, s)
	}
	return out
}

// StopAll stops every engine in the registry, used on graceful shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for symbol, e := range r.engines {
		if err := e.Stop(); err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("engine failed to stop cleanly")
		}
	}
}
