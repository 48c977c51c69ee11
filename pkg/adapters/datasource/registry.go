package datasource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/models"
)

// Factory builds a handler for a resolved connection spec. secret is the
// already-resolved credential, empty when the engine needs none.
type Factory func(ctx context.Context, spec *models.ConnectionSpec, secret string, logger *zap.Logger) (Handler, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[models.Engine]Factory)
)

// Register is called by each engine adapter's init().
func Register(engine models.Engine, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[engine] = factory
}

// IsRegistered reports whether an engine adapter is compiled in.
func IsRegistered(engine models.Engine) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[engine]
	return ok
}

// RegisteredEngines returns the compiled-in engines, sorted.
func RegisteredEngines() []models.Engine {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]models.Engine, 0, len(registry))
	for e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds a handler for the spec's engine.
func New(ctx context.Context, spec *models.ConnectionSpec, secret string, logger *zap.Logger) (Handler, error) {
	registryMu.RLock()
	factory, ok := registry[spec.Engine]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine %q is not registered", spec.Engine)
	}
	return factory(ctx, spec, secret, logger)
}
