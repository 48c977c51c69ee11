package datasource

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/models"
)

// Manager memoizes handlers per (owner, name) so repeated requests against
// the same connection reuse one pool. Disposal is explicit: Invalidate
// after a registry mutation, Close on shutdown.
type Manager struct {
	mu       sync.Mutex
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewManager creates an empty connection manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		handlers: make(map[string]Handler),
		logger:   logger.Named("datasource.manager"),
	}
}

func handlerKey(owner, name string) string {
	return owner + "\x00" + name
}

// Acquire returns the memoized handler for the spec, creating it on first
// use. The secret must already be resolved.
func (m *Manager) Acquire(ctx context.Context, spec *models.ConnectionSpec, secret string) (Handler, error) {
	key := handlerKey(spec.Owner, spec.Name)

	m.mu.Lock()
	defer m.mu.Unlock()

	if h, ok := m.handlers[key]; ok {
		return h, nil
	}

	h, err := New(ctx, spec, secret, m.logger)
	if err != nil {
		return nil, err
	}
	m.handlers[key] = h

	m.logger.Info("handler created",
		zap.String("connection", spec.Name),
		zap.String("engine", string(spec.Engine)))
	return h, nil
}

// Invalidate closes and forgets the handler for (owner, name), if any.
// Called after the connection's spec is mutated or deleted.
func (m *Manager) Invalidate(owner, name string) {
	key := handlerKey(owner, name)

	m.mu.Lock()
	h, ok := m.handlers[key]
	delete(m.handlers, key)
	m.mu.Unlock()

	if ok {
		if err := h.Close(); err != nil {
			m.logger.Warn("handler close failed", zap.String("connection", name), zap.Error(err))
		}
	}
}

// Close disposes every pooled handler. Invoked on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	handlers := m.handlers
	m.handlers = make(map[string]Handler)
	m.mu.Unlock()

	for key, h := range handlers {
		if err := h.Close(); err != nil {
			m.logger.Warn("handler close failed", zap.String("key", key), zap.Error(err))
		}
	}
}
