// Package services implements the engine's domain logic: connection
// registry, schema filtering, profiling, column definitions, table
// insights, the pipeline orchestrator, and the semantic model builder.
package services

import (
	"fmt"
	"os"
	"sync"

	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/models"
)

// SessionCache holds short-lived credentials keyed by (owner, name).
// Entries live until explicitly cleared, typically on session end.
type SessionCache struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewSessionCache creates an empty session credential cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{secrets: make(map[string]string)}
}

func sessionKey(owner, name string) string {
	return owner + "\x00" + name
}

// Put stores a credential for (owner, name).
func (c *SessionCache) Put(owner, name, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secrets[sessionKey(owner, name)] = secret
}

// Get returns the cached credential, if present.
func (c *SessionCache) Get(owner, name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.secrets[sessionKey(owner, name)]
	return s, ok
}

// Clear removes the credential for (owner, name).
func (c *SessionCache) Clear(owner, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.secrets, sessionKey(owner, name))
}

// ClearOwner removes every credential belonging to an owner.
func (c *SessionCache) ClearOwner(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := owner + "\x00"
	for k := range c.secrets {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.secrets, k)
		}
	}
}

// engineNeedsCredential reports whether the engine requires a secret at
// all. Embedded engines and BigQuery (credentials file or ADC) do not.
func engineNeedsCredential(engine models.Engine) bool {
	switch engine {
	case models.EngineSQLite, models.EngineDuckDB, models.EngineBigQuery:
		return false
	}
	return true
}

// ResolveCredential produces the connection secret for a spec, honoring
// the three strategies in order: inline, environment indirection, session
// cache. A missing credential is fatal and surfaces as AuthMissing.
func ResolveCredential(spec *models.ConnectionSpec, sessions *SessionCache) (string, error) {
	if !engineNeedsCredential(spec.Engine) {
		return "", nil
	}

	if spec.Credentials.Inline != "" {
		return spec.Credentials.Inline, nil
	}

	if spec.Credentials.EnvVar != "" {
		if v := os.Getenv(spec.Credentials.EnvVar); v != "" {
			return v, nil
		}
		return "", apperrors.New(apperrors.KindAuthMissing,
			fmt.Sprintf("environment variable %s for connection %q is not set", spec.Credentials.EnvVar, spec.Name))
	}

	if spec.Credentials.FromSession && sessions != nil {
		if v, ok := sessions.Get(spec.Owner, spec.Name); ok {
			return v, nil
		}
	}

	return "", apperrors.New(apperrors.KindAuthMissing,
		fmt.Sprintf("no credential available for connection %q", spec.Name))
}
