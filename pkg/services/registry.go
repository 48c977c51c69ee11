package services

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/models"
)

// ConnectionRegistry resolves named connections across three tiers with
// fixed precedence: user > system > file. Only the user tier is mutable
// through this interface.
type ConnectionRegistry struct {
	mu     sync.RWMutex
	user   map[string]map[string]*models.ConnectionSpec // owner -> name -> spec
	system map[string]*models.ConnectionSpec
	file   map[string]*models.ConnectionSpec

	manager  *datasource.Manager
	sessions *SessionCache
	logger   *zap.Logger
}

// NewConnectionRegistry builds a registry over the given manager. system
// and file specs are read-only snapshots.
func NewConnectionRegistry(manager *datasource.Manager, sessions *SessionCache, system, file []models.ConnectionSpec, logger *zap.Logger) *ConnectionRegistry {
	r := &ConnectionRegistry{
		user:     make(map[string]map[string]*models.ConnectionSpec),
		system:   make(map[string]*models.ConnectionSpec),
		file:     make(map[string]*models.ConnectionSpec),
		manager:  manager,
		sessions: sessions,
		logger:   logger.Named("registry"),
	}
	for i := range system {
		s := system[i]
		s.Tier = models.TierSystem
		r.system[s.Name] = &s
	}
	for i := range file {
		s := file[i]
		s.Tier = models.TierFile
		r.file[s.Name] = &s
	}
	return r
}

// connectionsFile is the YAML shape of the file tier.
type connectionsFile struct {
	Connections map[string]models.ConnectionSpec `yaml:"connections"`
}

// LoadConnectionsFile reads file-tier specs from a YAML document keyed by
// connection name. A missing file yields an empty tier.
func LoadConnectionsFile(path string) ([]models.ConnectionSpec, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read connections file: %w", err)
	}

	var doc connectionsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse connections file: %w", err)
	}

	specs := make([]models.ConnectionSpec, 0, len(doc.Connections))
	for name, spec := range doc.Connections {
		spec.Name = name
		if !spec.Engine.Valid() {
			return nil, fmt.Errorf("connection %q has unknown engine %q", name, spec.Engine)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Get returns the spec for (owner, name), walking the tiers in
// precedence order.
func (r *ConnectionRegistry) Get(owner, name string) (*models.ConnectionSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(owner, name)
}

func (r *ConnectionRegistry) lookupLocked(owner, name string) (*models.ConnectionSpec, error) {
	if byName, ok := r.user[owner]; ok {
		if spec, ok := byName[name]; ok {
			return spec, nil
		}
	}
	if spec, ok := r.system[name]; ok {
		return spec, nil
	}
	if spec, ok := r.file[name]; ok {
		return spec, nil
	}
	return nil, apperrors.New(apperrors.KindNotFound, fmt.Sprintf("connection %q not found", name))
}

// Exists reports whether (owner, name) resolves in any tier.
func (r *ConnectionRegistry) Exists(owner, name string) bool {
	_, err := r.Get(owner, name)
	return err == nil
}

// List returns the specs visible to an owner: their user-tier specs plus
// the shared system and file tiers, shadowed by name.
func (r *ConnectionRegistry) List(owner string) []models.ConnectionSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	var out []models.ConnectionSpec
	for _, spec := range r.user[owner] {
		out = append(out, *spec)
		seen[spec.Name] = true
	}
	for _, spec := range r.system {
		if !seen[spec.Name] {
			out = append(out, *spec)
			seen[spec.Name] = true
		}
	}
	for _, spec := range r.file {
		if !seen[spec.Name] {
			out = append(out, *spec)
		}
	}
	return out
}

// Resolve looks up the spec, resolves its credential, and returns a
// ready handler from the memoized pool.
func (r *ConnectionRegistry) Resolve(ctx context.Context, owner, name string) (datasource.Handler, *models.ConnectionSpec, error) {
	spec, err := r.Get(owner, name)
	if err != nil {
		return nil, nil, err
	}

	resolved := *spec
	resolved.Owner = owner

	secret, err := ResolveCredential(&resolved, r.sessions)
	if err != nil {
		return nil, nil, err
	}

	h, err := r.manager.Acquire(ctx, &resolved, secret)
	if err != nil {
		return nil, nil, err
	}
	return h, &resolved, nil
}

// Add creates a user-tier spec. Fails when the owner already has one with
// the same name.
func (r *ConnectionRegistry) Add(owner string, spec models.ConnectionSpec) error {
	if !spec.Engine.Valid() {
		return apperrors.New(apperrors.KindValidation, fmt.Sprintf("unknown engine %q", spec.Engine))
	}
	if spec.Name == "" {
		return apperrors.New(apperrors.KindValidation, "connection name is required")
	}

	r.mu.Lock()
	if byName, ok := r.user[owner]; ok {
		if _, exists := byName[spec.Name]; exists {
			r.mu.Unlock()
			return apperrors.New(apperrors.KindValidation, fmt.Sprintf("connection %q already exists", spec.Name))
		}
	} else {
		r.user[owner] = make(map[string]*models.ConnectionSpec)
	}

	spec.Owner = owner
	spec.Tier = models.TierUser
	r.user[owner][spec.Name] = &spec
	r.mu.Unlock()

	// The new spec may shadow a shared-tier connection of the same name
	// whose handler is already pooled for this owner.
	r.manager.Invalidate(owner, spec.Name)
	r.logger.Info("connection added", zap.String("owner", owner), zap.String("name", spec.Name))
	return nil
}

// Update replaces a user-tier spec and invalidates the memoized handler.
func (r *ConnectionRegistry) Update(owner string, spec models.ConnectionSpec) error {
	if !spec.Engine.Valid() {
		return apperrors.New(apperrors.KindValidation, fmt.Sprintf("unknown engine %q", spec.Engine))
	}

	r.mu.Lock()
	byName, ok := r.user[owner]
	if ok {
		_, ok = byName[spec.Name]
	}
	if !ok {
		r.mu.Unlock()
		return apperrors.New(apperrors.KindNotFound, fmt.Sprintf("connection %q not found", spec.Name))
	}
	spec.Owner = owner
	spec.Tier = models.TierUser
	byName[spec.Name] = &spec
	r.mu.Unlock()

	r.manager.Invalidate(owner, spec.Name)
	r.logger.Info("connection updated", zap.String("owner", owner), zap.String("name", spec.Name))
	return nil
}

// SetPredefinedSchemas replaces the per-schema filter map on a
// connection. A system- or file-tier spec is shadowed into the caller's
// user tier first, since shared tiers are read-only.
func (r *ConnectionRegistry) SetPredefinedSchemas(owner, name string, schemas map[string]*models.SchemaFilter) error {
	r.mu.Lock()
	spec, err := r.lookupLocked(owner, name)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	updated := *spec
	updated.Owner = owner
	updated.Tier = models.TierUser
	updated.PredefinedSchemas = schemas

	if r.user[owner] == nil {
		r.user[owner] = make(map[string]*models.ConnectionSpec)
	}
	r.user[owner][name] = &updated
	r.mu.Unlock()

	r.manager.Invalidate(owner, name)
	return nil
}

// Delete removes a user-tier spec, its cached handler, and any session
// credential.
func (r *ConnectionRegistry) Delete(owner, name string) error {
	r.mu.Lock()
	byName, ok := r.user[owner]
	if ok {
		_, ok = byName[name]
	}
	if !ok {
		r.mu.Unlock()
		return apperrors.New(apperrors.KindNotFound, fmt.Sprintf("connection %q not found", name))
	}
	delete(byName, name)
	r.mu.Unlock()

	r.manager.Invalidate(owner, name)
	r.sessions.Clear(owner, name)
	r.logger.Info("connection deleted", zap.String("owner", owner), zap.String("name", name))
	return nil
}
