package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is a cached, thread-safe view over a Repository.
//
// The cache is loaded by RefreshCache on startup and updated by every
// write made through the registry.
type Registry struct {
	repo    Repository
	cache   map[string]*Endpoint
	cacheMu sync.RWMutex

	// createMu serialises CreateIfNotExists so concurrent materializations
	// of the same device cannot both insert.
	createMu sync.Mutex

	logger Logger
}

// NewRegistry creates a registry backed by repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Endpoint),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// RefreshCache reloads all endpoints from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	endpoints, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading endpoints: %w", err)
	}

	cache := make(map[string]*Endpoint, len(endpoints))
	for i := range endpoints {
		cache[endpoints[i].ID] = endpoints[i].DeepCopy()
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	r.logger.Info("endpoint cache refreshed", "count", len(endpoints))
	return nil
}

// Get returns a copy of the endpoint with the given ID.
func (r *Registry) Get(ctx context.Context, id string) (*Endpoint, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	e, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = e.DeepCopy()
	r.cacheMu.Unlock()

	return e, nil
}

// Exists reports whether an endpoint with the given ID is known.
func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	_, err := r.Get(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrEndpointNotFound):
		return false, nil
	default:
		return false, err
	}
}

// CreateIfNotExists validates and persists e unless an endpoint with the
// same ID already exists. It reports whether a new endpoint was created.
func (r *Registry) CreateIfNotExists(ctx context.Context, e *Endpoint) (bool, error) {
	if err := ValidateEndpoint(e); err != nil {
		return false, err
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	exists, err := r.Exists(ctx, e.ID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if err := r.repo.Create(ctx, e); err != nil {
		if errors.Is(err, ErrEndpointExists) {
			return false, nil
		}
		return false, err
	}

	r.cacheMu.Lock()
	r.cache[e.ID] = e.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("endpoint created", "id", e.ID, "name", e.Name, "category", e.Category)
	return true, nil
}

// Count returns the number of cached endpoints.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
