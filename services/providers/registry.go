package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrProviderNotFound is returned when a backend is not registered
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned when trying to register a duplicate backend
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// ProviderBuilder is a function that creates a provider client
type ProviderBuilder func(config ProviderConfig) (ProviderClient, error)

// Registry maps backend names to builders and keeps the clients built from them
type Registry struct {
	mu       sync.RWMutex
	builders map[string]ProviderBuilder
	clients  map[string]ProviderClient
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		builders: make(map[string]ProviderBuilder),
		clients:  make(map[string]ProviderClient),
	}
}

// RegisterBuilder registers the builder for a backend name
func (r *Registry) RegisterBuilder(name string, builder ProviderBuilder) error {
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	if builder == nil {
		return errors.New("provider builder cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[name]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.builders[name] = builder
	return nil
}

// RegisterProvider registers an already constructed client
func (r *Registry) RegisterProvider(client ProviderClient) error {
	if client == nil {
		return errors.New("provider cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := client.Name()
	if name == "" {
		return errors.New("provider name cannot be empty")
	}
	if _, exists := r.clients[name]; exists {
		return ErrProviderAlreadyRegistered
	}
	r.clients[name] = client
	return nil
}

// Build constructs the client for the named backend and caches it
func (r *Registry) Build(name string, config ProviderConfig) (ProviderClient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[name]; ok {
		return client, nil
	}

	builder, ok := r.builders[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}

	client, err := builder(config)
	if err != nil {
		return nil, fmt.Errorf("failed to build provider %s: %w", name, err)
	}
	r.clients[name] = client
	return client, nil
}

// GetProvider retrieves a built client by name
func (r *Registry) GetProvider(name string) (ProviderClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[name]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return client, nil
}

// ListBackends returns the names of every registered builder, sorted
func (r *Registry) ListBackends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
