package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/BaSui01/parliament/agent/persona"
	"github.com/BaSui01/parliament/llm"
)

// BackendClientFactory resolves a persona binding to a backend client.
// Implementations are built once per process and shared by concurrent
// deliberations, so they must hold no per-request state.
type BackendClientFactory interface {
	ClientFor(ref persona.ModelRef) (llm.Provider, error)
}

// ProviderTable is a BackendClientFactory over providers registered by name.
type ProviderTable struct {
	mu          sync.RWMutex
	providers   map[string]llm.Provider
	defaultName string
}

func NewProviderTable() *ProviderTable {
	return &ProviderTable{providers: make(map[string]llm.Provider)}
}

// Register adds p under name. The first registered provider becomes the
// default for bindings that name no provider.
func (t *ProviderTable) Register(name string, p llm.Provider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.providers[name] = p
	if t.defaultName == "" {
		t.defaultName = name
	}
}

// SetDefault designates an existing provider as the default.
func (t *ProviderTable) SetDefault(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.providers[name]; !ok {
		return fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	t.defaultName = name
	return nil
}

func (t *ProviderTable) ClientFor(ref persona.ModelRef) (llm.Provider, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name := ref.Provider
	if name == "" {
		name = t.defaultName
	}
	p, ok := t.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (t *ProviderTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.providers))
	for name := range t.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every provider's health check and returns the failures by name.
func (t *ProviderTable) Check(ctx context.Context) map[string]error {
	t.mu.RLock()
	snapshot := make(map[string]llm.Provider, len(t.providers))
	for name, p := range t.providers {
		snapshot[name] = p
	}
	t.mu.RUnlock()

	failures := make(map[string]error)
	for name, p := range snapshot {
		status, err := p.HealthCheck(ctx)
		if err == nil && status != nil && !status.Healthy {
			err = fmt.Errorf("provider %s reported unhealthy", name)
		}
		if err != nil {
			failures[name] = err
		}
	}
	return failures
}
