package core

import (
	"fmt"
	"strings"
	"sync"
)

// ModuleRegistry is the in-process substitute for the original's shared-
// object module loader (spec.md section 9, "dynamic dispatch"): modules
// register a factory under a name at process startup, and Load resolves
// names the same way module_manager.cpp walks a '?'-templated search path,
// trying each entry in order and reporting ErrModuleNotFound only once
// every candidate has missed.
type ModuleRegistry struct {
	mu          sync.RWMutex
	factories   map[string]ModuleFactory
	searchPaths []string // cservice_path entries, '?' substituted with name
}

// NewModuleRegistry builds a loader over the given cservice_path search
// list (may be empty — registered names still resolve directly).
func NewModuleRegistry(searchPaths []string) *ModuleRegistry {
	return &ModuleRegistry{
		factories:   make(map[string]ModuleFactory),
		searchPaths: searchPaths,
	}
}

// Register binds a module name to a factory. Call during startup wiring,
// before the coordinator begins creating services.
func (m *ModuleRegistry) Register(name string, f ModuleFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = f
}

// SetSearchPaths atomically replaces the cservice_path search list, so a
// config file edit can be picked up by future Load calls without a
// restart. See config.WatchSearchPaths.
func (m *ModuleRegistry) SetSearchPaths(paths []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchPaths = paths
}

// Load resolves name to a fresh Module instance. It first tries a direct
// registration match, then walks the search-path list substituting '?' for
// name (mirroring the original's file-path probing, even though a Go
// ModuleFactory has no filesystem entry to stat — the candidate path is
// reported in ErrModuleNotFound for diagnostics).
func (m *ModuleRegistry) Load(name string) (Module, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if f, ok := m.factories[name]; ok {
		return f(), nil
	}

	var tried []string
	for _, pattern := range m.searchPaths {
		candidate := strings.ReplaceAll(pattern, "?", name)
		tried = append(tried, candidate)
		if f, ok := m.factories[candidate]; ok {
			return f(), nil
		}
	}
	if len(tried) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrModuleNotFound, name)
	}
	return nil, fmt.Errorf("%w: %q (tried %v)", ErrModuleNotFound, name, tried)
}
