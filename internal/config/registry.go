package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/speakcheck/pkg/audio"
	"github.com/MrWong99/speakcheck/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned when a config entry names a provider
// with no registered factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// SourceOpener opens a fresh audio source for one recording.
type SourceOpener = func(ctx context.Context) (audio.Source, error)

// Factory builds a provider of type T from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is a named set of factories for one provider kind.
type factories[T any] struct {
	kind string
	mu   sync.RWMutex
	byID map[string]Factory[T]
}

func newFactories[T any](kind string) *factories[T] {
	return &factories[T]{kind: kind, byID: make(map[string]Factory[T])}
}

func (f *factories[T]) register(name string, fn Factory[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[name] = fn
}

func (f *factories[T]) create(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	fn, ok := f.byID[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return fn(entry)
}

func (f *factories[T]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.byID))
}

// Registry resolves the engine and source names used in config files to
// constructors. Safe for concurrent use. Registering a name twice replaces
// the earlier factory.
type Registry struct {
	engines *factories[stt.Engine]
	sources *factories[SourceOpener]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		engines: newFactories[stt.Engine]("engine"),
		sources: newFactories[SourceOpener]("source"),
	}
}

// RegisterEngine registers a recognition engine factory under name.
func (r *Registry) RegisterEngine(name string, fn Factory[stt.Engine]) { r.engines.register(name, fn) }

// RegisterSource registers an audio source factory under name.
func (r *Registry) RegisterSource(name string, fn Factory[SourceOpener]) { r.sources.register(name, fn) }

// CreateEngine builds the engine named by entry.Name.
func (r *Registry) CreateEngine(entry ProviderEntry) (stt.Engine, error) {
	return r.engines.create(entry)
}

// CreateSource builds the source opener named by entry.Name.
func (r *Registry) CreateSource(entry ProviderEntry) (SourceOpener, error) {
	return r.sources.create(entry)
}

// Names returns the sorted registered names for kind, "engine" or "source".
func (r *Registry) Names(kind string) []string {
	switch kind {
	case r.engines.kind:
		return r.engines.names()
	case r.sources.kind:
		return r.sources.names()
	}
	return nil
}
