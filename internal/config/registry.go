package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/talkbuddy/pkg/provider/embeddings"
	"github.com/MrWong99/talkbuddy/pkg/provider/llm"
	"github.com/MrWong99/talkbuddy/pkg/provider/stt"
	"github.com/MrWong99/talkbuddy/pkg/provider/verify"
)

// ErrProviderNotRegistered is returned when a config names a provider no
// factory was registered for.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is the table for one provider kind. Names are matched
// case-insensitively.
type factories[T any] struct {
	kind string
	mu   sync.RWMutex
	byID map[string]Factory[T]
}

func newFactories[T any](kind string) *factories[T] {
	return &factories[T]{kind: kind, byID: make(map[string]Factory[T])}
}

func (f *factories[T]) add(name string, fn Factory[T]) {
	f.mu.Lock()
	f.byID[strings.ToLower(name)] = fn
	f.mu.Unlock()
}

func (f *factories[T]) build(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	fn, ok := f.byID[strings.ToLower(entry.Name)]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q (known: %s)", ErrProviderNotRegistered,
			f.kind, entry.Name, strings.Join(f.names(), ", "))
	}
	return fn(entry)
}

func (f *factories[T]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Sorted(maps.Keys(f.byID))
}

// Registry holds the provider factories of every kind. Registering a name
// twice replaces the earlier factory. It is safe for concurrent use.
type Registry struct {
	llm        *factories[llm.Provider]
	stt        *factories[stt.Provider]
	embeddings *factories[embeddings.Provider]
	verifier   *factories[verify.Engine]
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		llm:        newFactories[llm.Provider]("llm"),
		stt:        newFactories[stt.Provider]("stt"),
		embeddings: newFactories[embeddings.Provider]("embeddings"),
		verifier:   newFactories[verify.Engine]("verifier"),
	}
}

// RegisterLLM adds an LLM factory under name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) { r.llm.add(name, f) }

func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) { r.stt.add(name, f) }

func (r *Registry) RegisterVerifier(name string, f Factory[verify.Engine]) { r.verifier.add(name, f) }

func (r *Registry) RegisterEmbeddings(name string, f Factory[embeddings.Provider]) {
	r.embeddings.add(name, f)
}

// CreateLLM builds the LLM provider entry names. An unknown name yields
// [ErrProviderNotRegistered]; the other Create methods behave the same.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) { return r.llm.build(entry) }

func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) { return r.stt.build(entry) }

func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	return r.embeddings.build(entry)
}

func (r *Registry) CreateVerifier(entry ProviderEntry) (verify.Engine, error) {
	return r.verifier.build(entry)
}

// Names returns the sorted names registered for kind ("llm", "stt",
// "embeddings" or "verifier").
func (r *Registry) Names(kind string) []string {
	switch kind {
	case "llm":
		return r.llm.names()
	case "stt":
		return r.stt.names()
	case "embeddings":
		return r.embeddings.names()
	case "verifier":
		return r.verifier.names()
	}
	return nil
}
