package videomodel

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Credentials carries what a constructor needs to talk to its service.
type Credentials struct {
	APIKey string
}

// Constructor builds an adapter from resolved credentials.
type Constructor func(creds Credentials) (Adapter, error)

type registration struct {
	ctor Constructor
	// envKey names the environment variable holding the API key; empty
	// means the adapter needs no credentials (mock).
	envKey string
}

// Registry maps model names to adapter constructors. Registration is
// process-local; main wires the known adapters at startup.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registration
}

// DefaultModel is used when a segment's params carry no model key.
const DefaultModel = "mock"

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registration)}
}

// Register binds a model name (and its credential env var) to a constructor.
// Later registrations for the same name win.
func (r *Registry) Register(name, envKey string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[strings.ToLower(name)] = registration{ctor: ctor, envKey: envKey}
}

// New resolves a model name to a freshly constructed adapter. Unknown names
// are a terminal WORKFLOW error; a missing API key is a terminal PARAMETERS
// error except for adapters registered without an env key.
func (r *Registry) New(name string) (Adapter, error) {
	if name == "" {
		name = DefaultModel
	}
	r.mu.RLock()
	reg, ok := r.entries[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, NewError(CodeWorkflow, fmt.Sprintf("unsupported model %q", name), nil)
	}
	var creds Credentials
	if reg.envKey != "" {
		creds.APIKey = os.Getenv(reg.envKey)
		if creds.APIKey == "" {
			return nil, NewError(CodeParameters, fmt.Sprintf("missing API key %s for model %q", reg.envKey, name), nil)
		}
	}
	return reg.ctor(creds)
}

// Names lists the registered model names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	return out
}

// ModelFromParams extracts the adapter selector from segment model params.
func ModelFromParams(params map[string]any) string {
	if v, ok := params["model"].(string); ok && v != "" {
		return v
	}
	return DefaultModel
}
