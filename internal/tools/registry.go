// Package tools provides the tool registry and the built-in agent tools.
//
// Tools are registered with Genkit so their declarations travel with model
// requests, but the agent loop executes them itself through the Registry:
// the model layer returns tool requests instead of running anything. Every
// invocation validates its arguments against the tool's JSON schema first.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/jsonschema-go/jsonschema"
)

// Sentinel errors for registry and invocation outcomes.
var (
	// ErrUnknownTool indicates a lookup for a name that was never
	// registered. A data condition, not a bug: models hallucinate names.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrDuplicateTool indicates a second registration under the same name.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrInvalidArguments indicates the model's arguments failed schema
	// validation. Recoverable: reported back to the model as a tool failure.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Invocable is a tool the agent loop can execute.
type Invocable interface {
	// Name is the wire name the model calls the tool by.
	Name() string

	// Description tells the model what the tool does.
	Description() string

	// Declaration is the Genkit-registered tool, used to transmit the
	// tool's definition with model requests.
	Declaration() ai.Tool

	// Schema is the JSON schema of the tool's input.
	Schema() *jsonschema.Schema

	// Invoke validates args against Schema and runs the tool. Returned
	// errors are tool failures to report to the model, not loop failures.
	Invoke(ctx context.Context, args any) (any, error)
}

// Registry maps tool names to invocables. Registration happens at startup;
// lookups are concurrent with request handling, so access is mutex-guarded.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Invocable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Invocable)}
}

// Register adds a tool. Registering the same name twice is a wiring bug and
// returns ErrDuplicateTool.
func (r *Registry) Register(inv Invocable) error {
	if inv == nil {
		return fmt.Errorf("nil invocable")
	}
	name := inv.Name()
	if name == "" {
		return fmt.Errorf("invocable with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = inv
	return nil
}

// Lookup returns the tool for name, or ErrUnknownTool.
func (r *Registry) Lookup(name string) (Invocable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inv, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return inv, nil
}

// Refs returns the declarations of all registered tools in name order, for
// passing to the model layer.
func (r *Registry) Refs() []ai.ToolRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	refs := make([]ai.ToolRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, r.tools[name].Declaration())
	}
	return refs
}

// Names returns all registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
