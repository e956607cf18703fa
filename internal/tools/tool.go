package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/google/jsonschema-go/jsonschema"
)

// tool is the generic Invocable implementation backing every built-in tool.
// In is the input struct the schema is inferred from.
type tool[In any] struct {
	name        string
	description string
	decl        ai.Tool
	schema      *jsonschema.Schema
	resolved    *jsonschema.Resolved
	fn          func(ctx context.Context, in In) (any, error)
}

// define registers a tool with Genkit (so its declaration is transmitted to
// the model) and wraps it as an Invocable the registry executes directly.
func define[In any](g *genkit.Genkit, name, description string, fn func(ctx context.Context, in In) (any, error)) (Invocable, error) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, fmt.Errorf("inferring schema for %s: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema for %s: %w", name, err)
	}

	// The Genkit-side handler delegates to the same function, so the tool
	// behaves identically if something does run it through Genkit.
	decl := genkit.DefineTool(g, name, description,
		func(tctx *ai.ToolContext, in In) (any, error) {
			return fn(tctx.Context, in)
		})

	return &tool[In]{
		name:        name,
		description: description,
		decl:        decl,
		schema:      schema,
		resolved:    resolved,
		fn:          fn,
	}, nil
}

func (t *tool[In]) Name() string               { return t.name }
func (t *tool[In]) Description() string        { return t.description }
func (t *tool[In]) Declaration() ai.Tool       { return t.decl }
func (t *tool[In]) Schema() *jsonschema.Schema { return t.schema }

// Invoke validates args against the input schema, decodes them into In and
// runs the tool function.
func (t *tool[In]) Invoke(ctx context.Context, args any) (any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	// Validate the generic decoded form; struct decoding below would
	// silently drop mismatches the model should be told about.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := t.resolved.Validate(generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	var in In
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	return t.fn(ctx, in)
}
