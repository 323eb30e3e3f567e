package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Result is what a tool hands back. A non-empty HandoffTo marks the result
// as a control transfer to another agent; Output still becomes the tool
// message content either way.
type Result struct {
	Output    string
	HandoffTo string

	// callID ties a result back to the call that produced it. The
	// dispatcher fills it in; handlers never set it.
	callID string
}

// Handler executes a tool call.
type Handler func(ctx context.Context, args map[string]interface{}) (Result, error)

// Parameter describes one tool argument.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// Definition is a named, schema-described callable. Concurrent marks a tool
// as safe to run alongside other tool calls of the same interaction;
// everything else executes sequentially to preserve order-dependent side
// effects such as shell state.
type Definition struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Parameters  []Parameter   `json:"parameters"`
	Handler     Handler       `json:"-"`
	Concurrent  bool          `json:"concurrent,omitempty"`
	Timeout     time.Duration `json:"-"`
}

// Schema is the provider-facing description of a tool.
type Schema struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Registry holds tool definitions and their compiled parameter schemas.
type Registry struct {
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register validates a definition, compiles its parameter schema, and adds it.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := compileSchema(def)
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema

	log.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Get returns a tool definition by name, or nil.
func (r *Registry) Get(name string) *Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Schemas resolves the named tools into provider-facing schemas. Unknown
// names are an error here: an agent definition referencing a missing tool is
// a configuration bug, not a model mistake.
func (r *Registry) Schemas(names []string) ([]Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(names))
	for _, name := range names {
		def, ok := r.tools[name]
		if !ok {
			return nil, fmt.Errorf("tool not found: %s", name)
		}
		schemas = append(schemas, Schema{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchemaMap(*def),
		})
	}
	return schemas, nil
}

// ValidateArgs checks arguments against a tool's compiled schema.
func (r *Registry) ValidateArgs(name string, args map[string]interface{}) error {
	r.mu.RLock()
	schema := r.schemas[name]
	r.mu.RUnlock()

	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
	}
	return nil
}

// inputSchemaMap builds the JSON-schema object sent to providers.
func inputSchemaMap(def Definition) map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func compileSchema(def Definition) (*gojsonschema.Schema, error) {
	schemaMap := inputSchemaMap(def)
	schemaMap["additionalProperties"] = false
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}
