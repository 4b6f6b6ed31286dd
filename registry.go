package aro

import (
	"fmt"
	"strings"
	"sync"
)

// SemanticRole governs whether a verb's result is bound into the caller's
// scope and whether the statement is terminal (spec §4.2 "Semantic
// roles").
type SemanticRole int

const (
	RoleRequest SemanticRole = iota
	RoleOwn
	RoleResponse
	RoleExport
	RoleService
)

// ActionFunc is a verb implementation's signature (spec §4.2).
type ActionFunc func(ctx *Context, result ResultDescriptor, object ObjectDescriptor) ActionOutcome

type registeredAction struct {
	verb string
	role SemanticRole
	fn   ActionFunc
}

// Registry is the verb table: written once at startup (builtins plus the
// tasks cmd/aro-runtime's registerPlugin adds for each loaded plugin),
// then read-only on the hot dispatch path
// — spec §5's "Route table, compiled handler table, ... written at
// startup only, thereafter read-only (no lock needed on the hot path)"
// applies equally to the verb table. The mutex only guards the brief
// registration window.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]registeredAction
	sealed  bool
}

func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]registeredAction)}
}

// Register installs a verb implementation. Verb names are lowercased on
// registration and lookup so callers never have to worry about case.
func (r *Registry) Register(verb string, role SemanticRole, fn ActionFunc) {
	r.assertUnsealed()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[strings.ToLower(verb)] = registeredAction{verb: verb, role: role, fn: fn}
}

// Seal marks the registry read-only; Register after Seal panics, since
// post-startup mutation of the verb table would violate the "written at
// startup only" invariant.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *Registry) lookup(verb string) (registeredAction, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[strings.ToLower(verb)]
	return a, ok
}

func (r *Registry) assertUnsealed() {
	r.mu.RLock()
	sealed := r.sealed
	r.mu.RUnlock()
	if sealed {
		panic(fmt.Sprintf("aro: Registry.Register called after Seal"))
	}
}

// SchemaRegistry holds parsed OpenAPI component schemas keyed by name, for
// typed event extraction and the Validate action (spec §3
// "schemaRegistry", §4.3 Validate). Schemas are stored as already-decoded
// JSON trees (map[string]any) rather than a typed struct, mirroring the
// dynamic, loosely-typed treatment the rest of the value model uses.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]any
}

func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]any)}
}

func (s *SchemaRegistry) Register(name string, schema any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[name] = schema
}

func (s *SchemaRegistry) Lookup(name string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.schemas[name]
	return v, ok
}

// Validate checks value against the named schema's required properties
// and primitive types (a pragmatic subset of JSON Schema — enough for the
// Validate action's `validation.failed` / `validation.errors` contract,
// spec §4.3). Nested schemas and $ref resolution are out of scope; a
// feature set needing more composes several Validate calls.
func (s *SchemaRegistry) Validate(name string, value Value) (bool, []string) {
	schemaAny, ok := s.Lookup(name)
	if !ok {
		return false, []string{fmt.Sprintf("unknown schema %q", name)}
	}
	schema, ok := schemaAny.(map[string]any)
	if !ok {
		return false, []string{fmt.Sprintf("schema %q is not an object schema", name)}
	}
	var errs []string
	m := value.AsMap()
	if m == nil {
		return false, []string{"value is not an object"}
	}
	if required, ok := schema["required"].([]any); ok {
		for _, reqAny := range required {
			req, _ := reqAny.(string)
			if _, present := m.Get(req); !present {
				errs = append(errs, fmt.Sprintf("missing required property %q", req))
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for key, propSchemaAny := range props {
			propVal, present := m.Get(key)
			if !present {
				continue
			}
			propSchema, _ := propSchemaAny.(map[string]any)
			if propSchema == nil {
				continue
			}
			wantType, _ := propSchema["type"].(string)
			if wantType == "" {
				continue
			}
			if !matchesJSONSchemaType(propVal, wantType) {
				errs = append(errs, fmt.Sprintf("property %q expected type %q", key, wantType))
			}
		}
	}
	return len(errs) == 0, errs
}

func matchesJSONSchemaType(v Value, wantType string) bool {
	switch wantType {
	case "string":
		return v.Kind() == KindString
	case "integer":
		return v.Kind() == KindInt
	case "number":
		return v.Kind() == KindInt || v.Kind() == KindFloat
	case "boolean":
		return v.Kind() == KindBool
	case "object":
		return v.Kind() == KindMap
	case "array":
		return v.Kind() == KindSequence
	case "null":
		return v.Kind() == KindNull
	default:
		return true
	}
}
