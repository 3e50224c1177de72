// Package command defines the command envelope and validation entry points.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAggregateIDRequired indicates a missing aggregate id on a mutating command.
	ErrAggregateIDRequired = errors.New("aggregate id is required")
	// ErrAggregateIDForbidden indicates an aggregate id on a creation command.
	ErrAggregateIDForbidden = errors.New("aggregate id must be empty for creation commands")
	// ErrTypeRequired indicates a missing command type.
	ErrTypeRequired = errors.New("command type is required")
	// ErrTypeUnknown indicates an unregistered command type.
	ErrTypeUnknown = errors.New("command type is not registered")
	// ErrPayloadInvalid indicates malformed payload JSON.
	ErrPayloadInvalid = errors.New("payload json must be valid")
)

// Type identifies the command type string.
type Type string

// Command captures the canonical command envelope. Commands are transient:
// they are never persisted, only validated and decided against current state.
type Command struct {
	// AggregateID targets an existing aggregate. Empty for creation commands;
	// the dispatcher mints a fresh id in that case.
	AggregateID string
	// Type identifies the kind of command.
	Type Type
	// CorrelationID binds the command to one business transaction.
	CorrelationID string
	// CausationID is the id of the event that caused this command, when a saga
	// emitted it in reaction to an observed event.
	CausationID string
	// PayloadJSON holds command-specific data as JSON.
	PayloadJSON []byte
}

// PayloadValidator validates a payload JSON document.
type PayloadValidator func(json.RawMessage) error

// Definition registers metadata for a command type.
type Definition struct {
	Type Type
	// Creates marks a creation command: the target aggregate must not exist
	// yet and the dispatcher mints its id.
	Creates bool
	// AllowTargeted permits a creation command to carry a caller-chosen
	// aggregate id instead of a minted one.
	AllowTargeted   bool
	ValidatePayload PayloadValidator
}

// Registry stores command definitions and validates commands.
type Registry struct {
	definitions map[Type]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Type]Definition)}
}

// Register adds a new command type definition to the registry.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = Type(strings.TrimSpace(string(def.Type)))
	if def.Type == "" {
		return ErrTypeRequired
	}
	if r.definitions == nil {
		r.definitions = make(map[Type]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("command type already registered: %s", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// Definition returns the registered definition for a command type.
func (r *Registry) Definition(t Type) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.definitions[t]
	return def, ok
}

// Types returns all registered command types in sorted order.
func (r *Registry) Types() []Type {
	if r == nil {
		return nil
	}
	types := make([]Type, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ValidateForDispatch validates and normalizes a command before dispatch.
func (r *Registry) ValidateForDispatch(cmd Command) (Command, error) {
	cmd.Type = Type(strings.TrimSpace(string(cmd.Type)))
	if cmd.Type == "" {
		return Command{}, ErrTypeRequired
	}
	def, ok := r.definitions[cmd.Type]
	if !ok {
		return Command{}, ErrTypeUnknown
	}

	cmd.AggregateID = strings.TrimSpace(cmd.AggregateID)
	if def.Creates {
		if cmd.AggregateID != "" && !def.AllowTargeted {
			return Command{}, ErrAggregateIDForbidden
		}
	} else if cmd.AggregateID == "" {
		return Command{}, ErrAggregateIDRequired
	}

	if len(cmd.PayloadJSON) == 0 {
		cmd.PayloadJSON = []byte("{}")
	}
	if !json.Valid(cmd.PayloadJSON) {
		return Command{}, ErrPayloadInvalid
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(cmd.PayloadJSON); err != nil {
			return Command{}, fmt.Errorf("validate %s payload: %w", cmd.Type, err)
		}
	}
	return cmd, nil
}
