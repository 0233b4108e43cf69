// Package policy defines the authorization collaborator of the resource
// controller.
package policy

import (
	"errors"
	"fmt"

	"ResourceAPI/internal/model"
	"ResourceAPI/internal/query"
	"ResourceAPI/internal/resource"
)

// ErrDenied matches every DeniedError.
var ErrDenied = errors.New("not authorized")

// DeniedError is returned when a policy rejects an action.
type DeniedError struct {
	Policy string
	Action resource.Action
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("not authorized: %s.%s", e.Policy, e.Action)
}

func (e *DeniedError) Is(target error) bool {
	return target == ErrDenied
}

// Deny builds the error a policy returns to reject an action.
func Deny(policy string, action resource.Action) error {
	return &DeniedError{Policy: policy, Action: action}
}

// Policy narrows what a caller may see and write.
type Policy interface {
	// Scope narrows the base query to the rows the caller may see.
	Scope(rc *resource.Context, q *query.Query) (*query.Query, error)
	// PermittedAttributes lists the writable params for rc.Action.
	PermittedAttributes(rc *resource.Context, def *resource.Definition) []resource.Param
	// Authorize rejects an action with a DeniedError. rec is nil for
	// actions that are not about one record.
	Authorize(rc *resource.Context, rec *model.Record) error
}

// Base allows everything and permits the params declared on the resource.
// Embed it to override only some methods.
type Base struct{}

func (Base) Scope(_ *resource.Context, q *query.Query) (*query.Query, error) {
	return q, nil
}

func (Base) PermittedAttributes(_ *resource.Context, def *resource.Definition) []resource.Param {
	return def.PermittedParams
}

func (Base) Authorize(*resource.Context, *model.Record) error {
	return nil
}

// Default is used for resources without a policy.
var Default Policy = Base{}

// Registry maps policy names to policies.
type Registry struct {
	policies map[string]Policy
}

func NewRegistry() *Registry {
	return &Registry{policies: map[string]Policy{}}
}

func (r *Registry) Register(name string, p Policy) {
	r.policies[name] = p
}

// For returns the policy registered under name, Default when there is none.
func (r *Registry) For(name string) Policy {
	if r == nil || name == "" {
		return Default
	}
	if p, ok := r.policies[name]; ok {
		return p
	}
	return Default
}
