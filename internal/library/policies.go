package library

import (
	"ResourceAPI/internal/model"
	"ResourceAPI/internal/policy"
	"ResourceAPI/internal/query"
	"ResourceAPI/internal/resource"

	"github.com/Masterminds/squirrel"
)

// RegisterPolicies installs the catalogue policies. The identity is the
// caller id the router takes from the identity header; anonymous callers
// have none.
func RegisterPolicies(policies *policy.Registry) {
	policies.Register(PolicyBooks, bookPolicy{})
	policies.Register(PolicyReviews, reviewPolicy{})
}

type bookPolicy struct {
	policy.Base
}

// Anonymous callers may not delete books or archive them in bulk.
func (bookPolicy) Authorize(rc *resource.Context, _ *model.Record) error {
	if rc.Identity != nil {
		return nil
	}
	switch rc.Action {
	case resource.Destroy, resource.BatchDelete:
		return policy.Deny(PolicyBooks, rc.Action)
	}
	return nil
}

// Anonymous callers only write the book itself, not its author or tags.
func (bookPolicy) PermittedAttributes(rc *resource.Context, def *resource.Definition) []resource.Param {
	if rc.Identity != nil {
		return def.PermittedParams
	}
	out := make([]resource.Param, 0, len(def.PermittedParams))
	for _, p := range def.PermittedParams {
		if len(p.Nested) == 0 {
			out = append(out, p)
		}
	}
	return out
}

type reviewPolicy struct {
	policy.Base
}

// Anonymous callers see published reviews only.
func (reviewPolicy) Scope(rc *resource.Context, q *query.Query) (*query.Query, error) {
	if rc.Identity != nil {
		return q, nil
	}
	return q.Where(squirrel.Eq{q.Column("published"): true}), nil
}

func (reviewPolicy) Authorize(rc *resource.Context, _ *model.Record) error {
	if rc.Identity != nil {
		return nil
	}
	switch rc.Action {
	case resource.Update, resource.Destroy, resource.BatchUpdate, resource.BatchDelete:
		return policy.Deny(PolicyReviews, rc.Action)
	}
	return nil
}
