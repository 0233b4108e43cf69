package resource

import (
	"fmt"
	"regexp"
	"strings"

	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/query"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Action is the controller action a request is served by.
type Action string

const (
	Index       Action = "index"
	Show        Action = "show"
	Create      Action = "create"
	Update      Action = "update"
	Destroy     Action = "destroy"
	BatchUpdate Action = "batch_update"
	BatchDelete Action = "batch_delete"
	Upload      Action = "upload"
)

// Params are the parsed request parameters the composer and hooks read.
type Params struct {
	ID         string
	Page       int
	PerPage    int
	PerPageSet bool
	Search     string
	Filters    []query.FilterClause
	Sort       query.SortSpec

	// Raw holds the decoded query string and body for hooks that need more.
	Raw map[string]any
}

// Context is the per-request context handed to conditions, scopes and hooks.
type Context struct {
	Action   Action
	Identity any
	Params   Params
}

// Env is the variable set YAML conditions are evaluated against.
func (c *Context) Env() map[string]any {
	raw := c.Params.Raw
	if raw == nil {
		raw = map[string]any{}
	}
	return map[string]any{
		"action":   string(c.Action),
		"identity": c.Identity,
		"params":   raw,
		"search":   c.Params.Search,
	}
}

// Condition decides per request whether a relationship spec is applied.
type Condition func(rc *Context) bool

// Always is a static condition.
func Always(v bool) Condition {
	return func(*Context) bool { return v }
}

var conditionEnv = map[string]any{
	"action":   "",
	"identity": nil,
	"params":   map[string]any{},
	"search":   "",
}

// CompileCondition compiles a boolean expression such as
// `action == "show" && identity != nil`.
func CompileCondition(src string) (Condition, error) {
	src = strings.TrimSpace(src)
	switch src {
	case "", "true":
		return Always(true), nil
	case "false":
		return Always(false), nil
	}
	program, err := expr.Compile(src, expr.Env(conditionEnv), expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", src, err)
	}
	return programCondition(src, program), nil
}

// programCondition treats a failing run as false.
func programCondition(src string, program *vm.Program) Condition {
	return func(rc *Context) bool {
		out, err := expr.Run(program, rc.Env())
		if err != nil {
			logger.Warn("condition_error", map[string]any{
				"condition": src,
				"action":    string(rc.Action),
				"error":     err.Error(),
			})
			return false
		}
		b, _ := out.(bool)
		return b
	}
}

var truthy = regexp.MustCompile(`(?i)^(true|t|yes|y|1)$`)

// ToBool reads request flags the way clients send them: true, t, yes, y and 1 are true.
func ToBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case nil:
		return false
	}
	return truthy.MatchString(strings.TrimSpace(fmt.Sprint(v)))
}
