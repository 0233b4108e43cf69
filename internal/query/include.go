package query

// Include is one branch of a preload tree. Scope and Limit apply to this
// branch only; children carry their own.
type Include struct {
	Name     string
	Children []Include
	Scope    Scope
	Limit    int
}

// Scoped reports whether the branch restricts the default association query.
func (i Include) Scoped() bool {
	return i.Scope != nil || i.Limit > 0
}
