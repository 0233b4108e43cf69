// Package serializer projects records and their loaded associations into
// plain maps following declared attribute lists.
package serializer

import (
	"fmt"

	"ResourceAPI/internal/model"
)

// Kind tells which variant an Attribute is.
type Kind int

const (
	KindField Kind = iota
	KindComputed
	KindEmbedded
	KindDelegate
)

func (k Kind) String() string {
	switch k {
	case KindField:
		return "field"
	case KindComputed:
		return "computed"
	case KindEmbedded:
		return "embedded"
	case KindDelegate:
		return "delegate"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Cardinality says how an embedded list or delegate is applied.
// Auto is resolved against the model's relations when the registry links.
type Cardinality int

const (
	Auto Cardinality = iota
	One
	Many
	Self
)

var cardinalityNames = map[string]Cardinality{
	"":     Auto,
	"auto": Auto,
	"one":  One,
	"many": Many,
	"self": Self,
}

func (c Cardinality) String() string {
	switch c {
	case One:
		return "one"
	case Many:
		return "many"
	case Self:
		return "self"
	}
	return "auto"
}

// Options are passed through to computed attributes.
type Options map[string]any

// ComputeFunc derives a value from a record for the calling identity.
type ComputeFunc func(rec *model.Record, identity any, opts Options) (any, error)

// Attribute is one entry of an attribute list.
type Attribute struct {
	Key  string
	Kind Kind

	Compute ComputeFunc // KindComputed
	Nested  []Attribute // KindEmbedded
	Ref     string      // KindDelegate: name of the serializer

	Cardinality Cardinality
	// MaxDepth allows a delegate to re-enter a serializer already being
	// rendered, at most this many times on one path.
	MaxDepth int
}

// Field reads column name.
func Field(name string) Attribute {
	return Attribute{Key: name, Kind: KindField}
}

// Fields is a shorthand for several plain fields.
func Fields(names ...string) []Attribute {
	out := make([]Attribute, 0, len(names))
	for _, n := range names {
		out = append(out, Field(n))
	}
	return out
}

func Computed(key string, fn ComputeFunc) Attribute {
	return Attribute{Key: key, Kind: KindComputed, Compute: fn}
}

// Embedded renders the association key inline with the given attributes.
func Embedded(key string, attrs ...Attribute) Attribute {
	return Attribute{Key: key, Kind: KindEmbedded, Nested: attrs}
}

// Delegate renders key with another serializer's index attributes.
func Delegate(key, ref string, card Cardinality) Attribute {
	return Attribute{Key: key, Kind: KindDelegate, Ref: ref, Cardinality: card}
}

// WithMaxDepth returns a copy of a allowed to re-enter its serializer up to n times.
func (a Attribute) WithMaxDepth(n int) Attribute {
	a.MaxDepth = n
	return a
}
