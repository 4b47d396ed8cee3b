package extract

import (
	"errors"
	"fmt"
)

// Kind classifies an extracted symbol.
type Kind string

const (
	KindFunction    Kind = "function"
	KindType        Kind = "type"
	KindTrait       Kind = "trait"
	KindTraitMember Kind = "trait_member"
	KindVariable    Kind = "variable"
	KindImpl        Kind = "impl"
	KindImport      Kind = "import"
)

// Field is one member of a type definition: a struct field, enum variant
// or tuple element.
type Field struct {
	Name       string `json:"name"`
	Type       string `json:"type,omitempty"`
	Visibility string `json:"visibility,omitempty"`
}

// Symbol is a structured fact about one declaration in a source file.
// Target links a method or impl block to the type it belongs to; Trait names
// the trait or interface being implemented or declared. Both are plain names,
// never resolved references.
type Symbol struct {
	Kind       Kind    `json:"kind"`
	Name       string  `json:"name"`
	Visibility string  `json:"visibility,omitempty"`
	Signature  string  `json:"signature,omitempty"`
	Target     string  `json:"target,omitempty"`
	Trait      string  `json:"trait,omitempty"`
	Fields     []Field `json:"fields,omitempty"`
	Line       int     `json:"line"`
}

// ErrNoGrammar is returned when no rule set is registered for a file.
var ErrNoGrammar = errors.New("no grammar registered")

// ParseError reports a file whose source could not be parsed cleanly.
// The file is still indexed, with no symbols.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s: line %d: %v", e.Path, e.Line, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
