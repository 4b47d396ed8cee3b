package extract_test

import (
	"context"
	"errors"
	"testing"

	"plainsight/internal/extract"
	"plainsight/internal/extract/languages"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExtractor(opts ...extract.Option) *extract.Extractor {
	reg := extract.NewRegistry()
	languages.RegisterAll(reg)
	return extract.NewExtractor(reg, opts...)
}

const rustSource = `pub struct Bar;

pub struct Point {
    pub x: i32,
    y: i32,
}

pub trait Shape {
    fn area(&self) -> f64;
}

impl Shape for Point {
    fn area(&self) -> f64 {
        0.0
    }
}

fn foo() {}
`

func names(syms []extract.Symbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = string(s.Kind) + ":" + s.Name
	}
	return out
}

func TestExtractRustDeclarations(t *testing.T) {
	syms, err := newExtractor().Extract(context.Background(), "lib.rs", []byte(rustSource))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"type:Bar",
		"type:Point",
		"trait:Shape",
		"trait_member:area",
		"impl:Point",
		"function:area",
		"function:foo",
	}, names(syms))

	bar := syms[0]
	assert.Equal(t, "pub", bar.Visibility)
	assert.Empty(t, bar.Fields, "unit struct keeps an empty field list")
	assert.Equal(t, 1, bar.Line)

	point := syms[1]
	require.Len(t, point.Fields, 2)
	assert.Equal(t, extract.Field{Name: "x", Type: "i32", Visibility: "pub"}, point.Fields[0])
	assert.Equal(t, extract.Field{Name: "y", Type: "i32"}, point.Fields[1])

	member := syms[3]
	assert.Equal(t, "Shape", member.Target)
	assert.Equal(t, "(&self) -> f64", member.Signature)

	impl := syms[4]
	assert.Equal(t, "Shape", impl.Trait)

	method := syms[5]
	assert.Equal(t, "Point", method.Target)
	assert.Equal(t, "Shape", method.Trait)

	assert.Empty(t, syms[6].Target)
}

func TestExtractIsDeterministic(t *testing.T) {
	e := newExtractor(extract.WithBindings(true))
	first, err := e.Extract(context.Background(), "lib.rs", []byte(rustSource))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Extract(context.Background(), "lib.rs", []byte(rustSource))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestExtractRustBindings(t *testing.T) {
	src := `fn main() {
    let (a, (b, _)) = t;
    let Point { x, y: py } = p;
    let Wrapper(w) = wr;
    let _ = 1;
    let mut m: u8 = 3;
}
`
	syms, err := newExtractor(extract.WithBindings(true)).Extract(context.Background(), "main.rs", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"function:main",
		"variable:a",
		"variable:b",
		"variable:x",
		"variable:py",
		"variable:w",
		"variable:m",
	}, names(syms))
	assert.Equal(t, "u8", syms[6].Signature)
	assert.Equal(t, 2, syms[1].Line)
}

func TestExtractBindingsDisabledByDefault(t *testing.T) {
	src := "fn main() {\n    let a = 1;\n}\n"
	syms, err := newExtractor().Extract(context.Background(), "main.rs", []byte(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"function:main"}, names(syms))
}

func TestExtractParseError(t *testing.T) {
	src := "fn broken( {\n"
	syms, err := newExtractor().Extract(context.Background(), "broken.rs", []byte(src))
	require.Error(t, err)
	assert.Nil(t, syms)

	var perr *extract.ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "broken.rs", perr.Path)
}

func TestExtractNoGrammar(t *testing.T) {
	_, err := newExtractor().Extract(context.Background(), "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, extract.ErrNoGrammar)
}

func TestExtractGoMethodsAndInterfaces(t *testing.T) {
	src := `package shapes

import "fmt"

type Shape interface {
	Area() float64
}

type Square struct {
	Side float64
}

func (s *Square) Area() float64 {
	return s.Side * s.Side
}

func New(side float64) *Square {
	fmt.Println(side)
	return &Square{Side: side}
}
`
	syms, err := newExtractor().Extract(context.Background(), "shapes.go", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"import:fmt",
		"trait:Shape",
		"trait_member:Area",
		"type:Square",
		"function:Area",
		"function:New",
	}, names(syms))
	assert.Equal(t, "Shape", syms[2].Target)
	assert.Equal(t, "Square", syms[4].Target)
	assert.Equal(t, "(side float64) -> *Square", syms[5].Signature)
	require.Len(t, syms[3].Fields, 1)
	assert.Equal(t, "Side", syms[3].Fields[0].Name)
}

func TestExtractPythonMethods(t *testing.T) {
	src := `import os

class Repo(Base):
    name = "x"

    def load(self, path):
        def helper():
            pass
        return path

def main():
    pass
`
	syms, err := newExtractor().Extract(context.Background(), "repo.py", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"import:os",
		"type:Repo",
		"function:load",
		"function:helper",
		"function:main",
	}, names(syms))
	assert.Equal(t, "Base", syms[1].Trait)
	assert.Equal(t, "Repo", syms[2].Target)
	assert.Empty(t, syms[3].Target, "nested functions are not methods")
	require.Len(t, syms[1].Fields, 1)
}

func TestRegistryFingerprintTracksVersions(t *testing.T) {
	a := extract.NewRegistry()
	languages.RegisterRust(a)
	b := extract.NewRegistry()
	languages.RegisterRust(b)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	languages.RegisterGo(b)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
