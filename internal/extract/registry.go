package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Rule groups. Declarations are always evaluated; bindings only when the
// extractor is asked for variable bindings.
const (
	GroupDeclarations = "declarations"
	GroupBindings     = "bindings"
)

// Rule is a declarative structural matcher. Query is a tree-sitter
// S-expression query that must capture the whole declaration as @decl.
// Recognised captures: @name, @vis, @params, @ret, @type, @target, @trait,
// @field.name, @field.type, @field.vis and @pattern.
type Rule struct {
	Name  string
	Kind  Kind
	Group string
	Query string

	// Owners associate the declaration with the nearest enclosing block
	// of one of the listed node types.
	Owners []OwnerSpec
	// Bindings turns every identifier introduced inside @pattern into its
	// own symbol instead of using @name.
	Bindings *BindingSpec
}

// OwnerSpec describes an enclosing block such as an impl or class body.
type OwnerSpec struct {
	Ancestor    string
	TargetField string
	TraitField  string
	// Kind, when set, replaces the rule's kind for declarations found
	// inside this ancestor.
	Kind Kind
	// Stop lists node types that end the upward walk.
	Stop []string
}

// BindingSpec controls how names are collected from a binding pattern.
type BindingSpec struct {
	// Leaves are node types that introduce a name.
	Leaves []string
	// SkipFields are child fields never descended into (e.g. the path of a
	// tuple-struct pattern).
	SkipFields []string
	// SkipNodes are node types never descended into.
	SkipNodes []string
}

// RuleSet is the grammar and rules for one language. Rule sets are data:
// adding a language means registering a new RuleSet, not new code paths.
type RuleSet struct {
	Language   *sitter.Language
	Extensions []string
	// Version changes whenever the rules change so cached symbols
	// produced by older rules are invalidated.
	Version string
	Rules   []Rule

	once     sync.Once
	compiled []compiledRule
	err      error
}

type compiledRule struct {
	rule  *Rule
	query *sitter.Query
}

// compile builds the queries once. Compiled queries are immutable and shared
// by every extraction; each extraction uses its own cursor.
func (rs *RuleSet) compile() ([]compiledRule, error) {
	rs.once.Do(func() {
		for i := range rs.Rules {
			r := &rs.Rules[i]
			q, err := sitter.NewQuery([]byte(r.Query), rs.Language)
			if err != nil {
				rs.err = fmt.Errorf("compile rule %q: %w", r.Name, err)
				return
			}
			rs.compiled = append(rs.compiled, compiledRule{rule: r, query: q})
		}
	})
	return rs.compiled, rs.err
}

// Registry maps file extensions to rule sets.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]*RuleSet // extension (without dot) → rule set
	langs map[string]*RuleSet // language name → rule set
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		specs: make(map[string]*RuleSet),
		langs: make(map[string]*RuleSet),
	}
}

// Register adds a rule set under the given language name.
func (r *Registry) Register(name string, rs *RuleSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.langs[name] = rs
	for _, ext := range rs.Extensions {
		r.specs[ext] = rs
	}
}

// Lookup returns the rule set for a file path based on its extension, or nil.
func (r *Registry) Lookup(path string) (rs *RuleSet, lang string) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[ext]
	if !ok {
		return nil, ""
	}
	for name, sp := range r.langs {
		if sp == s {
			return s, name
		}
	}
	return s, ext
}

// LanguageName returns the language name for a file path, or "".
func (r *Registry) LanguageName(path string) string {
	_, lang := r.Lookup(path)
	return lang
}

// Extensions returns the set of all registered file extensions (without dot).
func (r *Registry) Extensions() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make(map[string]bool, len(r.specs))
	for ext := range r.specs {
		exts[ext] = true
	}
	return exts
}

// Fingerprint identifies the registered languages and rule versions.
func (r *Registry) Fingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.langs))
	for name := range r.langs {
		names = append(names, name)
	}
	sort.Strings(names)
	h := sha256.New()
	for _, name := range names {
		fmt.Fprintf(h, "%s@%s\n", name, r.langs[name].Version)
	}
	return hex.EncodeToString(h.Sum(nil))
}
