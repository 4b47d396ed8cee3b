package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var errSyntax = errors.New("source contains syntax errors")

// Extractor evaluates registered rule sets against parsed source files.
type Extractor struct {
	registry *Registry
	bindings bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBindings enables the variable-bindings rule group, which records every
// name introduced by a binding pattern as its own symbol.
func WithBindings(enabled bool) Option {
	return func(e *Extractor) { e.bindings = enabled }
}

// NewExtractor creates an extractor backed by the given registry.
func NewExtractor(r *Registry, opts ...Option) *Extractor {
	e := &Extractor{registry: r}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the registry the extractor reads rule sets from.
func (e *Extractor) Registry() *Registry { return e.registry }

// Language returns the registered language name for path, or "".
func (e *Extractor) Language(path string) string { return e.registry.LanguageName(path) }

// Bindings reports whether the bindings group is enabled.
func (e *Extractor) Bindings() bool { return e.bindings }

// Extract parses src and returns its symbols in source order. Files with
// syntax errors yield a *ParseError and no symbols.
func (e *Extractor) Extract(ctx context.Context, path string, src []byte) ([]Symbol, error) {
	rs, _ := e.registry.Lookup(path)
	if rs == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNoGrammar)
	}
	rules, err := rs.compile()
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(rs.Language)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ParseError{Path: path, Err: err}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &ParseError{Path: path, Line: firstErrorLine(root), Err: errSyntax}
	}

	m := newMerger()
	for _, cr := range rules {
		if cr.rule.Group == GroupBindings && !e.bindings {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.run(cr, root, src, m)
	}
	return m.symbols(), nil
}

func (e *Extractor) run(cr compiledRule, root *sitter.Node, src []byte, m *merger) {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(cr.query, root)

	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, src)
		caps := make(map[string][]*sitter.Node, len(match.Captures))
		for _, c := range match.Captures {
			name := cr.query.CaptureNameForId(c.Index)
			caps[name] = append(caps[name], c.Node)
		}
		decl := first(caps["decl"])
		if decl == nil {
			continue
		}
		if cr.rule.Bindings != nil {
			m.addBindings(cr.rule, decl, caps, src)
			continue
		}
		m.addMatch(cr.rule, decl, caps, src)
	}
}

type entry struct {
	sym       Symbol
	start     uint32
	end       uint32
	nameStart uint32
	fields    map[uint32]fieldAt

	params, ret, typ string
}

type fieldAt struct {
	pos   uint32
	field Field
}

// merger folds the matches of every rule into one symbol per
// (declaration node, kind, name).
type merger struct {
	entries map[string]*entry
}

func newMerger() *merger {
	return &merger{entries: make(map[string]*entry)}
}

func (m *merger) get(decl, nameNode *sitter.Node, kind Kind, name string) (*entry, bool) {
	key := fmt.Sprintf("%d:%d:%s:%s", decl.StartByte(), decl.EndByte(), kind, name)
	if e, ok := m.entries[key]; ok {
		return e, false
	}
	e := &entry{
		sym:       Symbol{Kind: kind, Name: name, Line: int(decl.StartPoint().Row) + 1},
		start:     decl.StartByte(),
		end:       decl.EndByte(),
		nameStart: decl.StartByte(),
		fields:    make(map[uint32]fieldAt),
	}
	if nameNode != nil {
		e.nameStart = nameNode.StartByte()
	}
	m.entries[key] = e
	return e, true
}

func (m *merger) addMatch(r *Rule, decl *sitter.Node, caps map[string][]*sitter.Node, src []byte) {
	nameNode := first(caps["name"])
	name := text(nameNode, src)
	if name == "" {
		return
	}
	kind := r.Kind
	if kind == KindImport {
		name = strings.Trim(name, "\"'`")
	}

	var target, trait string
	if spec, owner := findOwner(decl, r.Owners); owner != nil {
		if spec.Kind != "" {
			kind = spec.Kind
		}
		target = fieldText(owner, spec.TargetField, src)
		trait = fieldText(owner, spec.TraitField, src)
	}
	if t := text(first(caps["target"]), src); t != "" {
		target = t
	}
	if t := text(first(caps["trait"]), src); t != "" {
		trait = t
	}

	e, _ := m.get(decl, nameNode, kind, name)
	fill(&e.sym.Visibility, text(first(caps["vis"]), src))
	fill(&e.params, normalizeSpace(text(first(caps["params"]), src)))
	fill(&e.ret, normalizeSpace(text(first(caps["ret"]), src)))
	fill(&e.typ, normalizeSpace(text(first(caps["type"]), src)))
	fill(&e.sym.Target, target)
	fill(&e.sym.Trait, trait)

	names := caps["field.name"]
	types := caps["field.type"]
	vis := caps["field.vis"]
	n := max(len(names), len(types))
	for i := 0; i < n; i++ {
		var f Field
		var pos uint32
		if i < len(names) {
			f.Name = text(names[i], src)
			pos = names[i].StartByte()
		}
		if i < len(types) {
			f.Type = text(types[i], src)
			if i >= len(names) {
				pos = types[i].StartByte()
			}
		}
		if i < len(vis) {
			f.Visibility = text(vis[i], src)
		}
		if prev, ok := e.fields[pos]; ok {
			fill(&f.Name, prev.field.Name)
			fill(&f.Type, prev.field.Type)
			fill(&f.Visibility, prev.field.Visibility)
		}
		e.fields[pos] = fieldAt{pos: pos, field: f}
	}
}

func (m *merger) addBindings(r *Rule, decl *sitter.Node, caps map[string][]*sitter.Node, src []byte) {
	pattern := first(caps["pattern"])
	if pattern == nil {
		return
	}
	typ := normalizeSpace(text(first(caps["type"]), src))
	vis := text(first(caps["vis"]), src)

	var leaves []*sitter.Node
	collectBindings(pattern, r.Bindings, &leaves)
	for _, leaf := range leaves {
		name := text(leaf, src)
		if name == "" || name == "_" {
			continue
		}
		e, created := m.get(decl, leaf, r.Kind, name)
		if created {
			e.sym.Line = int(leaf.StartPoint().Row) + 1
		}
		fill(&e.sym.Visibility, vis)
		// A type annotation covers the whole pattern, so it only becomes
		// the symbol's type when the pattern binds a single name.
		if len(leaves) == 1 {
			fill(&e.typ, typ)
		}
	}
}

func (m *merger) symbols() []Symbol {
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.start != b.start {
			return a.start < b.start
		}
		if a.nameStart != b.nameStart {
			return a.nameStart < b.nameStart
		}
		if a.end != b.end {
			return a.end > b.end
		}
		if a.sym.Kind != b.sym.Kind {
			return a.sym.Kind < b.sym.Kind
		}
		return a.sym.Name < b.sym.Name
	})

	out := make([]Symbol, 0, len(entries))
	for _, e := range entries {
		sym := e.sym
		sym.Signature = signature(e.params, e.ret, e.typ)
		if len(e.fields) > 0 {
			fields := make([]fieldAt, 0, len(e.fields))
			for _, f := range e.fields {
				fields = append(fields, f)
			}
			sort.Slice(fields, func(i, j int) bool { return fields[i].pos < fields[j].pos })
			for i, f := range fields {
				if f.field.Name == "" {
					f.field.Name = strconv.Itoa(i)
				}
				sym.Fields = append(sym.Fields, f.field)
			}
		}
		out = append(out, sym)
	}
	return out
}

func findOwner(decl *sitter.Node, specs []OwnerSpec) (*OwnerSpec, *sitter.Node) {
	if len(specs) == 0 {
		return nil, nil
	}
	for p := decl.Parent(); p != nil; p = p.Parent() {
		typ := p.Type()
		for i := range specs {
			if specs[i].Ancestor == typ {
				return &specs[i], p
			}
		}
		for i := range specs {
			if contains(specs[i].Stop, typ) {
				return nil, nil
			}
		}
	}
	return nil, nil
}

func collectBindings(n *sitter.Node, spec *BindingSpec, out *[]*sitter.Node) {
	typ := n.Type()
	if contains(spec.SkipNodes, typ) {
		return
	}
	if contains(spec.Leaves, typ) {
		*out = append(*out, n)
		return
	}
	skipped := make([]*sitter.Node, 0, len(spec.SkipFields))
	for _, f := range spec.SkipFields {
		if c := n.ChildByFieldName(f); c != nil {
			skipped = append(skipped, c)
		}
	}
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		c := n.NamedChild(i)
		if c == nil || containsNode(skipped, c) {
			continue
		}
		collectBindings(c, spec, out)
	}
}

func signature(params, ret, typ string) string {
	if typ != "" {
		return typ
	}
	switch {
	case params == "" && ret == "":
		return ""
	case ret == "" || ret == "()":
		return params
	default:
		return params + " -> " + ret
	}
}

func firstErrorLine(n *sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return int(n.StartPoint().Row) + 1
	}
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		c := n.Child(i)
		if c == nil || !c.HasError() && !c.IsMissing() {
			continue
		}
		if line := firstErrorLine(c); line > 0 {
			return line
		}
	}
	return 0
}

func fieldText(n *sitter.Node, field string, src []byte) string {
	if field == "" {
		return ""
	}
	return text(n.ChildByFieldName(field), src)
}

func text(n *sitter.Node, src []byte) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Content(src))
}

func first(nodes []*sitter.Node) *sitter.Node {
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

func containsNode(nodes []*sitter.Node, n *sitter.Node) bool {
	for _, c := range nodes {
		if sameNode(c, n) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
