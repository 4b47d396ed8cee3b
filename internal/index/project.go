package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"plainsight/internal/extract"
)

// ProjectIndex aggregates every FileIndex plus the cross-file graph. It is
// rebuilt each run from the current file set.
type ProjectIndex struct {
	Files map[string]*FileIndex `json:"files"`
	Graph Graph                 `json:"graph"`
}

// File returns the entry for path, or nil. It is safe on a nil index.
func (p *ProjectIndex) File(path string) *FileIndex {
	if p == nil {
		return nil
	}
	return p.Files[path]
}

// Paths returns the indexed paths in sorted order.
func (p *ProjectIndex) Paths() []string {
	if p == nil {
		return nil
	}
	paths := make([]string, 0, len(p.Files))
	for path := range p.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// SymbolRef points at a symbol by file and name.
type SymbolRef struct {
	File string       `json:"file"`
	Name string       `json:"name"`
	Kind extract.Kind `json:"kind"`
	Line int          `json:"line"`
}

// Implementor is a type implementing a trait, interface or base class.
type Implementor struct {
	Type string `json:"type"`
	File string `json:"file"`
}

// Graph holds cross-file associations as lookup tables keyed by type or
// trait name. Entries reference symbols by name and path only.
type Graph struct {
	Methods      map[string][]SymbolRef   `json:"methods,omitempty"`
	Members      map[string][]SymbolRef   `json:"members,omitempty"`
	Implementors map[string][]Implementor `json:"implementors,omitempty"`
}

// BuildGraph links methods to their types, members to their traits and
// implementors to their traits across all files. Files are visited in path
// order and symbols in source order, so the result is deterministic.
func BuildGraph(p *ProjectIndex) Graph {
	g := Graph{
		Methods:      make(map[string][]SymbolRef),
		Members:      make(map[string][]SymbolRef),
		Implementors: make(map[string][]Implementor),
	}
	seen := make(map[string]bool)
	addImpl := func(trait string, impl Implementor) {
		key := trait + "\x00" + impl.Type + "\x00" + impl.File
		if seen[key] {
			return
		}
		seen[key] = true
		g.Implementors[trait] = append(g.Implementors[trait], impl)
	}

	for _, path := range p.Paths() {
		for _, sym := range p.Files[path].Symbols {
			ref := SymbolRef{File: path, Name: sym.Name, Kind: sym.Kind, Line: sym.Line}
			switch sym.Kind {
			case extract.KindFunction:
				if sym.Target != "" {
					t := BaseName(sym.Target)
					g.Methods[t] = append(g.Methods[t], ref)
				}
			case extract.KindTraitMember:
				if sym.Target != "" {
					t := BaseName(sym.Target)
					g.Members[t] = append(g.Members[t], ref)
				}
			case extract.KindImpl, extract.KindType:
				if sym.Trait != "" {
					addImpl(BaseName(sym.Trait), Implementor{Type: BaseName(sym.Name), File: path})
				}
			}
		}
	}
	return g
}

// Hash is a stable digest of the graph.
func (g Graph) Hash() string {
	// Maps marshal with sorted keys.
	data, _ := json.Marshal(g)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Related returns the graph entries touching the symbols declared in fi.
func (g Graph) Related(fi *FileIndex) (methods, members []SymbolRef, impls []Implementor) {
	if fi == nil {
		return nil, nil, nil
	}
	seen := make(map[string]bool)
	for _, sym := range fi.Symbols {
		if sym.Kind != extract.KindType && sym.Kind != extract.KindTrait {
			continue
		}
		name := BaseName(sym.Name)
		if seen[name] {
			continue
		}
		seen[name] = true
		for _, ref := range g.Methods[name] {
			if ref.File != fi.Path {
				methods = append(methods, ref)
			}
		}
		for _, ref := range g.Members[name] {
			if ref.File != fi.Path {
				members = append(members, ref)
			}
		}
		for _, impl := range g.Implementors[name] {
			if impl.File != fi.Path {
				impls = append(impls, impl)
			}
		}
	}
	return methods, members, impls
}

// BaseName reduces a type expression to its bare name: references,
// pointers, generic arguments and path qualifiers are dropped.
func BaseName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "&*")
	s = strings.TrimPrefix(s, "mut ")
	s = strings.TrimPrefix(s, "dyn ")
	if i := strings.IndexAny(s, "<[("); i > 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "::"); i >= 0 {
		s = s[i+2:]
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
