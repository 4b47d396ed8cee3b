package memory

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"plainsight/internal/extract"
	"plainsight/internal/index"
)

const (
	maxGlobalSymbols = 300
	maxOpenItems     = 120
	maxLinks         = 400
	maxItemFiles     = 12
)

// GlobalSymbol is a (name, kind) pair and the files defining it.
type GlobalSymbol struct {
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	DefinedIn []string `json:"defined_in"`
}

// OpenItem flags something a reader should double-check, such as one name
// declared with different kinds in different files.
type OpenItem struct {
	Kind    string   `json:"kind"`
	Symbol  string   `json:"symbol"`
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

// Link connects a file importing a name to a file declaring it.
type Link struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Symbol string `json:"symbol"`
}

// Facts are derived from the ProjectIndex on every run and never persisted
// on their own.
type Facts struct {
	FileCount         int            `json:"file_count"`
	UniqueSymbolCount int            `json:"unique_symbol_count"`
	GlobalSymbols     []GlobalSymbol `json:"global_symbols"`
	OpenItems         []OpenItem     `json:"open_items"`
	Links             []Link         `json:"links"`
}

// Derive computes the project facts. Output is sorted and capped so the
// same index always yields the same facts.
func Derive(pi *index.ProjectIndex) Facts {
	bySymbol := make(map[[2]string]map[string]bool)
	byName := make(map[string]map[string]map[string]bool)
	declared := make(map[string]map[string]bool)

	for _, path := range pi.Paths() {
		for _, sym := range pi.Files[path].Symbols {
			if sym.Kind == extract.KindImport || sym.Kind == extract.KindImpl {
				continue
			}
			key := [2]string{sym.Name, string(sym.Kind)}
			addTo(bySymbol, key, path)
			if byName[sym.Name] == nil {
				byName[sym.Name] = make(map[string]map[string]bool)
			}
			addTo(byName[sym.Name], string(sym.Kind), path)
			addTo(declared, sym.Name, path)
		}
	}

	f := Facts{FileCount: len(pi.Files), UniqueSymbolCount: len(bySymbol)}

	for key, files := range bySymbol {
		f.GlobalSymbols = append(f.GlobalSymbols, GlobalSymbol{Name: key[0], Kind: key[1], DefinedIn: sortedKeys(files)})
	}
	sort.Slice(f.GlobalSymbols, func(i, j int) bool {
		a, b := f.GlobalSymbols[i], f.GlobalSymbols[j]
		if len(a.DefinedIn) != len(b.DefinedIn) {
			return len(a.DefinedIn) > len(b.DefinedIn)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Kind < b.Kind
	})
	f.GlobalSymbols = capSlice(f.GlobalSymbols, maxGlobalSymbols)

	for name, kinds := range byName {
		if len(kinds) <= 1 {
			continue
		}
		files := make(map[string]bool)
		for _, paths := range kinds {
			for p := range paths {
				files[p] = true
			}
		}
		kindNames := sortedKeys(kinds)
		f.OpenItems = append(f.OpenItems, OpenItem{
			Kind:    "kind_conflict",
			Symbol:  name,
			Message: fmt.Sprintf("symbol '%s' appears with multiple kinds: %s", name, strings.Join(kindNames, ", ")),
			Files:   capSlice(sortedKeys(files), maxItemFiles),
		})
	}
	sort.Slice(f.OpenItems, func(i, j int) bool { return f.OpenItems[i].Symbol < f.OpenItems[j].Symbol })
	f.OpenItems = capSlice(f.OpenItems, maxOpenItems)

	seen := make(map[Link]bool)
	for _, path := range pi.Paths() {
		for _, sym := range pi.Files[path].Symbols {
			if sym.Kind != extract.KindImport {
				continue
			}
			for _, cand := range importCandidates(sym.Name) {
				for _, to := range sortedKeys(declared[cand]) {
					l := Link{From: path, To: to, Symbol: cand}
					if to == path || seen[l] {
						continue
					}
					seen[l] = true
					f.Links = append(f.Links, l)
				}
			}
		}
	}
	sort.Slice(f.Links, func(i, j int) bool {
		a, b := f.Links[i], f.Links[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.To < b.To
	})
	f.Links = capSlice(f.Links, maxLinks)
	return f
}

// FileFacts is the subset of Facts touching one file.
type FileFacts struct {
	Imports   []Link
	Importers []Link
	OpenItems []OpenItem
}

// ForFile selects the facts relevant to path.
func (f Facts) ForFile(path string) FileFacts {
	var ff FileFacts
	for _, l := range f.Links {
		if l.From == path {
			ff.Imports = append(ff.Imports, l)
		}
		if l.To == path {
			ff.Importers = append(ff.Importers, l)
		}
	}
	for _, item := range f.OpenItems {
		for _, p := range item.Files {
			if p == path {
				ff.OpenItems = append(ff.OpenItems, item)
				break
			}
		}
	}
	return ff
}

var stopWords = map[string]bool{
	"use": true, "import": true, "from": true, "require": true, "as": true,
	"self": true, "super": true, "crate": true, "mod": true, "pub": true,
	"const": true, "static": true, "class": true, "interface": true,
	"enum": true, "type": true, "struct": true, "trait": true,
}

// importCandidates splits an import path into the identifiers it may name.
func importCandidates(imp string) []string {
	var out []string
	fields := strings.FieldsFunc(imp, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	for _, tok := range fields {
		if len(tok) < 3 || stopWords[strings.ToLower(tok)] || unicode.IsDigit(rune(tok[0])) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func addTo[K comparable](m map[K]map[string]bool, key K, path string) {
	if m[key] == nil {
		m[key] = make(map[string]bool)
	}
	m[key][path] = true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func capSlice[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
