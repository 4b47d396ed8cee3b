// Package languages holds the rule sets for every supported grammar.
package languages

import "plainsight/internal/extract"

// RegisterAll registers every built-in rule set.
func RegisterAll(r *extract.Registry) {
	RegisterRust(r)
	RegisterGo(r)
	RegisterPython(r)
	RegisterJavaScript(r)
	RegisterTypeScript(r)
	RegisterJava(r)
}
