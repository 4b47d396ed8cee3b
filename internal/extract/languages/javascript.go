package languages

import (
	"plainsight/internal/extract"

	"github.com/smacker/go-tree-sitter/javascript"
)

var jsBodies = []string{"function_declaration", "function_expression", "arrow_function", "method_definition"}

// jsBindings is shared by the JavaScript and TypeScript rule sets.
var jsBindings = &extract.BindingSpec{
	Leaves:     []string{"identifier", "shorthand_property_identifier_pattern"},
	SkipFields: []string{"key", "type"},
	SkipNodes:  []string{"member_expression", "subscript_expression"},
}

func RegisterJavaScript(r *extract.Registry) {
	r.Register("javascript", &extract.RuleSet{
		Language:   javascript.GetLanguage(),
		Extensions: []string{"js", "jsx", "mjs", "cjs"},
		Version:    "2",
		Rules: []extract.Rule{
			{
				Name: "functions",
				Kind: extract.KindFunction,
				Query: `
					(function_declaration name: (identifier) @name parameters: (formal_parameters) @params) @decl
					(generator_function_declaration name: (identifier) @name parameters: (formal_parameters) @params) @decl
					(variable_declarator name: (identifier) @name value: (arrow_function parameters: (_) @params)) @decl
					(variable_declarator name: (identifier) @name value: (arrow_function parameter: (_) @params)) @decl
				`,
			},
			{
				Name:  "methods",
				Kind:  extract.KindFunction,
				Query: `(method_definition name: (_) @name parameters: (formal_parameters) @params) @decl`,
				Owners: []extract.OwnerSpec{
					{Ancestor: "class_declaration", TargetField: "name", Stop: jsBodies},
					{Ancestor: "class", TargetField: "name", Stop: jsBodies},
				},
			},
			{
				Name: "classes",
				Kind: extract.KindType,
				Query: `
					(class_declaration name: (identifier) @name) @decl
					(class_declaration name: (identifier) @name (class_heritage (identifier) @trait)) @decl
					(class_declaration name: (identifier) @name
						body: (class_body (field_definition property: (property_identifier) @field.name))) @decl
				`,
			},
			{
				Name:  "imports",
				Kind:  extract.KindImport,
				Query: `(import_statement source: (string) @name) @decl`,
			},
			{
				Name:     "declarators",
				Kind:     extract.KindVariable,
				Group:    extract.GroupBindings,
				Query:    `(variable_declarator name: (_) @pattern) @decl`,
				Bindings: jsBindings,
			},
		},
	})
}
