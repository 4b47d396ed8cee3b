package languages

import (
	"plainsight/internal/extract"

	"github.com/smacker/go-tree-sitter/python"
)

var pythonBodies = []string{"function_definition", "lambda"}

func RegisterPython(r *extract.Registry) {
	r.Register("python", &extract.RuleSet{
		Language:   python.GetLanguage(),
		Extensions: []string{"py", "pyi"},
		Version:    "2",
		Rules: []extract.Rule{
			{
				Name: "functions",
				Kind: extract.KindFunction,
				Query: `
					(function_definition name: (identifier) @name parameters: (parameters) @params) @decl
					(function_definition name: (identifier) @name return_type: (_) @ret) @decl
				`,
				Owners: []extract.OwnerSpec{
					{Ancestor: "class_definition", TargetField: "name", Stop: pythonBodies},
				},
			},
			{
				Name: "classes",
				Kind: extract.KindType,
				Query: `
					(class_definition name: (identifier) @name) @decl
					(class_definition name: (identifier) @name superclasses: (argument_list . (identifier) @trait)) @decl
					(class_definition name: (identifier) @name
						body: (block (expression_statement (assignment left: (identifier) @field.name)))) @decl
					(class_definition name: (identifier) @name
						body: (block (expression_statement (assignment left: (identifier) @field.name type: (type) @field.type)))) @decl
				`,
			},
			{
				Name: "module variables",
				Kind: extract.KindVariable,
				Query: `
					(module (expression_statement (assignment left: (identifier) @name) @decl))
					(module (expression_statement (assignment left: (identifier) @name type: (type) @type) @decl))
				`,
			},
			{
				Name: "imports",
				Kind: extract.KindImport,
				Query: `
					(import_statement name: (dotted_name) @name) @decl
					(import_statement name: (aliased_import name: (dotted_name) @name)) @decl
					(import_from_statement module_name: (_) @name) @decl
				`,
			},
			{
				Name:  "assignments",
				Kind:  extract.KindVariable,
				Group: extract.GroupBindings,
				Query: `
					(assignment left: (_) @pattern) @decl
					(assignment left: (_) @pattern type: (type) @type) @decl
					(for_statement left: (_) @pattern) @decl
				`,
				Bindings: &extract.BindingSpec{
					Leaves:    []string{"identifier"},
					SkipNodes: []string{"attribute", "subscript"},
				},
			},
		},
	})
}
