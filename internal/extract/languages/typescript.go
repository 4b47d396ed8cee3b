package languages

import (
	"plainsight/internal/extract"

	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func RegisterTypeScript(r *extract.Registry) {
	r.Register("typescript", &extract.RuleSet{
		Language:   typescript.GetLanguage(),
		Extensions: []string{"ts", "tsx"},
		Version:    "2",
		Rules: []extract.Rule{
			{
				Name: "functions",
				Kind: extract.KindFunction,
				Query: `
					(function_declaration name: (identifier) @name parameters: (formal_parameters) @params) @decl
					(function_declaration name: (identifier) @name return_type: (type_annotation (_) @ret)) @decl
					(variable_declarator name: (identifier) @name value: (arrow_function parameters: (_) @params)) @decl
				`,
			},
			{
				Name: "methods",
				Kind: extract.KindFunction,
				Query: `
					(method_definition (accessibility_modifier)? @vis name: (_) @name parameters: (formal_parameters) @params) @decl
					(method_definition name: (_) @name return_type: (type_annotation (_) @ret)) @decl
				`,
				Owners: []extract.OwnerSpec{
					{Ancestor: "class_declaration", TargetField: "name", Stop: jsBodies},
					{Ancestor: "abstract_class_declaration", TargetField: "name", Stop: jsBodies},
				},
			},
			{
				Name: "classes",
				Kind: extract.KindType,
				Query: `
					(class_declaration name: (type_identifier) @name) @decl
					(abstract_class_declaration name: (type_identifier) @name) @decl
					(class_declaration name: (type_identifier) @name
						(class_heritage (implements_clause . (type_identifier) @trait))) @decl
					(class_declaration name: (type_identifier) @name
						body: (class_body
							(public_field_definition name: (_) @field.name type: (type_annotation (_) @field.type)))) @decl
					(type_alias_declaration name: (type_identifier) @name value: (_) @type) @decl
					(enum_declaration name: (identifier) @name) @decl
				`,
			},
			{
				Name: "interfaces",
				Kind: extract.KindTrait,
				Query: `
					(interface_declaration name: (type_identifier) @name) @decl
					(interface_declaration name: (type_identifier) @name
						body: (_ (property_signature name: (_) @field.name type: (type_annotation (_) @field.type)))) @decl
				`,
			},
			{
				Name: "interface members",
				Kind: extract.KindTraitMember,
				Query: `
					(method_signature name: (_) @name parameters: (formal_parameters) @params) @decl
					(method_signature name: (_) @name return_type: (type_annotation (_) @ret)) @decl
				`,
				Owners: []extract.OwnerSpec{
					{Ancestor: "interface_declaration", TargetField: "name"},
				},
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
