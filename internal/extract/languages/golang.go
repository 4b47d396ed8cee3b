package languages

import (
	"plainsight/internal/extract"

	"github.com/smacker/go-tree-sitter/golang"
)

func RegisterGo(r *extract.Registry) {
	r.Register("go", &extract.RuleSet{
		Language:   golang.GetLanguage(),
		Extensions: []string{"go"},
		Version:    "2",
		Rules: []extract.Rule{
			{
				Name: "functions",
				Kind: extract.KindFunction,
				Query: `
					(function_declaration name: (identifier) @name parameters: (parameter_list) @params) @decl
					(function_declaration name: (identifier) @name result: (_) @ret) @decl
				`,
			},
			{
				Name: "methods",
				Kind: extract.KindFunction,
				Query: `
					(method_declaration
						receiver: (parameter_list
							(parameter_declaration type: [
								(type_identifier) @target
								(pointer_type (type_identifier) @target)
								(generic_type type: (type_identifier) @target)
								(pointer_type (generic_type type: (type_identifier) @target))
							]))
						name: (field_identifier) @name
						parameters: (parameter_list) @params) @decl
					(method_declaration name: (field_identifier) @name result: (_) @ret) @decl
				`,
			},
			{
				Name: "structs",
				Kind: extract.KindType,
				Query: `
					(type_spec name: (type_identifier) @name type: (struct_type)) @decl
					(type_spec name: (type_identifier) @name
						type: (struct_type
							(field_declaration_list
								(field_declaration name: (field_identifier) @field.name type: (_) @field.type)))) @decl
					(type_spec name: (type_identifier) @name
						type: [
							(type_identifier) (qualified_type) (map_type) (slice_type) (array_type)
							(pointer_type) (function_type) (channel_type) (generic_type)
						] @type) @decl
					(type_alias name: (type_identifier) @name type: (_) @type) @decl
				`,
			},
			{
				Name:  "interfaces",
				Kind:  extract.KindTrait,
				Query: `(type_spec name: (type_identifier) @name type: (interface_type)) @decl`,
			},
			{
				Name: "interface methods",
				Kind: extract.KindTraitMember,
				Query: `
					(interface_type (_ name: (field_identifier) @name parameters: (parameter_list) @params) @decl)
					(interface_type (_ name: (field_identifier) @name result: (_) @ret) @decl)
				`,
				Owners: []extract.OwnerSpec{
					{Ancestor: "type_spec", TargetField: "name"},
				},
			},
			{
				Name: "variables",
				Kind: extract.KindVariable,
				Query: `
					(var_spec name: (identifier) @name) @decl
					(var_spec name: (identifier) @name type: (_) @type) @decl
					(const_spec name: (identifier) @name) @decl
					(const_spec name: (identifier) @name type: (_) @type) @decl
				`,
			},
			{
				Name:  "imports",
				Kind:  extract.KindImport,
				Query: `(import_spec path: (interpreted_string_literal) @name) @decl`,
			},
			{
				Name:  "short variable declarations",
				Kind:  extract.KindVariable,
				Group: extract.GroupBindings,
				Query: `
					(short_var_declaration left: (expression_list) @pattern) @decl
					(range_clause left: (expression_list) @pattern) @decl
				`,
				Bindings: &extract.BindingSpec{
					Leaves:    []string{"identifier"},
					SkipNodes: []string{"selector_expression", "index_expression"},
				},
			},
		},
	})
}
