package languages

import (
	"plainsight/internal/extract"

	"github.com/smacker/go-tree-sitter/rust"
)

var rustBodies = []string{"function_item", "closure_expression"}

func RegisterRust(r *extract.Registry) {
	r.Register("rust", &extract.RuleSet{
		Language:   rust.GetLanguage(),
		Extensions: []string{"rs"},
		Version:    "3",
		Rules: []extract.Rule{
			{
				Name: "functions",
				Kind: extract.KindFunction,
				Query: `
					(function_item (visibility_modifier)? @vis name: (identifier) @name parameters: (parameters) @params) @decl
					(function_item name: (identifier) @name return_type: (_) @ret) @decl
				`,
				Owners: []extract.OwnerSpec{
					{Ancestor: "impl_item", TargetField: "type", TraitField: "trait", Stop: rustBodies},
					{Ancestor: "trait_item", TargetField: "name", Kind: extract.KindTraitMember, Stop: rustBodies},
				},
			},
			{
				Name: "trait members",
				Kind: extract.KindTraitMember,
				Query: `
					(function_signature_item (visibility_modifier)? @vis name: (identifier) @name parameters: (parameters) @params) @decl
					(function_signature_item name: (identifier) @name return_type: (_) @ret) @decl
					(associated_type name: (type_identifier) @name) @decl
				`,
				Owners: []extract.OwnerSpec{
					{Ancestor: "trait_item", TargetField: "name", Stop: rustBodies},
				},
			},
			{
				Name: "structs",
				Kind: extract.KindType,
				Query: `
					(struct_item (visibility_modifier)? @vis name: (type_identifier) @name) @decl
					(struct_item name: (type_identifier) @name
						body: (field_declaration_list
							(field_declaration (visibility_modifier)? @field.vis name: (field_identifier) @field.name type: (_) @field.type))) @decl
					(struct_item name: (type_identifier) @name
						body: (ordered_field_declaration_list type: (_) @field.type)) @decl
					(union_item (visibility_modifier)? @vis name: (type_identifier) @name) @decl
					(union_item name: (type_identifier) @name
						body: (field_declaration_list
							(field_declaration name: (field_identifier) @field.name type: (_) @field.type))) @decl
				`,
			},
			{
				Name: "enums",
				Kind: extract.KindType,
				Query: `
					(enum_item (visibility_modifier)? @vis name: (type_identifier) @name) @decl
					(enum_item name: (type_identifier) @name
						body: (enum_variant_list (enum_variant name: (identifier) @field.name))) @decl
					(type_item (visibility_modifier)? @vis name: (type_identifier) @name type: (_) @type) @decl
				`,
			},
			{
				Name: "traits",
				Kind: extract.KindTrait,
				Query: `(trait_item (visibility_modifier)? @vis name: (type_identifier) @name) @decl`,
			},
			{
				Name: "impls",
				Kind: extract.KindImpl,
				Query: `
					(impl_item type: (_) @name) @decl
					(impl_item trait: (_) @trait type: (_) @name) @decl
				`,
			},
			{
				Name: "constants",
				Kind: extract.KindVariable,
				Query: `
					(const_item (visibility_modifier)? @vis name: (identifier) @name type: (_) @type) @decl
					(static_item (visibility_modifier)? @vis name: (identifier) @name type: (_) @type) @decl
				`,
			},
			{
				Name:  "imports",
				Kind:  extract.KindImport,
				Query: `(use_declaration argument: (_) @name) @decl`,
			},
			{
				Name:  "let bindings",
				Kind:  extract.KindVariable,
				Group: extract.GroupBindings,
				Query: `
					(let_declaration pattern: (_) @pattern) @decl
					(let_declaration pattern: (_) @pattern type: (_) @type) @decl
				`,
				Bindings: &extract.BindingSpec{
					Leaves:     []string{"identifier", "shorthand_field_identifier"},
					SkipFields: []string{"type"},
					SkipNodes:  []string{"scoped_identifier", "remaining_field_pattern", "range_pattern"},
				},
			},
		},
	})
}
