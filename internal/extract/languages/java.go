package languages

import (
	"plainsight/internal/extract"

	"github.com/smacker/go-tree-sitter/java"
)

var javaBodies = []string{"method_declaration", "constructor_declaration", "lambda_expression", "object_creation_expression"}

func RegisterJava(r *extract.Registry) {
	r.Register("java", &extract.RuleSet{
		Language:   java.GetLanguage(),
		Extensions: []string{"java"},
		Version:    "1",
		Rules: []extract.Rule{
			{
				Name: "methods",
				Kind: extract.KindFunction,
				Query: `
					(method_declaration (modifiers)? @vis type: (_) @ret name: (identifier) @name parameters: (formal_parameters) @params) @decl
					(constructor_declaration (modifiers)? @vis name: (identifier) @name parameters: (formal_parameters) @params) @decl
				`,
				Owners: []extract.OwnerSpec{
					{Ancestor: "class_declaration", TargetField: "name", Stop: javaBodies},
					{Ancestor: "enum_declaration", TargetField: "name", Stop: javaBodies},
					{Ancestor: "record_declaration", TargetField: "name", Stop: javaBodies},
					{Ancestor: "interface_declaration", TargetField: "name", Kind: extract.KindTraitMember, Stop: javaBodies},
				},
			},
			{
				Name: "classes",
				Kind: extract.KindType,
				Query: `
					(class_declaration (modifiers)? @vis name: (identifier) @name) @decl
					(class_declaration name: (identifier) @name
						interfaces: (super_interfaces (type_list . (_) @trait))) @decl
					(class_declaration name: (identifier) @name
						body: (class_body
							(field_declaration (modifiers)? @field.vis type: (_) @field.type
								declarator: (variable_declarator name: (identifier) @field.name)))) @decl
					(record_declaration (modifiers)? @vis name: (identifier) @name) @decl
					(enum_declaration (modifiers)? @vis name: (identifier) @name) @decl
					(enum_declaration name: (identifier) @name
						body: (enum_body (enum_constant name: (identifier) @field.name))) @decl
				`,
			},
			{
				Name:  "interfaces",
				Kind:  extract.KindTrait,
				Query: `(interface_declaration (modifiers)? @vis name: (identifier) @name) @decl`,
			},
			{
				Name:  "imports",
				Kind:  extract.KindImport,
				Query: `(import_declaration [(scoped_identifier) (identifier)] @name) @decl`,
			},
			{
				Name:  "locals",
				Kind:  extract.KindVariable,
				Group: extract.GroupBindings,
				Query: `(local_variable_declaration type: (_) @type declarator: (variable_declarator name: (identifier) @pattern)) @decl`,
				Bindings: &extract.BindingSpec{
					Leaves: []string{"identifier"},
				},
			},
		},
	})
}
