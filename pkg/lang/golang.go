package lang

import (
	"go/token"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/mamaar/polyrefactor/pkg/types"
)

// The Go dialect backs the syntax-only fallback used when no module can be
// loaded. Extraction, inlining and encapsulation of Go code work on go/ast
// and go/types instead of the templates below.
func init() {
	keywords := newSet()
	for tok := token.BREAK; tok <= token.VAR; tok++ {
		keywords[tok.String()] = true
	}
	register(&Dialect{
		Name:       "go",
		Tag:        types.CompilerGrade,
		Extensions: []string{".go"},
		grammar:    func(string) *sitter.Language { return golang.GetLanguage() },
		Syntax: Syntax{
			Identifiers:    newSet("identifier", "field_identifier", "type_identifier", "package_identifier"),
			Functions:      newSet("function_declaration", "method_declaration", "func_literal"),
			Classes:        newSet("type_declaration"),
			Blocks:         newSet("source_file", "block"),
			Returns:        newSet("return_statement"),
			Jumps:          newSet("break_statement", "continue_statement", "goto_statement"),
			Loops:          newSet("for_statement"),
			Assignments:    newSet("assignment_statement", "short_var_declaration", "inc_statement", "dec_statement"),
			Declarators:    newSet("var_spec", "const_spec"),
			Imports:        newSet("import_declaration"),
			FieldDecls:     newSet("field_declaration"),
			Call:           "call_expression",
			CallFunction:   "function",
			Member:         "selector_expression",
			MemberObject:   "operand",
			MemberProperty: "field",
			ExprStatement:  "expression_statement",
			Params:         "parameters",
			Body:           "body",
			ReturnTypeKey:  "result",
		},
		Lexical: Lexical{
			LineComment:  "//",
			BlockComment: [2]string{"/*", "*/"},
			Quotes:       []string{"`", `"`, `'`},
		},
		Keywords: keywords,
		Builtins: newSet("append", "cap", "clear", "close", "complex", "copy", "delete", "imag", "len",
			"make", "max", "min", "new", "panic", "print", "println", "real", "recover",
			"nil", "true", "false", "iota", "error", "string", "int", "bool", "byte", "rune", "any"),
		Naming:       CamelCaseStyle,
		Typed:        true,
		Indent:       "\t",
		VarDecl:      func(name, expr string) string { return name + " := " + expr },
		WrapBlock:    goBlock,
		BackingName:  LowerCamel,
		PropertyName: PascalCase,
	})
}

func goBlock(body []string, indent string) []string {
	out := []string{indent + "{"}
	for _, l := range body {
		out = append(out, indentLine(indent+"\t", l))
	}
	return append(out, indent+"}")
}
