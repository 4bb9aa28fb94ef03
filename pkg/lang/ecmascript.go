package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/mamaar/polyrefactor/pkg/types"
)

func init() {
	register(ecmaDialect("javascript", []string{".js", ".jsx", ".mjs", ".cjs"},
		func(string) *sitter.Language { return javascript.GetLanguage() }))
	register(ecmaDialect("typescript", []string{".ts", ".tsx", ".mts", ".cts"},
		func(ext string) *sitter.Language {
			if ext == ".tsx" {
				return tsx.GetLanguage()
			}
			return typescript.GetLanguage()
		}))
}

func ecmaDialect(name string, exts []string, grammar func(string) *sitter.Language) *Dialect {
	return &Dialect{
		Name:       name,
		Tag:        types.HeuristicB,
		Extensions: exts,
		grammar:    grammar,
		Syntax: Syntax{
			Identifiers: newSet("identifier", "property_identifier", "shorthand_property_identifier",
				"shorthand_property_identifier_pattern", "type_identifier"),
			Functions: newSet("function_declaration", "generator_function_declaration", "method_definition",
				"function_expression", "function", "arrow_function"),
			Classes:        newSet("class_declaration", "class", "abstract_class_declaration"),
			Blocks:         newSet("program", "statement_block"),
			Returns:        newSet("return_statement"),
			Jumps:          newSet("break_statement", "continue_statement"),
			Loops:          newSet("for_statement", "for_in_statement", "while_statement", "do_statement"),
			Assignments:    newSet("assignment_expression", "augmented_assignment_expression", "for_in_statement"),
			Declarators:    newSet("variable_declarator"),
			Imports:        newSet("import_statement"),
			FieldDecls:     newSet("field_definition", "public_field_definition"),
			Call:           "call_expression",
			CallFunction:   "function",
			Member:         "member_expression",
			MemberObject:   "object",
			MemberProperty: "property",
			ExprStatement:  "expression_statement",
			Decorator:      "decorator",
			Self:           "this",
			SelfNode:       "this",
			Constructor:    "constructor",
			Params:         "parameters",
			Body:           "body",
			ReturnTypeKey:  "return_type",
		},
		Lexical: Lexical{
			LineComment:  "//",
			BlockComment: [2]string{"/*", "*/"},
			Quotes:       []string{"`", `"`, `'`},
			Terminator:   ";",
		},
		Keywords: newSet("break", "case", "catch", "class", "const", "continue", "debugger", "default",
			"delete", "do", "else", "export", "extends", "false", "finally", "for", "function", "if",
			"import", "in", "instanceof", "new", "null", "return", "super", "switch", "this", "throw",
			"true", "try", "typeof", "var", "void", "while", "with", "yield", "let", "static", "enum",
			"await", "implements", "package", "protected", "interface", "private", "public"),
		Builtins: newSet("console", "Math", "JSON", "Object", "Array", "String", "Number", "Boolean",
			"Promise", "Date", "Error", "TypeError", "Map", "Set", "Symbol", "RegExp", "parseInt",
			"parseFloat", "isNaN", "undefined", "NaN", "Infinity", "window", "document", "globalThis",
			"require", "module", "exports", "process", "setTimeout", "clearTimeout", "this", "arguments"),
		Naming:         CamelCaseStyle,
		Indent:         "  ",
		AccessKeywords: name == "typescript",
		Typed:          name == "typescript",
		VarDecl:        func(name, expr string) string { return "const " + name + " = " + expr + ";" },
		FuncDecl:       ecmaFuncDecl,
		CallStmt:       ecmaCallStmt,
		WrapBlock:      braceWrap,
		Property:       ecmaProperty,
		AutoProperty:   ecmaAutoProperty,
		BackingName:    func(field string) string { return "_" + field },
		PropertyName:   PascalCase,
	}
}

func ecmaFuncDecl(f FuncSpec) []string {
	var head string
	if f.Method {
		if f.Access != "" && f.Access != "public" {
			head += f.Access + " "
		}
		if f.Static {
			head += "static "
		}
	} else {
		head = "function "
	}
	sig := f.Indent + head + f.Name + "(" + strings.Join(f.Params, ", ") + ")"
	if f.ReturnType != "" {
		sig += ": " + f.ReturnType
	}
	out := []string{sig + " {"}
	inner := f.Indent + "  "
	for _, l := range f.Body {
		out = append(out, indentLine(inner, l))
	}
	switch len(f.Returns) {
	case 0:
	case 1:
		out = append(out, inner+"return "+f.Returns[0]+";")
	default:
		out = append(out, inner+"return ["+strings.Join(f.Returns, ", ")+"];")
	}
	return append(out, f.Indent+"}")
}

func ecmaCallStmt(c CallSpec) []string {
	call := c.Name + "(" + strings.Join(c.Args, ", ") + ")"
	if c.Receiver != "" {
		call = c.Receiver + "." + call
	}
	target := ""
	switch len(c.Outputs) {
	case 0:
		return []string{c.Indent + call + ";"}
	case 1:
		target = c.Outputs[0]
	default:
		target = "[" + strings.Join(c.Outputs, ", ") + "]"
	}
	if len(c.NewOutputs) == len(c.Outputs) {
		return []string{c.Indent + "let " + target + " = " + call + ";"}
	}
	var out []string
	if len(c.NewOutputs) > 0 {
		out = append(out, c.Indent+"let "+strings.Join(c.NewOutputs, ", ")+";")
	}
	return append(out, c.Indent+target+" = "+call+";")
}

func braceWrap(body []string, indent string) []string {
	out := []string{indent + "{"}
	for _, l := range body {
		out = append(out, indentLine(indent+"  ", l))
	}
	return append(out, indent+"}")
}

func ecmaProperty(p PropertySpec) []string {
	in := p.Indent + "  "
	getter := []string{in + "return this." + p.Backing + ";"}
	if p.Getter != "" {
		getter = indentBlock(in, p.Getter)
	}
	var setter []string
	if p.Validation != "" {
		setter = append(setter, indentBlock(in, p.Validation)...)
	}
	if p.Setter != "" {
		setter = append(setter, indentBlock(in, p.Setter)...)
	} else {
		setter = append(setter, in+"this."+p.Backing+" = value;")
	}

	typ := ""
	if p.Type != "" {
		typ = ": " + p.Type
	}
	out := []string{p.Indent + "get " + p.Property + "()" + typ + " {"}
	out = append(out, getter...)
	out = append(out, p.Indent+"}", "", p.Indent+"set "+p.Property+"(value"+typ+") {")
	out = append(out, setter...)
	return append(out, p.Indent+"}")
}

// ecmaAutoProperty rewrites `[modifiers] field[: T] [= init];` as
// `[modifiers] accessor Property[: T] [= init];`.
func ecmaAutoProperty(a AutoPropertySpec) (string, bool) {
	decl := a.Declaration
	idx := indexWord(decl, a.Field)
	if idx < 0 {
		return "", false
	}
	return decl[:idx] + "accessor " + a.Property + decl[idx+len(a.Field):], true
}

func indexWord(s, word string) int {
	for i := 0; i+len(word) <= len(s); i++ {
		if s[i:i+len(word)] != word {
			continue
		}
		if i > 0 && isWordByte(s[i-1]) {
			continue
		}
		if j := i + len(word); j < len(s) && isWordByte(s[j]) {
			continue
		}
		return i
	}
	return -1
}

func isWordByte(b byte) bool {
	return b == '_' || b == '$' || b == '#' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
