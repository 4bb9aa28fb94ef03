package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/mamaar/polyrefactor/pkg/types"
)

func init() {
	register(&Dialect{
		Name:       "python",
		Tag:        types.HeuristicA,
		Extensions: []string{".py", ".pyi"},
		grammar:    func(string) *sitter.Language { return python.GetLanguage() },
		Syntax: Syntax{
			Identifiers:    newSet("identifier"),
			Functions:      newSet("function_definition"),
			Classes:        newSet("class_definition"),
			Blocks:         newSet("module", "block"),
			Returns:        newSet("return_statement"),
			Jumps:          newSet("break_statement", "continue_statement"),
			Loops:          newSet("for_statement", "while_statement"),
			Assignments:    newSet("assignment", "augmented_assignment", "for_statement", "named_expression"),
			Declarators:    newSet(),
			Imports:        newSet("import_statement", "import_from_statement"),
			FieldDecls:     newSet("assignment"),
			Call:           "call",
			CallFunction:   "function",
			Member:         "attribute",
			MemberObject:   "object",
			MemberProperty: "attribute",
			ExprStatement:  "expression_statement",
			Decorator:      "decorator",
			Self:           "self",
			Constructor:    "__init__",
			Params:         "parameters",
			Body:           "body",
			ReturnTypeKey:  "return_type",
		},
		Lexical: Lexical{
			LineComment:      "#",
			Quotes:           []string{`"""`, `'''`, `"`, `'`},
			LineContinuation: `\`,
		},
		Keywords: newSet("False", "None", "True", "and", "as", "assert", "async", "await",
			"break", "class", "continue", "def", "del", "elif", "else", "except", "finally",
			"for", "from", "global", "if", "import", "in", "is", "lambda", "nonlocal", "not",
			"or", "pass", "raise", "return", "try", "while", "with", "yield"),
		Builtins: newSet("print", "len", "range", "str", "int", "float", "bool", "list", "dict",
			"set", "tuple", "type", "isinstance", "issubclass", "super", "object", "min", "max",
			"sum", "abs", "any", "all", "enumerate", "zip", "map", "filter", "sorted", "reversed",
			"open", "iter", "next", "repr", "hash", "id", "getattr", "setattr", "hasattr",
			"property", "staticmethod", "classmethod", "Exception", "ValueError", "TypeError",
			"KeyError", "IndexError", "RuntimeError", "NotImplementedError", "StopIteration",
			"self", "cls", "__name__"),
		Naming:       SnakeCaseStyle,
		Typed:        true,
		Indent:       "    ",
		VarDecl:      func(name, expr string) string { return name + " = " + expr },
		FuncDecl:     pythonFuncDecl,
		CallStmt:     pythonCallStmt,
		Property:     pythonProperty,
		BackingName:  func(field string) string { return "_" + field },
		PropertyName: func(field string) string { return field },
	})
}

func pythonFuncDecl(f FuncSpec) []string {
	params := f.Params
	if f.Method && !f.Static {
		params = append([]string{"self"}, params...)
	}
	var out []string
	if f.Static {
		out = append(out, f.Indent+"@staticmethod")
	}
	sig := f.Indent + "def " + f.Name + "(" + strings.Join(params, ", ") + ")"
	if f.ReturnType != "" {
		sig += " -> " + f.ReturnType
	}
	out = append(out, sig+":")
	inner := f.Indent + "    "
	for _, l := range f.Body {
		out = append(out, indentLine(inner, l))
	}
	if len(f.Returns) > 0 {
		out = append(out, inner+"return "+strings.Join(f.Returns, ", "))
	}
	return out
}

func pythonCallStmt(c CallSpec) []string {
	call := c.Name + "(" + strings.Join(c.Args, ", ") + ")"
	if c.Receiver != "" {
		call = c.Receiver + "." + call
	}
	if len(c.Outputs) > 0 {
		call = strings.Join(c.Outputs, ", ") + " = " + call
	}
	return []string{c.Indent + call}
}

func pythonProperty(p PropertySpec) []string {
	in := p.Indent + "    "
	getter := []string{in + "return self." + p.Backing}
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
		setter = append(setter, in+"self."+p.Backing+" = value")
	}

	out := []string{
		p.Indent + "@property",
		p.Indent + "def " + p.Property + "(self):",
	}
	out = append(out, getter...)
	out = append(out, "",
		p.Indent+"@"+p.Property+".setter",
		p.Indent+"def "+p.Property+"(self, value):",
	)
	return append(out, setter...)
}

func indentLine(indent, line string) string {
	if strings.TrimSpace(line) == "" {
		return ""
	}
	return indent + line
}

func indentBlock(indent, text string) []string {
	var out []string
	for _, l := range Dedent(strings.Split(strings.TrimRight(text, "\n"), "\n")) {
		out = append(out, indentLine(indent, l))
	}
	return out
}
