// Package lang classifies files into language families and describes each
// supported language to the shared transformation algorithms: its
// tree-sitter grammar, the node types that matter, its lexical rules and
// the code templates used when generating source.
package lang

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mamaar/polyrefactor/pkg/types"
)

type set map[string]bool

func newSet(items ...string) set {
	s := make(set, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}

// Syntax names the tree-sitter node types and fields a dialect uses.
type Syntax struct {
	Identifiers set // node types that carry a name
	Functions   set // function and method declarations
	Classes     set
	Blocks      set // nodes whose named children are statements
	Returns     set
	Jumps       set // break and continue
	Loops       set
	Assignments set // nodes whose "left" field is written
	Declarators set // nodes whose "name" field declares a variable
	Imports     set
	FieldDecls  set // class-level field declarations

	Call           string
	CallFunction   string // field holding the callee
	Member         string // member access node
	MemberObject   string
	MemberProperty string
	ExprStatement  string
	Decorator      string
	Self           string // receiver keyword text
	SelfNode       string // node type of the receiver keyword, "" when it is an identifier
	Constructor    string // name of the constructor method
	Params         string // field holding the parameter list
	Body           string // field holding the body block
	ReturnTypeKey  string // field holding a declared return type
}

// Lexical describes comments, strings and statement layout.
type Lexical struct {
	LineComment      string
	BlockComment     [2]string
	Quotes           []string // longest first
	Terminator       string
	LineContinuation string
}

// NameStyle is the casing a dialect uses for locals and functions.
type NameStyle int

const (
	CamelCaseStyle NameStyle = iota
	SnakeCaseStyle
)

// Dialect is everything the shared algorithms need to know about one
// language.
type Dialect struct {
	Name       string
	Tag        types.LanguageTag
	Extensions []string
	grammar    func(ext string) *sitter.Language

	Syntax   Syntax
	Lexical  Lexical
	Keywords set
	Builtins set
	Naming   NameStyle
	Indent   string
	// AccessKeywords is set when members take public/private modifiers.
	AccessKeywords bool
	// Typed is set when declarations may carry type annotations.
	Typed bool

	VarDecl      func(name, expr string) string
	FuncDecl     func(FuncSpec) []string
	CallStmt     func(CallSpec) []string
	// WrapBlock encloses dedented body lines in a block at indent.
	WrapBlock    func(body []string, indent string) []string
	Property     func(PropertySpec) []string
	AutoProperty func(AutoPropertySpec) (string, bool)
	BackingName  func(field string) string
	PropertyName func(field string) string
}

// FuncSpec describes a function generated by extract method.
type FuncSpec struct {
	Name       string
	Params     []string
	Body       []string // dedented, without trailing newline
	Returns    []string
	Method     bool // instance member of the enclosing class
	Static     bool // static member of the enclosing class
	Access     string
	ReturnType string
	Indent     string
}

// CallSpec describes the statement that replaces an extracted range.
type CallSpec struct {
	Name       string
	Args       []string
	Receiver   string // empty for a free function
	Outputs    []string
	NewOutputs []string // subset of Outputs not declared before the call
	Indent     string
}

// PropertySpec describes a generated property with a backing field.
type PropertySpec struct {
	Class      string
	Property   string
	Backing    string
	Type       string
	Getter     string
	Setter     string
	Validation string
	Indent     string
}

// AutoPropertySpec describes a field rewritten in place as an automatic
// property.
type AutoPropertySpec struct {
	Declaration string // original declaration text
	Field       string
	Property    string
}

// Grammar returns the tree-sitter language for a file of this dialect.
func (d *Dialect) Grammar(path string) *sitter.Language {
	return d.grammar(strings.ToLower(filepath.Ext(path)))
}

// NewParser creates a parser for path. Parsers are not safe for
// concurrent use.
func (d *Dialect) NewParser(path string) *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(d.Grammar(path))
	return p
}

// ValidIdentifier reports whether name is a legal, non-reserved identifier.
func (d *Dialect) ValidIdentifier(name string) bool {
	if name == "" || d.Keywords[name] {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r == '$' && d.Tag == types.HeuristicB:
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// IsSelf reports whether n is the receiver keyword.
func (d *Dialect) IsSelf(n *sitter.Node, src []byte) bool {
	if d.Syntax.SelfNode != "" && n.Type() == d.Syntax.SelfNode {
		return true
	}
	return d.Syntax.Identifiers[n.Type()] && NodeText(n, src) == d.Syntax.Self
}

var (
	registry     = map[string]*Dialect{}
	extensionMap map[string]*Dialect
	extOnce      sync.Once
)

func register(d *Dialect) {
	registry[d.Name] = d
}

func extensions() map[string]*Dialect {
	extOnce.Do(func() {
		extensionMap = make(map[string]*Dialect)
		for _, d := range registry {
			for _, ext := range d.Extensions {
				extensionMap[ext] = d
			}
		}
	})
	return extensionMap
}

// DialectFor returns the dialect for path, or nil.
func DialectFor(path string) *Dialect {
	return extensions()[strings.ToLower(filepath.Ext(path))]
}

// ByName returns a registered dialect.
func ByName(name string) *Dialect {
	return registry[name]
}

// Classify maps a path to its language family by extension, ignoring case.
func Classify(path string) types.LanguageTag {
	if d := DialectFor(path); d != nil {
		return d.Tag
	}
	return types.Unknown
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(n *sitter.Node, src []byte) string {
	return string(src[n.StartByte():n.EndByte()])
}
