package types

// DeclarationKind classifies where a variable referenced by an extracted
// range was declared.
type DeclarationKind int

const (
	DeclUnknown DeclarationKind = iota
	DeclLocal
	DeclParameter
	DeclInstanceField
	DeclStaticField
	DeclInstanceProperty
	DeclStaticProperty
	DeclStaticMember
)

var declarationNames = [...]string{
	DeclUnknown:          "unknown",
	DeclLocal:            "local",
	DeclParameter:        "parameter",
	DeclInstanceField:    "instance_field",
	DeclStaticField:      "static_field",
	DeclInstanceProperty: "instance_property",
	DeclStaticProperty:   "static_property",
	DeclStaticMember:     "static_member",
}

func (k DeclarationKind) String() string {
	if int(k) >= 0 && int(k) < len(declarationNames) {
		return declarationNames[k]
	}
	return "unknown"
}

func (k DeclarationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// PassByDefault reports whether a variable of this kind becomes a
// parameter of the extracted construct. Members reachable from the new
// construct are not passed; unresolved names are passed conservatively.
func (k DeclarationKind) PassByDefault() bool {
	switch k {
	case DeclInstanceField, DeclStaticField, DeclInstanceProperty, DeclStaticProperty, DeclStaticMember:
		return false
	default:
		return true
	}
}

// VariableDeclarationContext describes one external name used by a range
// of code that is about to be extracted.
type VariableDeclarationContext struct {
	VariableName          string          `json:"name"`
	DeclarationKind       DeclarationKind `json:"kind"`
	Scope                 string          `json:"scope,omitempty"`
	ShouldPassAsParameter bool            `json:"pass_as_parameter"`
	InferredType          string          `json:"type,omitempty"`
}

// NewDeclarationContext fills ShouldPassAsParameter from kind.
func NewDeclarationContext(name string, kind DeclarationKind, scope, typ string) VariableDeclarationContext {
	return VariableDeclarationContext{
		VariableName:          name,
		DeclarationKind:       kind,
		Scope:                 scope,
		ShouldPassAsParameter: kind.PassByDefault(),
		InferredType:          typ,
	}
}
