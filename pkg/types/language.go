package types

// LanguageTag identifies the language family of a file. It decides
// whether the semantic path or the syntax-pattern path handles a request.
type LanguageTag int

const (
	Unknown LanguageTag = iota
	// CompilerGrade languages have a program-wide symbol and type model (Go).
	CompilerGrade
	// HeuristicA is Python.
	HeuristicA
	// HeuristicB is JavaScript and TypeScript.
	HeuristicB
)

func (t LanguageTag) String() string {
	switch t {
	case CompilerGrade:
		return "compiler-grade"
	case HeuristicA:
		return "heuristic-a"
	case HeuristicB:
		return "heuristic-b"
	default:
		return "unknown"
	}
}

// IsHeuristic reports whether t is handled by the syntax-pattern path.
func (t LanguageTag) IsHeuristic() bool {
	return t == HeuristicA || t == HeuristicB
}

func (t LanguageTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
