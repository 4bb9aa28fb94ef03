package refactor

import (
	"bytes"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"path"
	"strconv"

	"golang.org/x/tools/go/ast/astutil"
)

// importRef is an import a moved piece of code depends on.
type importRef struct {
	name string // local name used in the code
	path string
}

// tidyImports adds the imports need now requires and deletes those in
// maybeUnused that no selector mentions anymore. The file is re-parsed
// from text since type-checked trees are shared.
func tidyImports(filename string, text []byte, need, maybeUnused []importRef) ([]byte, error) {
	if len(need) == 0 && len(maybeUnused) == 0 {
		return text, nil
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, text, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool)
	ast.Inspect(file, func(n ast.Node) bool {
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if id, ok := sel.X.(*ast.Ident); ok {
				used[id.Name] = true
			}
		}
		return true
	})

	changed := false
	for _, imp := range need {
		if hasImport(file, imp.path) {
			continue
		}
		name := imp.name
		if name == path.Base(imp.path) {
			name = ""
		}
		changed = astutil.AddNamedImport(fset, file, name, imp.path) || changed
	}
	for _, imp := range maybeUnused {
		if used[imp.name] {
			continue
		}
		// DeleteNamedImport shrinks file.Imports; find the import first.
		var match *ast.ImportSpec
		for _, spec := range file.Imports {
			if p, _ := strconv.Unquote(spec.Path.Value); p == imp.path {
				match = spec
				break
			}
		}
		if match == nil {
			continue
		}
		name := ""
		if match.Name != nil {
			name = match.Name.Name
		}
		changed = astutil.DeleteNamedImport(fset, file, name, imp.path) || changed
	}
	if !changed {
		return text, nil
	}
	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func hasImport(file *ast.File, importPath string) bool {
	for _, spec := range file.Imports {
		if p, _ := strconv.Unquote(spec.Path.Value); p == importPath {
			return true
		}
	}
	return false
}
