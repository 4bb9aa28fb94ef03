package refactor

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	gotypes "go/types"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/tools/go/ast/edge"
	"golang.org/x/tools/go/ast/inspector"

	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/lang"
	"github.com/mamaar/polyrefactor/pkg/semantic"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// structField is a named field of a package-level struct type.
type structField struct {
	file  *loadedFile
	decl  *ast.GenDecl
	spec  *ast.TypeSpec
	field *ast.Field
	name  *ast.Ident
}

// fieldWrite is an assignment or increment whose target is the field.
type fieldWrite struct {
	file *loadedFile
	stmt ast.Stmt
	sel  *ast.SelectorExpr
}

func (c *compilerStrategy) EncapsulateField(ctx context.Context, sc scope, req types.EncapsulateFieldRequest) (*plan, error) {
	files, err := c.loadScope(ctx, sc)
	if err != nil {
		return nil, err
	}
	sf, err := findStructField(files, req.FieldName)
	if err != nil {
		return nil, err
	}
	df := sf.file.f
	typeName := sf.spec.Name.Name
	if sf.spec.TypeParams != nil {
		return nil, types.Errorf(types.Unsupported, "struct %s is generic", typeName)
	}
	if !req.SkipVisibilityCheck && c.cfg.Encapsulate.RequirePublic && !token.IsExported(req.FieldName) {
		return nil, types.Errorf(types.VisibilityViolation, "field %s.%s is not exported", typeName, req.FieldName)
	}

	getter := req.PropertyName
	if getter == "" {
		getter = lang.PascalCase(req.FieldName)
	}
	if !token.IsIdentifier(getter) {
		return nil, types.Errorf(types.InvalidOperation, "%q is not a valid Go identifier", getter)
	}
	setter := "Set" + getter
	backing := lang.LowerCamel(req.FieldName)
	if token.IsKeyword(backing) {
		backing += "_"
	}

	fieldObj := df.Info.Defs[sf.name]
	if fieldObj == nil {
		return nil, types.Errorf(types.EnvironmentError, "no type information for field %s.%s", typeName, req.FieldName)
	}
	named := df.Info.Defs[sf.spec.Name].Type()
	for _, n := range []string{getter, setter, backing} {
		if obj, _, _ := gotypes.LookupFieldOrMethod(named, true, df.Pkg, n); obj != nil && obj != fieldObj {
			return nil, types.Errorf(types.NameConflict, "type %s already has a field or method named %s", typeName, n)
		}
	}
	key := semantic.ObjectKey(df.Fset, fieldObj)
	structLike := false
	switch fieldObj.Type().Underlying().(type) {
	case *gotypes.Struct, *gotypes.Array:
		structLike = true
	}

	p := &plan{}
	edits := map[*loadedFile][]types.Edit{}
	reads := map[*loadedFile][]types.Edit{}
	var writes []fieldWrite
	refs := 0
	for _, lf := range files {
		f := lf.f
		for cur := range lf.in.Root().Preorder((*ast.Ident)(nil)) {
			id := cur.Node().(*ast.Ident)
			if id.Name != req.FieldName || id == sf.name {
				continue
			}
			at := fmt.Sprintf("%s:%d", f.Path, f.Line(id.Pos()))
			k, _ := cur.ParentEdge()
			var sel *ast.SelectorExpr
			switch k {
			case edge.SelectorExpr_Sel:
				sel = cur.Parent().Node().(*ast.SelectorExpr)
				s := f.Info.Selections[sel]
				if s == nil || s.Kind() != gotypes.FieldVal || semantic.ObjectKey(f.Fset, s.Obj()) != key {
					continue
				}
			case edge.KeyValueExpr_Key:
				if obj := f.Info.Uses[id]; obj == nil || semantic.ObjectKey(f.Fset, obj) != key {
					continue
				}
			default:
				continue
			}
			refs++
			switch {
			case !lf.inScope:
				return nil, types.Errorf(types.InvalidOperation, "field %s is used at %s, outside the requested file", req.FieldName, at)
			case f.Pkg.Path() != df.Pkg.Path() && (sel == nil || !req.UpdateReferences):
				return nil, types.Errorf(types.InvalidOperation, "field %s is used from package %s at %s", req.FieldName, f.Pkg.Path(), at)
			}
			rename := types.Edit{Start: f.Offset(id.Pos()), End: f.Offset(id.End()), NewText: backing}
			if sel == nil || !req.UpdateReferences {
				edits[lf] = append(edits[lf], rename)
				continue
			}

			selCur := cur.Parent()
			write, target := fieldAccess(selCur)
			switch {
			case write == nil && target == nil:
				reads[lf] = append(reads[lf], types.Edit{Start: rename.Start, End: rename.End, NewText: getter + "()"})
			case target != nil && !structLike:
				// Writes through a slice, map or pointer field still reach
				// the shared value.
				reads[lf] = append(reads[lf], types.Edit{Start: rename.Start, End: rename.End, NewText: getter + "()"})
			case target != nil:
				return nil, types.Errorf(types.InvalidOperation, "cannot encapsulate %s: %s modifies part of it in place", req.FieldName, at)
			default:
				writes = append(writes, fieldWrite{file: lf, stmt: write, sel: sel})
			}
		}
	}

	for _, w := range writes {
		e, err := renderWrite(w, getter, setter, reads[w.file])
		if err != nil {
			return nil, err
		}
		edits[w.file] = append(edits[w.file], e)
	}
	for lf, rs := range reads {
		for _, r := range rs {
			if !coveredBy(r, edits[lf]) {
				edits[lf] = append(edits[lf], r)
			}
		}
	}
	if refs > 0 && !req.UpdateReferences {
		p.warn("%d reference(s) to %s now use the unexported field %s", refs, req.FieldName, backing)
	}

	// Rename the declaration and add the accessors after the type.
	edits[sf.file] = append(edits[sf.file], types.Edit{
		Start: df.Offset(sf.name.Pos()), End: df.Offset(sf.name.End()), NewText: backing,
	})
	at := lineEnd(df.Src, df.Offset(sf.decl.End()))
	recvName, pointerGetter := receiverStyle(files, typeName)
	fieldType := string(df.Src[df.Offset(sf.field.Type.Pos()):df.Offset(sf.field.Type.End())])
	methods := accessorSource(accessorSpec{
		typeName:      typeName,
		recv:          recvName,
		pointerGetter: pointerGetter,
		getter:        getter,
		setter:        setter,
		backing:       backing,
		fieldType:     fieldType,
		getterBody:    req.GetterBody,
		setterBody:    req.SetterBody,
		validation:    req.SetterValidation,
	})
	edits[sf.file] = append(edits[sf.file], types.Edit{Start: at, End: at, NewText: methods})

	for _, lf := range files {
		if len(edits[lf]) == 0 {
			continue
		}
		out, err := diff.Apply(lf.f.Src, edits[lf])
		if err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", lf.f.Path, err)
		}
		p.addFile(lf.f.Path, lf.f.Src, out)
	}
	p.message = fmt.Sprintf("Encapsulated %s.%s behind %s and %s", typeName, req.FieldName, getter, setter)
	p.set("property_name", getter)
	p.set("setter_name", setter)
	p.set("backing_field", backing)
	p.set("form", "methods")
	if req.UpdateReferences {
		p.set("references_updated", fmt.Sprint(refs))
	}
	return p, nil
}

func findStructField(files []*loadedFile, name string) (structField, error) {
	var found []structField
	for _, lf := range files {
		if !lf.inScope {
			continue
		}
		for _, d := range lf.f.AST.Decls {
			gd, ok := d.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				st, ok := ts.Type.(*ast.StructType)
				if !ok {
					continue
				}
				for _, field := range st.Fields.List {
					for _, id := range field.Names {
						if id.Name == name {
							found = append(found, structField{file: lf, decl: gd, spec: ts, field: field, name: id})
						}
					}
				}
			}
		}
	}
	switch len(found) {
	case 0:
		return structField{}, types.Errorf(types.SymbolNotFound, "field %s not found", name)
	case 1:
		return found[0], nil
	}
	var where []string
	for _, sf := range found {
		where = append(where, sf.spec.Name.Name)
	}
	sort.Strings(where)
	return structField{}, types.Errorf(types.InvalidOperation, "field %s is declared in %d structs (%s)", name, len(found), strings.Join(where, ", "))
}

// fieldAccess classifies a field selector. It returns the statement when
// the selector is the target of an assignment or increment, or the
// outer expression when a sub-part of the field is written or addressed.
func fieldAccess(sel inspector.Cursor) (ast.Stmt, ast.Node) {
	switch k, _ := sel.ParentEdge(); k {
	case edge.AssignStmt_Lhs:
		return sel.Parent().Node().(*ast.AssignStmt), nil
	case edge.IncDecStmt_X:
		return sel.Parent().Node().(*ast.IncDecStmt), nil
	case edge.UnaryExpr_X:
		if sel.Parent().Node().(*ast.UnaryExpr).Op == token.AND {
			return nil, sel.Parent().Node()
		}
	}
	// Walk out through selectors and index expressions on the field.
	cur := sel
	for {
		k, _ := cur.ParentEdge()
		if k != edge.SelectorExpr_X && k != edge.IndexExpr_X {
			return nil, nil
		}
		cur = cur.Parent()
		switch k, _ := cur.ParentEdge(); k {
		case edge.CallExpr_Fun:
			return nil, nil
		case edge.AssignStmt_Lhs, edge.IncDecStmt_X:
			return nil, cur.Node()
		case edge.UnaryExpr_X:
			if cur.Parent().Node().(*ast.UnaryExpr).Op == token.AND {
				return nil, cur.Node()
			}
		}
	}
}

// renderWrite turns an assignment to the field into a setter call.
func renderWrite(w fieldWrite, getter, setter string, reads []types.Edit) (types.Edit, error) {
	f := w.file.f
	at := fmt.Sprintf("%s:%d", f.Path, f.Line(w.stmt.Pos()))
	text := func(n ast.Node) string {
		start, end := f.Offset(n.Pos()), f.Offset(n.End())
		var inner []types.Edit
		for _, r := range reads {
			if r.Start >= start && r.End <= end {
				inner = append(inner, types.Edit{Start: r.Start - start, End: r.End - start, NewText: r.NewText})
			}
		}
		out, err := diff.Apply(f.Src[start:end], inner)
		if err != nil {
			return string(f.Src[start:end])
		}
		return string(out)
	}
	recv := text(w.sel.X)
	var value string
	switch s := w.stmt.(type) {
	case *ast.AssignStmt:
		if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
			return types.Edit{}, types.Errorf(types.InvalidOperation, "multiple assignment to the field at %s", at)
		}
		value = text(s.Rhs[0])
		if s.Tok != token.ASSIGN {
			op := strings.TrimSuffix(s.Tok.String(), "=")
			value = fmt.Sprintf("%s.%s() %s (%s)", recv, getter, op, value)
		}
	case *ast.IncDecStmt:
		op := "+"
		if s.Tok == token.DEC {
			op = "-"
		}
		value = fmt.Sprintf("%s.%s() %s 1", recv, getter, op)
	}
	return types.Edit{
		Start:   f.Offset(w.stmt.Pos()),
		End:     f.Offset(w.stmt.End()),
		NewText: fmt.Sprintf("%s.%s(%s)", recv, setter, value),
	}, nil
}

func coveredBy(e types.Edit, edits []types.Edit) bool {
	for _, o := range edits {
		if o.Start <= e.Start && e.End <= o.End && o.End > o.Start {
			return true
		}
	}
	return false
}

// receiverStyle copies the receiver name of existing methods and
// whether they take pointer receivers.
func receiverStyle(files []*loadedFile, typeName string) (string, bool) {
	name, pointer, found := "", true, false
	for _, lf := range files {
		for _, d := range lf.f.AST.Decls {
			fd, ok := d.(*ast.FuncDecl)
			if !ok || fd.Recv == nil || len(fd.Recv.List) == 0 {
				continue
			}
			t := fd.Recv.List[0].Type
			star, isPtr := t.(*ast.StarExpr)
			if isPtr {
				t = star.X
			}
			if id, ok := t.(*ast.Ident); !ok || id.Name != typeName {
				continue
			}
			if n := receiverName(fd); n != "" && name == "" {
				name = n
			}
			if !found || !isPtr {
				pointer = isPtr
			}
			found = true
		}
	}
	if name == "" {
		r := []rune(typeName)
		name = string(unicode.ToLower(r[0]))
	}
	return name, pointer
}

type accessorSpec struct {
	typeName      string
	recv          string
	pointerGetter bool
	getter        string
	setter        string
	backing       string
	fieldType     string
	getterBody    string
	setterBody    string
	validation    string
}

func accessorSource(s accessorSpec) string {
	getRecv := s.typeName
	if s.pointerGetter {
		getRecv = "*" + s.typeName
	}
	var b strings.Builder
	fmt.Fprintf(&b, "\n// %s returns the %s of %s.\n", s.getter, s.backing, s.recv)
	fmt.Fprintf(&b, "func (%s %s) %s() %s {\n", s.recv, getRecv, s.getter, s.fieldType)
	if s.getterBody != "" {
		b.WriteString(bodyText(s.getterBody))
	} else {
		fmt.Fprintf(&b, "\treturn %s.%s\n", s.recv, s.backing)
	}
	b.WriteString("}\n")
	fmt.Fprintf(&b, "\n// %s sets the %s of %s.\n", s.setter, s.backing, s.recv)
	fmt.Fprintf(&b, "func (%s *%s) %s(value %s) {\n", s.recv, s.typeName, s.setter, s.fieldType)
	if s.validation != "" {
		b.WriteString(bodyText(s.validation))
	}
	if s.setterBody != "" {
		b.WriteString(bodyText(s.setterBody))
	} else {
		fmt.Fprintf(&b, "\t%s.%s = value\n", s.recv, s.backing)
	}
	b.WriteString("}\n")
	return b.String()
}

// bodyText indents caller-supplied statements one level.
func bodyText(text string) string {
	return joinLines(lang.Reindent(strings.Split(strings.TrimRight(text, "\n"), "\n"), "\t"))
}
