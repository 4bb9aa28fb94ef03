package refactor

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/mamaar/polyrefactor/pkg/config"
	"github.com/mamaar/polyrefactor/pkg/diff"
	"github.com/mamaar/polyrefactor/pkg/heuristic"
	"github.com/mamaar/polyrefactor/pkg/lang"
	"github.com/mamaar/polyrefactor/pkg/types"
)

// introduceVariable binds the selected expression to a new variable
// declared before the statement that contains it. Only the selected
// occurrence is replaced. Selections the statement would evaluate
// conditionally, repeatedly or later are rejected.
func introduceVariable(ctx context.Context, d *lang.Dialect, path string, src []byte, req types.IntroduceVariableRequest, limits config.IntroduceVariableConfig) (*plan, error) {
	lineOff := lineOffset(src, req.Line)
	if lineOff < 0 {
		return nil, types.Errorf(types.InvalidOperation, "line %d is outside the file (%d lines)", req.Line, lineCount(src))
	}
	text := strings.TrimRight(string(src[lineOff:lineEnd(src, lineOff)]), "\r\n")
	if req.StartColumn < 1 || req.EndColumn <= req.StartColumn || req.EndColumn-1 > len(text) {
		return nil, types.Errorf(types.InvalidOperation, "invalid column range %d-%d on line %d of length %d",
			req.StartColumn, req.EndColumn, req.Line, len(text))
	}

	start, end := lineOff+req.StartColumn-1, lineOff+req.EndColumn-1
	raw := string(src[start:end])
	expr := strings.TrimSpace(raw)
	if expr == "" {
		return nil, types.Errorf(types.InvalidOperation, "selection is empty")
	}
	start += len(raw) - len(strings.TrimLeft(raw, " \t"))
	end = start + len(expr)
	if n := len(expr); n < limits.MinLength || n > limits.MaxLength {
		return nil, types.Errorf(types.InvalidOperation, "expression length %d is outside the allowed range %d-%d",
			n, limits.MinLength, limits.MaxLength)
	}

	masked := heuristic.Mask(src, d.Lexical)
	if strings.TrimSpace(string(masked[start:end])) == "" {
		return nil, types.Errorf(types.InvalidOperation, "selection lies inside a string or comment")
	}
	if err := checkExpression(d, masked[start:end]); err != nil {
		return nil, err
	}

	tree, err := parseClean(ctx, d, path, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	node := heuristic.Covering(tree.RootNode(), start, end)
	if node == nil || int(node.StartByte()) != start || int(node.EndByte()) != end || !valueNode(d, node) {
		return nil, types.Errorf(types.InvalidOperation, "%q on line %d is not a complete expression", expr, req.Line)
	}
	stmt, err := hoistPoint(d, node)
	if err != nil {
		return nil, err
	}
	stmtOff := lineStart(src, int(stmt.StartByte()))
	stmtLine := heuristic.Line(stmt)
	if len(bytes.TrimSpace(masked[stmtOff:stmt.StartByte()])) != 0 {
		return nil, types.Errorf(types.InvalidOperation, "the statement holding the selection does not start line %d", stmtLine)
	}

	taken := identifierSet(masked)
	name := req.VariableName
	if name != "" {
		if !d.ValidIdentifier(name) {
			return nil, types.Errorf(types.InvalidOperation, "%q is not a valid %s identifier", name, d.Name)
		}
		if taken[name] {
			return nil, types.Errorf(types.NameConflict, "%s is already used in %s", name, path)
		}
	} else {
		name = uniqueName(SuggestName(d, expr), taken)
	}

	indent := req.Indent
	if indent == "" {
		indent = indentAt(src, stmtOff)
	}
	eol := "\n"
	if bytes.HasSuffix(src[stmtOff:lineEnd(src, stmtOff)], []byte("\r\n")) {
		eol = "\r\n"
	}
	decl := indent + d.VarDecl(name, expr) + eol

	out, err := diff.Apply(src, []types.Edit{{
		Start:   stmtOff,
		End:     end,
		NewText: decl + string(src[stmtOff:start]) + name,
	}})
	if err != nil {
		return nil, fmt.Errorf("rewrite %s: %w", path, err)
	}
	p := &plan{}
	p.addFile(path, src, out)
	p.message = fmt.Sprintf("Introduced variable %s for %s", name, expr)
	p.set("variable_name", name)
	p.set("statement_line", strconv.Itoa(stmtLine))
	return p, nil
}

// shortCircuit operators evaluate their right operand only sometimes.
var shortCircuit = map[string]bool{
	"&&": true, "||": true, "??": true, "and": true, "or": true,
	"&&=": true, "||=": true, "??=": true,
}

// caseClauses hold statements directly, after a label that is not one.
var caseClauses = map[string]bool{
	"expression_case": true, "type_case": true, "communication_case": true, "default_case": true,
	"switch_case": true, "switch_default": true,
}

// valueNode reports whether n computes a value that can be bound to a
// variable, as opposed to a statement, a name being declared or a
// location being written.
func valueNode(d *lang.Dialect, n *sitter.Node) bool {
	t := n.Type()
	if d.Syntax.Blocks[t] || caseClauses[t] {
		return false
	}
	for _, suffix := range []string{"statement", "declaration", "definition", "clause", "comment"} {
		if strings.HasSuffix(t, suffix) {
			return false
		}
	}
	p := n.Parent()
	if p == nil {
		return false
	}
	switch {
	case heuristic.IsField(n, "name"), heuristic.IsField(n, "key"):
		return false
	case p.Type() == d.Syntax.Member && heuristic.IsField(n, d.Syntax.MemberProperty):
		return false
	case p.Type() == d.Syntax.Call && heuristic.IsField(n, d.Syntax.CallFunction) && t == d.Syntax.Member:
		// a method value detached from its call
		return false
	}
	return true
}

// hoistPoint returns the statement before which n can be evaluated once
// with the same effect, walking up through the expressions around it.
func hoistPoint(d *lang.Dialect, n *sitter.Node) (*sitter.Node, error) {
	for c := n; ; {
		p := c.Parent()
		if p == nil {
			return nil, types.Errorf(types.InvalidOperation, "selection on line %d is not inside a statement", heuristic.Line(n))
		}
		if d.Syntax.Blocks[p.Type()] || (caseClauses[p.Type()] && !caseLabel(c)) {
			return c, nil
		}
		if why := hoistBarrier(d, p, c); why != "" {
			return nil, types.Errorf(types.InvalidOperation,
				"cannot introduce a variable: the selection on line %d is %s", heuristic.Line(n), why)
		}
		c = p
	}
}

func caseLabel(c *sitter.Node) bool {
	return heuristic.IsField(c, "value") || heuristic.IsField(c, "type") || heuristic.IsField(c, "communication")
}

// hoistBarrier explains why c, a child of p, is not evaluated exactly once
// and before everything else p does, or returns "".
func hoistBarrier(d *lang.Dialect, p, c *sitter.Node) string {
	t := p.Type()
	field := func(names ...string) bool {
		for _, name := range names {
			if heuristic.IsField(c, name) {
				return true
			}
		}
		return false
	}
	switch {
	case d.Syntax.Functions[t] || t == "lambda":
		return "inside a function body"
	case d.Syntax.Classes[t]:
		return "inside a class body"
	case strings.HasSuffix(t, "comprehension") || t == "generator_expression":
		return "inside a comprehension"
	case d.Syntax.Assignments[t] && field("left"),
		t == "inc_statement", t == "dec_statement", t == "update_expression":
		return "an assignment target"
	case t == "unary_expression" && operatorOf(p) == "&":
		return "an operand of &"
	case shortCircuit[operatorOf(p)] && field("right"):
		return "the right operand of " + operatorOf(p)
	case t == "comparison_operator" && p.NamedChildCount() > 2:
		if !heuristic.Same(p.NamedChild(0), c) && !heuristic.Same(p.NamedChild(1), c) {
			return "a later operand of a chained comparison"
		}
	case t == "except_clause", t == "except_group_clause", t == "catch_clause", t == "finally_clause",
		t == "else_clause", t == "case_clause":
		return "inside a conditional branch"
	case t == "ternary_expression":
		if !field("condition") {
			return "a branch of a conditional expression"
		}
	case t == "conditional_expression":
		if p.NamedChildCount() < 2 || !heuristic.Same(p.NamedChild(1), c) {
			return "a branch of a conditional expression"
		}
	case t == "assert_statement":
		if !heuristic.Same(p.NamedChild(0), c) {
			return "an assertion message"
		}
	case t == "while_statement", t == "do_statement":
		return "part of a loop condition"
	case t == "for_statement":
		if !field("initializer", "right") && c.Type() != "for_clause" && c.Type() != "range_clause" {
			return "part of a loop condition or body"
		}
	case t == "for_clause":
		if !field("initializer") {
			return "part of a loop condition"
		}
	case t == "for_in_statement", t == "range_clause":
		if !field("right") {
			return "part of a loop"
		}
	case t == "if_statement", t == "expression_switch_statement", t == "type_switch_statement":
		switch {
		case field("initializer"):
		case field("condition", "value") && p.ChildByFieldName("initializer") == nil:
		default:
			return "inside a conditional branch"
		}
	case t == "switch_statement":
		if !field("value") {
			return "inside a switch case"
		}
	case field("body", "consequence", "alternative"):
		return "inside a nested body"
	}
	return ""
}

func operatorOf(n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return op.Type()
	}
	return ""
}

// checkExpression rejects selections that cannot be a whole expression.
func checkExpression(d *lang.Dialect, m []byte) error {
	s := string(m)
	if t := d.Lexical.Terminator; t != "" && strings.Contains(s, t) {
		return types.Errorf(types.InvalidOperation, "selection contains a statement terminator")
	}
	if d.WrapBlock != nil && strings.HasPrefix(strings.TrimSpace(s), "{") {
		return types.Errorf(types.InvalidOperation, "selection starts a block")
	}

	var stack []byte
	closing := map[byte]byte{')': '(', ']': '[', '}': '{'}
	for i := 0; i < len(m); i++ {
		switch c := m[i]; c {
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != closing[c] {
				return types.Errorf(types.InvalidOperation, "selection has unbalanced %q", c)
			}
			stack = stack[:len(stack)-1]
		case '=':
			if len(stack) == 0 && isAssignment(m, i) {
				return types.Errorf(types.InvalidOperation, "selection contains an assignment")
			}
		}
	}
	if len(stack) > 0 {
		return types.Errorf(types.InvalidOperation, "selection has unbalanced %q", stack[len(stack)-1])
	}
	for _, q := range d.Lexical.Quotes {
		if len(q) == 1 && strings.Count(s, q)%2 != 0 {
			return types.Errorf(types.InvalidOperation, "selection splits a string literal")
		}
	}
	return nil
}

func isAssignment(m []byte, i int) bool {
	if i+1 < len(m) && (m[i+1] == '=' || m[i+1] == '>') {
		return false
	}
	if i > 0 && strings.IndexByte("=!<>", m[i-1]) >= 0 {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, it := range list {
		if it == s {
			return true
		}
	}
	return false
}
