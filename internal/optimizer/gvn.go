package optimizer

import (
	"fmt"
	"strings"

	"github.com/xyproto/tylink/internal/ast"
)

// GVN (global value numbering) recognizes structurally identical pure
// subexpressions recomputed within the same block and rewrites the later
// occurrence to read the value already bound by the earlier one, rather
// than recompute it. Commutative operators (+, *, ==, !=, && and ||) are canonicalized by
// sorting their operand keys so `a + b` and `b + a` number the same.
type GVN struct{}

func NewGVN() *GVN { return &GVN{} }

func (p *GVN) Name() string { return "gvn" }

var commutativeOps = map[string]bool{"+": true, "*": true, "==": true, "!=": true, "&&": true, "||": true}

func (p *GVN) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *GVN) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
	switch n := st.(type) {
	case *ast.FuncDecl:
		if n.Body == nil {
			return n
		}
		out := *n
		out.Body = p.numberBlock(n.Body, map[string]string{}, stats)
		return &out
	case *ast.ModuleDecl:
		body := make([]ast.Statement, len(n.Body))
		for i, inner := range n.Body {
			body[i] = p.rewriteTopLevel(inner, stats)
		}
		return &ast.ModuleDecl{StmtMeta: n.StmtMeta, Name: n.Name, Body: body}
	default:
		return st
	}
}

// canonicalKey returns a string uniquely identifying the value an
// expression computes for the purposes of this pass, or "" if the
// expression isn't one we track (identifiers and literals are tracked so
// they can appear as operands, but aren't themselves GVN targets).
func canonicalKey(e ast.Expression) string {
	switch n := e.(type) {
	case *ast.Identifier:
		return "id:" + n.Name
	case *ast.IntLiteral:
		return fmt.Sprintf("int:%d", n.Value)
	case *ast.FloatLiteral:
		return fmt.Sprintf("float:%v", n.Value)
	case *ast.BoolLiteral:
		return fmt.Sprintf("bool:%v", n.Value)
	case *ast.StringLiteral:
		return fmt.Sprintf("str:%q", n.Value)
	case *ast.CharLiteral:
		return fmt.Sprintf("char:%d", n.Value)
	case *ast.BinaryExpr:
		l := canonicalKey(n.Left)
		r := canonicalKey(n.Right)
		if l == "" || r == "" {
			return ""
		}
		if commutativeOps[n.Op] && l > r {
			l, r = r, l
		}
		return "bin:" + n.Op + "(" + l + "," + r + ")"
	case *ast.UnaryExpr:
		o := canonicalKey(n.Operand)
		if o == "" {
			return ""
		}
		return "un:" + n.Op + "(" + o + ")"
	case *ast.MemberExpr:
		t := canonicalKey(n.Target)
		if t == "" {
			return ""
		}
		return "mem:" + t + "." + n.Field
	default:
		return ""
	}
}

func isLeafKey(key string) bool {
	return strings.HasPrefix(key, "id:") || strings.HasPrefix(key, "int:") ||
		strings.HasPrefix(key, "float:") || strings.HasPrefix(key, "bool:") ||
		strings.HasPrefix(key, "str:") || strings.HasPrefix(key, "char:")
}

func (p *GVN) numberBlock(b *ast.BlockStmt, table map[string]string, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	local := cloneCopies(table)
	stmts := make([]ast.Statement, 0, len(b.Statements))
	for _, s := range b.Statements {
		stmts = append(stmts, p.numberStmt(s, local, stats))
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func (p *GVN) numberStmt(s ast.Statement, table map[string]string, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.VarDecl:
		newValue := p.rewrite(n.Value, table, stats)
		c := *n
		c.Value = newValue
		for name := range assignedNames([]ast.Statement{n}) {
			invalidateValueNumbers(table, name)
		}
		if key := canonicalKey(n.Value); key != "" && !isLeafKey(key) && !strings.Contains(key, "id:"+n.Name) {
			if _, exists := table[key]; !exists {
				table[key] = n.Name
			}
		}
		return &c

	case *ast.AssignStmt:
		newValue := p.rewrite(n.Value, table, stats)
		newTarget := p.rewrite(n.Target, table, stats)
		if id, ok := n.Target.(*ast.Identifier); ok {
			invalidateValueNumbers(table, id.Name)
			if key := canonicalKey(n.Value); key != "" && !isLeafKey(key) {
				table[key] = id.Name
			}
		}
		return &ast.AssignStmt{StmtMeta: n.StmtMeta, Target: newTarget, Value: newValue}

	case *ast.ExprStmt:
		return &ast.ExprStmt{StmtMeta: n.StmtMeta, Expr: p.rewrite(n.Expr, table, stats)}

	case *ast.ReturnStmt:
		return &ast.ReturnStmt{StmtMeta: n.StmtMeta, Value: p.rewrite(n.Value, table, stats)}

	case *ast.BlockStmt:
		return p.numberBlock(n, table, stats)

	case *ast.IfStmt:
		newCond := p.rewrite(n.Cond, table, stats)
		newThen := p.numberBlock(n.Then, table, stats)
		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifs[i] = ast.ElifClause{Cond: p.rewrite(el.Cond, table, stats), Body: p.numberBlock(el.Body, table, stats)}
		}
		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseBlk = p.numberBlock(n.Else, table, stats)
		}
		for name := range assignedNames([]ast.Statement{n}) {
			invalidateValueNumbers(table, name)
		}
		return &ast.IfStmt{StmtMeta: n.StmtMeta, Cond: newCond, Then: newThen, Elifs: elifs, Else: elseBlk}

	case *ast.WhileStmt:
		for name := range assignedNames(n.Body.Statements) {
			invalidateValueNumbers(table, name)
		}
		newCond := p.rewrite(n.Cond, table, stats)
		newBody := p.numberBlock(n.Body, table, stats)
		for name := range assignedNames(n.Body.Statements) {
			invalidateValueNumbers(table, name)
		}
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: newCond, Body: newBody, Label: n.Label}

	case *ast.ForInStmt:
		invalidateValueNumbers(table, n.VarName)
		for name := range assignedNames(n.Body.Statements) {
			invalidateValueNumbers(table, name)
		}
		newIterable := p.rewrite(n.Iterable, table, stats)
		newBody := p.numberBlock(n.Body, table, stats)
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: newIterable, Body: newBody, Label: n.Label}

	case *ast.MatchStmt:
		newSubject := p.rewrite(n.Subject, table, stats)
		cases := make([]ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			cases[i] = ast.MatchCase{Pattern: mc.Pattern, Body: p.numberBlock(mc.Body, table, stats)}
		}
		var def *ast.BlockStmt
		if n.Default != nil {
			def = p.numberBlock(n.Default, table, stats)
		}
		for name := range assignedNames([]ast.Statement{n}) {
			invalidateValueNumbers(table, name)
		}
		return &ast.MatchStmt{StmtMeta: n.StmtMeta, Subject: newSubject, Cases: cases, Default: def}

	default:
		return ast.CloneStmt(s)
	}
}

func invalidateValueNumbers(table map[string]string, name string) {
	for k, v := range table {
		if v == name || strings.Contains(k, "id:"+name) {
			delete(table, k)
		}
	}
}

func (p *GVN) rewrite(e ast.Expression, table map[string]string, stats *Stats) ast.Expression {
	if e == nil {
		return nil
	}
	if key := canonicalKey(e); key != "" && !isLeafKey(key) {
		if name, ok := table[key]; ok {
			stats.Transformed++
			return &ast.Identifier{ExprMeta: exprMeta(e), Name: name}
		}
	}
	switch n := e.(type) {
	case *ast.BinaryExpr:
		return &ast.BinaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Left: p.rewrite(n.Left, table, stats), Right: p.rewrite(n.Right, table, stats)}
	case *ast.UnaryExpr:
		return &ast.UnaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Operand: p.rewrite(n.Operand, table, stats)}
	case *ast.TernaryExpr:
		return &ast.TernaryExpr{ExprMeta: n.ExprMeta, Cond: p.rewrite(n.Cond, table, stats), Then: p.rewrite(n.Then, table, stats), Else: p.rewrite(n.Else, table, stats)}
	case *ast.CallExpr:
		args := make([]ast.Expression, len(n.Args))
		for i, a := range n.Args {
			args[i] = p.rewrite(a, table, stats)
		}
		return &ast.CallExpr{ExprMeta: n.ExprMeta, Callee: p.rewrite(n.Callee, table, stats), Args: args}
	case *ast.MemberExpr:
		return &ast.MemberExpr{ExprMeta: n.ExprMeta, Target: p.rewrite(n.Target, table, stats), Field: n.Field}
	case *ast.IndexExpr:
		return &ast.IndexExpr{ExprMeta: n.ExprMeta, Target: p.rewrite(n.Target, table, stats), Index: p.rewrite(n.Index, table, stats)}
	case *ast.AssignExpr:
		return &ast.AssignExpr{ExprMeta: n.ExprMeta, Target: p.rewrite(n.Target, table, stats), Value: p.rewrite(n.Value, table, stats)}
	case *ast.CastExpr:
		return &ast.CastExpr{ExprMeta: n.ExprMeta, Value: p.rewrite(n.Value, table, stats), TargetType: n.TargetType}
	default:
		return ast.CloneExpr(e)
	}
}

func exprMeta(e ast.Expression) ast.ExprMeta {
	return ast.ExprMeta{Pos: e.Loc()}
}
