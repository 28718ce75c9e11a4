package optimizer

import "github.com/xyproto/tylink/internal/ast"

// BDCE (bit-level dead code elimination) removes pure expression statements
// whose computed value is never read by anything: the result's bits are
// entirely unused, so the computation that produced them is unreachable
// dead weight. Side-effecting expressions (calls, assignments, channel and
// atomic ops) are always kept even when their value is discarded.
type BDCE struct{}

func NewBDCE() *BDCE { return &BDCE{} }

func (p *BDCE) Name() string { return "bdce" }

func (p *BDCE) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *BDCE) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
	switch n := st.(type) {
	case *ast.FuncDecl:
		if n.Body == nil {
			return n
		}
		out := *n
		out.Body = p.rewriteBlock(n.Body, stats)
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

func (p *BDCE) rewriteBlock(b *ast.BlockStmt, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	var stmts []ast.Statement
	for _, s := range b.Statements {
		if es, ok := s.(*ast.ExprStmt); ok && isPure(es.Expr) {
			stats.Transformed++
			continue
		}
		stmts = append(stmts, p.rewriteStmt(s, stats))
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func (p *BDCE) rewriteStmt(s ast.Statement, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.BlockStmt:
		return p.rewriteBlock(n, stats)
	case *ast.IfStmt:
		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifs[i] = ast.ElifClause{Cond: el.Cond, Body: p.rewriteBlock(el.Body, stats)}
		}
		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseBlk = p.rewriteBlock(n.Else, stats)
		}
		return &ast.IfStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Then: p.rewriteBlock(n.Then, stats), Elifs: elifs, Else: elseBlk}
	case *ast.WhileStmt:
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Body: p.rewriteBlock(n.Body, stats), Label: n.Label}
	case *ast.ForInStmt:
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: n.Iterable, Body: p.rewriteBlock(n.Body, stats), Label: n.Label}
	case *ast.MatchStmt:
		cases := make([]ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			cases[i] = ast.MatchCase{Pattern: mc.Pattern, Body: p.rewriteBlock(mc.Body, stats)}
		}
		var def *ast.BlockStmt
		if n.Default != nil {
			def = p.rewriteBlock(n.Default, stats)
		}
		return &ast.MatchStmt{StmtMeta: n.StmtMeta, Subject: n.Subject, Cases: cases, Default: def}
	case *ast.TryStmt:
		var elseBlk *ast.BlockStmt
		if n.ElseBody != nil {
			elseBlk = p.rewriteBlock(n.ElseBody, stats)
		}
		return &ast.TryStmt{StmtMeta: n.StmtMeta, Body: p.rewriteBlock(n.Body, stats), ElseBody: elseBlk}
	case *ast.UnsafeStmt:
		return &ast.UnsafeStmt{StmtMeta: n.StmtMeta, Body: p.rewriteBlock(n.Body, stats)}
	default:
		return s
	}
}

// isPure reports whether evaluating e can have no observable side effect,
// so a statement consisting only of e can be dropped when its value is
// discarded.
func isPure(e ast.Expression) bool {
	if e == nil {
		return true
	}
	switch n := e.(type) {
	case *ast.IntLiteral, *ast.FloatLiteral, *ast.BoolLiteral, *ast.StringLiteral, *ast.CharLiteral, *ast.NilLiteral, *ast.Identifier:
		return true
	case *ast.BinaryExpr:
		return isPure(n.Left) && isPure(n.Right)
	case *ast.UnaryExpr:
		return isPure(n.Operand)
	case *ast.TernaryExpr:
		return isPure(n.Cond) && isPure(n.Then) && isPure(n.Else)
	case *ast.MemberExpr:
		return isPure(n.Target)
	case *ast.IndexExpr:
		return isPure(n.Target) && isPure(n.Index)
	case *ast.CastExpr:
		return isPure(n.Value)
	default:
		// Calls, assignments, address-of, channel/atomic ops, spawn,
		// await: all either have a side effect or its absence can't be
		// proven locally.
		return false
	}
}
