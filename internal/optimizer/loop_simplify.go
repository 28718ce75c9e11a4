package optimizer

import "github.com/xyproto/tylink/internal/ast"

// LoopSimplify canonicalizes a loop body that contains more than one
// `if cond { continue }` guard into a single-latch shape: a `$skip` flag is
// set by each guard instead of jumping immediately, and every statement
// after a guard is wrapped in `if !$skip { ... }`. This gives every
// downstream loop pass one exit shape to reason about instead of an
// arbitrary number of early continues. Labelled loops, and loops whose
// body holds any labelled break or continue, are left untouched.
type LoopSimplify struct {
	tempCounter int
}

func NewLoopSimplify() *LoopSimplify { return &LoopSimplify{} }

func (p *LoopSimplify) Name() string { return "loop-simplify" }

func (p *LoopSimplify) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *LoopSimplify) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
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

func (p *LoopSimplify) rewriteBlock(b *ast.BlockStmt, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	stmts := make([]ast.Statement, len(b.Statements))
	for i, s := range b.Statements {
		stmts[i] = p.rewriteStmt(s, stats)
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func (p *LoopSimplify) rewriteStmt(s ast.Statement, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.WhileStmt:
		body := p.rewriteBlock(n.Body, stats)
		if n.Label == "" && !hasLabelledEscape(body.Statements) {
			body = p.collapseGuards(body, stats)
		}
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Body: body, Label: n.Label}
	case *ast.ForInStmt:
		body := p.rewriteBlock(n.Body, stats)
		if n.Label == "" && !hasLabelledEscape(body.Statements) {
			body = p.collapseGuards(body, stats)
		}
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: n.Iterable, Body: body, Label: n.Label}
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
	case *ast.BlockStmt:
		return p.rewriteBlock(n, stats)
	default:
		return s
	}
}

// isBareContinueGuard reports whether s is `if cond { continue }` with no
// elifs or else, returning cond when it matches.
func isBareContinueGuard(s ast.Statement) (ast.Expression, bool) {
	ifs, ok := s.(*ast.IfStmt)
	if !ok || len(ifs.Elifs) != 0 || ifs.Else != nil {
		return nil, false
	}
	if len(ifs.Then.Statements) != 1 {
		return nil, false
	}
	cont, ok := ifs.Then.Statements[0].(*ast.ContinueStmt)
	if !ok || cont.Label != "" {
		return nil, false
	}
	return ifs.Cond, true
}

func (p *LoopSimplify) collapseGuards(body *ast.BlockStmt, stats *Stats) *ast.BlockStmt {
	guardCount := 0
	for _, s := range body.Statements {
		if _, ok := isBareContinueGuard(s); ok {
			guardCount++
		}
	}
	if guardCount < 2 {
		return body
	}

	p.tempCounter++
	skip := tempNameFor("$lsimplify_skip", p.tempCounter)

	var out []ast.Statement
	out = append(out, &ast.VarDecl{Name: skip, Mutable: true, Value: &ast.BoolLiteral{Value: false}})
	for _, s := range body.Statements {
		if cond, ok := isBareContinueGuard(s); ok {
			out = append(out, &ast.IfStmt{
				Cond: &ast.BinaryExpr{Op: "&&", Left: &ast.UnaryExpr{Op: "!", Operand: &ast.Identifier{Name: skip}}, Right: cond},
				Then: &ast.BlockStmt{Statements: []ast.Statement{
					&ast.AssignStmt{Target: &ast.Identifier{Name: skip}, Value: &ast.BoolLiteral{Value: true}},
				}},
			})
			stats.Transformed++
			continue
		}
		out = append(out, &ast.IfStmt{
			Cond: &ast.UnaryExpr{Op: "!", Operand: &ast.Identifier{Name: skip}},
			Then: &ast.BlockStmt{Statements: []ast.Statement{s}},
		})
	}
	return &ast.BlockStmt{StmtMeta: body.StmtMeta, Statements: out}
}

func tempNameFor(prefix string, n int) string {
	const digits = "0123456789"
	if n < 10 {
		return prefix + "_" + string(digits[n])
	}
	buf := []byte{}
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return prefix + "_" + string(buf)
}
