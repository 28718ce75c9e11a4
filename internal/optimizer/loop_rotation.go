package optimizer

import "github.com/xyproto/tylink/internal/ast"

// LoopRotation turns `while(c){B}` into `if(c){while(true){B; if(!c) break}}`,
// moving the loop test to the bottom so the back-end can fall straight
// through on exit instead of branching. The AST has no do-while node, so
// the rotated form is spelled out with an explicit trailing break rather
// than synthesizing one. Declining cases: c has a side effect or is
// already a literal `true` (nothing to rotate, and rotating an
// already-infinite loop is meaningless); the body contains any labelled
// break/continue (might target an outer loop, so rotation would change its
// meaning); or c is larger than maxHeaderSize nodes.
type LoopRotation struct {
	maxHeaderSize int
}

func NewLoopRotation() *LoopRotation { return &LoopRotation{maxHeaderSize: 12} }

func (p *LoopRotation) Name() string { return "loop-rotation" }

func (p *LoopRotation) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *LoopRotation) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
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

func (p *LoopRotation) rewriteBlock(b *ast.BlockStmt, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	var stmts []ast.Statement
	for _, s := range b.Statements {
		stmts = append(stmts, p.rewriteStmt(s, stats))
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func (p *LoopRotation) rewriteStmt(s ast.Statement, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.WhileStmt:
		body := p.rewriteBlock(n.Body, stats)
		if n.Label != "" || !p.eligible(n.Cond, body) {
			return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Body: body, Label: n.Label}
		}
		stats.Transformed++
		rotatedBody := append([]ast.Statement{}, body.Statements...)
		rotatedBody = append(rotatedBody, &ast.IfStmt{
			Cond: &ast.UnaryExpr{Op: "!", Operand: ast.CloneExpr(n.Cond)},
			Then: &ast.BlockStmt{Statements: []ast.Statement{&ast.BreakStmt{}}},
		})
		inner := &ast.WhileStmt{Cond: &ast.BoolLiteral{Value: true}, Body: &ast.BlockStmt{Statements: rotatedBody}}
		return &ast.IfStmt{
			StmtMeta: n.StmtMeta,
			Cond:     ast.CloneExpr(n.Cond),
			Then:     &ast.BlockStmt{Statements: []ast.Statement{inner}},
		}
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

func (p *LoopRotation) eligible(cond ast.Expression, body *ast.BlockStmt) bool {
	if lit, ok := cond.(*ast.BoolLiteral); ok && lit.Value {
		return false
	}
	if !isPure(cond) {
		return false
	}
	if exprSize(cond) > p.maxHeaderSize {
		return false
	}
	return !hasLabelledEscape(body.Statements)
}

func exprSize(e ast.Expression) int {
	n := 0
	ast.WalkExpr(e, func(ast.Expression) bool {
		n++
		return true
	})
	return n
}

func hasLabelledEscape(stmts []ast.Statement) bool {
	found := false
	var visit func(ast.Statement)
	visit = func(s ast.Statement) {
		if found || s == nil {
			return
		}
		switch n := s.(type) {
		case *ast.BreakStmt:
			if n.Label != "" {
				found = true
			}
		case *ast.ContinueStmt:
			if n.Label != "" {
				found = true
			}
		case *ast.BlockStmt:
			for _, inner := range n.Statements {
				visit(inner)
			}
		case *ast.IfStmt:
			visit(n.Then)
			for _, el := range n.Elifs {
				visit(el.Body)
			}
			if n.Else != nil {
				visit(n.Else)
			}
		case *ast.MatchStmt:
			for _, mc := range n.Cases {
				visit(mc.Body)
			}
			if n.Default != nil {
				visit(n.Default)
			}
		case *ast.TryStmt:
			visit(n.Body)
			if n.ElseBody != nil {
				visit(n.ElseBody)
			}
		case *ast.UnsafeStmt:
			visit(n.Body)
			// Nested while/for loops own their own unlabelled
			// break/continue; only a labelled one could still
			// escape further out, and that's caught above.
		case *ast.WhileStmt:
			visit(n.Body)
		case *ast.ForInStmt:
			visit(n.Body)
		}
	}
	for _, s := range stmts {
		visit(s)
	}
	return found
}
