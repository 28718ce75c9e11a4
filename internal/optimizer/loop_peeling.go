package optimizer

import "github.com/xyproto/tylink/internal/ast"

// LoopPeeling splits the first iteration off a `for i in start..end { B }`
// loop with a statically known constant trip count, specializing it for
// `i == start` and leaving the rest of the iterations in a smaller loop
// starting at `start+1`. Only the first-iteration path is peeled; a
// trailing last-iteration peel is not implemented. Peeling only pays for
// itself when some guard inside the body actually reads the induction
// variable (otherwise every iteration is identical and peeling just grows
// the code), and the loop must have at least one iteration left after the
// peel.
type LoopPeeling struct{}

func NewLoopPeeling() *LoopPeeling { return &LoopPeeling{} }

func (p *LoopPeeling) Name() string { return "loop-peeling" }

func (p *LoopPeeling) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *LoopPeeling) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
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

func (p *LoopPeeling) rewriteBlock(b *ast.BlockStmt, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	stmts := make([]ast.Statement, len(b.Statements))
	for i, s := range b.Statements {
		stmts[i] = p.rewriteStmt(s, stats)
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func (p *LoopPeeling) rewriteStmt(s ast.Statement, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.ForInStmt:
		body := p.rewriteBlock(n.Body, stats)
		if peeled, ok := p.tryPeel(n, body, stats); ok {
			return peeled
		}
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: n.Iterable, Body: body, Label: n.Label}
	case *ast.WhileStmt:
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Body: p.rewriteBlock(n.Body, stats), Label: n.Label}
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

func (p *LoopPeeling) tryPeel(n *ast.ForInStmt, body *ast.BlockStmt, stats *Stats) (ast.Statement, bool) {
	rng, ok := n.Iterable.(*ast.RangeExpr)
	if !ok || n.Label != "" {
		return nil, false
	}
	start, ok := rng.Start.(*ast.IntLiteral)
	if !ok {
		return nil, false
	}
	end, ok := rng.End.(*ast.IntLiteral)
	if !ok {
		return nil, false
	}
	tripCount := end.Value - start.Value
	if rng.Inclusive {
		tripCount++
	}
	if tripCount <= 1 {
		return nil, false
	}
	if !guardUsesInductionVar(body.Statements, n.VarName) {
		return nil, false
	}

	env := map[string]ast.Expression{n.VarName: &ast.IntLiteral{Value: start.Value}}
	firstIter := substituteBlock(body, env)

	restStart := &ast.IntLiteral{Value: start.Value + 1}
	remaining := &ast.ForInStmt{
		VarName:  n.VarName,
		Iterable: &ast.RangeExpr{Start: restStart, End: ast.CloneExpr(end), Inclusive: rng.Inclusive},
		Body:     ast.CloneBlock(body),
	}
	stats.Transformed++
	return &ast.BlockStmt{StmtMeta: n.StmtMeta, Statements: []ast.Statement{firstIter, remaining}}, true
}

func guardUsesInductionVar(stmts []ast.Statement, name string) bool {
	found := false
	var visit func(ast.Statement)
	visit = func(s ast.Statement) {
		if found || s == nil {
			return
		}
		switch n := s.(type) {
		case *ast.IfStmt:
			if referencesAny(n.Cond, map[string]bool{name: true}) {
				found = true
				return
			}
			visit(n.Then)
			for _, el := range n.Elifs {
				visit(el.Body)
			}
			if n.Else != nil {
				visit(n.Else)
			}
		case *ast.BlockStmt:
			for _, inner := range n.Statements {
				visit(inner)
			}
		}
	}
	for _, s := range stmts {
		visit(s)
	}
	return found
}

func substituteBlock(b *ast.BlockStmt, env map[string]ast.Expression) *ast.BlockStmt {
	stmts := make([]ast.Statement, len(b.Statements))
	for i, s := range b.Statements {
		stmts[i] = substituteStmt(s, env)
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func substituteStmt(s ast.Statement, env map[string]ast.Expression) ast.Statement {
	switch n := s.(type) {
	case *ast.ExprStmt:
		return &ast.ExprStmt{StmtMeta: n.StmtMeta, Expr: substituteExpr(n.Expr, env)}
	case *ast.ReturnStmt:
		return &ast.ReturnStmt{StmtMeta: n.StmtMeta, Value: substituteExpr(n.Value, env)}
	case *ast.VarDecl:
		c := *n
		c.Value = substituteExpr(n.Value, env)
		return &c
	case *ast.AssignStmt:
		return &ast.AssignStmt{StmtMeta: n.StmtMeta, Target: substituteExpr(n.Target, env), Value: substituteExpr(n.Value, env)}
	case *ast.BlockStmt:
		return substituteBlock(n, env)
	case *ast.IfStmt:
		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifs[i] = ast.ElifClause{Cond: substituteExpr(el.Cond, env), Body: substituteBlock(el.Body, env)}
		}
		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseBlk = substituteBlock(n.Else, env)
		}
		return &ast.IfStmt{StmtMeta: n.StmtMeta, Cond: substituteExpr(n.Cond, env), Then: substituteBlock(n.Then, env), Elifs: elifs, Else: elseBlk}
	default:
		return ast.CloneStmt(s)
	}
}
