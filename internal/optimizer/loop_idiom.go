package optimizer

import "github.com/xyproto/tylink/internal/ast"

// LoopIdiom recognizes two canonical array-fill shapes and replaces them
// with a single builtin call:
//
//	for i in 0..n   { a[i] = v }     ->  __builtin_memset(a, v, n)
//	for i in 0..n   { a[i] = b[i] }  ->  __builtin_memcpy(a, b, n)
//
// (and their 0..=n-1 inclusive-range spellings). v must not depend on the
// induction variable for memset; source and destination arrays must be
// distinct expressions for memcpy (`a[i] = a[i]` is a no-op, not a copy,
// and the loop is left as it is).
type LoopIdiom struct{}

func NewLoopIdiom() *LoopIdiom { return &LoopIdiom{} }

func (p *LoopIdiom) Name() string { return "loop-idiom" }

func (p *LoopIdiom) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *LoopIdiom) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
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

func (p *LoopIdiom) rewriteBlock(b *ast.BlockStmt, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	stmts := make([]ast.Statement, len(b.Statements))
	for i, s := range b.Statements {
		stmts[i] = p.rewriteStmt(s, stats)
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func (p *LoopIdiom) rewriteStmt(s ast.Statement, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.ForInStmt:
		if call, ok := p.recognize(n); ok {
			stats.Transformed++
			return &ast.ExprStmt{StmtMeta: n.StmtMeta, Expr: call}
		}
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: n.Iterable, Body: p.rewriteBlock(n.Body, stats), Label: n.Label}
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

func (p *LoopIdiom) recognize(n *ast.ForInStmt) (ast.Expression, bool) {
	if n.Label != "" || len(n.Body.Statements) != 1 {
		return nil, false
	}
	rng, ok := n.Iterable.(*ast.RangeExpr)
	if !ok {
		return nil, false
	}
	start, ok := rng.Start.(*ast.IntLiteral)
	if !ok || start.Value != 0 {
		return nil, false
	}
	assign, ok := n.Body.Statements[0].(*ast.AssignStmt)
	if !ok {
		return nil, false
	}
	idx, ok := assign.Target.(*ast.IndexExpr)
	if !ok {
		return nil, false
	}
	if id, ok := idx.Index.(*ast.Identifier); !ok || id.Name != n.VarName {
		return nil, false
	}

	count := idiomCount(rng)

	if srcIdx, ok := assign.Value.(*ast.IndexExpr); ok {
		if id, ok := srcIdx.Index.(*ast.Identifier); ok && id.Name == n.VarName {
			if canonicalKey(srcIdx.Target) != canonicalKey(idx.Target) {
				return &ast.CallExpr{
					Callee: &ast.Identifier{Name: "__builtin_memcpy"},
					Args:   []ast.Expression{ast.CloneExpr(idx.Target), ast.CloneExpr(srcIdx.Target), count},
				}, true
			}
			return nil, false
		}
	}

	if !referencesAny(assign.Value, map[string]bool{n.VarName: true}) {
		return &ast.CallExpr{
			Callee: &ast.Identifier{Name: "__builtin_memset"},
			Args:   []ast.Expression{ast.CloneExpr(idx.Target), ast.CloneExpr(assign.Value), count},
		}, true
	}
	return nil, false
}

func idiomCount(rng *ast.RangeExpr) ast.Expression {
	if !rng.Inclusive {
		return ast.CloneExpr(rng.End)
	}
	if lit, ok := rng.End.(*ast.IntLiteral); ok {
		return &ast.IntLiteral{Value: lit.Value + 1}
	}
	return &ast.BinaryExpr{Op: "+", Left: ast.CloneExpr(rng.End), Right: &ast.IntLiteral{Value: 1}}
}
