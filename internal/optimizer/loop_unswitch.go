package optimizer

import "github.com/xyproto/tylink/internal/ast"

// LoopUnswitch hoists a loop-invariant `if`/`else` guard out of a loop body
// by cloning the loop into two variants, one specialized per branch:
//
//	while c { pre; if g { A } else { B }; post }
//
// becomes
//
//	if g { while c { pre; A; post } } else { while c { pre; B; post } }
//
// eliminating the re-test of g on every iteration. Requires g to reference
// no name the loop body assigns and not the induction variable of a
// for-in loop, both branches to be present, and the body
// to be no larger than maxLoopSize nodes (unswitching doubles the body, so
// an unbounded body would blow up code size for no benefit past a point).
type LoopUnswitch struct {
	maxLoopSize int
}

func NewLoopUnswitch() *LoopUnswitch { return &LoopUnswitch{maxLoopSize: 60} }

func (p *LoopUnswitch) Name() string { return "loop-unswitch" }

func (p *LoopUnswitch) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *LoopUnswitch) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
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

func (p *LoopUnswitch) rewriteBlock(b *ast.BlockStmt, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	stmts := make([]ast.Statement, len(b.Statements))
	for i, s := range b.Statements {
		stmts[i] = p.rewriteStmt(s, stats)
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func blockSize(stmts []ast.Statement) int {
	n := 0
	var visit func(ast.Statement)
	visit = func(s ast.Statement) {
		n++
		switch v := s.(type) {
		case *ast.BlockStmt:
			for _, inner := range v.Statements {
				visit(inner)
			}
		case *ast.IfStmt:
			for _, inner := range v.Then.Statements {
				visit(inner)
			}
			for _, el := range v.Elifs {
				for _, inner := range el.Body.Statements {
					visit(inner)
				}
			}
			if v.Else != nil {
				for _, inner := range v.Else.Statements {
					visit(inner)
				}
			}
		}
	}
	for _, s := range stmts {
		visit(s)
	}
	return n
}

func (p *LoopUnswitch) rewriteStmt(s ast.Statement, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.WhileStmt:
		body := p.rewriteBlock(n.Body, stats)
		if rewritten, ok := p.tryUnswitch(n.Cond, "", body, func(newBody *ast.BlockStmt) ast.Statement {
			return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: ast.CloneExpr(n.Cond), Body: newBody, Label: n.Label}
		}, stats); ok {
			return rewritten
		}
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Body: body, Label: n.Label}
	case *ast.ForInStmt:
		body := p.rewriteBlock(n.Body, stats)
		if rewritten, ok := p.tryUnswitch(n.Iterable, n.VarName, body, func(newBody *ast.BlockStmt) ast.Statement {
			return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: ast.CloneExpr(n.Iterable), Body: newBody, Label: n.Label}
		}, stats); ok {
			return rewritten
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

// tryUnswitch looks for a top-level `if g {A} else {B}` inside body where g
// is loop-invariant, and if found returns the unswitched replacement built
// via rebuildLoop for each specialized body. loopVar is the induction
// variable of a for-in loop ("" for a while loop); g may not read it.
func (p *LoopUnswitch) tryUnswitch(loopHeaderExpr ast.Expression, loopVar string, body *ast.BlockStmt, rebuildLoop func(*ast.BlockStmt) ast.Statement, stats *Stats) (ast.Statement, bool) {
	if blockSize(body.Statements) > p.maxLoopSize {
		return nil, false
	}
	assigned := assignedNames(body.Statements)
	if loopVar != "" {
		assigned[loopVar] = true
	}
	for i, s := range body.Statements {
		ifs, ok := s.(*ast.IfStmt)
		if !ok || len(ifs.Elifs) != 0 || ifs.Else == nil {
			continue
		}
		if referencesAny(ifs.Cond, assigned) {
			continue
		}
		pre := body.Statements[:i]
		post := body.Statements[i+1:]

		thenBody := &ast.BlockStmt{Statements: concatStmts(pre, ifs.Then.Statements, post)}
		elseBody := &ast.BlockStmt{Statements: concatStmts(pre, ifs.Else.Statements, post)}

		stats.Transformed++
		return &ast.IfStmt{
			Cond: ast.CloneExpr(ifs.Cond),
			Then: &ast.BlockStmt{Statements: []ast.Statement{rebuildLoop(thenBody)}},
			Else: &ast.BlockStmt{Statements: []ast.Statement{rebuildLoop(elseBody)}},
		}, true
	}
	return nil, false
}

func concatStmts(parts ...[]ast.Statement) []ast.Statement {
	var out []ast.Statement
	for _, part := range parts {
		for _, s := range part {
			out = append(out, ast.CloneStmt(s))
		}
	}
	return out
}

func referencesAny(e ast.Expression, names map[string]bool) bool {
	found := false
	ast.WalkExpr(e, func(n ast.Expression) bool {
		if id, ok := n.(*ast.Identifier); ok && names[id.Name] {
			found = true
			return false
		}
		return true
	})
	return found
}
