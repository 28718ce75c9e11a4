package optimizer

import "github.com/xyproto/tylink/internal/ast"

// LoopDeletion removes a `for`/`while` loop whose body has no observable
// effect: no call, no channel/atomic op, no store through a member or
// index expression, and every name the body assigns is dead once the loop
// ends (never read by any statement after it in the same block). The loop
// itself must also have a statically bounded trip count — an unbounded
// while could diverge, and removing a potentially-infinite loop changes
// termination behavior, which this pass must not do.
type LoopDeletion struct{}

func NewLoopDeletion() *LoopDeletion { return &LoopDeletion{} }

func (p *LoopDeletion) Name() string { return "loop-deletion" }

func (p *LoopDeletion) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *LoopDeletion) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
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

func (p *LoopDeletion) rewriteBlock(b *ast.BlockStmt, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	rewritten := make([]ast.Statement, len(b.Statements))
	for i, s := range b.Statements {
		rewritten[i] = p.rewriteStmt(s, stats)
	}

	var kept []ast.Statement
	for i, s := range rewritten {
		body, assigned, boundedTrip, isLoop := loopShape(s)
		if isLoop && boundedTrip && hasNoEffect(body.Statements) && !readAfter(rewritten[i+1:], assigned) {
			stats.Transformed++
			continue
		}
		kept = append(kept, s)
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: kept}
}

func (p *LoopDeletion) rewriteStmt(s ast.Statement, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.WhileStmt:
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Body: p.rewriteBlock(n.Body, stats), Label: n.Label}
	case *ast.ForInStmt:
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: n.Iterable, Body: p.rewriteBlock(n.Body, stats), Label: n.Label}
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

// loopShape reports, for a while/for-in statement, its body, the names it
// assigns (including, for for-in, the induction variable), whether its
// trip count is statically bounded, and whether s was a loop at all.
func loopShape(s ast.Statement) (*ast.BlockStmt, map[string]bool, bool, bool) {
	switch n := s.(type) {
	case *ast.ForInStmt:
		bounded := false
		if rng, ok := n.Iterable.(*ast.RangeExpr); ok {
			_, startConst := rng.Start.(*ast.IntLiteral)
			_, endConst := rng.End.(*ast.IntLiteral)
			bounded = startConst && endConst
		}
		assigned := assignedNames(n.Body.Statements)
		assigned[n.VarName] = true
		return n.Body, assigned, bounded, true
	case *ast.WhileStmt:
		if lit, ok := n.Cond.(*ast.BoolLiteral); ok && !lit.Value {
			return n.Body, assignedNames(n.Body.Statements), true, true
		}
		return n.Body, assignedNames(n.Body.Statements), false, true
	default:
		return nil, nil, false, false
	}
}

func hasNoEffect(stmts []ast.Statement) bool {
	for _, s := range stmts {
		switch n := s.(type) {
		case *ast.VarDecl:
			if !isPure(n.Value) {
				return false
			}
		case *ast.AssignStmt:
			if _, ok := n.Target.(*ast.Identifier); !ok {
				return false
			}
			if !isPure(n.Value) {
				return false
			}
		case *ast.ExprStmt:
			if !isPure(n.Expr) {
				return false
			}
		case *ast.BlockStmt:
			if !hasNoEffect(n.Statements) {
				return false
			}
		case *ast.IfStmt:
			if !isPure(n.Cond) || !hasNoEffect(n.Then.Statements) {
				return false
			}
			for _, el := range n.Elifs {
				if !isPure(el.Cond) || !hasNoEffect(el.Body.Statements) {
					return false
				}
			}
			if n.Else != nil && !hasNoEffect(n.Else.Statements) {
				return false
			}
		case *ast.BreakStmt, *ast.ContinueStmt:
			// fine, no effect
		default:
			return false
		}
	}
	return true
}

func readAfter(stmts []ast.Statement, names map[string]bool) bool {
	for _, s := range stmts {
		if statementReadsAny(s, names) {
			return true
		}
	}
	return false
}

func statementReadsAny(s ast.Statement, names map[string]bool) bool {
	switch n := s.(type) {
	case *ast.ExprStmt:
		return referencesAny(n.Expr, names)
	case *ast.ReturnStmt:
		return referencesAny(n.Value, names)
	case *ast.VarDecl:
		return referencesAny(n.Value, names)
	case *ast.AssignStmt:
		return referencesAny(n.Value, names) || referencesAny(n.Target, names)
	case *ast.BlockStmt:
		return readAfter(n.Statements, names)
	case *ast.IfStmt:
		if referencesAny(n.Cond, names) || readAfter(n.Then.Statements, names) {
			return true
		}
		for _, el := range n.Elifs {
			if referencesAny(el.Cond, names) || readAfter(el.Body.Statements, names) {
				return true
			}
		}
		if n.Else != nil && readAfter(n.Else.Statements, names) {
			return true
		}
		return false
	case *ast.WhileStmt:
		return referencesAny(n.Cond, names) || readAfter(n.Body.Statements, names)
	case *ast.ForInStmt:
		return referencesAny(n.Iterable, names) || readAfter(n.Body.Statements, names)
	case *ast.MatchStmt:
		if referencesAny(n.Subject, names) {
			return true
		}
		for _, mc := range n.Cases {
			if readAfter(mc.Body.Statements, names) {
				return true
			}
		}
		if n.Default != nil && readAfter(n.Default.Statements, names) {
			return true
		}
		return false
	default:
		return true
	}
}
