package optimizer

import "github.com/xyproto/tylink/internal/ast"

// DeadStoreElimination removes an assignment (or initializing VarDecl) to a
// local whose value is overwritten by the very next statement in the same
// block before ever being read, and whose address is never taken — the
// first store was dead. It does not reason across block boundaries: a
// store immediately followed by a branch is always kept, since either side
// of the branch might read it.
type DeadStoreElimination struct{}

func NewDeadStoreElimination() *DeadStoreElimination { return &DeadStoreElimination{} }

func (p *DeadStoreElimination) Name() string { return "dead-store-elimination" }

func (p *DeadStoreElimination) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *DeadStoreElimination) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
	switch n := st.(type) {
	case *ast.FuncDecl:
		if n.Body == nil {
			return n
		}
		addressTaken := map[string]bool{}
		collectAddressTaken(n.Body.Statements, addressTaken)
		out := *n
		out.Body = p.rewriteBlock(n.Body, addressTaken, stats)
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

func (p *DeadStoreElimination) rewriteBlock(b *ast.BlockStmt, addressTaken map[string]bool, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	rewritten := make([]ast.Statement, len(b.Statements))
	for i, s := range b.Statements {
		rewritten[i] = p.rewriteStmt(s, addressTaken, stats)
	}

	var kept []ast.Statement
	for i := 0; i < len(rewritten); i++ {
		s := rewritten[i]
		name, isStore := storeTarget(s)
		if isStore && !addressTaken[name] && i+1 < len(rewritten) {
			if nextName, nextIsStore := storeTarget(rewritten[i+1]); nextIsStore && nextName == name && !exprReads(valueOf(rewritten[i+1]), name) {
				stats.Transformed++
				continue
			}
		}
		kept = append(kept, s)
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: kept}
}

func storeTarget(s ast.Statement) (string, bool) {
	switch n := s.(type) {
	case *ast.VarDecl:
		return n.Name, true
	case *ast.AssignStmt:
		if id, ok := n.Target.(*ast.Identifier); ok {
			return id.Name, true
		}
	}
	return "", false
}

func valueOf(s ast.Statement) ast.Expression {
	switch n := s.(type) {
	case *ast.VarDecl:
		return n.Value
	case *ast.AssignStmt:
		return n.Value
	}
	return nil
}

func exprReads(e ast.Expression, name string) bool {
	found := false
	ast.WalkExpr(e, func(n ast.Expression) bool {
		if id, ok := n.(*ast.Identifier); ok && id.Name == name {
			found = true
			return false
		}
		return true
	})
	return found
}

func (p *DeadStoreElimination) rewriteStmt(s ast.Statement, addressTaken map[string]bool, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.BlockStmt:
		return p.rewriteBlock(n, addressTaken, stats)
	case *ast.IfStmt:
		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifs[i] = ast.ElifClause{Cond: el.Cond, Body: p.rewriteBlock(el.Body, addressTaken, stats)}
		}
		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseBlk = p.rewriteBlock(n.Else, addressTaken, stats)
		}
		return &ast.IfStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Then: p.rewriteBlock(n.Then, addressTaken, stats), Elifs: elifs, Else: elseBlk}
	case *ast.WhileStmt:
		// Loop bodies are left untouched: a store in iteration N can be read
		// by the next iteration's statements, which this block-local
		// analysis has no way to see.
		return n
	case *ast.ForInStmt:
		return n
	case *ast.MatchStmt:
		cases := make([]ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			cases[i] = ast.MatchCase{Pattern: mc.Pattern, Body: p.rewriteBlock(mc.Body, addressTaken, stats)}
		}
		var def *ast.BlockStmt
		if n.Default != nil {
			def = p.rewriteBlock(n.Default, addressTaken, stats)
		}
		return &ast.MatchStmt{StmtMeta: n.StmtMeta, Subject: n.Subject, Cases: cases, Default: def}
	case *ast.TryStmt:
		var elseBlk *ast.BlockStmt
		if n.ElseBody != nil {
			elseBlk = p.rewriteBlock(n.ElseBody, addressTaken, stats)
		}
		return &ast.TryStmt{StmtMeta: n.StmtMeta, Body: p.rewriteBlock(n.Body, addressTaken, stats), ElseBody: elseBlk}
	case *ast.UnsafeStmt:
		return &ast.UnsafeStmt{StmtMeta: n.StmtMeta, Body: p.rewriteBlock(n.Body, addressTaken, stats)}
	default:
		return s
	}
}
