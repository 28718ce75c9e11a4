package optimizer

import "github.com/xyproto/tylink/internal/ast"

// Mem2Reg promotes simple-typed locals whose address is never taken into
// tracked values: reads are substituted with the current value along the
// straight-line path that reaches them. No phi node is synthesized at a
// control-flow join; the tracked value is simply invalidated there, and a
// later CSE/GVN pass reconstructs any equivalence that still holds.
type Mem2Reg struct{}

func NewMem2Reg() *Mem2Reg { return &Mem2Reg{} }

func (p *Mem2Reg) Name() string { return "mem2reg" }

func (p *Mem2Reg) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *Mem2Reg) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
	switch n := st.(type) {
	case *ast.FuncDecl:
		if n.Body == nil {
			return n
		}
		addressTaken := map[string]bool{}
		collectAddressTaken(n.Body.Statements, addressTaken)
		env := map[string]ast.Expression{}
		newBody, _ := p.transformBlock(n.Body, env, addressTaken, stats)
		out := *n
		out.Body = newBody
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

func collectAddressTaken(stmts []ast.Statement, addressTaken map[string]bool) {
	for _, s := range stmts {
		var exprs []ast.Expression
		switch n := s.(type) {
		case *ast.ExprStmt:
			exprs = []ast.Expression{n.Expr}
		case *ast.ReturnStmt:
			exprs = []ast.Expression{n.Value}
		case *ast.VarDecl:
			exprs = []ast.Expression{n.Value}
		case *ast.AssignStmt:
			exprs = []ast.Expression{n.Target, n.Value}
		case *ast.BlockStmt:
			collectAddressTaken(n.Statements, addressTaken)
			continue
		case *ast.IfStmt:
			exprs = []ast.Expression{n.Cond}
			collectAddressTaken(n.Then.Statements, addressTaken)
			for _, el := range n.Elifs {
				collectAddressTaken(el.Body.Statements, addressTaken)
			}
			if n.Else != nil {
				collectAddressTaken(n.Else.Statements, addressTaken)
			}
		case *ast.WhileStmt:
			exprs = []ast.Expression{n.Cond}
			collectAddressTaken(n.Body.Statements, addressTaken)
		case *ast.ForInStmt:
			exprs = []ast.Expression{n.Iterable}
			collectAddressTaken(n.Body.Statements, addressTaken)
		case *ast.MatchStmt:
			exprs = []ast.Expression{n.Subject}
			for _, mc := range n.Cases {
				collectAddressTaken(mc.Body.Statements, addressTaken)
			}
			if n.Default != nil {
				collectAddressTaken(n.Default.Statements, addressTaken)
			}
		}
		for _, e := range exprs {
			markAddressTaken(e, addressTaken)
		}
	}
}

func markAddressTaken(e ast.Expression, addressTaken map[string]bool) {
	ast.WalkExpr(e, func(n ast.Expression) bool {
		switch op := n.(type) {
		case *ast.AddressOfExpr:
			if id, ok := op.Operand.(*ast.Identifier); ok {
				addressTaken[id.Name] = true
			}
		case *ast.BorrowExpr:
			if id, ok := op.Operand.(*ast.Identifier); ok {
				addressTaken[id.Name] = true
			}
		}
		return true
	})
}

// transformBlock returns the rewritten block together with the set of
// names it wrote (directly or through nested control-flow), so that a
// caller processing a branch knows what to invalidate at the join.
func (p *Mem2Reg) transformBlock(b *ast.BlockStmt, env map[string]ast.Expression, addressTaken map[string]bool, stats *Stats) (*ast.BlockStmt, map[string]bool) {
	if b == nil {
		return nil, nil
	}
	written := map[string]bool{}
	newStmts := make([]ast.Statement, 0, len(b.Statements))
	for _, s := range b.Statements {
		ns, w := p.transformStmt(s, env, addressTaken, stats)
		newStmts = append(newStmts, ns)
		for name := range w {
			written[name] = true
		}
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: newStmts}, written
}

func (p *Mem2Reg) transformStmt(s ast.Statement, env map[string]ast.Expression, addressTaken map[string]bool, stats *Stats) (ast.Statement, map[string]bool) {
	switch n := s.(type) {
	case *ast.VarDecl:
		newValue := substituteExpr(n.Value, env)
		if !addressTaken[n.Name] && isSimpleScalarInit(n.Value) {
			env[n.Name] = ast.CloneExpr(newValue)
			stats.Transformed++
		} else {
			delete(env, n.Name)
			stats.Skipped++
		}
		c := *n
		c.Value = newValue
		return &c, map[string]bool{n.Name: true}

	case *ast.AssignStmt:
		newValue := substituteExpr(n.Value, env)
		newTarget := substituteExpr(n.Target, env)
		written := map[string]bool{}
		if id, ok := n.Target.(*ast.Identifier); ok {
			written[id.Name] = true
			if !addressTaken[id.Name] {
				env[id.Name] = ast.CloneExpr(newValue)
				stats.Transformed++
			} else {
				delete(env, id.Name)
				stats.Skipped++
			}
			newTarget = &ast.Identifier{ExprMeta: id.ExprMeta, Name: id.Name}
		}
		return &ast.AssignStmt{StmtMeta: n.StmtMeta, Target: newTarget, Value: newValue}, written

	case *ast.ExprStmt:
		return &ast.ExprStmt{StmtMeta: n.StmtMeta, Expr: substituteExpr(n.Expr, env)}, nil

	case *ast.ReturnStmt:
		return &ast.ReturnStmt{StmtMeta: n.StmtMeta, Value: substituteExpr(n.Value, env)}, nil

	case *ast.BlockStmt:
		nb, w := p.transformBlock(n, env, addressTaken, stats)
		return nb, w

	case *ast.IfStmt:
		newCond := substituteExpr(n.Cond, env)
		thenEnv := cloneEnv(env)
		newThen, w1 := p.transformBlock(n.Then, thenEnv, addressTaken, stats)
		written := map[string]bool{}
		mergeWritten(written, w1)

		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifEnv := cloneEnv(env)
			newBody, w := p.transformBlock(el.Body, elifEnv, addressTaken, stats)
			elifs[i] = ast.ElifClause{Cond: substituteExpr(el.Cond, env), Body: newBody}
			mergeWritten(written, w)
		}

		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseEnv := cloneEnv(env)
			nb, w := p.transformBlock(n.Else, elseEnv, addressTaken, stats)
			elseBlk = nb
			mergeWritten(written, w)
		}

		for name := range written {
			delete(env, name)
		}
		return &ast.IfStmt{StmtMeta: n.StmtMeta, Cond: newCond, Then: newThen, Elifs: elifs, Else: elseBlk}, written

	case *ast.WhileStmt:
		loopWrites := assignedNames(n.Body.Statements)
		for name := range loopWrites {
			delete(env, name)
		}
		newCond := substituteExpr(n.Cond, env)
		bodyEnv := cloneEnv(env)
		newBody, w := p.transformBlock(n.Body, bodyEnv, addressTaken, stats)
		for name := range w {
			delete(env, name)
		}
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: newCond, Body: newBody, Label: n.Label}, w

	case *ast.ForInStmt:
		loopWrites := assignedNames(n.Body.Statements)
		loopWrites[n.VarName] = true
		for name := range loopWrites {
			delete(env, name)
		}
		newIterable := substituteExpr(n.Iterable, env)
		bodyEnv := cloneEnv(env)
		newBody, w := p.transformBlock(n.Body, bodyEnv, addressTaken, stats)
		for name := range w {
			delete(env, name)
		}
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: newIterable, Body: newBody, Label: n.Label}, w

	case *ast.MatchStmt:
		newSubject := substituteExpr(n.Subject, env)
		written := map[string]bool{}
		cases := make([]ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			caseEnv := cloneEnv(env)
			newBody, w := p.transformBlock(mc.Body, caseEnv, addressTaken, stats)
			cases[i] = ast.MatchCase{Pattern: ast.CloneExpr(mc.Pattern), Body: newBody}
			mergeWritten(written, w)
		}
		var def *ast.BlockStmt
		if n.Default != nil {
			defEnv := cloneEnv(env)
			nb, w := p.transformBlock(n.Default, defEnv, addressTaken, stats)
			def = nb
			mergeWritten(written, w)
		}
		for name := range written {
			delete(env, name)
		}
		return &ast.MatchStmt{StmtMeta: n.StmtMeta, Subject: newSubject, Cases: cases, Default: def}, written

	default:
		return ast.CloneStmt(s), nil
	}
}

func cloneEnv(env map[string]ast.Expression) map[string]ast.Expression {
	out := make(map[string]ast.Expression, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

func mergeWritten(dst, src map[string]bool) {
	for k := range src {
		dst[k] = true
	}
}
