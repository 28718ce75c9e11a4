package optimizer

import "github.com/xyproto/tylink/internal/ast"

// CorrelatedValuePropagation goes one step past ConstraintElimination: when
// a branch is guarded by `x == <literal>` (or `x == y` for another
// identifier y), every read of x inside that branch is replaced by the
// literal (or y) directly, not just re-tests of the same comparison,
// unless the branch assigns a name the guard reads. `if x == 0 { y = x + 1 }`
// becomes `if x == 0 { y = 0 + 1 }`, which reassociate/constant-folding
// can then collapse further.
type CorrelatedValuePropagation struct{}

func NewCorrelatedValuePropagation() *CorrelatedValuePropagation {
	return &CorrelatedValuePropagation{}
}

func (p *CorrelatedValuePropagation) Name() string { return "correlated-value-propagation" }

func (p *CorrelatedValuePropagation) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *CorrelatedValuePropagation) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
	switch n := st.(type) {
	case *ast.FuncDecl:
		if n.Body == nil {
			return n
		}
		out := *n
		out.Body = p.rewriteBlock(n.Body, map[string]ast.Expression{}, stats)
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

// equalityFact reports the identifier and the literal (or other
// identifier) an `==` comparison equates it with, if cond has that exact
// shape.
func equalityFact(cond ast.Expression) (string, ast.Expression, bool) {
	bin, ok := cond.(*ast.BinaryExpr)
	if !ok || bin.Op != "==" {
		return "", nil, false
	}
	id, ok := bin.Left.(*ast.Identifier)
	if !ok {
		return "", nil, false
	}
	key := canonicalKey(bin.Right)
	if key == "" || !isLeafKey(key) || key == "id:"+id.Name {
		return "", nil, false
	}
	return id.Name, bin.Right, true
}

func (p *CorrelatedValuePropagation) rewriteBlock(b *ast.BlockStmt, facts map[string]ast.Expression, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	stmts := make([]ast.Statement, len(b.Statements))
	for i, s := range b.Statements {
		stmts[i] = p.rewriteStmt(s, facts, stats)
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func (p *CorrelatedValuePropagation) rewriteStmt(s ast.Statement, facts map[string]ast.Expression, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.ExprStmt:
		return &ast.ExprStmt{StmtMeta: n.StmtMeta, Expr: p.substitute(n.Expr, facts, stats)}
	case *ast.ReturnStmt:
		return &ast.ReturnStmt{StmtMeta: n.StmtMeta, Value: p.substitute(n.Value, facts, stats)}
	case *ast.VarDecl:
		c := *n
		c.Value = p.substitute(n.Value, facts, stats)
		return &c
	case *ast.AssignStmt:
		return &ast.AssignStmt{StmtMeta: n.StmtMeta, Target: n.Target, Value: p.substitute(n.Value, facts, stats)}
	case *ast.BlockStmt:
		return p.rewriteBlock(n, facts, stats)
	case *ast.IfStmt:
		newCond := p.substitute(n.Cond, facts, stats)
		thenFacts := cloneFactMap(facts)
		if name, val, ok := equalityFact(n.Cond); ok {
			if !referencesAny(n.Cond, assignedNames(n.Then.Statements)) {
				thenFacts[name] = val
			}
		}
		newThen := p.rewriteBlock(n.Then, thenFacts, stats)
		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifFacts := cloneFactMap(facts)
			if name, val, ok := equalityFact(el.Cond); ok && !referencesAny(el.Cond, assignedNames(el.Body.Statements)) {
				elifFacts[name] = val
			}
			elifs[i] = ast.ElifClause{Cond: p.substitute(el.Cond, facts, stats), Body: p.rewriteBlock(el.Body, elifFacts, stats)}
		}
		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseBlk = p.rewriteBlock(n.Else, cloneFactMap(facts), stats)
		}
		return &ast.IfStmt{StmtMeta: n.StmtMeta, Cond: newCond, Then: newThen, Elifs: elifs, Else: elseBlk}
	case *ast.WhileStmt:
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Body: p.rewriteBlock(n.Body, map[string]ast.Expression{}, stats), Label: n.Label}
	case *ast.ForInStmt:
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: n.Iterable, Body: p.rewriteBlock(n.Body, map[string]ast.Expression{}, stats), Label: n.Label}
	case *ast.MatchStmt:
		cases := make([]ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			cases[i] = ast.MatchCase{Pattern: mc.Pattern, Body: p.rewriteBlock(mc.Body, cloneFactMap(facts), stats)}
		}
		var def *ast.BlockStmt
		if n.Default != nil {
			def = p.rewriteBlock(n.Default, cloneFactMap(facts), stats)
		}
		return &ast.MatchStmt{StmtMeta: n.StmtMeta, Subject: n.Subject, Cases: cases, Default: def}
	default:
		return s
	}
}

func cloneFactMap(facts map[string]ast.Expression) map[string]ast.Expression {
	out := make(map[string]ast.Expression, len(facts))
	for k, v := range facts {
		out[k] = v
	}
	return out
}

func (p *CorrelatedValuePropagation) substitute(e ast.Expression, facts map[string]ast.Expression, stats *Stats) ast.Expression {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *ast.Identifier:
		if v, ok := facts[n.Name]; ok {
			stats.Transformed++
			return ast.CloneExpr(v)
		}
		return n
	case *ast.BinaryExpr:
		return &ast.BinaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Left: p.substitute(n.Left, facts, stats), Right: p.substitute(n.Right, facts, stats)}
	case *ast.UnaryExpr:
		return &ast.UnaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Operand: p.substitute(n.Operand, facts, stats)}
	case *ast.TernaryExpr:
		return &ast.TernaryExpr{ExprMeta: n.ExprMeta, Cond: p.substitute(n.Cond, facts, stats), Then: p.substitute(n.Then, facts, stats), Else: p.substitute(n.Else, facts, stats)}
	case *ast.CallExpr:
		args := make([]ast.Expression, len(n.Args))
		for i, a := range n.Args {
			args[i] = p.substitute(a, facts, stats)
		}
		return &ast.CallExpr{ExprMeta: n.ExprMeta, Callee: n.Callee, Args: args}
	default:
		return e
	}
}
