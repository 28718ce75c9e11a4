package optimizer

import "github.com/xyproto/tylink/internal/ast"

// ConstraintElimination tracks simple comparison facts established by an
// enclosing `if cond { ... }` (e.g. `x == 0`, `x != 1`) and simplifies a
// later re-test of the identical comparison inside that branch to the
// literal the outer test already proved: `if x == 0 { if x == 0 {...} }`
// collapses the inner test to `true`; the inner `if` statement itself is
// kept. No fact is recorded for a branch that assigns a name the
// comparison reads.
type ConstraintElimination struct{}

func NewConstraintElimination() *ConstraintElimination { return &ConstraintElimination{} }

func (p *ConstraintElimination) Name() string { return "constraint-elimination" }

func (p *ConstraintElimination) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *ConstraintElimination) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
	switch n := st.(type) {
	case *ast.FuncDecl:
		if n.Body == nil {
			return n
		}
		out := *n
		out.Body = p.rewriteBlock(n.Body, map[string]bool{}, stats)
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

func (p *ConstraintElimination) rewriteBlock(b *ast.BlockStmt, facts map[string]bool, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	stmts := make([]ast.Statement, len(b.Statements))
	for i, s := range b.Statements {
		stmts[i] = p.rewriteStmt(s, facts, stats)
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func (p *ConstraintElimination) rewriteStmt(s ast.Statement, facts map[string]bool, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.IfStmt:
		newCond := p.rewriteCond(n.Cond, facts, stats)
		thenFacts := cloneFacts(facts)
		if key := comparisonKey(n.Cond); key != "" && !referencesAny(n.Cond, assignedNames(n.Then.Statements)) {
			thenFacts[key] = true
		}
		newThen := p.rewriteBlock(n.Then, thenFacts, stats)

		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifFacts := cloneFacts(facts)
			if key := comparisonKey(el.Cond); key != "" && !referencesAny(el.Cond, assignedNames(el.Body.Statements)) {
				elifFacts[key] = true
			}
			elifs[i] = ast.ElifClause{Cond: p.rewriteCond(el.Cond, facts, stats), Body: p.rewriteBlock(el.Body, elifFacts, stats)}
		}

		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseFacts := cloneFacts(facts)
			if key := comparisonKey(n.Cond); key != "" && !referencesAny(n.Cond, assignedNames(n.Else.Statements)) {
				elseFacts["!"+key] = true
			}
			elseBlk = p.rewriteBlock(n.Else, elseFacts, stats)
		}
		return &ast.IfStmt{StmtMeta: n.StmtMeta, Cond: newCond, Then: newThen, Elifs: elifs, Else: elseBlk}

	case *ast.BlockStmt:
		return p.rewriteBlock(n, facts, stats)
	case *ast.WhileStmt:
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Body: p.rewriteBlock(n.Body, map[string]bool{}, stats), Label: n.Label}
	case *ast.ForInStmt:
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: n.Iterable, Body: p.rewriteBlock(n.Body, map[string]bool{}, stats), Label: n.Label}
	case *ast.MatchStmt:
		cases := make([]ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			cases[i] = ast.MatchCase{Pattern: mc.Pattern, Body: p.rewriteBlock(mc.Body, map[string]bool{}, stats)}
		}
		var def *ast.BlockStmt
		if n.Default != nil {
			def = p.rewriteBlock(n.Default, map[string]bool{}, stats)
		}
		return &ast.MatchStmt{StmtMeta: n.StmtMeta, Subject: n.Subject, Cases: cases, Default: def}
	default:
		return s
	}
}

func cloneFacts(f map[string]bool) map[string]bool {
	out := make(map[string]bool, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// comparisonKey returns a stable string for an equality/inequality
// comparison between an identifier and a literal or another identifier, or
// "" if cond isn't one.
func comparisonKey(cond ast.Expression) string {
	bin, ok := cond.(*ast.BinaryExpr)
	if !ok || (bin.Op != "==" && bin.Op != "!=") {
		return ""
	}
	id, ok := bin.Left.(*ast.Identifier)
	if !ok {
		return ""
	}
	lit := canonicalKey(bin.Right)
	if lit == "" || !isLeafKey(lit) {
		return ""
	}
	return bin.Op + ":" + id.Name + ":" + lit
}

func (p *ConstraintElimination) rewriteCond(cond ast.Expression, facts map[string]bool, stats *Stats) ast.Expression {
	key := comparisonKey(cond)
	if key == "" {
		return cond
	}
	if facts[key] {
		stats.Transformed++
		return &ast.BoolLiteral{ExprMeta: exprMeta(cond), Value: true}
	}
	if facts["!"+key] {
		stats.Transformed++
		return &ast.BoolLiteral{ExprMeta: exprMeta(cond), Value: false}
	}
	return cond
}
