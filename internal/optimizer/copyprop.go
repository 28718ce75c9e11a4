package optimizer

import "github.com/xyproto/tylink/internal/ast"

// CopyPropagation replaces `y = x; ...use of y...` with uses of x directly,
// wherever x is itself a bare identifier (not a general expression — that
// is mem2reg's job) and neither x nor y is reassigned between the copy and
// the use. Runs after mem2reg/SROA so it mostly cleans up the temporaries
// those passes introduce.
type CopyPropagation struct{}

func NewCopyPropagation() *CopyPropagation { return &CopyPropagation{} }

func (p *CopyPropagation) Name() string { return "copy-propagation" }

func (p *CopyPropagation) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *CopyPropagation) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
	switch n := st.(type) {
	case *ast.FuncDecl:
		if n.Body == nil {
			return n
		}
		out := *n
		copies := map[string]string{}
		out.Body = p.propagateBlock(n.Body, copies, stats)
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

// resolve follows the copies chain to its root, protecting against cycles.
func resolve(name string, copies map[string]string) string {
	seen := map[string]bool{}
	for {
		src, ok := copies[name]
		if !ok || seen[name] {
			return name
		}
		seen[name] = true
		name = src
	}
}

func (p *CopyPropagation) propagateBlock(b *ast.BlockStmt, copies map[string]string, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	local := cloneCopies(copies)
	stmts := make([]ast.Statement, 0, len(b.Statements))
	for _, s := range b.Statements {
		stmts = append(stmts, p.propagateStmt(s, local, stats))
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func cloneCopies(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// invalidate drops any copy entry that names or is named by target, since
// it is no longer sound to substitute through it.
func invalidate(copies map[string]string, target string) {
	delete(copies, target)
	for k, v := range copies {
		if v == target {
			delete(copies, k)
		}
	}
}

func (p *CopyPropagation) propagateStmt(s ast.Statement, copies map[string]string, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.VarDecl:
		newValue := p.substitute(n.Value, copies)
		invalidate(copies, n.Name)
		if id, ok := n.Value.(*ast.Identifier); ok && n.Mutable {
			copies[n.Name] = resolve(id.Name, copies)
		}
		c := *n
		c.Value = newValue
		return &c

	case *ast.AssignStmt:
		newValue := p.substitute(n.Value, copies)
		newTarget := p.substitute(n.Target, copies)
		if id, ok := n.Target.(*ast.Identifier); ok {
			invalidate(copies, id.Name)
			if src, ok := n.Value.(*ast.Identifier); ok {
				copies[id.Name] = resolve(src.Name, copies)
				stats.Transformed++
			}
		}
		return &ast.AssignStmt{StmtMeta: n.StmtMeta, Target: newTarget, Value: newValue}

	case *ast.ExprStmt:
		return &ast.ExprStmt{StmtMeta: n.StmtMeta, Expr: p.substitute(n.Expr, copies)}

	case *ast.ReturnStmt:
		return &ast.ReturnStmt{StmtMeta: n.StmtMeta, Value: p.substitute(n.Value, copies)}

	case *ast.BlockStmt:
		return p.propagateBlock(n, copies, stats)

	case *ast.IfStmt:
		newCond := p.substitute(n.Cond, copies)
		newThen := p.propagateBlock(n.Then, copies, stats)
		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifs[i] = ast.ElifClause{Cond: p.substitute(el.Cond, copies), Body: p.propagateBlock(el.Body, copies, stats)}
		}
		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseBlk = p.propagateBlock(n.Else, copies, stats)
		}
		for name := range assignedNames([]ast.Statement{n}) {
			invalidate(copies, name)
		}
		return &ast.IfStmt{StmtMeta: n.StmtMeta, Cond: newCond, Then: newThen, Elifs: elifs, Else: elseBlk}

	case *ast.WhileStmt:
		for name := range assignedNames(n.Body.Statements) {
			invalidate(copies, name)
		}
		newCond := p.substitute(n.Cond, copies)
		newBody := p.propagateBlock(n.Body, copies, stats)
		for name := range assignedNames(n.Body.Statements) {
			invalidate(copies, name)
		}
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: newCond, Body: newBody, Label: n.Label}

	case *ast.ForInStmt:
		invalidate(copies, n.VarName)
		for name := range assignedNames(n.Body.Statements) {
			invalidate(copies, name)
		}
		newIterable := p.substitute(n.Iterable, copies)
		newBody := p.propagateBlock(n.Body, copies, stats)
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: newIterable, Body: newBody, Label: n.Label}

	case *ast.MatchStmt:
		newSubject := p.substitute(n.Subject, copies)
		cases := make([]ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			cases[i] = ast.MatchCase{Pattern: mc.Pattern, Body: p.propagateBlock(mc.Body, copies, stats)}
		}
		var def *ast.BlockStmt
		if n.Default != nil {
			def = p.propagateBlock(n.Default, copies, stats)
		}
		for name := range assignedNames([]ast.Statement{n}) {
			invalidate(copies, name)
		}
		return &ast.MatchStmt{StmtMeta: n.StmtMeta, Subject: newSubject, Cases: cases, Default: def}

	default:
		return ast.CloneStmt(s)
	}
}

func (p *CopyPropagation) substitute(e ast.Expression, copies map[string]string) ast.Expression {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *ast.Identifier:
		return &ast.Identifier{ExprMeta: n.ExprMeta, Name: resolve(n.Name, copies)}
	case *ast.BinaryExpr:
		return &ast.BinaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Left: p.substitute(n.Left, copies), Right: p.substitute(n.Right, copies)}
	case *ast.UnaryExpr:
		return &ast.UnaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Operand: p.substitute(n.Operand, copies)}
	case *ast.TernaryExpr:
		return &ast.TernaryExpr{ExprMeta: n.ExprMeta, Cond: p.substitute(n.Cond, copies), Then: p.substitute(n.Then, copies), Else: p.substitute(n.Else, copies)}
	case *ast.CallExpr:
		args := make([]ast.Expression, len(n.Args))
		for i, a := range n.Args {
			args[i] = p.substitute(a, copies)
		}
		return &ast.CallExpr{ExprMeta: n.ExprMeta, Callee: p.substitute(n.Callee, copies), Args: args}
	case *ast.MemberExpr:
		return &ast.MemberExpr{ExprMeta: n.ExprMeta, Target: p.substitute(n.Target, copies), Field: n.Field}
	case *ast.IndexExpr:
		return &ast.IndexExpr{ExprMeta: n.ExprMeta, Target: p.substitute(n.Target, copies), Index: p.substitute(n.Index, copies)}
	case *ast.AssignExpr:
		return &ast.AssignExpr{ExprMeta: n.ExprMeta, Target: p.substitute(n.Target, copies), Value: p.substitute(n.Value, copies)}
	case *ast.CastExpr:
		return &ast.CastExpr{ExprMeta: n.ExprMeta, Value: p.substitute(n.Value, copies), TargetType: n.TargetType}
	default:
		return ast.CloneExpr(e)
	}
}
