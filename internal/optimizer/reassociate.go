package optimizer

import "github.com/xyproto/tylink/internal/ast"

// Reassociate flattens chains of the same associative, commutative
// operator (+ or *) and regroups them so that every integer literal operand
// in the chain collapses into a single constant, moved to the end:
// `a + 1 + 2` becomes `a + 3`, and `2 * a * 3` becomes `a * 6`. A chain
// holding only one literal is left as written. Multiply-then-add shapes
// such as `a * b + c` are neither fused nor marked for an FMA instruction.
type Reassociate struct{}

func NewReassociate() *Reassociate { return &Reassociate{} }

func (p *Reassociate) Name() string { return "reassociate" }

func (p *Reassociate) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *Reassociate) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
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

func (p *Reassociate) rewriteBlock(b *ast.BlockStmt, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	stmts := make([]ast.Statement, len(b.Statements))
	for i, s := range b.Statements {
		stmts[i] = p.rewriteStmt(s, stats)
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func (p *Reassociate) rewriteStmt(s ast.Statement, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.VarDecl:
		c := *n
		c.Value = p.rewriteExpr(n.Value, stats)
		return &c
	case *ast.AssignStmt:
		return &ast.AssignStmt{StmtMeta: n.StmtMeta, Target: p.rewriteExpr(n.Target, stats), Value: p.rewriteExpr(n.Value, stats)}
	case *ast.ExprStmt:
		return &ast.ExprStmt{StmtMeta: n.StmtMeta, Expr: p.rewriteExpr(n.Expr, stats)}
	case *ast.ReturnStmt:
		return &ast.ReturnStmt{StmtMeta: n.StmtMeta, Value: p.rewriteExpr(n.Value, stats)}
	case *ast.BlockStmt:
		return p.rewriteBlock(n, stats)
	case *ast.IfStmt:
		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifs[i] = ast.ElifClause{Cond: p.rewriteExpr(el.Cond, stats), Body: p.rewriteBlock(el.Body, stats)}
		}
		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseBlk = p.rewriteBlock(n.Else, stats)
		}
		return &ast.IfStmt{StmtMeta: n.StmtMeta, Cond: p.rewriteExpr(n.Cond, stats), Then: p.rewriteBlock(n.Then, stats), Elifs: elifs, Else: elseBlk}
	case *ast.WhileStmt:
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: p.rewriteExpr(n.Cond, stats), Body: p.rewriteBlock(n.Body, stats), Label: n.Label}
	case *ast.ForInStmt:
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: p.rewriteExpr(n.Iterable, stats), Body: p.rewriteBlock(n.Body, stats), Label: n.Label}
	case *ast.MatchStmt:
		cases := make([]ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			cases[i] = ast.MatchCase{Pattern: mc.Pattern, Body: p.rewriteBlock(mc.Body, stats)}
		}
		var def *ast.BlockStmt
		if n.Default != nil {
			def = p.rewriteBlock(n.Default, stats)
		}
		return &ast.MatchStmt{StmtMeta: n.StmtMeta, Subject: p.rewriteExpr(n.Subject, stats), Cases: cases, Default: def}
	default:
		return ast.CloneStmt(s)
	}
}

func (p *Reassociate) rewriteExpr(e ast.Expression, stats *Stats) ast.Expression {
	if e == nil {
		return nil
	}
	bin, ok := e.(*ast.BinaryExpr)
	if !ok {
		switch n := e.(type) {
		case *ast.UnaryExpr:
			return &ast.UnaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Operand: p.rewriteExpr(n.Operand, stats)}
		case *ast.TernaryExpr:
			return &ast.TernaryExpr{ExprMeta: n.ExprMeta, Cond: p.rewriteExpr(n.Cond, stats), Then: p.rewriteExpr(n.Then, stats), Else: p.rewriteExpr(n.Else, stats)}
		case *ast.CallExpr:
			args := make([]ast.Expression, len(n.Args))
			for i, a := range n.Args {
				args[i] = p.rewriteExpr(a, stats)
			}
			return &ast.CallExpr{ExprMeta: n.ExprMeta, Callee: p.rewriteExpr(n.Callee, stats), Args: args}
		case *ast.MemberExpr:
			return &ast.MemberExpr{ExprMeta: n.ExprMeta, Target: p.rewriteExpr(n.Target, stats), Field: n.Field}
		case *ast.IndexExpr:
			return &ast.IndexExpr{ExprMeta: n.ExprMeta, Target: p.rewriteExpr(n.Target, stats), Index: p.rewriteExpr(n.Index, stats)}
		default:
			return ast.CloneExpr(e)
		}
	}

	if bin.Op != "+" && bin.Op != "*" {
		return &ast.BinaryExpr{ExprMeta: bin.ExprMeta, Op: bin.Op, Left: p.rewriteExpr(bin.Left, stats), Right: p.rewriteExpr(bin.Right, stats)}
	}

	var leaves []ast.Expression
	flatten(bin, bin.Op, &leaves)
	for i, l := range leaves {
		leaves[i] = p.rewriteExpr(l, stats)
	}

	var vars []ast.Expression
	var constSum int64
	var constProd int64 = 1
	sawIntConst := false
	for _, l := range leaves {
		if lit, ok := l.(*ast.IntLiteral); ok {
			sawIntConst = true
			if bin.Op == "+" {
				constSum += lit.Value
			} else {
				constProd *= lit.Value
			}
			continue
		}
		vars = append(vars, l)
	}
	if !sawIntConst || len(vars)+1 == len(leaves) {
		// Nothing to fold (at most one constant was already in place).
		return rebuild(bin.ExprMeta, bin.Op, leaves)
	}

	stats.Transformed++
	var foldedConst ast.Expression
	if bin.Op == "+" {
		foldedConst = &ast.IntLiteral{Value: constSum}
	} else {
		foldedConst = &ast.IntLiteral{Value: constProd}
	}
	vars = append(vars, foldedConst)
	return rebuild(bin.ExprMeta, bin.Op, vars)
}

// flatten collects every leaf of a left-or-right-nested chain of the same
// operator op into leaves, left to right.
func flatten(e ast.Expression, op string, leaves *[]ast.Expression) {
	if bin, ok := e.(*ast.BinaryExpr); ok && bin.Op == op {
		flatten(bin.Left, op, leaves)
		flatten(bin.Right, op, leaves)
		return
	}
	*leaves = append(*leaves, e)
}

func rebuild(meta ast.ExprMeta, op string, operands []ast.Expression) ast.Expression {
	if len(operands) == 0 {
		if op == "+" {
			return &ast.IntLiteral{ExprMeta: meta, Value: 0}
		}
		return &ast.IntLiteral{ExprMeta: meta, Value: 1}
	}
	result := operands[0]
	for _, o := range operands[1:] {
		result = &ast.BinaryExpr{Op: op, Left: result, Right: o}
	}
	if be, ok := result.(*ast.BinaryExpr); ok {
		be.ExprMeta = meta
	}
	return result
}
