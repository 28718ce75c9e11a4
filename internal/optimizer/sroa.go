package optimizer

import "github.com/xyproto/tylink/internal/ast"

// SROA (scalar replacement of aggregates) splits a record-typed local whose
// address is never taken into one independent tracked value per field,
// named "$sroa_<var>_<field>". Field reads/writes become reads/writes of
// the corresponding scalar, which a later mem2reg/copy-propagation pass can
// then fold away entirely. Only record locals initialized from a RecordExpr
// literal (so the field set is known up front) are eligible.
type SROA struct{}

func NewSROA() *SROA { return &SROA{} }

func (p *SROA) Name() string { return "sroa" }

func (p *SROA) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *SROA) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
	switch n := st.(type) {
	case *ast.FuncDecl:
		if n.Body == nil {
			return n
		}
		out := *n
		out.Body = p.scalarize(n.Body, stats)
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

// candidate holds the field-name -> scalar-name mapping for one aggregate
// local that qualified for decomposition.
type sroaCandidate struct {
	fields map[string]string // field name -> synthesized scalar name
}

func (p *SROA) scalarize(body *ast.BlockStmt, stats *Stats) *ast.BlockStmt {
	candidates := map[string]sroaCandidate{}
	for _, s := range body.Statements {
		decl, ok := s.(*ast.VarDecl)
		if !ok {
			continue
		}
		rec, ok := decl.Value.(*ast.RecordExpr)
		if !ok {
			continue
		}
		if ast.IsAddressTaken(body.Statements, decl.Name) {
			continue
		}
		fields := map[string]string{}
		for _, fld := range rec.Fields {
			fields[fld.Name] = "$sroa_" + decl.Name + "_" + fld.Name
		}
		candidates[decl.Name] = sroaCandidate{fields: fields}
	}
	if len(candidates) == 0 {
		stats.Skipped += len(body.Statements)
		return body
	}

	var newStmts []ast.Statement
	for _, s := range body.Statements {
		if decl, ok := s.(*ast.VarDecl); ok {
			if cand, isCand := candidates[decl.Name]; isCand {
				rec := decl.Value.(*ast.RecordExpr)
				for _, fld := range rec.Fields {
					newStmts = append(newStmts, &ast.VarDecl{
						StmtMeta: decl.StmtMeta,
						Name:     cand.fields[fld.Name],
						Value:    p.rewriteExpr(fld.Value, candidates),
						Mutable:  true,
					})
					stats.Transformed++
				}
				continue
			}
		}
		newStmts = append(newStmts, p.rewriteStmt(s, candidates, stats))
	}
	return &ast.BlockStmt{StmtMeta: body.StmtMeta, Statements: newStmts}
}

func (p *SROA) rewriteStmt(s ast.Statement, candidates map[string]sroaCandidate, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.AssignStmt:
		if mem, ok := n.Target.(*ast.MemberExpr); ok {
			if id, ok := mem.Target.(*ast.Identifier); ok {
				if cand, isCand := candidates[id.Name]; isCand {
					if scalar, ok := cand.fields[mem.Field]; ok {
						stats.Transformed++
						return &ast.AssignStmt{
							StmtMeta: n.StmtMeta,
							Target:   &ast.Identifier{Name: scalar},
							Value:    p.rewriteExpr(n.Value, candidates),
						}
					}
				}
			}
		}
		return &ast.AssignStmt{StmtMeta: n.StmtMeta, Target: p.rewriteExpr(n.Target, candidates), Value: p.rewriteExpr(n.Value, candidates)}
	case *ast.ExprStmt:
		return &ast.ExprStmt{StmtMeta: n.StmtMeta, Expr: p.rewriteExpr(n.Expr, candidates)}
	case *ast.ReturnStmt:
		return &ast.ReturnStmt{StmtMeta: n.StmtMeta, Value: p.rewriteExpr(n.Value, candidates)}
	case *ast.VarDecl:
		c := *n
		c.Value = p.rewriteExpr(n.Value, candidates)
		return &c
	case *ast.BlockStmt:
		stmts := make([]ast.Statement, len(n.Statements))
		for i, inner := range n.Statements {
			stmts[i] = p.rewriteStmt(inner, candidates, stats)
		}
		return &ast.BlockStmt{StmtMeta: n.StmtMeta, Statements: stmts}
	case *ast.IfStmt:
		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifs[i] = ast.ElifClause{Cond: p.rewriteExpr(el.Cond, candidates), Body: p.rewriteStmt(el.Body, candidates, stats).(*ast.BlockStmt)}
		}
		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseBlk = p.rewriteStmt(n.Else, candidates, stats).(*ast.BlockStmt)
		}
		return &ast.IfStmt{
			StmtMeta: n.StmtMeta,
			Cond:     p.rewriteExpr(n.Cond, candidates),
			Then:     p.rewriteStmt(n.Then, candidates, stats).(*ast.BlockStmt),
			Elifs:    elifs,
			Else:     elseBlk,
		}
	case *ast.WhileStmt:
		return &ast.WhileStmt{
			StmtMeta: n.StmtMeta,
			Cond:     p.rewriteExpr(n.Cond, candidates),
			Body:     p.rewriteStmt(n.Body, candidates, stats).(*ast.BlockStmt),
			Label:    n.Label,
		}
	case *ast.ForInStmt:
		return &ast.ForInStmt{
			StmtMeta: n.StmtMeta,
			VarName:  n.VarName,
			Iterable: p.rewriteExpr(n.Iterable, candidates),
			Body:     p.rewriteStmt(n.Body, candidates, stats).(*ast.BlockStmt),
			Label:    n.Label,
		}
	case *ast.MatchStmt:
		cases := make([]ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			cases[i] = ast.MatchCase{Pattern: mc.Pattern, Body: p.rewriteStmt(mc.Body, candidates, stats).(*ast.BlockStmt)}
		}
		var def *ast.BlockStmt
		if n.Default != nil {
			def = p.rewriteStmt(n.Default, candidates, stats).(*ast.BlockStmt)
		}
		return &ast.MatchStmt{StmtMeta: n.StmtMeta, Subject: p.rewriteExpr(n.Subject, candidates), Cases: cases, Default: def}
	default:
		return ast.CloneStmt(s)
	}
}

func (p *SROA) rewriteExpr(e ast.Expression, candidates map[string]sroaCandidate) ast.Expression {
	if e == nil {
		return nil
	}
	if mem, ok := e.(*ast.MemberExpr); ok {
		if id, ok := mem.Target.(*ast.Identifier); ok {
			if cand, isCand := candidates[id.Name]; isCand {
				if scalar, ok := cand.fields[mem.Field]; ok {
					return &ast.Identifier{ExprMeta: mem.ExprMeta, Name: scalar}
				}
			}
		}
	}
	switch n := e.(type) {
	case *ast.BinaryExpr:
		return &ast.BinaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Left: p.rewriteExpr(n.Left, candidates), Right: p.rewriteExpr(n.Right, candidates)}
	case *ast.UnaryExpr:
		return &ast.UnaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Operand: p.rewriteExpr(n.Operand, candidates)}
	case *ast.TernaryExpr:
		return &ast.TernaryExpr{ExprMeta: n.ExprMeta, Cond: p.rewriteExpr(n.Cond, candidates), Then: p.rewriteExpr(n.Then, candidates), Else: p.rewriteExpr(n.Else, candidates)}
	case *ast.CallExpr:
		args := make([]ast.Expression, len(n.Args))
		for i, a := range n.Args {
			args[i] = p.rewriteExpr(a, candidates)
		}
		return &ast.CallExpr{ExprMeta: n.ExprMeta, Callee: p.rewriteExpr(n.Callee, candidates), Args: args}
	case *ast.MemberExpr:
		return &ast.MemberExpr{ExprMeta: n.ExprMeta, Target: p.rewriteExpr(n.Target, candidates), Field: n.Field}
	case *ast.IndexExpr:
		return &ast.IndexExpr{ExprMeta: n.ExprMeta, Target: p.rewriteExpr(n.Target, candidates), Index: p.rewriteExpr(n.Index, candidates)}
	case *ast.AssignExpr:
		return &ast.AssignExpr{ExprMeta: n.ExprMeta, Target: p.rewriteExpr(n.Target, candidates), Value: p.rewriteExpr(n.Value, candidates)}
	case *ast.CastExpr:
		return &ast.CastExpr{ExprMeta: n.ExprMeta, Value: p.rewriteExpr(n.Value, candidates), TargetType: n.TargetType}
	default:
		return ast.CloneExpr(e)
	}
}
