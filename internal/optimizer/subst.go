package optimizer

import "github.com/xyproto/tylink/internal/ast"

// substituteExpr rewrites every read of a tracked identifier with a fresh
// clone of its current value, recursing into the expression kinds most
// passes in this package care about. Kinds without an explicit case are
// cloned unchanged rather than walked further.
func substituteExpr(e ast.Expression, env map[string]ast.Expression) ast.Expression {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *ast.Identifier:
		if v, ok := env[n.Name]; ok {
			return ast.CloneExpr(v)
		}
		return &ast.Identifier{ExprMeta: n.ExprMeta, Name: n.Name}
	case *ast.BinaryExpr:
		return &ast.BinaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Left: substituteExpr(n.Left, env), Right: substituteExpr(n.Right, env)}
	case *ast.UnaryExpr:
		return &ast.UnaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Operand: substituteExpr(n.Operand, env)}
	case *ast.TernaryExpr:
		return &ast.TernaryExpr{ExprMeta: n.ExprMeta, Cond: substituteExpr(n.Cond, env), Then: substituteExpr(n.Then, env), Else: substituteExpr(n.Else, env)}
	case *ast.CallExpr:
		args := make([]ast.Expression, len(n.Args))
		for i, a := range n.Args {
			args[i] = substituteExpr(a, env)
		}
		return &ast.CallExpr{ExprMeta: n.ExprMeta, Callee: substituteExpr(n.Callee, env), Args: args}
	case *ast.MemberExpr:
		return &ast.MemberExpr{ExprMeta: n.ExprMeta, Target: substituteExpr(n.Target, env), Field: n.Field}
	case *ast.IndexExpr:
		return &ast.IndexExpr{ExprMeta: n.ExprMeta, Target: substituteExpr(n.Target, env), Index: substituteExpr(n.Index, env)}
	case *ast.AssignExpr:
		return &ast.AssignExpr{ExprMeta: n.ExprMeta, Target: substituteExpr(n.Target, env), Value: substituteExpr(n.Value, env)}
	case *ast.CastExpr:
		return &ast.CastExpr{ExprMeta: n.ExprMeta, Value: substituteExpr(n.Value, env), TargetType: n.TargetType}
	default:
		return ast.CloneExpr(e)
	}
}

// isSimpleScalarInit reports whether value's shape is one mem2reg is
// willing to track: anything other than a record literal, which SROA
// handles instead.
func isSimpleScalarInit(value ast.Expression) bool {
	if value == nil {
		return true
	}
	_, isRecord := value.(*ast.RecordExpr)
	return !isRecord
}

// assignedNames collects every name written by a VarDecl, AssignStmt (to a
// plain identifier), or DestructureDecl anywhere within stmts, including
// inside nested control-flow. Used by mem2reg and dead-store elimination
// to conservatively invalidate state at loop headers and branch joins.
func assignedNames(stmts []ast.Statement) map[string]bool {
	names := make(map[string]bool)
	var visit func(ast.Statement)
	visit = func(s ast.Statement) {
		switch n := s.(type) {
		case *ast.VarDecl:
			names[n.Name] = true
		case *ast.AssignStmt:
			if id, ok := n.Target.(*ast.Identifier); ok {
				names[id.Name] = true
			}
		case *ast.DestructureDecl:
			for _, nm := range n.Names {
				names[nm] = true
			}
		case *ast.BlockStmt:
			for _, inner := range n.Statements {
				visit(inner)
			}
		case *ast.IfStmt:
			visit(n.Then)
			for _, el := range n.Elifs {
				visit(el.Body)
			}
			if n.Else != nil {
				visit(n.Else)
			}
		case *ast.WhileStmt:
			visit(n.Body)
		case *ast.ForInStmt:
			names[n.VarName] = true
			visit(n.Body)
		case *ast.MatchStmt:
			for _, mc := range n.Cases {
				visit(mc.Body)
			}
			if n.Default != nil {
				visit(n.Default)
			}
		case *ast.TryStmt:
			visit(n.Body)
			if n.ElseBody != nil {
				visit(n.ElseBody)
			}
		case *ast.UnsafeStmt:
			visit(n.Body)
		}
	}
	for _, s := range stmts {
		visit(s)
	}
	return names
}
