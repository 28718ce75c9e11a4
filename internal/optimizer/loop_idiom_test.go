package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xyproto/tylink/internal/ast"
)

func memsetLoop() *ast.ForInStmt {
	return &ast.ForInStmt{
		VarName:  "i",
		Iterable: &ast.RangeExpr{Start: &ast.IntLiteral{Value: 0}, End: &ast.IntLiteral{Value: 10}},
		Body: &ast.BlockStmt{Statements: []ast.Statement{
			&ast.AssignStmt{
				Target: &ast.IndexExpr{Target: &ast.Identifier{Name: "a"}, Index: &ast.Identifier{Name: "i"}},
				Value:  &ast.IntLiteral{Value: 0},
			},
		}},
	}
}

func TestLoopIdiomRecognizesMemset(t *testing.T) {
	fn := &ast.FuncDecl{Name: "fill", Body: &ast.BlockStmt{Statements: []ast.Statement{memsetLoop()}}}
	prog := &ast.Program{Statements: []ast.Statement{fn}}
	out, stats := NewLoopIdiom().Run(prog)
	require.Equal(t, 1, stats.Transformed)

	outFn := out.Statements[0].(*ast.FuncDecl)
	es, ok := outFn.Body.Statements[0].(*ast.ExprStmt)
	require.True(t, ok)
	call, ok := es.Expr.(*ast.CallExpr)
	require.True(t, ok)
	require.Equal(t, "__builtin_memset", call.Callee.(*ast.Identifier).Name)
	require.Equal(t, "a", call.Args[0].(*ast.Identifier).Name)
	require.Equal(t, int64(0), call.Args[1].(*ast.IntLiteral).Value)
	require.Equal(t, int64(10), call.Args[2].(*ast.IntLiteral).Value)
}

func TestLoopIdiomRejectsSelfCopy(t *testing.T) {
	loop := &ast.ForInStmt{
		VarName:  "i",
		Iterable: &ast.RangeExpr{Start: &ast.IntLiteral{Value: 0}, End: &ast.IntLiteral{Value: 10}},
		Body: &ast.BlockStmt{Statements: []ast.Statement{
			&ast.AssignStmt{
				Target: &ast.IndexExpr{Target: &ast.Identifier{Name: "a"}, Index: &ast.Identifier{Name: "i"}},
				Value:  &ast.IndexExpr{Target: &ast.Identifier{Name: "a"}, Index: &ast.Identifier{Name: "i"}},
			},
		}},
	}
	fn := &ast.FuncDecl{Name: "noop", Body: &ast.BlockStmt{Statements: []ast.Statement{loop}}}
	prog := &ast.Program{Statements: []ast.Statement{fn}}
	out, stats := NewLoopIdiom().Run(prog)
	require.Equal(t, 0, stats.Transformed)
	require.IsType(t, &ast.ForInStmt{}, out.Statements[0].(*ast.FuncDecl).Body.Statements[0])
}

func TestLoopIdiomRecognizesMemcpy(t *testing.T) {
	loop := &ast.ForInStmt{
		VarName:  "i",
		Iterable: &ast.RangeExpr{Start: &ast.IntLiteral{Value: 0}, End: &ast.IntLiteral{Value: 10}},
		Body: &ast.BlockStmt{Statements: []ast.Statement{
			&ast.AssignStmt{
				Target: &ast.IndexExpr{Target: &ast.Identifier{Name: "a"}, Index: &ast.Identifier{Name: "i"}},
				Value:  &ast.IndexExpr{Target: &ast.Identifier{Name: "b"}, Index: &ast.Identifier{Name: "i"}},
			},
		}},
	}
	fn := &ast.FuncDecl{Name: "copy", Body: &ast.BlockStmt{Statements: []ast.Statement{loop}}}
	prog := &ast.Program{Statements: []ast.Statement{fn}}
	out, stats := NewLoopIdiom().Run(prog)
	require.Equal(t, 1, stats.Transformed)
	call := out.Statements[0].(*ast.FuncDecl).Body.Statements[0].(*ast.ExprStmt).Expr.(*ast.CallExpr)
	require.Equal(t, "__builtin_memcpy", call.Callee.(*ast.Identifier).Name)
}
