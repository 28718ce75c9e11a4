package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xyproto/tylink/internal/ast"
)

// fac(n, acc) { if n == 0 { return acc } return fac(n-1, n*acc) }
func facDecl() *ast.FuncDecl {
	return &ast.FuncDecl{
		Name:   "fac",
		Params: []ast.Param{{Name: "n"}, {Name: "acc"}},
		Body: &ast.BlockStmt{Statements: []ast.Statement{
			&ast.IfStmt{
				Cond: &ast.BinaryExpr{Op: "==", Left: &ast.Identifier{Name: "n"}, Right: &ast.IntLiteral{Value: 0}},
				Then: &ast.BlockStmt{Statements: []ast.Statement{
					&ast.ReturnStmt{Value: &ast.Identifier{Name: "acc"}},
				}},
			},
			&ast.ReturnStmt{Value: &ast.CallExpr{
				Callee: &ast.Identifier{Name: "fac"},
				Args: []ast.Expression{
					&ast.BinaryExpr{Op: "-", Left: &ast.Identifier{Name: "n"}, Right: &ast.IntLiteral{Value: 1}},
					&ast.BinaryExpr{Op: "*", Left: &ast.Identifier{Name: "n"}, Right: &ast.Identifier{Name: "acc"}},
				},
			}},
		}},
	}
}

func TestTailCallTransformsFactorial(t *testing.T) {
	prog := &ast.Program{Statements: []ast.Statement{facDecl()}}
	pass := NewTailCall()
	out, stats := pass.Run(prog)
	require.Equal(t, 1, stats.Transformed)

	fn := out.Statements[0].(*ast.FuncDecl)
	require.Len(t, fn.Body.Statements, 3)
	require.IsType(t, &ast.VarDecl{}, fn.Body.Statements[0])
	require.Equal(t, "$tco_result", fn.Body.Statements[0].(*ast.VarDecl).Name)
	loop, ok := fn.Body.Statements[1].(*ast.WhileStmt)
	require.True(t, ok)
	cond, ok := loop.Cond.(*ast.BoolLiteral)
	require.True(t, ok)
	require.True(t, cond.Value)
	ret := fn.Body.Statements[2].(*ast.ReturnStmt)
	require.Equal(t, "$tco_result", ret.Value.(*ast.Identifier).Name)
}

// ackermann(m, n) { if m == 0 { return n+1 } if n == 0 { return ackermann(m-1, 1) }
//                    return ackermann(m-1, ackermann(m, n-1)) }
// The final return's outer call wraps a nested recursive call in its
// argument list, so it is not a tail call and must not be rewritten, even
// though it recurses on "ackermann" by name.
func TestTailCallRejectsAckermannNestedCall(t *testing.T) {
	body := &ast.BlockStmt{Statements: []ast.Statement{
		&ast.IfStmt{
			Cond: &ast.BinaryExpr{Op: "==", Left: &ast.Identifier{Name: "m"}, Right: &ast.IntLiteral{Value: 0}},
			Then: &ast.BlockStmt{Statements: []ast.Statement{
				&ast.ReturnStmt{Value: &ast.BinaryExpr{Op: "+", Left: &ast.Identifier{Name: "n"}, Right: &ast.IntLiteral{Value: 1}}},
			}},
		},
		&ast.IfStmt{
			Cond: &ast.BinaryExpr{Op: "==", Left: &ast.Identifier{Name: "n"}, Right: &ast.IntLiteral{Value: 0}},
			Then: &ast.BlockStmt{Statements: []ast.Statement{
				&ast.ReturnStmt{Value: &ast.CallExpr{
					Callee: &ast.Identifier{Name: "ackermann"},
					Args: []ast.Expression{
						&ast.BinaryExpr{Op: "-", Left: &ast.Identifier{Name: "m"}, Right: &ast.IntLiteral{Value: 1}},
						&ast.IntLiteral{Value: 1},
					},
				}},
			}},
		},
		&ast.ReturnStmt{Value: &ast.CallExpr{
			Callee: &ast.Identifier{Name: "ackermann"},
			Args: []ast.Expression{
				&ast.BinaryExpr{Op: "-", Left: &ast.Identifier{Name: "m"}, Right: &ast.IntLiteral{Value: 1}},
				&ast.CallExpr{
					Callee: &ast.Identifier{Name: "ackermann"},
					Args: []ast.Expression{
						&ast.Identifier{Name: "m"},
						&ast.BinaryExpr{Op: "-", Left: &ast.Identifier{Name: "n"}, Right: &ast.IntLiteral{Value: 1}},
					},
				},
			},
		}},
	}}
	fn := &ast.FuncDecl{Name: "ackermann", Params: []ast.Param{{Name: "m"}, {Name: "n"}}, Body: body}

	// One of the three returns (m==0 path) is a true tail call to
	// "ackermann"? No: return ackermann(m-1, 1) inside the n==0 branch IS a
	// true tail call (its argument list contains no recursive call), so
	// the function still qualifies for the loop rewrite; only the final
	// return's occurrence must be rejected as a tail position and instead
	// routed through the non-tail $tco_result/break path.
	prog := &ast.Program{Statements: []ast.Statement{fn}}
	out, stats := NewTailCall().Run(prog)
	require.GreaterOrEqual(t, stats.Transformed, 1)

	outFn := out.Statements[0].(*ast.FuncDecl)
	loop := outFn.Body.Statements[1].(*ast.WhileStmt)
	innerIf2 := loop.Body.Statements[1].(*ast.IfStmt)
	// The n==0 branch was rewritten into a tail jump (continue), not left
	// as a CallExpr return.
	require.IsType(t, &ast.BlockStmt{}, innerIf2.Then.Statements[0])

	lastStmt := loop.Body.Statements[2]
	stashBlock, ok := lastStmt.(*ast.BlockStmt)
	require.True(t, ok, "non-tail return must be lowered to a stash+break block")
	assign, ok := stashBlock.Statements[0].(*ast.AssignStmt)
	require.True(t, ok)
	require.Equal(t, "$tco_result", assign.Target.(*ast.Identifier).Name)
	require.IsType(t, &ast.CallExpr{}, assign.Value)
	require.IsType(t, &ast.BreakStmt{}, stashBlock.Statements[1])
}

func TestIsTailCallRejectsNestedArgumentCall(t *testing.T) {
	ret := &ast.ReturnStmt{Value: &ast.CallExpr{
		Callee: &ast.Identifier{Name: "f"},
		Args: []ast.Expression{
			&ast.CallExpr{Callee: &ast.Identifier{Name: "f"}, Args: []ast.Expression{&ast.IntLiteral{Value: 1}}},
		},
	}}
	require.False(t, isTailCall(ret, "f"))
}

func TestIsTailCallAcceptsDirectSelfCall(t *testing.T) {
	ret := &ast.ReturnStmt{Value: &ast.CallExpr{
		Callee: &ast.Identifier{Name: "f"},
		Args:   []ast.Expression{&ast.IntLiteral{Value: 1}},
	}}
	require.True(t, isTailCall(ret, "f"))
}

func TestTailCallSkipsNonRecursiveFunctions(t *testing.T) {
	fn := &ast.FuncDecl{
		Name:   "add",
		Params: []ast.Param{{Name: "a"}, {Name: "b"}},
		Body: &ast.BlockStmt{Statements: []ast.Statement{
			&ast.ReturnStmt{Value: &ast.BinaryExpr{Op: "+", Left: &ast.Identifier{Name: "a"}, Right: &ast.Identifier{Name: "b"}}},
		}},
	}
	prog := &ast.Program{Statements: []ast.Statement{fn}}
	out, stats := NewTailCall().Run(prog)
	require.Equal(t, 0, stats.Transformed)
	require.Same(t, fn, out.Statements[0])
}
