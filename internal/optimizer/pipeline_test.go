package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xyproto/tylink/internal/ast"
)

// let p = Point{x:3, y:4}; return p.x + p.y
// SROA splits p into two scalars, mem2reg substitutes their literal
// values, and reassociate folds the resulting constant sum to 7.
func TestSROAMem2RegReassociateComposite(t *testing.T) {
	fn := &ast.FuncDecl{
		Name: "sumPoint",
		Body: &ast.BlockStmt{Statements: []ast.Statement{
			&ast.VarDecl{
				Name: "p",
				Value: &ast.RecordExpr{
					TypeName: "Point",
					Fields: []ast.RecordField{
						{Name: "x", Value: &ast.IntLiteral{Value: 3}},
						{Name: "y", Value: &ast.IntLiteral{Value: 4}},
					},
				},
			},
			&ast.ReturnStmt{Value: &ast.BinaryExpr{
				Op:    "+",
				Left:  &ast.MemberExpr{Target: &ast.Identifier{Name: "p"}, Field: "x"},
				Right: &ast.MemberExpr{Target: &ast.Identifier{Name: "p"}, Field: "y"},
			}},
		}},
	}
	prog := &ast.Program{Statements: []ast.Statement{fn}}

	passes := []Pass{NewSROA(), NewMem2Reg(), NewReassociate()}
	out, _ := Run(prog, passes)

	outFn := out.Statements[0].(*ast.FuncDecl)
	ret := outFn.Body.Statements[len(outFn.Body.Statements)-1].(*ast.ReturnStmt)
	lit, ok := ret.Value.(*ast.IntLiteral)
	require.True(t, ok, "expected return value folded to a single literal, got %T", ret.Value)
	require.Equal(t, int64(7), lit.Value)
}

func TestGVNDeduplicatesRepeatedComputation(t *testing.T) {
	fn := &ast.FuncDecl{
		Name: "twice",
		Body: &ast.BlockStmt{Statements: []ast.Statement{
			&ast.VarDecl{Name: "a", Value: &ast.BinaryExpr{Op: "+", Left: &ast.Identifier{Name: "x"}, Right: &ast.Identifier{Name: "y"}}},
			&ast.VarDecl{Name: "b", Value: &ast.BinaryExpr{Op: "+", Left: &ast.Identifier{Name: "x"}, Right: &ast.Identifier{Name: "y"}}},
			&ast.ReturnStmt{Value: &ast.BinaryExpr{Op: "+", Left: &ast.Identifier{Name: "a"}, Right: &ast.Identifier{Name: "b"}}},
		}},
	}
	prog := &ast.Program{Statements: []ast.Statement{fn}}
	out, stats := NewGVN().Run(prog)
	require.Equal(t, 1, stats.Transformed)

	outFn := out.Statements[0].(*ast.FuncDecl)
	bDecl := outFn.Body.Statements[1].(*ast.VarDecl)
	id, ok := bDecl.Value.(*ast.Identifier)
	require.True(t, ok, "second computation should be rewritten to reuse the first's binding")
	require.Equal(t, "a", id.Name)
}
