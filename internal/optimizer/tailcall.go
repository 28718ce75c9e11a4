package optimizer

import "github.com/xyproto/tylink/internal/ast"

// TailCall rewrites self-recursive tail calls into a `while true` loop,
// turning unbounded stack growth into a bounded loop. Only direct,
// non-nested self-calls in true tail position qualify: a recursive call
// appearing inside an argument list (Ackermann's outer call wrapping its
// inner recursive argument) is not a tail call and disqualifies that
// occurrence.
type TailCall struct {
	tempCounter int
}

func NewTailCall() *TailCall { return &TailCall{} }

func (p *TailCall) Name() string { return "tail-call" }

func (p *TailCall) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *TailCall) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
	switch n := st.(type) {
	case *ast.FuncDecl:
		return p.optimizeFunc(n, stats)
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

func (p *TailCall) optimizeFunc(fn *ast.FuncDecl, stats *Stats) *ast.FuncDecl {
	if fn.Extern || fn.Async || fn.Comptime || fn.Body == nil || len(fn.Params) == 0 {
		return fn
	}

	tailCalls := findTailCalls(fn.Body, fn.Name)
	if len(tailCalls) == 0 {
		return fn
	}

	paramNames := make([]string, len(fn.Params))
	for i, prm := range fn.Params {
		paramNames[i] = prm.Name
	}

	newBody := p.transformBlock(fn.Body, fn.Name, paramNames, stats)

	whileTrue := &ast.WhileStmt{
		Cond: &ast.BoolLiteral{Value: true},
		Body: newBody,
	}
	outer := &ast.BlockStmt{Statements: []ast.Statement{
		&ast.VarDecl{Name: "$tco_result", Mutable: true},
		whileTrue,
		&ast.ReturnStmt{Value: &ast.Identifier{Name: "$tco_result"}},
	}}

	out := *fn
	out.Body = outer
	return &out
}

// findTailCalls counts, without mutating anything, how many return
// statements in stmt are direct tail calls to fnName. A return always
// terminates the function the instant it runs, so its tail position
// depends only on whether it is the last statement of its own immediate
// block, never on that block's position within an outer one — an `if`
// branch that returns early is just as much a tail position as the
// function's final statement. transformBlock/transformStmt rely on the
// same rule, so the two must keep agreeing on what counts as tail.
func findTailCalls(body *ast.BlockStmt, fnName string) []*ast.ReturnStmt {
	var found []*ast.ReturnStmt
	var walkBlock func(*ast.BlockStmt)
	var walkStmt func(ast.Statement, bool)
	walkBlock = func(b *ast.BlockStmt) {
		if b == nil {
			return
		}
		last := len(b.Statements) - 1
		for i, inner := range b.Statements {
			walkStmt(inner, i == last)
		}
	}
	walkStmt = func(s ast.Statement, tailPos bool) {
		switch n := s.(type) {
		case *ast.ReturnStmt:
			if tailPos && isTailCall(n, fnName) {
				found = append(found, n)
			}
		case *ast.BlockStmt:
			walkBlock(n)
		case *ast.IfStmt:
			walkBlock(n.Then)
			for _, el := range n.Elifs {
				walkBlock(el.Body)
			}
			if n.Else != nil {
				walkBlock(n.Else)
			}
		case *ast.MatchStmt:
			for _, mc := range n.Cases {
				walkBlock(mc.Body)
			}
			if n.Default != nil {
				walkBlock(n.Default)
			}
		}
	}
	walkBlock(body)
	return found
}

func isTailCall(ret *ast.ReturnStmt, fnName string) bool {
	call, ok := ret.Value.(*ast.CallExpr)
	if !ok {
		return false
	}
	id, ok := call.Callee.(*ast.Identifier)
	if !ok || id.Name != fnName {
		return false
	}
	for _, arg := range call.Args {
		if ast.ContainsCallTo(arg, fnName) {
			return false
		}
	}
	return true
}

func (p *TailCall) newTemp() string {
	p.tempCounter++
	return tempName(p.tempCounter)
}

func tempName(n int) string {
	const digits = "0123456789"
	if n < 10 {
		return "$tco_temp_" + string(digits[n])
	}
	// Fall back to a plain decimal rendering once the counter, which is
	// shared by every tail jump this pass builds, reaches ten.
	buf := []byte{}
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return "$tco_temp_" + string(buf)
}

func (p *TailCall) transformBlock(b *ast.BlockStmt, fnName string, params []string, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	last := len(b.Statements) - 1
	stmts := make([]ast.Statement, 0, len(b.Statements))
	for i, s := range b.Statements {
		stmts = append(stmts, p.transformStmt(s, fnName, params, i == last, stats))
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

func (p *TailCall) transformStmt(s ast.Statement, fnName string, params []string, tailPos bool, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.ReturnStmt:
		if tailPos && isTailCall(n, fnName) {
			call := n.Value.(*ast.CallExpr)
			stats.Transformed++
			return p.buildTailJump(call, params)
		}
		if n.Value != nil {
			// Non-tail return: stash into $tco_result and break out of
			// the synthesized loop instead of returning directly.
			return &ast.BlockStmt{Statements: []ast.Statement{
				&ast.AssignStmt{Target: &ast.Identifier{Name: "$tco_result"}, Value: ast.CloneExpr(n.Value)},
				&ast.BreakStmt{},
			}}
		}
		return &ast.BreakStmt{}
	case *ast.BlockStmt:
		return p.transformBlock(n, fnName, params, stats)
	case *ast.IfStmt:
		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifs[i] = ast.ElifClause{Cond: ast.CloneExpr(el.Cond), Body: p.transformBlock(el.Body, fnName, params, stats)}
		}
		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseBlk = p.transformBlock(n.Else, fnName, params, stats)
		}
		return &ast.IfStmt{
			StmtMeta: n.StmtMeta,
			Cond:     ast.CloneExpr(n.Cond),
			Then:     p.transformBlock(n.Then, fnName, params, stats),
			Elifs:    elifs,
			Else:     elseBlk,
		}
	case *ast.MatchStmt:
		cases := make([]ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			cases[i] = ast.MatchCase{Pattern: ast.CloneExpr(mc.Pattern), Body: p.transformBlock(mc.Body, fnName, params, stats)}
		}
		var def *ast.BlockStmt
		if n.Default != nil {
			def = p.transformBlock(n.Default, fnName, params, stats)
		}
		return &ast.MatchStmt{StmtMeta: n.StmtMeta, Subject: ast.CloneExpr(n.Subject), Cases: cases, Default: def}
	default:
		// While/for/var-decl/assign/break/continue/etc. carry no tail
		// position inside them; clone unchanged.
		return ast.CloneStmt(s)
	}
}

// buildTailJump lowers `return f(a0, ..., an)` into:
//
//	$tco_temp_k = a0
//	...
//	$tco_temp_(k+n) = an
//	p0 = $tco_temp_k
//	...
//	pn = $tco_temp_(k+n)
//	continue
//
// where k is the next value of the pass's temporary counter (which starts
// at 1 and keeps counting across every jump the pass builds), routing every argument through a fresh temporary first so that an
// argument referencing a parameter (e.g. `fac(n-1, n*acc)`) reads the old
// parameter values, not ones already overwritten by an earlier assignment
// in this same jump.
func (p *TailCall) buildTailJump(call *ast.CallExpr, params []string) *ast.BlockStmt {
	var stmts []ast.Statement
	temps := make([]string, len(call.Args))
	for i, arg := range call.Args {
		t := p.newTemp()
		temps[i] = t
		stmts = append(stmts, &ast.AssignStmt{
			Target: &ast.Identifier{Name: t},
			Value:  ast.CloneExpr(arg),
		})
	}
	for i := range call.Args {
		if i >= len(params) {
			break
		}
		stmts = append(stmts, &ast.AssignStmt{
			Target: &ast.Identifier{Name: params[i]},
			Value:  &ast.Identifier{Name: temps[i]},
		})
	}
	stmts = append(stmts, &ast.ContinueStmt{})
	return &ast.BlockStmt{Statements: stmts}
}
