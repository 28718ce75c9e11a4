package optimizer

import "github.com/xyproto/tylink/internal/ast"

// MemcpyOpt finds a contiguous run of constant-index array stores within a
// single block and collapses it into one call: a run of stores of the same
// value (`a[k] = v; a[k+1] = v; a[k+2] = v`) becomes a single memset over
// the covered range, and a run of parallel constant-index copies
// (`a[k] = b[k]; a[k+1] = b[k+1]; ...`) becomes a single memcpy. Only runs
// of at least minStoresForMemset consecutive statements qualify — shorter
// runs are cheaper left as direct stores.
type MemcpyOpt struct {
	minStoresForMemset int
}

func NewMemcpyOpt() *MemcpyOpt { return &MemcpyOpt{minStoresForMemset: 3} }

func (p *MemcpyOpt) Name() string { return "memcpy-opt" }

func (p *MemcpyOpt) Run(prog *ast.Program) (*ast.Program, Stats) {
	stats := Stats{}
	out := &ast.Program{Statements: make([]ast.Statement, len(prog.Statements))}
	for i, st := range prog.Statements {
		out.Statements[i] = p.rewriteTopLevel(st, &stats)
	}
	return out, stats
}

func (p *MemcpyOpt) rewriteTopLevel(st ast.Statement, stats *Stats) ast.Statement {
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

// constIndexStore describes one `arr[k] = value` statement with a literal
// index, as needed to detect a contiguous run.
type constIndexStore struct {
	arrayKey string
	arrTgt   ast.Expression
	index    int64
	value    ast.Expression
}

func asConstIndexStore(s ast.Statement) (constIndexStore, bool) {
	assign, ok := s.(*ast.AssignStmt)
	if !ok {
		return constIndexStore{}, false
	}
	idx, ok := assign.Target.(*ast.IndexExpr)
	if !ok {
		return constIndexStore{}, false
	}
	lit, ok := idx.Index.(*ast.IntLiteral)
	if !ok {
		return constIndexStore{}, false
	}
	return constIndexStore{
		arrayKey: canonicalKey(idx.Target),
		arrTgt:   idx.Target,
		index:    lit.Value,
		value:    assign.Value,
	}, true
}

func (p *MemcpyOpt) rewriteBlock(b *ast.BlockStmt, stats *Stats) *ast.BlockStmt {
	if b == nil {
		return nil
	}
	var rewritten []ast.Statement
	for _, s := range b.Statements {
		rewritten = append(rewritten, p.rewriteStmt(s, stats))
	}

	var out []ast.Statement
	i := 0
	for i < len(rewritten) {
		store, ok := asConstIndexStore(rewritten[i])
		if !ok {
			out = append(out, rewritten[i])
			i++
			continue
		}
		run := []constIndexStore{store}
		j := i + 1
		for j < len(rewritten) {
			next, ok := asConstIndexStore(rewritten[j])
			if !ok || next.arrayKey != store.arrayKey || next.index != run[len(run)-1].index+1 {
				break
			}
			run = append(run, next)
			j++
		}
		if len(run) >= p.minStoresForMemset {
			if call, ok := p.collapse(run); ok {
				out = append(out, &ast.ExprStmt{Expr: call})
				stats.Transformed++
				i = j
				continue
			}
		}
		out = append(out, rewritten[i])
		i++
	}
	return &ast.BlockStmt{StmtMeta: b.StmtMeta, Statements: out}
}

func (p *MemcpyOpt) collapse(run []constIndexStore) (ast.Expression, bool) {
	first := run[0]
	sameValue := true
	for _, r := range run {
		if canonicalKey(r.value) != canonicalKey(first.value) || canonicalKey(r.value) == "" {
			sameValue = false
			break
		}
	}
	if sameValue {
		return &ast.CallExpr{
			Callee: &ast.Identifier{Name: "__builtin_memset"},
			Args: []ast.Expression{
				offsetIndex(first.arrTgt, first.index),
				ast.CloneExpr(first.value),
				&ast.IntLiteral{Value: int64(len(run))},
			},
		}, true
	}

	srcArray := ""
	var srcTgt ast.Expression
	parallel := true
	for k, r := range run {
		srcIdx, ok := r.value.(*ast.IndexExpr)
		if !ok {
			parallel = false
			break
		}
		lit, ok := srcIdx.Index.(*ast.IntLiteral)
		if !ok || lit.Value != first.index+int64(k) {
			parallel = false
			break
		}
		key := canonicalKey(srcIdx.Target)
		if k == 0 {
			srcArray = key
			srcTgt = srcIdx.Target
		} else if key != srcArray {
			parallel = false
			break
		}
	}
	if parallel && srcArray != first.arrayKey {
		return &ast.CallExpr{
			Callee: &ast.Identifier{Name: "__builtin_memcpy"},
			Args: []ast.Expression{
				offsetIndex(first.arrTgt, first.index),
				offsetIndex(srcTgt, first.index),
				&ast.IntLiteral{Value: int64(len(run))},
			},
		}, true
	}
	return nil, false
}

func offsetIndex(arr ast.Expression, index int64) ast.Expression {
	if index == 0 {
		return ast.CloneExpr(arr)
	}
	return &ast.IndexExpr{Target: ast.CloneExpr(arr), Index: &ast.IntLiteral{Value: index}}
}

func (p *MemcpyOpt) rewriteStmt(s ast.Statement, stats *Stats) ast.Statement {
	switch n := s.(type) {
	case *ast.BlockStmt:
		return p.rewriteBlock(n, stats)
	case *ast.IfStmt:
		elifs := make([]ast.ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifs[i] = ast.ElifClause{Cond: el.Cond, Body: p.rewriteBlock(el.Body, stats)}
		}
		var elseBlk *ast.BlockStmt
		if n.Else != nil {
			elseBlk = p.rewriteBlock(n.Else, stats)
		}
		return &ast.IfStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Then: p.rewriteBlock(n.Then, stats), Elifs: elifs, Else: elseBlk}
	case *ast.WhileStmt:
		return &ast.WhileStmt{StmtMeta: n.StmtMeta, Cond: n.Cond, Body: p.rewriteBlock(n.Body, stats), Label: n.Label}
	case *ast.ForInStmt:
		return &ast.ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: n.Iterable, Body: p.rewriteBlock(n.Body, stats), Label: n.Label}
	case *ast.MatchStmt:
		cases := make([]ast.MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			cases[i] = ast.MatchCase{Pattern: mc.Pattern, Body: p.rewriteBlock(mc.Body, stats)}
		}
		var def *ast.BlockStmt
		if n.Default != nil {
			def = p.rewriteBlock(n.Default, stats)
		}
		return &ast.MatchStmt{StmtMeta: n.StmtMeta, Subject: n.Subject, Cases: cases, Default: def}
	default:
		return s
	}
}
