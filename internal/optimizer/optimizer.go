// Package optimizer implements the AST-level optimization pipeline: a
// sequence of independent passes, each walking a typed ast.Program and
// returning a transformed one. Passes never error — an unsafe transform is
// always a silent skip, tracked in that pass's Stats.
package optimizer

import "github.com/xyproto/tylink/internal/ast"

// Stats summarizes one pass's run: how many sites it rewrote and how many
// candidate sites it examined but left untouched because a precondition
// failed.
type Stats struct {
	Transformed int
	Skipped     int
}

// Pass is implemented by every optimizer pass. Run must not mutate prog in
// place when prog itself is reused by the caller after the call; passes in
// this package return freshly cloned sub-trees wherever they rewrite.
type Pass interface {
	Name() string
	Run(prog *ast.Program) (*ast.Program, Stats)
}

// DefaultPipeline is the tested pass ordering callers should default to.
func DefaultPipeline() []Pass {
	return []Pass{
		NewMem2Reg(),
		NewSROA(),
		NewCopyPropagation(),
		NewGVN(),
		NewReassociate(),
		NewBDCE(),
		NewConstraintElimination(),
		NewCorrelatedValuePropagation(),
		NewDeadStoreElimination(),
		NewLoopSimplify(),
		NewLoopRotation(),
		NewLoopUnswitch(),
		NewLoopPeeling(),
		NewLoopIdiom(),
		NewLoopDeletion(),
		NewTailCall(),
		NewMemcpyOpt(),
	}
}

// Run executes passes in order over prog, threading the transformed
// program from one pass to the next, and returns the final program along
// with every pass's stats keyed by pass name.
func Run(prog *ast.Program, passes []Pass) (*ast.Program, map[string]Stats) {
	results := make(map[string]Stats, len(passes))
	cur := prog
	for _, p := range passes {
		next, stats := p.Run(cur)
		results[p.Name()] = stats
		cur = next
	}
	return cur, results
}
