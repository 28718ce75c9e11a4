package ast

// WalkExpr visits e and every expression reachable from it in pre-order.
// visit is called once per node; if it returns false, that node's children
// are not visited (the walk still continues with siblings already queued).
func WalkExpr(e Expression, visit func(Expression) bool) {
	if e == nil || !visit(e) {
		return
	}
	switch n := e.(type) {
	case *BinaryExpr:
		WalkExpr(n.Left, visit)
		WalkExpr(n.Right, visit)
	case *UnaryExpr:
		WalkExpr(n.Operand, visit)
	case *TernaryExpr:
		WalkExpr(n.Cond, visit)
		WalkExpr(n.Then, visit)
		WalkExpr(n.Else, visit)
	case *CallExpr:
		WalkExpr(n.Callee, visit)
		for _, a := range n.Args {
			WalkExpr(a, visit)
		}
	case *MemberExpr:
		WalkExpr(n.Target, visit)
	case *IndexExpr:
		WalkExpr(n.Target, visit)
		WalkExpr(n.Index, visit)
	case *RangeExpr:
		WalkExpr(n.Start, visit)
		WalkExpr(n.End, visit)
	case *ListExpr:
		for _, el := range n.Elements {
			WalkExpr(el, visit)
		}
	case *RecordExpr:
		for _, fld := range n.Fields {
			WalkExpr(fld.Value, visit)
		}
	case *ListComprehension:
		WalkExpr(n.Element, visit)
		WalkExpr(n.Iterable, visit)
		WalkExpr(n.Cond, visit)
	case *AssignExpr:
		WalkExpr(n.Target, visit)
		WalkExpr(n.Value, visit)
	case *AddressOfExpr:
		WalkExpr(n.Operand, visit)
	case *DerefExpr:
		WalkExpr(n.Operand, visit)
	case *BorrowExpr:
		WalkExpr(n.Operand, visit)
	case *NewExpr:
		for _, a := range n.Args {
			WalkExpr(a, visit)
		}
	case *CastExpr:
		WalkExpr(n.Value, visit)
	case *AwaitExpr:
		WalkExpr(n.Operand, visit)
	case *SpawnExpr:
		if n.Call != nil {
			WalkExpr(n.Call, visit)
		}
	case *ChannelOpExpr:
		WalkExpr(n.Channel, visit)
		WalkExpr(n.Value, visit)
	case *AtomicOpExpr:
		WalkExpr(n.Target, visit)
		WalkExpr(n.Value, visit)
	case *InterpolatedStringExpr:
		for _, p := range n.Parts {
			WalkExpr(p, visit)
		}
	case *WalrusExpr:
		WalkExpr(n.Value, visit)
	}
}

// ContainsCallTo reports whether e contains, anywhere in its sub-tree
// (including nested inside call arguments, operators, and branches), a
// call whose callee is the identifier fnName. Used to reject tail-call
// candidates whose argument list itself recurses (the Ackermann case).
func ContainsCallTo(e Expression, fnName string) bool {
	found := false
	WalkExpr(e, func(n Expression) bool {
		if found {
			return false
		}
		if call, ok := n.(*CallExpr); ok {
			if id, ok := call.Callee.(*Identifier); ok && id.Name == fnName {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// IsAddressTaken reports whether name is ever referenced through
// AddressOfExpr or BorrowExpr anywhere in stmts. Used by mem2reg and SROA
// to disqualify locals whose address escapes.
func IsAddressTaken(stmts []Statement, name string) bool {
	taken := false
	var visitExpr func(Expression)
	visitExpr = func(e Expression) {
		if taken || e == nil {
			return
		}
		switch n := e.(type) {
		case *AddressOfExpr:
			if id, ok := n.Operand.(*Identifier); ok && id.Name == name {
				taken = true
				return
			}
		case *BorrowExpr:
			if id, ok := n.Operand.(*Identifier); ok && id.Name == name {
				taken = true
				return
			}
		}
		WalkExpr(e, func(sub Expression) bool {
			if inner, ok := sub.(*AddressOfExpr); ok {
				if id, ok := inner.Operand.(*Identifier); ok && id.Name == name {
					taken = true
					return false
				}
			}
			if inner, ok := sub.(*BorrowExpr); ok {
				if id, ok := inner.Operand.(*Identifier); ok && id.Name == name {
					taken = true
					return false
				}
			}
			return true
		})
	}
	var visitStmt func(Statement)
	visitStmt = func(s Statement) {
		if taken || s == nil {
			return
		}
		switch n := s.(type) {
		case *ExprStmt:
			visitExpr(n.Expr)
		case *ReturnStmt:
			visitExpr(n.Value)
		case *VarDecl:
			visitExpr(n.Value)
		case *AssignStmt:
			visitExpr(n.Target)
			visitExpr(n.Value)
		case *BlockStmt:
			for _, st := range n.Statements {
				visitStmt(st)
			}
		case *IfStmt:
			visitExpr(n.Cond)
			visitStmt(n.Then)
			for _, el := range n.Elifs {
				visitExpr(el.Cond)
				visitStmt(el.Body)
			}
			if n.Else != nil {
				visitStmt(n.Else)
			}
		case *WhileStmt:
			visitExpr(n.Cond)
			visitStmt(n.Body)
		case *ForInStmt:
			visitExpr(n.Iterable)
			visitStmt(n.Body)
		case *MatchStmt:
			visitExpr(n.Subject)
			for _, mc := range n.Cases {
				visitStmt(mc.Body)
			}
			if n.Default != nil {
				visitStmt(n.Default)
			}
		case *TryStmt:
			visitStmt(n.Body)
			if n.ElseBody != nil {
				visitStmt(n.ElseBody)
			}
		case *UnsafeStmt:
			visitStmt(n.Body)
		case *DeleteStmt:
			visitExpr(n.Target)
		}
	}
	for _, s := range stmts {
		visitStmt(s)
		if taken {
			break
		}
	}
	return taken
}
