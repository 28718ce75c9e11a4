package ast

// CloneExpr deep-copies an expression tree. Nil in, nil out.
func CloneExpr(e Expression) Expression {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case *IntLiteral:
		c := *n
		return &c
	case *FloatLiteral:
		c := *n
		return &c
	case *BoolLiteral:
		c := *n
		return &c
	case *StringLiteral:
		c := *n
		return &c
	case *CharLiteral:
		c := *n
		return &c
	case *NilLiteral:
		c := *n
		return &c
	case *Identifier:
		c := *n
		return &c
	case *BinaryExpr:
		return &BinaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Left: CloneExpr(n.Left), Right: CloneExpr(n.Right)}
	case *UnaryExpr:
		return &UnaryExpr{ExprMeta: n.ExprMeta, Op: n.Op, Operand: CloneExpr(n.Operand)}
	case *TernaryExpr:
		return &TernaryExpr{ExprMeta: n.ExprMeta, Cond: CloneExpr(n.Cond), Then: CloneExpr(n.Then), Else: CloneExpr(n.Else)}
	case *CallExpr:
		args := make([]Expression, len(n.Args))
		for i, a := range n.Args {
			args[i] = CloneExpr(a)
		}
		return &CallExpr{ExprMeta: n.ExprMeta, Callee: CloneExpr(n.Callee), Args: args}
	case *MemberExpr:
		return &MemberExpr{ExprMeta: n.ExprMeta, Target: CloneExpr(n.Target), Field: n.Field}
	case *IndexExpr:
		return &IndexExpr{ExprMeta: n.ExprMeta, Target: CloneExpr(n.Target), Index: CloneExpr(n.Index)}
	case *RangeExpr:
		return &RangeExpr{ExprMeta: n.ExprMeta, Start: CloneExpr(n.Start), End: CloneExpr(n.End), Inclusive: n.Inclusive}
	case *LambdaExpr:
		params := append([]Param(nil), n.Params...)
		return &LambdaExpr{ExprMeta: n.ExprMeta, Params: params, Body: CloneStmt(n.Body)}
	case *ListExpr:
		elems := make([]Expression, len(n.Elements))
		for i, el := range n.Elements {
			elems[i] = CloneExpr(el)
		}
		return &ListExpr{ExprMeta: n.ExprMeta, Elements: elems}
	case *RecordExpr:
		fields := make([]RecordField, len(n.Fields))
		for i, fld := range n.Fields {
			fields[i] = RecordField{Name: fld.Name, Value: CloneExpr(fld.Value)}
		}
		return &RecordExpr{ExprMeta: n.ExprMeta, TypeName: n.TypeName, Fields: fields}
	case *ListComprehension:
		return &ListComprehension{
			ExprMeta: n.ExprMeta,
			Element:  CloneExpr(n.Element),
			VarName:  n.VarName,
			Iterable: CloneExpr(n.Iterable),
			Cond:     CloneExpr(n.Cond),
		}
	case *AssignExpr:
		return &AssignExpr{ExprMeta: n.ExprMeta, Target: CloneExpr(n.Target), Value: CloneExpr(n.Value)}
	case *AddressOfExpr:
		return &AddressOfExpr{ExprMeta: n.ExprMeta, Operand: CloneExpr(n.Operand)}
	case *DerefExpr:
		return &DerefExpr{ExprMeta: n.ExprMeta, Operand: CloneExpr(n.Operand)}
	case *BorrowExpr:
		return &BorrowExpr{ExprMeta: n.ExprMeta, Operand: CloneExpr(n.Operand), Mutable: n.Mutable}
	case *NewExpr:
		args := make([]Expression, len(n.Args))
		for i, a := range n.Args {
			args[i] = CloneExpr(a)
		}
		return &NewExpr{ExprMeta: n.ExprMeta, TypeName: n.TypeName, Args: args}
	case *CastExpr:
		return &CastExpr{ExprMeta: n.ExprMeta, Value: CloneExpr(n.Value), TargetType: n.TargetType}
	case *AwaitExpr:
		return &AwaitExpr{ExprMeta: n.ExprMeta, Operand: CloneExpr(n.Operand)}
	case *SpawnExpr:
		var call *CallExpr
		if n.Call != nil {
			call = CloneExpr(n.Call).(*CallExpr)
		}
		return &SpawnExpr{ExprMeta: n.ExprMeta, Call: call}
	case *ChannelOpExpr:
		return &ChannelOpExpr{ExprMeta: n.ExprMeta, Op: n.Op, Channel: CloneExpr(n.Channel), Value: CloneExpr(n.Value)}
	case *AtomicOpExpr:
		return &AtomicOpExpr{ExprMeta: n.ExprMeta, Op: n.Op, Target: CloneExpr(n.Target), Value: CloneExpr(n.Value)}
	case *InterpolatedStringExpr:
		parts := make([]Expression, len(n.Parts))
		for i, p := range n.Parts {
			parts[i] = CloneExpr(p)
		}
		return &InterpolatedStringExpr{ExprMeta: n.ExprMeta, Parts: parts}
	case *WalrusExpr:
		return &WalrusExpr{ExprMeta: n.ExprMeta, Name: n.Name, Value: CloneExpr(n.Value)}
	default:
		// Unknown expression variant: return as-is rather than drop it.
		return e
	}
}

// CloneStmt deep-copies a statement tree. Nil in, nil out.
func CloneStmt(s Statement) Statement {
	if s == nil {
		return nil
	}
	switch n := s.(type) {
	case *ExprStmt:
		return &ExprStmt{StmtMeta: n.StmtMeta, Expr: CloneExpr(n.Expr)}
	case *ReturnStmt:
		return &ReturnStmt{StmtMeta: n.StmtMeta, Value: CloneExpr(n.Value)}
	case *VarDecl:
		c := *n
		c.Value = CloneExpr(n.Value)
		return &c
	case *AssignStmt:
		return &AssignStmt{StmtMeta: n.StmtMeta, Target: CloneExpr(n.Target), Value: CloneExpr(n.Value)}
	case *BlockStmt:
		return CloneBlock(n)
	case *IfStmt:
		elifs := make([]ElifClause, len(n.Elifs))
		for i, el := range n.Elifs {
			elifs[i] = ElifClause{Cond: CloneExpr(el.Cond), Body: CloneBlock(el.Body)}
		}
		var elseBlk *BlockStmt
		if n.Else != nil {
			elseBlk = CloneBlock(n.Else)
		}
		return &IfStmt{StmtMeta: n.StmtMeta, Cond: CloneExpr(n.Cond), Then: CloneBlock(n.Then), Elifs: elifs, Else: elseBlk}
	case *WhileStmt:
		return &WhileStmt{StmtMeta: n.StmtMeta, Cond: CloneExpr(n.Cond), Body: CloneBlock(n.Body), Label: n.Label}
	case *ForInStmt:
		return &ForInStmt{StmtMeta: n.StmtMeta, VarName: n.VarName, Iterable: CloneExpr(n.Iterable), Body: CloneBlock(n.Body), Label: n.Label}
	case *BreakStmt:
		c := *n
		return &c
	case *ContinueStmt:
		c := *n
		return &c
	case *MatchStmt:
		cases := make([]MatchCase, len(n.Cases))
		for i, mc := range n.Cases {
			cases[i] = MatchCase{Pattern: CloneExpr(mc.Pattern), Body: CloneBlock(mc.Body)}
		}
		var def *BlockStmt
		if n.Default != nil {
			def = CloneBlock(n.Default)
		}
		return &MatchStmt{StmtMeta: n.StmtMeta, Subject: CloneExpr(n.Subject), Cases: cases, Default: def}
	case *TryStmt:
		var elseBlk *BlockStmt
		if n.ElseBody != nil {
			elseBlk = CloneBlock(n.ElseBody)
		}
		return &TryStmt{StmtMeta: n.StmtMeta, Body: CloneBlock(n.Body), ElseBody: elseBlk}
	case *UnsafeStmt:
		return &UnsafeStmt{StmtMeta: n.StmtMeta, Body: CloneBlock(n.Body)}
	case *DeleteStmt:
		return &DeleteStmt{StmtMeta: n.StmtMeta, Target: CloneExpr(n.Target)}
	case *DestructureDecl:
		c := *n
		c.Names = append([]string(nil), n.Names...)
		c.Value = CloneExpr(n.Value)
		return &c
	case *FuncDecl:
		c := *n
		c.Params = append([]Param(nil), n.Params...)
		c.Body = CloneBlock(n.Body)
		return &c
	case *ModuleDecl:
		body := make([]Statement, len(n.Body))
		for i, st := range n.Body {
			body[i] = CloneStmt(st)
		}
		return &ModuleDecl{StmtMeta: n.StmtMeta, Name: n.Name, Body: body}
	case *RecordDecl:
		c := *n
		c.Fields = append([]RecordDeclField(nil), n.Fields...)
		return &c
	default:
		return s
	}
}

// CloneBlock deep-copies a block; nil in, nil out.
func CloneBlock(b *BlockStmt) *BlockStmt {
	if b == nil {
		return nil
	}
	stmts := make([]Statement, len(b.Statements))
	for i, s := range b.Statements {
		stmts[i] = CloneStmt(s)
	}
	return &BlockStmt{StmtMeta: b.StmtMeta, Statements: stmts}
}

// CloneProgram deep-copies a whole program.
func CloneProgram(p *Program) *Program {
	if p == nil {
		return nil
	}
	stmts := make([]Statement, len(p.Statements))
	for i, s := range p.Statements {
		stmts[i] = CloneStmt(s)
	}
	return &Program{Statements: stmts}
}
