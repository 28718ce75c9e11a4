package ast

import (
	"encoding/json"
	"fmt"
)

// This file implements a tagged-union JSON encoding for the node kinds
// exercised by this repository's own pipeline tests and the `opt` CLI
// subcommand: integer, float, bool and string literals, identifiers, the common operator/call/member/index
// expressions, and the statement forms the optimizer passes walk
// (declarations, assignment, control flow, function/module bodies).
// Extending it to cover the rest of the grammar is mechanical — add a case
// to encodeExpr/decodeExpr or encodeStmt/decodeStmt — but unexercised here.

type nodeEnvelope struct {
	Type string          `json:"type"`
	Pos  Location        `json:"pos"`
	Data json.RawMessage `json:"data,omitempty"`
}

type paramWire struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// EncodeProgram serializes a program to the wire format DecodeProgram
// reads back.
func EncodeProgram(p *Program) ([]byte, error) {
	stmts := make([]json.RawMessage, len(p.Statements))
	for i, s := range p.Statements {
		raw, err := encodeStmt(s)
		if err != nil {
			return nil, err
		}
		stmts[i] = raw
	}
	return json.Marshal(struct {
		Statements []json.RawMessage `json:"statements"`
	}{stmts})
}

// DecodeProgram reconstructs a program from EncodeProgram's output.
func DecodeProgram(data []byte) (*Program, error) {
	var wire struct {
		Statements []json.RawMessage `json:"statements"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	prog := &Program{Statements: make([]Statement, len(wire.Statements))}
	for i, raw := range wire.Statements {
		s, err := decodeStmt(raw)
		if err != nil {
			return nil, err
		}
		prog.Statements[i] = s
	}
	return prog, nil
}

func marshalEnvelope(typ string, pos Location, data any) (json.RawMessage, error) {
	d, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeEnvelope{Type: typ, Pos: pos, Data: d})
}

func encodeExpr(e Expression) (json.RawMessage, error) {
	if e == nil {
		return json.Marshal(nil)
	}
	switch n := e.(type) {
	case *IntLiteral:
		return marshalEnvelope("IntLiteral", n.Pos, struct {
			Value int64 `json:"value"`
		}{n.Value})
	case *FloatLiteral:
		return marshalEnvelope("FloatLiteral", n.Pos, struct {
			Value float64 `json:"value"`
		}{n.Value})
	case *BoolLiteral:
		return marshalEnvelope("BoolLiteral", n.Pos, struct {
			Value bool `json:"value"`
		}{n.Value})
	case *StringLiteral:
		return marshalEnvelope("StringLiteral", n.Pos, struct {
			Value string `json:"value"`
		}{n.Value})
	case *Identifier:
		return marshalEnvelope("Identifier", n.Pos, struct {
			Name string `json:"name"`
		}{n.Name})
	case *BinaryExpr:
		left, err := encodeExpr(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := encodeExpr(n.Right)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("BinaryExpr", n.Pos, struct {
			Op    string          `json:"op"`
			Left  json.RawMessage `json:"left"`
			Right json.RawMessage `json:"right"`
		}{n.Op, left, right})
	case *UnaryExpr:
		operand, err := encodeExpr(n.Operand)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("UnaryExpr", n.Pos, struct {
			Op      string          `json:"op"`
			Operand json.RawMessage `json:"operand"`
		}{n.Op, operand})
	case *CallExpr:
		callee, err := encodeExpr(n.Callee)
		if err != nil {
			return nil, err
		}
		args := make([]json.RawMessage, len(n.Args))
		for i, a := range n.Args {
			ar, err := encodeExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = ar
		}
		return marshalEnvelope("CallExpr", n.Pos, struct {
			Callee json.RawMessage   `json:"callee"`
			Args   []json.RawMessage `json:"args"`
		}{callee, args})
	case *MemberExpr:
		target, err := encodeExpr(n.Target)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("MemberExpr", n.Pos, struct {
			Target json.RawMessage `json:"target"`
			Field  string          `json:"field"`
		}{target, n.Field})
	case *IndexExpr:
		target, err := encodeExpr(n.Target)
		if err != nil {
			return nil, err
		}
		index, err := encodeExpr(n.Index)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("IndexExpr", n.Pos, struct {
			Target json.RawMessage `json:"target"`
			Index  json.RawMessage `json:"index"`
		}{target, index})
	default:
		return nil, fmt.Errorf("ast: encoding of %T is not supported", e)
	}
}

func decodeExpr(raw json.RawMessage) (Expression, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}
	var env nodeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	meta := ExprMeta{Pos: env.Pos}
	switch env.Type {
	case "IntLiteral":
		var d struct {
			Value int64 `json:"value"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		return &IntLiteral{ExprMeta: meta, Value: d.Value}, nil
	case "FloatLiteral":
		var d struct {
			Value float64 `json:"value"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		return &FloatLiteral{ExprMeta: meta, Value: d.Value}, nil
	case "BoolLiteral":
		var d struct {
			Value bool `json:"value"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		return &BoolLiteral{ExprMeta: meta, Value: d.Value}, nil
	case "StringLiteral":
		var d struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		return &StringLiteral{ExprMeta: meta, Value: d.Value}, nil
	case "Identifier":
		var d struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		return &Identifier{ExprMeta: meta, Name: d.Name}, nil
	case "BinaryExpr":
		var d struct {
			Op    string          `json:"op"`
			Left  json.RawMessage `json:"left"`
			Right json.RawMessage `json:"right"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		left, err := decodeExpr(d.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(d.Right)
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{ExprMeta: meta, Op: d.Op, Left: left, Right: right}, nil
	case "UnaryExpr":
		var d struct {
			Op      string          `json:"op"`
			Operand json.RawMessage `json:"operand"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		operand, err := decodeExpr(d.Operand)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{ExprMeta: meta, Op: d.Op, Operand: operand}, nil
	case "CallExpr":
		var d struct {
			Callee json.RawMessage   `json:"callee"`
			Args   []json.RawMessage `json:"args"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		callee, err := decodeExpr(d.Callee)
		if err != nil {
			return nil, err
		}
		args := make([]Expression, len(d.Args))
		for i, a := range d.Args {
			ae, err := decodeExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = ae
		}
		return &CallExpr{ExprMeta: meta, Callee: callee, Args: args}, nil
	case "MemberExpr":
		var d struct {
			Target json.RawMessage `json:"target"`
			Field  string          `json:"field"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		target, err := decodeExpr(d.Target)
		if err != nil {
			return nil, err
		}
		return &MemberExpr{ExprMeta: meta, Target: target, Field: d.Field}, nil
	case "IndexExpr":
		var d struct {
			Target json.RawMessage `json:"target"`
			Index  json.RawMessage `json:"index"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		target, err := decodeExpr(d.Target)
		if err != nil {
			return nil, err
		}
		index, err := decodeExpr(d.Index)
		if err != nil {
			return nil, err
		}
		return &IndexExpr{ExprMeta: meta, Target: target, Index: index}, nil
	default:
		return nil, fmt.Errorf("ast: decoding of node type %q is not supported", env.Type)
	}
}

func encodeBlock(b *BlockStmt) (json.RawMessage, error) {
	if b == nil {
		return json.Marshal(nil)
	}
	stmts := make([]json.RawMessage, len(b.Statements))
	for i, s := range b.Statements {
		r, err := encodeStmt(s)
		if err != nil {
			return nil, err
		}
		stmts[i] = r
	}
	data, err := json.Marshal(struct {
		Statements []json.RawMessage `json:"statements"`
	}{stmts})
	if err != nil {
		return nil, err
	}
	return json.Marshal(nodeEnvelope{Type: "BlockStmt", Pos: b.Pos, Data: data})
}

func decodeBlock(raw json.RawMessage) (*BlockStmt, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}
	var env nodeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Type != "BlockStmt" {
		return nil, fmt.Errorf("ast: expected BlockStmt, got %q", env.Type)
	}
	var d struct {
		Statements []json.RawMessage `json:"statements"`
	}
	if err := json.Unmarshal(env.Data, &d); err != nil {
		return nil, err
	}
	stmts := make([]Statement, len(d.Statements))
	for i, r := range d.Statements {
		s, err := decodeStmt(r)
		if err != nil {
			return nil, err
		}
		stmts[i] = s
	}
	return &BlockStmt{StmtMeta: StmtMeta{Pos: env.Pos}, Statements: stmts}, nil
}

func encodeStmt(s Statement) (json.RawMessage, error) {
	if s == nil {
		return json.Marshal(nil)
	}
	switch n := s.(type) {
	case *ExprStmt:
		e, err := encodeExpr(n.Expr)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("ExprStmt", n.Pos, struct {
			Expr json.RawMessage `json:"expr"`
		}{e})
	case *ReturnStmt:
		v, err := encodeExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("ReturnStmt", n.Pos, struct {
			Value json.RawMessage `json:"value"`
		}{v})
	case *VarDecl:
		v, err := encodeExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("VarDecl", n.Pos, struct {
			Name           string          `json:"name"`
			Value          json.RawMessage `json:"value"`
			Mutable        bool            `json:"mutable"`
			Const          bool            `json:"const"`
			TypeAnnotation string          `json:"type_annotation"`
		}{n.Name, v, n.Mutable, n.Const, n.TypeAnnotation})
	case *AssignStmt:
		t, err := encodeExpr(n.Target)
		if err != nil {
			return nil, err
		}
		v, err := encodeExpr(n.Value)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("AssignStmt", n.Pos, struct {
			Target json.RawMessage `json:"target"`
			Value  json.RawMessage `json:"value"`
		}{t, v})
	case *BlockStmt:
		return encodeBlock(n)
	case *IfStmt:
		cond, err := encodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		then, err := encodeBlock(n.Then)
		if err != nil {
			return nil, err
		}
		elifs := make([]json.RawMessage, len(n.Elifs))
		for i, el := range n.Elifs {
			ec, err := encodeExpr(el.Cond)
			if err != nil {
				return nil, err
			}
			eb, err := encodeBlock(el.Body)
			if err != nil {
				return nil, err
			}
			raw, err := json.Marshal(struct {
				Cond json.RawMessage `json:"cond"`
				Body json.RawMessage `json:"body"`
			}{ec, eb})
			if err != nil {
				return nil, err
			}
			elifs[i] = raw
		}
		var elseRaw json.RawMessage
		if n.Else != nil {
			elseRaw, err = encodeBlock(n.Else)
			if err != nil {
				return nil, err
			}
		}
		return marshalEnvelope("IfStmt", n.Pos, struct {
			Cond  json.RawMessage   `json:"cond"`
			Then  json.RawMessage   `json:"then"`
			Elifs []json.RawMessage `json:"elifs"`
			Else  json.RawMessage   `json:"else,omitempty"`
		}{cond, then, elifs, elseRaw})
	case *WhileStmt:
		cond, err := encodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}
		body, err := encodeBlock(n.Body)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("WhileStmt", n.Pos, struct {
			Cond  json.RawMessage `json:"cond"`
			Body  json.RawMessage `json:"body"`
			Label string          `json:"label"`
		}{cond, body, n.Label})
	case *ForInStmt:
		iter, err := encodeExpr(n.Iterable)
		if err != nil {
			return nil, err
		}
		body, err := encodeBlock(n.Body)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope("ForInStmt", n.Pos, struct {
			VarName  string          `json:"var_name"`
			Iterable json.RawMessage `json:"iterable"`
			Body     json.RawMessage `json:"body"`
			Label    string          `json:"label"`
		}{n.VarName, iter, body, n.Label})
	case *FuncDecl:
		var bodyRaw json.RawMessage
		var err error
		if n.Body != nil {
			bodyRaw, err = encodeBlock(n.Body)
			if err != nil {
				return nil, err
			}
		}
		params := make([]paramWire, len(n.Params))
		for i, p := range n.Params {
			params[i] = paramWire{p.Name, p.Type}
		}
		return marshalEnvelope("FuncDecl", n.Pos, struct {
			Name       string          `json:"name"`
			Params     []paramWire     `json:"params"`
			Body       json.RawMessage `json:"body,omitempty"`
			ReturnType string          `json:"return_type"`
			Extern     bool            `json:"extern"`
			Async      bool            `json:"async"`
			Comptime   bool            `json:"comptime"`
		}{n.Name, params, bodyRaw, n.ReturnType, n.Extern, n.Async, n.Comptime})
	case *ModuleDecl:
		body := make([]json.RawMessage, len(n.Body))
		for i, st := range n.Body {
			r, err := encodeStmt(st)
			if err != nil {
				return nil, err
			}
			body[i] = r
		}
		return marshalEnvelope("ModuleDecl", n.Pos, struct {
			Name string            `json:"name"`
			Body []json.RawMessage `json:"body"`
		}{n.Name, body})
	default:
		return nil, fmt.Errorf("ast: encoding of %T is not supported", s)
	}
}

func decodeStmt(raw json.RawMessage) (Statement, error) {
	if raw == nil || string(raw) == "null" {
		return nil, nil
	}
	var env nodeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	meta := StmtMeta{Pos: env.Pos}
	switch env.Type {
	case "ExprStmt":
		var d struct {
			Expr json.RawMessage `json:"expr"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		e, err := decodeExpr(d.Expr)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{StmtMeta: meta, Expr: e}, nil
	case "ReturnStmt":
		var d struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		v, err := decodeExpr(d.Value)
		if err != nil {
			return nil, err
		}
		return &ReturnStmt{StmtMeta: meta, Value: v}, nil
	case "VarDecl":
		var d struct {
			Name           string          `json:"name"`
			Value          json.RawMessage `json:"value"`
			Mutable        bool            `json:"mutable"`
			Const          bool            `json:"const"`
			TypeAnnotation string          `json:"type_annotation"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		v, err := decodeExpr(d.Value)
		if err != nil {
			return nil, err
		}
		return &VarDecl{StmtMeta: meta, Name: d.Name, Value: v, Mutable: d.Mutable, Const: d.Const, TypeAnnotation: d.TypeAnnotation}, nil
	case "AssignStmt":
		var d struct {
			Target json.RawMessage `json:"target"`
			Value  json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		t, err := decodeExpr(d.Target)
		if err != nil {
			return nil, err
		}
		v, err := decodeExpr(d.Value)
		if err != nil {
			return nil, err
		}
		return &AssignStmt{StmtMeta: meta, Target: t, Value: v}, nil
	case "BlockStmt":
		return decodeBlock(raw)
	case "IfStmt":
		var d struct {
			Cond  json.RawMessage   `json:"cond"`
			Then  json.RawMessage   `json:"then"`
			Elifs []json.RawMessage `json:"elifs"`
			Else  json.RawMessage   `json:"else,omitempty"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		cond, err := decodeExpr(d.Cond)
		if err != nil {
			return nil, err
		}
		then, err := decodeBlock(d.Then)
		if err != nil {
			return nil, err
		}
		elifs := make([]ElifClause, len(d.Elifs))
		for i, er := range d.Elifs {
			var ed struct {
				Cond json.RawMessage `json:"cond"`
				Body json.RawMessage `json:"body"`
			}
			if err := json.Unmarshal(er, &ed); err != nil {
				return nil, err
			}
			ec, err := decodeExpr(ed.Cond)
			if err != nil {
				return nil, err
			}
			eb, err := decodeBlock(ed.Body)
			if err != nil {
				return nil, err
			}
			elifs[i] = ElifClause{Cond: ec, Body: eb}
		}
		var elseBlk *BlockStmt
		if len(d.Else) > 0 {
			elseBlk, err = decodeBlock(d.Else)
			if err != nil {
				return nil, err
			}
		}
		return &IfStmt{StmtMeta: meta, Cond: cond, Then: then, Elifs: elifs, Else: elseBlk}, nil
	case "WhileStmt":
		var d struct {
			Cond  json.RawMessage `json:"cond"`
			Body  json.RawMessage `json:"body"`
			Label string          `json:"label"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		cond, err := decodeExpr(d.Cond)
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(d.Body)
		if err != nil {
			return nil, err
		}
		return &WhileStmt{StmtMeta: meta, Cond: cond, Body: body, Label: d.Label}, nil
	case "ForInStmt":
		var d struct {
			VarName  string          `json:"var_name"`
			Iterable json.RawMessage `json:"iterable"`
			Body     json.RawMessage `json:"body"`
			Label    string          `json:"label"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		iter, err := decodeExpr(d.Iterable)
		if err != nil {
			return nil, err
		}
		body, err := decodeBlock(d.Body)
		if err != nil {
			return nil, err
		}
		return &ForInStmt{StmtMeta: meta, VarName: d.VarName, Iterable: iter, Body: body, Label: d.Label}, nil
	case "FuncDecl":
		var d struct {
			Name       string          `json:"name"`
			Params     []paramWire     `json:"params"`
			Body       json.RawMessage `json:"body,omitempty"`
			ReturnType string          `json:"return_type"`
			Extern     bool            `json:"extern"`
			Async      bool            `json:"async"`
			Comptime   bool            `json:"comptime"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		var body *BlockStmt
		var err error
		if len(d.Body) > 0 {
			body, err = decodeBlock(d.Body)
			if err != nil {
				return nil, err
			}
		}
		params := make([]Param, len(d.Params))
		for i, p := range d.Params {
			params[i] = Param{Name: p.Name, Type: p.Type}
		}
		return &FuncDecl{StmtMeta: meta, Name: d.Name, Params: params, Body: body, ReturnType: d.ReturnType, Extern: d.Extern, Async: d.Async, Comptime: d.Comptime}, nil
	case "ModuleDecl":
		var d struct {
			Name string            `json:"name"`
			Body []json.RawMessage `json:"body"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, err
		}
		body := make([]Statement, len(d.Body))
		for i, r := range d.Body {
			s, err := decodeStmt(r)
			if err != nil {
				return nil, err
			}
			body[i] = s
		}
		return &ModuleDecl{StmtMeta: meta, Name: d.Name, Body: body}, nil
	default:
		return nil, fmt.Errorf("ast: decoding of node type %q is not supported", env.Type)
	}
}
