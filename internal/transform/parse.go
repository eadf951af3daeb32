package transform

import (
	"encoding/json"
	"fmt"

	"github.com/stanstork/stratum/internal/value"
)

// wireExpr is the JSON wire shape one CompiledExpression node serializes
// to; plan.ComputedField.Expression and plan.ValidationRule.Expression
// both hold one of these, produced by the (out-of-scope) DSL compiler.
type wireExpr struct {
	Kind string `json:"kind"`

	Literal *value.Value `json:"literal,omitempty"`
	Ident   string       `json:"ident,omitempty"`
	Path    []string     `json:"path,omitempty"`

	Left  *wireExpr `json:"left,omitempty"`
	Right *wireExpr `json:"right,omitempty"`
	BinOp string    `json:"bin_op,omitempty"`

	Operand *wireExpr `json:"operand,omitempty"`
	UnOp    string    `json:"un_op,omitempty"`

	FuncName string      `json:"func_name,omitempty"`
	Args     []*wireExpr `json:"args,omitempty"`

	Branches []wireBranch `json:"branches,omitempty"`
	Else     *wireExpr    `json:"else,omitempty"`
}

type wireBranch struct {
	Condition *wireExpr `json:"condition"`
	Result    *wireExpr `json:"result"`
}

var exprKindNames = map[ExprKind]string{
	ExprLiteral:      "literal",
	ExprIdentifier:   "identifier",
	ExprDotPath:      "dot_path",
	ExprBinary:       "binary",
	ExprUnary:        "unary",
	ExprGrouped:      "grouped",
	ExprFunctionCall: "function_call",
	ExprWhen:         "when",
	ExprIsNull:       "is_null",
	ExprIsNotNull:    "is_not_null",
	ExprArray:        "array",
}

var exprKindByName = func() map[string]ExprKind {
	m := make(map[string]ExprKind, len(exprKindNames))
	for k, v := range exprKindNames {
		m[v] = k
	}
	return m
}()

// Serialize renders e into the JSON wire form stored in
// plan.ComputedField.Expression / plan.ValidationRule.Expression.
func Serialize(e Expr) (string, error) {
	w, err := toWire(e)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("transform: serialize expression: %w", err)
	}
	return string(data), nil
}

// ParseExpr decodes the JSON wire form back into an Expr tree. This is
// the parse function a kernel wires into Pipeline.Run and Producer.Config
// (spec.md §4.5's CompiledExpression).
func ParseExpr(data string) (Expr, error) {
	var w wireExpr
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return Expr{}, fmt.Errorf("transform: parse expression: %w", err)
	}
	return fromWire(&w)
}

func toWire(e Expr) (*wireExpr, error) {
	name, ok := exprKindNames[e.Kind]
	if !ok {
		return nil, fmt.Errorf("transform: serialize unknown expression kind %d", e.Kind)
	}
	w := &wireExpr{Kind: name}

	switch e.Kind {
	case ExprLiteral:
		lit := e.Literal
		w.Literal = &lit
	case ExprIdentifier:
		w.Ident = e.Ident
	case ExprDotPath:
		w.Path = e.Path
	case ExprBinary:
		l, err := toWire(e.Left)
		if err != nil {
			return nil, err
		}
		r, err := toWire(e.Right)
		if err != nil {
			return nil, err
		}
		w.Left, w.Right, w.BinOp = l, r, string(e.BinOp)
	case ExprUnary:
		op, err := toWire(e.Operand)
		if err != nil {
			return nil, err
		}
		w.Operand, w.UnOp = op, string(e.UnOp)
	case ExprGrouped, ExprIsNull, ExprIsNotNull:
		op, err := toWire(e.Operand)
		if err != nil {
			return nil, err
		}
		w.Operand = op
	case ExprFunctionCall:
		w.FuncName = e.FuncName
		args, err := toWireList(e.Args)
		if err != nil {
			return nil, err
		}
		w.Args = args
	case ExprArray:
		args, err := toWireList(e.Args)
		if err != nil {
			return nil, err
		}
		w.Args = args
	case ExprWhen:
		for _, b := range e.Branches {
			cond, err := toWire(b.Condition)
			if err != nil {
				return nil, err
			}
			res, err := toWire(b.Result)
			if err != nil {
				return nil, err
			}
			w.Branches = append(w.Branches, wireBranch{Condition: cond, Result: res})
		}
		if e.Else != nil {
			els, err := toWire(*e.Else)
			if err != nil {
				return nil, err
			}
			w.Else = els
		}
	}
	return w, nil
}

func toWireList(exprs []Expr) ([]*wireExpr, error) {
	out := make([]*wireExpr, len(exprs))
	for i, a := range exprs {
		w, err := toWire(a)
		if err != nil {
			return nil, err
		}
		out[i] = w
	}
	return out, nil
}

func fromWire(w *wireExpr) (Expr, error) {
	if w == nil {
		return Expr{}, fmt.Errorf("transform: parse expression: nil node")
	}
	kind, ok := exprKindByName[w.Kind]
	if !ok {
		return Expr{}, fmt.Errorf("transform: parse unknown expression kind %q", w.Kind)
	}

	switch kind {
	case ExprLiteral:
		if w.Literal == nil {
			return Literal(value.Null()), nil
		}
		return Literal(*w.Literal), nil
	case ExprIdentifier:
		return Identifier(w.Ident), nil
	case ExprDotPath:
		return DotPath(w.Path...), nil
	case ExprBinary:
		l, err := fromWire(w.Left)
		if err != nil {
			return Expr{}, err
		}
		r, err := fromWire(w.Right)
		if err != nil {
			return Expr{}, err
		}
		return Binary(BinaryOp(w.BinOp), l, r), nil
	case ExprUnary:
		op, err := fromWire(w.Operand)
		if err != nil {
			return Expr{}, err
		}
		return Unary(UnaryOp(w.UnOp), op), nil
	case ExprGrouped:
		op, err := fromWire(w.Operand)
		if err != nil {
			return Expr{}, err
		}
		return Grouped(op), nil
	case ExprIsNull:
		op, err := fromWire(w.Operand)
		if err != nil {
			return Expr{}, err
		}
		return IsNull(op), nil
	case ExprIsNotNull:
		op, err := fromWire(w.Operand)
		if err != nil {
			return Expr{}, err
		}
		return IsNotNull(op), nil
	case ExprFunctionCall:
		args, err := fromWireList(w.Args)
		if err != nil {
			return Expr{}, err
		}
		return Call(w.FuncName, args...), nil
	case ExprArray:
		args, err := fromWireList(w.Args)
		if err != nil {
			return Expr{}, err
		}
		return Array(args...), nil
	case ExprWhen:
		branches := make([]WhenBranch, len(w.Branches))
		for i, b := range w.Branches {
			cond, err := fromWire(b.Condition)
			if err != nil {
				return Expr{}, err
			}
			res, err := fromWire(b.Result)
			if err != nil {
				return Expr{}, err
			}
			branches[i] = WhenBranch{Condition: cond, Result: res}
		}
		var els *Expr
		if w.Else != nil {
			e, err := fromWire(w.Else)
			if err != nil {
				return Expr{}, err
			}
			els = &e
		}
		return When(branches, els), nil
	default:
		return Expr{}, fmt.Errorf("transform: parse unhandled expression kind %q", w.Kind)
	}
}

func fromWireList(ws []*wireExpr) ([]Expr, error) {
	out := make([]Expr, len(ws))
	for i, w := range ws {
		e, err := fromWire(w)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}
