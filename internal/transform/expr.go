// Package transform implements the ordered transformation pipeline from
// spec.md §4.5: entity rename, field rename, computed-field evaluation,
// column pruning, and validation, plus the CompiledExpression tree
// computed fields and validation rules compile to.
//
// Grounded on the teacher's internal/filterql expression evaluator
// (tree-walking boolean predicate evaluation over typed fields),
// generalized here from boolean-only filters to arbitrary-typed
// computed-field expressions.
package transform

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/stanstork/stratum/internal/value"
)

// ExprKind discriminates the CompiledExpression sum type (spec.md §4.5).
type ExprKind int

const (
	ExprLiteral ExprKind = iota
	ExprIdentifier
	ExprDotPath
	ExprBinary
	ExprUnary
	ExprGrouped
	ExprFunctionCall
	ExprWhen
	ExprIsNull
	ExprIsNotNull
	ExprArray
)

// BinaryOp is a computed-field binary operator.
type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpEq  BinaryOp = "=="
	OpNe  BinaryOp = "!="
	OpLt  BinaryOp = "<"
	OpLe  BinaryOp = "<="
	OpGt  BinaryOp = ">"
	OpGe  BinaryOp = ">="
	OpAnd BinaryOp = "&&"
	OpOr  BinaryOp = "||"
)

// UnaryOp is a computed-field unary operator.
type UnaryOp string

const (
	OpNeg UnaryOp = "-"
	OpNot UnaryOp = "!"
)

// WhenBranch is one `condition -> result` arm of a When expression.
type WhenBranch struct {
	Condition Expr
	Result    Expr
}

// Expr is one node of the CompiledExpression tree. Only the fields
// relevant to Kind are populated; this mirrors the source DSL's tagged
// union using a flat Go struct instead of an interface hierarchy, since
// the set of node kinds is closed and fixed (spec.md §9 redesign
// guidance: prefer tagged variants over dynamic dispatch for closed
// sets).
type Expr struct {
	Kind ExprKind

	Literal value.Value // ExprLiteral
	Ident   string      // ExprIdentifier

	Path []string // ExprDotPath: e.g. ["customer", "name"]

	Left, Right Expr     // ExprBinary
	BinOp       BinaryOp // ExprBinary

	Operand Expr    // ExprUnary, ExprGrouped, ExprIsNull, ExprIsNotNull
	UnOp    UnaryOp // ExprUnary

	FuncName string // ExprFunctionCall
	Args     []Expr // ExprFunctionCall, ExprArray

	Branches []WhenBranch // ExprWhen
	Else     *Expr        // ExprWhen
}

func Literal(v value.Value) Expr       { return Expr{Kind: ExprLiteral, Literal: v} }
func Identifier(name string) Expr      { return Expr{Kind: ExprIdentifier, Ident: name} }
func DotPath(path ...string) Expr      { return Expr{Kind: ExprDotPath, Path: path} }
func Binary(op BinaryOp, l, r Expr) Expr { return Expr{Kind: ExprBinary, BinOp: op, Left: l, Right: r} }
func Unary(op UnaryOp, operand Expr) Expr { return Expr{Kind: ExprUnary, UnOp: op, Operand: operand} }
func Grouped(operand Expr) Expr        { return Expr{Kind: ExprGrouped, Operand: operand} }
func Call(name string, args ...Expr) Expr { return Expr{Kind: ExprFunctionCall, FuncName: name, Args: args} }
func When(branches []WhenBranch, els *Expr) Expr {
	return Expr{Kind: ExprWhen, Branches: branches, Else: els}
}
func IsNull(operand Expr) Expr    { return Expr{Kind: ExprIsNull, Operand: operand} }
func IsNotNull(operand Expr) Expr { return Expr{Kind: ExprIsNotNull, Operand: operand} }
func Array(items ...Expr) Expr    { return Expr{Kind: ExprArray, Args: items} }

// Lookup resolves identifiers and dotted cross-entity paths against a
// row (and, for DotPath, a resolver for related rows). Evaluation never
// mutates the row.
type Lookup interface {
	// Field resolves a plain identifier against the current row.
	Field(name string) (value.FieldValue, bool)
	// Related resolves a cross-entity dotted path (spec.md §4.5
	// "cross-entity lookup"), e.g. ["customer", "name"].
	Related(path []string) (value.FieldValue, bool)
}

// Eval evaluates e against l, returning Null (not an error) when a
// referenced field is absent — absent fields surface as validation
// warnings at the caller's discretion, not evaluation failures, so one
// missing lookup doesn't abort the whole pipeline.
func Eval(e Expr, l Lookup) (value.Value, error) {
	switch e.Kind {
	case ExprLiteral:
		return e.Literal, nil
	case ExprIdentifier:
		fv, ok := l.Field(e.Ident)
		if !ok || fv.IsNull() {
			return value.Null(), nil
		}
		return *fv.Value, nil
	case ExprDotPath:
		fv, ok := l.Related(e.Path)
		if !ok || fv.IsNull() {
			return value.Null(), nil
		}
		return *fv.Value, nil
	case ExprGrouped:
		return Eval(e.Operand, l)
	case ExprUnary:
		return evalUnary(e, l)
	case ExprBinary:
		return evalBinary(e, l)
	case ExprIsNull:
		v, err := Eval(e.Operand, l)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(v.IsNull()), nil
	case ExprIsNotNull:
		v, err := Eval(e.Operand, l)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(!v.IsNull()), nil
	case ExprWhen:
		return evalWhen(e, l)
	case ExprFunctionCall:
		return evalCall(e, l)
	case ExprArray:
		items := make([]string, len(e.Args))
		for i, a := range e.Args {
			v, err := Eval(a, l)
			if err != nil {
				return value.Value{}, err
			}
			items[i] = v.Text()
		}
		return value.StringArray(items), nil
	default:
		return value.Value{}, fmt.Errorf("transform: unknown expression kind %d", e.Kind)
	}
}

func evalUnary(e Expr, l Lookup) (value.Value, error) {
	v, err := Eval(e.Operand, l)
	if err != nil {
		return value.Value{}, err
	}
	switch e.UnOp {
	case OpNeg:
		if i, ok := v.AsInt64(); ok {
			return value.Int64(-i), nil
		}
		if f, ok := v.AsFloat64(); ok {
			return value.Float64(-f), nil
		}
		return value.Null(), nil
	case OpNot:
		b, _ := v.AsBool()
		return value.Bool(!b), nil
	}
	return value.Value{}, fmt.Errorf("transform: unknown unary op %q", e.UnOp)
}

func evalWhen(e Expr, l Lookup) (value.Value, error) {
	for _, branch := range e.Branches {
		cond, err := Eval(branch.Condition, l)
		if err != nil {
			return value.Value{}, err
		}
		if b, ok := cond.AsBool(); ok && b {
			return Eval(branch.Result, l)
		}
	}
	if e.Else != nil {
		return Eval(*e.Else, l)
	}
	return value.Null(), nil
}

func evalCall(e Expr, l Lookup) (value.Value, error) {
	args := make([]value.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := Eval(a, l)
		if err != nil {
			return value.Value{}, err
		}
		args[i] = v
	}
	switch strings.ToLower(e.FuncName) {
	case "concat":
		var b strings.Builder
		for _, a := range args {
			if s, ok := a.AsString(); ok {
				b.WriteString(s)
				continue
			}
			b.WriteString(a.Text())
		}
		return value.String(b.String()), nil
	case "upper":
		if len(args) != 1 {
			return value.Value{}, fmt.Errorf("transform: upper() takes 1 arg")
		}
		s, _ := args[0].AsString()
		return value.String(strings.ToUpper(s)), nil
	case "lower":
		if len(args) != 1 {
			return value.Value{}, fmt.Errorf("transform: lower() takes 1 arg")
		}
		s, _ := args[0].AsString()
		return value.String(strings.ToLower(s)), nil
	case "coalesce":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return value.Null(), nil
	default:
		return value.Value{}, fmt.Errorf("transform: unknown function %q", e.FuncName)
	}
}

// resultKind is the numeric-promotion lattice from spec.md §4.5: int x
// int -> int; anything x float -> float; anything x decimal -> decimal;
// string + string -> string. Unsupported combinations return ("", false);
// evalBinary then yields Null, with no error and no warning recorded.
func resultKind(op BinaryOp, l, r value.Value) (string, bool) {
	lk, rk := l.VariantKind(), r.VariantKind()
	if op == OpAdd && lk == "string" && rk == "string" {
		return "string", true
	}
	if isComparison(op) {
		return "bool", true
	}
	if op == OpAnd || op == OpOr {
		return "bool", true
	}
	if lk == "decimal" || rk == "decimal" {
		if isNumericKind(lk) && isNumericKind(rk) {
			return "decimal", true
		}
		return "", false
	}
	if lk == "float" || rk == "float" {
		if isNumericKind(lk) && isNumericKind(rk) {
			return "float", true
		}
		return "", false
	}
	if isIntKind(lk) && isIntKind(rk) {
		return "int", true
	}
	return "", false
}

func isComparison(op BinaryOp) bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

func isNumericKind(k string) bool {
	return k == "int" || k == "uint" || k == "float" || k == "decimal"
}

func isIntKind(k string) bool { return k == "int" || k == "uint" }

func evalBinary(e Expr, l Lookup) (value.Value, error) {
	lv, err := Eval(e.Left, l)
	if err != nil {
		return value.Value{}, err
	}
	rv, err := Eval(e.Right, l)
	if err != nil {
		return value.Value{}, err
	}

	if isComparison(e.BinOp) {
		return evalComparison(e.BinOp, lv, rv), nil
	}
	if e.BinOp == OpAnd || e.BinOp == OpOr {
		lb, _ := lv.AsBool()
		rb, _ := rv.AsBool()
		if e.BinOp == OpAnd {
			return value.Bool(lb && rb), nil
		}
		return value.Bool(lb || rb), nil
	}

	kind, ok := resultKind(e.BinOp, lv, rv)
	if !ok {
		return value.Null(), nil // unsupported combination: Null; no warning is recorded
	}

	switch kind {
	case "string":
		ls, _ := lv.AsString()
		rs, _ := rv.AsString()
		return value.String(ls + rs), nil
	case "decimal":
		lr := toRat(lv)
		rr := toRat(rv)
		return value.Decimal(applyRat(e.BinOp, lr, rr)), nil
	case "float":
		lf, _ := lv.AsFloat64()
		rf, _ := rv.AsFloat64()
		return value.Float64(applyFloat(e.BinOp, lf, rf)), nil
	case "int":
		li, _ := lv.AsInt64()
		ri, _ := rv.AsInt64()
		return value.Int64(applyInt(e.BinOp, li, ri)), nil
	}
	return value.Null(), nil
}

func toRat(v value.Value) *big.Rat {
	if f, ok := v.AsFloat64(); ok {
		return new(big.Rat).SetFloat64(f)
	}
	return new(big.Rat)
}

func applyRat(op BinaryOp, l, r *big.Rat) *big.Rat {
	out := new(big.Rat)
	switch op {
	case OpAdd:
		return out.Add(l, r)
	case OpSub:
		return out.Sub(l, r)
	case OpMul:
		return out.Mul(l, r)
	case OpDiv:
		if r.Sign() == 0 {
			return out
		}
		return out.Quo(l, r)
	}
	return out
}

func applyFloat(op BinaryOp, l, r float64) float64 {
	switch op {
	case OpAdd:
		return l + r
	case OpSub:
		return l - r
	case OpMul:
		return l * r
	case OpDiv:
		if r == 0 {
			return 0
		}
		return l / r
	}
	return 0
}

func applyInt(op BinaryOp, l, r int64) int64 {
	switch op {
	case OpAdd:
		return l + r
	case OpSub:
		return l - r
	case OpMul:
		return l * r
	case OpDiv:
		if r == 0 {
			return 0
		}
		return l / r
	}
	return 0
}

func evalComparison(op BinaryOp, l, r value.Value) value.Value {
	var cmp int
	if lf, ok1 := l.AsFloat64(); ok1 {
		if rf, ok2 := r.AsFloat64(); ok2 {
			cmp = compareFloat(lf, rf)
			return value.Bool(applyCmp(op, cmp))
		}
	}
	ls, _ := l.AsString()
	rs, _ := r.AsString()
	cmp = strings.Compare(ls, rs)
	return value.Bool(applyCmp(op, cmp))
}

func compareFloat(l, r float64) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}

func applyCmp(op BinaryOp, cmp int) bool {
	switch op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}
