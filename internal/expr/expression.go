// Package expr evaluates Mapbox-style JSON expressions against feature attributes.
package expr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Expression is an immutable AST node: an operator and its positional operands.
type Expression struct {
	Op       Op
	Operands []Operand
}

// Operand is either a literal or a nested expression.
type Operand struct {
	Value Value
	Expr  *Expression
}

func Lit(v Value) Operand         { return Operand{Value: v} }
func Sub(e *Expression) Operand   { return Operand{Expr: e} }
func (o Operand) IsLiteral() bool { return o.Expr == nil }

// New builds an expression from Go values: Operand, *Expression, Value, or
// anything FromInterface accepts.
func New(op Op, operands ...any) (*Expression, error) {
	if op == OpInvalid || op >= opCount {
		return nil, &Error{Op: op.String(), Msg: "unknown operator"}
	}
	e := &Expression{Op: op, Operands: make([]Operand, len(operands))}
	for i, x := range operands {
		switch t := x.(type) {
		case Operand:
			e.Operands[i] = t
		case *Expression:
			e.Operands[i] = Sub(t)
		default:
			v, err := FromInterface(x)
			if err != nil {
				return nil, errorf(op, "operand %d: %v", i, err)
			}
			e.Operands[i] = Lit(v)
		}
	}
	return e, nil
}

// MustNew is New for statically known expressions.
func MustNew(op Op, operands ...any) *Expression {
	e, err := New(op, operands...)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Expression) Name() string { return e.Op.String() }

// MarshalJSON writes the Mapbox array form back out.
func (e *Expression) MarshalJSON() ([]byte, error) {
	out := make([]any, 0, len(e.Operands)+1)
	out = append(out, e.Op.String())
	for _, o := range e.Operands {
		if o.Expr != nil {
			out = append(out, o.Expr)
			continue
		}
		if o.Value.Kind() == KindArray && e.Op != OpLiteral {
			out = append(out, []any{OpLiteral.String(), o.Value})
			continue
		}
		out = append(out, o.Value)
	}
	return json.Marshal(out)
}

func (e *Expression) String() string {
	b, err := e.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("[%q ...]", e.Op.String())
	}
	return string(b)
}

// Parse decodes the JSON array form, e.g. ["+", 2, ["get", "height"]].
func Parse(data []byte) (*Expression, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode expression: %w", err)
	}
	return FromJSON(raw)
}

// FromJSON converts an already decoded JSON value into an expression.
func FromJSON(raw any) (*Expression, error) {
	arr, ok := raw.([]any)
	if !ok || len(arr) == 0 {
		return nil, &Error{Op: "<root>", Msg: fmt.Sprintf("expression must be a non-empty array, got %T", raw)}
	}
	name, ok := arr[0].(string)
	if !ok {
		return nil, &Error{Op: "<root>", Msg: fmt.Sprintf("operator must be a string, got %T", arr[0])}
	}
	op, ok := LookupOp(name)
	if !ok {
		return nil, &Error{Op: name, Msg: "unknown operator"}
	}
	e := &Expression{Op: op, Operands: make([]Operand, 0, len(arr)-1)}
	for i, x := range arr[1:] {
		o, err := parseOperand(op, x)
		if err != nil {
			return nil, fmt.Errorf("%s operand %d: %w", name, i, err)
		}
		e.Operands = append(e.Operands, o)
	}
	return e, nil
}

func parseOperand(parent Op, x any) (Operand, error) {
	// literal arguments are taken verbatim, even when they look like expressions
	if arr, ok := x.([]any); ok && len(arr) > 0 && parent != OpLiteral {
		if name, ok := arr[0].(string); ok {
			if _, known := LookupOp(name); known {
				sub, err := FromJSON(arr)
				if err != nil {
					return Operand{}, err
				}
				return Sub(sub), nil
			}
		}
	}
	v, err := FromInterface(x)
	if err != nil {
		return Operand{}, &Error{Op: parent.String(), Msg: err.Error()}
	}
	return Lit(v), nil
}
