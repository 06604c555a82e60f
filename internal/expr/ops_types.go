package expr

import (
	"strconv"
	"strings"
)

func (ev *Evaluator) evalTypes(e *Expression, ctx *Context) (Value, error) {
	switch e.Op {
	case OpLiteral:
		return ev.EvaluateOperand(e, 0, ctx)
	case OpArray:
		return ev.assert(e, ctx, KindArray)
	case OpBoolean:
		return ev.assert(e, ctx, KindBool)
	case OpNumber:
		return ev.assert(e, ctx, KindNumber)
	case OpObject:
		return ev.assert(e, ctx, KindObject)
	case OpString:
		return ev.assert(e, ctx, KindString)
	case OpToBoolean:
		v, err := ev.EvaluateOperand(e, 0, ctx)
		if err != nil {
			return Null, err
		}
		return Bool(v.Truthy()), nil
	case OpToString:
		v, err := ev.EvaluateOperand(e, 0, ctx)
		if err != nil {
			return Null, err
		}
		return String(v.String()), nil
	case OpTypeof:
		v, err := ev.EvaluateOperand(e, 0, ctx)
		if err != nil {
			return Null, err
		}
		return String(v.TypeName()), nil
	case OpToNumber:
		return ev.toNumber(e, ctx)
	case OpToColor:
		for i := range e.Operands {
			v, err := ev.EvaluateOperand(e, i, ctx)
			if err != nil {
				return Null, err
			}
			if c, ok := asColor(v); ok {
				return ColorValue(c), nil
			}
		}
		return Null, errorf(e.Op, "no operand could be converted to a color")
	}
	return Null, errorf(e.Op, "not a type operator")
}

// assert returns the first operand of the wanted kind.
func (ev *Evaluator) assert(e *Expression, ctx *Context, want Kind) (Value, error) {
	seen := make([]string, 0, len(e.Operands))
	for i := range e.Operands {
		v, err := ev.EvaluateOperand(e, i, ctx)
		if err != nil {
			return Null, err
		}
		if v.Kind() == want {
			return v, nil
		}
		seen = append(seen, v.Kind().String())
	}
	return Null, errorf(e.Op, "expected %s, got %s", want, strings.Join(seen, ", "))
}

func (ev *Evaluator) toNumber(e *Expression, ctx *Context) (Value, error) {
	for i := range e.Operands {
		v, err := ev.EvaluateOperand(e, i, ctx)
		if err != nil {
			return Null, err
		}
		switch v.Kind() {
		case KindNull:
			return Number(0), nil
		case KindNumber, KindBool:
			f, _ := v.Float()
			return Number(f), nil
		case KindString:
			s, _ := v.Str()
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return Number(f), nil
			}
		}
	}
	return Null, errorf(e.Op, "no operand could be converted to a number")
}
