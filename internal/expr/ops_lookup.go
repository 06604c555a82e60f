package expr

import (
	"math"
	"strings"
	"unicode/utf8"
)

func (ev *Evaluator) evalLookup(e *Expression, ctx *Context) (Value, error) {
	switch e.Op {
	case OpGet, OpHas:
		return ev.lookup(e, ctx)
	case OpAt:
		return ev.at(e, ctx)
	case OpIn:
		return ev.in(e, ctx)
	case OpLength:
		v, err := ev.EvaluateOperand(e, 0, ctx)
		if err != nil {
			return Null, err
		}
		switch v.Kind() {
		case KindString:
			s, _ := v.Str()
			return Number(float64(utf8.RuneCountInString(s))), nil
		case KindArray:
			arr, _ := v.Array()
			return Number(float64(len(arr))), nil
		}
		return Null, errorf(e.Op, "expected a string or array, got %s", v.Kind())
	case OpConcat:
		vals, err := ev.operands(e, ctx)
		if err != nil {
			return Null, err
		}
		var b strings.Builder
		for _, v := range vals {
			b.WriteString(v.String())
		}
		return String(b.String()), nil
	case OpDowncase, OpUpcase:
		s, err := ev.str(e, 0, ctx)
		if err != nil {
			return Null, err
		}
		if e.Op == OpDowncase {
			return String(strings.ToLower(s)), nil
		}
		return String(strings.ToUpper(s)), nil
	}
	return Null, errorf(e.Op, "not a lookup operator")
}

// lookup implements get and has. With two operands the second must be an
// object; with one, the attribute is read from the context feature.
func (ev *Evaluator) lookup(e *Expression, ctx *Context) (Value, error) {
	key, err := ev.str(e, 0, ctx)
	if err != nil {
		return Null, err
	}
	has := e.Op == OpHas

	if len(e.Operands) == 2 {
		v, err := ev.EvaluateOperand(e, 1, ctx)
		if err != nil {
			return Null, err
		}
		obj, ok := v.Object()
		if !ok {
			return Null, errorf(e.Op, "operand 1 must be an object, got %s", v.Kind())
		}
		got, found := obj[key]
		if has {
			return Bool(found), nil
		}
		return got, nil
	}

	if ctx == nil || ctx.Feature == nil {
		return Null, errorf(e.Op, "no feature in evaluation context")
	}
	raw, found := ctx.Feature.Attribute(key)
	if has {
		return Bool(found), nil
	}
	if !found {
		return Null, nil
	}
	v, err := FromInterface(raw)
	if err != nil {
		return Null, errorf(e.Op, "attribute %q: %v", key, err)
	}
	return v, nil
}

func (ev *Evaluator) at(e *Expression, ctx *Context) (Value, error) {
	iv, err := ev.EvaluateOperand(e, 0, ctx)
	if err != nil {
		return Null, err
	}
	idx, ok := iv.Number()
	if !ok || idx != math.Trunc(idx) {
		return Null, errorf(e.Op, "index must be an integer, got %s", describe(iv))
	}
	av, err := ev.EvaluateOperand(e, 1, ctx)
	if err != nil {
		return Null, err
	}
	arr, ok := av.Array()
	if !ok {
		return Null, errorf(e.Op, "operand 1 must be an array, got %s", av.Kind())
	}
	if idx < 0 || int(idx) >= len(arr) {
		return Null, errorf(e.Op, "index %d out of bounds [0, %d)", int(idx), len(arr))
	}
	return arr[int(idx)], nil
}

func (ev *Evaluator) in(e *Expression, ctx *Context) (Value, error) {
	needle, err := ev.EvaluateOperand(e, 0, ctx)
	if err != nil {
		return Null, err
	}
	hay, err := ev.EvaluateOperand(e, 1, ctx)
	if err != nil {
		return Null, err
	}
	switch hay.Kind() {
	case KindString:
		s, _ := hay.Str()
		n, ok := needle.Str()
		if !ok {
			return Null, errorf(e.Op, "needle must be a string when searching a string, got %s", needle.Kind())
		}
		return Bool(strings.Contains(s, n)), nil
	case KindArray:
		arr, _ := hay.Array()
		for _, v := range arr {
			if v.Equal(needle) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	}
	return Null, errorf(e.Op, "haystack must be a string or array, got %s", hay.Kind())
}
