package expr

func (ev *Evaluator) evalDecision(e *Expression, ctx *Context) (Value, error) {
	switch e.Op {
	case OpNot:
		bs, err := ev.booleans(e, ctx)
		if err != nil {
			return Null, err
		}
		return Bool(!bs[0]), nil
	case OpAll, OpAny:
		bs, err := ev.booleans(e, ctx)
		if err != nil {
			return Null, err
		}
		want := e.Op == OpAny
		for _, b := range bs {
			if b == want {
				return Bool(want), nil
			}
		}
		return Bool(!want), nil
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		vals, err := ev.operands(e, ctx)
		if err != nil {
			return Null, err
		}
		return compare(e.Op, vals[0], vals[1])
	case OpCase:
		return ev.evalCase(e, ctx)
	case OpCoalesce:
		for i := range e.Operands {
			v, err := ev.EvaluateOperand(e, i, ctx)
			if err != nil {
				return Null, err
			}
			if !v.IsNull() {
				return v, nil
			}
		}
		return Null, nil
	case OpMatch:
		return ev.evalMatch(e, ctx)
	}
	return Null, errorf(e.Op, "not a decision operator")
}

// compare numbers by value, strings ordinally and booleans by equality.
// Null only takes part in (in)equality. Anything else is a type error.
func compare(op Op, a, b Value) (Value, error) {
	eqOnly := op == OpEq || op == OpNeq
	if eqOnly && (a.IsNull() || b.IsNull()) {
		same := a.IsNull() && b.IsNull()
		return Bool(same == (op == OpEq)), nil
	}
	if a.Kind() != b.Kind() {
		return Null, errorf(op, "cannot compare %s with %s", a.Kind(), b.Kind())
	}

	var c int
	switch a.Kind() {
	case KindNumber:
		x, _ := a.Number()
		y, _ := b.Number()
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		case x != y: // NaN
			return Bool(op == OpNeq), nil
		}
	case KindString:
		x, _ := a.Str()
		y, _ := b.Str()
		switch {
		case x < y:
			c = -1
		case x > y:
			c = 1
		}
	case KindBool, KindColor:
		if !eqOnly {
			return Null, errorf(op, "%s values can only be tested for equality", a.Kind())
		}
		if !a.Equal(b) {
			c = 1
		}
	default:
		return Null, errorf(op, "cannot compare %s values", a.Kind())
	}

	switch op {
	case OpEq:
		return Bool(c == 0), nil
	case OpNeq:
		return Bool(c != 0), nil
	case OpLt:
		return Bool(c < 0), nil
	case OpLte:
		return Bool(c <= 0), nil
	case OpGt:
		return Bool(c > 0), nil
	default:
		return Bool(c >= 0), nil
	}
}

// ["case", cond1, out1, cond2, out2, ..., fallback]
func (ev *Evaluator) evalCase(e *Expression, ctx *Context) (Value, error) {
	n := len(e.Operands)
	if n%2 == 0 {
		return Null, errorf(e.Op, "expects an odd number of operands (pairs plus fallback), got %d", n)
	}
	for i := 0; i+1 < n; i += 2 {
		cond, err := ev.EvaluateOperand(e, i, ctx)
		if err != nil {
			return Null, err
		}
		b, ok := cond.Bool()
		if !ok {
			return Null, errorf(e.Op, "condition %d must be a boolean, got %s", i/2, cond.Kind())
		}
		if b {
			return ev.EvaluateOperand(e, i+1, ctx)
		}
	}
	return ev.EvaluateOperand(e, n-1, ctx)
}

// ["match", input, label1, out1, ..., fallback]; a label may be an array of labels.
func (ev *Evaluator) evalMatch(e *Expression, ctx *Context) (Value, error) {
	n := len(e.Operands)
	if n%2 != 0 {
		return Null, errorf(e.Op, "expects input, label/output pairs and a fallback, got %d operands", n)
	}
	input, err := ev.EvaluateOperand(e, 0, ctx)
	if err != nil {
		return Null, err
	}
	for i := 1; i+1 < n; i += 2 {
		lab := e.Operands[i]
		if !lab.IsLiteral() {
			return Null, errorf(e.Op, "label %d must be a literal", i/2)
		}
		if matchLabel(input, lab.Value) {
			return ev.EvaluateOperand(e, i+1, ctx)
		}
	}
	return ev.EvaluateOperand(e, n-1, ctx)
}

func matchLabel(input, label Value) bool {
	if arr, ok := label.Array(); ok {
		for _, l := range arr {
			if input.Equal(l) {
				return true
			}
		}
		return false
	}
	return input.Equal(label)
}
