package expr

// Feature is the attribute source an expression reads through get/has.
type Feature interface {
	Attribute(name string) (any, bool)
}

// Attributes adapts a plain map to Feature.
type Attributes map[string]any

func (a Attributes) Attribute(name string) (any, bool) {
	v, ok := a[name]
	return v, ok
}

// Context is the per-evaluation environment.
type Context struct {
	Feature Feature
}

func NewContext(f Feature) *Context { return &Context{Feature: f} }

// Evaluator is stateless; the zero value is ready to use.
type Evaluator struct{}

var defaultEvaluator Evaluator

// Evaluate runs e against ctx with the package evaluator.
func Evaluate(e *Expression, ctx *Context) (Value, error) {
	return defaultEvaluator.Evaluate(e, ctx)
}

func (ev *Evaluator) Evaluate(e *Expression, ctx *Context) (Value, error) {
	if e == nil {
		return Null, &Error{Op: "<root>", Msg: "nil expression"}
	}
	if e.Op == OpInvalid || e.Op >= opCount {
		return Null, &Error{Op: e.Op.String(), Msg: "unknown operator"}
	}
	info := opTable[e.Op]
	n := len(e.Operands)
	if n < info.min || (info.max != variadic && n > info.max) {
		return Null, errorf(e.Op, "%s, got %d", arityText(info), n)
	}
	switch {
	case e.Op <= OpRandom:
		return ev.evalMath(e, ctx)
	case e.Op <= OpMatch:
		return ev.evalDecision(e, ctx)
	case e.Op <= OpTypeof:
		return ev.evalTypes(e, ctx)
	case e.Op <= OpToHSLA:
		return ev.evalColor(e, ctx)
	default:
		return ev.evalLookup(e, ctx)
	}
}

// EvaluateOperand resolves operand i: a literal as-is, or the nested
// expression's result.
func (ev *Evaluator) EvaluateOperand(e *Expression, i int, ctx *Context) (Value, error) {
	if i < 0 || i >= len(e.Operands) {
		return Null, errorf(e.Op, "operand %d out of range (have %d)", i, len(e.Operands))
	}
	o := e.Operands[i]
	if o.Expr == nil {
		return o.Value, nil
	}
	return ev.Evaluate(o.Expr, ctx)
}

func arityText(info opInfo) string {
	switch {
	case info.max == variadic:
		return "expects at least " + itoa(info.min) + " operands"
	case info.min == info.max:
		return "expects exactly " + itoa(info.min) + " operands"
	default:
		return "expects " + itoa(info.min) + " to " + itoa(info.max) + " operands"
	}
}

func itoa(n int) string { return formatNumber(float64(n)) }

func (ev *Evaluator) operands(e *Expression, ctx *Context) ([]Value, error) {
	out := make([]Value, len(e.Operands))
	for i := range e.Operands {
		v, err := ev.EvaluateOperand(e, i, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (ev *Evaluator) numbers(e *Expression, ctx *Context) ([]float64, error) {
	vals, err := ev.operands(e, ctx)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		f, ok := v.Number()
		if !ok {
			return nil, errorf(e.Op, "operand %d must be a number, got %s", i, v.Kind())
		}
		out[i] = f
	}
	return out, nil
}

func (ev *Evaluator) booleans(e *Expression, ctx *Context) ([]bool, error) {
	vals, err := ev.operands(e, ctx)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(vals))
	for i, v := range vals {
		b, ok := v.Bool()
		if !ok {
			return nil, errorf(e.Op, "operand %d must be a boolean, got %s", i, v.Kind())
		}
		out[i] = b
	}
	return out, nil
}

func (ev *Evaluator) str(e *Expression, i int, ctx *Context) (string, error) {
	v, err := ev.EvaluateOperand(e, i, ctx)
	if err != nil {
		return "", err
	}
	s, ok := v.Str()
	if !ok {
		return "", errorf(e.Op, "operand %d must be a string, got %s", i, v.Kind())
	}
	return s, nil
}

// color accepts a color value or a parseable CSS color string.
func (ev *Evaluator) color(e *Expression, i int, ctx *Context) (Color, error) {
	v, err := ev.EvaluateOperand(e, i, ctx)
	if err != nil {
		return Color{}, err
	}
	if c, ok := asColor(v); ok {
		return c, nil
	}
	return Color{}, errorf(e.Op, "operand %d must be a color, got %s", i, describe(v))
}

func asColor(v Value) (Color, bool) {
	if c, ok := v.Color(); ok {
		return c, true
	}
	if s, ok := v.Str(); ok {
		if c, err := ParseColor(s); err == nil {
			return c, true
		}
	}
	return Color{}, false
}
