package expr

import (
	"math"
	"math/rand/v2"

	"github.com/cespare/xxhash/v2"
)

func (ev *Evaluator) evalMath(e *Expression, ctx *Context) (Value, error) {
	switch e.Op {
	case OpE:
		return Number(math.E), nil
	case OpPi:
		return Number(math.Pi), nil
	case OpLn2:
		return Number(math.Ln2), nil
	case OpRandom:
		return ev.random(e, ctx)
	}

	xs, err := ev.numbers(e, ctx)
	if err != nil {
		return Null, err
	}

	switch e.Op {
	case OpAdd:
		return Number(fold(xs, func(a, b float64) float64 { return a + b })), nil
	case OpMul:
		return Number(fold(xs, func(a, b float64) float64 { return a * b })), nil
	case OpSub:
		if len(xs) == 1 {
			return Number(-xs[0]), nil
		}
		return Number(fold(xs, func(a, b float64) float64 { return a - b })), nil
	case OpDiv:
		return Number(fold(xs, func(a, b float64) float64 { return a / b })), nil
	case OpMod:
		return Number(math.Mod(xs[0], xs[1])), nil
	case OpPow:
		return Number(math.Pow(xs[0], xs[1])), nil
	case OpMin:
		return Number(fold(xs, math.Min)), nil
	case OpMax:
		return Number(fold(xs, math.Max)), nil
	}

	x := xs[0]
	switch e.Op {
	case OpAbs:
		return Number(math.Abs(x)), nil
	case OpCeil:
		return Number(math.Ceil(x)), nil
	case OpFloor:
		return Number(math.Floor(x)), nil
	case OpRound:
		return Number(math.Round(x)), nil
	case OpSqrt:
		return Number(math.Sqrt(x)), nil
	case OpSin:
		return Number(math.Sin(x)), nil
	case OpCos:
		return Number(math.Cos(x)), nil
	case OpTan:
		return Number(math.Tan(x)), nil
	case OpAsin:
		return Number(math.Asin(x)), nil
	case OpAcos:
		return Number(math.Acos(x)), nil
	case OpAtan:
		return Number(math.Atan(x)), nil
	case OpLn:
		return Number(math.Log(x)), nil
	case OpLog2:
		return Number(math.Log2(x)), nil
	case OpLog10:
		return Number(math.Log10(x)), nil
	}
	return Null, errorf(e.Op, "not a math operator")
}

// fold applies f left to right.
func fold(xs []float64, f func(a, b float64) float64) float64 {
	acc := xs[0]
	for _, x := range xs[1:] {
		acc = f(acc, x)
	}
	return acc
}

// random(min, max, seed) is deterministic per seed. Numeric seeds are used
// bit-for-bit, string seeds are hashed.
func (ev *Evaluator) random(e *Expression, ctx *Context) (Value, error) {
	vals, err := ev.operands(e, ctx)
	if err != nil {
		return Null, err
	}
	lo, ok := vals[0].Number()
	if !ok {
		return Null, errorf(e.Op, "min must be a number, got %s", vals[0].Kind())
	}
	hi, ok := vals[1].Number()
	if !ok {
		return Null, errorf(e.Op, "max must be a number, got %s", vals[1].Kind())
	}
	var seed uint64
	switch vals[2].Kind() {
	case KindNumber:
		f, _ := vals[2].Number()
		seed = math.Float64bits(f)
	case KindString:
		s, _ := vals[2].Str()
		seed = xxhash.Sum64String(s)
	default:
		return Null, errorf(e.Op, "seed must be a number or string, got %s", vals[2].Kind())
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return Number(lo + r.Float64()*(hi-lo)), nil
}
