package expr

import "math"

func (ev *Evaluator) evalColor(e *Expression, ctx *Context) (Value, error) {
	switch e.Op {
	case OpToRGBA:
		c, err := ev.color(e, 0, ctx)
		if err != nil {
			return Null, err
		}
		ch := c.RGBA()
		return Array(Number(ch[0]), Number(ch[1]), Number(ch[2]), Number(ch[3])), nil
	case OpToHSLA:
		c, err := ev.color(e, 0, ctx)
		if err != nil {
			return Null, err
		}
		ch := c.HSLA()
		return Array(Number(ch[0]), Number(ch[1]), Number(ch[2]), Number(ch[3])), nil
	}

	xs, err := ev.numbers(e, ctx)
	if err != nil {
		return Null, err
	}
	alpha := 1.0
	if len(xs) == 4 {
		alpha = xs[3]
		if err := inRange(e.Op, "alpha", alpha, 0, 1); err != nil {
			return Null, err
		}
	}

	switch e.Op {
	case OpRGB, OpRGBA:
		for i, name := range [3]string{"red", "green", "blue"} {
			if err := inRange(e.Op, name, xs[i], 0, 255); err != nil {
				return Null, err
			}
		}
		return ColorValue(Color{R: xs[0], G: xs[1], B: xs[2], A: alpha}), nil
	case OpHSL, OpHSLA:
		if err := inRange(e.Op, "hue", xs[0], 0, 360); err != nil {
			return Null, err
		}
		if err := inRange(e.Op, "saturation", xs[1], 0, 100); err != nil {
			return Null, err
		}
		if err := inRange(e.Op, "lightness", xs[2], 0, 100); err != nil {
			return Null, err
		}
		return ColorValue(HSLA(xs[0], xs[1], xs[2], alpha)), nil
	}
	return Null, errorf(e.Op, "not a color operator")
}

func inRange(op Op, name string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return errorf(op, "%s component %s out of range [%s, %s]",
			name, formatNumber(v), formatNumber(lo), formatNumber(hi))
	}
	return nil
}
