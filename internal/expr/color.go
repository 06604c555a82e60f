package expr

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
)

// Color holds red, green and blue in 0..255 and alpha in 0..1.
type Color struct {
	R, G, B float64
	A       float64
}

var (
	Transparent = Color{}
	Black       = Color{A: 1}
	White       = Color{R: 255, G: 255, B: 255, A: 1}
)

func RGBA(r, g, b, a float64) Color { return Color{R: r, G: g, B: b, A: a} }

// FromStdColor converts an image/color value (premultiplied) to a Color.
func FromStdColor(c color.Color) Color {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return Color{R: float64(n.R), G: float64(n.G), B: float64(n.B), A: float64(n.A) / 255}
}

// HSLA builds a color from hue in degrees and saturation/lightness in percent.
func HSLA(h, s, l, a float64) Color {
	c := colorful.Hsl(math.Mod(h, 360), s/100, l/100).Clamped()
	return Color{R: c.R * 255, G: c.G * 255, B: c.B * 255, A: a}
}

// RGBA returns the channels as [r, g, b, a].
func (c Color) RGBA() [4]float64 { return [4]float64{c.R, c.G, c.B, c.A} }

// HSLA returns hue in degrees, saturation and lightness in percent, and alpha.
func (c Color) HSLA() [4]float64 {
	h, s, l := colorful.Color{R: c.R / 255, G: c.G / 255, B: c.B / 255}.Hsl()
	if math.IsNaN(h) {
		h = 0
	}
	return [4]float64{h, s * 100, l * 100, c.A}
}

// Std converts to a non-premultiplied image/color value.
func (c Color) Std() color.NRGBA {
	return color.NRGBA{R: clampByte(c.R), G: clampByte(c.G), B: clampByte(c.B), A: clampByte(c.A * 255)}
}

func (c Color) String() string {
	return fmt.Sprintf("rgba(%s,%s,%s,%s)",
		formatNumber(math.Round(c.R)), formatNumber(math.Round(c.G)),
		formatNumber(math.Round(c.B)), formatNumber(c.A))
}

func clampByte(f float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(f))))
}

var errBadColor = errors.New("unparseable color")

// ParseColor accepts CSS hex (#rgb, #rgba, #rrggbb, #rrggbbaa), named colors and
// the rgb()/rgba()/hsl()/hsla() functional notations.
func ParseColor(s string) (Color, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	if in == "" {
		return Color{}, fmt.Errorf("%w: empty string", errBadColor)
	}
	if in == "transparent" {
		return Transparent, nil
	}
	if strings.HasPrefix(in, "#") {
		return parseHex(in)
	}
	if open := strings.IndexByte(in, '('); open > 0 && strings.HasSuffix(in, ")") {
		return parseFunc(in[:open], in[open+1:len(in)-1])
	}
	if c, ok := colornames.Map[in]; ok {
		return FromStdColor(c), nil
	}
	return Color{}, fmt.Errorf("%w: %q", errBadColor, s)
}

func parseHex(in string) (Color, error) {
	hex := in[1:]
	alpha := 1.0
	switch len(hex) {
	case 4, 8:
		n := len(hex) / 4
		digits := hex[len(hex)-n:]
		if n == 1 {
			digits += digits
		}
		a, err := strconv.ParseUint(digits, 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("%w: %q", errBadColor, in)
		}
		alpha = float64(a) / 255
		hex = hex[:len(hex)-n]
	case 3, 6:
	default:
		return Color{}, fmt.Errorf("%w: %q", errBadColor, in)
	}
	c, err := colorful.Hex("#" + hex)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", errBadColor, in)
	}
	return Color{R: math.Round(c.R * 255), G: math.Round(c.G * 255), B: math.Round(c.B * 255), A: alpha}, nil
}

func parseFunc(name, args string) (Color, error) {
	parts := strings.FieldsFunc(args, func(r rune) bool { return r == ',' || r == ' ' || r == '/' })
	nums := make([]float64, len(parts))
	for i, p := range parts {
		pct := strings.HasSuffix(p, "%")
		p = strings.TrimSuffix(strings.TrimSuffix(p, "%"), "deg")
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Color{}, fmt.Errorf("%w: %s(%s)", errBadColor, name, args)
		}
		if pct && (name == "rgb" || name == "rgba") && i < 3 {
			f = f * 255 / 100
		} else if pct && i == 3 {
			f /= 100
		}
		nums[i] = f
	}
	alpha := 1.0
	switch len(nums) {
	case 3:
	case 4:
		alpha = nums[3]
	default:
		return Color{}, fmt.Errorf("%w: %s(%s)", errBadColor, name, args)
	}
	var c Color
	switch name {
	case "rgb", "rgba":
		c = Color{R: nums[0], G: nums[1], B: nums[2], A: alpha}
	case "hsl", "hsla":
		c = HSLA(nums[0], nums[1], nums[2], alpha)
	default:
		return Color{}, fmt.Errorf("%w: unknown function %q", errBadColor, name)
	}
	if err := validateRGBA(c); err != nil {
		return Color{}, err
	}
	return c, nil
}

func validateRGBA(c Color) error {
	for i, ch := range [3]float64{c.R, c.G, c.B} {
		if ch < 0 || ch > 255 || math.IsNaN(ch) {
			return fmt.Errorf("%w: channel %d out of range [0,255]: %s", errBadColor, i, formatNumber(ch))
		}
	}
	if c.A < 0 || c.A > 1 || math.IsNaN(c.A) {
		return fmt.Errorf("%w: alpha out of range [0,1]: %s", errBadColor, formatNumber(c.A))
	}
	return nil
}
