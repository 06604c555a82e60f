package expr

import (
	"encoding/json"
	"fmt"
	"image/color"
	"math"
	"sort"
	"strconv"
	"strings"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindBool
	KindString
	KindColor
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindColor:
		return "color"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value is the result of evaluating any operator or literal. The zero value is null.
type Value struct {
	kind Kind
	num  float64
	b    bool
	s    string
	c    Color
	arr  []Value
	obj  map[string]Value
}

var Null = Value{}

func Number(f float64) Value          { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value               { return Value{kind: KindBool, b: b} }
func String(s string) Value           { return Value{kind: KindString, s: s} }
func ColorValue(c Color) Value        { return Value{kind: KindColor, c: c} }
func Array(vs ...Value) Value         { return Value{kind: KindArray, arr: vs} }
func Object(m map[string]Value) Value { return Value{kind: KindObject, obj: m} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }
func (v Value) Bool() (bool, bool)      { return v.b, v.kind == KindBool }
func (v Value) Str() (string, bool)     { return v.s, v.kind == KindString }
func (v Value) Color() (Color, bool)    { return v.c, v.kind == KindColor }
func (v Value) Array() ([]Value, bool)  { return v.arr, v.kind == KindArray }
func (v Value) Object() (map[string]Value, bool) {
	return v.obj, v.kind == KindObject
}

// Float is the implicit numeric conversion: numbers as-is, booleans as 0/1.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Truthy follows to-boolean: null is false, strings and arrays are true when
// non-empty, numbers when non-zero and not NaN, everything else is true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindString:
		return v.s != ""
	case KindNumber:
		return v.num != 0 && !math.IsNaN(v.num)
	case KindArray:
		return len(v.arr) > 0
	}
	return true
}

// String renders the value the way to-string does.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNumber:
		return formatNumber(v.num)
	case KindString:
		return v.s
	case KindColor:
		return v.c.String()
	}
	b, err := json.Marshal(v.Interface())
	if err != nil {
		return fmt.Sprint(v.Interface())
	}
	return string(b)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Interface converts back to plain Go values; colors become [r,g,b,a].
func (v Value) Interface() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindString:
		return v.s
	case KindColor:
		rgba := v.c.RGBA()
		return []any{rgba[0], rgba[1], rgba[2], rgba[3]}
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindColor {
		return json.Marshal(v.c.String())
	}
	return json.Marshal(v.Interface())
}

// Equal is deep structural equality; numbers compare by value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.s == o.s
	case KindColor:
		return v.c == o.c
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, e := range v.obj {
			oe, ok := o.obj[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// TypeName is what typeof reports.
func (v Value) TypeName() string {
	if v.kind != KindArray {
		return v.kind.String()
	}
	if len(v.arr) == 0 {
		return "array"
	}
	first := v.arr[0].kind
	for _, e := range v.arr[1:] {
		if e.kind != first {
			return "array"
		}
	}
	return "array<" + first.String() + ">"
}

// FromInterface wraps a plain Go value. Every integer and float kind widens to
// a number.
func FromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null, nil
	case Value:
		return t, nil
	case *Value:
		if t == nil {
			return Null, nil
		}
		return *t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int8:
		return Number(float64(t)), nil
	case int16:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Null, fmt.Errorf("json number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case Color:
		return ColorValue(t), nil
	case color.Color:
		return ColorValue(FromStdColor(t)), nil
	case []Value:
		return Array(t...), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			v, err := FromInterface(e)
			if err != nil {
				return Null, fmt.Errorf("array[%d]: %w", i, err)
			}
			out[i] = v
		}
		return Array(out...), nil
	case []string:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = String(e)
		}
		return Array(out...), nil
	case []float64:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = Number(e)
		}
		return Array(out...), nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromInterface(e)
			if err != nil {
				return Null, fmt.Errorf("object[%q]: %w", k, err)
			}
			out[k] = v
		}
		return Object(out), nil
	case map[string]Value:
		return Object(t), nil
	}
	return Null, fmt.Errorf("unsupported value type %T", x)
}

// sortedKeys keeps object rendering deterministic in error messages.
func sortedKeys(m map[string]Value) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

func describe(v Value) string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.s)
	case KindObject:
		return "{" + strings.Join(sortedKeys(v.obj), ",") + "}"
	}
	return v.String()
}
