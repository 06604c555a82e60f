package expr

// Op identifies an operator. Dispatch is a switch on Op, never on the name.
type Op uint8

const (
	OpInvalid Op = iota

	// math
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpAbs
	OpCeil
	OpFloor
	OpRound
	OpSqrt
	OpSin
	OpCos
	OpTan
	OpAsin
	OpAcos
	OpAtan
	OpLn
	OpLog2
	OpLog10
	OpLn2
	OpMin
	OpMax
	OpE
	OpPi
	OpRandom

	// decisions
	OpNot
	OpEq
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpAll
	OpAny
	OpCase
	OpCoalesce
	OpMatch

	// types
	OpArray
	OpBoolean
	OpLiteral
	OpNumber
	OpObject
	OpString
	OpToBoolean
	OpToColor
	OpToNumber
	OpToString
	OpTypeof

	// color
	OpRGB
	OpRGBA
	OpHSL
	OpHSLA
	OpToRGBA
	OpToHSLA

	// lookup
	OpGet
	OpHas
	OpAt
	OpIn
	OpLength

	// string
	OpConcat
	OpDowncase
	OpUpcase

	opCount
)

// variadic marks an unbounded maximum arity
const variadic = -1

type opInfo struct {
	name     string
	min, max int
}

var opTable = [opCount]opInfo{
	OpInvalid: {"<invalid>", 0, 0},

	OpAdd:    {"+", 2, variadic},
	OpSub:    {"-", 1, variadic},
	OpMul:    {"*", 2, variadic},
	OpDiv:    {"/", 2, variadic},
	OpMod:    {"%", 2, 2},
	OpPow:    {"^", 2, 2},
	OpAbs:    {"abs", 1, 1},
	OpCeil:   {"ceil", 1, 1},
	OpFloor:  {"floor", 1, 1},
	OpRound:  {"round", 1, 1},
	OpSqrt:   {"sqrt", 1, 1},
	OpSin:    {"sin", 1, 1},
	OpCos:    {"cos", 1, 1},
	OpTan:    {"tan", 1, 1},
	OpAsin:   {"asin", 1, 1},
	OpAcos:   {"acos", 1, 1},
	OpAtan:   {"atan", 1, 1},
	OpLn:     {"ln", 1, 1},
	OpLog2:   {"log2", 1, 1},
	OpLog10:  {"log10", 1, 1},
	OpLn2:    {"ln2", 0, 0},
	OpMin:    {"min", 1, variadic},
	OpMax:    {"max", 1, variadic},
	OpE:      {"e", 0, 0},
	OpPi:     {"pi", 0, 0},
	OpRandom: {"random", 3, 3},

	OpNot:      {"!", 1, 1},
	OpEq:       {"==", 2, 2},
	OpNeq:      {"!=", 2, 2},
	OpLt:       {"<", 2, 2},
	OpLte:      {"<=", 2, 2},
	OpGt:       {">", 2, 2},
	OpGte:      {">=", 2, 2},
	OpAll:      {"all", 0, variadic},
	OpAny:      {"any", 0, variadic},
	OpCase:     {"case", 3, variadic},
	OpCoalesce: {"coalesce", 1, variadic},
	OpMatch:    {"match", 4, variadic},

	OpArray:     {"array", 1, variadic},
	OpBoolean:   {"boolean", 1, variadic},
	OpLiteral:   {"literal", 1, 1},
	OpNumber:    {"number", 1, variadic},
	OpObject:    {"object", 1, variadic},
	OpString:    {"string", 1, variadic},
	OpToBoolean: {"to-boolean", 1, 1},
	OpToColor:   {"to-color", 1, variadic},
	OpToNumber:  {"to-number", 1, variadic},
	OpToString:  {"to-string", 1, 1},
	OpTypeof:    {"typeof", 1, 1},

	OpRGB:    {"rgb", 3, 3},
	OpRGBA:   {"rgba", 4, 4},
	OpHSL:    {"hsl", 3, 3},
	OpHSLA:   {"hsla", 4, 4},
	OpToRGBA: {"to-rgba", 1, 1},
	OpToHSLA: {"to-hsla", 1, 1},

	OpGet:    {"get", 1, 2},
	OpHas:    {"has", 1, 2},
	OpAt:     {"at", 2, 2},
	OpIn:     {"in", 2, 2},
	OpLength: {"length", 1, 1},

	OpConcat:   {"concat", 1, variadic},
	OpDowncase: {"downcase", 1, 1},
	OpUpcase:   {"upcase", 1, 1},
}

var opByName = func() map[string]Op {
	m := make(map[string]Op, opCount)
	for op := OpInvalid + 1; op < opCount; op++ {
		m[opTable[op].name] = op
	}
	return m
}()

// LookupOp resolves an operator name as it appears in style JSON.
func LookupOp(name string) (Op, bool) {
	op, ok := opByName[name]
	return op, ok
}

func (op Op) String() string {
	if op >= opCount {
		return "<invalid>"
	}
	return opTable[op].name
}

// Ops lists every supported operator name.
func Ops() []string {
	out := make([]string, 0, opCount-1)
	for op := OpInvalid + 1; op < opCount; op++ {
		out = append(out, opTable[op].name)
	}
	return out
}
