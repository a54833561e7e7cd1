package change

import "strconv"

type valueKind uint8

const (
	kindNone valueKind = iota
	kindInt
	kindText
)

// Value is an optional scalar: absent, an integer, or a string.
// The zero Value is absent.
type Value struct {
	kind valueKind
	n    int
	s    string
}

// None returns an absent Value.
func None() Value { return Value{} }

func Int(n int) Value { return Value{kind: kindInt, n: n} }

func Text(s string) Value { return Value{kind: kindText, s: s} }

// IntPtr maps a nil pointer to None and anything else to Int.
func IntPtr(p *int) Value {
	if p == nil {
		return None()
	}
	return Int(*p)
}

func (v Value) Present() bool { return v.kind != kindNone }

// AsInt returns the integer payload, false when v is absent or text.
func (v Value) AsInt() (int, bool) {
	if v.kind != kindInt {
		return 0, false
	}
	return v.n, true
}

// AsText returns the text payload, false when v is absent or an integer.
func (v Value) AsText() (string, bool) {
	if v.kind != kindText {
		return "", false
	}
	return v.s, true
}

// Equal compares kind and payload.
func (v Value) Equal(o Value) bool { return v == o }

func (v Value) String() string {
	switch v.kind {
	case kindInt:
		return strconv.Itoa(v.n)
	case kindText:
		return v.s
	default:
		return ""
	}
}

// TextPtr maps a nil pointer to None and anything else to Text.
func TextPtr(p *string) Value {
	if p == nil {
		return None()
	}
	return Text(*p)
}
