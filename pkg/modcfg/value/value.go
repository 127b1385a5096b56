// Package value defines the tagged scalar stored under every configuration key.
package value

import (
	"errors"
	"fmt"
	"strconv"
)

// Kind is the primitive type tag carried alongside every stored value.
type Kind int

const (
	// String is free-form text.
	String Kind = iota + 1
	// Int is a signed integer (int, 64 bits on supported platforms).
	Int
	// Float is a single precision floating point number.
	Float
	// Double is a double precision floating point number.
	Double
	// Bool is true or false.
	Bool
)

// Sentinel errors for value conversion.
var (
	// ErrUnknownKind indicates a type tag outside the supported set.
	ErrUnknownKind = errors.New("unknown value kind")

	// ErrCorrupt indicates the textual payload does not parse as its kind.
	ErrCorrupt = errors.New("corrupt value")

	// ErrKindMismatch indicates a native accessor of the wrong kind was used.
	ErrKindMismatch = errors.New("value kind mismatch")
)

// String returns the tag used in persisted records.
func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Double:
		return "double"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	return k >= String && k <= Bool
}

// ParseKind maps a persisted tag back to its Kind.
func ParseKind(tag string) (Kind, error) {
	switch tag {
	case "string":
		return String, nil
	case "int":
		return Int, nil
	case "float":
		return Float, nil
	case "double":
		return Double, nil
	case "bool":
		return Bool, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, tag)
	}
}

// TypedValue is a scalar stored in its textual form together with its kind.
type TypedValue struct {
	Kind Kind
	Text string
}

// CorruptError reports a payload that does not parse as its declared kind.
type CorruptError struct {
	// Kind is the declared kind.
	Kind Kind
	// Text is the payload that failed to parse.
	Text string
	// Err is the parse error.
	Err error
}

// Error implements the error interface.
func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s value %q: %v", e.Kind, e.Text, e.Err)
}

// Unwrap returns ErrCorrupt so callers can match with errors.Is.
func (e *CorruptError) Unwrap() []error {
	return []error{ErrCorrupt, e.Err}
}

// OfString builds a String value.
func OfString(s string) TypedValue {
	return TypedValue{Kind: String, Text: s}
}

// OfInt builds an Int value.
func OfInt(i int) TypedValue {
	return TypedValue{Kind: Int, Text: strconv.Itoa(i)}
}

// OfFloat builds a Float value using the shortest text that round-trips at 32 bits.
func OfFloat(f float32) TypedValue {
	return TypedValue{Kind: Float, Text: strconv.FormatFloat(float64(f), 'g', -1, 32)}
}

// OfDouble builds a Double value using the shortest text that round-trips at 64 bits.
func OfDouble(f float64) TypedValue {
	return TypedValue{Kind: Double, Text: strconv.FormatFloat(f, 'g', -1, 64)}
}

// OfBool builds a Bool value.
func OfBool(b bool) TypedValue {
	return TypedValue{Kind: Bool, Text: strconv.FormatBool(b)}
}

// AsString returns the payload of a String value.
func (v TypedValue) AsString() (string, error) {
	if v.Kind != String {
		return "", v.mismatch(String)
	}
	return v.Text, nil
}

// AsInt parses the payload of an Int value.
func (v TypedValue) AsInt() (int, error) {
	if v.Kind != Int {
		return 0, v.mismatch(Int)
	}
	i, err := strconv.Atoi(v.Text)
	if err != nil {
		return 0, v.corrupt(err)
	}
	return i, nil
}

// AsFloat parses the payload of a Float value.
func (v TypedValue) AsFloat() (float32, error) {
	if v.Kind != Float {
		return 0, v.mismatch(Float)
	}
	f, err := strconv.ParseFloat(v.Text, 32)
	if err != nil {
		return 0, v.corrupt(err)
	}
	return float32(f), nil
}

// AsDouble parses the payload of a Double value.
func (v TypedValue) AsDouble() (float64, error) {
	if v.Kind != Double {
		return 0, v.mismatch(Double)
	}
	f, err := strconv.ParseFloat(v.Text, 64)
	if err != nil {
		return 0, v.corrupt(err)
	}
	return f, nil
}

// AsBool parses the payload of a Bool value.
// Accepts the forms strconv.ParseBool accepts, including "True" and "False".
func (v TypedValue) AsBool() (bool, error) {
	if v.Kind != Bool {
		return false, v.mismatch(Bool)
	}
	b, err := strconv.ParseBool(v.Text)
	if err != nil {
		return false, v.corrupt(err)
	}
	return b, nil
}

// Validate reports whether the payload parses as the declared kind.
func (v TypedValue) Validate() error {
	var err error
	switch v.Kind {
	case String:
	case Int:
		_, err = v.AsInt()
	case Float:
		_, err = v.AsFloat()
	case Double:
		_, err = v.AsDouble()
	case Bool:
		_, err = v.AsBool()
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownKind, int(v.Kind))
	}
	return err
}

// String renders the value for diagnostics, e.g. int(5).
func (v TypedValue) String() string {
	return fmt.Sprintf("%s(%s)", v.Kind, v.Text)
}

func (v TypedValue) mismatch(want Kind) error {
	return fmt.Errorf("%w: want %s, have %s", ErrKindMismatch, want, v.Kind)
}

func (v TypedValue) corrupt(err error) error {
	return &CorruptError{Kind: v.Kind, Text: v.Text, Err: err}
}
