package serialdb

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies the storage class of a Value. SQLite stores exactly these
// five kinds; no others exist.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindInteger:
		return "Integer"
	case KindReal:
		return "Real"
	case KindText:
		return "Text"
	case KindBlob:
		return "Blob"
	default:
		return "Unknown"
	}
}

// TimeFormat is the text representation used when binding time.Time values.
// Encoding is lossy below millisecond precision.
const TimeFormat = "2006-01-02 15:04:05.000-07:00"

// Value is the unit of data crossing the boundary between application types
// and the engine: a tagged union over the five SQLite storage classes.
// The zero Value is Null.
type Value struct {
	kind Kind
	n    int64
	f    float64
	s    string
	b    []byte
}

// Null is the SQL NULL value.
var Null = Value{}

// Integer returns an integer Value.
func Integer(v int64) Value { return Value{kind: KindInteger, n: v} }

// Real returns a floating-point Value.
func Real(v float64) Value { return Value{kind: KindReal, f: v} }

// Text returns a text Value.
func Text(v string) Value { return Value{kind: KindText, s: v} }

// Blob returns a binary Value. The bytes are not copied.
func Blob(v []byte) Value { return Value{kind: KindBlob, b: v} }

// Kind returns the storage class of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is SQL NULL.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer payload. It is only meaningful for KindInteger.
func (v Value) Int64() int64 { return v.n }

// Float64 returns the real payload. It is only meaningful for KindReal.
func (v Value) Float64() float64 { return v.f }

// Text returns the text payload. It is only meaningful for KindText.
func (v Value) Text() string { return v.s }

// Bytes returns the blob payload. It is only meaningful for KindBlob.
func (v Value) Bytes() []byte { return v.b }

// DatabaseValue makes Value itself convertible, so a Value can be bound
// anywhere an application type can.
func (v Value) DatabaseValue() Value { return v }

// Equal reports whether two values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInteger:
		return v.n == o.n
	case KindReal:
		return v.f == o.f
	case KindText:
		return v.s == o.s
	case KindBlob:
		return string(v.b) == string(o.b)
	}
	return false
}

// String renders the value for logs and errors.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return strconv.FormatInt(v.n, 10)
	case KindReal:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return strconv.Quote(v.s)
	case KindBlob:
		return fmt.Sprintf("x'%x'", v.b)
	}
	return "?"
}

// arg converts the value to the form database/sql expects for binding.
func (v Value) arg() any {
	switch v.kind {
	case KindInteger:
		return v.n
	case KindReal:
		return v.f
	case KindText:
		return v.s
	case KindBlob:
		return v.b
	default:
		return nil
	}
}

// valueOf converts a Go value into a Value for binding. It accepts the basic
// Go types, time.Time and anything implementing ValueConvertible. Unsupported
// types return a binding error.
func valueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null, nil
	case Value:
		return x, nil
	case bool:
		if x {
			return Integer(1), nil
		}
		return Integer(0), nil
	case int:
		return Integer(int64(x)), nil
	case int8:
		return Integer(int64(x)), nil
	case int16:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case uint8:
		return Integer(int64(x)), nil
	case uint16:
		return Integer(int64(x)), nil
	case uint32:
		return Integer(int64(x)), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return Null, bindingError("value %d overflows the integer storage class", x)
		}
		return Integer(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Null, bindingError("value %d overflows the integer storage class", x)
		}
		return Integer(int64(x)), nil
	case float32:
		return Real(float64(x)), nil
	case float64:
		return Real(x), nil
	case string:
		return Text(x), nil
	case []byte:
		return Blob(x), nil
	case time.Time:
		return Text(x.Format(TimeFormat)), nil
	case ValueConvertible:
		return x.DatabaseValue(), nil
	}
	return Null, bindingError("cannot bind value of type %T", v)
}

// valueFromColumn converts what database/sql produced for one column back
// into a Value. The sqlite driver yields int64, float64, string, []byte or
// nil depending on the storage class of the cell.
func valueFromColumn(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case int64:
		return Integer(x)
	case float64:
		return Real(x)
	case string:
		return Text(x)
	case []byte:
		// Copy: database/sql may reuse the buffer on the next row.
		return Blob(append([]byte(nil), x...))
	case bool:
		if x {
			return Integer(1)
		}
		return Integer(0)
	case time.Time:
		return Text(x.Format(TimeFormat))
	default:
		return Text(fmt.Sprint(x))
	}
}
