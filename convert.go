package serialdb

import (
	"fmt"
	"time"
)

// ValueConvertible is the encoding half of the conversion protocol: any
// application type that can turn itself into a Value may be bound directly.
type ValueConvertible interface {
	DatabaseValue() Value
}

// ValueScanner is the decoding half of the protocol. ScanValue assigns the
// receiver from a stored Value and reports whether the value's kind was
// compatible. An incompatible kind returns false, never an error; the caller
// decides whether absence is acceptable.
type ValueScanner interface {
	ScanValue(v Value) bool
}

// DecodeValue converts a stored Value into T. It handles the basic Go types,
// time.Time and any pointer type implementing ValueScanner. The boolean
// result is false when the value's kind cannot represent T; Null never
// converts to a non-pointer target.
func DecodeValue[T any](v Value) (T, bool) {
	var out T
	ok := decodeInto(v, &out)
	return out, ok
}

// RequireValue is the non-optional variant of DecodeValue: a kind mismatch
// becomes an ErrTypeMismatch instead of absence.
func RequireValue[T any](v Value) (T, error) {
	out, ok := DecodeValue[T](v)
	if !ok {
		return out, fmt.Errorf("%w: cannot convert %s value to %T", ErrTypeMismatch, v.Kind(), out)
	}
	return out, nil
}

// decodeInto assigns *dst from v, reporting compatibility. dst must be a
// non-nil pointer.
func decodeInto(v Value, dst any) bool {
	if s, ok := dst.(ValueScanner); ok {
		return s.ScanValue(v)
	}

	switch p := dst.(type) {
	case *Value:
		*p = v
		return true
	case *bool:
		if v.Kind() != KindInteger {
			return false
		}
		*p = v.Int64() != 0
		return true
	case *int:
		if v.Kind() != KindInteger {
			return false
		}
		*p = int(v.Int64())
		return true
	case *int32:
		if v.Kind() != KindInteger {
			return false
		}
		*p = int32(v.Int64())
		return true
	case *int64:
		if v.Kind() != KindInteger {
			return false
		}
		*p = v.Int64()
		return true
	case *float64:
		// Integer cells widen to float; text does not.
		switch v.Kind() {
		case KindReal:
			*p = v.Float64()
			return true
		case KindInteger:
			*p = float64(v.Int64())
			return true
		}
		return false
	case *string:
		if v.Kind() != KindText {
			return false
		}
		*p = v.Text()
		return true
	case *[]byte:
		switch v.Kind() {
		case KindBlob:
			*p = v.Bytes()
			return true
		case KindText:
			*p = []byte(v.Text())
			return true
		}
		return false
	case *time.Time:
		if v.Kind() != KindText {
			return false
		}
		t, err := time.Parse(TimeFormat, v.Text())
		if err != nil {
			return false
		}
		*p = t
		return true
	}
	return false
}
