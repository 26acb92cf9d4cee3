package serialdb

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueKinds(t *testing.T) {
	assert.Equal(t, KindNull, Null.Kind())
	assert.True(t, Null.IsNull())
	assert.Equal(t, KindInteger, Integer(7).Kind())
	assert.Equal(t, int64(7), Integer(7).Int64())
	assert.Equal(t, KindReal, Real(1.5).Kind())
	assert.Equal(t, 1.5, Real(1.5).Float64())
	assert.Equal(t, KindText, Text("hi").Kind())
	assert.Equal(t, "hi", Text("hi").Text())
	assert.Equal(t, KindBlob, Blob([]byte{1, 2}).Kind())
	assert.Equal(t, []byte{1, 2}, Blob([]byte{1, 2}).Bytes())

	// The zero Value is Null.
	var zero Value
	assert.True(t, zero.IsNull())
}

func TestValueEqual(t *testing.T) {
	assert.True(t, Integer(1).Equal(Integer(1)))
	assert.False(t, Integer(1).Equal(Integer(2)))
	assert.False(t, Integer(1).Equal(Real(1)))
	assert.True(t, Null.Equal(Value{}))
	assert.True(t, Blob([]byte("ab")).Equal(Blob([]byte("ab"))))
	assert.False(t, Text("a").Equal(Text("b")))
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "NULL", Null.String())
	assert.Equal(t, "42", Integer(42).String())
	assert.Equal(t, `"abc"`, Text("abc").String())
	assert.Equal(t, "x'0a'", Blob([]byte{0x0a}).String())
}

func TestValueOf(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{name: "nil", in: nil, want: Null},
		{name: "bool true", in: true, want: Integer(1)},
		{name: "bool false", in: false, want: Integer(0)},
		{name: "int", in: 42, want: Integer(42)},
		{name: "int64", in: int64(-9), want: Integer(-9)},
		{name: "uint32", in: uint32(7), want: Integer(7)},
		{name: "uint", in: uint(11), want: Integer(11)},
		{name: "uint64", in: uint64(13), want: Integer(13)},
		{name: "float64", in: 2.5, want: Real(2.5)},
		{name: "float32", in: float32(0.5), want: Real(0.5)},
		{name: "string", in: "hello", want: Text("hello")},
		{name: "bytes", in: []byte{1}, want: Blob([]byte{1})},
		{name: "value passthrough", in: Text("v"), want: Text("v")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := valueOf(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestValueOfTime(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123_000_000, time.UTC)
	v, err := valueOf(ts)
	require.NoError(t, err)
	assert.Equal(t, KindText, v.Kind())
	assert.Equal(t, "2024-03-01 12:30:45.123+00:00", v.Text())
}

func TestValueOfUnsupported(t *testing.T) {
	_, err := valueOf(struct{ X int }{1})
	assert.ErrorIs(t, err, ErrBinding)
}

func TestValueOfUint64Overflow(t *testing.T) {
	// The integer storage class is a signed 64-bit value.
	_, err := valueOf(uint64(math.MaxInt64))
	assert.NoError(t, err)

	_, err = valueOf(uint64(math.MaxInt64) + 1)
	assert.ErrorIs(t, err, ErrBinding)
}

func TestValueFromColumn(t *testing.T) {
	assert.True(t, valueFromColumn(nil).IsNull())
	assert.True(t, valueFromColumn(int64(3)).Equal(Integer(3)))
	assert.True(t, valueFromColumn(1.25).Equal(Real(1.25)))
	assert.True(t, valueFromColumn("s").Equal(Text("s")))
	assert.True(t, valueFromColumn([]byte{9}).Equal(Blob([]byte{9})))
}

func TestValueFromColumnCopiesBlob(t *testing.T) {
	buf := []byte{1, 2, 3}
	v := valueFromColumn(buf)
	buf[0] = 99
	assert.Equal(t, []byte{1, 2, 3}, v.Bytes())
}
