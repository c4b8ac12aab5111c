package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValue_Numbers(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Value
	}{
		{"int", `42`, Int(42)},
		{"negative", `-7`, Int(-7)},
		{"beyond int64", `18446744073709551617`, BigInt{N: MustParseAmount("18446744073709551617").Big()}},
		{"fraction", `12.5`, Decimal{D: decimal.RequireFromString("12.5")}},
		{"null", `null`, Null{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValue([]byte(tt.input))
			require.NoError(t, err)
			switch want := tt.want.(type) {
			case BigInt:
				require.IsType(t, BigInt{}, got)
				assert.Equal(t, 0, want.N.Cmp(got.(BigInt).N))
			case Decimal:
				require.IsType(t, Decimal{}, got)
				assert.True(t, want.D.Equal(got.(Decimal).D))
			default:
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestObject_Lookup(t *testing.T) {
	var obj Object
	require.NoError(t, json.Unmarshal([]byte(`{"a":{"b":{"c":"x"}},"n":1}`), &obj))

	v, ok := obj.Lookup("a.b.c")
	require.True(t, ok)
	assert.Equal(t, String("x"), v)

	_, ok = obj.Lookup("a.missing")
	assert.False(t, ok)
	_, ok = obj.Lookup("n.deeper")
	assert.False(t, ok)
}

func TestObject_UnmarshalNull(t *testing.T) {
	var holder struct {
		Meta Object `json:"meta"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"meta":null}`), &holder))
	assert.Nil(t, holder.Meta)
}

func TestObject_MarshalSortsKeys(t *testing.T) {
	obj := Object{"b": Int(1), "a": String("x"), "c": Array{Bool(true), Null{}}}
	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1,"c":[true,null]}`, string(data))
}

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name  string
		input Value
		want  string
	}{
		{"string", String("hello"), `"hello"`},
		{"html not escaped", String("<a&b>"), `"<a&b>"`},
		{"int", Int(-100), `-100`},
		{"decimal", Decimal{D: decimal.RequireFromString("1.50")}, `1.5`},
		{"empty object", Object{}, `{}`},
		{"sorted keys", Object{"zebra": Int(1), "alpha": Int(2)}, `{"alpha":2,"zebra":1}`},
		{"null member omitted", Object{"a": Null{}, "b": Int(1)}, `{"b":1}`},
		{"nested array", Array{Int(1), Object{"y": Bool(false), "x": String("")}}, `[1,{"x":"","y":false}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestMarshalCanonical_RejectsBareNull(t *testing.T) {
	_, err := MarshalCanonical(Null{})
	assert.Error(t, err)

	_, err = MarshalCanonical(Array{Null{}})
	assert.Error(t, err)
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" followed by a combining acute accent normalizes to a single rune.
	a, err := MarshalCanonical(String("cafe\u0301"))
	require.NoError(t, err)
	b, err := MarshalCanonical(String("caf\u00e9"))
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonical_LineSeparators(t *testing.T) {
	got, err := MarshalCanonical(String("a\u2028b"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(got))
}
