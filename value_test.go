package axml

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFormatValue(t *testing.T) {
	pool := parsePool(t, encodeStringPool([]string{"first", "second"}, true))

	tests := []struct {
		name string
		typ  uint8
		data uint32
		want string
	}{
		{"bool true", AttrTypeIntBool, 1, "true"},
		{"bool nonzero", AttrTypeIntBool, 0xFFFFFFFF, "true"},
		{"bool false", AttrTypeIntBool, 0, "false"},
		{"hex", AttrTypeIntHex, 0x2a, "0x0000002a"},
		{"float", AttrTypeFloat, math.Float32bits(1.5), "1.5"},
		{"negative float", AttrTypeFloat, math.Float32bits(-0.25), "-0.25"},
		{"float whole", AttrTypeFloat, math.Float32bits(1), "1.0"},
		{"float hundred", AttrTypeFloat, math.Float32bits(100), "100.0"},
		{"float exponent", AttrTypeFloat, math.Float32bits(1e20), "1e+20"},
		{"dimension dp", AttrTypeDimension, 0x521, "10dp"},
		{"dimension px", AttrTypeDimension, 0x520, "10px"},
		{"dimension integer radix", AttrTypeDimension, 0xA31, "2560dp"},
		{"dimension top bit", AttrTypeDimension, 0xFFFFFE31, "4.29497e+09dp"},
		{"dimension radix 16p7", AttrTypeDimension, 0x4012, "0.5sp"},
		{"dimension radix 0p23", AttrTypeDimension, 0x800001, "1dp"},
		{"dimension unknown unit", AttrTypeDimension, 0x527, "10??"},
		{"dimension unit past table", AttrTypeDimension, 0x52c, "10??"},
		{"fraction", AttrTypeFraction, 0x4010, "50%"},
		{"fraction parent", AttrTypeFraction, 0x521, "1000%p"},
		{"reference", AttrTypeReference, 0x7f010001, "@0x7f010001"},
		{"attribute", AttrTypeAttribute, 0x01010054, "?0x01010054"},
		{"string", AttrTypeString, 1, "second"},
		{"string sentinel", AttrTypeString, 0xFFFFFFFF, ""},
		{"string out of range", AttrTypeString, 5, ""},
		{"argb8", AttrTypeIntColorArgb8, 0xff00ff00, "#ff00ff00"},
		{"rgb8", AttrTypeIntColorRgb8, 0x00123456, "#00123456"},
		{"argb4", AttrTypeIntColorArgb4, 0xf0f, "#00000f0f"},
		{"rgb4", AttrTypeIntColorRgb4, 0xabc, "#00000abc"},
		{"dec", AttrTypeIntDec, 42, "42"},
		{"dec negative", AttrTypeIntDec, 0xFFFFFFFF, "-1"},
		{"null", AttrTypeNull, 0x1234, ""},
		{"unknown", 0xEE, 0x11223344, "(type 0xee) 0x11223344"},
		{"gap after fraction", 0x07, 1, "(type 0x07) 0x00000001"},
		{"gap after ints", 0x13, 1, "(type 0x13) 0x00000001"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, FormatValue(test.typ, test.data, pool))
		})
	}
}

func TestFormatValueNilPool(t *testing.T) {
	require.Equal(t, "", FormatValue(AttrTypeString, 0, nil))
	require.Equal(t, "true", Value{Type: AttrTypeIntBool, Data: 1}.String(nil))
}

func TestFormatValueTotal(t *testing.T) {
	known := map[uint8]bool{
		AttrTypeNull: true, AttrTypeReference: true, AttrTypeAttribute: true, AttrTypeString: true,
		AttrTypeFloat: true, AttrTypeDimension: true, AttrTypeFraction: true,
		AttrTypeIntDec: true, AttrTypeIntHex: true, AttrTypeIntBool: true,
		AttrTypeIntColorArgb8: true, AttrTypeIntColorRgb8: true, AttrTypeIntColorArgb4: true, AttrTypeIntColorRgb4: true,
	}

	rapid.Check(t, func(t *rapid.T) {
		typ := rapid.Uint8().Draw(t, "type")
		data := rapid.Uint32().Draw(t, "data")

		got := FormatValue(typ, data, nil)
		if !known[typ] && !strings.HasPrefix(got, "(type 0x") {
			t.Fatalf("type 0x%02x rendered as %q", typ, got)
		}
	})
}

func TestResolveValue(t *testing.T) {
	pool := parsePool(t, encodeStringPool([]string{"raw"}, true))
	typed := Value{Size: valueSize, Type: AttrTypeIntDec, Data: 7}

	require.Equal(t, "raw", resolveValue(0, typed, pool))
	require.Equal(t, "7", resolveValue(-1, typed, pool))
	// a raw index that does not resolve still wins over the typed value
	require.Equal(t, "", resolveValue(9, typed, pool))
}
