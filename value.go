package axml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	AttrTypeNull      = 0x00
	AttrTypeReference = 0x01
	AttrTypeAttribute = 0x02
	AttrTypeString    = 0x03
	AttrTypeFloat     = 0x04
	AttrTypeDimension = 0x05
	AttrTypeFraction  = 0x06

	AttrTypeFirstInt = 0x10
	AttrTypeIntDec   = 0x10
	AttrTypeIntHex   = 0x11
	AttrTypeIntBool  = 0x12

	AttrTypeFirstColorInt = 0x1c
	AttrTypeIntColorArgb8 = 0x1c
	AttrTypeIntColorRgb8  = 0x1d
	AttrTypeIntColorArgb4 = 0x1e
	AttrTypeIntColorRgb4  = 0x1f

	complexUnitMask     = 0xF
	complexRadixMask    = 0x3
	complexRadixShift   = 4
	complexMantissaMask = 0xFFFFFF00
)

// Size of the Res_value record: size, res0, dataType, data.
const valueSize = 2 + 1 + 1 + 4

var complexRadixMults = [...]float64{
	1.0 / (1 << 23),
	1.0 / (1 << 15),
	1.0 / (1 << 7),
	1.0,
}

var dimensionUnits = [...]string{"px", "dp", "sp", "pt", "in", "mm", "??", "??"}

var fractionUnits = [...]string{"%", "%p", "??", "??", "??", "??", "??", "??"}

// Value is a typed value record as stored after attributes and text nodes.
type Value struct {
	Size uint16
	Res0 uint8
	Type uint8
	Data uint32
}

func (v Value) String(pool *StringPool) string {
	return FormatValue(v.Type, v.Data, pool)
}

func readValue(c *cursor) (v Value, err error) {
	if v.Size, err = c.u16(); err != nil {
		return
	}
	if v.Res0, err = c.u8(); err != nil {
		return
	}
	if v.Type, err = c.u8(); err != nil {
		return
	}
	v.Data, err = c.u32()
	return
}

// FormatValue renders a typed value as text. It is defined for every type tag;
// unknown tags produce a diagnostic "(type 0x..) 0x........" string.
func FormatValue(typ uint8, data uint32, pool *StringPool) string {
	switch {
	case typ == AttrTypeString:
		return pool.Get(stringIndex(data))
	case typ == AttrTypeAttribute:
		return fmt.Sprintf("?0x%08x", data)
	case typ == AttrTypeReference:
		return fmt.Sprintf("@0x%08x", data)
	case typ == AttrTypeFloat:
		return formatFloat(math.Float32frombits(data))
	case typ == AttrTypeIntHex:
		return fmt.Sprintf("0x%08x", data)
	case typ == AttrTypeIntBool:
		return strconv.FormatBool(data != 0)
	case typ == AttrTypeDimension:
		return formatComplex(complexToFloat(data)) + unitName(dimensionUnits[:], data)
	case typ == AttrTypeFraction:
		return formatComplex(complexToFloat(data)*100) + unitName(fractionUnits[:], data)
	case typ >= AttrTypeFirstColorInt && typ <= AttrTypeIntColorRgb4:
		return fmt.Sprintf("#%08x", data)
	case typ >= AttrTypeFirstInt && typ <= AttrTypeIntBool:
		return strconv.FormatInt(int64(int32(data)), 10)
	case typ == AttrTypeNull:
		return ""
	default:
		return fmt.Sprintf("(type 0x%02x) 0x%08x", typ, data)
	}
}

// stringIndex maps a raw 32-bit data word onto the signed index space of the
// pool, 0xFFFFFFFF being the -1 sentinel.
func stringIndex(data uint32) int32 {
	if data > math.MaxInt32 {
		return -1
	}
	return int32(data)
}

// complexToFloat keeps the mantissa in place and unsigned, the radix
// multipliers are scaled for that.
func complexToFloat(data uint32) float64 {
	mantissa := data & complexMantissaMask
	radix := (data >> complexRadixShift) & complexRadixMask
	return float64(mantissa) * complexRadixMults[radix]
}

func unitName(units []string, data uint32) string {
	if unit := int(data & complexUnitMask); unit < len(units) {
		return units[unit]
	}
	return "??"
}

// formatFloat writes the shortest form of f, whole numbers keep a ".0" so they
// don't read as integers.
func formatFloat(f float32) string {
	s := strconv.FormatFloat(float64(f), 'g', -1, 32)
	if strings.ContainsAny(s, ".eIN") {
		return s
	}
	return s + ".0"
}

func formatComplex(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
