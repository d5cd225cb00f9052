package axml

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

const (
	// the sorted flag and anything else is ignored
	stringFlagUtf8 = 0x00000100

	// string count, style count, flags, strings start, styles start
	stringPoolHeaderSize = chunkHeaderSize + 5*4

	maxStringCount = 2 * 1024 * 1024
)

// StringPool is the decoded string table of a binary XML file. It is
// immutable once built.
type StringPool struct {
	isUtf8  bool
	strings []string
}

// Get returns the string at idx, or an empty string for the -1 sentinel and
// any index outside the pool.
func (t *StringPool) Get(idx int32) string {
	if t == nil || idx < 0 || int(idx) >= len(t.strings) {
		return ""
	}
	return t.strings[idx]
}

// Len returns the number of strings in the pool.
func (t *StringPool) Len() int {
	if t == nil {
		return 0
	}
	return len(t.strings)
}

// IsUtf8 reports whether the pool was stored as UTF-8 rather than UTF-16.
func (t *StringPool) IsUtf8() bool {
	return t != nil && t.isUtf8
}

// parseStringTable expects c positioned right after the generic chunk header.
func parseStringTable(c *cursor, h chunkHeader) (*StringPool, error) {
	if h.HeaderSize < stringPoolHeaderSize {
		return nil, fmt.Errorf("%w: string pool header size %d < %d", ErrMalformedHeader, h.HeaderSize, stringPoolHeaderSize)
	}

	stringCnt, err := c.u32()
	if err != nil {
		return nil, fmt.Errorf("error reading stringCnt: %w", err)
	}

	styleCnt, err := c.u32()
	if err != nil {
		return nil, fmt.Errorf("error reading styleCnt: %w", err)
	}

	flags, err := c.u32()
	if err != nil {
		return nil, fmt.Errorf("error reading flags: %w", err)
	}

	// strings start and styles start, offsets are taken from the offset arrays instead
	if err := c.skip(2 * 4); err != nil {
		return nil, fmt.Errorf("error reading data offsets: %w", err)
	}

	if err := c.skipTo(h.Start + int(h.HeaderSize)); err != nil {
		return nil, err
	}

	if stringCnt >= maxStringCount || styleCnt >= maxStringCount {
		return nil, fmt.Errorf("%w: too many strings in this file (%d strings, %d styles)", ErrMalformedHeader, stringCnt, styleCnt)
	}

	dataLen := int64(h.Size) - int64(h.HeaderSize) - 4*(int64(stringCnt)+int64(styleCnt))
	if dataLen < 0 {
		return nil, fmt.Errorf("%w: string pool offsets (%d strings, %d styles) exceed chunk size %d",
			ErrMalformedHeader, stringCnt, styleCnt, h.Size)
	}

	offsets, err := c.bytes(4 * int(stringCnt))
	if err != nil {
		return nil, fmt.Errorf("failed to read string offsets: %w", err)
	}

	// styles are not decoded
	if err := c.skip(4 * int(styleCnt)); err != nil {
		return nil, fmt.Errorf("failed to read style offsets: %w", err)
	}

	data, err := c.bytes(int(dataLen))
	if err != nil {
		return nil, fmt.Errorf("failed to read string pool data: %w", err)
	}

	res := &StringPool{
		isUtf8:  (flags & stringFlagUtf8) != 0,
		strings: make([]string, stringCnt),
	}

	var dec *encoding.Decoder
	if res.isUtf8 {
		dec = unicode.UTF8.NewDecoder()
	} else {
		dec = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	}

	for i := range res.strings {
		off := binary.LittleEndian.Uint32(offsets[4*i:])
		if uint64(off) >= uint64(len(data)) {
			continue
		}

		var raw []byte
		if res.isUtf8 {
			raw = stringData8(data[off:])
		} else {
			raw = stringData16(data[off:])
		}
		res.strings[i] = decodeLossy(dec, raw)
	}
	return res, nil
}

// stringData16 returns the UTF-16LE payload of the string at the start of b.
func stringData16(b []byte) []byte {
	if len(b) < 2 {
		return nil
	}

	strCharacters := int64(binary.LittleEndian.Uint16(b))
	b = b[2:]
	if (strCharacters & 0x8000) != 0 {
		if len(b) < 2 {
			return nil
		}
		strCharacters = ((strCharacters & 0x7FFF) << 16) | int64(binary.LittleEndian.Uint16(b))
		b = b[2:]
	}
	return clamp(b, 2*strCharacters)
}

// stringData8 returns the UTF-8 payload of the string at the start of b.
func stringData8(b []byte) []byte {
	// Length of the string in UTF16, unused
	_, n := stringLen8(b)
	b = b[n:]

	len8, n := stringLen8(b)
	return clamp(b[n:], len8)
}

func stringLen8(b []byte) (length int64, n int) {
	if len(b) == 0 {
		return 0, 0
	}

	if (b[0] & 0x80) == 0 {
		return int64(b[0]), 1
	}

	if len(b) < 2 {
		return 0, 1
	}
	return (int64(b[0]&0x7F) << 7) | int64(b[1]&0x7F), 2
}

func clamp(b []byte, n int64) []byte {
	if n < int64(len(b)) {
		return b[:n]
	}
	return b
}

// decodeLossy never fails, malformed sequences turn into U+FFFD.
func decodeLossy(dec *encoding.Decoder, raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	out, err := dec.Bytes(raw)
	if err != nil {
		return "\uFFFD"
	}
	return string(out)
}
