package axml

import (
	"errors"
	"fmt"
)

const (
	chunkNull        = 0x0000
	chunkStringTable = 0x0001
	chunkAxmlFile    = 0x0003
	chunkResourceIds = 0x0180

	chunkXmlNsStart  = 0x0100
	chunkXmlNsEnd    = 0x0101
	chunkXmlTagStart = 0x0102
	chunkXmlTagEnd   = 0x0103
	chunkXmlText     = 0x0104

	chunkHeaderSize = (2 + 2 + 4)

	// line number + comment reference
	nodeHeaderSize = (4 + 4)
)

var (
	// Not enough bytes left for a declared field or chunk.
	ErrTruncatedInput = errors.New("truncated input")

	// The root chunk is not a binary XML chunk, or chunk sizes contradict each other.
	ErrMalformedHeader = errors.New("malformed header")

	// A string index had to be resolved before the string pool chunk was parsed.
	ErrUninitializedStringPool = errors.New("string pool not initialized")

	// Some samples have manifest in plaintext, this is an error.
	ErrPlainTextManifest = fmt.Errorf("%w: xml is in plaintext, binary form expected", ErrMalformedHeader)
)

type chunkHeader struct {
	Type       uint16
	HeaderSize uint16
	Size       uint32

	// absolute offset of the chunk's first byte
	Start int
}

func (h chunkHeader) end() int {
	return h.Start + int(h.Size)
}

func chunkName(id uint16) string {
	switch id {
	case chunkNull:
		return "null"
	case chunkStringTable:
		return "string pool"
	case chunkAxmlFile:
		return "xml"
	case chunkResourceIds:
		return "resource map"
	case chunkXmlNsStart:
		return "start namespace"
	case chunkXmlNsEnd:
		return "end namespace"
	case chunkXmlTagStart:
		return "start element"
	case chunkXmlTagEnd:
		return "end element"
	case chunkXmlText:
		return "cdata"
	default:
		return fmt.Sprintf("unknown 0x%04x", id)
	}
}
