package axml

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// axmlBuilder assembles binary XML documents for tests. Strings are interned
// as chunks are added and the pool is laid out when bytes() is called.
type axmlBuilder struct {
	utf8     bool
	omitPool bool
	strs     []string
	index    map[string]int32
	chunks   [][]byte
	resIds   []uint32
}

type testAttr struct {
	ns, name string
	raw      *string
	typ      uint8
	data     uint32
}

func rawAttr(ns, name, value string) testAttr {
	return testAttr{ns: ns, name: name, raw: &value, typ: AttrTypeString}
}

func typedAttr(ns, name string, typ uint8, data uint32) testAttr {
	return testAttr{ns: ns, name: name, typ: typ, data: data}
}

func newBuilder(utf8 bool) *axmlBuilder {
	return &axmlBuilder{utf8: utf8, index: make(map[string]int32)}
}

// str interns s, the empty string stands for "no string".
func (b *axmlBuilder) str(s string) int32 {
	if s == "" {
		return -1
	}
	if idx, ok := b.index[s]; ok {
		return idx
	}
	b.strs = append(b.strs, s)
	b.index[s] = int32(len(b.strs) - 1)
	return b.index[s]
}

func le16(b []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(b, v) }
func le32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }
func lei32(b []byte, v int32) []byte { return le32(b, uint32(v)) }

func makeChunk(typ, headerSize uint16, body []byte) []byte {
	out := le16(nil, typ)
	out = le16(out, headerSize)
	out = le32(out, uint32(chunkHeaderSize+len(body)))
	return append(out, body...)
}

func (b *axmlBuilder) node(typ uint16, ext []byte) *axmlBuilder {
	body := le32(nil, 1)
	body = le32(body, 0xFFFFFFFF)
	b.chunks = append(b.chunks, makeChunk(typ, chunkHeaderSize+nodeHeaderSize, append(body, ext...)))
	return b
}

func (b *axmlBuilder) startNs(prefix, uri string) *axmlBuilder {
	return b.node(chunkXmlNsStart, lei32(lei32(nil, b.str(prefix)), b.str(uri)))
}

func (b *axmlBuilder) endNs(prefix, uri string) *axmlBuilder {
	return b.node(chunkXmlNsEnd, lei32(lei32(nil, b.str(prefix)), b.str(uri)))
}

func (b *axmlBuilder) start(name string, attrs ...testAttr) *axmlBuilder {
	ext := lei32(nil, -1)
	ext = lei32(ext, b.str(name))
	ext = le16(ext, 20)
	ext = le16(ext, attrRecordSize)
	ext = le16(ext, uint16(len(attrs)))
	ext = le16(le16(le16(ext, 0), 0), 0)

	for _, a := range attrs {
		rawIdx := int32(-1)
		data := a.data
		if a.raw != nil {
			rawIdx = b.str(*a.raw)
			if a.typ == AttrTypeString {
				data = uint32(rawIdx)
			}
		}
		ext = lei32(ext, b.str(a.ns))
		ext = lei32(ext, b.str(a.name))
		ext = lei32(ext, rawIdx)
		ext = le16(ext, valueSize)
		ext = append(ext, 0, a.typ)
		ext = le32(ext, data)
	}
	return b.node(chunkXmlTagStart, ext)
}

func (b *axmlBuilder) end(name string) *axmlBuilder {
	return b.node(chunkXmlTagEnd, lei32(lei32(nil, -1), b.str(name)))
}

func (b *axmlBuilder) text(s string) *axmlBuilder {
	idx := b.str(s)
	ext := lei32(nil, idx)
	ext = le16(ext, valueSize)
	ext = append(ext, 0, AttrTypeString)
	ext = lei32(ext, idx)
	return b.node(chunkXmlText, ext)
}

func (b *axmlBuilder) raw(chunk []byte) *axmlBuilder {
	b.chunks = append(b.chunks, chunk)
	return b
}

func (b *axmlBuilder) resourceIds(ids ...uint32) *axmlBuilder {
	b.resIds = ids
	return b
}

func (b *axmlBuilder) bytes() []byte {
	var body []byte
	if !b.omitPool {
		body = append(body, encodeStringPool(b.strs, b.utf8)...)
	}
	if b.resIds != nil {
		var ids []byte
		for _, id := range b.resIds {
			ids = le32(ids, id)
		}
		body = append(body, makeChunk(chunkResourceIds, chunkHeaderSize, ids)...)
	}
	for _, c := range b.chunks {
		body = append(body, c...)
	}
	return makeChunk(chunkAxmlFile, chunkHeaderSize, body)
}

func encodeLen8(buf *bytes.Buffer, n int) {
	if n < 0x80 {
		buf.WriteByte(byte(n))
		return
	}
	buf.WriteByte(0x80 | byte(n>>7))
	buf.WriteByte(byte(n & 0x7F))
}

func encodeLen16(buf *bytes.Buffer, n int) {
	if n < 0x8000 {
		buf.Write(le16(nil, uint16(n)))
		return
	}
	buf.Write(le16(nil, 0x8000|uint16(n>>16)))
	buf.Write(le16(nil, uint16(n)))
}

// encodeStringPool lays out strs as a string pool chunk. UTF-8 strings are
// written byte for byte, so invalid sequences can be stored on purpose.
func encodeStringPool(strs []string, utf8 bool) []byte {
	var data bytes.Buffer
	offsets := make([]uint32, len(strs))
	for i, s := range strs {
		offsets[i] = uint32(data.Len())
		if utf8 {
			encodeLen8(&data, len(utf16.Encode([]rune(s))))
			encodeLen8(&data, len(s))
			data.WriteString(s)
			data.WriteByte(0)
		} else {
			units := utf16.Encode([]rune(s))
			encodeLen16(&data, len(units))
			for _, u := range units {
				data.Write(le16(nil, u))
			}
			data.Write([]byte{0, 0})
		}
	}
	for data.Len()%4 != 0 {
		data.WriteByte(0)
	}

	var flags uint32
	if utf8 {
		flags = stringFlagUtf8
	}

	body := le32(nil, uint32(len(strs)))
	body = le32(body, 0)
	body = le32(body, flags)
	body = le32(body, uint32(stringPoolHeaderSize+4*len(strs)))
	body = le32(body, 0)
	for _, off := range offsets {
		body = le32(body, off)
	}
	body = append(body, data.Bytes()...)
	return makeChunk(chunkStringTable, stringPoolHeaderSize, body)
}
