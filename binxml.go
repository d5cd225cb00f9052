package axml

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

const xmlDeclaration = `<?xml version="1.0" encoding="utf-8"?>`

// attribute record: namespace, name, raw value, typed value
const attrRecordSize = 3*4 + valueSize

// Decoder converts binary XML to text. The zero value is usable and logs nothing.
type Decoder struct {
	// Log receives debug traces of skipped and tolerated chunks. Can be nil.
	Log logrus.FieldLogger
}

type namespace struct {
	prefix string
	uri    string
}

type binxmlParseInfo struct {
	c   *cursor
	log logrus.FieldLogger

	strings     *StringPool
	resourceIds []uint32

	namespaces []namespace
	depth      int
	lines      []string
}

// Decode parses the binary XML in data and returns the textual document.
func Decode(data []byte) (string, error) {
	return (&Decoder{}).Decode(data)
}

// DecodeTo parses the binary XML in data and writes the textual document to w.
// Nothing is written when decoding fails.
func DecodeTo(w io.Writer, data []byte) error {
	return (&Decoder{}).DecodeTo(w, data)
}

func (d *Decoder) DecodeTo(w io.Writer, data []byte) error {
	out, err := d.Decode(data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func (d *Decoder) Decode(data []byte) (string, error) {
	x := binxmlParseInfo{
		c:   newCursor(data),
		log: d.Log,
	}
	if x.log == nil {
		x.log = discardLogger()
	}

	if err := x.parse(); err != nil {
		return "", err
	}

	x.log.WithFields(logrus.Fields{
		"strings":     x.strings.Len(),
		"resourceIds": len(x.resourceIds),
		"lines":       len(x.lines),
	}).Debug("binary xml decoded")

	return xmlDeclaration + "\n" + strings.Join(x.lines, "\n") + "\n", nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (x *binxmlParseInfo) parse() error {
	if isPlainText(x.c.buf) {
		return ErrPlainTextManifest
	}

	root, err := x.c.chunkHeader()
	if err != nil {
		return fmt.Errorf("error parsing root header: %w", err)
	}

	if root.Type != chunkAxmlFile {
		return fmt.Errorf("%w: invalid top chunk id 0x%04x, expected 0x%04x", ErrMalformedHeader, root.Type, chunkAxmlFile)
	}

	if root.HeaderSize < chunkHeaderSize {
		return fmt.Errorf("%w: root header size %d", ErrMalformedHeader, root.HeaderSize)
	}

	if err := x.c.skipTo(root.Start + int(root.HeaderSize)); err != nil {
		return fmt.Errorf("error skipping root header: %w", err)
	}

	for x.c.remaining() != 0 {
		h, err := x.c.chunkHeader()
		if err != nil {
			return fmt.Errorf("error parsing header at 0x%08x: %w", h.Start, err)
		}

		if err := x.parseChunk(h); err != nil {
			return fmt.Errorf("chunk %s at 0x%08x: %w", chunkName(h.Type), h.Start, err)
		}
	}
	return nil
}

func isPlainText(data []byte) bool {
	return bytes.HasPrefix(data, []byte("<?xml ")) || bytes.HasPrefix(data, []byte("<manif"))
}

func (x *binxmlParseInfo) parseChunk(h chunkHeader) error {
	// anything smaller would never advance the cursor
	if h.Size < chunkHeaderSize {
		return fmt.Errorf("%w: chunk size %d", ErrMalformedHeader, h.Size)
	}

	// unknown chunks are skipped by size alone
	if isKnownChunk(h.Type) && (h.HeaderSize < chunkHeaderSize || h.Size < uint32(h.HeaderSize)) {
		return fmt.Errorf("%w: header size %d, chunk size %d", ErrMalformedHeader, h.HeaderSize, h.Size)
	}

	if int64(h.Start)+int64(h.Size) > int64(len(x.c.buf)) {
		return fmt.Errorf("%w: chunk size %d exceeds the remaining %d bytes", ErrTruncatedInput, h.Size, len(x.c.buf)-h.Start)
	}

	var err error
	switch h.Type {
	case chunkStringTable:
		if x.strings != nil {
			x.log.WithField("offset", h.Start).Debug("ignoring additional string pool")
			break
		}
		x.strings, err = parseStringTable(x.c, h)
	case chunkResourceIds:
		err = x.parseResourceIds(h)
	case chunkXmlNsStart, chunkXmlNsEnd:
		err = x.parseNamespace(h)
	case chunkXmlTagStart:
		err = x.parseTagStart()
	case chunkXmlTagEnd:
		err = x.parseTagEnd()
	case chunkXmlText:
		err = x.parseText()
	default:
		x.log.WithFields(logrus.Fields{
			"type":   fmt.Sprintf("0x%04x", h.Type),
			"offset": h.Start,
			"size":   h.Size,
		}).Debug("skipping unknown chunk")
	}

	if err != nil {
		return err
	}
	return x.c.skipTo(h.end())
}

func isKnownChunk(id uint16) bool {
	switch id {
	case chunkStringTable, chunkResourceIds,
		chunkXmlNsStart, chunkXmlNsEnd,
		chunkXmlTagStart, chunkXmlTagEnd, chunkXmlText:
		return true
	}
	return false
}

func (x *binxmlParseInfo) requireStrings() error {
	if x.strings == nil {
		return ErrUninitializedStringPool
	}
	return nil
}

// skip line number and comment
func (x *binxmlParseInfo) skipNodeHeader() error {
	if err := x.c.skip(nodeHeaderSize); err != nil {
		return fmt.Errorf("error reading node header: %w", err)
	}
	return nil
}

func (x *binxmlParseInfo) parseResourceIds(h chunkHeader) error {
	if err := x.c.skipTo(h.Start + int(h.HeaderSize)); err != nil {
		return err
	}

	count := (h.Size - uint32(h.HeaderSize)) / 4
	for i := uint32(0); i < count; i++ {
		id, err := x.c.u32()
		if err != nil {
			return err
		}
		x.resourceIds = append(x.resourceIds, id)
	}
	return nil
}

func (x *binxmlParseInfo) parseNamespace(h chunkHeader) error {
	if err := x.requireStrings(); err != nil {
		return err
	}

	if err := x.skipNodeHeader(); err != nil {
		return err
	}

	prefixIdx, err := x.c.i32()
	if err != nil {
		return fmt.Errorf("error reading prefix idx: %w", err)
	}

	uriIdx, err := x.c.i32()
	if err != nil {
		return fmt.Errorf("error reading uri idx: %w", err)
	}

	if h.Type == chunkXmlNsStart {
		x.namespaces = append(x.namespaces, namespace{
			prefix: x.strings.Get(prefixIdx),
			uri:    x.strings.Get(uriIdx),
		})
		return nil
	}

	// Encoders sometimes emit unbalanced namespace ends, Android ignores those.
	if len(x.namespaces) == 0 {
		x.log.WithField("offset", h.Start).Debug("namespace end without start")
		return nil
	}
	x.namespaces = x.namespaces[:len(x.namespaces)-1]
	return nil
}

func (x *binxmlParseInfo) parseTagStart() error {
	if err := x.requireStrings(); err != nil {
		return err
	}

	if err := x.skipNodeHeader(); err != nil {
		return err
	}

	// element namespace, not rendered
	if _, err := x.c.i32(); err != nil {
		return fmt.Errorf("error reading namespace idx: %w", err)
	}

	nameIdx, err := x.c.i32()
	if err != nil {
		return fmt.Errorf("error reading name idx: %w", err)
	}

	// attribute start and size, attributes are always read back to back
	if err := x.c.skip(2 * 2); err != nil {
		return fmt.Errorf("error reading attribute layout: %w", err)
	}

	attrCount, err := x.c.u16()
	if err != nil {
		return fmt.Errorf("error reading attrCount: %w", err)
	}

	// idIndex, classIndex, styleIndex
	if err := x.c.skip(3 * 2); err != nil {
		return fmt.Errorf("error reading attribute indexes: %w", err)
	}

	var b strings.Builder
	b.WriteString(x.indent())
	b.WriteByte('<')
	b.WriteString(x.strings.Get(nameIdx))

	if x.depth == 0 {
		for _, ns := range x.namespaces {
			if ns.prefix != "" {
				fmt.Fprintf(&b, ` xmlns:%s="%s"`, ns.prefix, ns.uri)
			} else {
				fmt.Fprintf(&b, ` xmlns="%s"`, ns.uri)
			}
		}
	}

	for i := uint16(0); i < attrCount; i++ {
		attr, err := x.parseAttribute()
		if err != nil {
			return fmt.Errorf("error reading attribute %d: %w", i, err)
		}

		b.WriteByte(' ')
		if prefix := x.prefixFor(attr.Namespace); prefix != "" {
			b.WriteString(prefix)
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, `%s="%s"`, attr.Name, attr.Value)
	}

	b.WriteByte('>')
	x.lines = append(x.lines, b.String())
	x.depth++
	return nil
}

// Attribute is one decoded attribute of a start element.
type Attribute struct {
	Namespace string
	Name      string
	Value     string
}

func (x *binxmlParseInfo) parseAttribute() (attr Attribute, err error) {
	var nsIdx, nameIdx, rawIdx int32
	if nsIdx, err = x.c.i32(); err != nil {
		return
	}
	if nameIdx, err = x.c.i32(); err != nil {
		return
	}
	if rawIdx, err = x.c.i32(); err != nil {
		return
	}

	val, err := readValue(x.c)
	if err != nil {
		return
	}

	attr.Namespace = x.strings.Get(nsIdx)
	attr.Name = x.strings.Get(nameIdx)
	attr.Value = resolveValue(rawIdx, val, x.strings)
	return
}

// resolveValue prefers the raw string when the record carries one.
func resolveValue(rawIdx int32, val Value, pool *StringPool) string {
	if rawIdx != -1 {
		return pool.Get(rawIdx)
	}
	return val.String(pool)
}

// prefixFor returns the prefix of the innermost namespace bound to uri.
func (x *binxmlParseInfo) prefixFor(uri string) string {
	for i := len(x.namespaces) - 1; i >= 0; i-- {
		if x.namespaces[i].uri == uri {
			return x.namespaces[i].prefix
		}
	}
	return ""
}

func (x *binxmlParseInfo) parseTagEnd() error {
	if err := x.requireStrings(); err != nil {
		return err
	}

	if err := x.skipNodeHeader(); err != nil {
		return err
	}

	if _, err := x.c.i32(); err != nil {
		return fmt.Errorf("error reading namespace idx: %w", err)
	}

	nameIdx, err := x.c.i32()
	if err != nil {
		return fmt.Errorf("error reading name idx: %w", err)
	}

	if x.depth > 0 {
		x.depth--
	}
	x.lines = append(x.lines, x.indent()+"</"+x.strings.Get(nameIdx)+">")
	return nil
}

func (x *binxmlParseInfo) parseText() error {
	if err := x.requireStrings(); err != nil {
		return err
	}

	if err := x.skipNodeHeader(); err != nil {
		return err
	}

	idx, err := x.c.i32()
	if err != nil {
		return fmt.Errorf("error reading idx: %w", err)
	}

	if _, err := readValue(x.c); err != nil {
		return fmt.Errorf("error reading typed value: %w", err)
	}

	x.lines = append(x.lines, x.indent()+x.strings.Get(idx))
	return nil
}

func (x *binxmlParseInfo) indent() string {
	return strings.Repeat("  ", x.depth)
}
