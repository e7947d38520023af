package hl7

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	DefaultFieldSeparator     = "|"
	DefaultComponentSeparator = "^"
	DefaultEncodingCharacters = "^~\\&"

	// Segment separators supported by Parser.
	SeparatorCR = "\r"
	SeparatorLF = "\n"
)

var (
	ErrMissingHeader   = errors.New("MSH segmenti bulunamadı")
	ErrInvalidEncoding = errors.New("mesaj geçerli UTF-8 metin değil")
	ErrEmptyMessage    = errors.New("boş mesaj")
)

// Segment is one line of an HL7 message: a three character tag followed by
// its fields. Fields are addressed with the protocol's 1-based numbering.
type Segment struct {
	Type   string
	Fields []string

	fieldSep string
	compSep  string
}

// Field returns field n (1-based). Absent fields are empty.
//
// For MSH the field separator itself is MSH-1, so MSH-2 is the encoding
// characters and MSH-9 is the message type.
func (s Segment) Field(n int) string {
	idx := n - 1
	if s.Type == "MSH" {
		if n == 1 {
			return s.fieldSeparator()
		}
		idx = n - 2
	}
	if idx < 0 || idx >= len(s.Fields) {
		return ""
	}
	return s.Fields[idx]
}

// Component returns component c (1-based) of field n.
func (s Segment) Component(n, c int) string {
	return component(s.Field(n), s.componentSeparator(), c)
}

// Components splits field n by the component separator.
func (s Segment) Components(n int) []string {
	return strings.Split(s.Field(n), s.componentSeparator())
}

// String re-joins the segment with its field separator.
func (s Segment) String() string {
	if len(s.Fields) == 0 {
		return s.Type
	}
	sep := s.fieldSeparator()
	return s.Type + sep + strings.Join(s.Fields, sep)
}

func (s Segment) fieldSeparator() string {
	if s.fieldSep == "" {
		return DefaultFieldSeparator
	}
	return s.fieldSep
}

func (s Segment) componentSeparator() string {
	if s.compSep == "" {
		return DefaultComponentSeparator
	}
	return s.compSep
}

// Message is a parsed HL7 message. The first segment is always the MSH header.
type Message struct {
	Segments []Segment
}

// Header returns the MSH segment.
func (m *Message) Header() Segment {
	return m.Segments[0]
}

// Segment returns the first segment with the given tag.
func (m *Message) Segment(tag string) (Segment, bool) {
	for _, seg := range m.Segments {
		if seg.Type == tag {
			return seg, true
		}
	}
	return Segment{}, false
}

// SegmentsOf returns all segments with the given tag in message order.
func (m *Message) SegmentsOf(tag string) []Segment {
	var result []Segment
	for _, seg := range m.Segments {
		if seg.Type == tag {
			result = append(result, seg)
		}
	}
	return result
}

// Type returns MSH-9, e.g. "ORU^R01".
func (m *Message) Type() string { return m.Header().Field(9) }

// ControlID returns MSH-10.
func (m *Message) ControlID() string { return m.Header().Field(10) }

// Parser splits payloads into segments. The segment separator is fixed per
// deployment.
type Parser struct {
	SegmentSeparator string
}

// NewParser returns a parser using sep as the segment separator; an empty
// sep selects carriage return.
func NewParser(sep string) *Parser {
	if sep == "" {
		sep = SeparatorCR
	}
	return &Parser{SegmentSeparator: sep}
}

// Parse parses a payload into a Message.
func (p *Parser) Parse(payload []byte) (*Message, error) {
	if !utf8.Valid(payload) {
		return nil, ErrInvalidEncoding
	}

	text := strings.ReplaceAll(string(payload), "\r\n", p.separator())
	lines := strings.Split(text, p.separator())

	var segmentLines []string
	for _, line := range lines {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		segmentLines = append(segmentLines, line)
	}
	if len(segmentLines) == 0 {
		return nil, ErrEmptyMessage
	}

	header := segmentLines[0]
	if !strings.HasPrefix(header, "MSH") || len(header) < 4 {
		return nil, ErrMissingHeader
	}

	fieldSep := string(header[3])
	compSep := DefaultComponentSeparator
	if rest := header[4:]; rest != "" && !strings.HasPrefix(rest, fieldSep) {
		compSep = string(rest[0])
	}

	msg := &Message{Segments: make([]Segment, 0, len(segmentLines))}
	for _, line := range segmentLines {
		msg.Segments = append(msg.Segments, parseSegment(line, fieldSep, compSep))
	}
	return msg, nil
}

func (p *Parser) separator() string {
	if p.SegmentSeparator == "" {
		return SeparatorCR
	}
	return p.SegmentSeparator
}

// Join serializes a message back into a payload using sep.
func Join(m *Message, sep string) []byte {
	lines := make([]string, len(m.Segments))
	for i, seg := range m.Segments {
		lines[i] = seg.String()
	}
	return []byte(strings.Join(lines, sep))
}

// parseSegment never fails: unknown or truncated segments are kept as-is so
// handlers decide what is required.
func parseSegment(line, fieldSep, compSep string) Segment {
	parts := strings.Split(line, fieldSep)
	return Segment{
		Type:     parts[0],
		Fields:   parts[1:],
		fieldSep: fieldSep,
		compSep:  compSep,
	}
}

func component(value, sep string, c int) string {
	if c < 1 {
		return ""
	}
	parts := strings.Split(value, sep)
	if c > len(parts) {
		return ""
	}
	return parts[c-1]
}
