// Package x12 implements the minimal X12 270/271 eligibility transaction
// pair: encoding a typed inquiry into ordered segments and decoding a raw
// payer response back into segments. It is not a general X12 library.
package x12

import (
	"fmt"
	"strings"
	"time"
)

const (
	// SegmentTerminator separates segments in the raw transmission.
	SegmentTerminator = "~"
	// ElementSeparator separates elements within a segment.
	ElementSeparator = "*"
)

// Segment is the atomic unit of the wire format: a tag followed by an
// ordered list of elements.
type Segment struct {
	Tag      string
	Elements []string
}

// Transaction is an ordered sequence of segments representing one inquiry
// or response.
type Transaction struct {
	Segments []Segment
}

// Element returns a segment element by 1-based position, or "" when the
// position is beyond the encoded elements.
func (s *Segment) Element(index int) string {
	idx := index - 1
	if idx < 0 || idx >= len(s.Elements) {
		return ""
	}
	return s.Elements[idx]
}

// Segment returns the first segment with the given tag, or nil.
func (t *Transaction) Segment(tag string) *Segment {
	for i := range t.Segments {
		if t.Segments[i].Tag == tag {
			return &t.Segments[i]
		}
	}
	return nil
}

// SegmentsByTag returns all segments with the given tag, in order.
func (t *Transaction) SegmentsByTag(tag string) []Segment {
	var result []Segment
	for _, seg := range t.Segments {
		if seg.Tag == tag {
			result = append(result, seg)
		}
	}
	return result
}

// Marshal renders the transaction to its wire form. Trailing empty elements
// are kept as encoded so positional fields survive a round trip.
func (t *Transaction) Marshal() []byte {
	var b strings.Builder
	for _, seg := range t.Segments {
		b.WriteString(seg.Tag)
		for _, el := range seg.Elements {
			b.WriteString(ElementSeparator)
			b.WriteString(el)
		}
		b.WriteString(SegmentTerminator)
	}
	return []byte(b.String())
}

// Decode splits a raw transmission into segments. Unknown segment tags are
// preserved so downstream extractors can scan for what they need. Whitespace
// around segments (newlines some clearinghouses insert) is tolerated.
func Decode(raw []byte) (*Transaction, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("x12: transmission is empty")
	}

	parts := strings.Split(string(raw), SegmentTerminator)

	tx := &Transaction{}
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		elements := strings.Split(part, ElementSeparator)
		tag := elements[0]
		if tag == "" {
			return nil, fmt.Errorf("x12: segment with empty tag: %q", part)
		}
		tx.Segments = append(tx.Segments, Segment{Tag: tag, Elements: elements[1:]})
	}

	if len(tx.Segments) == 0 {
		return nil, fmt.Errorf("x12: no segments found")
	}

	return tx, nil
}

// ParseDate parses an X12 D8 date (CCYYMMDD).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("x12: unrecognized date format: %q", s)
	}
	return time.Parse("20060102", s)
}

// FormatDate renders a time as an X12 D8 date (CCYYMMDD).
func FormatDate(t time.Time) string {
	return t.Format("20060102")
}
