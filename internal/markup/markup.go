// Package markup splits tutoring text into literal and math segments.
// Block math is delimited by $$...$$, inline math by $...$. Typesetting
// itself happens downstream; a span that fails to typeset is displayed as
// its raw content, so segments always carry the undecorated text.
package markup

import "strings"

type SegmentKind string

const (
	SegmentText       SegmentKind = "text"
	SegmentInlineMath SegmentKind = "inline"
	SegmentBlockMath  SegmentKind = "block"
)

type Segment struct {
	Kind    SegmentKind `json:"kind"`
	Content string      `json:"content"`
}

// Render splits text on paired math delimiters. Unmatched delimiters are
// kept as literal text, never as dangling math spans. Adjacent literal runs
// are coalesced into a single segment. The transform is pure and idempotent
// over its input.
func Render(text string) []Segment {
	if text == "" {
		return nil
	}

	var segments []Segment
	var literal strings.Builder

	flush := func() {
		if literal.Len() > 0 {
			segments = append(segments, Segment{Kind: SegmentText, Content: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(text); {
		if strings.HasPrefix(text[i:], "$$") {
			end := strings.Index(text[i+2:], "$$")
			if end >= 0 {
				flush()
				segments = append(segments, Segment{Kind: SegmentBlockMath, Content: text[i+2 : i+2+end]})
				i += 2 + end + 2
				continue
			}
			// No closing $$: the rest is literal.
			literal.WriteString(text[i:])
			break
		}

		if text[i] == '$' {
			end := strings.IndexByte(text[i+1:], '$')
			if end >= 0 {
				flush()
				segments = append(segments, Segment{Kind: SegmentInlineMath, Content: text[i+1 : i+1+end]})
				i += 1 + end + 1
				continue
			}
			literal.WriteString(text[i:])
			break
		}

		literal.WriteByte(text[i])
		i++
	}

	flush()
	return segments
}
