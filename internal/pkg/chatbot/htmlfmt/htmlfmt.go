// Package htmlfmt turns raw model answers into the HTML fragment the web
// client renders: newlines become <br> tags, long answers gain paragraph
// breaks before connective words, and bare URLs become safe anchor tags.
package htmlfmt

import (
	"net/url"
	"regexp"
	"strings"
)

const emptyAnswerMessage = "No answer generated. Please try again."

const paragraphBreak = "<br><br>"

// Connectives that usually open a new thought in generated answers. A
// paragraph break is inserted before each one unless it already follows one.
var connectives = []string{"Additionally,", "Furthermore,", "Moreover,", "However,"}

var urlPattern = regexp.MustCompile(`(https?://[^\s<>"')]+|www\.[^\s<>"')]+)`)

// SegmentKind discriminates tokenized answer segments.
type SegmentKind int

const (
	// SegmentText is plain prose subject to text formatting.
	SegmentText SegmentKind = iota
	// SegmentURL is a URL match; it is linked, never reformatted.
	SegmentURL
)

// Segment is one tokenized piece of an answer.
type Segment struct {
	Kind  SegmentKind
	Value string
}

// Tokenize splits s into an ordered sequence of text and URL segments.
// Concatenating the segment values reproduces s exactly.
func Tokenize(s string) []Segment {
	matches := urlPattern.FindAllStringIndex(s, -1)
	if len(matches) == 0 {
		if s == "" {
			return nil
		}
		return []Segment{{Kind: SegmentText, Value: s}}
	}

	var segments []Segment
	prev := 0
	for _, m := range matches {
		if m[0] > prev {
			segments = append(segments, Segment{Kind: SegmentText, Value: s[prev:m[0]]})
		}
		segments = append(segments, Segment{Kind: SegmentURL, Value: s[m[0]:m[1]]})
		prev = m[1]
	}
	if prev < len(s) {
		segments = append(segments, Segment{Kind: SegmentText, Value: s[prev:]})
	}

	return segments
}

// SanitizeURL normalizes a URL for use in an href attribute. Schemeless
// inputs (like "www.mqa.gov.my") get an https:// prefix; the path, query,
// and fragment are percent-encoded with their separators kept intact. The
// second return value is false when the input cannot yield a usable URL.
func SanitizeURL(raw string) (string, bool) {
	candidate := raw
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		candidate = "https://" + raw
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return "", false
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString(u.User.String())
		b.WriteString("@")
	}
	b.WriteString(u.Host)
	// Path and fragment come back decoded from Parse, so encoding them here
	// never double-escapes. RawQuery stays as written; '%' is kept literal
	// so pre-encoded queries survive unchanged.
	b.WriteString(percentEncode(u.Path, "/"))
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(percentEncode(u.RawQuery, "=&%"))
	}
	if u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(percentEncode(u.Fragment, ""))
	}

	return b.String(), true
}

// Format renders a model answer as an HTML fragment. Empty answers yield a
// fixed notice so the client never shows a blank bubble. Paragraph-break
// insertion is guarded: reformatting already-formatted text does not double
// the breaks.
func Format(answer string) string {
	if strings.TrimSpace(answer) == "" {
		return emptyAnswerMessage
	}

	var b strings.Builder
	for _, seg := range Tokenize(answer) {
		if seg.Kind == SegmentURL {
			b.WriteString(renderURL(seg.Value))
			continue
		}
		b.WriteString(formatText(seg.Value))
	}

	return b.String()
}

func renderURL(raw string) string {
	sanitized, ok := SanitizeURL(raw)
	if !ok {
		return raw
	}

	var b strings.Builder
	b.WriteString(`<a href="`)
	b.WriteString(sanitized)
	b.WriteString(`" target="_blank" rel="noopener noreferrer" style="color: #1a3e8c; text-decoration: underline; font-weight: 600;">`)
	b.WriteString(raw)
	b.WriteString(`</a>`)
	return b.String()
}

func formatText(s string) string {
	s = strings.ReplaceAll(s, "\n", "<br>")
	for _, c := range connectives {
		s = insertParagraphBreak(s, c)
	}
	return s
}

// insertParagraphBreak puts a paragraph break before every occurrence of
// connective that does not already follow one.
func insertParagraphBreak(s, connective string) string {
	var b strings.Builder
	start := 0
	for {
		idx := strings.Index(s[start:], connective)
		if idx < 0 {
			b.WriteString(s[start:])
			return b.String()
		}
		idx += start
		b.WriteString(s[start:idx])
		if !strings.HasSuffix(s[:idx], paragraphBreak) {
			b.WriteString(paragraphBreak)
		}
		b.WriteString(connective)
		start = idx + len(connective)
	}
}

func percentEncode(s, safe string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || strings.IndexByte(safe, c) >= 0 {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexUpper[c>>4])
		b.WriteByte(hexUpper[c&0x0f])
	}
	return b.String()
}

const hexUpper = "0123456789ABCDEF"

func isUnreserved(c byte) bool {
	return 'a' <= c && c <= 'z' ||
		'A' <= c && c <= 'Z' ||
		'0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
