package captions

import (
	"strings"

	"golang.org/x/net/html"
)

// cleanSegment strips markup, decodes entities and collapses whitespace.
func cleanSegment(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// <br> separates words
			if name, _ := z.TagName(); string(name) == "br" {
				b.WriteByte(' ')
			}
		}
	}
}

// joinSegments cleans each segment, drops empty ones and joins the rest with
// single spaces.
func joinSegments(segments []string) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := cleanSegment(seg); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
