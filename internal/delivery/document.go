// Package delivery renders transcripts into documents and sends them to the
// requester.
package delivery

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
)

// FallbackText replaces transcripts too short to be meaningful.
const FallbackText = "Error: Could not extract meaningful text from the content."

const minDocumentChars = 10

// Page layout in points, letter size.
const (
	marginSide   = 72
	marginTop    = 72
	marginBottom = 18
	titleSize    = 18
	bodySize     = 10
	bodyLeading  = 12
	titleSpacing = 30
)

// Document is a rendered transcript ready to attach.
type Document struct {
	Title       string
	Filename    string
	ContentType string
	Body        []byte
}

// Render lays text out as a PDF under a bold title. Null bytes are dropped
// and whitespace trimmed before the length check.
func Render(title, text string) (Document, error) {
	return render(title, text, true)
}

func render(title, text string, compress bool) (Document, error) {
	clean := strings.TrimSpace(strings.ReplaceAll(text, "\x00", ""))
	if utf8.RuneCountInString(clean) < minDocumentChars {
		clean = FallbackText
	}
	if title == "" {
		title = "Video Transcript"
	}

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetCompression(compress)
	pdf.SetTitle(title, true)
	pdf.SetCreator("video-transcriber", false)
	pdf.SetMargins(marginSide, marginTop, marginSide)
	pdf.SetAutoPageBreak(true, marginBottom)
	pdf.AddPage()

	// Core fonts are cp1252; runes outside it are replaced.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", titleSize)
	pdf.MultiCell(0, titleSize*1.2, tr(title), "", "C", false)
	pdf.Ln(titleSpacing)

	pdf.SetFont("Helvetica", "", bodySize)
	pdf.MultiCell(0, bodyLeading, tr(clean), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Document{}, fmt.Errorf("render pdf: %w", err)
	}

	return Document{
		Title:       title,
		Filename:    filename(title),
		ContentType: "application/pdf",
		Body:        buf.Bytes(),
	}, nil
}

// filename turns a title into a lower-case dashed .pdf name.
func filename(title string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			dash = false
		case !dash && sb.Len() > 0:
			sb.WriteByte('-')
			dash = true
		}
	}
	name := strings.TrimSuffix(sb.String(), "-")
	if name == "" {
		name = "transcript"
	}
	return name + ".pdf"
}
