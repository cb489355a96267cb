// Package language tags decoded transcripts with their language.
package language

import (
	"fmt"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// minRunes is the shortest text worth classifying.
const minRunes = 20

// Detector wraps a lingua detector restricted to the configured languages.
// It is safe for concurrent use.
type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector over ISO 639-1 codes. An empty list means every
// language lingua knows.
func New(codes []string) (*Detector, error) {
	builder := lingua.NewLanguageDetectorBuilder()
	if len(codes) == 0 {
		return &Detector{detector: builder.FromAllLanguages().Build()}, nil
	}
	if len(codes) < 2 {
		return nil, fmt.Errorf("language: need at least two languages, got %v", codes)
	}

	isoCodes := make([]lingua.IsoCode639_1, 0, len(codes))
	for _, c := range codes {
		iso := lingua.GetIsoCode639_1FromValue(strings.TrimSpace(c))
		if iso == lingua.UnknownIsoCode639_1 {
			return nil, fmt.Errorf("language: unknown ISO 639-1 code %q", c)
		}
		isoCodes = append(isoCodes, iso)
	}
	return &Detector{detector: builder.FromIsoCodes639_1(isoCodes...).WithMinimumRelativeDistance(0.1).Build()}, nil
}

// Detect returns the lower-case ISO 639-1 code of text. Short or ambiguous
// text yields false.
func (d *Detector) Detect(text string) (string, bool) {
	if len([]rune(strings.TrimSpace(text))) < minRunes {
		return "", false
	}
	lang, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}
