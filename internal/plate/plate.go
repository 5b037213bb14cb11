// Package plate holds the text-side logic applied to OCR output.
package plate

import (
	"regexp"

	"github.com/lehigh-university-libraries/platereader/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var nonPlateChars = regexp.MustCompile(`[^A-Z0-9]`)

// Normalize uppercases text with full Unicode case mapping (so "ß" becomes
// "SS") and strips everything outside [A-Z0-9].
func Normalize(text string) string {
	upper := cases.Upper(language.Und).String(text)
	return nonPlateChars.ReplaceAllString(upper, "")
}

// SelectBest returns the candidate with the highest confidence.
// On equal confidence the earliest candidate wins.
func SelectBest(candidates []models.OCRCandidate) (models.OCRCandidate, bool) {
	if len(candidates) == 0 {
		return models.OCRCandidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}
