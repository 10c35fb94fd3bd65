// Package verse holds the linked-verse rules: form alternation, line
// validation, season-word detection and the taboo-word policy. Everything
// here is pure; no store or network access.
package verse

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/2314069/renku-app/models"
)

// ValidationError reports why a candidate line was rejected. It never
// represents an infrastructure problem.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Length caps after whitespace removal.
const (
	max575 = 17
	max77  = 14
)

// NextType returns the form required of the next verse: 5-7-5 opens the
// sequence, then the two forms strictly alternate.
func NextType(verses []models.Verse) string {
	if len(verses) == 0 {
		return models.Type575
	}
	if verses[len(verses)-1].Type == models.Type575 {
		return models.Type77
	}
	return models.Type575
}

// CountChars counts characters the way a reader would: the text is
// NFC-normalized so composed and decomposed forms measure the same, then
// runes are counted. Byte length is never used.
func CountChars(text string) int {
	return utf8.RuneCountInString(norm.NFC.String(text))
}

func stripSpace(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
}

// ValidateLine checks a candidate line against the length rule of the given
// form. The line must be non-empty after whitespace removal; 5-7-5 lines may
// hold up to 17 characters, 7-7 lines up to 14.
func ValidateLine(text, verseType string) error {
	count := CountChars(stripSpace(text))
	if count == 0 {
		return &ValidationError{Reason: "verse text must not be empty"}
	}
	switch verseType {
	case models.Type575:
		if count > max575 {
			return &ValidationError{Reason: fmt.Sprintf("5-7-5 verses are limited to %d characters", max575)}
		}
	case models.Type77:
		if count > max77 {
			return &ValidationError{Reason: fmt.Sprintf("7-7 verses are limited to %d characters", max77)}
		}
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown verse type %q", verseType)}
	}
	return nil
}

// seasonWords is the abbreviated saijiki the app ships with. Buckets are
// scanned in calendar order, entries in listed order; the first entry
// contained in the text wins.
var seasonWords = [][]string{
	{"春", "桜", "花見", "新緑", "若葉", "菜の花", "つばめ", "うぐいす"}, // spring
	{"夏", "暑", "涼", "風鈴", "扇", "団扇", "蝉", "蛍", "花火"},   // summer
	{"秋", "紅葉", "月", "菊", "稲", "柿", "雁", "鹿", "霧"},     // autumn
	{"冬", "雪", "寒", "梅", "椿", "霜", "氷", "枯", "炉"},      // winter
}

// DetectSeasonWord scans the text for seasonal vocabulary and returns the
// first entry found. Detection is advisory auto-tagging; a miss is not an
// error.
func DetectSeasonWord(text string) (string, bool) {
	for _, bucket := range seasonWords {
		for _, w := range bucket {
			if strings.Contains(text, w) {
				return w, true
			}
		}
	}
	return "", false
}

// tabooWords may each appear only once across a renku. The opening verse is
// exempt from the rule.
var tabooWords = []string{"月", "花", "雪", "桜"}

// CheckTaboo rejects a candidate that repeats a taboo term already present
// in an earlier verse. The first offending term determines the message.
func CheckTaboo(verses []models.Verse, candidate string, isOpening bool) error {
	if isOpening {
		return nil
	}
	for _, taboo := range tabooWords {
		if !strings.Contains(candidate, taboo) {
			continue
		}
		for _, v := range verses {
			if strings.Contains(v.Text, taboo) {
				return &ValidationError{Reason: fmt.Sprintf("taboo word %q has already been used", taboo)}
			}
		}
	}
	return nil
}
