package verse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2314069/renku-app/models"
)

func TestNextType_EmptySequenceOpensWith575(t *testing.T) {
	assert.Equal(t, models.Type575, NextType(nil))
	assert.Equal(t, models.Type575, NextType([]models.Verse{}))
}

func TestNextType_StrictAlternation(t *testing.T) {
	verses := []models.Verse{}
	for i := 0; i < 8; i++ {
		next := NextType(verses)
		if len(verses) > 0 {
			last := verses[len(verses)-1].Type
			assert.NotEqual(t, last, next, "forms must alternate at position %d", i)
		}
		verses = append(verses, models.Verse{Type: next, Order: i + 1})
	}
	assert.Equal(t, models.Type575, verses[0].Type)
	assert.Equal(t, models.Type77, verses[1].Type)
	assert.Equal(t, models.Type575, verses[2].Type)
}

func TestCountChars_MultiByteText(t *testing.T) {
	assert.Equal(t, 5, CountChars("古池や蛙飛"))
	assert.Equal(t, 3, CountChars("abc"))
	// Decomposed か+゛ must count as one character after NFC.
	assert.Equal(t, 1, CountChars("が"))
}

func TestValidateLine(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		verseType string
		wantErr   bool
	}{
		{"575 at cap passes", strings.Repeat("あ", 17), models.Type575, false},
		{"575 over cap fails", strings.Repeat("あ", 18), models.Type575, true},
		{"77 at cap passes", strings.Repeat("あ", 14), models.Type77, false},
		{"77 over cap fails", strings.Repeat("あ", 15), models.Type77, true},
		{"whitespace only fails for 575", " \t　 ", models.Type575, true},
		{"whitespace only fails for 77", " \t　 ", models.Type77, true},
		{"empty fails", "", models.Type575, true},
		{"whitespace not counted", "ふる いけ や", models.Type575, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLine(tt.text, tt.verseType)
			if tt.wantErr {
				require.Error(t, err)
				var vErr *ValidationError
				assert.ErrorAs(t, err, &vErr)
				assert.NotEmpty(t, vErr.Reason)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDetectSeasonWord(t *testing.T) {
	word, ok := DetectSeasonWord("山の紅葉が美しい")
	require.True(t, ok)
	assert.Equal(t, "紅葉", word)

	word, ok = DetectSeasonWord("蛙飛び込む水の音")
	assert.False(t, ok)
	assert.Empty(t, word)
}

func TestDetectSeasonWord_BucketOrder(t *testing.T) {
	// 桜 (spring) is listed before 雪 (winter), so it wins in mixed text.
	word, ok := DetectSeasonWord("雪の中の桜")
	require.True(t, ok)
	assert.Equal(t, "桜", word)
}

func TestCheckTaboo_RepeatedTermRejected(t *testing.T) {
	existing := []models.Verse{{Text: "梅の花咲く"}}

	err := CheckTaboo(existing, "月夜に花を見る", false)
	require.Error(t, err)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Reason, "花")
}

func TestCheckTaboo_OpeningVerseExempt(t *testing.T) {
	existing := []models.Verse{{Text: "梅の花咲く"}}
	assert.NoError(t, CheckTaboo(existing, "月夜に花を見る", true))
}

func TestCheckTaboo_TermOnlyInCandidateAllowed(t *testing.T) {
	existing := []models.Verse{{Text: "風の音しみじみと"}}
	assert.NoError(t, CheckTaboo(existing, "月夜に花を見る", false))
}

func TestCheckTaboo_FirstOffendingTermNamed(t *testing.T) {
	// Candidate repeats both 月 and 花; 月 is checked first.
	existing := []models.Verse{{Text: "月の出を待つ"}, {Text: "花の香りかな"}}
	err := CheckTaboo(existing, "月夜に花を見る", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "月")
}
