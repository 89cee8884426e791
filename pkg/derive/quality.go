package derive

import (
	"fmt"
	"strings"
	"unicode"
)

// RepetitionChecker flags text dominated by a repeated phrase, the usual shape of a
// transcription engine looping on silence or music.
type RepetitionChecker struct {
	MinUnits  int     // texts shorter than this are not judged, default 50
	NGram     int     // phrase length in words, default 4
	MaxShare  float64 // max share of all phrases taken by the most frequent one, default 0.3
	MinUnique float64 // min share of distinct words, default 0.05
}

// Check returns an error describing why the text looks like garbage
func (c RepetitionChecker) Check(text string) error {
	minUnits, n, maxShare, minUnique := c.MinUnits, c.NGram, c.MaxShare, c.MinUnique
	if minUnits <= 0 {
		minUnits = 50
	}
	if n <= 0 {
		n = 4
	}
	if maxShare <= 0 {
		maxShare = 0.3
	}
	if minUnique <= 0 {
		minUnique = 0.05
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsNumber(r) })
	if len(words) < minUnits || len(words) < n {
		return nil
	}

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	if share := float64(len(unique)) / float64(len(words)); share < minUnique {
		return fmt.Errorf("only %d distinct words in %d", len(unique), len(words))
	}

	grams := make(map[string]int)
	top, topGram := 0, ""
	for i := 0; i+n <= len(words); i++ {
		g := strings.Join(words[i:i+n], " ")
		grams[g]++
		if grams[g] > top {
			top, topGram = grams[g], g
		}
	}
	total := len(words) - n + 1
	if share := float64(top) / float64(total); share > maxShare {
		return fmt.Errorf("phrase %q repeats %d times in %d", topGram, top, total)
	}
	return nil
}
