package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Counter estimates the size of a text in the units the summarization engine is limited by
type Counter interface {
	Count(text string) int
}

// Splitter cuts a text into windows of at most size units, each overlapping the previous one
type Splitter interface {
	Split(text string, size, overlap int) []string
}

// WordCounter counts words, with every CJK character counted as a word of its own.
// CJK scripts carry no spaces and a character is close to one token.
type WordCounter struct{}

// Count returns the number of units in text
func (WordCounter) Count(text string) int {
	return len(tokenize(text))
}

// BoundarySplitter splits at the nearest paragraph or sentence boundary at or before the target
// window size, falling back to a word boundary when a window has no sentence end in its second half.
type BoundarySplitter struct{}

type boundary int

const (
	boundaryNone boundary = iota
	boundarySentence
	boundaryParagraph
)

// unit is one word or CJK character, addressed by byte offsets into the source text
type unit struct {
	start, end int
	after      boundary
}

// Split returns overlapping windows covering the whole text. Window text keeps the original formatting.
func (BoundarySplitter) Split(text string, size, overlap int) []string {
	units := tokenize(text)
	n := len(units)
	if n == 0 {
		return nil
	}
	size = max(size, 1)
	if n <= size {
		return []string{text[units[0].start:units[n-1].end]}
	}
	overlap = min(max(overlap, 0), size/2)

	var windows []string
	for start := 0; start < n; {
		end := start + size // exclusive
		if end >= n {
			windows = append(windows, text[units[start].start:units[n-1].end])
			break
		}

		cut := end - 1
		for c := end - 1; c >= start+size/2; c-- {
			if units[c].after != boundaryNone {
				cut = c
				break
			}
		}
		windows = append(windows, text[units[start].start:units[cut].end])

		next := cut + 1 - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return windows
}

// tokenize breaks text into units and marks the boundary following each one
func tokenize(text string) []unit {
	var units []unit
	wordStart := -1
	flush := func(end int) {
		if wordStart >= 0 {
			units = append(units, unit{start: wordStart, end: end})
			wordStart = -1
		}
	}

	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush(i)
		case isCJK(r):
			flush(i)
			units = append(units, unit{start: i, end: i + utf8.RuneLen(r)})
		default:
			if wordStart < 0 {
				wordStart = i
			}
		}
	}
	flush(len(text))
	units = attachPunct(text, units)

	for k := range units {
		u := &units[k]
		if k == len(units)-1 {
			u.after = boundaryParagraph
			continue
		}
		if strings.Count(text[u.end:units[k+1].start], "\n") >= 2 {
			u.after = boundaryParagraph
			continue
		}
		last, _ := utf8.DecodeLastRuneInString(text[u.start:u.end])
		if isSentenceEnd(last) {
			u.after = boundarySentence
		}
	}
	return units
}

// attachPunct folds punctuation-only units into the preceding unit of the same paragraph,
// or into the following one when there is none, so "。" or a lone "," never counts on its own
func attachPunct(text string, units []unit) []unit {
	res := make([]unit, 0, len(units))
	pending, pendingEnd := -1, -1 // leading punctuation waiting for the next unit
	for _, u := range units {
		if !punctOnly(text[u.start:u.end]) {
			if pending >= 0 {
				u.start, pending = pending, -1
			}
			res = append(res, u)
			continue
		}
		if n := len(res); n > 0 && pending < 0 && strings.Count(text[res[n-1].end:u.start], "\n") < 2 {
			res[n-1].end = u.end
			continue
		}
		if pending < 0 {
			pending = u.start
		}
		pendingEnd = u.end
	}
	if pending >= 0 && len(res) > 0 { // trailing punctuation after a paragraph break
		res[len(res)-1].end = pendingEnd
	}
	return res
}

func punctOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？', '"', '”', '»', '」', '』':
		return true
	}
	return false
}
