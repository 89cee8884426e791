package pipeline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paragraphs makes n paragraphs of ten sentences, four words each
func paragraphs(n int) string {
	var paras []string
	for p := 0; p < n; p++ {
		var sentences []string
		for s := 0; s < 10; s++ {
			sentences = append(sentences, fmt.Sprintf("p%ds%d alpha beta gamma.", p, s))
		}
		paras = append(paras, strings.Join(sentences, " "))
	}
	return strings.Join(paras, "\n\n")
}

func TestWordCounter(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   \n\t ", 0},
		{"hello world", 2},
		{"hello,   world.\n\nnext paragraph", 4},
		{"你好世界", 4},
		{"podcast 你好 episode", 4},
		{"こんにちは", 5},
		{"한국어 text", 4},
		{"你好。世界！", 4},
		{"「你好」", 2},
		{"hello , world", 2},
		{"wait ... what?", 2},
		{"...", 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, WordCounter{}.Count(tt.text))
		})
	}
}

func TestBoundarySplitter_CJKPunctuation(t *testing.T) {
	s := BoundarySplitter{}
	assert.Equal(t, []string{"你好。", "世界！"}, s.Split("你好。世界！", 2, 0))
	assert.Equal(t, []string{"「你好」", "再见。"}, s.Split("「你好」\n\n再见。", 3, 0))
}

func TestBoundarySplitter_Short(t *testing.T) {
	s := BoundarySplitter{}
	assert.Nil(t, s.Split("  ", 10, 2))
	assert.Equal(t, []string{"one two three."}, s.Split("\n one two three.\n", 10, 2))
}

func TestBoundarySplitter_SentenceBoundaries(t *testing.T) {
	text := paragraphs(3) // 120 words, a sentence ends every 4 words
	windows := BoundarySplitter{}.Split(text, 25, 5)
	require.Greater(t, len(windows), 4)

	counter := WordCounter{}
	for i, w := range windows {
		assert.LessOrEqual(t, counter.Count(w), 25, "window %d too large", i)
		assert.True(t, strings.HasSuffix(w, "."), "window %d cut mid-sentence: %q", i, w)
		assert.True(t, strings.Contains(text, w), "window %d is not a slice of the text", i)
	}
	assert.True(t, strings.HasPrefix(text, windows[0]))
	assert.True(t, strings.HasSuffix(text, windows[len(windows)-1]))

	// each window starts with the last words of the previous one
	for i := 1; i < len(windows); i++ {
		firstWord := strings.Fields(windows[i])[0]
		assert.Contains(t, windows[i-1], firstWord, "no overlap between windows %d and %d", i-1, i)
	}
}

func TestBoundarySplitter_PrefersParagraphs(t *testing.T) {
	text := "one two three four five six seven eight\n\nnine ten eleven twelve"
	windows := BoundarySplitter{}.Split(text, 10, 0)
	require.Len(t, windows, 2)
	assert.Equal(t, "one two three four five six seven eight", windows[0])
	assert.Equal(t, "nine ten eleven twelve", windows[1])
}

func TestBoundarySplitter_NoBoundaries(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = fmt.Sprintf("w%03d", i)
	}
	text := strings.Join(words, " ")
	windows := BoundarySplitter{}.Split(text, 10, 2)

	seen := map[string]bool{}
	for i, w := range windows {
		fields := strings.Fields(w)
		assert.LessOrEqual(t, len(fields), 10, "window %d", i)
		for _, f := range fields {
			assert.Len(t, f, 4, "word split in window %d", i)
			seen[f] = true
		}
	}
	assert.Len(t, seen, 100, "every word is covered")
	assert.Len(t, windows, 13) // 10 new words in the first window, 8 in each next one
}

func TestBoundarySplitter_CJK(t *testing.T) {
	sentence := "今天我们讨论播客的内容。" // 12 runes, sentence end last
	text := strings.Repeat(sentence, 5)
	windows := BoundarySplitter{}.Split(text, 20, 2)
	require.Greater(t, len(windows), 2)
	for i, w := range windows {
		assert.LessOrEqual(t, WordCounter{}.Count(w), 20, "window %d", i)
		assert.True(t, strings.HasSuffix(w, "。"), "window %d: %q", i, w)
	}
}

func TestBoundarySplitter_OverlapClamped(t *testing.T) {
	text := strings.Repeat("word ", 50)
	windows := BoundarySplitter{}.Split(text, 10, 50)
	require.NotEmpty(t, windows)
	assert.Less(t, len(windows), 50, "overlap larger than half a window must not stall progress")
}
