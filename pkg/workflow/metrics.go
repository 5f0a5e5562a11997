package workflow

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	longSentenceWords = 25
	complexWordRunes  = 12
)

// Complexity counts constructs that make text harder to read.
type Complexity struct {
	LongSentences int `json:"long_sentences"`
	ComplexWords  int `json:"complex_words"`
}

// ContentMetrics describes a piece of text.
type ContentMetrics struct {
	WordCount           int        `json:"word_count"`
	SentenceCount       int        `json:"sentence_count"`
	AvgWordsPerSentence float64    `json:"avg_words_per_sentence"`
	Complexity          Complexity `json:"complexity_indicators"`
	ReadabilityScore    float64    `json:"readability_score"`
}

// Measure computes word and sentence statistics for content. Sentences are the pieces
// between periods, so text without a period is one sentence.
func Measure(content string) ContentMetrics {
	words := strings.Fields(content)
	sentences := strings.Split(content, ".")

	m := ContentMetrics{
		WordCount:           len(words),
		SentenceCount:       len(sentences),
		AvgWordsPerSentence: float64(len(words)) / float64(len(sentences)),
		ReadabilityScore:    Readability(content),
	}
	for _, s := range sentences {
		if len(strings.Fields(s)) > longSentenceWords {
			m.Complexity.LongSentences++
		}
	}
	for _, w := range words {
		if utf8.RuneCountInString(w) > complexWordRunes {
			m.Complexity.ComplexWords++
		}
	}
	return m
}

// Readability returns the Flesch-Kincaid grade level of content rounded to two decimals,
// or 0 for empty text.
func Readability(content string) float64 {
	words := strings.Fields(content)
	if len(words) == 0 {
		return 0
	}
	sentences := len(strings.Split(content, "."))

	syllables := 0
	for _, w := range words {
		syllables += Syllables(w)
	}

	score := 0.39*(float64(len(words))/float64(sentences)) +
		11.8*(float64(syllables)/float64(len(words))) -
		15.59
	return round(score, 2)
}

// Syllables estimates the syllables in word by counting vowel groups. A trailing "e" is
// silent. Every word has at least one syllable.
func Syllables(word string) int {
	word = strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range word {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	if strings.HasSuffix(word, "e") {
		count--
	}
	if count <= 0 {
		count = 1
	}
	return count
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
