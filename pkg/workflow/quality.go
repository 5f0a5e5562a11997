package workflow

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Grade level above which text is considered hard to read.
const targetGrade = 12.0

const minCompleteWords = 50

// QualityReport scores a finished document. Scores other than QualityScore are in [0,1];
// QualityScore is in [0,100]. ReadabilityScore is a grade level.
type QualityReport struct {
	QualityScore      float64        `json:"quality_score"`
	ReadabilityScore  float64        `json:"readability_score"`
	ConsistencyScore  float64        `json:"consistency_score"`
	CompletenessScore float64        `json:"completeness_score"`
	Suggestions       []string       `json:"suggestions"`
	Metrics           ContentMetrics `json:"metrics"`
}

// QualityChecker scores content with deterministic text heuristics.
type QualityChecker struct{}

// NewQualityChecker returns a QualityChecker.
func NewQualityChecker() *QualityChecker {
	return &QualityChecker{}
}

// Check scores content.
func (QualityChecker) Check(ctx context.Context, content string) (QualityReport, error) {
	if err := ctx.Err(); err != nil {
		return QualityReport{}, err //nolint:wrapcheck // context error
	}

	metrics := Measure(content)
	consistency := consistencyScore(content)
	completeness, missing := completenessScore(content, metrics)
	fit := readabilityFit(metrics.ReadabilityScore)

	suggestions := append([]string{}, missing...)
	if metrics.Complexity.LongSentences > 0 {
		suggestions = append(suggestions,
			fmt.Sprintf("Split %d sentences longer than %d words", metrics.Complexity.LongSentences, longSentenceWords))
	}
	if metrics.ReadabilityScore > targetGrade {
		suggestions = append(suggestions,
			fmt.Sprintf("Simplify wording: grade level %.1f is above %.0f", metrics.ReadabilityScore, targetGrade))
	}
	if consistency < 1 {
		suggestions = append(suggestions, "Start every sentence with a capital letter")
	}

	return QualityReport{
		QualityScore:      round(100*(consistency+completeness+fit)/3, 1),
		ReadabilityScore:  metrics.ReadabilityScore,
		ConsistencyScore:  consistency,
		CompletenessScore: completeness,
		Suggestions:       suggestions,
		Metrics:           metrics,
	}, nil
}

// consistencyScore is the share of sentences that start with an upper-case letter or a
// non-letter.
func consistencyScore(content string) float64 {
	total, ok := 0, 0
	for _, s := range strings.Split(content, ".") {
		s = strings.TrimLeft(strings.TrimSpace(s), "#*->` ")
		if s == "" {
			continue
		}
		total++
		first := []rune(s)[0]
		if !unicode.IsLetter(first) || unicode.IsUpper(first) {
			ok++
		}
	}
	if total == 0 {
		return 0
	}
	return round(float64(ok)/float64(total), 2)
}

// completenessScore checks for headings, examples, a minimum length and the absence of
// placeholder markers. It returns the passing share and a suggestion per failed check.
func completenessScore(content string, metrics ContentMetrics) (float64, []string) {
	lower := strings.ToLower(content)
	checks := []struct {
		ok         bool
		suggestion string
	}{
		{Analyze(content).Structure.Headings > 0, "Add headings to organize the content"},
		{strings.Contains(content, "```") || strings.Contains(lower, "example"), "Add an example"},
		{metrics.WordCount >= minCompleteWords, fmt.Sprintf("Expand the content to at least %d words", minCompleteWords)},
		{!strings.Contains(content, "TODO") && !strings.Contains(content, "TBD"), "Resolve TODO/TBD placeholders"},
	}

	passed := 0
	var missing []string
	for _, c := range checks {
		if c.ok {
			passed++
			continue
		}
		missing = append(missing, c.suggestion)
	}
	return round(float64(passed)/float64(len(checks)), 2), missing
}

// readabilityFit maps a grade level to [0,1]: 1 up to the target grade, falling to 0 at
// twice the target.
func readabilityFit(grade float64) float64 {
	if grade <= targetGrade {
		return 1
	}
	fit := 1 - (grade-targetGrade)/targetGrade
	if fit < 0 {
		return 0
	}
	return fit
}
