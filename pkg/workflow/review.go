package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"docflow/pkg/agent"
	"docflow/pkg/cache"
	"docflow/pkg/logx"
)

const reviewPrompt = `You are an expert documentation reviewer. Analyze the provided content and provide structured feedback in the following format:

TECHNICAL_ACCURACY:
- List any technical inaccuracies or unclear explanations

STYLE_AND_CLARITY:
- Identify style, tone and clarity issues

STRUCTURE_AND_ORGANIZATION:
- Evaluate the logical flow and identify missing sections

COMPLETENESS:
- Identify missing information

ACTIONABLE_SUGGESTIONS:
- Provide specific, actionable improvements`

// Feedback is the structured form of a review response.
type Feedback struct {
	TechnicalIssues    []string `json:"technical_issues"`
	StyleIssues        []string `json:"style_issues"`
	StructureIssues    []string `json:"structure_issues"`
	CompletenessIssues []string `json:"completeness_issues"`
	Suggestions        []string `json:"suggestions"`
}

// Issues returns every non-suggestion item.
func (f Feedback) Issues() []string {
	out := make([]string, 0, len(f.TechnicalIssues)+len(f.StyleIssues)+len(f.StructureIssues)+len(f.CompletenessIssues))
	out = append(out, f.TechnicalIssues...)
	out = append(out, f.StyleIssues...)
	out = append(out, f.StructureIssues...)
	return append(out, f.CompletenessIssues...)
}

// ParseFeedback splits a review response into sections. A line ending in ":" selects the
// section by keyword; "-" lines are items of the current section. Anything else is ignored.
func ParseFeedback(response string) Feedback {
	fb := Feedback{
		TechnicalIssues:    []string{},
		StyleIssues:        []string{},
		StructureIssues:    []string{},
		CompletenessIssues: []string{},
		Suggestions:        []string{},
	}

	var current *[]string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, ":") {
			name := strings.ToLower(strings.TrimSuffix(line, ":"))
			switch {
			case strings.Contains(name, "technical"):
				current = &fb.TechnicalIssues
			case strings.Contains(name, "style"):
				current = &fb.StyleIssues
			case strings.Contains(name, "structure"):
				current = &fb.StructureIssues
			case strings.Contains(name, "complete"):
				current = &fb.CompletenessIssues
			case strings.Contains(name, "action"):
				current = &fb.Suggestions
			}
			continue
		}

		if current != nil && strings.HasPrefix(line, "-") {
			*current = append(*current, strings.TrimSpace(line[1:]))
		}
	}
	return fb
}

// StyleIssue is one finding from the style checker.
type StyleIssue struct {
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	Severity    string   `json:"severity"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
}

// StyleReport is the result of a style check.
type StyleReport struct {
	QualityScore *float64      `json:"quality_score"`
	Issues       []StyleIssue   `json:"issues"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// StyleChecker is an external style-checking service.
type StyleChecker interface {
	Check(ctx context.Context, content, reference string) (StyleReport, error)
}

// ReviewAgent reviews content with the completion service and, when configured, a style
// checker whose reports are cached per content hash.
type ReviewAgent struct {
	completer agent.Completer
	checker   StyleChecker
	cache     *cache.Cache
	responses *cache.Cache
	logger    *logx.Logger
}

// ReviewOption configures a ReviewAgent.
type ReviewOption func(*ReviewAgent)

// WithStyleChecker adds a style checker. Reports are cached in c when it is non-nil.
func WithStyleChecker(checker StyleChecker, c *cache.Cache) ReviewOption {
	return func(r *ReviewAgent) {
		r.checker = checker
		r.cache = c
	}
}

// WithResponseCache keeps completion feedback under review:{prompt hash}.
func WithResponseCache(c *cache.Cache) ReviewOption {
	return func(r *ReviewAgent) { r.responses = c }
}

// NewReviewAgent creates a review step.
func NewReviewAgent(completer agent.Completer, opts ...ReviewOption) *ReviewAgent {
	r := &ReviewAgent{completer: completer, logger: logx.NewLogger("review-agent")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute reviews Body["content"]. An optional "style_guide" object adds rules to the prompt.
func (r *ReviewAgent) Execute(ctx context.Context, in Input) (Result, error) {
	start := time.Now()

	content, err := in.Require("content")
	if err != nil {
		return nil, err
	}

	prompt := reviewPrompt + styleRules(in.Body["style_guide"])
	extra := contextExtra(in)
	key := promptHash(prompt, content, extra)

	var response string
	if !r.responses.GetReview(ctx, key, &response) {
		response, err = r.completer.Call(ctx, prompt, content, extra)
		if err != nil {
			r.logger.Error("Content review failed after %.2fs: %v", time.Since(start).Seconds(), err)
			return nil, fmt.Errorf("review: %w", err)
		}
		r.responses.SetReview(ctx, key, response)
	}

	feedback := ParseFeedback(response)
	result := Result{
		"feedback":      feedback,
		"metrics":       Measure(content),
		"issues":        feedback.Issues(),
		"suggestions":   feedback.Suggestions,
		"quality_score": nil,
	}
	metadata := map[string]any{
		"reviewed_at": time.Now().UTC().Format(time.RFC3339),
		"references":  references(in.Context),
	}

	if r.checker != nil {
		if report, ok := r.styleCheck(ctx, content, in.String("reference")); ok {
			result["quality_score"] = report.QualityScore
			result["style_issues"] = report.Issues
			metadata["style_check"] = report.Metadata
		}
	}
	result["metadata"] = metadata

	r.logger.Info("Content review completed successfully in %.2fs", time.Since(start).Seconds())
	return result, nil
}

// styleCheck consults the cache before calling the checker. Checker failures are logged and
// the review continues without a style report.
func (r *ReviewAgent) styleCheck(ctx context.Context, content, reference string) (StyleReport, bool) {
	hash := cache.HashString(content)

	var report StyleReport
	if r.cache.GetStyleCheck(ctx, hash, &report) {
		return report, true
	}

	report, err := r.checker.Check(ctx, content, reference)
	if err != nil {
		r.logger.Warn("Style check failed, continuing without it: %v", err)
		return StyleReport{}, false
	}
	r.cache.SetStyleCheck(ctx, hash, report)
	return report, true
}

// styleRules renders a style guide object as prompt lines in key order.
func styleRules(guide any) string {
	rules, ok := guide.(map[string]any)
	if !ok || len(rules) == 0 {
		return ""
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("\n\nSTYLE GUIDE RULES:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %v\n", name, rules[name])
	}
	return b.String()
}
