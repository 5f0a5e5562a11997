package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docflow/pkg/agent"
	"docflow/pkg/logx"
)

const (
	defaultDocType  = "guide"
	defaultAudience = "developers"
)

// Structure summarizes the markdown layout of a document.
type Structure struct {
	Headings         int  `json:"headings"`
	MaxDepth         int  `json:"max_depth"`
	ValidHierarchy   bool `json:"valid_hierarchy"`
	CodeBlocks       int  `json:"code_blocks"`
	Links            int  `json:"links"`
	HasIntroduction  bool `json:"has_introduction"`
	ParagraphsBefore int  `json:"paragraphs_before_first_heading"`
}

// Analysis is attached to drafted and updated content.
type Analysis struct {
	Structure Structure      `json:"structure"`
	Metrics   ContentMetrics `json:"metrics"`
}

// Analyze inspects markdown content. A hierarchy is valid when no heading is more than one
// level deeper than the heading before it.
func Analyze(content string) Analysis {
	var s Structure
	s.ValidHierarchy = true

	prevLevel := 0
	inFence := false
	seenHeading := false
	inParagraph := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if !inFence {
				s.CodeBlocks++
			}
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		s.Links += strings.Count(trimmed, "](")

		level := headingLevel(trimmed)
		if level == 0 {
			if trimmed != "" && !inParagraph && !seenHeading {
				s.ParagraphsBefore++
			}
			inParagraph = trimmed != ""
			continue
		}

		inParagraph = false
		seenHeading = true
		s.Headings++
		if level > s.MaxDepth {
			s.MaxDepth = level
		}
		if prevLevel > 0 && level > prevLevel+1 {
			s.ValidHierarchy = false
		}
		prevLevel = level

		title := strings.ToLower(strings.TrimSpace(strings.TrimLeft(trimmed, "#")))
		if strings.Contains(title, "introduction") || strings.Contains(title, "overview") {
			s.HasIntroduction = true
		}
	}
	if s.ParagraphsBefore > 0 {
		s.HasIntroduction = true
	}

	return Analysis{Structure: s, Metrics: Measure(content)}
}

func headingLevel(line string) int {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(line) || line[level] != ' ' {
		return 0
	}
	return level
}

// DraftAgent writes new documents.
type DraftAgent struct {
	completer agent.Completer
	logger    *logx.Logger
}

// NewDraftAgent creates a draft step.
func NewDraftAgent(completer agent.Completer) *DraftAgent {
	return &DraftAgent{completer: completer, logger: logx.NewLogger("draft-agent")}
}

// Execute drafts a document on Body["topic"]. Optional fields: "doc_type", "audience",
// "requirements" and "context".
func (d *DraftAgent) Execute(ctx context.Context, in Input) (Result, error) {
	start := time.Now()

	topic, err := in.Require("topic")
	if err != nil {
		return nil, err
	}
	docType := valueOr(in.String("doc_type"), defaultDocType)
	audience := valueOr(in.String("audience"), defaultAudience)

	system := fmt.Sprintf("You are a technical writer. Write a %s in markdown for %s. "+
		"Use headings, keep sentences short and include examples where they help.", docType, audience)

	user := "Topic: " + topic
	if req := in.String("requirements"); req != "" {
		user += "\n\nRequirements:\n" + req
	}

	content, err := d.completer.Call(ctx, system, user, contextExtra(in))
	if err != nil {
		d.logger.Error("Draft generation failed after %.2fs: %v", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("draft: %w", err)
	}

	d.logger.Info("Draft created successfully in %.2fs", time.Since(start).Seconds())
	return Result{
		"content":  content,
		"analysis": Analyze(content),
		"metadata": map[string]any{
			"topic":        topic,
			"doc_type":     docType,
			"audience":     audience,
			"generated_at": time.Now().UTC().Format(time.RFC3339),
			"references":   references(in.Context),
		},
	}, nil
}

// UpdateAgent revises existing documents.
type UpdateAgent struct {
	completer agent.Completer
	logger    *logx.Logger
}

// NewUpdateAgent creates an update step.
func NewUpdateAgent(completer agent.Completer) *UpdateAgent {
	return &UpdateAgent{completer: completer, logger: logx.NewLogger("update-agent")}
}

// Execute applies Body["updates"] to Body["content"] and returns the full revised document.
func (u *UpdateAgent) Execute(ctx context.Context, in Input) (Result, error) {
	start := time.Now()

	content, err := in.Require("content")
	if err != nil {
		return nil, err
	}
	updates, err := in.Require("updates")
	if err != nil {
		return nil, err
	}

	const system = "You are a technical writer. Revise the document by applying the requested updates. " +
		"Return the complete revised document in markdown and nothing else."
	user := "Document:\n" + content + "\n\nUpdates:\n" + updates

	revised, err := u.completer.Call(ctx, system, user, contextExtra(in))
	if err != nil {
		u.logger.Error("Update failed after %.2fs: %v", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("update: %w", err)
	}

	u.logger.Info("Content updated successfully in %.2fs", time.Since(start).Seconds())
	return Result{
		"content":  revised,
		"analysis": Analyze(revised),
		"metadata": map[string]any{
			"updated_at":          time.Now().UTC().Format(time.RFC3339),
			"previous_word_count": len(strings.Fields(content)),
			"references":          references(in.Context),
		},
	}, nil
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
