package models

import (
	"fmt"
	"strings"
)

// StepIdentifier names one kind of text transformation a workflow can chain.
type StepIdentifier string

const (
	StepCleanText           StepIdentifier = "clean-text"
	StepSummarize           StepIdentifier = "summarize"
	StepExtractKeyPoints    StepIdentifier = "extract-key-points"
	StepTagCategory         StepIdentifier = "tag-category"
	StepSentimentAnalysis   StepIdentifier = "sentiment-analysis"
	StepRewriteProfessional StepIdentifier = "rewrite-professional"
	StepGenerateTitle       StepIdentifier = "generate-title"
)

// Limits on the length of a step chain.
const (
	MinSteps = 2
	MaxSteps = 4
)

// StepDescriptor is a catalog entry for a step kind.
type StepDescriptor struct {
	ID          StepIdentifier `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	AIBacked    bool           `json:"ai_backed"`
}

// StepCatalog lists every supported step in display order.
var StepCatalog = []StepDescriptor{
	{ID: StepCleanText, Name: "Clean Text", Description: "Collapse whitespace and trim the text", AIBacked: false},
	{ID: StepSummarize, Name: "Summarize", Description: "Condense the text into a few sentences", AIBacked: true},
	{ID: StepExtractKeyPoints, Name: "Extract Key Points", Description: "List the main points as bullets", AIBacked: true},
	{ID: StepTagCategory, Name: "Tag Category", Description: "Assign one or more topic categories", AIBacked: true},
	{ID: StepSentimentAnalysis, Name: "Sentiment Analysis", Description: "Classify the tone as Positive, Neutral or Negative", AIBacked: true},
	{ID: StepRewriteProfessional, Name: "Rewrite Professional", Description: "Rewrite the text in a professional tone", AIBacked: true},
	{ID: StepGenerateTitle, Name: "Generate Title", Description: "Produce a short title for the text", AIBacked: true},
}

// ParseStep resolves a raw identifier to a known step. Both the kebab-case
// form and the legacy snake_case form are accepted.
func ParseStep(raw string) (StepIdentifier, error) {
	step := StepIdentifier(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-"))
	if !step.IsValid() {
		return "", fmt.Errorf("unknown step %q", raw)
	}
	return step, nil
}

// IsValid reports whether s is one of the catalog identifiers.
func (s StepIdentifier) IsValid() bool {
	_, ok := lookupStep(s)
	return ok
}

// IsAIBacked reports whether the step delegates to a generative provider.
func (s StepIdentifier) IsAIBacked() bool {
	d, ok := lookupStep(s)
	return ok && d.AIBacked
}

// DisplayName returns the human readable name, or the raw identifier when unknown.
func (s StepIdentifier) DisplayName() string {
	if d, ok := lookupStep(s); ok {
		return d.Name
	}
	return string(s)
}

func (s StepIdentifier) String() string {
	return string(s)
}

func lookupStep(s StepIdentifier) (StepDescriptor, bool) {
	for _, d := range StepCatalog {
		if d.ID == s {
			return d, true
		}
	}
	return StepDescriptor{}, false
}
