package pipeline

import (
	"fmt"

	"github.com/upb/workflow-runner/models"
)

var promptTemplates = map[models.StepIdentifier]string{
	models.StepSummarize: "Summarize the following text in 3-5 concise sentences. Keep the key meaning and stay clear. " +
		"Reply with the summary only, without a preamble or explanation.\n\nText to summarize:\n%s",

	models.StepExtractKeyPoints: "List the key insights of the following text as clear bullet points. " +
		"Reply with the bullet points only, without a preamble or explanation.\n\nText to analyze:\n%s",

	models.StepTagCategory: "Assign the following text to the most fitting category or categories. " +
		"Reply with the category names separated by commas and nothing else.\n\n" +
		"Typical categories: Business, Technology, Health, Education, Entertainment, Science, Politics, Sports, Finance, Lifestyle.\n\n" +
		"Text to categorize:\n%s",

	models.StepSentimentAnalysis: "Classify the sentiment of the following text. " +
		"Reply with ONLY one of these words: Positive, Neutral, or Negative.\n\nText to analyze:\n%s",

	models.StepRewriteProfessional: "Rewrite the following text in a professional, polished tone suitable for business communication. " +
		"Keep the core message while improving clarity and grammar. Reply with the rewritten text only.\n\nText to rewrite:\n%s",

	models.StepGenerateTitle: "Write a clear, concise and engaging title for the following text, no more than 10 words. " +
		"Reply with the title only, without quotes or explanation.\n\nText:\n%s",
}

// BuildPrompt embeds text into the instruction template of an AI-backed step.
func BuildPrompt(step models.StepIdentifier, text string) (string, error) {
	tmpl, ok := promptTemplates[step]
	if !ok {
		return "", fmt.Errorf("step %s has no prompt template", step)
	}
	return fmt.Sprintf(tmpl, text), nil
}
