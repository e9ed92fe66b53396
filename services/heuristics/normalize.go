package heuristics

import "strings"

// Sentiment labels.
const (
	SentimentPositive = "Positive"
	SentimentNegative = "Negative"
	SentimentNeutral  = "Neutral"
)

// NormalizeSentiment reduces free text to exactly one sentiment label by a
// case-insensitive substring match. Positive is checked first.
func NormalizeSentiment(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "positive"):
		return SentimentPositive
	case strings.Contains(lower, "negative"):
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

const titleQuotes = "\"'“”‘’`"

// StripTitleQuotes removes quote characters wrapping a generated title.
func StripTitleQuotes(text string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(text), titleQuotes))
}
