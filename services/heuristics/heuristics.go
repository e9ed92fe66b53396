// Package heuristics holds deterministic, network-free text transforms used
// for the local clean-text step and as a degraded substitute for AI-backed
// steps when no provider can serve them.
package heuristics

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/upb/workflow-runner/models"
)

const (
	maxSummarySentences = 5
	maxKeyPoints        = 5
	maxTitleWords       = 8
	summaryTruncateLen  = 400
	keyPointTruncateLen = 160

	noKeyPointsPlaceholder = "- No key points found."
	untitled               = "Untitled"
)

// Fallback produces a local result for a step. ok is false when the step has
// no local counterpart.
type Fallback interface {
	Apply(step models.StepIdentifier, text string) (output string, ok bool)
}

// Local is the built-in Fallback.
type Local struct{}

// Apply dispatches to the heuristic for step.
func (Local) Apply(step models.StepIdentifier, text string) (string, bool) {
	switch step {
	case models.StepCleanText:
		return CleanText(text), true
	case models.StepSummarize:
		return Summarize(text), true
	case models.StepExtractKeyPoints:
		return ExtractKeyPoints(text), true
	case models.StepTagCategory:
		return TagCategory(text), true
	case models.StepSentimentAnalysis:
		return Sentiment(text), true
	case models.StepRewriteProfessional:
		return RewriteProfessional(text), true
	case models.StepGenerateTitle:
		return GenerateTitle(text), true
	default:
		return "", false
	}
}

// CleanText collapses every whitespace run, newlines included, to a single
// space and trims the ends.
func CleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Summarize keeps the first few sentences. Text without any sentence
// terminator is truncated instead.
func Summarize(text string) string {
	normalized := CleanText(text)
	if normalized == "" {
		return ""
	}

	sentences := splitSentences(normalized)
	if len(sentences) == 0 {
		return truncate(normalized, summaryTruncateLen, "...")
	}
	if len(sentences) > maxSummarySentences {
		sentences = sentences[:maxSummarySentences]
	}
	return strings.Join(sentences, " ")
}

// ExtractKeyPoints renders up to five sentences as "- " bullet lines.
func ExtractKeyPoints(text string) string {
	normalized := CleanText(text)
	if normalized == "" {
		return noKeyPointsPlaceholder
	}

	points := splitSentences(normalized)
	if len(points) == 0 {
		points = []string{truncate(normalized, keyPointTruncateLen, "")}
	}
	if len(points) > maxKeyPoints {
		points = points[:maxKeyPoints]
	}

	lines := make([]string, len(points))
	for i, p := range points {
		lines[i] = "- " + p
	}
	return strings.Join(lines, "\n")
}

type category struct {
	name     string
	keywords []string
}

var categories = []category{
	{name: "Technology", keywords: []string{"software", "ai", "tech", "app", "digital", "code", "data"}},
	{name: "Business", keywords: []string{"market", "revenue", "business", "customer", "sales", "company"}},
	{name: "Finance", keywords: []string{"budget", "finance", "investment", "profit", "cost", "money"}},
	{name: "Health", keywords: []string{"health", "medical", "wellness", "patient", "treatment"}},
	{name: "Education", keywords: []string{"education", "learning", "school", "student", "course", "training"}},
}

// TagCategory returns every category with a keyword present in the text,
// comma separated, or "General".
func TagCategory(text string) string {
	lower := strings.ToLower(text)

	var matched []string
	for _, c := range categories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, c.name)
				break
			}
		}
	}
	if len(matched) == 0 {
		return "General"
	}
	return strings.Join(matched, ", ")
}

var (
	positiveWords = []string{"good", "great", "excellent", "positive", "happy", "success", "improve"}
	negativeWords = []string{"bad", "poor", "negative", "sad", "fail", "problem", "issue"}
)

// Sentiment counts polarity word occurrences; the larger count wins and a tie
// is Neutral.
func Sentiment(text string) string {
	lower := strings.ToLower(text)

	positive, negative := 0, 0
	for _, w := range positiveWords {
		positive += strings.Count(lower, w)
	}
	for _, w := range negativeWords {
		negative += strings.Count(lower, w)
	}

	switch {
	case positive > negative:
		return SentimentPositive
	case negative > positive:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

var contractions = map[string]string{
	"can't":     "cannot",
	"won't":     "will not",
	"don't":     "do not",
	"doesn't":   "does not",
	"didn't":    "did not",
	"isn't":     "is not",
	"aren't":    "are not",
	"wasn't":    "was not",
	"weren't":   "were not",
	"haven't":   "have not",
	"hasn't":    "has not",
	"hadn't":    "had not",
	"couldn't":  "could not",
	"shouldn't": "should not",
	"wouldn't":  "would not",
	"i'm":       "I am",
	"it's":      "it is",
	"that's":    "that is",
	"there's":   "there is",
	"we're":     "we are",
	"you're":    "you are",
	"they're":   "they are",
	"i've":      "I have",
	"we've":     "we have",
	"they've":   "they have",
	"i'll":      "I will",
	"we'll":     "we will",
	"you'll":    "you will",
	"they'll":   "they will",
	"let's":     "let us",
	"gonna":     "going to",
	"wanna":     "want to",
}

var contractionPattern = buildContractionPattern()

func buildContractionPattern() *regexp.Regexp {
	alts := make([]string, 0, len(contractions))
	for k := range contractions {
		alts = append(alts, strings.ReplaceAll(regexp.QuoteMeta(k), "'", "['’]"))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

// RewriteProfessional expands contractions, collapses whitespace and
// capitalizes the first letter.
func RewriteProfessional(text string) string {
	normalized := CleanText(text)
	if normalized == "" {
		return ""
	}

	expanded := contractionPattern.ReplaceAllStringFunc(normalized, func(match string) string {
		key := strings.ToLower(strings.ReplaceAll(match, "’", "'"))
		repl, ok := contractions[key]
		if !ok {
			return match
		}
		first, _ := utf8.DecodeRuneInString(match)
		if unicode.IsUpper(first) {
			return capitalize(repl)
		}
		return repl
	})
	return capitalize(expanded)
}

var nonTitleChars = regexp.MustCompile(`[^\w\s-]`)

// GenerateTitle keeps the first eight words of the text with punctuation
// removed.
func GenerateTitle(text string) string {
	cleaned := CleanText(nonTitleChars.ReplaceAllString(CleanText(text), ""))
	if cleaned == "" {
		return untitled
	}

	words := strings.Fields(cleaned)
	if len(words) > maxTitleWords {
		words = words[:maxTitleWords]
	}
	return capitalize(strings.Join(words, " "))
}

// splitSentences cuts normalized text after '.', '!' or '?' followed by a
// space. It returns nil when the text has no terminator at all.
func splitSentences(text string) []string {
	if !strings.ContainsAny(text, ".!?") {
		return nil
	}

	var sentences []string
	start := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.', '!', '?':
			if i+1 < len(text) && text[i+1] == ' ' {
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					sentences = append(sentences, s)
				}
				start = i + 2
			}
		}
	}
	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func truncate(text string, limit int, suffix string) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit])) + suffix
}

func capitalize(text string) string {
	r, size := utf8.DecodeRuneInString(text)
	if r == utf8.RuneError {
		return text
	}
	return string(unicode.ToUpper(r)) + text[size:]
}
