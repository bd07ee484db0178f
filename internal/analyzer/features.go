package analyzer

import (
	"regexp"
	"strings"
)

// Feature detection is split into small pure functions so each signal can be
// tested in isolation instead of living inside one monolithic classifier.

// Compiled regexes (package-level, compiled once).
var (
	reCodeFence    = regexp.MustCompile("(?s)```")
	reInlineCode   = regexp.MustCompile("`[^`]+`")
	reCodeSyntax   = regexp.MustCompile(`\b(func|def|class|import|return|const|var|let|struct|interface|public|private|void)\b|[{};]\s*$|=>|::`)
	reErrorSignal  = regexp.MustCompile(`\b(error|exception|traceback|stack trace|stacktrace|panic|segfault|core dump|undefined|null pointer|npe|failed with|errno|exit code)\b`)
	reDataSignal   = regexp.MustCompile(`\b(csv|dataset|dataframe|sql|metrics?|statistics?|aggregate|average|median|percentile|time series|regression)\b|\d+(\.\d+)?%`)
	reSimpleQuery  = regexp.MustCompile(`^\s*(what is|what's|who is|who's|when is|when was|where is|how many|define|convert|translate)\b`)
	reGreeting     = regexp.MustCompile(`^\s*(hi|hello|hey|thanks|thank you|ok|okay|yes|no|sure|great|good morning|good night|bye|goodbye)\b[\s!.,?]*$`)
)

// reasoningKeywords signal that the request needs multi-step thinking.
// Two or more distinct hits trigger the reasoning complexity bump.
var reasoningKeywords = []string{
	"analyze", "analyse", "compare", "evaluate", "explain why",
	"step by step", "step-by-step", "trade-off", "tradeoff",
	"prove", "derive", "reason", "justify", "implications",
	"architecture", "design", "strategy", "plan", "optimize", "optimise",
}

// writingKeywords signal prose-generation work.
var writingKeywords = []string{
	"write", "draft", "compose", "summarize", "summarise",
	"rewrite", "rephrase", "blog", "essay", "email", "article",
	"story", "documentation", "readme",
}

// hasCodeSignals reports whether the text contains code fences, inline code,
// or code-like syntax.
func hasCodeSignals(lower string) bool {
	return reCodeFence.MatchString(lower) ||
		reInlineCode.MatchString(lower) ||
		reCodeSyntax.MatchString(lower)
}

// hasErrorSignals reports whether the text references errors or stack traces.
func hasErrorSignals(lower string) bool {
	return reErrorSignal.MatchString(lower)
}

// reasoningKeywordCount counts distinct reasoning-vocabulary hits.
func reasoningKeywordCount(lower string) int {
	count := 0
	for _, kw := range reasoningKeywords {
		if strings.Contains(lower, kw) {
			count++
		}
	}
	return count
}

// hasWritingSignals reports whether the text asks for prose generation.
func hasWritingSignals(lower string) bool {
	for _, kw := range writingKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// hasDataSignals reports whether the text references data or metric work.
func hasDataSignals(lower string) bool {
	return reDataSignal.MatchString(lower)
}

// isSimpleQuestion reports whether a short text matches the simple-question
// patterns ("what is X", "how many Y").
func isSimpleQuestion(lower string, words int) bool {
	return words > 0 && words <= 12 && reSimpleQuery.MatchString(lower)
}

// isGreeting reports whether the text is a bare greeting or acknowledgement.
func isGreeting(lower string) bool {
	return reGreeting.MatchString(lower)
}

// extractKeywords pulls a short list of distinctive lowercase words for
// downstream pattern matching. Stop words and short tokens are dropped.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "that": true,
	"this": true, "from": true, "have": true, "what": true, "your": true,
	"can": true, "you": true, "how": true, "are": true, "please": true,
	"would": true, "could": true, "should": true, "about": true,
}

func extractKeywords(lower string, max int) []string {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})

	seen := make(map[string]bool, len(fields))
	var out []string
	for _, w := range fields {
		if len(w) < 4 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) >= max {
			break
		}
	}
	return out
}
