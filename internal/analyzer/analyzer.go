// Package analyzer scores free-text requests for complexity and classifies
// the kind of task they describe. Scoring is heuristic keyword/pattern
// matching, not learned; the output feeds the model selector.
package analyzer

import (
	"log/slog"
	"strings"
)

const (
	baseComplexity = 0.5

	deltaCode      = 0.30
	deltaErrors    = 0.20
	deltaReasoning = 0.25
	deltaLength    = 0.15
	deltaData      = 0.20
	deltaSimple    = -0.30
	deltaGreeting  = -0.20

	// minReasoningHits is how many distinct reasoning keywords it takes
	// before the reasoning bump applies.
	minReasoningHits = 2

	maxKeywords = 8
)

// Request is the explicit boundary struct for analysis. Only Prompt is
// required; the rest are optional extensions.
type Request struct {
	Prompt        string   `json:"prompt"`
	Context       string   `json:"context,omitempty"`
	Files         []string `json:"files,omitempty"`
	HistoryLength int      `json:"historyLength,omitempty"`
}

// Analysis is the structured result of analyzing a request.
type Analysis struct {
	Complexity      float64  `json:"complexity"` // always in [0,1]
	TaskType        TaskType `json:"taskType"`
	HasCode         bool     `json:"hasCode"`
	HasErrors       bool     `json:"hasErrors"`
	HasReasoning    bool     `json:"hasReasoning"`
	EstimatedTokens int      `json:"estimatedTokens"`
	Keywords        []string `json:"keywords,omitempty"`
}

// Analyzer scores requests. Zero-config beyond the length threshold.
type Analyzer struct {
	lengthThreshold int
	logger          *slog.Logger
}

// New creates an Analyzer. lengthThreshold is the combined character length
// above which the long-input bump applies; <=0 selects the default.
func New(lengthThreshold int, logger *slog.Logger) *Analyzer {
	if lengthThreshold <= 0 {
		lengthThreshold = 2000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		lengthThreshold: lengthThreshold,
		logger:          logger.With("component", "analyzer"),
	}
}

// neutralAnalysis is the fixed fallback when analysis fails internally.
func neutralAnalysis() Analysis {
	return Analysis{
		Complexity: baseComplexity,
		TaskType:   TaskQuery,
	}
}

// Analyze scores a request. It never fails: any internal panic is recovered
// into the neutral default so analysis can never block a routing request.
func (a *Analyzer) Analyze(req Request) (result Analysis) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("analysis panic, returning neutral default", "panic", r)
			result = neutralAnalysis()
		}
	}()

	combined := req.Prompt
	if req.Context != "" {
		combined += "\n" + req.Context
	}
	lower := strings.ToLower(combined)
	words := len(strings.Fields(lower))

	hasCode := hasCodeSignals(lower)
	hasErrors := hasErrorSignals(lower)
	reasoningHits := reasoningKeywordCount(lower)
	hasReasoning := reasoningHits >= minReasoningHits

	// Deltas accumulate independently; mixed signals are not cancelled
	// beyond the literal arithmetic.
	score := baseComplexity
	if hasCode {
		score += deltaCode
	}
	if hasErrors {
		score += deltaErrors
	}
	if hasReasoning {
		score += deltaReasoning
	}
	if len(combined) > a.lengthThreshold {
		score += deltaLength
	}
	if hasDataSignals(lower) {
		score += deltaData
	}
	if isSimpleQuestion(lower, words) {
		score += deltaSimple
	}
	if isGreeting(lower) {
		score += deltaGreeting
	}

	return Analysis{
		Complexity:      clamp01(score),
		TaskType:        classify(lower, hasCode, hasErrors, hasReasoning),
		HasCode:         hasCode,
		HasErrors:       hasErrors,
		HasReasoning:    hasReasoning,
		EstimatedTokens: len(combined) / 4,
		Keywords:        extractKeywords(lower, maxKeywords),
	}
}

// classify picks the task type by fixed priority: debugging beats code beats
// reasoning beats writing; query is the default.
func classify(lower string, hasCode, hasErrors, hasReasoning bool) TaskType {
	switch {
	case hasErrors && hasCode:
		return TaskDebugging
	case hasErrors:
		return TaskDebugging
	case hasCode:
		return TaskCode
	case hasReasoning:
		return TaskReasoning
	case hasWritingSignals(lower):
		return TaskWriting
	default:
		return TaskQuery
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
