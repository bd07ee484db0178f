package analyzer

import (
	"strings"
	"testing"
)

func TestAnalyzeSimpleQuestion(t *testing.T) {
	a := New(0, nil)

	result := a.Analyze(Request{Prompt: "What's the current time in Tokyo?"})

	if result.Complexity > 0.3 {
		t.Errorf("simple question complexity = %v, want <= 0.3", result.Complexity)
	}
	if result.TaskType != TaskQuery {
		t.Errorf("task type = %v, want query", result.TaskType)
	}
	if result.HasCode {
		t.Error("simple question should not flag code")
	}
}

func TestAnalyzeDebuggingPrompt(t *testing.T) {
	a := New(0, nil)

	prompt := "My func handler() panics with a nil pointer error, here's the stack trace:\n```\ngoroutine 1 [running]\n```"
	result := a.Analyze(Request{Prompt: prompt})

	if result.Complexity < 0.6 {
		t.Errorf("debugging complexity = %v, want >= 0.6", result.Complexity)
	}
	if result.TaskType != TaskDebugging {
		t.Errorf("task type = %v, want debugging", result.TaskType)
	}
	if !result.HasCode || !result.HasErrors {
		t.Errorf("hasCode=%v hasErrors=%v, want both true", result.HasCode, result.HasErrors)
	}
}

func TestAnalyzeComplexityAlwaysClamped(t *testing.T) {
	a := New(100, nil)

	// Stack every positive signal at once.
	loaded := "analyze and compare the trade-offs in this design. " +
		"```func main() {}``` error: panic traceback. " +
		"csv dataset regression metrics. " + strings.Repeat("padding ", 100)

	cases := []string{
		"",
		"hi",
		"what is go",
		loaded,
	}
	for _, prompt := range cases {
		got := a.Analyze(Request{Prompt: prompt}).Complexity
		if got < 0 || got > 1 {
			t.Errorf("Analyze(%.30q).Complexity = %v, out of [0,1]", prompt, got)
		}
	}
}

func TestAnalyzeEmptyPrompt(t *testing.T) {
	a := New(0, nil)

	result := a.Analyze(Request{})

	if result.EstimatedTokens != 0 {
		t.Errorf("empty prompt tokens = %d, want 0", result.EstimatedTokens)
	}
	if result.TaskType != TaskQuery {
		t.Errorf("empty prompt task type = %v, want query", result.TaskType)
	}
}

func TestAnalyzeTokenEstimate(t *testing.T) {
	a := New(0, nil)

	prompt := strings.Repeat("a", 400)
	result := a.Analyze(Request{Prompt: prompt})
	if result.EstimatedTokens != 100 {
		t.Errorf("tokens = %d, want 100", result.EstimatedTokens)
	}
}

func TestAnalyzeContextCountsTowardLength(t *testing.T) {
	a := New(100, nil)

	short := a.Analyze(Request{Prompt: "review the numbers below"})
	long := a.Analyze(Request{
		Prompt:  "review the numbers below",
		Context: strings.Repeat("data ", 50),
	})
	if long.Complexity <= short.Complexity {
		t.Errorf("long input complexity %v should exceed short %v", long.Complexity, short.Complexity)
	}
}

func TestAnalyzeReasoningNeedsTwoKeywords(t *testing.T) {
	a := New(0, nil)

	one := a.Analyze(Request{Prompt: "analyze this quarterly report for me please thanks a lot"})
	if one.HasReasoning {
		t.Error("single reasoning keyword should not set hasReasoning")
	}

	two := a.Analyze(Request{Prompt: "analyze the architecture and justify each choice"})
	if !two.HasReasoning {
		t.Error("multiple reasoning keywords should set hasReasoning")
	}
	if two.TaskType != TaskReasoning {
		t.Errorf("task type = %v, want reasoning", two.TaskType)
	}
}

func TestClassifyPriority(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   TaskType
	}{
		{"errors beat code", "fix this error in `parse()` it throws an exception", TaskDebugging},
		{"code beats reasoning", "analyze and optimize this: ```def f(): pass```", TaskCode},
		{"writing", "write a short blog post announcement", TaskWriting},
		{"query default", "tell me something interesting", TaskQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(0, nil).Analyze(Request{Prompt: tt.prompt}).TaskType
			if got != tt.want {
				t.Errorf("task type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	got := extractKeywords("please explain how the scheduler works with the runtime", 8)

	for _, kw := range got {
		if len(kw) < 4 {
			t.Errorf("keyword %q shorter than 4 chars", kw)
		}
		if stopWords[kw] {
			t.Errorf("stop word %q leaked into keywords", kw)
		}
	}

	capped := extractKeywords(strings.Repeat("alpha beta gamma delta epsilon zeta theta iota kappa lambda ", 2), 3)
	if len(capped) != 3 {
		t.Errorf("keyword cap = %d, want 3", len(capped))
	}
}

func TestIsGreeting(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"hello!", true},
		{"thanks", true},
		{"hello, can you refactor my service mesh", false},
		{"okay", true},
	}
	for _, tt := range tests {
		if got := isGreeting(tt.in); got != tt.want {
			t.Errorf("isGreeting(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTaskTypeJSONRoundTrip(t *testing.T) {
	for _, tt := range []TaskType{TaskQuery, TaskWriting, TaskReasoning, TaskCode, TaskDebugging} {
		data, err := tt.MarshalJSON()
		if err != nil {
			t.Fatalf("marshal %v: %v", tt, err)
		}
		var back TaskType
		if err := back.UnmarshalJSON(data); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != tt {
			t.Errorf("round trip %v -> %v", tt, back)
		}
	}
}
