package analyzer

import "encoding/json"

// TaskType classifies what kind of work a request is asking for.
type TaskType int

const (
	TaskQuery     TaskType = iota // simple factual lookups, short Q&A
	TaskWriting                   // prose generation, summaries, docs
	TaskReasoning                 // multi-step analysis, proofs, planning
	TaskCode                      // writing or modifying code
	TaskDebugging                 // error diagnosis, stack traces, fixes
)

var taskTypeNames = [...]string{"query", "writing", "reasoning", "code", "debugging"}

func (t TaskType) String() string {
	if int(t) < len(taskTypeNames) {
		return taskTypeNames[t]
	}
	return "unknown"
}

// MarshalJSON implements json.Marshaler.
func (t TaskType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TaskType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var i int
		if err2 := json.Unmarshal(data, &i); err2 != nil {
			return err
		}
		*t = TaskType(i)
		return nil
	}
	*t = ParseTaskType(s)
	return nil
}

// ParseTaskType maps a name to a TaskType, defaulting to query.
func ParseTaskType(s string) TaskType {
	for i, name := range taskTypeNames {
		if s == name {
			return TaskType(i)
		}
	}
	return TaskQuery
}
