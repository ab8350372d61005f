package model

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is one record of conversation history, supplied oldest-first by the
// conversation store. The core never mutates or persists turns.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message is one entry of the assembled generation prompt.
type Message struct {
	Role    string
	Content string
}

// Filter holds optional exact-match constraints on point metadata.
// Empty fields mean no constraint.
type Filter struct {
	Discipline string `json:"discipline"`
	Grade      string `json:"grade"`
	Publisher  string `json:"publisher"`
}

// Fields returns only the non-empty filter entries.
func (f Filter) Fields() map[string]string {
	out := make(map[string]string, 3)
	if f.Discipline != "" {
		out["discipline"] = f.Discipline
	}
	if f.Grade != "" {
		out["grade"] = f.Grade
	}
	if f.Publisher != "" {
		out["publisher"] = f.Publisher
	}
	return out
}

func (f Filter) IsEmpty() bool {
	return f.Discipline == "" && f.Grade == "" && f.Publisher == ""
}
