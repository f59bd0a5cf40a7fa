package models

// Action is the kind of a primitive automation step. The set is closed;
// the interpreter matches it exhaustively.
type Action string

const (
	ActionStartApp  Action = "start_app"
	ActionInputText Action = "input_text"
	ActionKey       Action = "key"
	ActionTap       Action = "tap"
	ActionSleepMs   Action = "sleep_ms"
)

// Valid reports whether a is one of the recognized step kinds.
func (a Action) Valid() bool {
	switch a {
	case ActionStartApp, ActionInputText, ActionKey, ActionTap, ActionSleepMs:
		return true
	}
	return false
}

// Step is one primitive device action inside an operation. Steps are data,
// not behavior: the Action tag selects which of the remaining fields apply.
// The numeric fields are pointers so that an absent field (defaulted by the
// interpreter) is distinguishable from an explicit zero.
type Step struct {
	Action   Action `json:"action"`
	Package  string `json:"package,omitempty"`  // start_app
	Text     string `json:"text,omitempty"`     // input_text
	Keycode  *int   `json:"keycode,omitempty"`  // key
	X        *int   `json:"x,omitempty"`        // tap
	Y        *int   `json:"y,omitempty"`        // tap
	Duration *int   `json:"duration,omitempty"` // sleep_ms, milliseconds
}

// Int returns a pointer to v, for building Step literals.
func Int(v int) *int {
	return &v
}

// StepResult is the control API response recorded for one executed step.
type StepResult map[string]interface{}
