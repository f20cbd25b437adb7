package agent

import "errors"

// Sentinel errors for dispatcher faults. Both are terminal for the current
// turn: they are logged and the user sees a generic failure message, never
// the raw fault.
var (
	// ErrUnknownTool indicates the model requested a tool outside the
	// registered pair (fetchSchema, executeQuery).
	ErrUnknownTool = errors.New("unknown tool requested")

	// ErrLoopLimit indicates the model exhausted the tool-invocation budget
	// for a single user turn without producing a final answer.
	ErrLoopLimit = errors.New("tool invocation limit exceeded")
)
