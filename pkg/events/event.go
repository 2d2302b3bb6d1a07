package events

import (
	"encoding/json"
	"time"
)

// Type is the wire-level event type code.
type Type string

const (
	TypeStageChange      Type = "stage_change"
	TypeStart            Type = "start"
	TypeThinking         Type = "thinking"
	TypeToolCall         Type = "tool_call"
	TypeToolResult       Type = "tool_result"
	TypeComplete         Type = "complete"
	TypeError            Type = "error"
	TypeQAIteration      Type = "qa_iteration"
	TypePipelineComplete Type = "pipeline_complete"
	TypePipelineError    Type = "pipeline_error"
)

// Event is one entry in a session's progress log.
// Sequence numbers are per-session, monotonically increasing from 1.
type Event struct {
	Type      Type                   `json:"type"`
	SessionID string                 `json:"session_id"`
	Stage     string                 `json:"stage,omitempty"`
	Sequence  uint64                 `json:"sequence"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"-"`
}

// MarshalJSON flattens Data into the top-level object, so observers see
// {type, stage?, sequence, timestamp, ...type-specific fields}.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Data)+5)
	for k, v := range e.Data {
		out[k] = v
	}
	out["type"] = e.Type
	out["session_id"] = e.SessionID
	if e.Stage != "" {
		out["stage"] = e.Stage
	}
	out["sequence"] = e.Sequence
	out["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(out)
}

// UnmarshalJSON restores the flattened wire form.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["type"].(string); ok {
		e.Type = Type(v)
		delete(raw, "type")
	}
	if v, ok := raw["session_id"].(string); ok {
		e.SessionID = v
		delete(raw, "session_id")
	}
	if v, ok := raw["stage"].(string); ok {
		e.Stage = v
		delete(raw, "stage")
	}
	if v, ok := raw["sequence"].(float64); ok {
		e.Sequence = uint64(v)
		delete(raw, "sequence")
	}
	if v, ok := raw["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			e.Timestamp = ts
		}
		delete(raw, "timestamp")
	}
	e.Data = raw
	return nil
}
