package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventMarshalFlattensData(t *testing.T) {
	ev := Event{
		Type:      TypeQAIteration,
		SessionID: "s1",
		Stage:     "visual_qa",
		Sequence:  7,
		Timestamp: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		Data: map[string]interface{}{
			"slide_order": 2,
			"score":       0.81,
		},
	}

	raw, err := json.Marshal(ev)
	assert.NoError(t, err)

	var flat map[string]interface{}
	assert.NoError(t, json.Unmarshal(raw, &flat))

	assert.Equal(t, "qa_iteration", flat["type"])
	assert.Equal(t, "s1", flat["session_id"])
	assert.Equal(t, "visual_qa", flat["stage"])
	assert.Equal(t, float64(7), flat["sequence"])
	assert.Equal(t, float64(2), flat["slide_order"])
	assert.Equal(t, 0.81, flat["score"])
	_, nested := flat["data"]
	assert.False(t, nested, "data must be flattened, not nested")
}

func TestEventMarshalOmitsEmptyStage(t *testing.T) {
	raw, err := json.Marshal(Event{Type: TypePipelineComplete, SessionID: "s1", Sequence: 1, Timestamp: time.Now()})
	assert.NoError(t, err)

	var flat map[string]interface{}
	assert.NoError(t, json.Unmarshal(raw, &flat))
	_, hasStage := flat["stage"]
	assert.False(t, hasStage)
}

func TestEventUnmarshalRestoresWireForm(t *testing.T) {
	wire := `{"type":"error","session_id":"s1","stage":"enricher","sequence":3,` +
		`"timestamp":"2026-03-14T12:00:00Z","message":"boom","retryable":true}`

	var ev Event
	assert.NoError(t, json.Unmarshal([]byte(wire), &ev))

	assert.Equal(t, TypeError, ev.Type)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, "enricher", ev.Stage)
	assert.Equal(t, uint64(3), ev.Sequence)
	assert.Equal(t, "boom", ev.Data["message"])
	assert.Equal(t, true, ev.Data["retryable"])
}
