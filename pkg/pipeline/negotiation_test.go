package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type scriptedNegotiator struct {
	result  *TurnResult
	err     error
	lastKB  string
	lastMsg string
}

func (n *scriptedNegotiator) NextTurn(_ context.Context, form OrderForm, kbSummary, userMessage string) (*TurnResult, error) {
	n.lastKB = kbSummary
	n.lastMsg = userMessage
	if n.err != nil {
		return nil, n.err
	}
	return n.result, nil
}

func completeForm() *OrderForm {
	return &OrderForm{
		Title:         "Consensus Algorithms",
		Audience:      "grad students",
		TargetSlides:  12,
		KeyTopics:     []string{"paxos", "raft"},
		ThemeID:       "academic",
		CitationStyle: "apa",
	}
}

func TestNegotiationTurnReturnsQuestion(t *testing.T) {
	n := &scriptedNegotiator{result: &TurnResult{Question: "Who is the audience?"}}
	c := NewNegotiationController(n)

	form := OrderForm{Title: "Consensus"}
	outcome, err := c.Turn(context.Background(), form, nil, "make me a deck")
	assert.NoError(t, err)

	assert.Equal(t, "Who is the audience?", outcome.Question)
	assert.False(t, outcome.Complete)
	assert.Equal(t, "Consensus", outcome.Form.Title, "contract so far is carried forward")
}

func TestNegotiationEnforcesRequiredFields(t *testing.T) {
	// The collaborator claims completion but left required fields unset; the
	// controller must refuse and turn it back into a question.
	partial := completeForm()
	partial.ThemeID = ""
	partial.CitationStyle = ""
	n := &scriptedNegotiator{result: &TurnResult{CompletedForm: partial}}
	c := NewNegotiationController(n)

	outcome, err := c.Turn(context.Background(), OrderForm{}, nil, "that's everything")
	assert.NoError(t, err)

	assert.False(t, outcome.Complete)
	assert.NotEmpty(t, outcome.Question)
	assert.False(t, outcome.Form.IsComplete)
}

func TestNegotiationCompletesContract(t *testing.T) {
	n := &scriptedNegotiator{result: &TurnResult{CompletedForm: completeForm()}}
	c := NewNegotiationController(n)

	outcome, err := c.Turn(context.Background(), OrderForm{}, nil, "use APA and the academic theme")
	assert.NoError(t, err)

	assert.True(t, outcome.Complete)
	assert.True(t, outcome.Form.IsComplete)
	assert.Empty(t, outcome.Question)
}

func TestNegotiationRejectsEmptyTurn(t *testing.T) {
	n := &scriptedNegotiator{result: &TurnResult{}}
	c := NewNegotiationController(n)

	_, err := c.Turn(context.Background(), OrderForm{}, nil, "hello")
	var ue *UpstreamError
	assert.True(t, errors.As(err, &ue))
	assert.Equal(t, StageClarifier, ue.Stage)
}

func TestNegotiationTurnIsIdempotent(t *testing.T) {
	n := &scriptedNegotiator{result: &TurnResult{Question: "How many slides?"}}
	c := NewNegotiationController(n)

	form := OrderForm{Title: "Consensus", Audience: "engineers"}
	first, err1 := c.Turn(context.Background(), form, nil, "about consensus")
	second, err2 := c.Turn(context.Background(), form, nil, "about consensus")
	assert.NoError(t, err1)
	assert.NoError(t, err2)

	assert.Equal(t, first.Question, second.Question)
	assert.Equal(t, *first.Form, *second.Form)
	assert.Equal(t, "engineers", form.Audience, "input contract is never mutated")
}

func TestNegotiationPassesOnlySummary(t *testing.T) {
	n := &scriptedNegotiator{result: &TurnResult{Question: "ok?"}}
	c := NewNegotiationController(n)

	kb := &KnowledgeBase{
		Summary:  "three page summary",
		Sections: []KnowledgeSection{{Title: "Raft", Content: "full section text"}},
	}
	_, err := c.Turn(context.Background(), OrderForm{}, kb, "go on")
	assert.NoError(t, err)
	assert.Equal(t, "three page summary", n.lastKB, "collaborator sees the summary, not section content")
}

func TestLookupSection(t *testing.T) {
	c := NewNegotiationController(&scriptedNegotiator{})
	kb := &KnowledgeBase{Sections: []KnowledgeSection{{Title: "Raft Basics", Content: "..."}}}

	section, err := c.LookupSection(kb, "raft basics")
	assert.NoError(t, err)
	assert.Equal(t, "Raft Basics", section.Title)

	_, err = c.LookupSection(kb, "missing")
	assert.ErrorIs(t, err, ErrSectionNotFound)
}
