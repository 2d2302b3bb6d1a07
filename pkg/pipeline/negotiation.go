package pipeline

import (
	"context"
	"fmt"
)

// NegotiationController runs the bounded, turn-based clarification loop.
// Each turn is idempotent: replaying the same user message against the same
// contract snapshot yields the same next question, because the controller
// keeps no turn counter and never mutates its inputs.
type NegotiationController struct {
	collab NegotiationCollaborator
}

func NewNegotiationController(collab NegotiationCollaborator) *NegotiationController {
	return &NegotiationController{collab: collab}
}

// TurnOutcome is the controller's result for one user message.
type TurnOutcome struct {
	Question string
	Form     *OrderForm
	Complete bool
}

// Turn delegates one user message. The collaborator sees only the
// knowledge-base summary, never full section content; per-section detail is
// available read-only through LookupSection.
func (c *NegotiationController) Turn(ctx context.Context, form OrderForm, kb *KnowledgeBase, userMessage string) (*TurnOutcome, error) {
	summary := ""
	if kb != nil {
		summary = kb.Summary
	}

	result, err := c.collab.NextTurn(ctx, form, summary, userMessage)
	if err != nil {
		return nil, err
	}

	if result.CompletedForm == nil {
		if result.Question == "" {
			return nil, &UpstreamError{
				Stage: StageClarifier,
				Err:   fmt.Errorf("negotiation turn produced neither question nor contract"),
			}
		}
		next := form
		return &TurnOutcome{Question: result.Question, Form: &next}, nil
	}

	// The controller, not the collaborator, decides completeness: a contract
	// with missing required fields is sent back as another question.
	completed := *result.CompletedForm
	if missing := completed.MissingRequired(); len(missing) > 0 {
		completed.IsComplete = false
		return &TurnOutcome{
			Question: fmt.Sprintf("A few details are still missing: %v", missing),
			Form:     &completed,
		}, nil
	}
	completed.IsComplete = true
	return &TurnOutcome{Form: &completed, Complete: true}, nil
}

// LookupSection fetches one knowledge-base section by title. Read-only; it
// never touches the contract.
func (c *NegotiationController) LookupSection(kb *KnowledgeBase, title string) (KnowledgeSection, error) {
	section, ok := kb.Section(title)
	if !ok {
		return KnowledgeSection{}, fmt.Errorf("%w: %q", ErrSectionNotFound, title)
	}
	return section, nil
}
