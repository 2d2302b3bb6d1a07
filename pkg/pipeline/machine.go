package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ai-slidegen-be/internal/pkg/logger"
	"ai-slidegen-be/pkg/events"

	"github.com/google/uuid"
)

// Machine owns the canonical session state. It validates transitions,
// sequences stage runners, enforces the approval gates and persists a
// checkpoint after every transition. A stage is never considered complete
// until its checkpoint write succeeded.
type Machine struct {
	cfg         Config
	store       Store
	pub         *events.Publisher
	runner      *Runner
	grading     *GradingLoop
	negotiation *NegotiationController
	collab      Collaborators
	log         logger.ILogger

	mu       sync.Mutex
	inflight map[uuid.UUID]context.CancelFunc
}

func NewMachine(cfg Config, store Store, pub *events.Publisher, log logger.ILogger, collab Collaborators) *Machine {
	return &Machine{
		cfg:         cfg,
		store:       store,
		pub:         pub,
		runner:      NewRunner(cfg, pub, log),
		grading:     NewGradingLoop(cfg, pub, log, collab.Renderer, collab.Grader, collab.Fixer),
		negotiation: NewNegotiationController(collab.Negotiation),
		collab:      collab,
		log:         log,
		inflight:    make(map[uuid.UUID]context.CancelFunc),
	}
}

// StartInput is the initial user input. Leaving the created state requires
// at least a topic or source documents; this is the implicit first gate.
type StartInput struct {
	Topic       string
	SourceFiles []string
}

// Start creates a session, runs synthesis when source documents were
// supplied (an explicit skip branch otherwise), and leaves the session
// awaiting clarification.
func (m *Machine) Start(ctx context.Context, input StartInput) (*Session, error) {
	if input.Topic == "" && len(input.SourceFiles) == 0 {
		return nil, &PreconditionError{Status: StatusCreated, Reason: "a topic or source documents are required"}
	}

	s := NewSession(input.Topic, input.SourceFiles)
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}

	if len(input.SourceFiles) > 0 {
		if err := m.transition(ctx, s, StatusSynthesizing, StageSynthesis, ""); err != nil {
			return nil, err
		}
		result, err := m.runner.Run(ctx, s.ID.String(), StageSynthesis, "synthesis", func(ctx context.Context, emit ProgressFunc) (interface{}, error) {
			return m.collab.Synthesizer.Extract(ctx, s.SourceFiles)
		})
		if err != nil {
			return s, m.fail(ctx, s, StageSynthesis, err)
		}
		s.KnowledgeBase = result.(*KnowledgeBase)
	} else {
		m.pub.Publish(s.ID.String(), events.TypeStageChange, StageSynthesis, map[string]interface{}{
			"status": "skipped",
			"reason": "no source material",
		})
	}

	if err := m.transition(ctx, s, StatusAwaitingClarification, StageClarifier, ""); err != nil {
		return nil, err
	}
	return s, nil
}

// Get loads the current session snapshot.
func (m *Machine) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, _, err := m.store.Load(ctx, id)
	return s, err
}

// Section exposes one knowledge-base section by title, read-only.
func (m *Machine) Section(ctx context.Context, id uuid.UUID, title string) (KnowledgeSection, error) {
	s, _, err := m.store.Load(ctx, id)
	if err != nil {
		return KnowledgeSection{}, err
	}
	return m.negotiation.LookupSection(s.KnowledgeBase, title)
}

// Clarify processes one negotiation turn. When the contract completes, the
// outline stage runs immediately and the session moves to the approval gate;
// otherwise the session returns to awaiting_clarification with the next
// question. The machine refuses to advance while required fields are unset.
func (m *Machine) Clarify(ctx context.Context, id uuid.UUID, userMessage string) (*TurnOutcome, *Session, error) {
	s, _, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if s.Status != StatusAwaitingClarification {
		return nil, nil, &PreconditionError{Status: s.Status, Reason: "session is not awaiting clarification"}
	}

	if err := m.transition(ctx, s, StatusClarifying, StageClarifier, ""); err != nil {
		return nil, nil, err
	}

	form := OrderForm{}
	if s.OrderForm != nil {
		form = *s.OrderForm
	}
	outcome, err := m.negotiation.Turn(ctx, form, s.KnowledgeBase, userMessage)
	if err != nil {
		if Retryable(err) {
			// A transient turn failure does not kill the session; the user
			// simply resends the message.
			if terr := m.transition(ctx, s, StatusAwaitingClarification, StageClarifier, "turn failed"); terr != nil {
				return nil, nil, terr
			}
			return nil, s, err
		}
		return nil, s, m.fail(ctx, s, StageClarifier, err)
	}

	s.OrderForm = outcome.Form
	if !outcome.Complete {
		if err := m.transition(ctx, s, StatusAwaitingClarification, StageClarifier, ""); err != nil {
			return nil, nil, err
		}
		return outcome, s, nil
	}

	if err := m.runOutline(ctx, s); err != nil {
		return outcome, s, err
	}
	return outcome, s, nil
}

// runOutline executes the outline-producing stage and parks the session at
// the approval gate. The caller must have verified the contract is complete.
func (m *Machine) runOutline(ctx context.Context, s *Session) error {
	if s.OrderForm == nil || !s.OrderForm.IsComplete {
		return &PreconditionError{Status: s.Status, Reason: "requirements contract is not complete"}
	}
	result, err := m.runner.Run(ctx, s.ID.String(), StageOutliner, "outliner", func(ctx context.Context, emit ProgressFunc) (interface{}, error) {
		return m.collab.Outliner.Plan(ctx, *s.OrderForm, s.KnowledgeBase)
	})
	if err != nil {
		return m.fail(ctx, s, StageOutliner, err)
	}
	s.Skeleton = result.(*Skeleton)
	return m.transition(ctx, s, StatusAwaitingOutlineApproval, StageOutliner, "")
}

// OutlineDecision is the user's input at the outline approval gate.
//   - Modifications are folded into the outline (add/remove/modify/reorder).
//   - Regenerate re-runs the outline stage with the edits folded in as
//     additional negotiated constraints; synthesis is never re-run.
//   - Proceed approves the (possibly edited) outline and unlocks generation.
//
// With Proceed false the session stays at the approval gate for further edits.
type OutlineDecision struct {
	Modifications []Modification
	Regenerate    bool
	Proceed       bool
}

// DecideOutline applies the user's decision at the approval gate.
func (m *Machine) DecideOutline(ctx context.Context, id uuid.UUID, decision OutlineDecision) (*Session, error) {
	s, _, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusAwaitingOutlineApproval {
		return nil, &PreconditionError{Status: s.Status, Reason: "no outline awaiting approval"}
	}

	switch {
	case decision.Regenerate:
		folded := *s.OrderForm
		for _, mod := range decision.Modifications {
			folded.SpecialRequests = strings.TrimSpace(folded.SpecialRequests + "\n" + describeModification(mod))
		}
		s.OrderForm = &folded
		if err := m.runOutline(ctx, s); err != nil {
			return s, err
		}
	case len(decision.Modifications) > 0:
		edited, err := ApplyModifications(*s.Skeleton, decision.Modifications)
		if err != nil {
			return nil, &PreconditionError{Status: s.Status, Reason: err.Error()}
		}
		s.Skeleton = &edited
		if err := m.transition(ctx, s, StatusAwaitingOutlineApproval, StageOutliner, "outline edited"); err != nil {
			return nil, err
		}
	}

	if !decision.Proceed {
		return s, nil
	}
	if len(s.Skeleton.Slides) == 0 {
		return nil, &PreconditionError{Status: s.Status, Reason: "outline has no slides"}
	}
	if err := m.transition(ctx, s, StatusOutlineApproved, "", "outline approved"); err != nil {
		return nil, err
	}
	return s, nil
}

// Generate runs enrichment, assembly and the grading loop to completion.
// It blocks for the full pipeline; callers that need fire-and-forget run it
// on their own goroutine and follow progress through the event stream.
func (m *Machine) Generate(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, _, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status != StatusOutlineApproved {
		return nil, &PreconditionError{Status: s.Status, Reason: "outline is not approved"}
	}

	ctx, release := m.track(s.ID, ctx)
	defer release()

	// Enrichment
	if err := m.transition(ctx, s, StatusEnriching, StageEnricher, ""); err != nil {
		return nil, err
	}
	result, err := m.runner.Run(ctx, s.ID.String(), StageEnricher, "enricher", func(ctx context.Context, emit ProgressFunc) (interface{}, error) {
		return m.collab.Enricher.Enrich(ctx, *s.Skeleton, s.KnowledgeBase)
	})
	if err != nil {
		return s, m.fail(ctx, s, StageEnricher, err)
	}
	s.Enriched = result.(*EnrichedContent)

	// Assembly + structural schema gate
	if err := m.transition(ctx, s, StatusAssembling, StageAssembler, ""); err != nil {
		return nil, err
	}
	result, err = m.runner.Run(ctx, s.ID.String(), StageAssembler, "assembler", func(ctx context.Context, emit ProgressFunc) (interface{}, error) {
		return m.collab.Assembler.Assemble(ctx, *s.Enriched, s.OrderForm.ThemeID)
	})
	if err != nil {
		return s, m.fail(ctx, s, StageAssembler, err)
	}
	rendered := result.(*RenderedOutput)
	if err := ValidateRendered(rendered); err != nil {
		return s, m.fail(ctx, s, StageAssembler, err)
	}
	s.Rendered = rendered

	// Visual QA
	if err := m.transition(ctx, s, StatusQAInProgress, StageVisualQA, ""); err != nil {
		return nil, err
	}
	report, kept, err := m.grading.Run(ctx, s.ID.String(), *s.Rendered)
	if err != nil {
		return s, m.fail(ctx, s, StageVisualQA, err)
	}
	s.QAReport = report
	s.Rendered = kept

	if err := m.transition(ctx, s, StatusCompleted, "", ""); err != nil {
		return nil, err
	}
	m.pub.Publish(s.ID.String(), events.TypePipelineComplete, "", map[string]interface{}{
		"total_slides":  len(s.Rendered.Slides),
		"average_score": report.AverageScore,
		"all_passed":    report.AllPassed,
	})
	m.pub.DiscardAfter(s.ID.String(), m.cfg.EventGracePeriod)
	return s, nil
}

// Cancel moves the session to cancelled from any non-terminal state and
// signals in-flight work to stop. Already persisted partial artifacts stay
// inspectable; cancellation never rolls back.
func (m *Machine) Cancel(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, _, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Status.Terminal() {
		return nil, &PreconditionError{Status: s.Status, Reason: "session already terminal"}
	}

	m.mu.Lock()
	if cancel, ok := m.inflight[id]; ok {
		cancel()
	}
	m.mu.Unlock()

	if err := m.transition(ctx, s, StatusCancelled, "", "cancelled by user"); err != nil {
		return nil, err
	}
	m.pub.DiscardAfter(s.ID.String(), m.cfg.EventGracePeriod)
	return s, nil
}

// track registers a cancellable context for in-flight pipeline work.
func (m *Machine) track(id uuid.UUID, parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	m.mu.Lock()
	m.inflight[id] = cancel
	m.mu.Unlock()
	return ctx, func() {
		m.mu.Lock()
		delete(m.inflight, id)
		m.mu.Unlock()
		cancel()
	}
}

// transition moves the session to the next status, persists the checkpoint,
// then emits the stage_change event. CurrentStage is non-empty exactly while
// the session is in progress or awaiting input.
func (m *Machine) transition(ctx context.Context, s *Session, to Status, stage string, reason string) error {
	from := s.Status
	s.Status = to
	if to.InProgress() || to.AwaitingInput() {
		s.CurrentStage = stage
	} else {
		s.CurrentStage = ""
	}
	s.UpdatedAt = time.Now().UTC()

	if err := m.store.CompareAndSwap(ctx, s.ID, s.CheckpointVersion, s); err != nil {
		return fmt.Errorf("checkpoint %s -> %s: %w", from, to, err)
	}

	data := map[string]interface{}{"from": from, "to": to}
	if reason != "" {
		data["reason"] = reason
	}
	m.pub.Publish(s.ID.String(), events.TypeStageChange, stage, data)
	return nil
}

// fail marks the session failed with the cause, persists the checkpoint and
// emits the terminal pipeline_error event. A cancelled context is not a
// failure: the Cancel transition has already been persisted elsewhere.
func (m *Machine) fail(ctx context.Context, s *Session, stage string, cause error) error {
	if errors.Is(cause, context.Canceled) {
		return cause
	}

	s.FailureReason = cause.Error()
	if err := m.transition(context.WithoutCancel(ctx), s, StatusFailed, "", "stage failed"); err != nil {
		// A concurrent Cancel can win the checkpoint race; the session is
		// terminal either way.
		if errors.Is(err, ErrStaleCheckpoint) {
			return cause
		}
		m.log.Error("Machine", "Failed to persist failure checkpoint", map[string]interface{}{
			"session_id": s.ID.String(), "error": err.Error(),
		})
		return cause
	}
	m.pub.Publish(s.ID.String(), events.TypePipelineError, stage, map[string]interface{}{
		"message": cause.Error(),
		"stage":   stage,
	})
	m.pub.DiscardAfter(s.ID.String(), m.cfg.EventGracePeriod)
	return cause
}
