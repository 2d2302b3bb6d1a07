package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-slidegen-be/internal/pkg/logger"
	"ai-slidegen-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// fakeStore is a minimal conditional-write store for machine tests.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[uuid.UUID]*Session)}
}

func (f *fakeStore) Create(_ context.Context, session *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.ID] = session.Clone()
	return nil
}

func (f *fakeStore) Load(_ context.Context, id uuid.UUID) (*Session, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, 0, ErrSessionNotFound
	}
	cp := s.Clone()
	return cp, cp.CheckpointVersion, nil
}

func (f *fakeStore) CompareAndSwap(_ context.Context, id uuid.UUID, expectedVersion int64, session *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.CheckpointVersion != expectedVersion {
		return ErrStaleCheckpoint
	}
	next := session.Clone()
	next.CheckpointVersion = expectedVersion + 1
	f.sessions[id] = next
	session.CheckpointVersion = expectedVersion + 1
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

// stubAgents is a happy-path collaborator bundle; individual behaviors are
// overridable per test.
type stubAgents struct {
	extractFn  func(ctx context.Context, sourceFiles []string) (*KnowledgeBase, error)
	turnFn     func(ctx context.Context, form OrderForm, kbSummary, userMessage string) (*TurnResult, error)
	planFn     func(ctx context.Context, form OrderForm, kb *KnowledgeBase) (*Skeleton, error)
	assembleFn func(ctx context.Context, content EnrichedContent, themeID string) (*RenderedOutput, error)

	planCalls int
}

func (a *stubAgents) Extract(ctx context.Context, sourceFiles []string) (*KnowledgeBase, error) {
	if a.extractFn != nil {
		return a.extractFn(ctx, sourceFiles)
	}
	return &KnowledgeBase{
		Summary:  "two papers on consensus",
		Sections: []KnowledgeSection{{Title: "Raft", Content: "leader election"}},
	}, nil
}

func (a *stubAgents) NextTurn(ctx context.Context, form OrderForm, kbSummary, userMessage string) (*TurnResult, error) {
	if a.turnFn != nil {
		return a.turnFn(ctx, form, kbSummary, userMessage)
	}
	return &TurnResult{CompletedForm: completeForm()}, nil
}

func (a *stubAgents) Plan(ctx context.Context, form OrderForm, kb *KnowledgeBase) (*Skeleton, error) {
	a.planCalls++
	if a.planFn != nil {
		return a.planFn(ctx, form, kb)
	}
	return &Skeleton{
		Title:    form.Title,
		Audience: form.Audience,
		Slides: []SkeletonSlide{
			{Order: 1, Title: "Intro", ContentType: "title"},
			{Order: 2, Title: "Raft", ContentType: "content"},
		},
	}, nil
}

func (a *stubAgents) Enrich(ctx context.Context, skeleton Skeleton, kb *KnowledgeBase) (*EnrichedContent, error) {
	content := &EnrichedContent{Title: skeleton.Title, ThemeID: "academic", CitationStyle: "apa"}
	for _, s := range skeleton.Slides {
		content.Slides = append(content.Slides, EnrichedSlide{Order: s.Order, Title: s.Title, ContentType: s.ContentType})
	}
	return content, nil
}

func (a *stubAgents) Assemble(ctx context.Context, content EnrichedContent, themeID string) (*RenderedOutput, error) {
	if a.assembleFn != nil {
		return a.assembleFn(ctx, content, themeID)
	}
	out := &RenderedOutput{Title: content.Title, ThemeID: themeID}
	for _, s := range content.Slides {
		out.Slides = append(out.Slides, RenderedSlide{Order: s.Order, Title: s.Title, HTML: "<section/>"})
	}
	return out, nil
}

func (a *stubAgents) Render(ctx context.Context, slide RenderedSlide) (VisualArtifact, error) {
	return VisualArtifact(slide.HTML), nil
}

func (a *stubAgents) Grade(ctx context.Context, artifact VisualArtifact) (Grade, error) {
	return Grade{Score: 0.99}, nil
}

func (a *stubAgents) Fix(ctx context.Context, slide RenderedSlide, issues []string) (RenderedSlide, error) {
	return slide, nil
}

func machineFixture(agents *stubAgents) (*Machine, *fakeStore, *events.Publisher) {
	cfg := DefaultConfig()
	cfg.RetryBackoffInitial = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	cfg.StageTimeout = time.Second

	store := newFakeStore()
	pub := events.NewPublisher()
	m := NewMachine(cfg, store, pub, logger.NewNop(), Collaborators{
		Synthesizer: agents,
		Negotiation: agents,
		Outliner:    agents,
		Enricher:    agents,
		Assembler:   agents,
		Renderer:    agents,
		Grader:      agents,
		Fixer:       agents,
	})
	return m, store, pub
}

func TestStartRequiresTopicOrSources(t *testing.T) {
	m, _, _ := machineFixture(&stubAgents{})

	_, err := m.Start(context.Background(), StartInput{})
	var pe *PreconditionError
	assert.True(t, errors.As(err, &pe))
}

func TestStartWithoutSourcesSkipsSynthesis(t *testing.T) {
	agents := &stubAgents{
		extractFn: func(ctx context.Context, sourceFiles []string) (*KnowledgeBase, error) {
			t.Fatal("synthesis must not run without source material")
			return nil, nil
		},
	}
	m, _, pub := machineFixture(agents)

	s, err := m.Start(context.Background(), StartInput{Topic: "Consensus"})
	assert.NoError(t, err)

	assert.Equal(t, StatusAwaitingClarification, s.Status)
	assert.Equal(t, StageClarifier, s.CurrentStage)
	assert.Nil(t, s.KnowledgeBase)
	assert.Equal(t, int64(1), s.CheckpointVersion)

	history := pub.History(s.ID.String(), 0)
	var skipped bool
	for _, ev := range history {
		if ev.Type == events.TypeStageChange && ev.Data["status"] == "skipped" {
			skipped = true
			assert.Equal(t, "no source material", ev.Data["reason"])
			assert.Equal(t, StageSynthesis, ev.Stage)
		}
	}
	assert.True(t, skipped, "skip must be an explicit recorded branch")
}

func TestStartWithSourcesRunsSynthesis(t *testing.T) {
	m, _, pub := machineFixture(&stubAgents{})

	s, err := m.Start(context.Background(), StartInput{SourceFiles: []string{"raft.pdf"}})
	assert.NoError(t, err)

	assert.Equal(t, StatusAwaitingClarification, s.Status)
	assert.NotNil(t, s.KnowledgeBase)
	assert.Equal(t, int64(2), s.CheckpointVersion, "synthesizing and awaiting_clarification checkpoints")

	// stage_change(synthesizing), start, complete, stage_change(awaiting)
	history := pub.History(s.ID.String(), 0)
	assert.Equal(t, events.TypeStageChange, history[0].Type)
	assert.Equal(t, events.TypeStart, history[1].Type)
	assert.Equal(t, events.TypeComplete, history[2].Type)
}

func TestStartSynthesisTerminalFailureFailsSession(t *testing.T) {
	agents := &stubAgents{
		extractFn: func(ctx context.Context, sourceFiles []string) (*KnowledgeBase, error) {
			return nil, &UpstreamError{Stage: StageSynthesis, Retryable: false, Err: errors.New("corrupt pdf")}
		},
	}
	m, store, pub := machineFixture(agents)

	s, err := m.Start(context.Background(), StartInput{SourceFiles: []string{"bad.pdf"}})
	assert.Error(t, err)

	stored, _, lerr := store.Load(context.Background(), s.ID)
	assert.NoError(t, lerr)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Contains(t, stored.FailureReason, "corrupt pdf")

	var terminalEv bool
	for _, ev := range pub.History(s.ID.String(), 0) {
		if ev.Type == events.TypePipelineError {
			terminalEv = true
		}
	}
	assert.True(t, terminalEv)
}

func startClarified(t *testing.T, m *Machine) *Session {
	t.Helper()
	s, err := m.Start(context.Background(), StartInput{Topic: "Consensus"})
	assert.NoError(t, err)
	return s
}

func TestClarifyRejectedOutsideAwaitingClarification(t *testing.T) {
	m, _, _ := machineFixture(&stubAgents{})
	s := startClarified(t, m)

	// Complete the contract; session moves to the approval gate.
	_, _, err := m.Clarify(context.Background(), s.ID, "use APA, academic theme, 12 slides")
	assert.NoError(t, err)

	_, _, err = m.Clarify(context.Background(), s.ID, "another message")
	var pe *PreconditionError
	assert.True(t, errors.As(err, &pe))
}

func TestClarifyIncompleteReturnsQuestion(t *testing.T) {
	agents := &stubAgents{
		turnFn: func(ctx context.Context, form OrderForm, kbSummary, userMessage string) (*TurnResult, error) {
			return &TurnResult{Question: "What citation style?"}, nil
		},
	}
	m, store, _ := machineFixture(agents)
	s := startClarified(t, m)

	outcome, s, err := m.Clarify(context.Background(), s.ID, "a deck about consensus")
	assert.NoError(t, err)
	assert.Equal(t, "What citation style?", outcome.Question)
	assert.False(t, outcome.Complete)
	assert.Equal(t, StatusAwaitingClarification, s.Status)

	stored, _, _ := store.Load(context.Background(), s.ID)
	assert.Equal(t, StatusAwaitingClarification, stored.Status)
}

func TestClarifyCompletionRunsOutlineToApprovalGate(t *testing.T) {
	m, store, _ := machineFixture(&stubAgents{})
	s := startClarified(t, m)

	outcome, s, err := m.Clarify(context.Background(), s.ID, "12 slides, APA, academic theme")
	assert.NoError(t, err)
	assert.True(t, outcome.Complete)

	assert.Equal(t, StatusAwaitingOutlineApproval, s.Status)
	assert.NotNil(t, s.Skeleton)
	assert.Len(t, s.Skeleton.Slides, 2)

	stored, _, _ := store.Load(context.Background(), s.ID)
	assert.Equal(t, StatusAwaitingOutlineApproval, stored.Status)
	assert.True(t, stored.OrderForm.IsComplete)
}

func TestClarifyTransientFailureKeepsSessionAlive(t *testing.T) {
	agents := &stubAgents{
		turnFn: func(ctx context.Context, form OrderForm, kbSummary, userMessage string) (*TurnResult, error) {
			return nil, &UpstreamError{Stage: StageClarifier, Retryable: true, Err: errors.New("upstream 503")}
		},
	}
	m, store, _ := machineFixture(agents)
	s := startClarified(t, m)

	_, _, err := m.Clarify(context.Background(), s.ID, "hello")
	assert.Error(t, err)

	stored, _, _ := store.Load(context.Background(), s.ID)
	assert.Equal(t, StatusAwaitingClarification, stored.Status, "transient turn failure must not kill the session")
}

func approvedSession(t *testing.T, m *Machine) *Session {
	t.Helper()
	s := startClarified(t, m)
	_, _, err := m.Clarify(context.Background(), s.ID, "12 slides, APA, academic theme")
	assert.NoError(t, err)
	s, err = m.DecideOutline(context.Background(), s.ID, OutlineDecision{Proceed: true})
	assert.NoError(t, err)
	return s
}

func TestGenerateRequiresApprovedOutline(t *testing.T) {
	m, _, _ := machineFixture(&stubAgents{})
	s := startClarified(t, m)

	_, err := m.Generate(context.Background(), s.ID)
	var pe *PreconditionError
	assert.True(t, errors.As(err, &pe), "generation is locked behind the approval gate")
}

func TestDecideOutlineEditsStayAtGate(t *testing.T) {
	m, _, _ := machineFixture(&stubAgents{})
	s := startClarified(t, m)
	_, _, err := m.Clarify(context.Background(), s.ID, "12 slides")
	assert.NoError(t, err)

	s, err = m.DecideOutline(context.Background(), s.ID, OutlineDecision{
		Modifications: []Modification{{Action: "remove", Order: 2}},
	})
	assert.NoError(t, err)

	assert.Equal(t, StatusAwaitingOutlineApproval, s.Status, "edits alone do not approve")
	assert.Len(t, s.Skeleton.Slides, 1)
	assert.Equal(t, 1, s.Skeleton.Slides[0].Order)
}

func TestDecideOutlineRegenerateFoldsEditsIntoContract(t *testing.T) {
	agents := &stubAgents{}
	m, _, _ := machineFixture(agents)
	s := startClarified(t, m)
	_, _, err := m.Clarify(context.Background(), s.ID, "12 slides")
	assert.NoError(t, err)
	assert.Equal(t, 1, agents.planCalls)

	s, err = m.DecideOutline(context.Background(), s.ID, OutlineDecision{
		Regenerate:    true,
		Modifications: []Modification{{Action: "remove", Order: 2}},
	})
	assert.NoError(t, err)

	assert.Equal(t, 2, agents.planCalls, "regeneration re-runs the outline stage only")
	assert.Equal(t, StatusAwaitingOutlineApproval, s.Status)
	assert.Contains(t, s.OrderForm.SpecialRequests, "position 2")
}

func TestFullPipelineRunsToCompletion(t *testing.T) {
	m, store, pub := machineFixture(&stubAgents{})
	s := approvedSession(t, m)

	s, err := m.Generate(context.Background(), s.ID)
	assert.NoError(t, err)

	assert.Equal(t, StatusCompleted, s.Status)
	assert.Empty(t, s.CurrentStage)
	assert.NotNil(t, s.Enriched)
	assert.NotNil(t, s.Rendered)
	assert.NotNil(t, s.QAReport)
	assert.True(t, s.QAReport.AllPassed)

	stored, version, _ := store.Load(context.Background(), s.ID)
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, int64(8), version, "every transition wrote exactly one checkpoint")

	history := pub.History(s.ID.String(), 0)
	var done bool
	var lastSeq uint64
	for _, ev := range history {
		assert.Greater(t, ev.Sequence, lastSeq, "event order must be strictly increasing")
		lastSeq = ev.Sequence
		if ev.Type == events.TypePipelineComplete {
			done = true
			assert.Equal(t, 2, ev.Data["total_slides"])
			assert.Equal(t, true, ev.Data["all_passed"])
		}
	}
	assert.True(t, done)
}

func TestSchemaGateFailsAssembly(t *testing.T) {
	agents := &stubAgents{
		assembleFn: func(ctx context.Context, content EnrichedContent, themeID string) (*RenderedOutput, error) {
			return &RenderedOutput{Title: content.Title, ThemeID: themeID}, nil // no slides
		},
	}
	m, store, _ := machineFixture(agents)
	s := approvedSession(t, m)

	_, err := m.Generate(context.Background(), s.ID)
	var se *SchemaError
	assert.True(t, errors.As(err, &se))

	stored, _, _ := store.Load(context.Background(), s.ID)
	assert.Equal(t, StatusFailed, stored.Status)
	assert.NotNil(t, stored.Enriched, "earlier persisted artifacts stay inspectable")
	assert.Contains(t, stored.FailureReason, "schema violation")
}

func TestCancelFromNonTerminalState(t *testing.T) {
	m, store, _ := machineFixture(&stubAgents{})
	s := startClarified(t, m)

	s, err := m.Cancel(context.Background(), s.ID)
	assert.NoError(t, err)
	assert.Equal(t, StatusCancelled, s.Status)

	stored, _, _ := store.Load(context.Background(), s.ID)
	assert.Equal(t, StatusCancelled, stored.Status)

	_, err = m.Cancel(context.Background(), s.ID)
	var pe *PreconditionError
	assert.True(t, errors.As(err, &pe), "terminal sessions cannot be cancelled again")
}

func TestCheckpointConflictIsStale(t *testing.T) {
	m, store, _ := machineFixture(&stubAgents{})
	s := startClarified(t, m)

	// A concurrent writer advances the checkpoint underneath us.
	fresh, version, _ := store.Load(context.Background(), s.ID)
	assert.NoError(t, store.CompareAndSwap(context.Background(), s.ID, version, fresh))

	stale := fresh.Clone()
	stale.CheckpointVersion = version // outdated snapshot
	err := store.CompareAndSwap(context.Background(), s.ID, version, stale)
	assert.ErrorIs(t, err, ErrStaleCheckpoint)
}

func TestSectionLookup(t *testing.T) {
	m, _, _ := machineFixture(&stubAgents{})
	s, err := m.Start(context.Background(), StartInput{SourceFiles: []string{"raft.pdf"}})
	assert.NoError(t, err)

	section, err := m.Section(context.Background(), s.ID, "raft")
	assert.NoError(t, err)
	assert.Equal(t, "Raft", section.Title)
	assert.True(t, strings.Contains(section.Content, "leader"))

	_, err = m.Section(context.Background(), s.ID, "nope")
	assert.ErrorIs(t, err, ErrSectionNotFound)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	m, _, _ := machineFixture(&stubAgents{})

	_, err := m.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
