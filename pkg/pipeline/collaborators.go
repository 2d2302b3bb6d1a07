package pipeline

import (
	"context"

	"github.com/google/uuid"
)

// The generative and rendering collaborators the core delegates to.
// Implementations live outside this module; the pipeline only sequences them.

// Synthesizer extracts a structured knowledge base from source documents.
// May be slow; invoked through the stage runner.
type Synthesizer interface {
	Extract(ctx context.Context, sourceFiles []string) (*KnowledgeBase, error)
}

// TurnResult is one negotiation turn outcome: either a follow-up question or
// a completed contract, never both.
type TurnResult struct {
	Question      string
	CompletedForm *OrderForm
}

// NegotiationCollaborator drives the clarification dialogue. It receives the
// knowledge-base summary (not full content) and the contract so far.
type NegotiationCollaborator interface {
	NextTurn(ctx context.Context, form OrderForm, kbSummary string, userMessage string) (*TurnResult, error)
}

// Outliner plans an outline from the completed contract.
type Outliner interface {
	Plan(ctx context.Context, form OrderForm, kb *KnowledgeBase) (*Skeleton, error)
}

// Enricher adds content, citations and asset sources to the approved outline.
// Unverifiable claims must be flagged in the result, not dropped.
type Enricher interface {
	Enrich(ctx context.Context, skeleton Skeleton, kb *KnowledgeBase) (*EnrichedContent, error)
}

// Assembler renders enriched content into the final structural output.
type Assembler interface {
	Assemble(ctx context.Context, content EnrichedContent, themeID string) (*RenderedOutput, error)
}

// VisualArtifact is an opaque capture of one rendered slide.
type VisualArtifact []byte

// Renderer captures a visual artifact for one slide.
type Renderer interface {
	Render(ctx context.Context, slide RenderedSlide) (VisualArtifact, error)
}

// Grade is a scoring pass over one visual artifact.
type Grade struct {
	Score  float64
	Issues []string
}

// SlideGrader scores a rendered slide in [0.0, 1.0].
type SlideGrader interface {
	Grade(ctx context.Context, artifact VisualArtifact) (Grade, error)
}

// SlideFixer requests a targeted repair using the grader's issues.
type SlideFixer interface {
	Fix(ctx context.Context, slide RenderedSlide, issues []string) (RenderedSlide, error)
}

// Store is the durable session store contract. All mutation flows through
// the state machine's read-modify-conditional-write cycle.
type Store interface {
	Create(ctx context.Context, session *Session) error

	// Load returns the session and the checkpoint version it was read at.
	Load(ctx context.Context, id uuid.UUID) (*Session, int64, error)

	// CompareAndSwap persists the session iff the stored checkpoint version
	// still equals expectedVersion; on success the stored version becomes
	// expectedVersion+1 and session.CheckpointVersion is updated to match.
	// Returns ErrStaleCheckpoint on conflict.
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, session *Session) error

	Delete(ctx context.Context, id uuid.UUID) error
}

// Collaborators bundles every delegated dependency of the state machine.
type Collaborators struct {
	Synthesizer Synthesizer
	Negotiation NegotiationCollaborator
	Outliner    Outliner
	Enricher    Enricher
	Assembler   Assembler
	Renderer    Renderer
	Grader      SlideGrader
	Fixer       SlideFixer
}
