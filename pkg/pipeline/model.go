package pipeline

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the session lifecycle state.
type Status string

const (
	StatusCreated                 Status = "created"
	StatusSynthesizing            Status = "synthesizing"
	StatusAwaitingClarification   Status = "awaiting_clarification"
	StatusClarifying              Status = "clarifying"
	StatusAwaitingOutlineApproval Status = "awaiting_outline_approval"
	StatusOutlineApproved         Status = "outline_approved"
	StatusEnriching               Status = "enriching"
	StatusAssembling              Status = "assembling"
	StatusQAInProgress            Status = "qa_in_progress"
	StatusCompleted               Status = "completed"
	StatusFailed                  Status = "failed"
	StatusCancelled               Status = "cancelled"
)

// Stage names used in events and current_stage tracking.
const (
	StageSynthesis = "synthesis"
	StageClarifier = "clarifier"
	StageOutliner  = "outliner"
	StageEnricher  = "enricher"
	StageAssembler = "assembler"
	StageVisualQA  = "visual_qa"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func (s Status) AwaitingInput() bool {
	return s == StatusAwaitingClarification || s == StatusAwaitingOutlineApproval
}

func (s Status) InProgress() bool {
	switch s {
	case StatusSynthesizing, StatusClarifying, StatusEnriching, StatusAssembling, StatusQAInProgress:
		return true
	}
	return false
}

// KnowledgeSection is one structured extract from the source material.
type KnowledgeSection struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	VisualRefs []string `json:"visual_refs,omitempty"`
	PageStart  int      `json:"page_start,omitempty"`
	PageEnd    int      `json:"page_end,omitempty"`
}

// KnowledgeBase is the synthesis output: summary plus ordered sections.
// Immutable once set on a session.
type KnowledgeBase struct {
	Summary  string             `json:"summary"`
	Sections []KnowledgeSection `json:"sections"`
}

// Section looks up one section by title, case-insensitive. Read-only
// capability exposed to the negotiation collaborator.
func (kb *KnowledgeBase) Section(title string) (KnowledgeSection, bool) {
	if kb == nil {
		return KnowledgeSection{}, false
	}
	for _, s := range kb.Sections {
		if strings.EqualFold(s.Title, title) {
			return s, true
		}
	}
	return KnowledgeSection{}, false
}

// OrderForm is the negotiated requirements contract. Fields are either unset
// or final; negotiation replaces fields, never merges conflicting values.
type OrderForm struct {
	Title               string   `json:"title"`
	Audience            string   `json:"audience"`
	TargetSlides        int      `json:"target_slides"`
	Tone                string   `json:"tone"`
	EmphasisStyle       string   `json:"emphasis_style"`
	CitationStyle       string   `json:"citation_style"`
	ReferencesPlacement string   `json:"references_placement"`
	ThemeID             string   `json:"theme_id"`
	KeyTopics           []string `json:"key_topics,omitempty"`
	FocusAreas          []string `json:"focus_areas,omitempty"`
	IncludeSpeakerNotes bool     `json:"include_speaker_notes"`
	SpecialRequests     string   `json:"special_requests,omitempty"`
	IsComplete          bool     `json:"is_complete"`
}

// MissingRequired lists the required fields still unset.
func (f *OrderForm) MissingRequired() []string {
	var missing []string
	if f.Title == "" {
		missing = append(missing, "title")
	}
	if f.Audience == "" {
		missing = append(missing, "audience")
	}
	if f.TargetSlides <= 0 {
		missing = append(missing, "target_slides")
	}
	if len(f.FocusAreas) == 0 && len(f.KeyTopics) == 0 {
		missing = append(missing, "key_topics")
	}
	if f.ThemeID == "" {
		missing = append(missing, "theme_id")
	}
	if f.CitationStyle == "" {
		missing = append(missing, "citation_style")
	}
	return missing
}

// SkeletonSlide is one planned unit in the outline.
type SkeletonSlide struct {
	Order         int    `json:"order"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	ContentType   string `json:"content_type"`
	NeedsDiagram  bool   `json:"needs_diagram"`
	NeedsEquation bool   `json:"needs_equation"`
	NeedsCitation bool   `json:"needs_citation"`
}

// Skeleton is the ordered outline awaiting user approval.
type Skeleton struct {
	Title        string          `json:"title"`
	Audience     string          `json:"audience"`
	NarrativeArc string          `json:"narrative_arc,omitempty"`
	Slides       []SkeletonSlide `json:"slides"`
}

// Modification is one user edit to the outline at the approval gate.
type Modification struct {
	Action      string `json:"action" validate:"required,oneof=add remove modify reorder"`
	Order       int    `json:"order,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	NewOrder    []int  `json:"new_order,omitempty"`
}

// EnrichedSlide carries full content plus verified assets and citations.
type EnrichedSlide struct {
	Order            int      `json:"order"`
	Title            string   `json:"title"`
	ContentType      string   `json:"content_type"`
	BulletPoints     []string `json:"bullet_points,omitempty"`
	Citations        []string `json:"citations,omitempty"`
	DiagramSource    string   `json:"diagram_source,omitempty"`
	EquationSource   string   `json:"equation_source,omitempty"`
	SpeakerNotes     string   `json:"speaker_notes,omitempty"`
	UnverifiedClaims []string `json:"unverified_claims,omitempty"`
}

// EnrichedContent is the enrichment stage output. Claims the collaborator
// could not verify are surfaced in UnverifiedClaims, never dropped silently.
type EnrichedContent struct {
	Title         string          `json:"title"`
	ThemeID       string          `json:"theme_id"`
	CitationStyle string          `json:"citation_style"`
	Slides        []EnrichedSlide `json:"slides"`
}

// RenderedSlide is one assembled output unit.
type RenderedSlide struct {
	Order        int    `json:"order"`
	Title        string `json:"title"`
	HTML         string `json:"html"`
	SpeakerNotes string `json:"speaker_notes,omitempty"`
}

// RenderedOutput is the assembly stage output, schema-validated before QA.
type RenderedOutput struct {
	Title   string          `json:"title"`
	ThemeID string          `json:"theme_id"`
	Slides  []RenderedSlide `json:"slides"`
}

// QAResult is the grading outcome for one slide.
type QAResult struct {
	SlideOrder int      `json:"slide_order"`
	Score      float64  `json:"score"`
	Issues     []string `json:"issues,omitempty"`
	Passed     bool     `json:"passed"`
	Iteration  int      `json:"iteration"`
}

// QAReport aggregates per-slide grading outcomes.
type QAReport struct {
	Slides          []QAResult `json:"slides"`
	AverageScore    float64    `json:"average_score"`
	AllPassed       bool       `json:"all_passed"`
	TotalIterations int        `json:"total_iterations"`
}

// Session is the unit of work the state machine operates on.
type Session struct {
	ID           uuid.UUID `json:"id"`
	Status       Status    `json:"status"`
	CurrentStage string    `json:"current_stage,omitempty"`

	Topic       string   `json:"topic,omitempty"`
	SourceFiles []string `json:"source_files,omitempty"`

	KnowledgeBase *KnowledgeBase   `json:"knowledge_base,omitempty"`
	OrderForm     *OrderForm       `json:"order_form,omitempty"`
	Skeleton      *Skeleton        `json:"skeleton,omitempty"`
	Enriched      *EnrichedContent `json:"enriched_content,omitempty"`
	Rendered      *RenderedOutput  `json:"rendered_output,omitempty"`
	QAReport      *QAReport        `json:"qa_report,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`

	CheckpointVersion int64     `json:"checkpoint_version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewSession creates a session in the created state.
func NewSession(topic string, sourceFiles []string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:          uuid.New(),
		Status:      StatusCreated,
		Topic:       topic,
		SourceFiles: sourceFiles,
		OrderForm:   &OrderForm{Title: topic},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone deep-copies the session via its JSON form, so stores and callers
// never share mutable artifact state.
func (s *Session) Clone() *Session {
	data, err := json.Marshal(s)
	if err != nil {
		cp := *s
		return &cp
	}
	var cp Session
	if err := json.Unmarshal(data, &cp); err != nil {
		cp = *s
	}
	return &cp
}
