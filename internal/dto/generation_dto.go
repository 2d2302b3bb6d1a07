package dto

import (
	"time"

	"ai-slidegen-be/pkg/pipeline"

	"github.com/google/uuid"
)

type StartSessionRequest struct {
	Topic       string   `json:"topic"`
	SourceFiles []string `json:"source_files,omitempty"`
}

type StartSessionResponse struct {
	Id      uuid.UUID `json:"id"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

type ClarifyRequest struct {
	Message string `json:"message" validate:"required"`
}

type ClarifyResponse struct {
	SessionId uuid.UUID           `json:"session_id"`
	Status    string              `json:"status"`
	Complete  bool                `json:"complete"`
	Question  string              `json:"question,omitempty"`
	OrderForm *pipeline.OrderForm `json:"order_form,omitempty"`
	Skeleton  *pipeline.Skeleton  `json:"skeleton,omitempty"`
}

type OutlineDecisionRequest struct {
	Modifications []pipeline.Modification `json:"modifications,omitempty" validate:"dive"`
	Regenerate    bool                    `json:"regenerate"`
	Proceed       bool                    `json:"proceed"`
}

type OutlineResponse struct {
	SessionId uuid.UUID          `json:"session_id"`
	Status    string             `json:"status"`
	Skeleton  *pipeline.Skeleton `json:"skeleton,omitempty"`
}

type GenerationStartResponse struct {
	SessionId   uuid.UUID `json:"session_id"`
	Status      string    `json:"status"`
	TotalSlides int       `json:"total_slides"`
	Message     string    `json:"message"`
}

type SessionStatusResponse struct {
	SessionId     uuid.UUID           `json:"session_id"`
	Status        string              `json:"status"`
	CurrentStage  string              `json:"current_stage,omitempty"`
	OrderForm     *pipeline.OrderForm `json:"order_form,omitempty"`
	Skeleton      *pipeline.Skeleton  `json:"skeleton,omitempty"`
	QaScore       *float64            `json:"qa_score,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

type ResultResponse struct {
	SessionId uuid.UUID                `json:"session_id"`
	Rendered  *pipeline.RenderedOutput `json:"rendered_output"`
	QaReport  *pipeline.QAReport       `json:"qa_report,omitempty"`
}

type SectionResponse struct {
	SessionId uuid.UUID                 `json:"session_id"`
	Section   pipeline.KnowledgeSection `json:"section"`
}

type CancelResponse struct {
	SessionId uuid.UUID `json:"session_id"`
	Status    string    `json:"status"`
}
