package service

import (
	"context"

	"ai-slidegen-be/internal/dto"
	"ai-slidegen-be/internal/pkg/logger"
	"ai-slidegen-be/pkg/pipeline"

	"github.com/google/uuid"
)

type IGenerationService interface {
	Start(ctx context.Context, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error)
	Clarify(ctx context.Context, id uuid.UUID, req *dto.ClarifyRequest) (*dto.ClarifyResponse, error)
	DecideOutline(ctx context.Context, id uuid.UUID, req *dto.OutlineDecisionRequest) (*dto.OutlineResponse, error)
	Generate(ctx context.Context, id uuid.UUID) (*dto.GenerationStartResponse, error)
	Status(ctx context.Context, id uuid.UUID) (*dto.SessionStatusResponse, error)
	Result(ctx context.Context, id uuid.UUID) (*dto.ResultResponse, error)
	Section(ctx context.Context, id uuid.UUID, title string) (*dto.SectionResponse, error)
	Cancel(ctx context.Context, id uuid.UUID) (*dto.CancelResponse, error)
}

type generationService struct {
	machine *pipeline.Machine
	log     logger.ILogger
}

func NewGenerationService(machine *pipeline.Machine, log logger.ILogger) IGenerationService {
	return &generationService{machine: machine, log: log}
}

func (s *generationService) Start(ctx context.Context, req *dto.StartSessionRequest) (*dto.StartSessionResponse, error) {
	session, err := s.machine.Start(ctx, pipeline.StartInput{
		Topic:       req.Topic,
		SourceFiles: req.SourceFiles,
	})
	if err != nil {
		return nil, err
	}
	return &dto.StartSessionResponse{
		Id:      session.ID,
		Status:  string(session.Status),
		Message: "Session created. Send your first message to the clarify endpoint.",
	}, nil
}

func (s *generationService) Clarify(ctx context.Context, id uuid.UUID, req *dto.ClarifyRequest) (*dto.ClarifyResponse, error) {
	outcome, session, err := s.machine.Clarify(ctx, id, req.Message)
	if err != nil {
		return nil, err
	}
	resp := &dto.ClarifyResponse{
		SessionId: session.ID,
		Status:    string(session.Status),
		Complete:  outcome.Complete,
		Question:  outcome.Question,
		OrderForm: session.OrderForm,
	}
	if outcome.Complete {
		resp.Skeleton = session.Skeleton
	}
	return resp, nil
}

func (s *generationService) DecideOutline(ctx context.Context, id uuid.UUID, req *dto.OutlineDecisionRequest) (*dto.OutlineResponse, error) {
	session, err := s.machine.DecideOutline(ctx, id, pipeline.OutlineDecision{
		Modifications: req.Modifications,
		Regenerate:    req.Regenerate,
		Proceed:       req.Proceed,
	})
	if err != nil {
		return nil, err
	}
	return &dto.OutlineResponse{
		SessionId: session.ID,
		Status:    string(session.Status),
		Skeleton:  session.Skeleton,
	}, nil
}

// Generate kicks the pipeline off in the background; progress flows through
// the event stream. The detached context deliberately outlives the request.
func (s *generationService) Generate(ctx context.Context, id uuid.UUID) (*dto.GenerationStartResponse, error) {
	session, err := s.machine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status != pipeline.StatusOutlineApproved {
		return nil, &pipeline.PreconditionError{Status: session.Status, Reason: "outline is not approved"}
	}

	go func() {
		if _, err := s.machine.Generate(context.Background(), id); err != nil {
			s.log.Error("GenerationService", "Pipeline run ended with error", map[string]interface{}{
				"session_id": id.String(), "error": err.Error(),
			})
		}
	}()

	return &dto.GenerationStartResponse{
		SessionId:   session.ID,
		Status:      "generating",
		TotalSlides: len(session.Skeleton.Slides),
		Message:     "Generation started. Subscribe to the progress stream for updates.",
	}, nil
}

func (s *generationService) Status(ctx context.Context, id uuid.UUID) (*dto.SessionStatusResponse, error) {
	session, err := s.machine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.SessionStatusResponse{
		SessionId:     session.ID,
		Status:        string(session.Status),
		CurrentStage:  session.CurrentStage,
		OrderForm:     session.OrderForm,
		Skeleton:      session.Skeleton,
		FailureReason: session.FailureReason,
		CreatedAt:     session.CreatedAt,
		UpdatedAt:     session.UpdatedAt,
	}
	if session.QAReport != nil {
		score := session.QAReport.AverageScore
		resp.QaScore = &score
	}
	return resp, nil
}

func (s *generationService) Result(ctx context.Context, id uuid.UUID) (*dto.ResultResponse, error) {
	session, err := s.machine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Partial artifacts stay inspectable after failure or cancellation; only
	// a session with no rendered output at all has nothing to return.
	if session.Rendered == nil {
		return nil, &pipeline.PreconditionError{Status: session.Status, Reason: "no rendered output yet"}
	}
	return &dto.ResultResponse{
		SessionId: session.ID,
		Rendered:  session.Rendered,
		QaReport:  session.QAReport,
	}, nil
}

func (s *generationService) Section(ctx context.Context, id uuid.UUID, title string) (*dto.SectionResponse, error) {
	section, err := s.machine.Section(ctx, id, title)
	if err != nil {
		return nil, err
	}
	return &dto.SectionResponse{SessionId: id, Section: section}, nil
}

func (s *generationService) Cancel(ctx context.Context, id uuid.UUID) (*dto.CancelResponse, error) {
	session, err := s.machine.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.CancelResponse{SessionId: session.ID, Status: string(session.Status)}, nil
}
