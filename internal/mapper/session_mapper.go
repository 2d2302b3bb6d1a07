package mapper

import (
	"encoding/json"

	"ai-slidegen-be/internal/entity"
	"ai-slidegen-be/pkg/pipeline"

	"gorm.io/datatypes"
)

func marshalField(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// SessionToEntity flattens the domain session into its checkpoint row.
func SessionToEntity(s *pipeline.Session) (*entity.GenerationSession, error) {
	ent := &entity.GenerationSession{
		Id:                s.ID,
		Status:            string(s.Status),
		CurrentStage:      s.CurrentStage,
		Topic:             s.Topic,
		FailureReason:     s.FailureReason,
		CheckpointVersion: s.CheckpointVersion,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}

	var err error
	if ent.SourceFiles, err = marshalField(s.SourceFiles); err != nil {
		return nil, err
	}
	if s.KnowledgeBase != nil {
		if ent.KnowledgeBase, err = marshalField(s.KnowledgeBase); err != nil {
			return nil, err
		}
	}
	if s.OrderForm != nil {
		if ent.OrderForm, err = marshalField(s.OrderForm); err != nil {
			return nil, err
		}
	}
	if s.Skeleton != nil {
		if ent.Skeleton, err = marshalField(s.Skeleton); err != nil {
			return nil, err
		}
	}
	if s.Enriched != nil {
		if ent.EnrichedContent, err = marshalField(s.Enriched); err != nil {
			return nil, err
		}
	}
	if s.Rendered != nil {
		if ent.RenderedOutput, err = marshalField(s.Rendered); err != nil {
			return nil, err
		}
	}
	if s.QAReport != nil {
		if ent.QaReport, err = marshalField(s.QAReport); err != nil {
			return nil, err
		}
	}
	return ent, nil
}

// SessionToDomain restores the domain session from its checkpoint row.
func SessionToDomain(ent *entity.GenerationSession) (*pipeline.Session, error) {
	s := &pipeline.Session{
		ID:                ent.Id,
		Status:            pipeline.Status(ent.Status),
		CurrentStage:      ent.CurrentStage,
		Topic:             ent.Topic,
		FailureReason:     ent.FailureReason,
		CheckpointVersion: ent.CheckpointVersion,
		CreatedAt:         ent.CreatedAt,
		UpdatedAt:         ent.UpdatedAt,
	}

	if len(ent.SourceFiles) > 0 {
		if err := json.Unmarshal(ent.SourceFiles, &s.SourceFiles); err != nil {
			return nil, err
		}
	}
	if len(ent.KnowledgeBase) > 0 {
		s.KnowledgeBase = &pipeline.KnowledgeBase{}
		if err := json.Unmarshal(ent.KnowledgeBase, s.KnowledgeBase); err != nil {
			return nil, err
		}
	}
	if len(ent.OrderForm) > 0 {
		s.OrderForm = &pipeline.OrderForm{}
		if err := json.Unmarshal(ent.OrderForm, s.OrderForm); err != nil {
			return nil, err
		}
	}
	if len(ent.Skeleton) > 0 {
		s.Skeleton = &pipeline.Skeleton{}
		if err := json.Unmarshal(ent.Skeleton, s.Skeleton); err != nil {
			return nil, err
		}
	}
	if len(ent.EnrichedContent) > 0 {
		s.Enriched = &pipeline.EnrichedContent{}
		if err := json.Unmarshal(ent.EnrichedContent, s.Enriched); err != nil {
			return nil, err
		}
	}
	if len(ent.RenderedOutput) > 0 {
		s.Rendered = &pipeline.RenderedOutput{}
		if err := json.Unmarshal(ent.RenderedOutput, s.Rendered); err != nil {
			return nil, err
		}
	}
	if len(ent.QaReport) > 0 {
		s.QAReport = &pipeline.QAReport{}
		if err := json.Unmarshal(ent.QaReport, s.QAReport); err != nil {
			return nil, err
		}
	}
	return s, nil
}
