package contract

import (
	"context"
	"time"

	"ai-slidegen-be/pkg/pipeline"
)

// SessionRepository is the durable session store. It extends the pipeline's
// store contract with the retention sweep used by the cleanup service.
type SessionRepository interface {
	pipeline.Store

	// DeleteTerminatedBefore removes terminal sessions last updated before
	// cutoff and reports how many were deleted.
	DeleteTerminatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
