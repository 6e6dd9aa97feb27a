package postgres

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/agentguard/policyguard/internal/audit"
)

// Recorder implements audit.Recorder against the audit_events table:
//
//	CREATE TABLE audit_events (
//		id          bigserial PRIMARY KEY,
//		context_id  uuid NOT NULL,
//		plan_id     uuid NOT NULL,
//		outcome     text NOT NULL,
//		error_kind  text,
//		message     text,
//		recorded_at timestamptz NOT NULL DEFAULT now()
//	);
type Recorder struct {
	db *DB
}

func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// Record inserts event. A write failure is logged and swallowed: a slow or
// unreachable audit store must never block the policy check that produced
// the event.
func (r *Recorder) Record(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO audit_events (context_id, plan_id, outcome, error_kind, message, recorded_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`

	_, err := r.db.Pool.Exec(ctx, query,
		event.ContextID, event.PlanID, string(event.Outcome), event.ErrorKind, event.Message,
	)
	if err != nil {
		log.Error().Err(err).
			Str("context_id", event.ContextID.String()).
			Str("plan_id", event.PlanID.String()).
			Msg("failed to record audit event")
		return nil
	}
	return nil
}

func (r *Recorder) Close() { r.db.Close() }
