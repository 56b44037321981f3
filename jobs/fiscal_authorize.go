package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/austral-erp/austral-erp/internal/fiscal"
)

const (
	// TaskFiscalAuthorize requests an authorization code for one document.
	TaskFiscalAuthorize = "fiscal:authorize"
)

// FiscalAuthorizePayload identifies the document to authorize.
type FiscalAuthorizePayload struct {
	DocumentID uuid.UUID `json:"document_id"`
}

// FiscalAuthorizeTaskID derives the stable task id for a document's
// authorization so repeated confirmations collapse into one queued task.
func FiscalAuthorizeTaskID(documentID uuid.UUID) string {
	return "fiscal:authorize:" + documentID.String()
}

// NewFiscalAuthorizeTask constructs the task. The task id is derived from the
// document so repeated confirmations of the same document deduplicate.
func NewFiscalAuthorizeTask(documentID uuid.UUID) (*asynq.Task, error) {
	body, err := json.Marshal(FiscalAuthorizePayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFiscalAuthorize, body,
		asynq.Queue(QueueFiscal),
		asynq.TaskID(FiscalAuthorizeTaskID(documentID)),
		asynq.MaxRetry(8),
		asynq.Retention(24*time.Hour),
	), nil
}

// NewFiscalAuthorizeHandler builds the worker-side handler. Rejections and
// numbering mismatches are terminal: the outcome is already recorded on the
// document and retrying cannot change it. Anything else is retried with
// asynq's backoff.
func NewFiscalAuthorizeHandler(svc *fiscal.Service, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload FiscalAuthorizePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		code, _, err := svc.Authorize(ctx, payload.DocumentID)
		if err != nil {
			var rejection *fiscal.RejectionError
			var mismatch *fiscal.NumberingMismatchError
			switch {
			case errors.As(err, &rejection):
				logger.Warn("fiscal authorization rejected",
					slog.String("document_id", payload.DocumentID.String()),
					slog.String("reason", rejection.Reason))
				return asynq.SkipRetry
			case errors.As(err, &mismatch):
				logger.Error("fiscal numbering mismatch",
					slog.String("document_id", payload.DocumentID.String()),
					slog.Int64("local", mismatch.Local),
					slog.Int64("expected", mismatch.Expected))
				return asynq.SkipRetry
			default:
				return err
			}
		}
		logger.Info("fiscal authorization granted",
			slog.String("document_id", payload.DocumentID.String()),
			slog.String("code", code))
		return nil
	}
}
