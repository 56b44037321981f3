package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/austral-erp/austral-erp/internal/fiscal"
)

const (
	// TaskFiscalTokenWarmup refreshes the cached authority token ahead of
	// business hours so the first authorization of the day does not pay the
	// login round trip.
	TaskFiscalTokenWarmup = "fiscal:token_warmup"
)

// FiscalTokenWarmupPayload names the authority service to warm.
type FiscalTokenWarmupPayload struct {
	Service string `json:"service"`
}

// NewFiscalTokenWarmupTask constructs the warmup task.
func NewFiscalTokenWarmupTask(service string) (*asynq.Task, error) {
	body, err := json.Marshal(FiscalTokenWarmupPayload{Service: service})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFiscalTokenWarmup, body, asynq.Queue(QueueFiscal)), nil
}

// NewFiscalTokenWarmupHandler builds the worker-side handler.
func NewFiscalTokenWarmupHandler(creds fiscal.CredentialsPort, tokens fiscal.TokenPort, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload FiscalTokenWarmupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		service := payload.Service
		if service == "" {
			service = fiscal.ServiceInvoicing
		}
		cred, err := creds.Active(ctx)
		if err != nil {
			return err
		}
		token, err := tokens.Obtain(ctx, cred, service)
		if err != nil {
			return err
		}
		logger.Info("fiscal token warmed",
			slog.String("service", service),
			slog.Time("expires_at", token.ExpiresAt))
		return nil
	}
}
