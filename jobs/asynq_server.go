package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// NewWorker constructs a Worker instance. The fiscal queue outweighs the
// default queue so authority submissions are not starved by maintenance work.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueFiscal:  3,
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt, logger *slog.Logger) (*Client, error) {
	return &Client{
		client:    asynq.NewClient(redisOpts),
		inspector: asynq.NewInspector(redisOpts),
		logger:    logger,
	}, nil
}

// EnqueueAuthorization schedules fiscal authorization for a confirmed
// document. Duplicate enqueues while a task is queued or running collapse on
// the task id; a task left in a terminal state by an earlier attempt is
// deleted and replaced, so a retry after a corrected rejection really queues.
func (c *Client) EnqueueAuthorization(ctx context.Context, documentID uuid.UUID) error {
	task, err := NewFiscalAuthorizeTask(documentID)
	if err != nil {
		return err
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return c.replaceTerminalTask(ctx, documentID, task)
	}
	if err != nil {
		return err
	}
	c.logger.Debug("fiscal authorization enqueued",
		slog.String("document_id", documentID.String()),
		slog.String("task_id", info.ID))
	return nil
}

func (c *Client) replaceTerminalTask(ctx context.Context, documentID uuid.UUID, task *asynq.Task) error {
	id := FiscalAuthorizeTaskID(documentID)
	existing, err := c.inspector.GetTaskInfo(QueueFiscal, id)
	if err != nil {
		return fmt.Errorf("jobs: inspect task %s: %w", id, err)
	}
	if !terminalTaskState(existing.State) {
		c.logger.Debug("fiscal authorization already queued",
			slog.String("document_id", documentID.String()),
			slog.String("state", existing.State.String()))
		return nil
	}
	if err := c.inspector.DeleteTask(QueueFiscal, id); err != nil {
		return fmt.Errorf("jobs: delete finished task %s: %w", id, err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	c.logger.Info("fiscal authorization re-enqueued",
		slog.String("document_id", documentID.String()),
		slog.String("task_id", info.ID))
	return nil
}

// terminalTaskState reports whether a task with this state will never run
// again on its own. Archived and retained tasks keep their id and would block
// every later enqueue if left in place.
func terminalTaskState(s asynq.TaskState) bool {
	switch s {
	case asynq.TaskStateArchived, asynq.TaskStateCompleted:
		return true
	default:
		return false
	}
}

// Close releases client resources.
func (c *Client) Close() error {
	inspErr := c.inspector.Close()
	if err := c.client.Close(); err != nil {
		return err
	}
	return inspErr
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector *asynq.Inspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"queue":"` + QueueFiscal + `","pending":0}`))
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueFiscal)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	pending := 0
	queueName := QueueFiscal
	if info != nil {
		pending = int(info.Pending)
		queueName = info.Queue
	}
	_, _ = w.Write([]byte(`{"queue":"` + queueName + `","pending":` + strconv.Itoa(pending) + `}`))
}
