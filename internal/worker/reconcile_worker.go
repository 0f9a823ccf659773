package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"barberbook/internal/domain"
	"barberbook/internal/metrics"
	"barberbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	TaskCancel = "cancel"

	deadLetterKey = "reconcile:deadletter"
)

// TaskStore persists reconcile tasks. *database.DB implements it.
type TaskStore interface {
	CreateReconcileTask(ctx context.Context, task *models.ReconcileTask) error
	GetPendingReconcileTasks(ctx context.Context, limit int) ([]models.ReconcileTask, error)
	GetReconcileTask(ctx context.Context, id int64) (*models.ReconcileTask, error)
	UpdateReconcileTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	HasOpenReconcileTask(ctx context.Context, appointmentID int64, taskType string) (bool, error)
}

// Canceller is the authority call a reconcile task replays.
type Canceller interface {
	Cancel(ctx context.Context, id int64) (*models.Appointment, error)
}

// cancelPayload is persisted in ReconcileTask.Payload as JSON.
type cancelPayload struct {
	AppointmentID int64  `json:"appointment_id"`
	ShopID        int64  `json:"shop_id"`
	ClientID      int64  `json:"client_id"`
	Reason        string `json:"reason,omitempty"`
	Cause         string `json:"cause,omitempty"`
}

// ReconcileWorker replays cancels the authority refused while the
// appointment was already expired locally.
type ReconcileWorker struct {
	store        TaskStore
	authority    Canceller
	journal      domain.Journal
	redis        *redis.Client
	retryPolicy  RetryPolicy
	queue        chan models.ReconcileTask
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

// NewReconcileWorker builds a worker. journal and redisClient may be nil.
func NewReconcileWorker(store TaskStore, authority Canceller, journal domain.Journal, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *ReconcileWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "reconcile_worker").Logger()

	return &ReconcileWorker{
		store:        store,
		authority:    authority,
		journal:      journal,
		redis:        redisClient,
		retryPolicy:  retry.withDefaults(),
		queue:        make(chan models.ReconcileTask, models.ReconcileQueueSize),
		pollInterval: 2 * time.Second,
		batchSize:    20,
		logger:       &l,
	}
}

// EnqueueCancel persists a remote cancel owed for a locally expired appointment.
// A second call for the same appointment is a no-op while a task is open.
func (w *ReconcileWorker) EnqueueCancel(ctx context.Context, a models.Appointment, cause error) error {
	if a.ID == 0 {
		return errors.New("appointment id is required")
	}

	open, err := w.store.HasOpenReconcileTask(ctx, a.ID, TaskCancel)
	if err != nil {
		return fmt.Errorf("check open tasks: %w", err)
	}
	if open {
		return nil
	}

	payload := cancelPayload{
		AppointmentID: a.ID,
		ShopID:        a.ShopID,
		ClientID:      a.ClientID,
		Reason:        a.CancelledReason,
	}
	if cause != nil {
		payload.Cause = cause.Error()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.ReconcileTask{
		TaskType:      TaskCancel,
		AppointmentID: a.ID,
		Payload:       string(raw),
		Status:        models.TaskStatusPending,
	}
	if err := w.store.CreateReconcileTask(ctx, &task); err != nil {
		return fmt.Errorf("persist reconcile task: %w", err)
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}
	return nil
}

// Start runs the loop until ctx is done.
func (w *ReconcileWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("reconcile worker started")
	defer w.logger.Info().Msg("reconcile worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			w.processQueued(ctx, &t)
			continue
		default:
		}

		if n := w.ProcessPending(ctx); n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			w.processQueued(ctx, &t)
		case <-time.After(w.pollInterval):
		}
	}
}

// ProcessPending handles one batch of due tasks and returns how many it saw.
func (w *ReconcileWorker) ProcessPending(ctx context.Context) int {
	tasks, err := w.store.GetPendingReconcileTasks(ctx, w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("fetch pending reconcile tasks")
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

// processQueued skips a queued task that polling already settled.
func (w *ReconcileWorker) processQueued(ctx context.Context, task *models.ReconcileTask) {
	current, err := w.store.GetReconcileTask(ctx, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("check queued task")
		return
	}
	// Задача уже взята поллингом: повторы идут по next_retry_at
	if current == nil || current.Status != models.TaskStatusPending {
		return
	}
	w.processTask(ctx, current)
}

func (w *ReconcileWorker) processTask(ctx context.Context, task *models.ReconcileTask) {
	log := w.logger.With().Int64("task_id", task.ID).Int64("appointment_id", task.AppointmentID).Logger()

	if task.TaskType != TaskCancel {
		w.failTask(ctx, task, fmt.Errorf("unknown task type: %s", task.TaskType))
		return
	}

	var payload cancelPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	remote, err := w.authority.Cancel(ctx, task.AppointmentID)
	switch {
	case err == nil:
		w.complete(ctx, task, "")
		w.appendJournal(ctx, task.AppointmentID, remote, payload.Reason)
		log.Info().Msg("expired appointment cancelled remotely")
		metrics.IncReconcile("completed")
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrSlotConflict):
		// the record is gone or moved on; nothing left to reconcile
		w.complete(ctx, task, err.Error())
		log.Warn().Err(err).Msg("reconcile cancel superseded")
		metrics.IncReconcile("superseded")
	case domain.IsRetryable(err):
		w.retryOrFail(ctx, task, err)
	default:
		w.failTask(ctx, task, err)
	}
}

func (w *ReconcileWorker) complete(ctx context.Context, task *models.ReconcileTask, note string) {
	if err := w.store.UpdateReconcileTaskStatus(ctx, task.ID, models.TaskStatusCompleted, note, nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
}

func (w *ReconcileWorker) retryOrFail(ctx context.Context, task *models.ReconcileTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateReconcileTaskStatus(ctx, task.ID, models.TaskStatusRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	w.logger.Debug().Err(cause).Int64("task_id", task.ID).Time("next_retry_at", next).Msg("reconcile task scheduled for retry")
	metrics.IncReconcile("retry")
}

func (w *ReconcileWorker) failTask(ctx context.Context, task *models.ReconcileTask, cause error) {
	if err := w.store.UpdateReconcileTaskStatus(ctx, task.ID, models.TaskStatusFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Int64("appointment_id", task.AppointmentID).Msg("reconcile task failed")
	metrics.IncReconcile("failed")
	w.pushDeadLetter(ctx, task)
}

func (w *ReconcileWorker) appendJournal(ctx context.Context, id int64, remote *models.Appointment, reason string) {
	if w.journal == nil {
		return
	}
	entry := &models.JournalEntry{
		AppointmentID: id,
		ActorKind:     "system",
		Event:         "expire",
		FromStatus:    models.StatusCancelled,
		ToStatus:      models.StatusCancelled,
		Source:        models.SourceRemote,
		Reason:        reason,
	}
	if remote != nil {
		entry.ToStatus = remote.Status
	}
	if err := w.journal.AppendJournal(ctx, entry); err != nil {
		w.logger.Error().Err(err).Int64("appointment_id", id).Msg("append journal")
	}
}

func (w *ReconcileWorker) pushDeadLetter(ctx context.Context, task *models.ReconcileTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}
