package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"barberbook/internal/models"
)

const reconcileColumns = `id, task_type, appointment_id, payload, status, retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateReconcileTask(ctx context.Context, task *models.ReconcileTask) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	query := `INSERT INTO reconcile_queue (task_type, appointment_id, payload, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		task.TaskType,
		task.AppointmentID,
		task.Payload,
		task.Status,
		task.RetryCount,
		task.LastError,
		now,
		task.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reconcile task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

// GetPendingReconcileTasks returns due pending and retry tasks, oldest first.
func (db *DB) GetPendingReconcileTasks(ctx context.Context, limit int) ([]models.ReconcileTask, error) {
	query := `SELECT ` + reconcileColumns + ` FROM reconcile_queue
              WHERE status IN ('pending', 'retry') AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC, id ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending reconcile tasks: %w", err)
	}
	return scanReconcileTasks(rows)
}

// GetReconcileTask re-reads one task. A missing task is (nil, nil).
func (db *DB) GetReconcileTask(ctx context.Context, id int64) (*models.ReconcileTask, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+reconcileColumns+` FROM reconcile_queue WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get reconcile task: %w", err)
	}
	tasks, err := scanReconcileTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	return &tasks[0], nil
}

func (db *DB) GetFailedReconcileTasks(ctx context.Context) ([]models.ReconcileTask, error) {
	query := `SELECT ` + reconcileColumns + ` FROM reconcile_queue WHERE status = 'failed' ORDER BY created_at DESC, id DESC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed reconcile tasks: %w", err)
	}
	return scanReconcileTasks(rows)
}

// HasOpenReconcileTask reports a pending or retrying task of taskType for the appointment.
func (db *DB) HasOpenReconcileTask(ctx context.Context, appointmentID int64, taskType string) (bool, error) {
	query := `SELECT COUNT(*) FROM reconcile_queue WHERE appointment_id = ? AND task_type = ? AND status IN ('pending', 'retry')`
	var n int
	if err := db.QueryRowContext(ctx, query, appointmentID, taskType).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to count reconcile tasks: %w", err)
	}
	return n > 0, nil
}

func (db *DB) UpdateReconcileTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var (
		query string
		args  []interface{}
	)
	now := time.Now().UTC()
	var lastErr *string
	if errMsg != "" {
		lastErr = &errMsg
	}
	if nextRetryAt != nil {
		utc := nextRetryAt.UTC()
		nextRetryAt = &utc
	}

	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE reconcile_queue SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		query = `UPDATE reconcile_queue SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, now, id}
	default:
		query = `UPDATE reconcile_queue SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, lastErr, nextRetryAt, id}
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update reconcile task status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("reconcile task %d not found", id)
	}
	return nil
}

func scanReconcileTasks(rows *sql.Rows) ([]models.ReconcileTask, error) {
	defer rows.Close()

	var tasks []models.ReconcileTask
	for rows.Next() {
		var t models.ReconcileTask
		if err := rows.Scan(
			&t.ID, &t.TaskType, &t.AppointmentID, &t.Payload, &t.Status, &t.RetryCount, &t.LastError, &t.CreatedAt, &t.ProcessedAt, &t.NextRetryAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reconcile task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reconcile tasks: %w", err)
	}
	return tasks, nil
}
