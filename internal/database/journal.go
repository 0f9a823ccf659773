package database

import (
	"context"
	"fmt"
	"time"

	"barberbook/internal/models"
)

// AppendJournal stores one applied transition and sets entry.ID.
func (db *DB) AppendJournal(ctx context.Context, entry *models.JournalEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	query := `INSERT INTO appointment_journal (appointment_id, actor_kind, actor_id, event, from_status, to_status, source, reason, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		entry.AppointmentID,
		entry.ActorKind,
		entry.ActorID,
		entry.Event,
		string(entry.FromStatus),
		string(entry.ToStatus),
		entry.Source,
		entry.Reason,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// JournalFor returns the transitions of one appointment, oldest first.
func (db *DB) JournalFor(ctx context.Context, appointmentID int64) ([]models.JournalEntry, error) {
	query := `SELECT id, appointment_id, actor_kind, actor_id, event, from_status, to_status, source, reason, created_at
              FROM appointment_journal WHERE appointment_id = ? ORDER BY id ASC`
	rows, err := db.QueryContext(ctx, query, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		var (
			e        models.JournalEntry
			from, to string
		)
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.ActorKind, &e.ActorID, &e.Event, &from, &to, &e.Source, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.FromStatus = models.Status(from)
		e.ToStatus = models.Status(to)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return entries, nil
}
