package store

import (
	"context"
	"database/sql"
	"fmt"

	"memo-pipeline-go/internal/types"
)

func (u *UnitOfWork) AddAppointment(a *types.Appointment) {
	cp := *a
	u.enqueue("insert appointment "+cp.ID, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO extracted_appointments
			 (id, user_id, conversation_id, title, description, location, appointment_at,
			  duration_minutes, attendee_names, confidence_score, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cp.ID, cp.UserID, nullString(cp.ConversationID), cp.Title, cp.Description, cp.Location,
			formatTime(cp.At), nullInt(cp.DurationMinutes), cp.AttendeeNames, nullFloat(cp.Confidence),
			formatTime(cp.CreatedAt),
		)
		return err
	})
}

func (u *UnitOfWork) AddTask(t *types.Task) {
	cp := *t
	u.enqueue("insert task "+cp.ID, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO extracted_tasks
			 (id, user_id, conversation_id, title, description, due_date, priority,
			  is_completed, completed_at, confidence_score, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cp.ID, cp.UserID, nullString(cp.ConversationID), cp.Title, cp.Description,
			formatTimePtr(cp.DueDate), cp.Priority, cp.IsCompleted, formatTimePtr(cp.CompletedAt),
			nullFloat(cp.Confidence), formatTime(cp.CreatedAt), formatTime(cp.UpdatedAt),
		)
		return err
	})
}

func (u *UnitOfWork) AddNote(n *types.Note) {
	cp := *n
	u.enqueue("insert note "+cp.ID, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO extracted_notes
			 (id, user_id, conversation_id, note_type, title, content, confidence_score,
			  is_pinned, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cp.ID, cp.UserID, nullString(cp.ConversationID), cp.NoteType, cp.Title, cp.Content,
			nullFloat(cp.Confidence), cp.IsPinned, formatTime(cp.CreatedAt), formatTime(cp.UpdatedAt),
		)
		return err
	})
}

func (u *UnitOfWork) appointmentsFor(ctx context.Context, conversationID string) ([]types.Appointment, error) {
	rows, err := u.db.QueryContext(ctx,
		`SELECT id, user_id, conversation_id, title, description, location, appointment_at,
		        duration_minutes, attendee_names, confidence_score, created_at
		 FROM extracted_appointments WHERE conversation_id = ? ORDER BY appointment_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	out := []types.Appointment{}
	for rows.Next() {
		var (
			a           types.Appointment
			convID      sql.NullString
			at, created string
			duration    sql.NullInt64
			confidence  sql.NullFloat64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &convID, &a.Title, &a.Description, &a.Location, &at,
			&duration, &a.AttendeeNames, &confidence, &created); err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		a.ConversationID = stringPtr(convID)
		a.DurationMinutes = intPtr(duration)
		a.Confidence = floatPtr(confidence)
		if a.At, err = parseTime(at); err != nil {
			return nil, err
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (u *UnitOfWork) tasksFor(ctx context.Context, conversationID string) ([]types.Task, error) {
	rows, err := u.db.QueryContext(ctx,
		`SELECT id, user_id, conversation_id, title, description, due_date, priority,
		        is_completed, completed_at, confidence_score, created_at, updated_at
		 FROM extracted_tasks WHERE conversation_id = ? ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := []types.Task{}
	for rows.Next() {
		var (
			t                types.Task
			convID           sql.NullString
			due, completedAt sql.NullString
			confidence       sql.NullFloat64
			created, upd     string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &convID, &t.Title, &t.Description, &due, &t.Priority,
			&t.IsCompleted, &completedAt, &confidence, &created, &upd); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.ConversationID = stringPtr(convID)
		t.Confidence = floatPtr(confidence)
		if t.DueDate, err = parseTimePtr(due); err != nil {
			return nil, err
		}
		if t.CompletedAt, err = parseTimePtr(completedAt); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if t.UpdatedAt, err = parseTime(upd); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (u *UnitOfWork) notesFor(ctx context.Context, conversationID string) ([]types.Note, error) {
	rows, err := u.db.QueryContext(ctx,
		`SELECT id, user_id, conversation_id, note_type, title, content, confidence_score,
		        is_pinned, created_at, updated_at
		 FROM extracted_notes WHERE conversation_id = ? ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	out := []types.Note{}
	for rows.Next() {
		var (
			n            types.Note
			convID       sql.NullString
			confidence   sql.NullFloat64
			created, upd string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &convID, &n.NoteType, &n.Title, &n.Content, &confidence,
			&n.IsPinned, &created, &upd); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.ConversationID = stringPtr(convID)
		n.Confidence = floatPtr(confidence)
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if n.UpdatedAt, err = parseTime(upd); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
