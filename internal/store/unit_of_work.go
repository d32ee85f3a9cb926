package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"memo-pipeline-go/internal/types"
)

// op is one buffered change, applied inside the Commit transaction.
type op struct {
	desc  string
	apply func(ctx context.Context, tx *sql.Tx) error
}

// UnitOfWork reads committed state directly and buffers writes until Commit.
// A UnitOfWork belongs to a single stage execution and must not be shared
// between goroutines.
type UnitOfWork struct {
	db      *sql.DB
	pending []op
}

// Pending reports how many changes are waiting for Commit.
func (u *UnitOfWork) Pending() int { return len(u.pending) }

// Rollback discards all buffered changes.
func (u *UnitOfWork) Rollback() { u.pending = nil }

// Close releases the unit of work; uncommitted changes are dropped.
func (u *UnitOfWork) Close() error {
	u.Rollback()
	return nil
}

// Commit applies all buffered changes in one transaction. On error nothing
// is applied and the batch is discarded.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	batch := u.pending
	u.pending = nil
	if len(batch) == 0 {
		return nil
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, o := range batch {
		if err := o.apply(ctx, tx); err != nil {
			return fmt.Errorf("%s: %w", o.desc, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (u *UnitOfWork) enqueue(desc string, apply func(ctx context.Context, tx *sql.Tx) error) {
	u.pending = append(u.pending, op{desc: desc, apply: apply})
}

const conversationColumns = `id, user_id, title, audio_format, audio_duration_seconds,
	transcription_text, transcription_language, summary, processing_status, processing_error,
	is_favorite, is_deleted, recorded_at, processed_at, created_at, updated_at`

func scanConversation(row rowScanner) (types.Conversation, error) {
	var (
		c                              types.Conversation
		status, recorded, created, upd string
		processed                      sql.NullString
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.Title, &c.AudioFormat, &c.AudioDurationSeconds,
		&c.TranscriptionText, &c.TranscriptionLanguage, &c.Summary, &status, &c.ProcessingError,
		&c.IsFavorite, &c.IsDeleted, &recorded, &processed, &created, &upd,
	)
	if err != nil {
		return c, err
	}
	if c.Status, err = types.ParseStatus(status); err != nil {
		return c, err
	}
	if c.RecordedAt, err = parseTime(recorded); err != nil {
		return c, err
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return c, err
	}
	if c.UpdatedAt, err = parseTime(upd); err != nil {
		return c, err
	}
	if c.ProcessedAt, err = parseTimePtr(processed); err != nil {
		return c, err
	}
	return c, nil
}

// GetConversation returns the committed conversation, soft-deleted or not.
func (u *UnitOfWork) GetConversation(ctx context.Context, id string) (*types.Conversation, error) {
	row := u.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return &c, nil
}

// ConversationsByUser lists the user's live conversations, newest first.
func (u *UnitOfWork) ConversationsByUser(ctx context.Context, userID string) ([]types.Conversation, error) {
	return u.listConversations(ctx, userID, -1)
}

// RecentConversationsByUser is ConversationsByUser capped at count rows.
func (u *UnitOfWork) RecentConversationsByUser(ctx context.Context, userID string, count int) ([]types.Conversation, error) {
	if count <= 0 {
		return []types.Conversation{}, nil
	}
	return u.listConversations(ctx, userID, count)
}

func (u *UnitOfWork) listConversations(ctx context.Context, userID string, limit int) ([]types.Conversation, error) {
	rows, err := u.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE user_id = ? AND is_deleted = 0
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []types.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConversationWithChildren loads a conversation and everything extracted from it.
func (u *UnitOfWork) ConversationWithChildren(ctx context.Context, id string) (*types.ConversationDetails, error) {
	c, err := u.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &types.ConversationDetails{Conversation: *c}
	if d.Appointments, err = u.appointmentsFor(ctx, id); err != nil {
		return nil, err
	}
	if d.Tasks, err = u.tasksFor(ctx, id); err != nil {
		return nil, err
	}
	if d.Notes, err = u.notesFor(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

func (u *UnitOfWork) AddConversation(c *types.Conversation) {
	cp := *c
	u.enqueue("insert conversation "+cp.ID, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (`+conversationColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cp.ID, cp.UserID, cp.Title, cp.AudioFormat, cp.AudioDurationSeconds,
			cp.TranscriptionText, cp.TranscriptionLanguage, cp.Summary, cp.Status.String(), cp.ProcessingError,
			cp.IsFavorite, cp.IsDeleted, formatTime(cp.RecordedAt), formatTimePtr(cp.ProcessedAt),
			formatTime(cp.CreatedAt), formatTime(cp.UpdatedAt),
		)
		return err
	})
}

// UpdateConversation overwrites every mutable column of c.
func (u *UnitOfWork) UpdateConversation(c *types.Conversation) {
	cp := *c
	u.enqueue("update conversation "+cp.ID, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE conversations SET
			title = ?, audio_format = ?, audio_duration_seconds = ?,
			transcription_text = ?, transcription_language = ?, summary = ?,
			processing_status = ?, processing_error = ?, is_favorite = ?, is_deleted = ?,
			processed_at = ?, updated_at = ?
			WHERE id = ?`,
			cp.Title, cp.AudioFormat, cp.AudioDurationSeconds,
			cp.TranscriptionText, cp.TranscriptionLanguage, cp.Summary,
			cp.Status.String(), cp.ProcessingError, cp.IsFavorite, cp.IsDeleted,
			formatTimePtr(cp.ProcessedAt), formatTime(cp.UpdatedAt),
			cp.ID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}
		return nil
	})
}

// UpdateConversationIf writes the pipeline-owned columns of c (status, error,
// summary, processed_at, updated_at), guarded by the stored status: Commit
// fails with ErrConflict unless the row still has status expected. Title,
// transcript and the user flags are left as stored.
func (u *UnitOfWork) UpdateConversationIf(c *types.Conversation, expected types.Status) {
	cp := *c
	u.enqueue("update conversation "+cp.ID, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE conversations SET
			summary = ?, processing_status = ?, processing_error = ?,
			processed_at = ?, updated_at = ?
			WHERE id = ? AND processing_status = ?`,
			cp.Summary, cp.Status.String(), cp.ProcessingError,
			formatTimePtr(cp.ProcessedAt), formatTime(cp.UpdatedAt),
			cp.ID, expected.String(),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		if u.existsTx(ctx, tx, cp.ID) {
			return ErrConflict
		}
		return types.ErrNotFound
	})
}

// PatchConversation writes only the columns set in p, plus updated_at.
// Commit fails with types.ErrNotFound when the row does not exist.
func (u *UnitOfWork) PatchConversation(id string, p types.ConversationPatch, updatedAt time.Time) {
	var (
		sets []string
		args []any
	)
	if p.Title != nil {
		sets, args = append(sets, "title = ?"), append(args, *p.Title)
	}
	if p.Summary != nil {
		sets, args = append(sets, "summary = ?"), append(args, *p.Summary)
	}
	if p.TranscriptionText != nil {
		sets, args = append(sets, "transcription_text = ?"), append(args, *p.TranscriptionText)
	}
	if p.IsFavorite != nil {
		sets, args = append(sets, "is_favorite = ?"), append(args, *p.IsFavorite)
	}
	if p.IsDeleted != nil {
		sets, args = append(sets, "is_deleted = ?"), append(args, *p.IsDeleted)
	}
	sets, args = append(sets, "updated_at = ?"), append(args, formatTime(updatedAt))
	args = append(args, id)
	query := `UPDATE conversations SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`

	u.enqueue("patch conversation "+id, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}
		return nil
	})
}

// DeleteConversation physically removes the row; extracted children go with it.
func (u *UnitOfWork) DeleteConversation(id string) {
	u.enqueue("delete conversation "+id, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return types.ErrNotFound
		}
		return nil
	})
}

func (u *UnitOfWork) existsTx(ctx context.Context, tx *sql.Tx, id string) bool {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, id).Scan(&one)
	return err == nil
}
