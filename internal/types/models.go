package types

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultAudioFormat  = "webm"
	DefaultTaskPriority = "Medium"
	DefaultNoteType     = "General"
)

// Conversation is the persisted record of one recording and its processing progress.
type Conversation struct {
	ID                    string     `json:"id"`
	UserID                string     `json:"user_id"`
	Title                 string     `json:"title"`
	AudioFormat           string     `json:"audio_format"`
	AudioDurationSeconds  int        `json:"audio_duration_seconds"`
	TranscriptionText     string     `json:"transcription_text,omitempty"`
	TranscriptionLanguage string     `json:"transcription_language,omitempty"`
	Summary               string     `json:"summary,omitempty"`
	Status                Status     `json:"processing_status"`
	ProcessingError       string     `json:"processing_error,omitempty"`
	IsFavorite            bool       `json:"is_favorite"`
	IsDeleted             bool       `json:"is_deleted"`
	CreatedAt             time.Time  `json:"created_at"`
	RecordedAt            time.Time  `json:"recorded_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
	ProcessedAt           *time.Time `json:"processed_at,omitempty"`
}

type Appointment struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	ConversationID  *string   `json:"conversation_id,omitempty"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Location        string    `json:"location,omitempty"`
	At              time.Time `json:"appointment_at"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	AttendeeNames   string    `json:"attendee_names,omitempty"`
	Confidence      *float64  `json:"confidence_score,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type Task struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	ConversationID *string    `json:"conversation_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	Priority       string     `json:"priority"`
	IsCompleted    bool       `json:"is_completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Confidence     *float64   `json:"confidence_score,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Note struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ConversationID *string   `json:"conversation_id,omitempty"`
	NoteType       string    `json:"note_type"`
	Title          string    `json:"title,omitempty"`
	Content        string    `json:"content"`
	Confidence     *float64  `json:"confidence_score,omitempty"`
	IsPinned       bool      `json:"is_pinned"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ConversationDetails is a conversation together with the entities extracted from it.
type ConversationDetails struct {
	Conversation
	Appointments []Appointment `json:"appointments"`
	Tasks        []Task        `json:"tasks"`
	Notes        []Note        `json:"notes"`
}

// Transcription is what the speech-to-text service returns for one recording.
type Transcription struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

type ExtractionRequest struct {
	TranscriptText string `json:"transcript_text"`
	UserID         string `json:"user_id"`
}

// ExtractionResult is the structured output of the reasoning service.
// CorrectedTranscript is empty when the service left the text alone.
type ExtractionResult struct {
	Summary             string        `json:"summary"`
	CorrectedTranscript string        `json:"corrected_transcript,omitempty"`
	Appointments        []Appointment `json:"appointments"`
	Tasks               []Task        `json:"tasks"`
	Notes               []Note        `json:"notes"`
}

// ConversationPatch lists user-editable columns. Nil fields are left as
// stored, so a patch never touches status or extraction results.
type ConversationPatch struct {
	Title             *string `json:"title,omitempty"`
	Summary           *string `json:"summary,omitempty"`
	TranscriptionText *string `json:"transcription_text,omitempty"`
	IsFavorite        *bool   `json:"is_favorite,omitempty"`
	IsDeleted         *bool   `json:"is_deleted,omitempty"`
}
