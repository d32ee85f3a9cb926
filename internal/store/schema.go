package store

// Schema is applied on every Open; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS conversations (
    id                     TEXT PRIMARY KEY,
    user_id                TEXT NOT NULL,
    title                  TEXT NOT NULL DEFAULT '',
    audio_format           TEXT NOT NULL DEFAULT 'webm',
    audio_duration_seconds INTEGER NOT NULL DEFAULT 0,
    transcription_text     TEXT NOT NULL DEFAULT '',
    transcription_language TEXT NOT NULL DEFAULT '',
    summary                TEXT NOT NULL DEFAULT '',
    processing_status      TEXT NOT NULL DEFAULT 'Pending'
                           CHECK(processing_status IN ('Pending', 'Transcribing', 'Transcribed', 'Analyzing', 'Completed', 'Failed')),
    processing_error       TEXT NOT NULL DEFAULT '',
    is_favorite            INTEGER NOT NULL DEFAULT 0,
    is_deleted             INTEGER NOT NULL DEFAULT 0,
    recorded_at            TEXT NOT NULL,
    processed_at           TEXT NULL,
    created_at             TEXT NOT NULL,
    updated_at             TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS extracted_appointments (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    conversation_id  TEXT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    title            TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    location         TEXT NOT NULL DEFAULT '',
    appointment_at   TEXT NOT NULL,
    duration_minutes INTEGER NULL,
    attendee_names   TEXT NOT NULL DEFAULT '',
    confidence_score REAL NULL,
    created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS extracted_tasks (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    conversation_id  TEXT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    title            TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    due_date         TEXT NULL,
    priority         TEXT NOT NULL DEFAULT 'Medium',
    is_completed     INTEGER NOT NULL DEFAULT 0,
    completed_at     TEXT NULL,
    confidence_score REAL NULL,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS extracted_notes (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    conversation_id  TEXT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    note_type        TEXT NOT NULL DEFAULT 'General',
    title            TEXT NOT NULL DEFAULT '',
    content          TEXT NOT NULL,
    confidence_score REAL NULL,
    is_pinned        INTEGER NOT NULL DEFAULT 0,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, created_at) WHERE is_deleted = 0;
CREATE INDEX IF NOT EXISTS idx_appointments_conversation ON extracted_appointments(conversation_id);
CREATE INDEX IF NOT EXISTS idx_tasks_conversation ON extracted_tasks(conversation_id);
CREATE INDEX IF NOT EXISTS idx_notes_conversation ON extracted_notes(conversation_id);
`
