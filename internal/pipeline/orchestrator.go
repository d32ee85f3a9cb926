package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"memo-pipeline-go/internal/store"
	"memo-pipeline-go/internal/types"
)

// bytesPerSecond is the fixed heuristic used to estimate audio duration.
const bytesPerSecond = 16000

const defaultTitleLayout = "02.01.2006 15:04"

// Outcome is how a stage 2 run ended.
type Outcome uint8

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeSkipped
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeConflict:
		return "conflict"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

type IngestInput struct {
	Title  *string
	Audio  []byte
	Format string
	UserID string
}

// Orchestrator drives a conversation through transcription (stage 1) and
// extraction (stage 2). It holds no collaborators; each call gets a Scope.
type Orchestrator struct {
	now   func() time.Time
	newID func() string
}

func NewOrchestrator() *Orchestrator {
	return &Orchestrator{now: time.Now, newID: uuid.NewString}
}

// EstimateDuration returns the audio length in whole seconds, at least 1.
func EstimateDuration(n int) int {
	if secs := n / bytesPerSecond; secs > 1 {
		return secs
	}
	return 1
}

func defaultTitle(now time.Time) string {
	return "Gespräch vom " + now.Format(defaultTitleLayout)
}

// Ingest persists a new conversation and transcribes its audio. Adapter and
// write failures after the initial insert are recorded on the conversation,
// which is returned with a nil error. An error is returned only when the
// conversation could not be created or its failure could not be recorded.
func (o *Orchestrator) Ingest(ctx context.Context, sc *Scope, in IngestInput) (*types.Conversation, error) {
	now := o.now()
	title := defaultTitle(now)
	if in.Title != nil && strings.TrimSpace(*in.Title) != "" {
		title = strings.TrimSpace(*in.Title)
	}
	format := in.Format
	if format == "" {
		format = types.DefaultAudioFormat
	}

	c := &types.Conversation{
		ID:                   o.newID(),
		UserID:               in.UserID,
		Title:                title,
		AudioFormat:          format,
		AudioDurationSeconds: EstimateDuration(len(in.Audio)),
		Status:               types.StatusPending,
		CreatedAt:            now,
		RecordedAt:           now,
		UpdatedAt:            now,
	}
	log := sc.Log.WithField("conversation_id", c.ID).WithField("stage", "ingest")

	sc.Gateway.AddConversation(c)
	if err := sc.Gateway.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	log.WithField("duration_s", c.AudioDurationSeconds).Info("conversation created")

	if err := c.Advance(types.StatusTranscribing, o.now()); err != nil {
		return o.failIngest(ctx, sc, c.ID, err, log)
	}
	sc.Gateway.UpdateConversation(c)
	if err := sc.Gateway.Commit(ctx); err != nil {
		return o.failIngest(ctx, sc, c.ID, err, log)
	}

	tr, err := sc.Transcriber.Transcribe(ctx, bytes.NewReader(in.Audio))
	if err != nil {
		return o.failIngest(ctx, sc, c.ID, err, log)
	}

	if err := c.MarkTranscribed(tr, o.now()); err != nil {
		return o.failIngest(ctx, sc, c.ID, err, log)
	}
	sc.Gateway.UpdateConversation(c)
	if err := sc.Gateway.Commit(ctx); err != nil {
		return o.failIngest(ctx, sc, c.ID, err, log)
	}
	log.WithFields(logrus.Fields{
		"language":   tr.Language,
		"confidence": tr.Confidence,
	}).Info("transcription stored")
	return c, nil
}

// failIngest records cause on the committed conversation. The write is
// detached from ctx so a cancelled caller still leaves a Failed record.
func (o *Orchestrator) failIngest(ctx context.Context, sc *Scope, id string, cause error, log *logrus.Entry) (*types.Conversation, error) {
	sc.Gateway.Rollback()
	wctx := context.WithoutCancel(ctx)
	log.WithField("error", cause.Error()).Warn("transcription failed")

	c, err := sc.Gateway.GetConversation(wctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload after failure: %w", err)
	}
	from := c.Status
	if err := c.MarkFailed(cause.Error(), o.now()); err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	sc.Gateway.UpdateConversationIf(c, from)
	if err := sc.Gateway.Commit(wctx); err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}
	return c, nil
}

// Extract runs stage 2 for one conversation. It never returns an error:
// every failure is logged and, where possible, recorded on the conversation.
func (o *Orchestrator) Extract(ctx context.Context, sc *Scope, id string) (out Outcome) {
	log := sc.Log.WithField("conversation_id", id).WithField("stage", "extract")
	defer func() {
		if r := recover(); r != nil {
			out = o.failExtract(ctx, sc, id, fmt.Errorf("extraction panicked: %v", r), log)
		}
	}()

	c, err := sc.Gateway.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			log.Warn("conversation not found, skipping extraction")
		} else {
			log.WithError(err).Error("load conversation failed, skipping extraction")
		}
		return OutcomeSkipped
	}
	if c.TranscriptionText == "" {
		log.Info("no transcript, skipping extraction")
		return OutcomeSkipped
	}

	from := c.Status
	if err := c.Advance(types.StatusAnalyzing, o.now()); err != nil {
		log.WithField("status", from.String()).WithError(err).Info("extraction not applicable, skipping")
		return OutcomeSkipped
	}
	sc.Gateway.UpdateConversationIf(c, from)
	if err := sc.Gateway.Commit(ctx); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Info("conversation changed concurrently, another extraction owns it")
			return OutcomeConflict
		}
		return o.failExtract(ctx, sc, id, err, log)
	}

	res, err := sc.Extractor.Extract(ctx, types.ExtractionRequest{
		TranscriptText: c.TranscriptionText,
		UserID:         c.UserID,
	})
	if err != nil {
		return o.failExtract(ctx, sc, id, err, log)
	}

	now := o.now()
	if err := c.MarkCompleted(res, now); err != nil {
		return o.failExtract(ctx, sc, id, err, log)
	}
	sc.Gateway.UpdateConversationIf(c, types.StatusAnalyzing)
	if res.CorrectedTranscript != "" {
		sc.Gateway.PatchConversation(c.ID, types.ConversationPatch{TranscriptionText: &res.CorrectedTranscript}, now)
	}

	convID := c.ID
	for i := range res.Appointments {
		a := &res.Appointments[i]
		if a.ID == "" {
			a.ID = o.newID()
		}
		a.ConversationID = &convID
		a.UserID = c.UserID
		a.CreatedAt = now
		sc.Gateway.AddAppointment(a)
	}
	for i := range res.Tasks {
		t := &res.Tasks[i]
		if t.ID == "" {
			t.ID = o.newID()
		}
		if t.Priority == "" {
			t.Priority = types.DefaultTaskPriority
		}
		t.ConversationID = &convID
		t.UserID = c.UserID
		t.CreatedAt, t.UpdatedAt = now, now
		sc.Gateway.AddTask(t)
	}
	for i := range res.Notes {
		n := &res.Notes[i]
		if n.ID == "" {
			n.ID = o.newID()
		}
		if n.NoteType == "" {
			n.NoteType = types.DefaultNoteType
		}
		n.ConversationID = &convID
		n.UserID = c.UserID
		n.CreatedAt, n.UpdatedAt = now, now
		sc.Gateway.AddNote(n)
	}

	if err := sc.Gateway.Commit(ctx); err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Warn("conversation left Analyzing during extraction, result dropped")
			return OutcomeConflict
		}
		return o.failExtract(ctx, sc, id, err, log)
	}
	log.WithFields(logrus.Fields{
		"appointments": len(res.Appointments),
		"tasks":        len(res.Tasks),
		"notes":        len(res.Notes),
	}).Info("extraction completed")
	return OutcomeCompleted
}

// failExtract is the best-effort failure write of stage 2. Errors here are
// logged and dropped.
func (o *Orchestrator) failExtract(ctx context.Context, sc *Scope, id string, cause error, log *logrus.Entry) Outcome {
	sc.Gateway.Rollback()
	wctx := context.WithoutCancel(ctx)
	log.WithField("error", cause.Error()).Warn("extraction failed")

	c, err := sc.Gateway.GetConversation(wctx, id)
	if err != nil {
		log.WithError(err).Error("reload for failure write failed")
		return OutcomeFailed
	}
	from := c.Status
	if err := c.MarkFailed(cause.Error(), o.now()); err != nil {
		log.WithError(err).Error("cannot mark conversation failed")
		return OutcomeFailed
	}
	sc.Gateway.UpdateConversationIf(c, from)
	if err := sc.Gateway.Commit(wctx); err != nil {
		log.WithError(err).Error("failure write failed")
	}
	return OutcomeFailed
}

// AmendTranscript overwrites the transcript text and nothing else. It always
// writes, even when the text is unchanged. Only the text column is written,
// so a stage 2 run finishing concurrently keeps its status and summary.
func (o *Orchestrator) AmendTranscript(ctx context.Context, sc *Scope, id, text string) (*types.Conversation, error) {
	sc.Gateway.PatchConversation(id, types.ConversationPatch{TranscriptionText: &text}, o.now())
	if err := sc.Gateway.Commit(ctx); err != nil {
		return nil, fmt.Errorf("amend transcript: %w", err)
	}
	sc.Log.WithField("conversation_id", id).Info("transcript amended")
	return sc.Gateway.GetConversation(ctx, id)
}
