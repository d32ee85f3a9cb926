package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"memo-pipeline-go/internal/types"
)

// Gateway is the unit of work one stage execution reads and writes through.
// Writes are buffered until Commit; reads see committed state only.
type Gateway interface {
	GetConversation(ctx context.Context, id string) (*types.Conversation, error)
	ConversationsByUser(ctx context.Context, userID string) ([]types.Conversation, error)
	RecentConversationsByUser(ctx context.Context, userID string, count int) ([]types.Conversation, error)
	ConversationWithChildren(ctx context.Context, id string) (*types.ConversationDetails, error)

	AddConversation(c *types.Conversation)
	UpdateConversation(c *types.Conversation)
	UpdateConversationIf(c *types.Conversation, expected types.Status)
	PatchConversation(id string, p types.ConversationPatch, updatedAt time.Time)
	DeleteConversation(id string)
	AddAppointment(a *types.Appointment)
	AddTask(t *types.Task)
	AddNote(n *types.Note)

	Commit(ctx context.Context) error
	Rollback()
	Close() error
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (types.Transcription, error)
}

type Extractor interface {
	Extract(ctx context.Context, req types.ExtractionRequest) (types.ExtractionResult, error)
}

// Scope is the set of collaborators owned by a single stage execution.
// Scopes are never shared between executions.
type Scope struct {
	Gateway     Gateway
	Transcriber Transcriber
	Extractor   Extractor
	Log         *logrus.Entry
}

func (s *Scope) Close() error {
	if s == nil || s.Gateway == nil {
		return nil
	}
	return s.Gateway.Close()
}

// ScopeFactory builds a fresh Scope. It is called once per stage execution,
// including inside dispatched background jobs.
type ScopeFactory func(ctx context.Context) (*Scope, error)
