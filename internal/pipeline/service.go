package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"memo-pipeline-go/internal/aggregator"
	"memo-pipeline-go/internal/dispatch"
	"memo-pipeline-go/internal/export"
	"memo-pipeline-go/internal/logger"
	"memo-pipeline-go/internal/types"
)

// Service is the entry point for API callers. Every call opens its own Scope
// and closes it before returning; stage 2 opens one inside the dispatched job.
type Service struct {
	orch       *Orchestrator
	scopes     ScopeFactory
	dispatcher *dispatch.Dispatcher
	log        *logger.Logger
	now        func() time.Time
}

func NewService(scopes ScopeFactory, d *dispatch.Dispatcher, log *logger.Logger) *Service {
	return &Service{
		orch:       NewOrchestrator(),
		scopes:     scopes,
		dispatcher: d,
		log:        log,
		now:        time.Now,
	}
}

func (s *Service) withScope(ctx context.Context, fn func(sc *Scope) error) error {
	sc, err := s.scopes(ctx)
	if err != nil {
		return fmt.Errorf("open scope: %w", err)
	}
	defer sc.Close()
	return fn(sc)
}

// CreateWithAudio runs stage 1. The returned conversation is either
// Transcribed or Failed.
func (s *Service) CreateWithAudio(ctx context.Context, title *string, audio []byte, format, userID string) (*types.Conversation, error) {
	var c *types.Conversation
	err := s.withScope(ctx, func(sc *Scope) error {
		var err error
		c, err = s.orch.Ingest(ctx, sc, IngestInput{Title: title, Audio: audio, Format: format, UserID: userID})
		return err
	})
	return c, err
}

func (s *Service) AmendTranscript(ctx context.Context, id, text string) (*types.Conversation, error) {
	var c *types.Conversation
	err := s.withScope(ctx, func(sc *Scope) error {
		var err error
		c, err = s.orch.AmendTranscript(ctx, sc, id, text)
		return err
	})
	return c, err
}

// TriggerExtraction schedules stage 2 and returns at once. The job runs
// under the dispatcher's context, not the caller's. Triggers for a
// conversation whose extraction is still running share that run's handle.
func (s *Service) TriggerExtraction(id string) *dispatch.Handle {
	return s.dispatcher.Submit(id, func(ctx context.Context) error {
		sc, err := s.scopes(ctx)
		if err != nil {
			s.log.WithConversation(id).WithError(err).Error("open scope for extraction")
			return fmt.Errorf("open scope: %w", err)
		}
		defer sc.Close()
		outcome := s.orch.Extract(ctx, sc, id)
		sc.Log.WithField("conversation_id", id).WithField("outcome", outcome.String()).Debug("extraction job done")
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id string) (*types.Conversation, error) {
	var c *types.Conversation
	err := s.withScope(ctx, func(sc *Scope) error {
		var err error
		c, err = sc.Gateway.GetConversation(ctx, id)
		return err
	})
	return c, err
}

func (s *Service) GetWithChildren(ctx context.Context, id string) (*types.ConversationDetails, error) {
	var d *types.ConversationDetails
	err := s.withScope(ctx, func(sc *Scope) error {
		var err error
		d, err = sc.Gateway.ConversationWithChildren(ctx, id)
		return err
	})
	return d, err
}

func (s *Service) GetForUser(ctx context.Context, userID string) ([]types.Conversation, error) {
	var out []types.Conversation
	err := s.withScope(ctx, func(sc *Scope) error {
		var err error
		out, err = sc.Gateway.ConversationsByUser(ctx, userID)
		return err
	})
	return out, err
}

func (s *Service) GetRecentForUser(ctx context.Context, userID string, count int) ([]types.Conversation, error) {
	var out []types.Conversation
	err := s.withScope(ctx, func(sc *Scope) error {
		var err error
		out, err = sc.Gateway.RecentConversationsByUser(ctx, userID, count)
		return err
	})
	return out, err
}

// Update applies the user-editable fields of p (title, summary, favorite).
// Nil fields, status and pipeline data are left as stored.
func (s *Service) Update(ctx context.Context, id string, p types.ConversationPatch) (*types.Conversation, error) {
	return s.patch(ctx, id, types.ConversationPatch{Title: p.Title, Summary: p.Summary, IsFavorite: p.IsFavorite})
}

func (s *Service) SoftDelete(ctx context.Context, id string) error {
	deleted := true
	_, err := s.patch(ctx, id, types.ConversationPatch{IsDeleted: &deleted})
	return err
}

func (s *Service) SetFavorite(ctx context.Context, id string, favorite bool) error {
	_, err := s.patch(ctx, id, types.ConversationPatch{IsFavorite: &favorite})
	return err
}

func (s *Service) patch(ctx context.Context, id string, p types.ConversationPatch) (*types.Conversation, error) {
	var c *types.Conversation
	err := s.withScope(ctx, func(sc *Scope) error {
		sc.Gateway.PatchConversation(id, p, s.now())
		if err := sc.Gateway.Commit(ctx); err != nil {
			return err
		}
		var err error
		c, err = sc.Gateway.GetConversation(ctx, id)
		return err
	})
	return c, err
}

func (s *Service) userDetails(ctx context.Context, sc *Scope, userID string) ([]types.ConversationDetails, error) {
	convs, err := sc.Gateway.ConversationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]types.ConversationDetails, 0, len(convs))
	for _, c := range convs {
		d, err := sc.Gateway.ConversationWithChildren(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// Overview aggregates the user's live conversations.
func (s *Service) Overview(ctx context.Context, userID string) (aggregator.Overview, error) {
	var ov aggregator.Overview
	err := s.withScope(ctx, func(sc *Scope) error {
		details, err := s.userDetails(ctx, sc, userID)
		if err != nil {
			return err
		}
		ov = aggregator.Aggregate(userID, details, s.now())
		return nil
	})
	return ov, err
}

// Export writes the user's overview and conversations as an xlsx workbook.
func (s *Service) Export(ctx context.Context, userID string, w io.Writer) error {
	return s.withScope(ctx, func(sc *Scope) error {
		details, err := s.userDetails(ctx, sc, userID)
		if err != nil {
			return err
		}
		return export.Write(w, aggregator.Aggregate(userID, details, s.now()), details)
	})
}
