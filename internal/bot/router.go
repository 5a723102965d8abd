// Package bot routes inbound turns to the dialogs or the knowledge base and persists state.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/MeetingAssistant/internal/dialog"
	"github.com/BTreeMap/MeetingAssistant/internal/models"
	"github.com/BTreeMap/MeetingAssistant/internal/qna"
)

var (
	// ErrMissingConversationState is returned when no conversation flow store is supplied.
	ErrMissingConversationState = errors.New("missing conversation state store")
	// ErrMissingUserState is returned when no user profile store is supplied.
	ErrMissingUserState = errors.New("missing user state store")
)

// ConversationStateStore persists the per-conversation flow.
type ConversationStateStore interface {
	GetConversationFlow(conversationID string) (*models.ConversationFlow, error)
	SaveConversationFlow(flow models.ConversationFlow) error
}

// UserStateStore persists the per-user profile.
type UserStateStore interface {
	GetUserProfile(userID string) (*models.UserProfile, error)
	SaveUserProfile(profile models.UserProfile) error
}

// TurnHandler processes one turn and returns the messages to send, in order.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn models.Turn) ([]models.Message, error)
}

// Router is the top-level turn dispatcher.
type Router struct {
	flows    ConversationStateStore
	profiles UserStateStore
	kb       qna.KnowledgeBase
}

// NewRouter builds a Router. A nil knowledge base behaves as one that never finds an answer.
func NewRouter(flows ConversationStateStore, profiles UserStateStore, kb qna.KnowledgeBase) (*Router, error) {
	if flows == nil {
		return nil, ErrMissingConversationState
	}
	if profiles == nil {
		return nil, ErrMissingUserState
	}
	if kb == nil {
		kb = qna.Empty{}
	}
	return &Router{flows: flows, profiles: profiles, kb: kb}, nil
}

// HandleTurn runs one turn to completion. If saving state fails the produced messages are
// still returned alongside the error; callers decide whether to send them.
func (r *Router) HandleTurn(ctx context.Context, turn models.Turn) ([]models.Message, error) {
	if err := turn.Validate(); err != nil {
		return nil, err
	}

	if turn.Kind == models.TurnKindMembersAdded {
		slog.Debug("Router HandleTurn greeting new member", "conversationID", turn.ConversationID, "userID", turn.UserID)
		return dialog.Greeting(), nil
	}

	if turn.HasAttachments() {
		slog.Debug("Router HandleTurn attachment received", "conversationID", turn.ConversationID, "attachments", len(turn.Attachments))
		return []models.Message{models.Text(dialog.AttachmentAck)}, nil
	}

	cf, profile, err := r.load(turn)
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	if _, idle := cf.Flow.(models.Idle); idle {
		var flow models.Flow
		flow, profile, messages = r.idle(ctx, turn.Text, profile)
		cf.Flow = flow
	} else {
		res := dialog.Continue(cf.Flow, profile, turn.Text)
		cf.Flow, profile, messages = res.Flow, res.Profile, res.Messages
	}

	if err := r.save(cf, profile); err != nil {
		return messages, err
	}

	top, step := models.EncodeFlow(cf.Flow)
	slog.Info("Router HandleTurn complete", "conversationID", turn.ConversationID, "topState", top, "step", step, "messages", len(messages))
	return messages, nil
}

// idle handles text received while no dialog is active.
func (r *Router) idle(ctx context.Context, text string, profile models.UserProfile) (models.Flow, models.UserProfile, []models.Message) {
	if flow, banner, ok := dialog.MenuCommand(text); ok {
		messages := []models.Message{models.Text(banner)}
		switch flow.(type) {
		case models.ProfileDialog, models.PreferenceDialog:
			res := dialog.Continue(flow, profile, text)
			return res.Flow, res.Profile, append(messages, res.Messages...)
		}
		return flow, profile, messages
	}

	return models.Idle{}, profile, append(r.lookup(ctx, text), dialog.WelcomeMenu())
}

// lookup queries the knowledge base and degrades to the no-answer text on any failure.
func (r *Router) lookup(ctx context.Context, text string) []models.Message {
	answers, err := r.kb.Query(ctx, text)
	if err != nil {
		slog.Warn("Router knowledge base lookup unavailable", "error", err)
		return []models.Message{models.Text(dialog.NoAnswerText)}
	}
	top, ok := qna.Top(answers)
	if !ok {
		return []models.Message{models.Text(dialog.NoAnswerText)}
	}
	return []models.Message{models.Text(top.Answer)}
}

func (r *Router) load(turn models.Turn) (models.ConversationFlow, models.UserProfile, error) {
	stored, err := r.flows.GetConversationFlow(turn.ConversationID)
	if err != nil {
		slog.Error("Router failed to load conversation flow", "error", err, "conversationID", turn.ConversationID)
		return models.ConversationFlow{}, models.UserProfile{}, fmt.Errorf("load conversation flow: %w", err)
	}
	cf := models.NewConversationFlow(turn.ConversationID)
	if stored != nil {
		cf = *stored
	}
	if cf.Flow == nil {
		cf.Flow = models.Idle{}
	}

	storedProfile, err := r.profiles.GetUserProfile(turn.UserID)
	if err != nil {
		slog.Error("Router failed to load user profile", "error", err, "userID", turn.UserID)
		return models.ConversationFlow{}, models.UserProfile{}, fmt.Errorf("load user profile: %w", err)
	}
	profile := models.NewUserProfile(turn.UserID)
	if storedProfile != nil {
		profile = *storedProfile
	}
	return cf, profile, nil
}

func (r *Router) save(cf models.ConversationFlow, profile models.UserProfile) error {
	now := time.Now()
	cf.UpdatedAt = now
	profile.UpdatedAt = now
	// Profile before flow: a failed write must not leave the flow past unsaved answers.
	if err := r.profiles.SaveUserProfile(profile); err != nil {
		slog.Error("Router failed to save user profile", "error", err, "userID", profile.UserID)
		return fmt.Errorf("save user profile: %w", err)
	}
	if err := r.flows.SaveConversationFlow(cf); err != nil {
		slog.Error("Router failed to save conversation flow", "error", err, "conversationID", cf.ConversationID)
		return fmt.Errorf("save conversation flow: %w", err)
	}
	return nil
}
