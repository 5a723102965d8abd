// Package models defines state management structures for MeetingAssistant dialogs.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Flow is the dialog state of one conversation. Each variant carries only the step
// relevant to its own dialog, so at most one step is ever meaningful.
type Flow interface {
	TopState() TopState
	isFlow()
}

// Idle means no dialog is active; input is matched against the menu.
type Idle struct{}

// ProfileDialog is the name/age/address dialog.
type ProfileDialog struct {
	Step ProfileStep
}

// PreferenceDialog is the meeting slot/no-meeting period/transportation dialog.
type PreferenceDialog struct {
	Step PreferenceStep
}

// FileUpload is entered from the menu but has no steps yet.
type FileUpload struct{}

// Help is entered from the menu but has no steps yet.
type Help struct{}

func (Idle) TopState() TopState             { return TopStateIdle }
func (ProfileDialog) TopState() TopState    { return TopStateProfile }
func (PreferenceDialog) TopState() TopState { return TopStatePreference }
func (FileUpload) TopState() TopState       { return TopStateFileUpload }
func (Help) TopState() TopState             { return TopStateHelp }

func (Idle) isFlow()             {}
func (ProfileDialog) isFlow()    {}
func (PreferenceDialog) isFlow() {}
func (FileUpload) isFlow()       {}
func (Help) isFlow()             {}

// EncodeFlow flattens a Flow into the (top state, step) pair stored by the persistence layer.
// The step is empty for variants without steps.
func EncodeFlow(f Flow) (TopState, string) {
	switch v := f.(type) {
	case ProfileDialog:
		return TopStateProfile, string(v.Step)
	case PreferenceDialog:
		return TopStatePreference, string(v.Step)
	case FileUpload:
		return TopStateFileUpload, ""
	case Help:
		return TopStateHelp, ""
	default:
		return TopStateIdle, ""
	}
}

// DecodeFlow rebuilds a Flow from its stored (top state, step) pair.
// An empty top state decodes to Idle.
func DecodeFlow(top TopState, step string) (Flow, error) {
	switch top {
	case "", TopStateIdle:
		return Idle{}, nil
	case TopStateProfile:
		s := ProfileStep(step)
		if s == "" {
			s = ProfileStepNone
		}
		if !s.IsValid() {
			return nil, fmt.Errorf("%w: %q for %s", ErrUnknownStep, step, top)
		}
		return ProfileDialog{Step: s}, nil
	case TopStatePreference:
		s := PreferenceStep(step)
		if s == "" {
			s = PreferenceStepNone
		}
		if !s.IsValid() {
			return nil, fmt.Errorf("%w: %q for %s", ErrUnknownStep, step, top)
		}
		return PreferenceDialog{Step: s}, nil
	case TopStateFileUpload:
		return FileUpload{}, nil
	case TopStateHelp:
		return Help{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopState, top)
	}
}

// ConversationFlow is the conversation-scoped record of which dialog and step is active.
type ConversationFlow struct {
	ConversationID string
	Flow           Flow
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewConversationFlow returns the default (idle) flow for a conversation.
func NewConversationFlow(conversationID string) ConversationFlow {
	now := time.Now()
	return ConversationFlow{
		ConversationID: conversationID,
		Flow:           Idle{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TopState returns the active top-level mode, idle when no flow is set.
func (c ConversationFlow) TopState() TopState {
	if c.Flow == nil {
		return TopStateIdle
	}
	return c.Flow.TopState()
}

// ProfileStep returns the profile dialog step, or none outside the profile dialog.
func (c ConversationFlow) ProfileStep() ProfileStep {
	if p, ok := c.Flow.(ProfileDialog); ok {
		return p.Step
	}
	return ProfileStepNone
}

// PreferenceStep returns the preference dialog step, or none outside the preference dialog.
func (c ConversationFlow) PreferenceStep() PreferenceStep {
	if p, ok := c.Flow.(PreferenceDialog); ok {
		return p.Step
	}
	return PreferenceStepNone
}

type conversationFlowJSON struct {
	ConversationID string         `json:"conversation_id"`
	TopState       TopState       `json:"top_state"`
	ProfileStep    ProfileStep    `json:"profile_step"`
	PreferenceStep PreferenceStep `json:"preference_step"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// MarshalJSON renders the flow with both step fields for API consumers.
func (c ConversationFlow) MarshalJSON() ([]byte, error) {
	return json.Marshal(conversationFlowJSON{
		ConversationID: c.ConversationID,
		TopState:       c.TopState(),
		ProfileStep:    c.ProfileStep(),
		PreferenceStep: c.PreferenceStep(),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON.
func (c *ConversationFlow) UnmarshalJSON(data []byte) error {
	var raw conversationFlowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	step := ""
	switch raw.TopState {
	case TopStateProfile:
		step = string(raw.ProfileStep)
	case TopStatePreference:
		step = string(raw.PreferenceStep)
	}
	f, err := DecodeFlow(raw.TopState, step)
	if err != nil {
		return err
	}
	c.ConversationID = raw.ConversationID
	c.Flow = f
	c.CreatedAt = raw.CreatedAt
	c.UpdatedAt = raw.UpdatedAt
	return nil
}
