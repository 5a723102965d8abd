package models

import "time"

// Choice is one selectable option of a card. Value becomes the next turn's text when chosen.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Message is one outgoing reply: plain text, or text with a list of choices.
type Message struct {
	Text    string   `json:"text"`
	Choices []Choice `json:"choices,omitempty"`
}

// Text builds a plain text message.
func Text(text string) Message {
	return Message{Text: text}
}

// Card builds a message with selectable choices.
func Card(text string, choices ...Choice) Message {
	return Message{Text: text, Choices: choices}
}

// HasChoices reports whether the message should be rendered as a card.
func (m Message) HasChoices() bool {
	return len(m.Choices) > 0
}

// Attachment describes a binary payload carried by an incoming turn.
type Attachment struct {
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
}

// TurnKind distinguishes ordinary messages from membership updates.
type TurnKind string

const (
	// TurnKindMessage is a user message.
	TurnKindMessage TurnKind = "message"
	// TurnKindMembersAdded signals that the user joined the conversation.
	TurnKindMembersAdded TurnKind = "members_added"
)

// Turn is one inbound activity addressed to a conversation and user.
type Turn struct {
	ID             string       `json:"id,omitempty"`
	Kind           TurnKind     `json:"kind,omitempty"`
	ConversationID string       `json:"conversation_id"`
	UserID         string       `json:"user_id"`
	Text           string       `json:"text"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	ReceivedAt     time.Time    `json:"received_at,omitempty"`
}

// Validate checks the addressing fields of a turn.
func (t Turn) Validate() error {
	if t.ConversationID == "" {
		return ErrEmptyConversationID
	}
	if t.UserID == "" {
		return ErrEmptyUserID
	}
	return nil
}

// HasAttachments reports whether the turn carries any binary payload.
func (t Turn) HasAttachments() bool {
	return len(t.Attachments) > 0
}
