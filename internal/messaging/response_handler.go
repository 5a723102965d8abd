package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/MeetingAssistant/internal/bot"
	"github.com/BTreeMap/MeetingAssistant/internal/models"
	"github.com/BTreeMap/MeetingAssistant/internal/store"
	"github.com/google/uuid"
)

// ErrorMessage is sent instead of the turn's replies when a turn fails.
const ErrorMessage = "⚠️ We encountered an issue processing your message. Please try again."

// ResponseStore records inbound responses, filters redelivered messages, and tells
// first contacts apart by whether a conversation flow exists.
type ResponseStore interface {
	AddResponse(r models.Response) error
	GetConversationFlow(conversationID string) (*models.ConversationFlow, error)
	store.DedupRepo
}

// ReceiptStore records delivery receipts.
type ReceiptStore interface {
	AddReceipt(r models.Receipt) error
}

// ResponseHandler turns each inbound response of a Service into a bot turn and sends
// the replies back through the same Service.
type ResponseHandler struct {
	msgService Service
	turns      bot.TurnHandler
	store      ResponseStore
	renderer   *ChoiceRenderer
}

// NewResponseHandler creates a handler. store may be nil, which disables recording, dedup
// and the first-contact greeting.
func NewResponseHandler(msgService Service, turns bot.TurnHandler, store ResponseStore) *ResponseHandler {
	return &ResponseHandler{
		msgService: msgService,
		turns:      turns,
		store:      store,
		renderer:   NewChoiceRenderer(),
	}
}

// ProcessResponse runs one inbound response through the turn handler.
// One-to-one chats use the sender's canonical number as both conversation and user id.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonicalFrom, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler ProcessResponse validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	if rh.store != nil {
		if response.MessageID != "" {
			inserted, err := rh.store.RecordInbound(response.MessageID, canonicalFrom)
			if err != nil {
				slog.Error("ResponseHandler dedup check failed", "error", err, "messageID", response.MessageID)
			} else if !inserted {
				slog.Info("ResponseHandler skipping duplicate message", "from", canonicalFrom, "messageID", response.MessageID)
				return nil
			}
		}
		if err := rh.store.AddResponse(response); err != nil {
			slog.Error("ResponseHandler failed to record response", "error", err, "from", canonicalFrom)
		}
	}

	if rh.isFirstContact(canonicalFrom) {
		if err := rh.Greet(ctx, canonicalFrom); err != nil {
			slog.Warn("ResponseHandler failed to greet new contact", "error", err, "from", canonicalFrom)
		}
	}

	turnID := response.MessageID
	if turnID == "" {
		turnID = uuid.NewString()
	}
	turn := models.Turn{
		ID:             turnID,
		Kind:           models.TurnKindMessage,
		ConversationID: canonicalFrom,
		UserID:         canonicalFrom,
		Text:           rh.renderer.Resolve(canonicalFrom, response.Body),
		Attachments:    response.Attachments,
		ReceivedAt:     time.Unix(response.Time, 0),
	}

	slog.Debug("ResponseHandler processing response", "from", canonicalFrom, "turnID", turnID, "body_length", len(turn.Text))
	messages, err := rh.turns.HandleTurn(ctx, turn)
	if err != nil {
		slog.Error("ResponseHandler turn failed", "error", err, "from", canonicalFrom)
		if sendErr := rh.msgService.SendMessage(ctx, canonicalFrom, ErrorMessage); sendErr != nil {
			slog.Error("ResponseHandler failed to send error message", "error", sendErr, "from", canonicalFrom)
		}
		return fmt.Errorf("turn failed: %w", err)
	}

	if err := rh.send(ctx, canonicalFrom, messages); err != nil {
		return err
	}

	if rh.store != nil && response.MessageID != "" {
		if err := rh.store.MarkProcessed(response.MessageID); err != nil {
			slog.Error("ResponseHandler failed to mark message processed", "error", err, "messageID", response.MessageID)
		}
	}
	slog.Info("ResponseHandler response handled", "from", canonicalFrom, "replies", len(messages))
	return nil
}

// isFirstContact reports whether no conversation flow has been stored for the sender yet.
// Attachment turns store nothing, so a contact who only sends files is greeted each time.
func (rh *ResponseHandler) isFirstContact(conversationID string) bool {
	if rh.store == nil {
		return false
	}
	flow, err := rh.store.GetConversationFlow(conversationID)
	if err != nil {
		slog.Error("ResponseHandler failed to look up conversation", "error", err, "conversationID", conversationID)
		return false
	}
	return flow == nil
}

// Greet sends the welcome messages to a recipient who has just joined.
func (rh *ResponseHandler) Greet(ctx context.Context, recipient string) error {
	canonical, err := rh.msgService.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	messages, err := rh.turns.HandleTurn(ctx, models.Turn{
		ID:             uuid.NewString(),
		Kind:           models.TurnKindMembersAdded,
		ConversationID: canonical,
		UserID:         canonical,
		ReceivedAt:     time.Now(),
	})
	if err != nil {
		return fmt.Errorf("greeting failed: %w", err)
	}
	return rh.send(ctx, canonical, messages)
}

// send delivers messages in order and stops at the first failure.
func (rh *ResponseHandler) send(ctx context.Context, to string, messages []models.Message) error {
	for i, msg := range messages {
		body := rh.renderer.Render(to, msg)
		if err := rh.msgService.SendMessage(ctx, to, body); err != nil {
			slog.Error("ResponseHandler failed to send reply", "error", err, "to", to, "index", i)
			return fmt.Errorf("failed to send reply %d to %s: %w", i, to, err)
		}
	}
	return nil
}

// Start begins processing responses from the messaging service.
// This should be called once to start the response processing loop.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler starting response processing")

	go func() {
		defer slog.Info("ResponseHandler stopped response processing")

		for {
			select {
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					slog.Debug("ResponseHandler responses channel closed")
					return
				}
				if err := rh.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseHandler failed to process response", "error", err, "from", response.From)
				}

			case <-ctx.Done():
				slog.Debug("ResponseHandler stopping due to context cancellation")
				return
			}
		}
	}()
}

// RecordReceipts drains the service's receipt channel into the store until it closes.
func RecordReceipts(ctx context.Context, msgService Service, receipts ReceiptStore) {
	go func() {
		for {
			select {
			case r, ok := <-msgService.Receipts():
				if !ok {
					return
				}
				if err := receipts.AddReceipt(r); err != nil {
					slog.Error("Failed to record receipt", "error", err, "to", r.To)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
