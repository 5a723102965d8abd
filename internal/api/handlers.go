// Package api provides HTTP handlers for MeetingAssistant endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/MeetingAssistant/internal/models"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// turnHandler runs one turn and returns the bot's messages (POST /turns).
func (s *Server) turnHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var turn models.Turn
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&turn); err != nil {
		slog.Warn("Server.turnHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := turn.Validate(); err != nil {
		slog.Warn("Server.turnHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}
	if turn.Kind == "" {
		turn.Kind = models.TurnKindMessage
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.ReceivedAt.IsZero() {
		turn.ReceivedAt = time.Now()
	}

	messages, err := s.turns.HandleTurn(r.Context(), turn)
	if err != nil {
		slog.Error("Server.turnHandler: turn failed", "error", err, "conversationID", turn.ConversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process turn"))
		return
	}
	slog.Debug("Server.turnHandler: turn processed", "conversationID", turn.ConversationID, "messages", len(messages))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Turn processed", map[string]interface{}{
		"turn_id":  turn.ID,
		"messages": messages,
	}))
}

// flowHandler returns the stored flow of a conversation (GET /conversations/{id}/flow).
// A conversation with no stored flow reports the idle default.
func (s *Server) flowHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	flow, err := s.st.GetConversationFlow(id)
	if err != nil {
		slog.Error("Error fetching conversation flow", "error", err, "conversationID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch conversation flow"))
		return
	}
	if flow == nil {
		def := models.NewConversationFlow(id)
		flow = &def
	}
	writeJSONResponse(w, http.StatusOK, models.Success(flow))
}

// profileHandler returns a stored user profile (GET /users/{id}/profile).
func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	profile, err := s.st.GetUserProfile(id)
	if err != nil {
		slog.Error("Error fetching user profile", "error", err, "userID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch user profile"))
		return
	}
	if profile == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("User profile not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profile))
}

func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.st.GetReceipts()
	if err != nil {
		slog.Error("Error fetching receipts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch receipts"))
		return
	}
	slog.Debug("receipts fetched", "count", len(receipts))
	writeJSONResponse(w, http.StatusOK, models.Success(receipts))
}

// responsesHandler returns all inbound transport messages (GET /responses).
func (s *Server) responsesHandler(w http.ResponseWriter, r *http.Request) {
	responses, err := s.st.GetResponses()
	if err != nil {
		slog.Error("Error fetching responses", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch responses"))
		return
	}
	slog.Debug("responses fetched", "count", len(responses))
	writeJSONResponse(w, http.StatusOK, models.Success(responses))
}

// statsHandler returns statistics about inbound messages (GET /stats).
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	responses, err := s.st.GetResponses()
	if err != nil {
		slog.Error("Error fetching responses in statsHandler", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch responses"))
		return
	}
	total := len(responses)
	perSender := make(map[string]int)
	var sumLen, withAttachments int
	for _, resp := range responses {
		perSender[resp.From]++
		sumLen += len(resp.Body)
		if len(resp.Attachments) > 0 {
			withAttachments++
		}
	}
	avgLen := 0.0
	if total > 0 {
		avgLen = float64(sumLen) / float64(total)
	}
	stats := map[string]interface{}{
		"total_responses":       total,
		"responses_per_sender":  perSender,
		"avg_response_length":   avgLen,
		"responses_with_attach": withAttachments,
	}
	slog.Debug("stats computed", "total_responses", total, "avg_response_length", avgLen)
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// A store read doubles as a connectivity check.
	done := make(chan error, 1)
	go func() {
		_, err := s.st.GetConversationFlow("health-check")
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			slog.Warn("Health check: store read failed", "error", err)
			healthData["status"] = "degraded"
			healthData["error"] = "Store unavailable"
		}
	case <-ctx.Done():
		healthData["status"] = "degraded"
		healthData["error"] = "Store timed out"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
