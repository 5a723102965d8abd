package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/BTreeMap/MeetingAssistant/internal/models"
	"github.com/BTreeMap/MeetingAssistant/internal/twiliowhatsapp"
)

// TwilioSignatureHeader carries the HMAC signature of a Twilio webhook request.
const TwilioSignatureHeader = "X-Twilio-Signature"

// TwilioOpts holds configuration for the Twilio service.
type TwilioOpts struct {
	ValidateSignature bool
	WebhookURL        string // public URL Twilio posts to; derived from the request when empty
}

// TwilioOption configures a TwilioService.
type TwilioOption func(*TwilioOpts)

// WithSignatureValidation enables X-Twilio-Signature checking on the webhook.
func WithSignatureValidation(enabled bool) TwilioOption {
	return func(o *TwilioOpts) { o.ValidateSignature = enabled }
}

// WithWebhookURL sets the public webhook URL used when checking signatures.
func WithWebhookURL(url string) TwilioOption {
	return func(o *TwilioOpts) { o.WebhookURL = url }
}

// TwilioService implements the Service interface using Twilio API
type TwilioService struct {
	client    twiliowhatsapp.Sender // Could be real Twilio client or MockClient
	validator twiliowhatsapp.WebhookValidator
	opts      TwilioOpts
	receipts  chan models.Receipt
	responses chan models.Response
	done      chan struct{}
	mu        sync.RWMutex
	stopped   bool
}

// NewTwilioService creates a new TwilioService. Signature validation requires a client
// that also implements twiliowhatsapp.WebhookValidator.
func NewTwilioService(client twiliowhatsapp.Sender, opts ...TwilioOption) *TwilioService {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	service := &TwilioService{
		client:    client,
		opts:      cfg,
		receipts:  make(chan models.Receipt, DefaultChannelBufferSize),
		responses: make(chan models.Response, DefaultChannelBufferSize),
		done:      make(chan struct{}),
	}
	if v, ok := client.(twiliowhatsapp.WebhookValidator); ok {
		service.validator = v
	}
	if cfg.ValidateSignature && service.validator == nil {
		slog.Warn("TwilioService signature validation requested but client cannot validate; webhooks will be rejected")
	}
	return service
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp phone number.
// It removes all non-numeric characters, including the "whatsapp:" prefix.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := canonicalizePhone(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("TwilioService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op for Twilio; inbound messages arrive on the webhook.
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the service
func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)
	close(s.receipts)
	close(s.responses)
	return nil
}

// SendMessage sends a message via Twilio and emits a receipt
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService SendMessage validation error", "error", err, "to", to)
		return err
	}

	if err := s.client.SendMessage(ctx, canonicalTo, body); err != nil {
		return err
	}

	s.safeEmitReceipt(models.Receipt{To: canonicalTo, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return nil
}

// Receipts returns the channel for sent message receipts
func (s *TwilioService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns the channel for messages received on the webhook.
func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

func (s *TwilioService) safeEmitReceipt(receipt models.Receipt) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return
	}

	select {
	case s.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
	}
}

// TwilioWebhookHandler handles inbound Twilio webhook requests.
// It parses incoming messages, including media, and emits them into the Responses() channel.
func (s *TwilioService) TwilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("Twilio webhook received")

	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if s.opts.ValidateSignature && !s.signatureValid(r) {
		slog.Warn("Twilio webhook signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	attachments := webhookAttachments(r)

	if from == "" || (body == "" && len(attachments) == 0) {
		slog.Warn("Twilio webhook missing fields", "from", from, "body_length", len(body))
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	slog.Info("Inbound WhatsApp message from Twilio", "from", from, "body_length", len(body), "attachments", len(attachments))

	s.safeEmitResponse(models.Response{
		MessageID:   r.PostFormValue("MessageSid"),
		From:        from,
		Body:        body,
		Attachments: attachments,
		Time:        time.Now().Unix(),
	})

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// webhookAttachments reads MediaUrlN/MediaContentTypeN for N < NumMedia.
func webhookAttachments(r *http.Request) []models.Attachment {
	n, err := strconv.Atoi(r.PostFormValue("NumMedia"))
	if err != nil || n <= 0 {
		return nil
	}
	atts := make([]models.Attachment, 0, n)
	for i := 0; i < n; i++ {
		url := r.PostFormValue(fmt.Sprintf("MediaUrl%d", i))
		if url == "" {
			continue
		}
		atts = append(atts, models.Attachment{
			ContentType: r.PostFormValue(fmt.Sprintf("MediaContentType%d", i)),
			URL:         url,
		})
	}
	return atts
}

func (s *TwilioService) signatureValid(r *http.Request) bool {
	if s.validator == nil {
		return false
	}
	url := s.opts.WebhookURL
	if url == "" {
		scheme := "https"
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		} else if r.TLS == nil {
			scheme = "http"
		}
		url = scheme + "://" + r.Host + r.URL.RequestURI()
	}
	params := make(map[string]string, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return s.validator.ValidateWebhook(url, params, r.Header.Get(TwilioSignatureHeader))
}

// safeEmitResponse safely pushes responses into the responses channel.
func (s *TwilioService) safeEmitResponse(response models.Response) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		slog.Warn("TwilioService dropping inbound response (service stopped)", "from", response.From)
		return
	}

	select {
	case s.responses <- response:
		slog.Debug("TwilioService emitted inbound response", "from", response.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioService responses channel blocked, dropping message", "from", response.From)
	}
}
