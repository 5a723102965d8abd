package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/BTreeMap/MeetingAssistant/internal/twiliowhatsapp"
)

func postWebhook(svc *TwilioService, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(TwilioSignatureHeader, "sig")
	rec := httptest.NewRecorder()
	svc.TwilioWebhookHandler(rec, req)
	return rec
}

func TestTwilioService_ImplementsService(t *testing.T) {
	var _ Service = (*TwilioService)(nil)
}

func TestTwilioService_ValidateAndCanonicalizeRecipient(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"whatsapp:+15551234567", "15551234567", false},
		{"+1 555 123 4567", "15551234567", false},
		{"", "", true},
		{"abc", "", true},
		{"12345", "", true},
	}
	for _, tt := range tests {
		got, err := svc.ValidateAndCanonicalizeRecipient(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestTwilioService_WebhookText(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rec := postWebhook(svc, url.Values{
		"From":       {"whatsapp:+15551234567"},
		"Body":       {"Choice1"},
		"MessageSid": {"SM123"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	select {
	case resp := <-svc.Responses():
		if resp.From != "whatsapp:+15551234567" || resp.Body != "Choice1" || resp.MessageID != "SM123" {
			t.Errorf("unexpected response %+v", resp)
		}
	default:
		t.Fatal("expected a response on the channel")
	}
}

func TestTwilioService_WebhookMedia(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rec := postWebhook(svc, url.Values{
		"From":              {"whatsapp:+15551234567"},
		"NumMedia":          {"1"},
		"MediaUrl0":         {"https://api.twilio.com/media/ME1"},
		"MediaContentType0": {"text/calendar"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := <-svc.Responses()
	if len(resp.Attachments) != 1 || resp.Attachments[0].ContentType != "text/calendar" {
		t.Errorf("attachments = %+v", resp.Attachments)
	}
}

func TestTwilioService_WebhookMissingFields(t *testing.T) {
	svc := NewTwilioService(twiliowhatsapp.NewMockClient())
	rec := postWebhook(svc, url.Values{"From": {"whatsapp:+15551234567"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTwilioService_WebhookSignature(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	mock.RejectSignatures = true
	svc := NewTwilioService(mock, WithSignatureValidation(true))
	form := url.Values{"From": {"whatsapp:+15551234567"}, "Body": {"hi"}}

	if rec := postWebhook(svc, form); rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}

	mock.RejectSignatures = false
	if rec := postWebhook(svc, form); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestTwilioService_SendMessage(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	svc := NewTwilioService(mock)
	if err := svc.SendMessage(context.Background(), "whatsapp:+15551234567", "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if sent := mock.Sent(); len(sent) != 1 || sent[0].To != "15551234567" {
		t.Errorf("sent = %+v", sent)
	}
	if r := <-svc.Receipts(); r.To != "15551234567" {
		t.Errorf("receipt = %+v", r)
	}

	svc.Stop()
	if err := svc.SendMessage(context.Background(), "15551234567", "late"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}
