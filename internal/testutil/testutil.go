// Package testutil provides shared fixtures for MeetingAssistant HTTP and transport tests.
package testutil

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/MeetingAssistant/internal/bot"
	"github.com/BTreeMap/MeetingAssistant/internal/models"
	"github.com/BTreeMap/MeetingAssistant/internal/qna"
	"github.com/BTreeMap/MeetingAssistant/internal/store"
	"github.com/bytedance/sonic"
)

// StaticKnowledgeBase answers every question with the same answers, or fails with Err.
type StaticKnowledgeBase struct {
	Answers []qna.Answer
	Err     error
}

// Query implements qna.KnowledgeBase.
func (kb StaticKnowledgeBase) Query(ctx context.Context, text string) ([]qna.Answer, error) {
	return kb.Answers, kb.Err
}

// NewTestRouter builds a Router over a fresh in-memory store. A nil kb means no answers.
func NewTestRouter(t *testing.T, kb qna.KnowledgeBase) (*bot.Router, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	router, err := bot.NewRouter(st, st, kb)
	if err != nil {
		t.Fatalf("failed to create router: %v", err)
	}
	return router, st
}

// CreateJSONRequest builds a request whose body is v encoded as JSON.
func CreateJSONRequest(t *testing.T, method, url string, v interface{}) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewReader(MustMarshalJSON(t, v)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertHTTPStatus stops the test when the recorded status differs.
func AssertHTTPStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Fatalf("expected status %d, got %d: %s", expected, rr.Code, rr.Body.String())
	}
}

// AssertJSONStatus checks the "status" field of a JSON body.
func AssertJSONStatus(t *testing.T, rr *httptest.ResponseRecorder, expected string) {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
	}
	MustUnmarshalJSON(t, rr.Body.Bytes(), &resp)
	if resp.Status != expected {
		t.Errorf("expected JSON status %q, got %q", expected, resp.Status)
	}
}

// DecodeResult unmarshals the "result" field of an APIResponse body into target.
func DecodeResult(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	var envelope struct {
		Result sonicRaw `json:"result"`
	}
	MustUnmarshalJSON(t, rr.Body.Bytes(), &envelope)
	MustUnmarshalJSON(t, envelope.Result, target)
}

type sonicRaw []byte

func (r *sonicRaw) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// SeedTestData adds two receipts and two inbound messages.
func SeedTestData(t *testing.T, st store.Store) {
	t.Helper()
	receipts := []models.Receipt{
		{To: "+15550000001", Status: models.MessageStatusSent, Time: 1},
		{To: "+15550000002", Status: models.MessageStatusDelivered, Time: 2},
	}
	for _, r := range receipts {
		if err := st.AddReceipt(r); err != nil {
			t.Fatalf("failed to add test receipt: %v", err)
		}
	}
	responses := []models.Response{
		{MessageID: "m1", From: "+15550000001", Body: "Choice1", Time: 10},
		{MessageID: "m2", From: "+15550000002", Body: "when is the meeting?", Time: 20},
	}
	for _, r := range responses {
		if err := st.AddResponse(r); err != nil {
			t.Fatalf("failed to add test response: %v", err)
		}
	}
}

// AssertResponseCount checks how many inbound messages the store holds.
func AssertResponseCount(t *testing.T, st store.Store, expected int) {
	t.Helper()
	responses, err := st.GetResponses()
	if err != nil {
		t.Fatalf("failed to get responses: %v", err)
	}
	if len(responses) != expected {
		t.Errorf("expected %d responses, got %d", expected, len(responses))
	}
}

// MessageTexts returns the text of each message.
func MessageTexts(messages []models.Message) []string {
	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Text
	}
	return texts
}

// MustMarshalJSON marshals v and fails the test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := sonic.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals data into target and fails the test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := sonic.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON %q: %v", data, err)
	}
}
