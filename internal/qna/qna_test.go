package qna

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func TestTop(t *testing.T) {
	if _, ok := Top(nil); ok {
		t.Error("Top(nil) should report no answer")
	}
	got, ok := Top([]Answer{{"a", 10}, {"b", 80}, {"c", 80}})
	if !ok || got.Answer != "b" {
		t.Errorf("Top = %+v, %v; want b", got, ok)
	}
}

func TestEmptyKnowledgeBase(t *testing.T) {
	answers, err := Empty{}.Query(context.Background(), "anything")
	if err != nil || len(answers) != 0 {
		t.Errorf("Empty.Query = %v, %v", answers, err)
	}
}

func TestNewMakerClient_RequiresConfig(t *testing.T) {
	if _, err := NewMakerClient(WithKnowledgeBaseID("kb")); err == nil {
		t.Error("expected error for incomplete configuration")
	}
}

func TestMakerClient_Query(t *testing.T) {
	var gotAuth, gotPath, gotQuestion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		var req generateAnswerRequest
		_ = sonic.Unmarshal(body, &req)
		gotQuestion = req.Question
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"answers":[{"answer":"low","score":12.5},{"answer":"Meetings are booked hourly.","score":87.1}]}`)
	}))
	defer srv.Close()

	c, err := NewMakerClient(WithKnowledgeBaseID("kb-1"), WithEndpointKey("secret"), WithEndpointHost(srv.URL+"/qnamaker/"))
	if err != nil {
		t.Fatalf("NewMakerClient: %v", err)
	}
	answers, err := c.Query(context.Background(), "how are meetings booked?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if gotAuth != "EndpointKey secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotPath != "/qnamaker/knowledgebases/kb-1/generateAnswer" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuestion != "how are meetings booked?" {
		t.Errorf("question = %q", gotQuestion)
	}
	if len(answers) != 2 || answers[0].Answer != "Meetings are booked hourly." {
		t.Errorf("answers = %+v", answers)
	}
}

func TestMakerClient_NoMatchIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"answers":[{"answer":"No good match found in KB.","score":0}]}`)
	}))
	defer srv.Close()

	c, _ := NewMakerClient(WithKnowledgeBaseID("kb"), WithEndpointKey("k"), WithEndpointHost(srv.URL))
	answers, err := c.Query(context.Background(), "xyz")
	if err != nil || len(answers) != 0 {
		t.Errorf("Query = %+v, %v; want empty", answers, err)
	}
}

func TestMakerClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := NewMakerClient(WithKnowledgeBaseID("kb"), WithEndpointKey("k"), WithEndpointHost(srv.URL))
	_, err := c.Query(context.Background(), "xyz")
	if !errors.Is(err, ErrLookupUnavailable) {
		t.Errorf("expected ErrLookupUnavailable, got %v", err)
	}
}

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   *openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

func completion(content string) *openai.ChatCompletion {
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestOpenAIKnowledgeBase_Answer(t *testing.T) {
	mock := &mockChatService{resp: completion("  Upload your calendar from the menu. ")}
	kb := &OpenAIKnowledgeBase{chat: mock, model: openai.ChatModelGPT4oMini, document: "doc"}
	answers, err := kb.Query(context.Background(), "how do I upload?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(answers) != 1 || answers[0].Answer != "Upload your calendar from the menu." {
		t.Errorf("answers = %+v", answers)
	}
	if len(mock.params.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(mock.params.Messages))
	}
}

func TestOpenAIKnowledgeBase_NoAnswer(t *testing.T) {
	kb := &OpenAIKnowledgeBase{chat: &mockChatService{resp: completion(NoAnswerToken)}}
	answers, err := kb.Query(context.Background(), "weather?")
	if err != nil || len(answers) != 0 {
		t.Errorf("Query = %+v, %v; want empty", answers, err)
	}
}

func TestOpenAIKnowledgeBase_Errors(t *testing.T) {
	kb := &OpenAIKnowledgeBase{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := kb.Query(context.Background(), "q")
	if !errors.Is(err, ErrLookupUnavailable) || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected wrapped service failure, got %v", err)
	}

	kb = &OpenAIKnowledgeBase{chat: &mockChatService{resp: &openai.ChatCompletion{}}}
	_, err = kb.Query(context.Background(), "q")
	if !errors.Is(err, ErrLookupUnavailable) {
		t.Errorf("expected ErrLookupUnavailable for empty choices, got %v", err)
	}
}

func TestNewOpenAIKnowledgeBase_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAIKnowledgeBase(); err == nil {
		t.Error("expected error when API key not provided")
	}
}

func TestNewOpenAIKnowledgeBase_WithKey(t *testing.T) {
	kb, err := NewOpenAIKnowledgeBase(WithAPIKey("test-key"), WithDocument("doc"))
	if err != nil || kb == nil {
		t.Fatalf("NewOpenAIKnowledgeBase = %v, %v", kb, err)
	}
}
