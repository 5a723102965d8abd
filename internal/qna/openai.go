package qna

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// NoAnswerToken is what the model is told to reply when the document has no answer.
const NoAnswerToken = "NO_ANSWER"

// ErrNoChoicesReturned is returned when a completion has no choices.
var ErrNoChoicesReturned = errors.New("no choices returned")

const openAISystemPrompt = `You answer questions for a meeting assistant bot.
Answer only from the knowledge document below, in one or two short sentences.
If the document does not contain the answer, reply with exactly ` + NoAnswerToken + `.

Knowledge document:
`

// chatService is the subset of the OpenAI chat completion service in use.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIOpts holds configuration for the OpenAI knowledge base.
type OpenAIOpts struct {
	APIKey   string
	Model    openai.ChatModel
	Document string
}

// OpenAIOption configures an OpenAIKnowledgeBase.
type OpenAIOption func(*OpenAIOpts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) OpenAIOption {
	return func(o *OpenAIOpts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model openai.ChatModel) OpenAIOption {
	return func(o *OpenAIOpts) { o.Model = model }
}

// WithDocument sets the knowledge document text.
func WithDocument(doc string) OpenAIOption {
	return func(o *OpenAIOpts) { o.Document = doc }
}

// OpenAIKnowledgeBase answers questions from a knowledge document with a chat model.
type OpenAIKnowledgeBase struct {
	chat     chatService
	model    openai.ChatModel
	document string
}

// NewOpenAIKnowledgeBase builds the knowledge base. The API key falls back to OPENAI_API_KEY.
func NewOpenAIKnowledgeBase(opts ...OpenAIOption) (*OpenAIKnowledgeBase, error) {
	cfg := OpenAIOpts{Model: openai.ChatModelGPT4oMini}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("OpenAI knowledge base created", "model", cfg.Model, "documentChars", len(cfg.Document))
	return &OpenAIKnowledgeBase{chat: &client.Chat.Completions, model: cfg.Model, document: cfg.Document}, nil
}

// LoadDocument reads a knowledge document from disk.
func LoadDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read knowledge base file %s: %w", path, err)
	}
	return string(data), nil
}

// Query asks the model and returns a single answer, or none when it replies NO_ANSWER.
func (kb *OpenAIKnowledgeBase) Query(ctx context.Context, text string) ([]Answer, error) {
	resp, err := kb.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: kb.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(openAISystemPrompt + kb.document),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		slog.Warn("OpenAI knowledge base request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, ErrNoChoicesReturned)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" || strings.Contains(content, NoAnswerToken) {
		slog.Debug("OpenAI knowledge base found no answer")
		return nil, nil
	}
	return []Answer{{Answer: content, Score: 1}}, nil
}
