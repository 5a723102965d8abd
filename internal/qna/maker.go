package qna

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// DefaultTimeout bounds a single generateAnswer call.
const DefaultTimeout = 10 * time.Second

// MakerOpts holds configuration for the QnA Maker client.
type MakerOpts struct {
	KnowledgeBaseID string
	EndpointKey     string
	Host            string // e.g. https://example.azurewebsites.net/qnamaker
	Top             int
	HTTPClient      *http.Client
}

// MakerOption configures a MakerClient.
type MakerOption func(*MakerOpts)

// WithKnowledgeBaseID sets the knowledge base id.
func WithKnowledgeBaseID(id string) MakerOption {
	return func(o *MakerOpts) { o.KnowledgeBaseID = id }
}

// WithEndpointKey sets the endpoint key sent as "EndpointKey <key>".
func WithEndpointKey(key string) MakerOption {
	return func(o *MakerOpts) { o.EndpointKey = key }
}

// WithEndpointHost sets the runtime host.
func WithEndpointHost(host string) MakerOption {
	return func(o *MakerOpts) { o.Host = host }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) MakerOption {
	return func(o *MakerOpts) { o.HTTPClient = c }
}

// WithTop sets how many answers are requested.
func WithTop(n int) MakerOption {
	return func(o *MakerOpts) { o.Top = n }
}

// MakerClient queries a QnA Maker knowledge base through its generateAnswer endpoint.
type MakerClient struct {
	url  string
	key  string
	top  int
	http *http.Client
}

type generateAnswerRequest struct {
	Question string `json:"question"`
	Top      int    `json:"top"`
}

type generateAnswerResponse struct {
	Answers []struct {
		Answer string  `json:"answer"`
		Score  float64 `json:"score"`
	} `json:"answers"`
}

// NewMakerClient validates the options and builds a client.
func NewMakerClient(opts ...MakerOption) (*MakerClient, error) {
	cfg := MakerOpts{Top: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.KnowledgeBaseID == "" || cfg.EndpointKey == "" || cfg.Host == "" {
		return nil, fmt.Errorf("qna maker requires knowledge base id, endpoint key and host")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.Top < 1 {
		cfg.Top = 1
	}
	url := strings.TrimRight(cfg.Host, "/") + "/knowledgebases/" + cfg.KnowledgeBaseID + "/generateAnswer"
	slog.Debug("QnA Maker client created", "url", url, "top", cfg.Top)
	return &MakerClient{url: url, key: cfg.EndpointKey, top: cfg.Top, http: cfg.HTTPClient}, nil
}

// Query posts the question and returns the answers ordered by score.
// QnA Maker reports "no answer" as a single zero-score answer, which is dropped.
func (c *MakerClient) Query(ctx context.Context, text string) ([]Answer, error) {
	body, err := sonic.Marshal(generateAnswerRequest{Question: text, Top: c.top})
	if err != nil {
		return nil, fmt.Errorf("encode generateAnswer request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generateAnswer request: %w", err)
	}
	req.Header.Set("Authorization", "EndpointKey "+c.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("QnA Maker request failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLookupUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrLookupUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Warn("QnA Maker returned non-OK status", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrLookupUnavailable, resp.StatusCode)
	}

	var parsed generateAnswerResponse
	if err := sonic.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrLookupUnavailable, err)
	}

	answers := make([]Answer, 0, len(parsed.Answers))
	for _, a := range parsed.Answers {
		if a.Score <= 0 {
			continue
		}
		answers = append(answers, Answer{Answer: a.Answer, Score: a.Score})
	}
	sortAnswers(answers)
	slog.Debug("QnA Maker query complete", "answers", len(answers))
	return answers, nil
}
