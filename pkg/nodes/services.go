package nodes

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/promptflow/internal/logging"
	openai "github.com/sashabaranov/go-openai"
)

// LLMClient is the subset of the OpenAI client used by OpenAINode.
// *openai.Client satisfies it.
type LLMClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateCompletion(ctx context.Context, req openai.CompletionRequest) (openai.CompletionResponse, error)
}

// Services carries the external handles node behaviors need. Behaviors
// never reach for globals; everything comes through here.
type Services struct {
	HTTP   *http.Client
	LLM    LLMClient
	Tokens Tokenizer
	Now    func() time.Time
	Rand   *rand.Rand
	Logger *slog.Logger

	randMu sync.Mutex
}

// DefaultServices returns handles suitable for production use. LLM is nil
// until configured with NewOpenAIClient.
func DefaultServices() *Services {
	logger := logging.NewNop()
	return &Services{
		HTTP:   &http.Client{Timeout: 60 * time.Second},
		Tokens: NewTiktokenCounter(logger),
		Now:    time.Now,
		Rand:   rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		Logger: logger,
	}
}

// NewOpenAIClient builds an OpenAI client. An empty baseURL keeps the
// public endpoint.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

func (s *Services) logger() *slog.Logger {
	if s == nil || s.Logger == nil {
		return logging.NewNop()
	}
	return s.Logger
}

// countTokens uses the configured Tokenizer and approximates without one.
func (s *Services) countTokens(model, text string) int {
	if s == nil || s.Tokens == nil {
		return approximateTokens(text)
	}
	return s.Tokens.Count(model, text)
}

func (s *Services) now() time.Time {
	if s == nil || s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Services) httpClient() *http.Client {
	if s == nil || s.HTTP == nil {
		return http.DefaultClient
	}
	return s.HTTP
}

// intN returns a random integer in [0, n), guarding the shared source.
func (s *Services) intN(n int) int {
	if s == nil {
		return rand.IntN(n)
	}
	s.randMu.Lock()
	defer s.randMu.Unlock()
	if s.Rand == nil {
		return rand.IntN(n)
	}
	return s.Rand.IntN(n)
}
