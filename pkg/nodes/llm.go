package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/script"
	openai "github.com/sashabaranov/go-openai"
)

// ErrNoLLMClient is returned when an OpenAINode runs without a configured client.
var ErrNoLLMClient = errors.New("no OpenAI client configured")

// Dollar prices per 1000 tokens.
var (
	promptCost1K = map[string]float64{
		"text-davinci-003":  0.02,
		"gpt-3.5-turbo":     0.0015,
		"gpt-3.5-turbo-16k": 0.003,
		"gpt-4":             0.03,
		"gpt-4-32k":         0.06,
	}
	completionCost1K = map[string]float64{
		"text-davinci-003":  0.02,
		"gpt-3.5-turbo":     0.002,
		"gpt-3.5-turbo-16k": 0.004,
		"gpt-4":             0.06,
		"gpt-4-32k":         0.12,
	}
	chatModels = map[string]bool{
		"gpt-3.5-turbo":     true,
		"gpt-3.5-turbo-16k": true,
		"gpt-4":             true,
		"gpt-4-32k":         true,
	}
)

// OpenAIConfig holds the sampling parameters of an OpenAINode.
type OpenAIConfig struct {
	Model            string  `mapstructure:"model"`
	Temperature      float64 `mapstructure:"temperature"`
	TopP             float64 `mapstructure:"top_p"`
	N                int     `mapstructure:"n"`
	MaxTokens        int     `mapstructure:"max_tokens"`
	PresencePenalty  float64 `mapstructure:"presence_penalty"`
	FrequencyPenalty float64 `mapstructure:"frequency_penalty"`
}

// OpenAINode sends the history plus the current result to an OpenAI model
// and returns the first completion.
type OpenAINode struct {
	*Configurable[OpenAIConfig]
	svc *Services
}

func NewOpenAINode(svc *Services) *OpenAINode {
	return &OpenAINode{
		Configurable: NewConfigurable(OpenAIConfig{
			Model:     openai.GPT3Dot5Turbo,
			TopP:      1,
			N:         1,
			MaxTokens: 256,
		}),
		svc: svc,
	}
}

func (*OpenAINode) Type() string { return TypeOpenAI }

func (o *OpenAINode) Run(ctx context.Context, n *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	if o.svc == nil || o.svc.LLM == nil {
		return nil, ErrNoLLMClient
	}
	cfg := o.Config()
	prompt := st.Result
	o.svc.logger().DebugContext(ctx, "calling model", "node_label", n.Label, "model", cfg.Model)

	var (
		out string
		err error
	)
	if chatModels[cfg.Model] {
		out, err = o.chat(ctx, cfg, prompt, st.History)
	} else {
		out, err = o.complete(ctx, cfg, prompt, st.History)
	}
	if err != nil {
		return nil, err
	}
	return textOut(out), nil
}

func (o *OpenAINode) chat(ctx context.Context, cfg OpenAIConfig, prompt string, history []domain.Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	if prompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
	}
	resp, err := o.svc.LLM.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            cfg.Model,
		Messages:         messages,
		MaxTokens:        cfg.MaxTokens,
		Temperature:      float32(cfg.Temperature),
		TopP:             float32(cfg.TopP),
		N:                cfg.N,
		PresencePenalty:  float32(cfg.PresencePenalty),
		FrequencyPenalty: float32(cfg.FrequencyPenalty),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAINode) complete(ctx context.Context, cfg OpenAIConfig, prompt string, history []domain.Message) (string, error) {
	resp, err := o.svc.LLM.CreateCompletion(ctx, openai.CompletionRequest{
		Model:            cfg.Model,
		Prompt:           script.HistoryText(history) + "\n" + prompt + "\n",
		MaxTokens:        cfg.MaxTokens,
		Temperature:      float32(cfg.Temperature),
		TopP:             float32(cfg.TopP),
		N:                cfg.N,
		PresencePenalty:  float32(cfg.PresencePenalty),
		FrequencyPenalty: float32(cfg.FrequencyPenalty),
	})
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Text, nil
}

// Cost prices the prompt currently in the result plus a full completion
// of MaxTokens minus the prompt.
func (o *OpenAINode) Cost(_ *graph.Node, st *domain.State) (float64, error) {
	cfg := o.Config()
	promptPrice, ok := promptCost1K[cfg.Model]
	if !ok {
		return 0, fmt.Errorf("no pricing for model %s", cfg.Model)
	}
	prompt, err := script.Format(st.Result, st)
	if err != nil {
		prompt = st.Result
	}
	tokens := o.svc.countTokens(cfg.Model, strings.TrimSpace(prompt))
	completion := max(cfg.MaxTokens-tokens, 0)
	return promptPrice*float64(tokens)/1000 + completionCost1K[cfg.Model]*float64(completion)/1000, nil
}
