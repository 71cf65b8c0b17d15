package nodes_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/nodes"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter counts one token per word and records the models asked for.
type wordCounter struct {
	models *[]string
}

func (w wordCounter) Count(model, text string) int {
	if w.models != nil {
		*w.models = append(*w.models, model)
	}
	return len(strings.Fields(text))
}

type fakeLLM struct {
	chat       []openai.ChatCompletionRequest
	completion []openai.CompletionRequest
	err        error
}

func (f *fakeLLM) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.chat = append(f.chat, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "chat answer"}},
	}}, nil
}

func (f *fakeLLM) CreateCompletion(_ context.Context, req openai.CompletionRequest) (openai.CompletionResponse, error) {
	f.completion = append(f.completion, req)
	return openai.CompletionResponse{Choices: []openai.CompletionChoice{{Text: "completion answer"}}}, nil
}

func TestOpenAINode_Chat(t *testing.T) {
	llm := &fakeLLM{}
	o := nodes.NewOpenAINode(&nodes.Services{LLM: llm})
	configure(t, o, map[string]any{"model": "gpt-4", "max_tokens": 50})

	st := stateWith("What is Go?")
	st.History = []domain.Message{{Role: "system", Content: "be brief"}}
	assert.Equal(t, "chat answer", mustRun(t, o, st))

	require.Len(t, llm.chat, 1)
	req := llm.chat[0]
	assert.Equal(t, "gpt-4", req.Model)
	assert.Equal(t, 50, req.MaxTokens)
	assert.Equal(t, []openai.ChatCompletionMessage{
		{Role: "system", Content: "be brief"},
		{Role: openai.ChatMessageRoleUser, Content: "What is Go?"},
	}, req.Messages)
}

func TestOpenAINode_Completion(t *testing.T) {
	llm := &fakeLLM{}
	o := nodes.NewOpenAINode(&nodes.Services{LLM: llm})
	configure(t, o, map[string]any{"model": "text-davinci-003"})

	st := stateWith("hello")
	st.History = []domain.Message{{Role: "user", Content: "hi"}}
	assert.Equal(t, "completion answer", mustRun(t, o, st))
	require.Len(t, llm.completion, 1)
	assert.Equal(t, "user: hi\nhello\n", llm.completion[0].Prompt)
}

func TestOpenAINode_Errors(t *testing.T) {
	_, err := run(t, nodes.NewOpenAINode(nil), stateWith("x"))
	assert.ErrorIs(t, err, nodes.ErrNoLLMClient)

	boom := errors.New("rate limited")
	o := nodes.NewOpenAINode(&nodes.Services{LLM: &fakeLLM{err: boom}})
	_, err = run(t, o, stateWith("x"))
	assert.ErrorIs(t, err, boom)
}

func TestOpenAINode_Cost(t *testing.T) {
	o := nodes.NewOpenAINode(nil)
	configure(t, o, map[string]any{"model": "gpt-4", "max_tokens": 100})

	cost, err := o.Cost(nil, stateWith("abcdefgh"))
	require.NoError(t, err)
	assert.InDelta(t, 0.00594, cost, 1e-9)

	configure(t, o, map[string]any{"model": "unknown-model"})
	_, err = o.Cost(nil, stateWith("x"))
	assert.Error(t, err)
}

func TestOpenAINode_CostUsesTokenizer(t *testing.T) {
	var models []string
	o := nodes.NewOpenAINode(&nodes.Services{Tokens: wordCounter{models: &models}})
	configure(t, o, map[string]any{"model": "gpt-4", "max_tokens": 10})

	cost, err := o.Cost(nil, stateWith("one two three four"))
	require.NoError(t, err)
	assert.InDelta(t, 0.03*4/1000+0.06*6/1000, cost, 1e-9)
	assert.Equal(t, []string{"gpt-4"}, models)
}

func TestOpenAINode_SendsPenalties(t *testing.T) {
	llm := &fakeLLM{}
	o := nodes.NewOpenAINode(&nodes.Services{LLM: llm})
	configure(t, o, map[string]any{"model": "gpt-4", "presence_penalty": 0.5, "frequency_penalty": "1.5"})
	mustRun(t, o, stateWith("x"))

	require.Len(t, llm.chat, 1)
	assert.InDelta(t, 0.5, llm.chat[0].PresencePenalty, 1e-6)
	assert.InDelta(t, 1.5, llm.chat[0].FrequencyPenalty, 1e-6)

	configure(t, o, map[string]any{"model": "text-davinci-003"})
	mustRun(t, o, stateWith("x"))
	require.Len(t, llm.completion, 1)
	assert.InDelta(t, 0.5, llm.completion[0].PresencePenalty, 1e-6)
	assert.InDelta(t, 1.5, llm.completion[0].FrequencyPenalty, 1e-6)
}
