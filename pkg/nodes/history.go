package nodes

import (
	"context"
	"slices"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/script"
)

// HistoryConfig holds the role recorded by a HistoryNode.
type HistoryConfig struct {
	Role string `mapstructure:"role"`
}

// HistoryNode appends the result to the history under Role.
type HistoryNode struct {
	*Configurable[HistoryConfig]
}

func NewHistoryNode() *HistoryNode {
	return &HistoryNode{NewConfigurable(HistoryConfig{Role: "user"})}
}

func (*HistoryNode) Type() string { return TypeHistory }

func (h *HistoryNode) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	st.History = append(st.History, domain.Message{Role: h.Config().Role, Content: st.Result})
	return textOut(st.Result), nil
}

// ManualHistoryConfig lists the messages a ManualHistoryNode appends.
type ManualHistoryConfig struct {
	ManualHistory []domain.Message `mapstructure:"manual_history"`
}

// ManualHistoryNode appends a fixed list of messages to the history.
type ManualHistoryNode struct {
	*Configurable[ManualHistoryConfig]
}

func NewManualHistoryNode() *ManualHistoryNode {
	return &ManualHistoryNode{NewConfigurable(ManualHistoryConfig{ManualHistory: []domain.Message{}})}
}

func (*ManualHistoryNode) Type() string { return TypeManualHistory }

func (m *ManualHistoryNode) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	st.History = append(st.History, m.Config().ManualHistory...)
	return textOut(st.Result), nil
}

// WindowedHistoryConfig is the token budget of a WindowedHistoryNode.
type WindowedHistoryConfig struct {
	Window int `mapstructure:"window"`
}

// WindowedHistoryNode trims the history to the newest messages whose
// tokens fit the window and returns it as "role: content" lines.
type WindowedHistoryNode struct {
	*Configurable[WindowedHistoryConfig]
	svc *Services
}

func NewWindowedHistoryNode(svc *Services) *WindowedHistoryNode {
	return &WindowedHistoryNode{Configurable: NewConfigurable(WindowedHistoryConfig{Window: 100}), svc: svc}
}

func (*WindowedHistoryNode) Type() string { return TypeWindowedHistory }

func (w *WindowedHistoryNode) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	st.History = windowHistory(st.History, w.Config().Window, w.svc)
	return textOut(script.HistoryText(st.History)), nil
}

func windowHistory(history []domain.Message, window int, svc *Services) []domain.Message {
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		tokens := svc.countTokens("", history[i].Content)
		if total+tokens > window {
			break
		}
		total += tokens
		start = i
	}
	return slices.Clone(history[start:])
}

// DynamicWindowedHistoryConfig holds a Lua expression over role and content.
type DynamicWindowedHistoryConfig struct {
	Target string `mapstructure:"target"`
}

// DynamicWindowedHistoryNode returns the history starting at the first
// message for which Target is true. The state history is left unchanged.
type DynamicWindowedHistoryNode struct {
	*Configurable[DynamicWindowedHistoryConfig]
	cache programCache
}

func NewDynamicWindowedHistoryNode() *DynamicWindowedHistoryNode {
	return &DynamicWindowedHistoryNode{Configurable: NewConfigurable(DynamicWindowedHistoryConfig{})}
}

func (*DynamicWindowedHistoryNode) Type() string { return TypeDynamicWindowedHistory }

func (d *DynamicWindowedHistoryNode) Run(ctx context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	target := d.Config().Target
	history := st.History
	if target == "" {
		return textOut(script.HistoryText(history)), nil
	}
	prog, err := d.cache.get(Text{Label: "target", Text: target}, script.CompileExpression)
	if err != nil {
		return nil, err
	}
	for i, m := range history {
		ok, err := prog.Eval(ctx, map[string]string{"role": m.Role, "content": m.Content})
		if err != nil {
			return nil, err
		}
		if ok {
			history = history[i:]
			break
		}
	}
	return textOut(script.HistoryText(history)), nil
}
