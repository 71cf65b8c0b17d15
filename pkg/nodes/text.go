package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/script"
)

func textOut(s string) *string { return &s }

// PromptConfig holds the template of a PromptNode.
type PromptConfig struct {
	Prompt Text `mapstructure:"prompt"`
}

// PromptNode formats its template against the state.
type PromptNode struct {
	*Configurable[PromptConfig]
}

// NewPromptNode creates a PromptNode with an empty template.
func NewPromptNode() *PromptNode {
	return &PromptNode{NewConfigurable(PromptConfig{Prompt: Text{Label: "Prompt"}})}
}

func (*PromptNode) Type() string { return TypePrompt }

func (p *PromptNode) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	out, err := script.Format(p.Config().Prompt.Text, st)
	if err != nil {
		return nil, err
	}
	st.Result = out
	return &out, nil
}

// Cost leaves the raw template in the result so a downstream LLM node can
// estimate its prompt size.
func (p *PromptNode) Cost(_ *graph.Node, st *domain.State) (float64, error) {
	st.Result = p.Config().Prompt.Text
	return 0, nil
}

// LoggingConfig holds the message template of a LoggingNode.
type LoggingConfig struct {
	DebugStr Text `mapstructure:"debug_str"`
}

// LoggingNode logs a formatted message and passes the result through.
type LoggingNode struct {
	*Configurable[LoggingConfig]
	svc *Services
}

func NewLoggingNode(svc *Services) *LoggingNode {
	return &LoggingNode{
		Configurable: NewConfigurable(LoggingConfig{DebugStr: Text{Label: "Debug String", Text: "{state.result}"}}),
		svc:          svc,
	}
}

func (*LoggingNode) Type() string { return TypeLogging }

func (l *LoggingNode) Run(ctx context.Context, n *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	msg, err := script.Format(l.Config().DebugStr.Text, st)
	if err != nil {
		return nil, err
	}
	l.svc.logger().InfoContext(ctx, msg, "node_label", n.Label)
	return textOut(st.Result), nil
}

// DateConfig holds a Go time layout.
type DateConfig struct {
	DatetimeFormat string `mapstructure:"datetime_format"`
}

// DateNode returns the current time.
type DateNode struct {
	*Configurable[DateConfig]
	svc *Services
}

func NewDateNode(svc *Services) *DateNode {
	return &DateNode{
		Configurable: NewConfigurable(DateConfig{DatetimeFormat: "01/02/2006, 15:04:05"}),
		svc:          svc,
	}
}

func (*DateNode) Type() string { return TypeDate }

func (d *DateNode) Run(context.Context, *graph.Node, *graph.BeforeResult, *domain.State) (*string, error) {
	return textOut(d.svc.now().Format(d.Config().DatetimeFormat)), nil
}

// RandomConfig bounds a RandomNode, both ends inclusive.
type RandomConfig struct {
	Min int `mapstructure:"min"`
	Max int `mapstructure:"max"`
}

// RandomNode returns a random integer.
type RandomNode struct {
	*Configurable[RandomConfig]
	svc *Services
}

func NewRandomNode(svc *Services) *RandomNode {
	return &RandomNode{
		Configurable: NewConfigurable(RandomConfig{Min: 0, Max: 100}),
		svc:          svc,
	}
}

func (*RandomNode) Type() string { return TypeRandom }

func (r *RandomNode) Run(context.Context, *graph.Node, *graph.BeforeResult, *domain.State) (*string, error) {
	cfg := r.Config()
	if cfg.Max < cfg.Min {
		return nil, fmt.Errorf("max %d is lower than min %d", cfg.Max, cfg.Min)
	}
	return textOut(strconv.Itoa(cfg.Min + r.svc.intN(cfg.Max-cfg.Min+1))), nil
}

// RegexConfig holds a regular expression in RE2 syntax.
type RegexConfig struct {
	Regex string `mapstructure:"regex"`
}

// RegexNode returns the first match of its expression in the result, or "".
type RegexNode struct {
	*Configurable[RegexConfig]
}

func NewRegexNode() *RegexNode {
	return &RegexNode{NewConfigurable(RegexConfig{})}
}

func (*RegexNode) Type() string { return TypeRegex }

func (r *RegexNode) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	re, err := regexp.Compile(r.Config().Regex)
	if err != nil {
		return nil, err
	}
	return textOut(re.FindString(st.Result)), nil
}

// TagConfig delimits the text a TagNode extracts.
type TagConfig struct {
	StartTag string `mapstructure:"start_tag"`
	EndTag   string `mapstructure:"end_tag"`
}

// TagNode returns the text between the first start tag and the end tag
// following it, or "" when either is missing.
type TagNode struct {
	*Configurable[TagConfig]
}

func NewTagNode() *TagNode {
	return &TagNode{NewConfigurable(TagConfig{})}
}

func (*TagNode) Type() string { return TypeTag }

func (t *TagNode) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	cfg := t.Config()
	_, rest, ok := strings.Cut(st.Result, cfg.StartTag)
	if !ok {
		return textOut(""), nil
	}
	inner, _, ok := strings.Cut(rest, cfg.EndTag)
	if !ok {
		return textOut(""), nil
	}
	return textOut(inner), nil
}

// DummyLLMConfig holds the canned answer of a DummyLLMNode.
type DummyLLMConfig struct {
	DummyString string `mapstructure:"dummy_string"`
}

// DummyLLMNode stands in for an LLM call without contacting any API.
type DummyLLMNode struct {
	*Configurable[DummyLLMConfig]
}

func NewDummyLLMNode() *DummyLLMNode {
	return &DummyLLMNode{NewConfigurable(DummyLLMConfig{DummyString: "dummy string"})}
}

func (*DummyLLMNode) Type() string { return TypeDummyLLM }

func (d *DummyLLMNode) Run(context.Context, *graph.Node, *graph.BeforeResult, *domain.State) (*string, error) {
	return textOut(d.Config().DummyString), nil
}

// Cost is always zero; no API is called.
func (*DummyLLMNode) Cost(*graph.Node, *domain.State) (float64, error) { return 0, nil }
