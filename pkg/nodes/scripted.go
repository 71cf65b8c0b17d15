package nodes

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/script"
)

// DefaultFunc is the body given to a FuncNode with no code.
const DefaultFunc = "function main(state)\n    return true\nend\n"

// ErrAssertionFailed is the node error of a false assertion.
var ErrAssertionFailed = errors.New("assertion failed")

// programCache compiles a script once per distinct source.
type programCache struct {
	mu   sync.Mutex
	prog *script.Program
}

func (c *programCache) get(t Text, compile func(name, src string) (*script.Program, error)) (*script.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prog != nil && c.prog.Name == t.Label && c.prog.Source == t.Text {
		return c.prog, nil
	}
	p, err := compile(t.Label, t.Text)
	if err != nil {
		return nil, err
	}
	c.prog = p
	return p, nil
}

// FuncConfig holds the Lua source of a FuncNode.
type FuncConfig struct {
	Func Text `mapstructure:"func"`
}

// FuncNode runs user Lua code. The main(state) return value becomes the
// output; returning nil stops the branch.
type FuncNode struct {
	*Configurable[FuncConfig]
	cache programCache
}

func NewFuncNode() *FuncNode {
	return &FuncNode{Configurable: NewConfigurable(FuncConfig{Func: Text{Label: "func.lua", Text: DefaultFunc}})}
}

func (*FuncNode) Type() string { return TypeFunc }

func (f *FuncNode) Run(ctx context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	src := f.Config().Func
	if strings.TrimSpace(src.Text) == "" {
		src.Text = DefaultFunc
	}
	prog, err := f.cache.get(src, script.Compile)
	if err != nil {
		return nil, err
	}
	return prog.Call(ctx, st)
}

// AssertConfig holds a Lua predicate.
type AssertConfig struct {
	Assertion Text `mapstructure:"assertion"`
}

// AssertNode fails when its predicate is false and otherwise passes the
// result through. Snapshot labels are visible as globals.
type AssertNode struct {
	*Configurable[AssertConfig]
	cache programCache
}

func NewAssertNode() *AssertNode {
	return &AssertNode{Configurable: NewConfigurable(AssertConfig{Assertion: Text{Label: "Assertion", Text: "true"}})}
}

func (*AssertNode) Type() string { return TypeAssert }

func (a *AssertNode) Run(ctx context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	prog, err := a.cache.get(a.Config().Assertion, script.CompileExpression)
	if err != nil {
		return nil, err
	}
	ok, err := prog.Truthy(ctx, st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAssertionFailed
	}
	return textOut(st.Result), nil
}
