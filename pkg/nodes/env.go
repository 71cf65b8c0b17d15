package nodes

import (
	"context"
	"errors"
	"os"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/joho/godotenv"
)

// EnvConfig names the dotenv file to load.
type EnvConfig struct {
	Filename string `mapstructure:"filename"`
}

// EnvNode loads a dotenv file into the process environment. Variables
// already set are not overridden.
type EnvNode struct {
	*Configurable[EnvConfig]
}

func NewEnvNode() *EnvNode {
	return &EnvNode{NewConfigurable(EnvConfig{Filename: ".env"})}
}

func (*EnvNode) Type() string { return TypeEnv }

func (e *EnvNode) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	if err := godotenv.Load(e.Config().Filename); err != nil {
		return nil, err
	}
	return textOut(st.Result), nil
}

// ManualEnvConfig is one environment variable.
type ManualEnvConfig struct {
	Key string `mapstructure:"key"`
	Val string `mapstructure:"val"`
}

// ManualEnvNode sets one environment variable.
type ManualEnvNode struct {
	*Configurable[ManualEnvConfig]
}

func NewManualEnvNode() *ManualEnvNode {
	return &ManualEnvNode{NewConfigurable(ManualEnvConfig{})}
}

func (*ManualEnvNode) Type() string { return TypeManualEnv }

func (m *ManualEnvNode) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	cfg := m.Config()
	if cfg.Key == "" {
		return nil, errors.New("environment key is empty")
	}
	if err := os.Setenv(cfg.Key, cfg.Val); err != nil {
		return nil, err
	}
	return textOut(st.Result), nil
}
