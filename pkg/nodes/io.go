package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
)

// InputConfig holds the prompt shown when input is requested.
type InputConfig struct {
	Prompt string `mapstructure:"prompt"`
}

// InputNode pauses the run for external input. Empty input stops the branch.
type InputNode struct {
	*Configurable[InputConfig]
}

func NewInputNode() *InputNode {
	return &InputNode{NewConfigurable(InputConfig{})}
}

func (*InputNode) Type() string { return TypeInput }

func (i *InputNode) Before(_ context.Context, n *graph.Node, _ *domain.State) *graph.BeforeResult {
	prompt := i.Config().Prompt
	if prompt == "" {
		prompt = n.Label
	}
	return &graph.BeforeResult{NeedsInput: true, Prompt: prompt}
}

func (*InputNode) Run(_ context.Context, _ *graph.Node, before *graph.BeforeResult, _ *domain.State) (*string, error) {
	if before == nil || before.Input == "" {
		return nil, nil
	}
	return textOut(before.Input), nil
}

// FileInputConfig names the file to read.
type FileInputConfig struct {
	Filename string `mapstructure:"filename"`
}

// FileInput returns the contents of a file.
type FileInput struct {
	*Configurable[FileInputConfig]
}

func NewFileInput() *FileInput {
	return &FileInput{NewConfigurable(FileInputConfig{})}
}

func (*FileInput) Type() string { return TypeFileInput }

func (f *FileInput) Run(context.Context, *graph.Node, *graph.BeforeResult, *domain.State) (*string, error) {
	data, err := os.ReadFile(f.Config().Filename)
	if err != nil {
		return nil, err
	}
	return textOut(string(data)), nil
}

// JSONFileInputConfig names the result field holding the path.
type JSONFileInputConfig struct {
	Key string `mapstructure:"key"`
}

// JSONFileInput reads the file whose path is found under Key in the JSON result.
type JSONFileInput struct {
	*Configurable[JSONFileInputConfig]
}

func NewJSONFileInput() *JSONFileInput {
	return &JSONFileInput{NewConfigurable(JSONFileInputConfig{Key: "filename"})}
}

func (*JSONFileInput) Type() string { return TypeJSONFileInput }

func (f *JSONFileInput) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	fields, err := resultObject(st)
	if err != nil {
		return nil, err
	}
	path, err := stringField(fields, f.Config().Key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return textOut(string(data)), nil
}

// FileOutputConfig names the target file. Mode is "w" to truncate or "a" to append.
type FileOutputConfig struct {
	Filename string `mapstructure:"filename"`
	Mode     string `mapstructure:"mode"`
}

// FileOutput writes the result to a file and passes it through.
type FileOutput struct {
	*Configurable[FileOutputConfig]
}

func NewFileOutput() *FileOutput {
	return &FileOutput{NewConfigurable(FileOutputConfig{Mode: "w"})}
}

func (*FileOutput) Type() string { return TypeFileOutput }

func (f *FileOutput) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	cfg := f.Config()
	if err := writeFile(cfg.Filename, cfg.Mode, st.Result); err != nil {
		return nil, err
	}
	return textOut(st.Result), nil
}

// JSONFileOutputConfig names the result fields holding the path and the data.
type JSONFileOutputConfig struct {
	FilenameKey string `mapstructure:"filename_key"`
	DataKey     string `mapstructure:"data_key"`
	Mode        string `mapstructure:"mode"`
}

// JSONFileOutput writes one field of the JSON result to the file named by another.
type JSONFileOutput struct {
	*Configurable[JSONFileOutputConfig]
}

func NewJSONFileOutput() *JSONFileOutput {
	return &JSONFileOutput{NewConfigurable(JSONFileOutputConfig{FilenameKey: "filename", DataKey: "data", Mode: "w"})}
}

func (*JSONFileOutput) Type() string { return TypeJSONFileOutput }

func (f *JSONFileOutput) Run(_ context.Context, _ *graph.Node, _ *graph.BeforeResult, st *domain.State) (*string, error) {
	cfg := f.Config()
	fields, err := resultObject(st)
	if err != nil {
		return nil, err
	}
	path, err := stringField(fields, cfg.FilenameKey)
	if err != nil {
		return nil, err
	}
	raw, ok := fields[cfg.DataKey]
	if !ok {
		return nil, fmt.Errorf("missing key %q", cfg.DataKey)
	}
	data, ok := raw.(string)
	if !ok {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		data = string(b)
	}
	if err := writeFile(path, cfg.Mode, data); err != nil {
		return nil, err
	}
	return textOut(st.Result), nil
}

func writeFile(path, mode, data string) error {
	flags := os.O_CREATE | os.O_WRONLY
	switch mode {
	case "", "w":
		flags |= os.O_TRUNC
	case "a":
		flags |= os.O_APPEND
	default:
		return fmt.Errorf("unsupported file mode %q", mode)
	}
	fh, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	if _, err := fh.WriteString(data); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func resultObject(st *domain.State) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(st.Result), &fields); err != nil {
		return nil, fmt.Errorf("result is not a JSON object: %w", err)
	}
	return fields, nil
}

func stringField(fields map[string]any, key string) (string, error) {
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("missing key %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("key %q is not a string", key)
	}
	return s, nil
}
