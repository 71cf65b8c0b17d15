package nodes

import (
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Configurable holds the typed option struct of a behavior and exposes it
// as the untyped option bag of graph.Behavior. Field names come from the
// mapstructure tags, which are also the serialized option keys.
type Configurable[T any] struct {
	mu  sync.RWMutex
	cfg T
}

// NewConfigurable wraps defaults.
func NewConfigurable[T any](defaults T) *Configurable[T] {
	return &Configurable[T]{cfg: defaults}
}

// Config returns a copy of the current options.
func (c *Configurable[T]) Config() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Options returns the options as a map keyed by their serialized names.
func (c *Configurable[T]) Options() map[string]any {
	cfg := c.Config()
	out := map[string]any{}
	if err := mapstructure.Decode(cfg, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// SetOptions merges opts into the current options. Keys that are absent
// keep their value; unknown keys are ignored.
func (c *Configurable[T]) SetOptions(opts map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.cfg
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &next,
		WeaklyTypedInput: true,
		ZeroFields:       true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(opts); err != nil {
		return err
	}
	c.cfg = next
	return nil
}

// Text is a labelled block of user text such as a prompt template or a
// script. It serializes as {label, text}.
type Text struct {
	Label string `mapstructure:"label" json:"label"`
	Text  string `mapstructure:"text" json:"text"`
}
