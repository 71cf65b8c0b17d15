package domain

import "maps"

// Message is one conversation-style entry of the run history.
type Message struct {
	Role    string `json:"role" msgpack:"role" yaml:"role" mapstructure:"role"`
	Content string `json:"content" msgpack:"content" yaml:"content" mapstructure:"content"`
}

// State is the mutable context threaded through a graph run.
type State struct {
	// Snapshot maps a node label to the last output of that node.
	// Two nodes sharing a label overwrite each other's entry.
	Snapshot map[string]string `json:"snapshot" msgpack:"snapshot"`

	// History is the append-only conversation log of the run.
	History []Message `json:"history" msgpack:"history"`

	// Result is the output of the most recent node.
	Result string `json:"result" msgpack:"result"`

	// Data carries non-textual payloads between node behaviors.
	Data map[string]any `json:"data,omitempty" msgpack:"data,omitempty"`

	// Exception is set when a node behavior failed and its error became the result.
	Exception bool `json:"exception" msgpack:"exception"`
}

// NewState creates an empty state.
func NewState() *State {
	return &State{
		Snapshot: make(map[string]string),
		History:  []Message{},
		Data:     make(map[string]any),
	}
}

// Get returns the snapshot entry for label, or "" when absent.
func (s *State) Get(label string) string {
	return s.Snapshot[label]
}

// Clone returns a copy with its own snapshot, history and data.
// Values stored in Data are copied shallowly.
func (s *State) Clone() *State {
	if s == nil {
		return NewState()
	}
	c := &State{
		Snapshot:  maps.Clone(s.Snapshot),
		History:   append([]Message(nil), s.History...),
		Result:    s.Result,
		Data:      maps.Clone(s.Data),
		Exception: s.Exception,
	}
	if c.Snapshot == nil {
		c.Snapshot = make(map[string]string)
	}
	if c.Data == nil {
		c.Data = make(map[string]any)
	}
	if c.History == nil {
		c.History = []Message{}
	}
	return c
}

// Normalize fills nil collections, typically after decoding.
func (s *State) Normalize() *State {
	if s.Snapshot == nil {
		s.Snapshot = make(map[string]string)
	}
	if s.History == nil {
		s.History = []Message{}
	}
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	return s
}
