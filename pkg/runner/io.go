package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aretw0/promptflow/pkg/graph"
)

// TextInput answers input requests from a line-oriented reader, printing
// the node prompt to w first. Lines are read on a background pump so a
// cancelled context returns immediately even while the reader blocks.
type TextInput struct {
	reader  *bufio.Reader
	writer  io.Writer
	signals *SignalManager

	lines     chan lineResult
	startOnce sync.Once
}

type lineResult struct {
	text string
	err  error
}

// NewTextInput reads answers from r and writes prompts to w. signals may
// be nil.
func NewTextInput(r io.Reader, w io.Writer, signals *SignalManager) *TextInput {
	if w == nil {
		w = io.Discard
	}
	return &TextInput{
		reader:  bufio.NewReader(r),
		writer:  w,
		signals: signals,
		lines:   make(chan lineResult),
	}
}

func (t *TextInput) pump() {
	go func() {
		for {
			text, err := t.reader.ReadString('\n')
			if err != nil && text != "" {
				// A final line without newline still counts.
				t.lines <- lineResult{text: text}
			}
			t.lines <- lineResult{text: text, err: err}
			if err != nil {
				return
			}
		}
	}()
}

// Input implements graph.InputFunc.
func (t *TextInput) Input(ctx context.Context, n *graph.Node, req *graph.BeforeResult) (string, error) {
	t.startOnce.Do(t.pump)

	prompt := n.Label
	if req != nil && req.Prompt != "" {
		prompt = req.Prompt
	}
	fmt.Fprintf(t.writer, "%s\n> ", prompt)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-t.lines:
		if res.err != nil {
			if t.signals != nil {
				t.signals.CheckRace()
				if err := t.signals.Context().Err(); err != nil {
					return "", err
				}
			}
			return "", res.err
		}
		return SanitizeInput(strings.TrimRight(res.text, "\r\n"))
	}
}

var _ graph.InputFunc = (*TextInput)(nil).Input
