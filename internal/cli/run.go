package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/promptflow/internal/presentation/tui"
	"github.com/aretw0/promptflow/pkg/adapters/file"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/runner"
)

// RunOptions configures a local run of a graph document.
type RunOptions struct {
	Path string
	// State is an optional JSON document seeding the initial state.
	State string
	// JSON prints the final state as JSON instead of a report.
	JSON  bool
	Watch bool
	Quiet bool

	Stdin    io.Reader
	Stdout   io.Writer
	Renderer *tui.Renderer
}

// RunFile runs the graph at opts.Path in this process, answering input
// requests from opts.Stdin.
func RunFile(ctx context.Context, app *App, opts RunOptions) error {
	seed, err := initialState(opts.State)
	if err != nil {
		return err
	}
	if opts.Watch {
		return runWatch(ctx, app, opts, seed)
	}

	signals := runner.NewSignalManager(ctx)
	defer signals.Stop()
	input := runner.NewTextInput(opts.Stdin, opts.Stdout, signals)

	st, err := runOnce(signals.Context(), app, opts, seed, input)
	if err != nil && isInterrupted(err) {
		if !opts.Quiet {
			fmt.Fprintln(opts.Stdout)
			printSystemMessage(opts.Stdout, "Interrupted.")
		}
		return nil
	}
	if err != nil {
		return err
	}
	return printState(opts, st)
}

func runOnce(ctx context.Context, app *App, opts RunOptions, seed *domain.State, input *runner.TextInput) (*domain.State, error) {
	g, err := LoadFile(opts.Path, app)
	if err != nil {
		return nil, err
	}
	app.Logger.Info("running graph", "graph_uid", g.UID, "path", opts.Path)
	st := seed.Clone()
	st, err = app.Runner.RunLocal(ctx, g, st, input.Input)
	if err != nil {
		return st, err
	}
	if ctx.Err() != nil {
		return st, ctx.Err()
	}
	return st, nil
}

// LoadFile reads a JSON or YAML graph document and builds it with the app registry.
func LoadFile(path string, app *App) (*graph.Graph, error) {
	doc, err := file.ReadDocument(path)
	if err != nil {
		return nil, err
	}
	return graph.FromDocument(doc, app.Registry, graph.WithLogger(app.Logger))
}

func initialState(raw string) (*domain.State, error) {
	st := domain.NewState()
	if raw == "" {
		return st, nil
	}
	if err := json.Unmarshal([]byte(raw), st); err != nil {
		return nil, fmt.Errorf("error parsing --state JSON: %w", err)
	}
	return st.Normalize(), nil
}

func printState(opts RunOptions, st *domain.State) error {
	if opts.JSON {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	if opts.Quiet {
		_, err := fmt.Fprintln(opts.Stdout, st.Result)
		return err
	}
	r := opts.Renderer
	if r == nil {
		r = tui.NewRenderer(false)
	}
	_, err := fmt.Fprint(opts.Stdout, r.Render(tui.ResultMarkdown(st)))
	return err
}

// Validate loads the document at path and reports structural warnings.
func Validate(path string, app *App, logger *slog.Logger) ([]string, error) {
	g, err := LoadFile(path, app)
	if err != nil {
		return nil, err
	}
	var warnings []string
	if g.StartNode() == nil && g.InitNode() == nil {
		warnings = append(warnings, "graph has no Start or Init node and will not run")
	}
	for _, c := range g.Connectors() {
		if c.DetectCycle() {
			warnings = append(warnings, fmt.Sprintf("connector %s (%s -> %s) closes a cycle", c.UID, c.Prev.Label, c.Next.Label))
		}
	}
	for _, w := range warnings {
		logger.Warn("validation warning", "graph_uid", g.UID, "warning", w)
	}
	return warnings, nil
}
