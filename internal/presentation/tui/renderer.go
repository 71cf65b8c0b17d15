package tui

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Renderer turns markdown reports into terminal output.
type Renderer struct {
	glamour *glamour.TermRenderer
}

// NewRenderer returns a renderer. Unstyled renderers pass markdown through.
func NewRenderer(styled bool) *Renderer {
	if !styled {
		return &Renderer{}
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return &Renderer{}
	}
	return &Renderer{glamour: r}
}

// Styled reports whether f is a terminal that accepts colors.
func Styled(f *os.File) bool {
	return term.IsTerminal(int(f.Fd())) && !termenv.EnvNoColor()
}

// Render renders markdown, falling back to the raw text.
func (r *Renderer) Render(markdown string) string {
	if r.glamour == nil {
		return markdown
	}
	out, err := r.glamour.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

// ResultMarkdown reports the outcome of a run: the result and the last
// output of every node.
func ResultMarkdown(st *domain.State) string {
	var sb strings.Builder
	if st.Exception {
		sb.WriteString("# Run failed\n\n")
	} else {
		sb.WriteString("# Result\n\n")
	}
	sb.WriteString(fence(st.Result))

	if len(st.Snapshot) > 0 {
		sb.WriteString("\n## Node outputs\n\n| Node | Output |\n|---|---|\n")
		labels := make([]string, 0, len(st.Snapshot))
		for label := range st.Snapshot {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			fmt.Fprintf(&sb, "| %s | %s |\n", cell(label), cell(st.Snapshot[label]))
		}
	}
	return sb.String()
}

// JobMarkdown reports a job record and, when known, its final state.
func JobMarkdown(job *domain.Job, st *domain.State) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Job %s\n\n", job.ID)
	fmt.Fprintf(&sb, "- **Graph:** %s\n- **Status:** %s\n- **Updated:** %s\n\n",
		job.GraphID, job.Status, job.UpdatedAt.Format("2006-01-02 15:04:05"))
	if st != nil {
		sb.WriteString(ResultMarkdown(st))
	}
	return sb.String()
}

func fence(s string) string {
	return "```\n" + s + "\n```\n"
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}
