package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestResultMarkdown(t *testing.T) {
	st := domain.NewState()
	st.Result = "done"
	st.Snapshot["B"] = "two | pipes\nand lines"
	st.Snapshot["A"] = "one"

	md := ResultMarkdown(st)
	assert.True(t, strings.HasPrefix(md, "# Result\n"))
	assert.Contains(t, md, "```\ndone\n```")
	assert.Less(t, strings.Index(md, "| A |"), strings.Index(md, "| B |"))
	assert.Contains(t, md, `| B | two \| pipes and lines |`)
}

func TestResultMarkdown_Failure(t *testing.T) {
	st := domain.NewState()
	st.Exception = true
	st.Result = "boom"
	assert.True(t, strings.HasPrefix(ResultMarkdown(st), "# Run failed"))
}

func TestJobMarkdown(t *testing.T) {
	job := &domain.Job{ID: "j1", GraphID: "g1", Status: domain.JobDone, UpdatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	md := JobMarkdown(job, nil)
	assert.Contains(t, md, "# Job j1")
	assert.Contains(t, md, "**Status:** DONE")
	assert.Contains(t, md, "2024-01-02 03:04:05")
}

func TestRenderer_PlainPassesThrough(t *testing.T) {
	assert.Equal(t, "# hi\n", NewRenderer(false).Render("# hi\n"))
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3")
	assert.Contains(t, buf.String(), "v1.2.3")
}
