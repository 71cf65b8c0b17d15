package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/promptflow/pkg/domain"
)

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("Enter Node", "node_uid", e.NodeUID, "node_label", e.NodeLabel, "type", e.NodeType)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Failed {
				logger.Debug("Leave Node (Error)", "node_uid", e.NodeUID, "duration", e.Duration)
			} else {
				logger.Debug("Leave Node", "node_uid", e.NodeUID, "duration", e.Duration)
			}
		},
		OnJobStatus: func(ctx context.Context, e *domain.JobEvent) {
			logger.Debug("Job Status", "job_id", e.JobID, "status", e.Status)
		},
	}
}

// isInterrupted reports errors caused by Ctrl+C or a closed stdin.
func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)
}
