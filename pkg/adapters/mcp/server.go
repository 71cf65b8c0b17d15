package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/promptflow"
	"github.com/aretw0/promptflow/internal/logging"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/editor"
	"github.com/aretw0/promptflow/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// graphURIPrefix addresses stored graph documents as resources.
const graphURIPrefix = "promptflow://graphs/"

// JobReport is the structured result of job_status.
type JobReport struct {
	Job    *domain.Job `json:"job" jsonschema_description:"The job record"`
	Result string      `json:"result,omitempty" jsonschema_description:"Final result once the job is DONE"`
	Failed bool        `json:"failed,omitempty" jsonschema_description:"Whether the final result is a node error"`
}

type jobArgs struct {
	JobID string `json:"job_id"`
}

// Server exposes jobs and stored graphs to MCP clients.
type Server struct {
	jobs      ports.JobService
	editor    *editor.Editor
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates an MCP server over the job service and the editor.
func NewServer(jobs ports.JobService, ed *editor.Editor, opts ...Option) *Server {
	s := &Server{
		jobs:      jobs,
		editor:    ed,
		mcpServer: server.NewMCPServer("promptflow-mcp", strings.TrimSpace(promptflow.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio serves on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL("http://"+localAddr(addr)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func localAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_graphs",
		mcp.WithDescription("List the stored graphs."),
	), s.handleListGraphs)

	s.mcpServer.AddTool(mcp.NewTool("run_graph",
		mcp.WithDescription("Submit a job running the stored graph. Returns the job id."),
		mcp.WithString("graph_id", mcp.Required(), mcp.Description("Graph uid")),
		mcp.WithString("metadata", mcp.Description("JSON object attached to the job (optional)")),
	), s.handleRunGraph)

	s.mcpServer.AddTool(mcp.NewTool("job_status",
		mcp.WithDescription("Get the status of a job and its result once finished."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id")),
		mcp.WithOutputSchema[JobReport](),
	), mcp.NewStructuredToolHandler(s.jobReport))

	s.mcpServer.AddTool(mcp.NewTool("send_input",
		mcp.WithDescription("Answer the input request a job is waiting on."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id")),
		mcp.WithString("value", mcp.Required(), mcp.Description("Input value")),
	), s.handleSendInput)

	s.mcpServer.AddTool(mcp.NewTool("stop_job",
		mcp.WithDescription("Stop a job. It ends as DONE."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id")),
	), s.handleStopJob)

	s.mcpServer.AddTool(mcp.NewTool("graph_mermaid",
		mcp.WithDescription("Render a stored graph as a Mermaid flowchart."),
		mcp.WithString("graph_id", mcp.Required(), mcp.Description("Graph uid")),
	), s.handleMermaid)
}

func (s *Server) handleListGraphs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphs, err := s.editor.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	data, _ := json.Marshal(graphs)
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleRunGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID, err := request.RequireString("graph_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var metadata map[string]any
	if raw := request.GetString("metadata", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("metadata must be a JSON object: %v", err)), nil
		}
	}
	jobID, err := s.jobs.Submit(ctx, graphID, metadata)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}
	s.logger.Info("MCP job submitted", "job_id", jobID, "graph_id", graphID)
	return mcp.NewToolResultText(jobID), nil
}

func (s *Server) jobReport(ctx context.Context, _ mcp.CallToolRequest, args jobArgs) (JobReport, error) {
	job, err := s.jobs.Status(ctx, args.JobID)
	if err != nil {
		return JobReport{}, err
	}
	report := JobReport{Job: job}
	if job.Status == domain.JobDone || job.Status == domain.JobFailed {
		st, err := s.jobs.Output(ctx, args.JobID)
		switch {
		case err == nil:
			report.Result = st.Result
			report.Failed = st.Exception
		case !errors.Is(err, domain.ErrNoOutput):
			return JobReport{}, err
		}
	}
	return report, nil
}

func (s *Server) handleSendInput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := request.RequireString("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.jobs.SendInput(ctx, jobID, value); err != nil {
		s.logger.Warn("MCP input rejected", "job_id", jobID, "err", err)
		return mcp.NewToolResultError(fmt.Sprintf("input rejected: %v", err)), nil
	}
	return mcp.NewToolResultText("input delivered"), nil
}

func (s *Server) handleStopJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.jobs.Stop(ctx, jobID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("stop failed: %v", err)), nil
	}
	return mcp.NewToolResultText("stopped"), nil
}

func (s *Server) handleMermaid(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID, err := request.RequireString("graph_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g, err := s.editor.Load(ctx, graphID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}
	return mcp.NewToolResultText(g.Mermaid(nil)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(graphURIPrefix+"{uid}", "Stored graph document",
		mcp.WithTemplateMIMEType("application/json"),
	), s.readGraph)
}

func (s *Server) readGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uid := strings.TrimPrefix(request.Params.URI, graphURIPrefix)
	g, err := s.editor.Load(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}
	data, err := json.Marshal(g.Document())
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
