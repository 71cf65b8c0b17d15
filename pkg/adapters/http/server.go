package http

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/promptflow"
	"github.com/aretw0/promptflow/internal/logging"
	"github.com/aretw0/promptflow/pkg/editor"
	"github.com/aretw0/promptflow/pkg/observability"
	"github.com/aretw0/promptflow/pkg/ports"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

//go:embed openapi.yaml
var openapiSpec []byte

// maxBodySize bounds request bodies, graph documents included.
const maxBodySize = 4 << 20

// Server exposes jobs and graph editing over HTTP.
type Server struct {
	jobs     ports.JobService
	editor   *editor.Editor
	streams  *StreamManager
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithStreams shares a StreamManager whose hooks are installed on the runner.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.streams = sm }
}

// WithMetrics serves the metrics of g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a server over the job service and the graph editor.
func New(jobs ports.JobService, ed *editor.Editor, opts ...Option) *Server {
	s := &Server{
		jobs:   jobs,
		editor: ed,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.streams == nil {
		s.streams = NewStreamManager()
		s.streams.logger = s.logger
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.getHealth)
	r.Get("/info", s.getInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", observability.Handler(s.gatherer))
	}

	r.Route("/graphs", func(r chi.Router) {
		r.Get("/", s.listGraphs)
		r.Post("/", s.createGraph)
		r.Route("/{uid}", func(r chi.Router) {
			r.Get("/", s.getGraph)
			r.Put("/", s.putGraph)
			r.Delete("/", s.deleteGraph)
			r.Post("/run", s.runGraph)
			r.Post("/clear", s.clearGraph)
			r.Get("/cost", s.costGraph)
			r.Get("/mermaid", s.mermaidGraph)
			r.Post("/nodes", s.addNode)
			r.Delete("/nodes/{node}", s.removeNode)
			r.Get("/nodes/{node}/options", s.getNodeOptions)
			r.Put("/nodes/{node}/options", s.putNodeOptions)
			r.Post("/connectors", s.connect)
			r.Delete("/connectors/{connector}", s.removeConnector)
		})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getJob)
			r.Get("/logs", s.getJobLogs)
			r.Get("/output", s.getJobOutput)
			r.Post("/input", s.sendInput)
			r.Post("/stop", s.stopJob)
			r.Get("/events", s.subscribeEvents)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>promptflow API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "promptflow-http",
		"version":     strings.TrimSpace(promptflow.Version),
		"api_version": apiVersion(),
	})
}

// apiVersion reads info.version from the embedded OpenAPI document.
func apiVersion() string {
	doc, err := openapi3.NewLoader().LoadFromData(openapiSpec)
	if err != nil || doc.Info == nil {
		return "unknown"
	}
	return doc.Info.Version
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
}
