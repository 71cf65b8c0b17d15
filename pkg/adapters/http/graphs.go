package http

import (
	"io"
	"net/http"

	"github.com/aretw0/promptflow/pkg/adapters/file"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/go-chi/chi/v5"
)

type createGraphRequest struct {
	Name string `json:"name"`
}

type addNodeRequest struct {
	Type    string         `json:"type"`
	Label   string         `json:"label"`
	Options map[string]any `json:"options"`
}

type connectRequest struct {
	Prev      string           `json:"prev"`
	Next      string           `json:"next"`
	Condition *graph.Condition `json:"condition,omitempty"`
}

type runRequest struct {
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) listGraphs(w http.ResponseWriter, r *http.Request) {
	graphs, err := s.editor.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, graphs)
}

func (s *Server) createGraph(w http.ResponseWriter, r *http.Request) {
	var body createGraphRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, badRequest(err.Error()))
		return
	}
	if body.Name == "" {
		s.writeError(w, r, badRequest("name is required"))
		return
	}
	g, err := s.editor.Create(r.Context(), body.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, g.Document())
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.editor.Load(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g.Document())
}

// putGraph imports a JSON or YAML document under the uid of the path.
func (s *Server) putGraph(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := file.DecodeDocument(data)
	if err != nil {
		s.writeError(w, r, badRequest(err.Error()))
		return
	}
	doc.UID = chi.URLParam(r, "uid")
	g, err := s.editor.Import(r.Context(), doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g.Document())
}

func (s *Server) deleteGraph(w http.ResponseWriter, r *http.Request) {
	if err := s.editor.Delete(r.Context(), chi.URLParam(r, "uid")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) runGraph(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			s.writeError(w, r, badRequest(err.Error()))
			return
		}
	}
	jobID, err := s.jobs.Submit(r.Context(), chi.URLParam(r, "uid"), body.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) clearGraph(w http.ResponseWriter, r *http.Request) {
	if err := s.editor.Clear(r.Context(), chi.URLParam(r, "uid")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) costGraph(w http.ResponseWriter, r *http.Request) {
	cost, err := s.editor.Cost(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cost":      cost,
		"formatted": graph.FormattedCost(cost),
	})
}

// mermaidGraph renders the graph, highlighting the progress of job_id when
// given: live progress while the job runs here, its final snapshot
// otherwise.
func (s *Server) mermaidGraph(w http.ResponseWriter, r *http.Request) {
	g, err := s.editor.Load(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var overlay *graph.Overlay
	if jobID := r.URL.Query().Get("job_id"); jobID != "" {
		overlay = s.streams.Progress(jobID)
		if overlay == nil {
			if st, err := s.jobs.Output(r.Context(), jobID); err == nil {
				overlay = &graph.Overlay{}
				for label := range st.Snapshot {
					if n, ok := g.NodeByLabel(label); ok {
						overlay.Visited = append(overlay.Visited, n.UID)
					}
				}
			}
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(g.Mermaid(overlay)))
}

func (s *Server) addNode(w http.ResponseWriter, r *http.Request) {
	var body addNodeRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, badRequest(err.Error()))
		return
	}
	uid, err := s.editor.AddNode(r.Context(), chi.URLParam(r, "uid"), body.Type, body.Label, body.Options)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"uid": uid})
}

func (s *Server) removeNode(w http.ResponseWriter, r *http.Request) {
	if err := s.editor.RemoveNode(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "node")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getNodeOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.editor.NodeOptions(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "node"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) putNodeOptions(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, badRequest(err.Error()))
		return
	}
	opts, err := s.editor.SetNodeOptions(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "node"), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var body connectRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeError(w, r, badRequest(err.Error()))
		return
	}
	cond := graph.DefaultCondition
	if body.Condition != nil {
		cond = *body.Condition
	}
	uid, err := s.editor.Connect(r.Context(), chi.URLParam(r, "uid"), body.Prev, body.Next, cond)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"uid": uid})
}

func (s *Server) removeConnector(w http.ResponseWriter, r *http.Request) {
	if err := s.editor.RemoveConnector(r.Context(), chi.URLParam(r, "uid"), chi.URLParam(r, "connector")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
