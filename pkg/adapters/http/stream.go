package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/promptflow/internal/logging"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/go-chi/chi/v5"
)

// StreamEvent is one SSE message.
type StreamEvent struct {
	Type domain.EventType
	Data []byte
	// Final closes the stream after delivery.
	Final bool
}

// StreamManager fans job events out to SSE subscribers and tracks the
// progress of jobs running in this process.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan StreamEvent]struct{} // job id -> channels
	progress    map[string]*graph.Overlay
	logger      *slog.Logger
}

// NewStreamManager creates an empty manager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan StreamEvent]struct{}),
		progress:    make(map[string]*graph.Overlay),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a buffered channel for jobID. The returned func
// unregisters and closes it.
func (sm *StreamManager) Subscribe(jobID string) (<-chan StreamEvent, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan StreamEvent, 16)
	if _, ok := sm.subscribers[jobID]; !ok {
		sm.subscribers[jobID] = make(map[chan StreamEvent]struct{})
	}
	sm.subscribers[jobID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[jobID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, jobID)
			}
		}
	}
}

func (sm *StreamManager) broadcast(jobID string, ev StreamEvent) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for ch := range sm.subscribers[jobID] {
		select {
		case ch <- ev:
		default:
			sm.logger.Warn("SSE client buffer full, dropping event", "job_id", jobID, "type", ev.Type)
		}
	}
}

// Progress returns a copy of the live overlay of jobID, or nil when the
// job is not running here.
func (sm *StreamManager) Progress(jobID string) *graph.Overlay {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	o, ok := sm.progress[jobID]
	if !ok {
		return nil
	}
	return &graph.Overlay{Visited: append([]string(nil), o.Visited...), Current: o.Current}
}

// Hooks publishes node and job events. Install them on the runner.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			sm.mu.Lock()
			o, ok := sm.progress[e.JobID]
			if !ok {
				o = &graph.Overlay{}
				sm.progress[e.JobID] = o
			}
			o.Visited = append(o.Visited, e.NodeUID)
			o.Current = e.NodeUID
			sm.mu.Unlock()
			sm.publish(e.JobID, e.Type, e, false)
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			sm.publish(e.JobID, e.Type, e, false)
		},
		OnJobStatus: func(_ context.Context, e *domain.JobEvent) {
			final := e.Status.Terminal()
			if final {
				sm.mu.Lock()
				delete(sm.progress, e.JobID)
				sm.mu.Unlock()
			}
			sm.publish(e.JobID, e.Type, e, final)
		},
	}
}

func (sm *StreamManager) publish(jobID string, t domain.EventType, v any, final bool) {
	if jobID == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		sm.logger.Error("failed to encode event", "job_id", jobID, "err", err)
		return
	}
	sm.broadcast(jobID, StreamEvent{Type: t, Data: data, Final: final})
}

// subscribeEvents streams the events of one job until it ends or the
// client goes away.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ch, cancel := s.streams.Subscribe(jobID)
	defer cancel()

	job, err := s.jobs.Status(r.Context(), jobID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")

	if job.Status.Terminal() {
		data, _ := json.Marshal(domain.JobEvent{
			EventBase: domain.EventBase{Timestamp: job.UpdatedAt, Type: domain.EventJobStatus, JobID: jobID},
			Status:    job.Status,
		})
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", domain.EventJobStatus, data)
		flusher.Flush()
		return
	}
	flusher.Flush()
	s.logger.Info("SSE client subscribed", "job_id", jobID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "job_id", jobID)
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Data)
			flusher.Flush()
			if ev.Final {
				return
			}
		}
	}
}
