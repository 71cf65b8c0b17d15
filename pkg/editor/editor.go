package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/promptflow/internal/logging"
	"github.com/aretw0/promptflow/pkg/domain"
	"github.com/aretw0/promptflow/pkg/graph"
	"github.com/aretw0/promptflow/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed editor can hold a graph.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Editor serializes edits to stored graphs.
type Editor struct {
	graphs  ports.GraphStore
	factory graph.Factory

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Editor.
type Option func(*Editor)

// WithLocker enables distributed locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Editor) {
		e.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Editor) {
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Editor.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Editor) {
		e.logger = logger
	}
}

// New creates an editor over graphs, building behaviors with factory.
func New(graphs ports.GraphStore, factory graph.Factory, opts ...Option) *Editor {
	e := &Editor{
		graphs:  graphs,
		factory: factory,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// acquire gets or creates a lock entry and increments its reference count.
func (e *Editor) acquire(uid string) *lockEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.locks[uid]
	if !ok {
		entry = &lockEntry{}
		e.locks[uid] = entry
	}
	entry.refs++
	return entry
}

// release drops the entry once nobody references it.
func (e *Editor) release(uid string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.locks[uid]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(e.locks, uid)
	}
}

// WithLock runs fn while holding the lock for the graph.
func (e *Editor) WithLock(ctx context.Context, uid string, fn func(context.Context) error) error {
	entry := e.acquire(uid)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		e.release(uid)
	}()

	if e.locker != nil {
		unlock, err := e.locker.Lock(ctx, "graph:"+uid, e.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				e.logger.Warn("failed to release distributed lock, it will expire",
					"graph_uid", uid,
					"err", err,
				)
			}
		}()
	}
	return fn(ctx)
}

// Load rebuilds the stored graph without locking.
func (e *Editor) Load(ctx context.Context, uid string) (*graph.Graph, error) {
	doc, err := e.graphs.Load(ctx, uid)
	if err != nil {
		return nil, err
	}
	return graph.FromDocument(doc, e.factory, graph.WithLogger(e.logger))
}

// Edit loads the graph under lock, applies fn and saves the result when fn
// changed it. An error from fn discards the change.
func (e *Editor) Edit(ctx context.Context, uid string, fn func(g *graph.Graph) error) error {
	return e.WithLock(ctx, uid, func(ctx context.Context) error {
		g, err := e.Load(ctx, uid)
		if err != nil {
			return err
		}
		if err := fn(g); err != nil {
			return err
		}
		if !g.IsDirty() {
			return nil
		}
		if err := e.save(ctx, g); err != nil {
			return err
		}
		e.logger.Debug("graph saved", "graph_uid", uid)
		return nil
	})
}

// save registers the node types in use and writes the document.
func (e *Editor) save(ctx context.Context, g *graph.Graph) error {
	doc := g.Document()
	for _, n := range doc.Nodes {
		if _, err := e.graphs.ResolveNodeTypeID(ctx, n.Type()); err != nil {
			return err
		}
	}
	if err := e.graphs.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to save graph %s: %w", g.UID, err)
	}
	g.MarkClean()
	return nil
}

// Create stores a new graph holding a single Start node.
func (e *Editor) Create(ctx context.Context, name string) (*graph.Graph, error) {
	g := graph.New(name, graph.WithFactory(e.factory), graph.WithLogger(e.logger))
	b, err := e.factory.New(graph.TypeStart, nil)
	if err != nil {
		return nil, err
	}
	if _, err := g.AddNode("Start", b); err != nil {
		return nil, err
	}
	err = e.WithLock(ctx, g.UID, func(ctx context.Context) error {
		return e.save(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Import validates doc by building it and stores it, replacing any graph
// with the same uid.
func (e *Editor) Import(ctx context.Context, doc *domain.GraphDocument) (*graph.Graph, error) {
	g, err := graph.FromDocument(doc, e.factory, graph.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	if g.UID == "" {
		return nil, &domain.ValidationError{Field: "uid", Reason: "must not be empty"}
	}
	err = e.WithLock(ctx, g.UID, func(ctx context.Context) error {
		return e.save(ctx, g)
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// List returns the stored graphs.
func (e *Editor) List(ctx context.Context) ([]domain.GraphSummary, error) {
	return e.graphs.List(ctx)
}

// Delete removes the stored graph.
func (e *Editor) Delete(ctx context.Context, uid string) error {
	return e.WithLock(ctx, uid, func(ctx context.Context) error {
		return e.graphs.Delete(ctx, uid)
	})
}
