package graph

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/promptflow/internal/logging"
	"github.com/aretw0/promptflow/pkg/domain"
)

// Graph owns a set of nodes and the connectors between them.
type Graph struct {
	UID     string
	Name    string
	Created time.Time

	mu         sync.RWMutex
	nodes      []*Node
	connectors []*Connector
	byUID      map[string]*Node

	running atomic.Bool
	dirty   atomic.Bool

	relaxed bool
	factory Factory
	logger  *slog.Logger
}

// Option configures a Graph.
type Option func(*Graph)

// WithUID sets the graph uid instead of generating one.
func WithUID(uid string) Option {
	return func(g *Graph) {
		if uid != "" {
			g.UID = uid
		}
	}
}

// WithCreated sets the creation timestamp.
func WithCreated(t time.Time) Option {
	return func(g *Graph) {
		if !t.IsZero() {
			g.Created = t
		}
	}
}

// WithFactory sets the behavior factory used by CopyNode.
func WithFactory(f Factory) Option {
	return func(g *Graph) {
		g.factory = f
	}
}

// WithLogger configures a logger for graph mutations and runs.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

// WithRelaxedInvariants allows several Start or Init nodes. It exists for
// loading documents written by older editors; StartNode then picks the
// candidate with the fewest input connectors.
func WithRelaxedInvariants() Option {
	return func(g *Graph) {
		g.relaxed = true
	}
}

// New creates an empty graph.
func New(name string, opts ...Option) *Graph {
	g := &Graph{
		UID:     newUID(),
		Name:    name,
		Created: time.Now().UTC(),
		byUID:   make(map[string]*Node),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode creates a node with a fresh uid and inserts it.
func (g *Graph) AddNode(label string, b Behavior) (*Node, error) {
	n := NewNode("", label, b)
	if err := g.Insert(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Insert adds an existing node to the graph. Adding a second Start or Init
// node fails and leaves the graph unchanged.
func (g *Graph) Insert(n *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.byUID[n.UID]; exists {
		return &domain.ValidationError{Field: "node uid", Reason: fmt.Sprintf("duplicate uid %q", n.UID)}
	}
	if !g.relaxed {
		switch n.Type() {
		case TypeStart:
			if g.countType(TypeStart) > 0 {
				return domain.ErrDuplicateStart
			}
		case TypeInit:
			if g.countType(TypeInit) > 0 {
				return domain.ErrDuplicateInit
			}
		}
	}
	g.nodes = append(g.nodes, n)
	g.byUID[n.UID] = n
	g.dirty.Store(true)
	g.logger.Debug("node added", "node_uid", n.UID, "node_label", n.Label, "node_type", n.Type())
	return nil
}

func (g *Graph) countType(t string) int {
	count := 0
	for _, n := range g.nodes {
		if n.Type() == t {
			count++
		}
	}
	return count
}

// RemoveNode deletes a node and every connector touching it.
func (g *Graph) RemoveNode(uid string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.byUID[uid]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, uid)
	}
	g.connectors = slices.DeleteFunc(g.connectors, func(c *Connector) bool {
		if c.Prev == n || c.Next == n {
			c.Detach()
			return true
		}
		return false
	})
	g.nodes = slices.DeleteFunc(g.nodes, func(x *Node) bool { return x == n })
	delete(g.byUID, uid)
	g.dirty.Store(true)
	g.logger.Debug("node removed", "node_uid", uid, "node_label", n.Label)
	return nil
}

// Connect links two nodes by uid.
func (g *Graph) Connect(prevUID, nextUID string, cond Condition) (*Connector, error) {
	c := NewConnector("", cond)
	if err := g.AddConnector(c, prevUID, nextUID); err != nil {
		return nil, err
	}
	return c, nil
}

// AddConnector attaches c between the nodes identified by prevUID and nextUID.
// Cycles are allowed; see Connector.DetectCycle.
func (g *Graph) AddConnector(c *Connector, prevUID, nextUID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev, ok := g.byUID[prevUID]
	if !ok {
		return fmt.Errorf("connector %s prev: %w: %s", c.UID, domain.ErrNodeNotFound, prevUID)
	}
	next, ok := g.byUID[nextUID]
	if !ok {
		return fmt.Errorf("connector %s next: %w: %s", c.UID, domain.ErrNodeNotFound, nextUID)
	}
	for _, existing := range g.connectors {
		if existing.UID == c.UID {
			return &domain.ValidationError{Field: "connector uid", Reason: fmt.Sprintf("duplicate uid %q", c.UID)}
		}
	}
	c.AttachTo(prev, next)
	g.connectors = append(g.connectors, c)
	g.dirty.Store(true)
	return nil
}

// RemoveConnector detaches and deletes a connector.
func (g *Graph) RemoveConnector(uid string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := slices.IndexFunc(g.connectors, func(c *Connector) bool { return c.UID == uid })
	if idx < 0 {
		return fmt.Errorf("%w: %s", domain.ErrConnectorNotFound, uid)
	}
	g.connectors[idx].Detach()
	g.connectors = slices.Delete(g.connectors, idx, idx+1)
	g.dirty.Store(true)
	return nil
}

// SetCondition replaces the condition of a connector.
func (g *Graph) SetCondition(uid string, cond Condition) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range g.connectors {
		if c.UID == uid {
			c.SetCondition(cond)
			g.dirty.Store(true)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrConnectorNotFound, uid)
}

// Node returns the node with the given uid.
func (g *Graph) Node(uid string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.byUID[uid]
	return n, ok
}

// NodeByLabel returns the first node carrying label.
func (g *Graph) NodeByLabel(label string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.Label == label {
			return n, true
		}
	}
	return nil, false
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.nodes)
}

// Connectors returns the connectors in insertion order.
func (g *Graph) Connectors() []*Connector {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.connectors)
}

// StartNode returns the Start node, or nil when there is none. With several
// Start nodes the one with the fewest input connectors wins; ties go to the
// earliest inserted.
func (g *Graph) StartNode() *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var best *Node
	for _, n := range g.nodes {
		if n.Type() != TypeStart {
			continue
		}
		if best == nil || len(n.inputs) < len(best.inputs) {
			best = n
		}
	}
	return best
}

// InitNode returns the Init node, or nil when there is none.
func (g *Graph) InitNode() *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		if n.Type() == TypeInit {
			return n
		}
	}
	return nil
}

// SetLabel renames a node.
func (g *Graph) SetLabel(uid, label string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.byUID[uid]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, uid)
	}
	n.Label = label
	g.dirty.Store(true)
	return nil
}

// SetNodeOptions updates the options of a node.
func (g *Graph) SetNodeOptions(uid string, opts map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.byUID[uid]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, uid)
	}
	if err := n.SetOptions(opts); err != nil {
		return err
	}
	g.dirty.Store(true)
	return nil
}

// CopyNode inserts a copy of a node with a new uid and the label
// "<label> copy". Connectors are not copied.
func (g *Graph) CopyNode(uid string) (*Node, error) {
	src, ok := g.Node(uid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNodeNotFound, uid)
	}
	if g.factory == nil {
		return nil, fmt.Errorf("copy node %s: graph has no behavior factory", uid)
	}
	b, err := g.factory.New(src.Type(), src.Options())
	if err != nil {
		return nil, fmt.Errorf("copy node %s: %w", uid, err)
	}
	return g.AddNode(src.Label+" copy", b)
}

// Clear removes every node and connector.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.connectors {
		c.Detach()
	}
	g.nodes = nil
	g.connectors = nil
	g.byUID = make(map[string]*Node)
	g.dirty.Store(true)
	g.logger.Debug("graph cleared", "graph_uid", g.UID)
}

// Cost sums the cost estimate of every node, reachable or not.
func (g *Graph) Cost(st *domain.State) (float64, error) {
	if st == nil {
		st = domain.NewState()
	}
	st.Normalize()
	total := 0.0
	for _, n := range g.Nodes() {
		c, err := n.Cost(st)
		if err != nil {
			return 0, err
		}
		total += c
	}
	return total, nil
}

// FormattedCost renders a cost in dollars.
func FormattedCost(cost float64) string {
	return fmt.Sprintf("$%.2f", cost)
}

// IsRunning reports whether a traversal is in progress.
func (g *Graph) IsRunning() bool { return g.running.Load() }

// Stop asks the current traversal to end before its next node.
func (g *Graph) Stop() {
	if g.running.Swap(false) {
		g.logger.Info("graph stop requested", "graph_uid", g.UID)
	}
}

// IsDirty reports whether the graph changed since it was loaded or saved.
func (g *Graph) IsDirty() bool { return g.dirty.Load() }

// MarkClean resets the dirty flag, typically after a save.
func (g *Graph) MarkClean() { g.dirty.Store(false) }

// outputsOf snapshots the outgoing connectors of n. Edits made while a step
// runs are seen by the next step only.
func (g *Graph) outputsOf(n *Node) []*Connector {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(n.outputs)
}
