package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/promptflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// resolveScript returns the id of a node type, allocating the next one
// from a counter the first time the name is seen.
var resolveScript = backend.NewScript(`
local id = redis.call("HGET", KEYS[1], ARGV[1])
if id then
	return tonumber(id)
end
id = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1], ARGV[1], id)
return id
`)

// GraphStore implements ports.GraphStore using Redis. Documents are JSON
// strings indexed by a sorted set with equal scores, so listing is
// ordered by uid.
type GraphStore struct {
	client *backend.Client
	opts   options
}

// NewGraphStore creates a graph store on an existing client.
func NewGraphStore(client *backend.Client, opts ...Option) *GraphStore {
	return &GraphStore{client: client, opts: newOptions(opts)}
}

func (s *GraphStore) key(uid string) string { return s.opts.prefix + "graphdoc:" + uid }
func (s *GraphStore) indexKey() string      { return s.opts.prefix + "graphdocs" }

// Load returns the stored document.
func (s *GraphStore) Load(ctx context.Context, uid string) (*domain.GraphDocument, error) {
	val, err := s.client.Get(ctx, s.key(uid)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrGraphNotFound, uid)
		}
		return nil, fmt.Errorf("failed to get graph from redis: %w", err)
	}
	var doc domain.GraphDocument
	if err := json.Unmarshal(val, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	return &doc, nil
}

// Save writes the document and its index entry in one transaction.
func (s *GraphStore) Save(ctx context.Context, doc *domain.GraphDocument) error {
	if doc == nil || doc.UID == "" {
		return &domain.ValidationError{Field: "uid", Reason: "must not be empty"}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(doc.UID), data, 0)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: 0, Member: doc.UID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save graph to redis: %w", err)
	}
	return nil
}

// Delete removes the document.
func (s *GraphStore) Delete(ctx context.Context, uid string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(uid))
	pipe.ZRem(ctx, s.indexKey(), uid)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns a summary per stored graph.
func (s *GraphStore) List(ctx context.Context) ([]domain.GraphSummary, error) {
	uids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	out := make([]domain.GraphSummary, 0, len(uids))
	for _, uid := range uids {
		doc, err := s.Load(ctx, uid)
		if errors.Is(err, domain.ErrGraphNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, domain.GraphSummary{UID: doc.UID, Label: doc.Label})
	}
	return out, nil
}

// ResolveNodeTypeID allocates ids atomically across replicas.
func (s *GraphStore) ResolveNodeTypeID(ctx context.Context, typeName string) (int, error) {
	if typeName == "" {
		return 0, &domain.ValidationError{Field: "node_type", Reason: "must not be empty"}
	}
	keys := []string{s.opts.prefix + "node_types", s.opts.prefix + "node_types:seq"}
	id, err := resolveScript.Run(ctx, s.client, keys, typeName).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve node type %s: %w", typeName, err)
	}
	return id, nil
}
