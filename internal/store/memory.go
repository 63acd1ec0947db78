package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/diligence-engine/internal/model"
)

// MemoryStore is an in-memory NodeStore for tests and dry runs. It keeps the
// same version-check semantics as the SQL backends.
type MemoryStore struct {
	mu    sync.Mutex
	nodes map[string]memoryRecord
}

type memoryRecord struct {
	payload   []byte
	version   int
	createdAt time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{nodes: make(map[string]memoryRecord)}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) SaveNode(_ context.Context, node *model.EstimateNode, expectedVersion int) (int, error) {
	if node == nil {
		return 0, eris.New("memory: nil node")
	}
	if err := node.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.nodes[node.ID]
	if expectedVersion == 0 {
		if exists {
			return 0, &ConflictError{ID: node.ID, Expected: 0, Current: rec.version}
		}
	} else {
		if !exists {
			return 0, eris.Errorf("memory: node not found: %s", node.ID)
		}
		if rec.version != expectedVersion {
			return 0, &ConflictError{ID: node.ID, Expected: expectedVersion, Current: rec.version}
		}
	}

	newVersion := expectedVersion + 1
	prevVersion := node.Version
	node.Version = newVersion
	node.Touch()

	payload, err := model.EncodeNode(node)
	if err != nil {
		node.Version = prevVersion
		return 0, err
	}

	createdAt := time.Now().UTC()
	if exists {
		createdAt = rec.createdAt
	}
	s.nodes[node.ID] = memoryRecord{payload: payload, version: newVersion, createdAt: createdAt}
	return newVersion, nil
}

func (s *MemoryStore) GetNode(_ context.Context, id string) (*model.EstimateNode, error) {
	s.mu.Lock()
	rec, ok := s.nodes[id]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	node, ok := model.DecodeStored(rec.payload)
	if !ok {
		return nil, nil
	}
	return node, nil
}

func (s *MemoryStore) ListNodes(_ context.Context, filter NodeFilter) ([]*model.EstimateNode, error) {
	s.mu.Lock()
	type entry struct {
		node      *model.EstimateNode
		createdAt time.Time
	}
	var entries []entry
	for _, rec := range s.nodes {
		node, ok := model.DecodeStored(rec.payload)
		if !ok {
			continue
		}
		entries = append(entries, entry{node: node, createdAt: rec.createdAt})
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].createdAt.After(entries[j].createdAt)
	})

	var nodes []*model.EstimateNode
	for _, e := range entries {
		n := e.node
		if filter.Workstream != "" && n.Workstream != filter.Workstream {
			continue
		}
		if filter.Kind != "" && n.Kind != filter.Kind {
			continue
		}
		if filter.ParentID != "" && n.ParentID != filter.ParentID {
			continue
		}
		if filter.RootsOnly && n.ParentID != "" {
			continue
		}
		nodes = append(nodes, n)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(nodes) {
			return nil, nil
		}
		nodes = nodes[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}
