package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/diligence-engine/internal/model"
)

func TestMemorySaveGetRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()

	node := resourceNode(t, "application_migration")
	v, err := s.SaveNode(ctx, node, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	got, err := s.GetNode(ctx, node.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, node.ID, got.ID)
	assert.InDelta(t, 10.0, got.TotalEffortPM(), 1e-9)

	// Stored copy is detached from the caller's node.
	node.Resource.Confidence = 0.1
	again, err := s.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, again.Resource.Confidence, 1e-9)
}

func TestMemoryVersionConflict(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()

	node := resourceNode(t, "data_migration")
	_, err := s.SaveNode(ctx, node, 0)
	require.NoError(t, err)

	stale, err := s.GetNode(ctx, node.ID)
	require.NoError(t, err)

	node.Resource.Confidence = 0.7
	_, err = s.SaveNode(ctx, node, 1)
	require.NoError(t, err)

	stale.Resource.Confidence = 0.2
	_, err = s.SaveNode(ctx, stale, 1)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.Equal(t, 1, stale.Version)
}

// Many goroutines race to update the same node from the same loaded version.
// Exactly one succeeds per round; the store version counts successful writes.
func TestMemoryConcurrentWriters(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()

	node := resourceNode(t, "identity_separation")
	_, err := s.SaveNode(ctx, node, 0)
	require.NoError(t, err)

	const writers = 16
	var wg sync.WaitGroup
	results := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := s.GetNode(ctx, node.ID)
			if err != nil {
				results[i] = err
				return
			}
			_, results[i] = s.SaveNode(ctx, n, 1)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, IsConflict(err))
	}
	assert.Equal(t, 1, wins)

	got, err := s.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestMemoryListFilters(t *testing.T) {
	t.Parallel()
	s := NewMemory()
	ctx := context.Background()

	root := resourceNode(t, "application_migration")
	other := resourceNode(t, "erp_consolidation")
	child := resourceNode(t, "application_migration")
	child.ParentID = root.ID
	child.Level = 2

	for _, n := range []*model.EstimateNode{root, other, child} {
		_, err := s.SaveNode(ctx, n, 0)
		require.NoError(t, err)
	}

	roots, err := s.ListNodes(ctx, NodeFilter{RootsOnly: true})
	require.NoError(t, err)
	assert.Len(t, roots, 2)

	kids, err := s.ListNodes(ctx, NodeFilter{ParentID: root.ID})
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, child.ID, kids[0].ID)

	byKind, err := s.ListNodes(ctx, NodeFilter{Kind: model.KindResource})
	require.NoError(t, err)
	assert.Len(t, byKind, 3)

	none, err := s.ListNodes(ctx, NodeFilter{Workstream: "service_desk_transition"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryUpdateUnknownNode(t *testing.T) {
	t.Parallel()
	s := NewMemory()

	node := resourceNode(t, "application_migration")
	_, err := s.SaveNode(context.Background(), node, 2)
	require.Error(t, err)
	assert.False(t, IsConflict(err))
}
