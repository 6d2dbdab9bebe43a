package memory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/circuitbreaker"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	wrapper := circuitbreaker.NewRedisWrapper(client, "memory-test", zap.NewNop())
	return NewStore(wrapper, zap.NewNop()), mr
}

func TestStoreSaveAndRetrieve(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok := store.Save(ctx, TypeInfrastructure, "alice", map[string]interface{}{
		"fact": "payments namespace runs on the prod-eu cluster",
	}, "s1")
	require.True(t, ok)

	records := store.Retrieve(ctx, TypeInfrastructure, "alice", "prod-eu cluster", 5, "s1")
	require.Len(t, records, 1)
	assert.Equal(t, "/sre/infra/alice/s1", records[0].Namespace)
	assert.Equal(t, "payments namespace runs on the prod-eu cluster", records[0].Payload["fact"])
}

func TestStoreSaveRequiresSessionForInfrastructure(t *testing.T) {
	store, _ := newTestStore(t)

	ok := store.Save(context.Background(), TypeInfrastructure, "alice", map[string]interface{}{"fact": "x"}, "")
	assert.False(t, ok)
}

func TestStorePreferencesIgnoreSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.True(t, store.Save(ctx, TypePreferences, "alice", map[string]interface{}{"style": "concise"}, "ignored-session"))

	// Retrieval sees the record no matter which session is supplied.
	for _, session := range []string{"", "s1", "s2"} {
		records := store.Retrieve(ctx, TypePreferences, "alice", "style", 5, session)
		require.Len(t, records, 1, "session %q", session)
		assert.Equal(t, "/sre/users/alice/preferences", records[0].Namespace)
	}
}

func TestStoreCrossSessionRetrieveSpansSessions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.True(t, store.Save(ctx, TypeInfrastructure, "alice", map[string]interface{}{"fact": "cluster one"}, "s1"))
	require.True(t, store.Save(ctx, TypeInfrastructure, "alice", map[string]interface{}{"fact": "cluster two"}, "s2"))

	// Session-scoped retrieve only sees its own session.
	assert.Len(t, store.Retrieve(ctx, TypeInfrastructure, "alice", "cluster", 10, "s1"), 1)

	// Cross-session retrieve sees both.
	assert.Len(t, store.Retrieve(ctx, TypeInfrastructure, "alice", "cluster", 10, ""), 2)
}

func TestStoreRetrieveRespectsMaxResults(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, store.Save(ctx, TypeInvestigations, "alice", map[string]interface{}{"summary": "disk pressure incident"}, "s1"))
	}

	records := store.Retrieve(ctx, TypeInvestigations, "alice", "disk pressure", 3, "s1")
	assert.Len(t, records, 3)
}

func TestStoreRetrieveRanksByRelevance(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.True(t, store.Save(ctx, TypeInfrastructure, "alice", map[string]interface{}{"fact": "the api gateway fronts checkout"}, "s1"))
	require.True(t, store.Save(ctx, TypeInfrastructure, "alice", map[string]interface{}{"fact": "postgres replica lag alerts on db-2"}, "s1"))

	records := store.Retrieve(ctx, TypeInfrastructure, "alice", "postgres replica lag", 2, "s1")
	require.Len(t, records, 2)
	assert.Contains(t, records[0].Payload["fact"], "postgres")
}

func TestStoreDegradesToEmptyOnOutage(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.True(t, store.Save(ctx, TypeInfrastructure, "alice", map[string]interface{}{"fact": "x"}, "s1"))

	mr.Close()

	// Failures surface as "no information", never as errors or panics.
	assert.Empty(t, store.Retrieve(ctx, TypeInfrastructure, "alice", "x", 5, "s1"))
	assert.False(t, store.Save(ctx, TypeInfrastructure, "alice", map[string]interface{}{"fact": "y"}, "s1"))
}

func TestStoreNilReceiverIsSafe(t *testing.T) {
	var store *Store
	assert.Empty(t, store.Retrieve(context.Background(), TypePreferences, "alice", "q", 5, ""))
	assert.False(t, store.Save(context.Background(), TypePreferences, "alice", nil, ""))
}

func TestStoreRetentionCapsNamespace(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	wrapper := circuitbreaker.NewRedisWrapper(client, "memory-retention-test", zap.NewNop())
	store := NewStore(wrapper, zap.NewNop(), WithMaxRecords(3))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.True(t, store.Save(ctx, TypeInfrastructure, "alice", map[string]interface{}{"n": i}, "s1"))
	}

	records := store.Retrieve(ctx, TypeInfrastructure, "alice", "", 100, "s1")
	assert.Len(t, records, 3)
}
