package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbar/backend/internal/repository"
	"flowbar/backend/internal/testutil"
)

func newRepo(t *testing.T) *repository.KVRepository {
	t.Helper()
	return repository.NewKVRepository(testutil.OpenDB(t))
}

func TestSetGetRemove(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Set(ctx, repository.PartitionSync, map[string]interface{}{
		"timerState": "focus",
		"endTime":    nil,
		"timeLeft":   1500,
	}))

	values, err := repo.Get(ctx, repository.PartitionSync, "timerState", "endTime", "timeLeft", "missing")
	require.NoError(t, err)
	assert.JSONEq(t, `"focus"`, string(values["timerState"]))
	assert.JSONEq(t, `null`, string(values["endTime"]))
	assert.JSONEq(t, `1500`, string(values["timeLeft"]))
	_, ok := values["missing"]
	assert.False(t, ok)

	// Partitions are isolated.
	local, err := repo.Get(ctx, repository.PartitionLocal, "timerState")
	require.NoError(t, err)
	assert.Empty(t, local)

	require.NoError(t, repo.Remove(ctx, repository.PartitionSync, "timerState", "missing"))
	var state string
	err = repo.GetJSON(ctx, repository.PartitionSync, "timerState", &state)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestSetRejectsOversizedSyncItem(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	big := strings.Repeat("a", repository.SyncQuotaBytesPerItem)
	err := repo.Set(ctx, repository.PartitionSync, map[string]interface{}{"distractionSites": big})
	assert.True(t, errors.Is(err, repository.ErrQuotaExceeded))

	require.NoError(t, repo.Set(ctx, repository.PartitionLocal, map[string]interface{}{"timeData": big}))
}

func TestSubscribeReceivesOnlyRealChanges(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	changes, unsubscribe := repo.Subscribe(8)
	defer unsubscribe()

	require.NoError(t, repo.Set(ctx, repository.PartitionSync, map[string]interface{}{"theme": "dark"}))
	require.NoError(t, repo.Set(ctx, repository.PartitionSync, map[string]interface{}{"theme": "dark"}))
	require.NoError(t, repo.Remove(ctx, repository.PartitionSync, "theme"))

	first := <-changes
	assert.Equal(t, repository.PartitionSync, first.Partition)
	assert.Equal(t, "theme", first.Key)
	assert.Nil(t, first.OldValue)
	assert.JSONEq(t, `"dark"`, string(first.NewValue))

	second := <-changes
	assert.Equal(t, "theme", second.Key)
	assert.JSONEq(t, `"dark"`, string(second.OldValue))
	assert.Nil(t, second.NewValue)

	select {
	case extra := <-changes:
		t.Fatalf("unexpected change %+v", extra)
	default:
	}
}

func TestListByPrefix(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.Set(ctx, repository.PartitionLocal, map[string]interface{}{
		"tempAccess_example.com": 100,
		"tempAccess_news.com":    200,
		"tempAccessX":            300,
		"timeData":               map[string]int{},
	}))

	entries, err := repo.List(ctx, repository.PartitionLocal, "tempAccess_")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "tempAccess_example.com", entries[0].Key)
	assert.Equal(t, "tempAccess_news.com", entries[1].Key)

	var expiry int64
	require.NoError(t, json.Unmarshal(entries[1].Value, &expiry))
	assert.Equal(t, int64(200), expiry)
	assert.False(t, entries[0].UpdatedAt.IsZero())
}
