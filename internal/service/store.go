package service

import (
	"context"
	"encoding/json"

	"flowbar/backend/internal/repository"
)

// Store is the partitioned key-value store the services persist through.
type Store interface {
	Get(ctx context.Context, partition repository.Partition, keys ...string) (map[string]json.RawMessage, error)
	GetJSON(ctx context.Context, partition repository.Partition, key string, dest interface{}) error
	Set(ctx context.Context, partition repository.Partition, values map[string]interface{}) error
	Remove(ctx context.Context, partition repository.Partition, keys ...string) error
	List(ctx context.Context, partition repository.Partition, prefix string) ([]repository.Entry, error)
}

var _ Store = (*repository.KVRepository)(nil)

// decodeInto overlays the stored keys onto dest, which should already hold
// defaults. Keys missing from values keep their default.
func decodeInto(values map[string]json.RawMessage, dest interface{}) error {
	if len(values) == 0 {
		return nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
