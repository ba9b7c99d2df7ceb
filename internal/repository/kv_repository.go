package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type Partition string

const (
	// PartitionSync holds settings and timer state. Items are small.
	PartitionSync Partition = "sync"
	// PartitionLocal holds history and grants.
	PartitionLocal Partition = "local"
)

// SyncQuotaBytesPerItem caps the encoded size of a single sync item.
const SyncQuotaBytesPerItem = 8192

// Entry is a stored key with its encoded value.
type Entry struct {
	Key       string
	Value     json.RawMessage
	UpdatedAt time.Time
}

// StorageChange describes one key mutation. NewValue is nil on removal and
// OldValue is nil on creation.
type StorageChange struct {
	Partition Partition       `json:"partition"`
	Key       string          `json:"key"`
	OldValue  json.RawMessage `json:"oldValue,omitempty"`
	NewValue  json.RawMessage `json:"newValue,omitempty"`
}

// KVRepository is a partitioned whole-key get/set store. It offers no
// compare-and-swap; callers serialise their own read-modify-write cycles.
type KVRepository struct {
	db *sql.DB

	mu          sync.Mutex
	subscribers map[int]chan StorageChange
	nextSubID   int
}

func NewKVRepository(db *sql.DB) *KVRepository {
	return &KVRepository{
		db:          db,
		subscribers: make(map[int]chan StorageChange),
	}
}

// Get returns the encoded values of the requested keys. Missing keys are
// absent from the result.
func (r *KVRepository) Get(ctx context.Context, partition Partition, keys ...string) (map[string]json.RawMessage, error) {
	result := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]interface{}, 0, len(keys)+1)
	args = append(args, string(partition))
	for _, key := range keys {
		args = append(args, key)
	}

	rows, err := r.db.QueryContext(
		ctx,
		`SELECT key, value FROM kv_entries WHERE partition = ? AND key IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("get %s keys: %w", partition, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", partition, err)
		}
		result[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s entries: %w", partition, err)
	}
	return result, nil
}

// GetJSON decodes a single key into dest. It returns ErrNotFound when the
// key is absent.
func (r *KVRepository) GetJSON(ctx context.Context, partition Partition, key string, dest interface{}) error {
	values, err := r.Get(ctx, partition, key)
	if err != nil {
		return err
	}
	raw, ok := values[key]
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s/%s: %w", partition, key, err)
	}
	return nil
}

// Set writes all values in one transaction and then notifies subscribers of
// the keys whose encoding actually changed.
func (r *KVRepository) Set(ctx context.Context, partition Partition, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}

	keys := make([]string, 0, len(values))
	encoded := make(map[string][]byte, len(values))
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", partition, key, err)
		}
		if partition == PartitionSync && len(key)+len(raw) > SyncQuotaBytesPerItem {
			return fmt.Errorf("set %s/%s (%d bytes): %w", partition, key, len(raw), ErrQuotaExceeded)
		}
		keys = append(keys, key)
		encoded[key] = raw
	}
	sort.Strings(keys)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	changes := make([]StorageChange, 0, len(keys))
	for _, key := range keys {
		old, err := readValueTx(ctx, tx, partition, key)
		if err != nil {
			return err
		}
		if old != nil && bytes.Equal(old, encoded[key]) {
			continue
		}

		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO kv_entries (partition, key, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT (partition, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			string(partition),
			key,
			string(encoded[key]),
			now,
		); err != nil {
			return fmt.Errorf("set %s/%s: %w", partition, key, err)
		}
		changes = append(changes, StorageChange{
			Partition: partition,
			Key:       key,
			OldValue:  old,
			NewValue:  json.RawMessage(encoded[key]),
		})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	r.publish(changes)
	return nil
}

// Remove deletes keys. Removing an absent key is not an error.
func (r *KVRepository) Remove(ctx context.Context, partition Partition, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	changes := make([]StorageChange, 0, len(keys))
	for _, key := range keys {
		old, err := readValueTx(ctx, tx, partition, key)
		if err != nil {
			return err
		}
		if old == nil {
			continue
		}
		if _, err := tx.ExecContext(
			ctx,
			`DELETE FROM kv_entries WHERE partition = ? AND key = ?`,
			string(partition),
			key,
		); err != nil {
			return fmt.Errorf("remove %s/%s: %w", partition, key, err)
		}
		changes = append(changes, StorageChange{Partition: partition, Key: key, OldValue: old})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	r.publish(changes)
	return nil
}

// List returns every entry whose key starts with prefix, ordered by key.
func (r *KVRepository) List(ctx context.Context, partition Partition, prefix string) ([]Entry, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT key, value, updated_at FROM kv_entries
		 WHERE partition = ? AND substr(key, 1, ?) = ?
		 ORDER BY key ASC`,
		string(partition),
		len(prefix),
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s*: %w", partition, prefix, err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		var value, updatedAt string
		if err := rows.Scan(&entry.Key, &value, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", partition, err)
		}
		parsed, err := parseTime(updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse %s/%s updated_at: %w", partition, entry.Key, err)
		}
		entry.Value = json.RawMessage(value)
		entry.UpdatedAt = parsed
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s entries: %w", partition, err)
	}
	return entries, nil
}

// Subscribe registers a change listener. Changes are dropped for a listener
// whose buffer is full. The returned func unsubscribes and closes the channel.
func (r *KVRepository) Subscribe(buffer int) (<-chan StorageChange, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan StorageChange, buffer)

	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subscribers, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

func (r *KVRepository) publish(changes []StorageChange) {
	if len(changes) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, change := range changes {
		for _, ch := range r.subscribers {
			select {
			case ch <- change:
			default:
			}
		}
	}
}

func readValueTx(ctx context.Context, tx *sql.Tx, partition Partition, key string) (json.RawMessage, error) {
	var value string
	err := tx.QueryRowContext(
		ctx,
		`SELECT value FROM kv_entries WHERE partition = ? AND key = ?`,
		string(partition),
		key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", partition, key, err)
	}
	return json.RawMessage(value), nil
}
