// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package secrets

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carabiner-dev/burnlink/secrets"
)

// Ensure the driver implements the backend interface
var _ secrets.Backend = &RedisBackend{}

//go:embed set.lua
var setLuaScript string

//go:embed take.lua
var takeLuaScript string

// DefaultKeyPrefix is prepended to every key the redis backend writes.
const DefaultKeyPrefix = "burnlink:v1:"

// RedisBackend stores records in redis. Each record is a JSON string with a
// native expiry. A sorted set scored by expiration time indexes the live ids
// so they can be counted and listed without scanning the keyspace.
//
// This is the only backend that gives consistent behavior when several server
// instances run at the same time.
type RedisBackend struct {
	client     redis.UniversalClient
	keyPrefix  string
	timeout    time.Duration
	clock      secrets.Clock
	setScript  *redis.Script
	takeScript *redis.Script
	closeOnce  sync.Once
}

// NewRedisBackend creates a backend on top of an existing client (a plain
// redis.Client or a cluster client). Every operation is bounded by timeout.
func NewRedisBackend(client redis.UniversalClient, keyPrefix string, timeout time.Duration) *RedisBackend {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisBackend{
		client:     client,
		keyPrefix:  keyPrefix,
		timeout:    timeout,
		clock:      secrets.SystemClock{},
		setScript:  redis.NewScript(setLuaScript),
		takeScript: redis.NewScript(takeLuaScript),
	}
}

// NewRedisBackendFromURL parses a redis:// URL and connects a new client.
func NewRedisBackendFromURL(url, keyPrefix string, timeout time.Duration) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout

	return NewRedisBackend(redis.NewClient(opts), keyPrefix, timeout), nil
}

// WithClock sets a custom clock (for testing)
func (r *RedisBackend) WithClock(clock secrets.Clock) *RedisBackend {
	r.clock = clock
	return r
}

// Ping checks the connection to the redis server.
func (r *RedisBackend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) recordKey(id string) string {
	return r.keyPrefix + "secret:" + id
}

func (r *RedisBackend) indexKey() string {
	return r.keyPrefix + "index"
}

// Get reads and decodes the record stored under id.
func (r *RedisBackend) Get(ctx context.Context, id string) (*secrets.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading record: %w", err)
	}

	return decodeRecord(data)
}

// Set writes the record with a native expiry of ttl, only if the id is free.
func (r *RedisBackend) Set(ctx context.Context, id string, record *secrets.Record, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("invalid ttl %s", ttl)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.setScript.Run(ctx, r.client,
		[]string{r.recordKey(id), r.indexKey()},
		data,                         // ARGV[1]: record json
		ttl.Milliseconds(),           // ARGV[2]: ttl in ms
		record.ExpiresAt.UnixMilli(), // ARGV[3]: index score
		id,                           // ARGV[4]: index member
	).Int64()
	if err != nil {
		return fmt.Errorf("storing record: %w", err)
	}
	if res == 0 {
		return secrets.ErrExists
	}
	return nil
}

// Delete removes the record and its index entry.
func (r *RedisBackend) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.recordKey(id))
		pipe.ZRem(ctx, r.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}

// Take reads and deletes the record in a single script execution, redis runs
// scripts atomically so only one caller can get the value back.
func (r *RedisBackend) Take(ctx context.Context, id string) (*secrets.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.takeScript.Run(ctx, r.client,
		[]string{r.recordKey(id), r.indexKey()}, id,
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("taking record: %w", err)
	}

	return decodeRecord([]byte(data))
}

// ListActiveIDs prunes index entries of records redis already evicted and
// returns the remaining ids.
func (r *RedisBackend) ListActiveIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var members *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, r.indexKey(), "-inf", r.nowScore())
		members = pipe.ZRange(ctx, r.indexKey(), 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return members.Val(), nil
}

// Count prunes stale index entries and returns the number of live records.
func (r *RedisBackend) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, r.indexKey(), "-inf", r.nowScore())
		card = pipe.ZCard(ctx, r.indexKey())
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return int(card.Val()), nil
}

// Close closes the redis connection
// Safe to call multiple times
func (r *RedisBackend) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.client.Close()
	})
	return err
}

// nowScore returns the inclusive upper bound for stale index entries.
func (r *RedisBackend) nowScore() string {
	return strconv.FormatInt(r.clock.Now().UnixMilli(), 10)
}

func decodeRecord(data []byte) (*secrets.Record, error) {
	var record secrets.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &record, nil
}
