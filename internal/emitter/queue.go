// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package emitter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/tomtom215/velograph/internal/logging"
	"github.com/tomtom215/velograph/internal/metrics"
	"github.com/tomtom215/velograph/internal/models"
)

// ErrQueueClosed is returned for operations on a closed queue.
var ErrQueueClosed = errors.New("durable queue closed")

// Queue is the local durable queue of undelivered events, backed by
// BadgerDB. Writes are synced, so an event is either fully appended or
// not appended at all; the host operation can be interrupted without
// leaving a half-written entry.
//
// The queue is capped: beyond maxEntries the oldest entries are dropped.
// That is a documented lossy-degradation policy for sustained offline
// operation, preferred over unbounded local disk growth.
type Queue struct {
	mu         sync.Mutex
	db         *badger.DB
	nextSeq    uint64
	maxEntries int
	closed     bool
}

// OpenQueue opens (or creates) the durable queue at path.
func OpenQueue(path string, maxEntries int) (*Queue, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open durable queue: %w", err)
	}

	q := &Queue{
		db:         db,
		maxEntries: maxEntries,
	}
	if err := q.recoverSequence(); err != nil {
		_ = db.Close()
		return nil, err
	}

	depth, err := q.Len()
	if err == nil {
		metrics.EmitterQueueDepth.Set(float64(depth))
		if depth > 0 {
			logging.Info().Int("pending", depth).Str("path", path).
				Msg("Durable queue opened with pending events")
		}
	}

	return q, nil
}

// recoverSequence seeds the append sequence from the highest existing
// key so restarts keep strictly increasing, FIFO-ordered keys.
func (q *Queue) recoverSequence() error {
	return q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if it.Valid() {
			key := it.Item().Key()
			if len(key) == 8 {
				q.nextSeq = binary.BigEndian.Uint64(key) + 1
			}
		}
		return nil
	})
}

// Append adds one event to the queue, evicting the oldest entries when
// the cap is reached. The append and any evictions commit in a single
// transaction.
func (q *Queue) Append(event *models.EcosystemEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal queued event: %w", err)
	}

	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, q.nextSeq)

	evicted := 0
	err = q.db.Update(func(txn *badger.Txn) error {
		count, err := countEntries(txn)
		if err != nil {
			return err
		}

		for count >= q.maxEntries {
			oldest, err := oldestKey(txn)
			if err != nil {
				return err
			}
			if oldest == nil {
				break
			}
			if err := txn.Delete(oldest); err != nil {
				return err
			}
			count--
			evicted++
		}

		return txn.Set(key, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to append to durable queue: %w", err)
	}

	q.nextSeq++
	if evicted > 0 {
		metrics.EmitterQueueEvictions.Add(float64(evicted))
		logging.Warn().Int("evicted", evicted).
			Msg("Durable queue at capacity, dropped oldest events")
	}
	q.updateDepthMetric()

	return nil
}

// Snapshot returns every queued event in FIFO order together with the
// keys holding them, so a successful flush can clear exactly what it
// delivered.
func (q *Queue) Snapshot() ([]*models.EcosystemEvent, [][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, nil, ErrQueueClosed
	}

	var (
		events      []*models.EcosystemEvent
		keys        [][]byte
		corruptKeys [][]byte
	)

	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)

			var event models.EcosystemEvent
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				// Corrupt entry: it can never deliver, so it is dropped
				// after the read pass. View transactions cannot delete.
				logging.Warn().Err(err).Msg("Skipping undecodable queue entry")
				corruptKeys = append(corruptKeys, key)
				continue
			}

			events = append(events, &event)
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to snapshot durable queue: %w", err)
	}

	if len(corruptKeys) > 0 {
		err := q.db.Update(func(txn *badger.Txn) error {
			for _, key := range corruptKeys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to drop undecodable queue entries")
		}
		q.updateDepthMetric()
	}

	return events, keys, nil
}

// Remove deletes the given keys, called after the whole flush batch was
// acknowledged by the gateway.
func (q *Queue) Remove(keys [][]byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	err := q.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove delivered entries: %w", err)
	}

	q.updateDepthMetric()
	return nil
}

// Len returns the current number of queued events.
func (q *Queue) Len() (int, error) {
	var count int
	err := q.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = countEntries(txn)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return count, nil
}

// Close closes the underlying store.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	return q.db.Close()
}

func (q *Queue) updateDepthMetric() {
	var count int
	err := q.db.View(func(txn *badger.Txn) error {
		var err error
		count, err = countEntries(txn)
		return err
	})
	if err == nil {
		metrics.EmitterQueueDepth.Set(float64(count))
	}
}

func countEntries(txn *badger.Txn) (int, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	count := 0
	for it.Rewind(); it.Valid(); it.Next() {
		count++
	}
	return count, nil
}

func oldestKey(txn *badger.Txn) ([]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Rewind()
	if !it.Valid() {
		return nil, nil
	}
	return it.Item().KeyCopy(nil), nil
}
