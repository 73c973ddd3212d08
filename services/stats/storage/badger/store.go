// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger persists the engine's only cross-call state: completed
// experiment records and calibrated engagement weights.
//
// BadgerDB gives local embedded storage with ~100µs access, which is
// plenty for per-project history windows. The engine itself never touches
// this package; callers load history before an analysis and save records
// after one, so an in-flight analysis always reads an immutable view.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/vibevariant/services/stats/history"
	"github.com/AleutianAI/vibevariant/services/stats/proxy"
	"github.com/AleutianAI/vibevariant/services/stats/telemetry"
)

// Key layout: records under "record/<project>/<uuid>", weights under
// "weights/<project>".
const (
	recordPrefix  = "record/"
	weightsPrefix = "weights/"
)

// ErrNotFound is returned when no value exists for a key.
var ErrNotFound = errors.New("not found")

// Config holds configuration for the experiment store.
type Config struct {
	// Path is the directory for database files. Required unless
	// InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for
	// testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives store and BadgerDB events. Nil disables logging.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// 0 disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC
	// rewrites a value log file.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes and
// five-minute GC.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: in-memory, no sync,
// no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store persists experiment records and calibrated weights.
//
// Thread Safety: Safe for concurrent use; BadgerDB transactions provide
// isolation and the single-writer update pattern keeps histories
// consistent.
type Store struct {
	db     *badgerdb.DB
	log    *slog.Logger
	stopGC chan struct{}
	doneGC chan struct{}
}

// Open creates and opens a Store with the given configuration.
//
// Inputs:
//   - cfg: Store configuration. Path is required unless InMemory.
//
// Outputs:
//   - *Store: The opened store. Caller must Close when done.
//   - error: Non-nil if the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badgerdb.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
		opts = opts.WithLogger(nil)
	} else {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open experiment store: %w", err)
	}

	s := &Store{db: db, log: logger}
	if cfg.GCInterval > 0 {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// OpenInMemory opens a throwaway in-memory store for tests.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing
			// to collect; that is the steady state, not a failure.
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				s.log.Warn("value log GC failed", "error", err)
			}
		}
	}
}

// =============================================================================
// Experiment records
// =============================================================================

// SaveRecord persists a completed-experiment record, assigning an ID when
// the record has none.
//
// Outputs:
//   - string: The record ID.
//   - error: Non-nil on serialization or write failure.
func (s *Store) SaveRecord(projectKey string, rec history.ExperimentRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.ProjectKey = projectKey

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal experiment record: %w", err)
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(recordKey(projectKey, rec.ID), data)
	})
	telemetry.ObserveStoreOp("save_record", err)
	if err != nil {
		return "", fmt.Errorf("save experiment record %s: %w", rec.ID, err)
	}

	s.log.Debug("saved experiment record",
		"project", projectKey,
		"experiment", rec.ExperimentKey,
		"record_id", rec.ID,
	)
	return rec.ID, nil
}

// LoadHistory reads all of a project's records into a ProjectHistory,
// oldest completion first, ready to hand to the engine.
func (s *Store) LoadHistory(projectKey string) (*history.ProjectHistory, error) {
	var records []history.ExperimentRecord

	err := s.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(recordPrefix + projectKey + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec history.ExperimentRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("decode record %s: %w", it.Item().Key(), err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	telemetry.ObserveStoreOp("load_history", err)
	if err != nil {
		return nil, err
	}

	// Keys are UUIDs, so iteration order is arbitrary; history order is
	// completion order.
	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.Before(records[j].CompletedAt)
	})
	return history.FromRecords(records), nil
}

// DeleteProject removes all records and weights for a project.
func (s *Store) DeleteProject(projectKey string) error {
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.IteratorOptions{PrefetchValues: false})
		defer it.Close()

		var keys [][]byte
		prefix := []byte(recordPrefix + projectKey + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		keys = append(keys, weightsKey(projectKey))

		for _, key := range keys {
			if err := txn.Delete(key); err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	telemetry.ObserveStoreOp("delete_project", err)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", projectKey, err)
	}
	return nil
}

// =============================================================================
// Calibrated weights
// =============================================================================

// SaveWeights persists a project's calibrated engagement weights.
func (s *Store) SaveWeights(projectKey string, w proxy.Weights) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(weightsKey(projectKey), data)
	})
	telemetry.ObserveStoreOp("save_weights", err)
	if err != nil {
		return fmt.Errorf("save weights for %s: %w", projectKey, err)
	}
	return nil
}

// LoadWeights reads a project's calibrated weights. ErrNotFound when the
// project has never been calibrated.
func (s *Store) LoadWeights(projectKey string) (proxy.Weights, error) {
	var w proxy.Weights
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(weightsKey(projectKey))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &w)
		})
	})
	telemetry.ObserveStoreOp("load_weights", err)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return proxy.Weights{}, ErrNotFound
		}
		return proxy.Weights{}, fmt.Errorf("load weights for %s: %w", projectKey, err)
	}
	return w, nil
}

func recordKey(projectKey, id string) []byte {
	var b strings.Builder
	b.WriteString(recordPrefix)
	b.WriteString(projectKey)
	b.WriteString("/")
	b.WriteString(id)
	return []byte(b.String())
}

func weightsKey(projectKey string) []byte {
	return []byte(weightsPrefix + projectKey)
}
