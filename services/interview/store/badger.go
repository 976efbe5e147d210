// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key layout for the embedded store. Session records and speech tasks live
// under distinct prefixes so the task sweep can iterate without touching
// session data.
const (
	badgerSessionPrefix = "session/"
	badgerTaskPrefix    = "task/"
)

// BadgerStore persists records in an embedded Badger database. It is the
// single-node durable backend for deployments without external storage.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) the database at path.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logger is too chatty for service logs
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db at %s: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) setJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

func (b *BadgerStore) getJSON(key string, v any) error {
	return b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// CreateSession implements Gateway.
func (b *BadgerStore) CreateSession(_ context.Context, userID string,
	cfg *datatypes.SessionConfig) (string, error) {

	id := uuid.New().String()
	now := time.Now().UTC()
	rec := &datatypes.SessionRecord{
		SessionID: id,
		UserID:    userID,
		Status:    datatypes.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cfg != nil {
		rec.Config = *cfg
	}
	rec.Config.Normalize()

	if err := b.setJSON(badgerSessionPrefix+id, rec); err != nil {
		return "", err
	}
	return id, nil
}

// LoadSession implements Gateway.
func (b *BadgerStore) LoadSession(_ context.Context, id string) (*datatypes.SessionRecord, error) {
	var rec datatypes.SessionRecord
	err := b.getJSON(badgerSessionPrefix+id, &rec)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &rec, nil
}

// SaveSession implements Gateway.
func (b *BadgerStore) SaveSession(_ context.Context, id string, rec *datatypes.SessionRecord) error {
	rec.SessionID = id
	rec.UpdatedAt = time.Now().UTC()
	return b.setJSON(badgerSessionPrefix+id, rec)
}

// ListUserSessions implements Gateway.
func (b *BadgerStore) ListUserSessions(_ context.Context, userID string,
	limit int) ([]*datatypes.SessionRecord, error) {

	var out []*datatypes.SessionRecord
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerSessionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec datatypes.SessionRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return nil // skip corrupt records
				}
				if rec.UserID == userID {
					out = append(out, &rec)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", userID, err)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CreateSpeechTask implements Gateway.
func (b *BadgerStore) CreateSpeechTask(_ context.Context, sessionID string,
	taskType datatypes.SpeechTaskType) (string, error) {

	if sessionID == "" {
		sessionID = datatypes.AnonymousSessionID
	}
	id := uuid.New().String()
	now := time.Now().UTC()
	rec := &datatypes.SpeechTaskRecord{
		TaskID:    id,
		SessionID: sessionID,
		TaskType:  taskType,
		Status:    datatypes.SpeechTaskProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.setJSON(badgerTaskPrefix+id, rec); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateSpeechTask implements Gateway.
func (b *BadgerStore) UpdateSpeechTask(_ context.Context, taskID string,
	status datatypes.SpeechTaskStatus, progress, result map[string]any, errMsg string) error {

	var rec datatypes.SpeechTaskRecord
	err := b.getJSON(badgerTaskPrefix+taskID, &rec)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("load speech task %s: %w", taskID, err)
	}

	rec.Status = status
	if progress != nil {
		rec.Progress = progress
	}
	if result != nil {
		rec.Result = result
	}
	if errMsg != "" {
		rec.ErrorMessage = errMsg
	}
	rec.UpdatedAt = time.Now().UTC()
	return b.setJSON(badgerTaskPrefix+taskID, &rec)
}

// GetSpeechTask implements Gateway.
func (b *BadgerStore) GetSpeechTask(_ context.Context, taskID string) (*datatypes.SpeechTaskRecord, error) {
	var rec datatypes.SpeechTaskRecord
	err := b.getJSON(badgerTaskPrefix+taskID, &rec)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load speech task %s: %w", taskID, err)
	}
	return &rec, nil
}

// CleanupSpeechTasks implements Gateway.
func (b *BadgerStore) CleanupSpeechTasks(_ context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	var stale [][]byte
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(badgerTaskPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			err := it.Item().Value(func(val []byte) error {
				var rec datatypes.SpeechTaskRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					stale = append(stale, key) // corrupt records are swept too
					return nil
				}
				if rec.Terminal() && rec.UpdatedAt.Before(cutoff) {
					stale = append(stale, key)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan speech tasks: %w", err)
	}

	removed := 0
	for _, key := range stale {
		err := b.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err == nil {
			removed++
		}
	}
	return removed, nil
}

// Close implements Gateway.
func (b *BadgerStore) Close() error { return b.db.Close() }
