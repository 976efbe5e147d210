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
	"io"
	"sort"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// Object layout inside the bucket. One JSON object per record.
const (
	gcsSessionPrefix = "sessions/"
	gcsTaskPrefix    = "tasks/"
)

// GCSStore persists records as JSON objects in a Cloud Storage bucket.
// It trades latency for zero-maintenance durability and suits deployments
// that already live on GCP.
type GCSStore struct {
	client *gcstorage.Client
	bucket *gcstorage.BucketHandle
}

// NewGCSStore connects to the bucket using ambient credentials.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: client.Bucket(bucket)}, nil
}

func (g *GCSStore) writeObject(ctx context.Context, name string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	w := g.bucket.Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return w.Close()
}

func (g *GCSStore) readObject(ctx context.Context, name string, v any) error {
	r, err := g.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return json.Unmarshal(raw, v)
}

// CreateSession implements Gateway.
func (g *GCSStore) CreateSession(ctx context.Context, userID string,
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

	if err := g.writeObject(ctx, gcsSessionPrefix+id+".json", rec); err != nil {
		return "", err
	}
	return id, nil
}

// LoadSession implements Gateway.
func (g *GCSStore) LoadSession(ctx context.Context, id string) (*datatypes.SessionRecord, error) {
	var rec datatypes.SessionRecord
	err := g.readObject(ctx, gcsSessionPrefix+id+".json", &rec)
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &rec, nil
}

// SaveSession implements Gateway.
func (g *GCSStore) SaveSession(ctx context.Context, id string, rec *datatypes.SessionRecord) error {
	rec.SessionID = id
	rec.UpdatedAt = time.Now().UTC()
	return g.writeObject(ctx, gcsSessionPrefix+id+".json", rec)
}

// ListUserSessions implements Gateway.
func (g *GCSStore) ListUserSessions(ctx context.Context, userID string,
	limit int) ([]*datatypes.SessionRecord, error) {

	it := g.bucket.Objects(ctx, &gcstorage.Query{Prefix: gcsSessionPrefix})
	var out []*datatypes.SessionRecord
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate sessions: %w", err)
		}
		var rec datatypes.SessionRecord
		if err := g.readObject(ctx, attrs.Name, &rec); err != nil {
			continue // skip unreadable objects
		}
		if rec.UserID == userID {
			out = append(out, &rec)
		}
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
func (g *GCSStore) CreateSpeechTask(ctx context.Context, sessionID string,
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
	if err := g.writeObject(ctx, gcsTaskPrefix+id+".json", rec); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateSpeechTask implements Gateway.
func (g *GCSStore) UpdateSpeechTask(ctx context.Context, taskID string,
	status datatypes.SpeechTaskStatus, progress, result map[string]any, errMsg string) error {

	rec, err := g.GetSpeechTask(ctx, taskID)
	if err != nil {
		return err
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
	return g.writeObject(ctx, gcsTaskPrefix+taskID+".json", rec)
}

// GetSpeechTask implements Gateway.
func (g *GCSStore) GetSpeechTask(ctx context.Context, taskID string) (*datatypes.SpeechTaskRecord, error) {
	var rec datatypes.SpeechTaskRecord
	err := g.readObject(ctx, gcsTaskPrefix+taskID+".json", &rec)
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load speech task %s: %w", taskID, err)
	}
	return &rec, nil
}

// CleanupSpeechTasks implements Gateway.
func (g *GCSStore) CleanupSpeechTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	it := g.bucket.Objects(ctx, &gcstorage.Query{Prefix: gcsTaskPrefix})
	removed := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("iterate speech tasks: %w", err)
		}
		var rec datatypes.SpeechTaskRecord
		if err := g.readObject(ctx, attrs.Name, &rec); err != nil {
			continue
		}
		if rec.Terminal() && rec.UpdatedAt.Before(cutoff) {
			if err := g.bucket.Object(attrs.Name).Delete(ctx); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Close implements Gateway.
func (g *GCSStore) Close() error { return g.client.Close() }
