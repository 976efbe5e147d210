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
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// Weaviate class names for the interview service.
const (
	classInterviewSession = "InterviewSession"
	classSpeechTask       = "SpeechTask"
)

// WeaviateStore persists records as Weaviate objects. The full record is kept
// as a JSON blob in the "record" property; the filterable properties exist
// only to serve listing and sweep queries.
type WeaviateStore struct {
	client *weaviate.Client
}

// NewWeaviateStore connects to the Weaviate instance at rawURL and ensures
// the interview classes exist.
func NewWeaviateStore(rawURL string) (*WeaviateStore, error) {
	rawURL = strings.Trim(rawURL, "\"' ")
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid WEAVIATE_SERVICE_URL %q", rawURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	s := &WeaviateStore{client: client}
	s.ensureSchema()
	return s, nil
}

func interviewSessionSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       classInterviewSession,
		Description: "One interview session: config, history, feedback, and summary.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:         "record",
				DataType:     []string{"text"},
				Description:  "The full session record as JSON.",
				Tokenization: "field",
			},
			{
				Name:            "user_id",
				DataType:        []string{"text"},
				Description:     "Owner user id; empty for anonymous sessions.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "status",
				DataType:        []string{"text"},
				Description:     "Session lifecycle status.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "created_at",
				DataType:    []string{"date"},
				Description: "Creation timestamp.",
			},
		},
	}
}

func speechTaskSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       classSpeechTask,
		Description: "One asynchronous speech task record.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:         "record",
				DataType:     []string{"text"},
				Description:  "The full task record as JSON.",
				Tokenization: "field",
			},
			{
				Name:            "status",
				DataType:        []string{"text"},
				Description:     "Task lifecycle status.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:        "updated_at",
				DataType:    []string{"date"},
				Description: "Last update timestamp, used by the task sweep.",
			},
		},
	}
}

func (s *WeaviateStore) ensureSchema() {
	for _, class := range []*models.Class{interviewSessionSchema(), speechTaskSchema()} {
		exists, err := s.client.Schema().ClassExistenceChecker().
			WithClassName(class.Class).Do(context.Background())
		if err != nil {
			slog.Error("failed to check Weaviate class", "class", class.Class, "error", err)
			continue
		}
		if exists {
			continue
		}
		if err := s.client.Schema().ClassCreator().WithClass(class).Do(context.Background()); err != nil {
			slog.Error("failed to create Weaviate class", "class", class.Class, "error", err)
		} else {
			slog.Info("created Weaviate class", "class", class.Class)
		}
	}
}

func (s *WeaviateStore) putSession(ctx context.Context, rec *datatypes.SessionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", rec.SessionID, err)
	}
	props := map[string]any{
		"record":     string(raw),
		"user_id":    rec.UserID,
		"status":     string(rec.Status),
		"created_at": rec.CreatedAt.Format(time.RFC3339),
	}

	// Whole-record replace: delete any existing object first, then create
	// with a deterministic id so writes stay idempotent.
	_ = s.client.Data().Deleter().
		WithClassName(classInterviewSession).
		WithID(rec.SessionID).
		Do(ctx)

	_, err = s.client.Data().Creator().
		WithClassName(classInterviewSession).
		WithID(rec.SessionID).
		WithProperties(props).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("write session %s: %w", rec.SessionID, err)
	}
	return nil
}

// CreateSession implements Gateway.
func (s *WeaviateStore) CreateSession(ctx context.Context, userID string,
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

	if err := s.putSession(ctx, rec); err != nil {
		return "", err
	}
	return id, nil
}

// LoadSession implements Gateway.
func (s *WeaviateStore) LoadSession(ctx context.Context, id string) (*datatypes.SessionRecord, error) {
	objects, err := s.client.Data().ObjectsGetter().
		WithClassName(classInterviewSession).
		WithID(id).
		Do(ctx)
	if err != nil {
		// The client surfaces 404 as an error; treat all lookup failures on a
		// well-formed id as not-found so callers can recover.
		return nil, ErrSessionNotFound
	}
	if len(objects) == 0 {
		return nil, ErrSessionNotFound
	}

	props, ok := objects[0].Properties.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("session %s has malformed properties", id)
	}
	raw, _ := props["record"].(string)
	var rec datatypes.SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &rec, nil
}

// SaveSession implements Gateway.
func (s *WeaviateStore) SaveSession(ctx context.Context, id string, rec *datatypes.SessionRecord) error {
	rec.SessionID = id
	rec.UpdatedAt = time.Now().UTC()
	return s.putSession(ctx, rec)
}

// ListUserSessions implements Gateway.
func (s *WeaviateStore) ListUserSessions(ctx context.Context, userID string,
	limit int) ([]*datatypes.SessionRecord, error) {

	where := filters.Where().
		WithPath([]string{"user_id"}).
		WithOperator(filters.Equal).
		WithValueString(userID)

	result, err := s.client.GraphQL().Get().
		WithClassName(classInterviewSession).
		WithFields(graphql.Field{Name: "record"}).
		WithWhere(where).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", userID, err)
	}

	var out []*datatypes.SessionRecord
	if get, ok := result.Data["Get"].(map[string]any); ok {
		if rows, ok := get[classInterviewSession].([]any); ok {
			for _, row := range rows {
				props, ok := row.(map[string]any)
				if !ok {
					continue
				}
				raw, _ := props["record"].(string)
				var rec datatypes.SessionRecord
				if err := json.Unmarshal([]byte(raw), &rec); err != nil {
					continue
				}
				out = append(out, &rec)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *WeaviateStore) putTask(ctx context.Context, rec *datatypes.SpeechTaskRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal speech task %s: %w", rec.TaskID, err)
	}
	props := map[string]any{
		"record":     string(raw),
		"status":     string(rec.Status),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339),
	}

	_ = s.client.Data().Deleter().
		WithClassName(classSpeechTask).
		WithID(rec.TaskID).
		Do(ctx)

	_, err = s.client.Data().Creator().
		WithClassName(classSpeechTask).
		WithID(rec.TaskID).
		WithProperties(props).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("write speech task %s: %w", rec.TaskID, err)
	}
	return nil
}

// CreateSpeechTask implements Gateway.
func (s *WeaviateStore) CreateSpeechTask(ctx context.Context, sessionID string,
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
	if err := s.putTask(ctx, rec); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateSpeechTask implements Gateway.
func (s *WeaviateStore) UpdateSpeechTask(ctx context.Context, taskID string,
	status datatypes.SpeechTaskStatus, progress, result map[string]any, errMsg string) error {

	rec, err := s.GetSpeechTask(ctx, taskID)
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
	return s.putTask(ctx, rec)
}

// GetSpeechTask implements Gateway.
func (s *WeaviateStore) GetSpeechTask(ctx context.Context, taskID string) (*datatypes.SpeechTaskRecord, error) {
	objects, err := s.client.Data().ObjectsGetter().
		WithClassName(classSpeechTask).
		WithID(taskID).
		Do(ctx)
	if err != nil || len(objects) == 0 {
		return nil, ErrTaskNotFound
	}

	props, ok := objects[0].Properties.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("speech task %s has malformed properties", taskID)
	}
	raw, _ := props["record"].(string)
	var rec datatypes.SpeechTaskRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode speech task %s: %w", taskID, err)
	}
	return &rec, nil
}

// CleanupSpeechTasks implements Gateway.
func (s *WeaviateStore) CleanupSpeechTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := strfmt.DateTime(time.Now().UTC().Add(-olderThan))

	where := filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"updated_at"}).
			WithOperator(filters.LessThan).
			WithValueDate(time.Time(cutoff)),
		filters.Where().WithOperator(filters.Or).WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"status"}).
				WithOperator(filters.Equal).
				WithValueString(string(datatypes.SpeechTaskCompleted)),
			filters.Where().
				WithPath([]string{"status"}).
				WithOperator(filters.Equal).
				WithValueString(string(datatypes.SpeechTaskError)),
		}),
	})

	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(classSpeechTask).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("sweep speech tasks: %w", err)
	}
	if resp != nil && resp.Results != nil {
		return int(resp.Results.Successful), nil
	}
	return 0, nil
}

// Close implements Gateway.
func (s *WeaviateStore) Close() error { return nil }
