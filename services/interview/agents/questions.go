// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	_ "embed"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

// questionPackData is the default question pack baked into the binary so the
// service has no runtime file dependency. Operators can override it with
// QUESTION_PACK_PATH.
//
//go:embed packs/questions.yaml
var questionPackData []byte

// QuestionPack holds the opening question, per-style templates, and the
// general backfill questions used when job-specific generation comes up short.
type QuestionPack struct {
	OpeningQuestion  string                                           `yaml:"opening_question"`
	StyleTemplates   map[datatypes.InterviewStyle]map[string][]string `yaml:"style_templates"`
	GeneralQuestions []string                                         `yaml:"general_questions"`
}

// defaultRoleKey is the template bucket used when a style has no entry for
// the session's exact role.
const defaultRoleKey = "default"

// PackStore serves the active question pack and hot-reloads it when an
// override file changes on disk. Reads are frequent (every new session);
// writes only happen on reload.
type PackStore struct {
	mu   sync.RWMutex
	pack *QuestionPack

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// LoadEmbeddedPack parses the compiled-in pack. A broken embedded pack is a
// build defect, so the error is surfaced rather than defaulted.
func LoadEmbeddedPack() (*QuestionPack, error) {
	var pack QuestionPack
	if err := yaml.Unmarshal(questionPackData, &pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

// NewPackStore loads the embedded pack, then applies the QUESTION_PACK_PATH
// override if set, watching the file for changes.
func NewPackStore() (*PackStore, error) {
	pack, err := LoadEmbeddedPack()
	if err != nil {
		return nil, err
	}
	store := &PackStore{pack: pack, done: make(chan struct{})}

	path := os.Getenv("QUESTION_PACK_PATH")
	if path == "" {
		return store, nil
	}

	if err := store.loadFile(path); err != nil {
		slog.Warn("Failed to load question pack override, using embedded pack",
			"path", path, "error", err)
		return store, nil
	}
	slog.Info("Loaded question pack override", "path", path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("Question pack watcher unavailable, hot reload disabled", "error", err)
		return store, nil
	}
	if err := watcher.Add(path); err != nil {
		slog.Warn("Failed to watch question pack file, hot reload disabled",
			"path", path, "error", err)
		watcher.Close()
		return store, nil
	}
	store.watcher = watcher
	go store.watch(path)
	return store, nil
}

func (s *PackStore) watch(path string) {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := s.loadFile(path); err != nil {
					slog.Warn("Question pack reload failed, keeping previous pack",
						"path", path, "error", err)
					continue
				}
				slog.Info("Question pack reloaded", "path", path)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Question pack watcher error", "error", err)
		case <-s.done:
			return
		}
	}
}

func (s *PackStore) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var pack QuestionPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return err
	}
	if pack.OpeningQuestion == "" || len(pack.GeneralQuestions) == 0 {
		pack.OpeningQuestion = s.Pack().OpeningQuestion
		if len(pack.GeneralQuestions) == 0 {
			pack.GeneralQuestions = s.Pack().GeneralQuestions
		}
	}
	s.mu.Lock()
	s.pack = &pack
	s.mu.Unlock()
	return nil
}

// Pack returns the active pack. Callers must not mutate it.
func (s *PackStore) Pack() *QuestionPack {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pack
}

// Close stops the reload watcher.
func (s *PackStore) Close() {
	close(s.done)
	if s.watcher != nil {
		s.watcher.Close()
	}
}

// TemplatesFor returns the style templates for the given style and role,
// substituting {role} and {company} placeholders. Unknown roles fall back to
// the style's default bucket, then to "Software Engineer" as the richest set.
func (p *QuestionPack) TemplatesFor(style datatypes.InterviewStyle, role, company string) []string {
	byRole, ok := p.StyleTemplates[style]
	if !ok {
		byRole = p.StyleTemplates[datatypes.StyleFormal]
	}
	templates := byRole[role]
	if len(templates) == 0 {
		templates = byRole[defaultRoleKey]
	}
	if len(templates) == 0 {
		templates = byRole["Software Engineer"]
	}
	if company == "" {
		company = "the company"
	}
	out := make([]string, 0, len(templates))
	replacer := strings.NewReplacer("{role}", role, "{company}", company)
	for _, t := range templates {
		out = append(out, replacer.Replace(t))
	}
	return out
}

// BuildQuestionBank assembles the session's ordered question bank:
// opening question, then job-specific questions (if any), then shuffled
// style templates and general questions as backfill; deduplicated and
// truncated to target.
func (p *QuestionPack) BuildQuestionBank(cfg datatypes.SessionConfig, jobSpecific []string) []string {
	target := cfg.TargetQuestionCount
	if target <= 0 {
		target = datatypes.DefaultTargetQuestionCount
	}

	bank := make([]string, 0, target)
	bank = append(bank, p.OpeningQuestion)
	bank = append(bank, jobSpecific...)

	backfill := p.TemplatesFor(cfg.Style, cfg.JobRole, cfg.CompanyName)
	backfill = append(backfill, p.GeneralQuestions...)
	rand.Shuffle(len(backfill), func(i, j int) {
		backfill[i], backfill[j] = backfill[j], backfill[i]
	})
	bank = append(bank, backfill...)

	seen := make(map[string]struct{}, len(bank))
	deduped := make([]string, 0, target)
	for _, q := range bank {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, q)
		if len(deduped) == target {
			break
		}
	}
	return deduped
}

// FallbackQuestion returns a generic question for guard-rule substitutions
// when the LLM's decision cannot be used as-is.
func (p *QuestionPack) FallbackQuestion(asked int) string {
	if len(p.GeneralQuestions) == 0 {
		return "Could you tell me more about your experience?"
	}
	return p.GeneralQuestions[asked%len(p.GeneralQuestions)]
}
