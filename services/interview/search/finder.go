// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/interview/ratelimit"
)

// Over-fetch policy: the free-content filter and dedupe discard a large
// share of raw hits, so fetch four times the requested count, capped.
const (
	overFetchFactor = 4
	maxFetchResults = 40
)

// webSearcher is the provider seam; SerperClient is the production
// implementation.
type webSearcher interface {
	Search(ctx context.Context, query string, num int) ([]SerperResult, error)
}

// Finder turns skill topics into scored, filtered learning resources. It
// satisfies the coach's ResourceFinder contract.
type Finder struct {
	searcher   webSearcher
	governor   *ratelimit.Governor
	classifier *Classifier
	cache      *queryCache
}

// NewFinder wires the production pipeline. governor may be nil, in which
// case searches are ungoverned (tests, CLI tools).
func NewFinder(governor *ratelimit.Governor) (*Finder, error) {
	client, err := NewSerperClient()
	if err != nil {
		return nil, err
	}
	classifier, err := NewClassifier()
	if err != nil {
		return nil, err
	}
	return &Finder{
		searcher:   client,
		governor:   governor,
		classifier: classifier,
		cache:      newQueryCache(DefaultCacheTTL),
	}, nil
}

// buildQuery shapes the search query for a topic and proficiency hint.
func buildQuery(topic, proficiency string) string {
	topic = strings.TrimSpace(topic)
	switch proficiency {
	case "beginner":
		return fmt.Sprintf("%s tutorial for beginners free", topic)
	case "advanced":
		return fmt.Sprintf("advanced %s course free", topic)
	default:
		return fmt.Sprintf("%s tutorial course free", topic)
	}
}

// FindResources returns up to limit free learning resources for the topic,
// best relevance first. Results are cached per query for an hour.
func (f *Finder) FindResources(ctx context.Context, topic, proficiency string, limit int) ([]datatypes.Resource, error) {
	if limit <= 0 {
		limit = 1
	}
	query := buildQuery(topic, proficiency)

	if cached, ok := f.cache.get(query); ok {
		slog.Debug("Resource search served from cache", "query", query)
		if len(cached) > limit {
			cached = cached[:limit]
		}
		return cached, nil
	}

	if f.governor != nil {
		release, err := f.governor.Acquire(ctx, ratelimit.ProviderSearch)
		if err != nil {
			return nil, fmt.Errorf("search capacity unavailable: %w", err)
		}
		defer release()
	}

	fetch := limit * overFetchFactor
	if fetch > maxFetchResults {
		fetch = maxFetchResults
	}
	raw, err := f.searcher.Search(ctx, query, fetch)
	if err != nil {
		return nil, err
	}

	resources := f.assemble(topic, raw)
	f.cache.set(query, resources)

	if len(resources) > limit {
		resources = resources[:limit]
	}
	return resources, nil
}

// assemble filters, classifies, scores, dedupes, and sorts raw hits.
func (f *Finder) assemble(topic string, raw []SerperResult) []datatypes.Resource {
	seen := make(map[string]struct{}, len(raw))
	resources := make([]datatypes.Resource, 0, len(raw))
	for _, hit := range raw {
		if hit.Link == "" || hit.Title == "" {
			continue
		}
		if !isFreeContent(hit.Link, hit.Title) {
			continue
		}
		if _, dup := seen[hit.Link]; dup {
			continue
		}
		seen[hit.Link] = struct{}{}

		resources = append(resources, datatypes.Resource{
			Title:          hit.Title,
			URL:            hit.Link,
			Description:    hit.Snippet,
			ResourceType:   f.classifier.Classify(hit.Link, hit.Title, hit.Snippet),
			RelevanceScore: relevanceScore(topic, hit.Title, hit.Snippet, hit.Link, hit.Position),
		})
	}
	sort.SliceStable(resources, func(i, j int) bool {
		return resources[i].RelevanceScore > resources[j].RelevanceScore
	})
	return resources
}
