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
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

type stubSearcher struct {
	results []SerperResult
	calls   int
	lastNum int
}

func (s *stubSearcher) Search(_ context.Context, _ string, num int) ([]SerperResult, error) {
	s.calls++
	s.lastNum = num
	return s.results, nil
}

func testFinder(t *testing.T, searcher webSearcher) *Finder {
	t.Helper()
	classifier, err := NewClassifier()
	if err != nil {
		t.Fatalf("classifier: %v", err)
	}
	return &Finder{
		searcher:   searcher,
		classifier: classifier,
		cache:      newQueryCache(DefaultCacheTTL),
	}
}

func TestBuildQuery(t *testing.T) {
	cases := []struct {
		proficiency string
		want        string
	}{
		{"beginner", "system design tutorial for beginners free"},
		{"advanced", "advanced system design course free"},
		{"intermediate", "system design tutorial course free"},
	}
	for _, tc := range cases {
		if got := buildQuery("system design", tc.proficiency); got != tc.want {
			t.Errorf("buildQuery(%q) = %q, want %q", tc.proficiency, got, tc.want)
		}
	}
}

func TestFindResourcesOverFetchesAndTruncates(t *testing.T) {
	stub := &stubSearcher{results: []SerperResult{
		{Title: "Intro to system design", Link: "https://example.org/a", Snippet: "system design basics", Position: 1},
		{Title: "System design primer", Link: "https://github.com/x/primer", Snippet: "free primer", Position: 2},
		{Title: "More design", Link: "https://example.org/b", Snippet: "design", Position: 3},
	}}
	finder := testFinder(t, stub)

	out, err := finder.FindResources(context.Background(), "system design", "intermediate", 2)
	if err != nil {
		t.Fatal(err)
	}
	if stub.lastNum != 8 {
		t.Errorf("expected over-fetch of 8 for limit 2, got %d", stub.lastNum)
	}
	if len(out) != 2 {
		t.Errorf("expected 2 results after truncation, got %d", len(out))
	}
}

func TestFindResourcesOverFetchCap(t *testing.T) {
	stub := &stubSearcher{}
	finder := testFinder(t, stub)

	if _, err := finder.FindResources(context.Background(), "golang", "intermediate", 20); err != nil {
		t.Fatal(err)
	}
	if stub.lastNum != maxFetchResults {
		t.Errorf("expected fetch capped at %d, got %d", maxFetchResults, stub.lastNum)
	}
}

func TestFindResourcesCacheHit(t *testing.T) {
	stub := &stubSearcher{results: []SerperResult{
		{Title: "Go tutorial", Link: "https://go.dev/tour", Snippet: "learn go", Position: 1},
	}}
	finder := testFinder(t, stub)

	ctx := context.Background()
	if _, err := finder.FindResources(ctx, "golang", "beginner", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := finder.FindResources(ctx, "golang", "beginner", 1); err != nil {
		t.Fatal(err)
	}
	if stub.calls != 1 {
		t.Errorf("expected one provider call with cache hit, got %d", stub.calls)
	}
}

func TestCacheExpiry(t *testing.T) {
	cache := newQueryCache(time.Hour)
	base := time.Now()
	cache.now = func() time.Time { return base }

	cache.set("q", []datatypes.Resource{{Title: "t", URL: "u"}})
	if _, ok := cache.get("q"); !ok {
		t.Fatal("expected fresh entry")
	}

	cache.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	if _, ok := cache.get("q"); ok {
		t.Error("expected entry to expire after TTL")
	}
}

func TestFilterRejectsPaidContent(t *testing.T) {
	stub := &stubSearcher{results: []SerperResult{
		{Title: "Buy System Design Interview Vol 1", Link: "https://amazon.com/dp/123", Position: 1},
		{Title: "System Design Kindle Edition", Link: "https://example.org/k", Position: 2},
		{Title: "Free system design course", Link: "https://freecodecamp.org/sd", Snippet: "course", Position: 3},
	}}
	finder := testFinder(t, stub)

	out, err := finder.FindResources(context.Background(), "system design", "intermediate", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("expected only the free result to survive, got %d", len(out))
	}
	if !strings.Contains(out[0].URL, "freecodecamp") {
		t.Errorf("wrong survivor: %q", out[0].URL)
	}
}

func TestClassifierPriorities(t *testing.T) {
	classifier, err := NewClassifier()
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		url, title string
		want       string
	}{
		{"https://youtube.com/watch?v=1", "Anything", "video"},
		{"https://docs.python.org/3/", "Python docs", "documentation"},
		{"https://coursera.org/learn/x", "Some course", "course"},
		{"https://leetcode.com/problems", "Practice", "interactive"},
		{"https://example.org/post", "A step by step guide", "tutorial"},
		{"https://stackoverflow.com/q/1", "How do I", "community"},
		{"https://random.example/x", "Notes on things", "article"},
	}
	for _, tc := range cases {
		if got := classifier.Classify(tc.url, tc.title, ""); got != tc.want {
			t.Errorf("Classify(%q, %q) = %q, want %q", tc.url, tc.title, got, tc.want)
		}
	}
}

func TestRelevanceScoreOrdering(t *testing.T) {
	strong := relevanceScore("system design", "System design for beginners", "system design guide",
		"https://freecodecamp.org/sd", 1)
	weak := relevanceScore("system design", "Cooking pasta", "recipes", "https://random.example/p", 9)
	if strong <= weak {
		t.Errorf("expected strong match to outscore weak: %f vs %f", strong, weak)
	}
	if strong > 1 {
		t.Errorf("score must not exceed 1, got %f", strong)
	}
}

func TestResultsSortedByScore(t *testing.T) {
	stub := &stubSearcher{results: []SerperResult{
		{Title: "Unrelated page", Link: "https://random.example/a", Snippet: "nothing", Position: 1},
		{Title: "Go concurrency patterns", Link: "https://go.dev/blog/patterns", Snippet: "go concurrency", Position: 5},
	}}
	finder := testFinder(t, stub)

	out, err := finder.FindResources(context.Background(), "go concurrency", "intermediate", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out))
	}
	if out[0].RelevanceScore < out[1].RelevanceScore {
		t.Error("results not sorted by descending relevance")
	}
	if !strings.Contains(out[0].URL, "go.dev") {
		t.Errorf("expected topical result first, got %q", out[0].URL)
	}
}
