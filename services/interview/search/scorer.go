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

import "strings"

// Scoring weights. Title relevance dominates; position is a weak tiebreak
// because search engines already rank by relevance.
const (
	weightTitleMatch    = 0.40
	weightSnippetMatch  = 0.20
	weightDomainQuality = 0.25
	weightPosition      = 0.15
)

// qualityDomains are sources that consistently host solid free educational
// content. Membership grants the full domain-quality weight.
var qualityDomains = []string{
	"freecodecamp.org",
	"ocw.mit.edu",
	"khanacademy.org",
	"coursera.org",
	"edx.org",
	"developer.mozilla.org",
	"youtube.com",
	"go.dev",
	"kubernetes.io",
	"digitalocean.com",
	"stackoverflow.com",
	"github.com",
}

// relevanceScore grades a result 0.0-1.0 against the search topic.
func relevanceScore(topic, title, snippet, url string, position int) float64 {
	score := 0.0
	lowTopic := strings.ToLower(topic)
	words := strings.Fields(lowTopic)

	score += weightTitleMatch * overlapFraction(words, strings.ToLower(title))
	score += weightSnippetMatch * overlapFraction(words, strings.ToLower(snippet))

	lowURL := strings.ToLower(url)
	for _, d := range qualityDomains {
		if strings.Contains(lowURL, d) {
			score += weightDomainQuality
			break
		}
	}

	// Linear decay over the first ten positions.
	if position < 1 {
		position = 1
	}
	if position <= 10 {
		score += weightPosition * float64(11-position) / 10
	}

	if score > 1 {
		score = 1
	}
	return score
}

// overlapFraction is the fraction of topic words present in the text.
func overlapFraction(words []string, text string) float64 {
	if len(words) == 0 {
		return 0
	}
	hits := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
