// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search locates free learning resources for coaching summaries.
// It wraps the Serper web-search API behind a governed, cached, filtered
// pipeline that classifies and scores raw results into typed resources.
package search

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed packs/classifier_rules.yaml
var classifierRulesData []byte

// classifierRule matches results to a resource type by URL domain fragments
// or title/snippet keywords. Higher priority wins.
type classifierRule struct {
	ResourceType string   `yaml:"resource_type"`
	Priority     int      `yaml:"priority"`
	Domains      []string `yaml:"domains"`
	Keywords     []string `yaml:"keywords"`
}

type classifierRules struct {
	DefaultType string           `yaml:"default_type"`
	Rules       []classifierRule `yaml:"rules"`
}

// Classifier assigns a resource type to a search result.
type Classifier struct {
	defaultType string
	rules       []classifierRule
}

// NewClassifier parses the embedded rule set. A malformed embedded rule set
// is a build defect and surfaces as an error.
func NewClassifier() (*Classifier, error) {
	var parsed classifierRules
	if err := yaml.Unmarshal(classifierRulesData, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedded classifier rules: %w", err)
	}
	if parsed.DefaultType == "" {
		parsed.DefaultType = "article"
	}
	// Highest priority first; evaluation stops at the first match.
	sort.SliceStable(parsed.Rules, func(i, j int) bool {
		return parsed.Rules[i].Priority > parsed.Rules[j].Priority
	})
	return &Classifier{defaultType: parsed.DefaultType, rules: parsed.Rules}, nil
}

// Classify returns the resource type for a result.
func (c *Classifier) Classify(url, title, snippet string) string {
	lowURL := strings.ToLower(url)
	lowText := strings.ToLower(title + " " + snippet)
	for _, rule := range c.rules {
		for _, d := range rule.Domains {
			if strings.Contains(lowURL, strings.ToLower(d)) {
				return rule.ResourceType
			}
		}
		for _, k := range rule.Keywords {
			if strings.Contains(lowText, strings.ToLower(k)) {
				return rule.ResourceType
			}
		}
	}
	return c.defaultType
}
