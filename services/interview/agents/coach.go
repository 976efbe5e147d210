// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// # Description
//
// The Coach agent produces per-turn feedback on candidate answers and the
// final end-of-interview summary with recommended learning resources.
// Every external call is best-effort: evaluation failures return a fixed
// placeholder, summary failures return a default summary, and resource
// search failures fall back to a static catalog. FinalSummary never fails.

package agents

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/AleutianAI/AleutianInterview/services/llm"
)

// EvaluationPlaceholder is returned when per-turn evaluation fails.
const EvaluationPlaceholder = "I couldn't generate feedback for this answer, but keep going - you're doing fine."

// maxResourceTopics bounds how many search topics the summary pursues.
const maxResourceTopics = 3

// maxTotalResources caps the recommended resource list.
const maxTotalResources = 6

// ResourceFinder locates learning resources for a topic. The search package
// provides the production implementation.
type ResourceFinder interface {
	FindResources(ctx context.Context, topic, proficiency string, limit int) ([]datatypes.Resource, error)
}

//go:embed packs/fallback_resources.yaml
var fallbackResourceData []byte

type fallbackCatalog struct {
	Resources []datatypes.Resource `yaml:"resources"`
}

// reasoningTemplates map resource types to the lead-in phrase of the
// per-resource reasoning string.
var reasoningTemplates = map[string]string{
	"video":         "This video walks through %s step by step",
	"course":        "This course builds structured practice in %s",
	"article":       "This article gives a focused read on %s",
	"documentation": "The official documentation is the authoritative reference for %s",
	"tutorial":      "This hands-on tutorial lets you practice %s directly",
}

// Coach observes the interview and produces coaching artifacts.
type Coach struct {
	cfg    datatypes.SessionConfig
	llm    llm.LLMClient
	finder ResourceFinder
}

// NewCoach builds a coach. finder may be nil, in which case the final
// summary skips live search and uses the fallback catalog.
func NewCoach(cfg datatypes.SessionConfig, client llm.LLMClient, finder ResourceFinder) *Coach {
	return &Coach{cfg: cfg, llm: client, finder: finder}
}

// OnConfigUpdate applies a new session config.
func (c *Coach) OnConfigUpdate(cfg datatypes.SessionConfig) { c.cfg = cfg }

// Evaluate produces one block of conversational feedback on an answer. On
// any failure it returns the placeholder sentence, never an error.
func (c *Coach) Evaluate(ctx context.Context, question, answer, justification string,
	history []datatypes.Message) string {

	prompt, err := formatPrompt(coachEvaluatePrompt, map[string]any{
		"question":      question,
		"answer":        answer,
		"justification": orEmpty(justification, "(none)"),
		"history":       formatHistory(tailMessages(history, 10)),
	})
	if err != nil {
		slog.Error("Failed to build coach evaluation prompt", "error", err)
		return EvaluationPlaceholder
	}

	feedback, err := c.llm.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		slog.Warn("Coach evaluation LLM call failed", "error", err)
		return EvaluationPlaceholder
	}
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return EvaluationPlaceholder
	}
	return feedback
}

// summaryPayload is the raw JSON shape the final-summary prompt requests.
type summaryPayload struct {
	PatternsTendencies    string   `json:"patterns_tendencies"`
	Strengths             []string `json:"strengths"`
	Weaknesses            []string `json:"weaknesses"`
	ImprovementFocusAreas []string `json:"improvement_focus_areas"`
	ResourceSearchTopics  []string `json:"resource_search_topics"`
}

// FinalSummary produces the end-of-interview summary with recommended
// resources. Every step degrades to a default; it never returns an error.
func (c *Coach) FinalSummary(ctx context.Context, history []datatypes.Message,
	feedbackLog []datatypes.FeedbackEntry) datatypes.Summary {

	if len(history) == 0 {
		slog.Warn("Final summary requested with empty history")
		return defaultSummary()
	}

	prompt, err := formatPrompt(finalSummaryPrompt, map[string]any{
		"style":        string(c.cfg.Style),
		"role":         c.cfg.JobRole,
		"difficulty":   c.cfg.Difficulty,
		"feedback_log": formatFeedbackLog(feedbackLog),
		"history":      formatHistory(history),
	})
	if err != nil {
		slog.Error("Failed to build final summary prompt", "error", err)
		return defaultSummary()
	}

	raw, err := c.llm.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		slog.Error("Final summary LLM call failed", "error", err)
		return defaultSummary()
	}

	payload, ok := parseSummaryPayload(raw)
	if !ok {
		return defaultSummary()
	}

	summary := datatypes.Summary{
		PatternsTendencies:    payload.PatternsTendencies,
		Strengths:             joinList(payload.Strengths),
		Weaknesses:            joinList(payload.Weaknesses),
		ImprovementFocusAreas: joinList(payload.ImprovementFocusAreas),
	}
	summary.RecommendedResources = c.gatherResources(ctx, payload.ResourceSearchTopics, summary.Weaknesses)
	return summary
}

// parseSummaryPayload defensively parses the summary JSON: raw first, then a
// fenced block, then a bare quoted string wrapping a fenced block.
func parseSummaryPayload(raw string) (summaryPayload, bool) {
	var payload summaryPayload
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		return payload, true
	}

	// The model sometimes returns a JSON string whose value holds the real
	// object inside a fenced block.
	var asString string
	if err := json.Unmarshal([]byte(trimmed), &asString); err == nil {
		trimmed = strings.TrimSpace(asString)
	}
	if extracted, ok := extractFencedJSON(trimmed); ok {
		if err := json.Unmarshal([]byte(extracted), &payload); err == nil {
			return payload, true
		}
	}
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			if err := json.Unmarshal([]byte(trimmed[start:end+1]), &payload); err == nil {
				return payload, true
			}
		}
	}
	slog.Warn("Could not parse final summary response", "raw_prefix", prefix(trimmed, 120))
	return summaryPayload{}, false
}

// gatherResources runs resource search for up to three topics, attaches
// reasoning, and falls back to the static catalog when nothing survives.
func (c *Coach) gatherResources(ctx context.Context, topics []string, weaknesses string) []datatypes.Resource {
	clean := make([]string, 0, maxResourceTopics)
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		clean = append(clean, t)
		if len(clean) == maxResourceTopics {
			break
		}
	}

	var resources []datatypes.Resource
	if c.finder != nil && len(clean) > 0 {
		perTopic := maxTotalResources / len(clean)
		if perTopic < 1 {
			perTopic = 1
		}
		for _, topic := range clean {
			if len(resources) >= maxTotalResources {
				break
			}
			proficiency := proficiencyFor(topic, weaknesses)
			found, err := c.finder.FindResources(ctx, topic, proficiency, perTopic)
			if err != nil {
				slog.Warn("Resource search failed for topic", "topic", topic, "error", err)
				continue
			}
			for _, r := range found {
				if len(resources) >= maxTotalResources {
					break
				}
				r.Reasoning = buildReasoning(r.ResourceType, topic, weaknesses)
				resources = append(resources, r)
			}
		}
	}

	if len(resources) == 0 {
		resources = fallbackResources()
	}
	return resources
}

// proficiencyFor derives a search proficiency hint from the topic and the
// weaknesses text.
func proficiencyFor(topic, weaknesses string) string {
	lowTopic := strings.ToLower(topic)
	lowWeak := strings.ToLower(weaknesses)
	switch {
	case lowWeak != "" && strings.Contains(lowWeak, lowTopic):
		return "beginner"
	case strings.Contains(lowTopic, "advanced"), strings.Contains(lowTopic, "complex"):
		return "advanced"
	case strings.Contains(lowTopic, "basic"), strings.Contains(lowTopic, "fundamental"):
		return "beginner"
	default:
		return "intermediate"
	}
}

// buildReasoning renders the per-resource reasoning string from the type
// template plus a weakness-match phrase.
func buildReasoning(resourceType, topic, weaknesses string) string {
	tmpl, ok := reasoningTemplates[strings.ToLower(resourceType)]
	if !ok {
		tmpl = "This resource covers %s in practical depth"
	}
	reason := fmt.Sprintf(tmpl, topic)
	if weaknesses != "" && strings.Contains(strings.ToLower(weaknesses), strings.ToLower(topic)) {
		reason += ", directly addressing an area flagged in your feedback."
	} else {
		reason += ", rounding out your preparation for this role."
	}
	return reason
}

// fallbackResources loads the embedded static catalog.
func fallbackResources() []datatypes.Resource {
	var catalog fallbackCatalog
	if err := yaml.Unmarshal(fallbackResourceData, &catalog); err != nil {
		slog.Error("Embedded fallback resource catalog is malformed", "error", err)
		return nil
	}
	for i := range catalog.Resources {
		catalog.Resources[i].Reasoning = "A broadly useful starting point while tailored recommendations are unavailable."
	}
	return catalog.Resources
}

// defaultSummary is the placeholder returned when summary generation fails
// upstream of resource search.
func defaultSummary() datatypes.Summary {
	return datatypes.Summary{
		PatternsTendencies:    "We were unable to analyze response patterns for this session.",
		Strengths:             "Completed the interview session.",
		Weaknesses:            "Analysis unavailable.",
		ImprovementFocusAreas: "Try another practice session to receive a full analysis.",
		RecommendedResources:  []datatypes.Resource{},
	}
}

func formatFeedbackLog(entries []datatypes.FeedbackEntry) string {
	if len(entries) == 0 {
		return "(no per-question feedback recorded)"
	}
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. Q: %s\n   A: %s\n   Coach: %s\n", i+1, e.Question, e.Answer, e.Feedback)
	}
	return strings.TrimRight(b.String(), "\n")
}

// tailMessages returns the last n messages of history.
func tailMessages(history []datatypes.Message, n int) []datatypes.Message {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func joinList(items []string) string {
	clean := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			clean = append(clean, s)
		}
	}
	return strings.Join(clean, "; ")
}
