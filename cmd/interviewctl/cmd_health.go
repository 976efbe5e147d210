// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/AleutianAI/AleutianInterview/pkg/ux"
	"github.com/spf13/cobra"
)

var healthJSONOutput bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Display the interview service health report",
	Long: `Fetches /health from the interview service and renders it.

Examples:
  interviewctl health            # Styled health report
  interviewctl health --json     # Raw JSON for scripting`,
	Run: runHealthCommand,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false,
		"Output raw JSON for scripting")
}

func runHealthCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newAPIClient(serverURL)
	report, err := client.Health(ctx)
	if err != nil {
		ux.Error(fmt.Sprintf("Health check failed: %v", err))
		os.Exit(1)
	}

	if healthJSONOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			ux.Error(fmt.Sprintf("Failed to encode report: %v", err))
			os.Exit(1)
		}
		return
	}

	status, _ := report["status"].(string)
	if status == "healthy" {
		ux.Success(fmt.Sprintf("Service healthy at %s", serverURL))
	} else {
		ux.Warning(fmt.Sprintf("Service %s at %s", status, serverURL))
	}

	if env, ok := report["environment"].(string); ok {
		ux.Info("environment: " + env)
	}
	if n, ok := report["active_sessions"].(float64); ok {
		ux.Info(fmt.Sprintf("active sessions: %d", int(n)))
	}

	services, ok := report["services"].(map[string]any)
	if !ok {
		return
	}
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ux.Info(fmt.Sprintf("%s: %s", name, renderServiceState(services[name])))
	}

	if status != "healthy" {
		os.Exit(1)
	}
}

// renderServiceState flattens a /health services entry; tts_service is a
// nested object, the rest are plain strings.
func renderServiceState(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case map[string]any:
		state, _ := s["status"].(string)
		if perf, ok := s["performance"].(string); ok {
			return fmt.Sprintf("%s (warmup %s)", state, perf)
		}
		if msg, ok := s["message"].(string); ok && msg != "" {
			return fmt.Sprintf("%s (%s)", state, msg)
		}
		return state
	default:
		return fmt.Sprintf("%v", v)
	}
}
