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
	"fmt"
	"os"
	"time"

	"github.com/AleutianAI/AleutianInterview/pkg/ux"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage interview sessions",
}

var sessionsCleanupCmd = &cobra.Command{
	Use:   "cleanup <session-id>",
	Short: "Persist and release a session immediately",
	Long: `Saves the session's current state to the store and evicts it from
the server's working set. The session record remains in the store.`,
	Args: cobra.ExactArgs(1),
	Run:  runSessionsCleanup,
}

var sessionsPingCmd = &cobra.Command{
	Use:   "ping <session-id>",
	Short: "Extend a session's idle expiry",
	Args:  cobra.ExactArgs(1),
	Run:   runSessionsPing,
}

func init() {
	sessionsCmd.AddCommand(sessionsCleanupCmd)
	sessionsCmd.AddCommand(sessionsPingCmd)
}

func runSessionsCleanup(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client := newAPIClient(serverURL)
	if err := client.CleanupSession(ctx, args[0]); err != nil {
		ux.Error(fmt.Sprintf("Cleanup failed: %v", err))
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("Session %s released", args[0]))
}

func runSessionsPing(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client := newAPIClient(serverURL)
	if err := client.PingSession(ctx, args[0]); err != nil {
		ux.Error(fmt.Sprintf("Ping failed: %v", err))
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("Session %s expiry extended", args[0]))
}
