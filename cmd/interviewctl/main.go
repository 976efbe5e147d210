// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command interviewctl is the operator CLI for the interview service.
//
// # Usage
//
//	interviewctl health                 # Service health report
//	interviewctl console                # Run an interview from the terminal
//	interviewctl sessions cleanup <id>  # Release a session immediately
//
// The target server defaults to http://localhost:12220 and can be
// overridden with --server or INTERVIEW_SERVER_URL.
package main

import (
	"os"

	"github.com/AleutianAI/AleutianInterview/pkg/ux"
	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:   "interviewctl",
	Short: "Operator CLI for the Aleutian interview service",
	Long: `interviewctl talks to a running interview service over its HTTP API.

It can check service health, run a full interview from the terminal, and
manage sessions.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ux.InitPersonality()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	defaultServer := os.Getenv("INTERVIEW_SERVER_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:12220"
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer,
		"Interview service base URL")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(consoleCmd)
}
