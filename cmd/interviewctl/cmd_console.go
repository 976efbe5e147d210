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
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianInterview/pkg/ux"
	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var (
	consoleRole      string
	consoleStyle     string
	consoleQuestions int
	consoleDuration  int
	consoleCompany   string
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run a full interview from the terminal",
	Long: `Starts an interview session against the service and runs it
interactively: the interviewer's questions are printed, your answers are
read from the terminal, and the coaching summary is shown at the end.

Type /end (or press Ctrl+D) to finish the interview early.

Examples:
  interviewctl console
  interviewctl console --role "Staff Engineer" --style technical -n 5`,
	Run: runConsoleCommand,
}

func init() {
	consoleCmd.Flags().StringVar(&consoleRole, "role", "",
		"Job role to interview for (prompted interactively when omitted)")
	consoleCmd.Flags().StringVar(&consoleStyle, "style", "formal",
		"Interviewer style: formal, casual, aggressive, technical")
	consoleCmd.Flags().IntVarP(&consoleQuestions, "questions", "n", 0,
		"Target question count (0 uses the server default)")
	consoleCmd.Flags().IntVar(&consoleDuration, "duration", 0,
		"Time-boxed interview length in minutes (0 = question-count mode)")
	consoleCmd.Flags().StringVar(&consoleCompany, "company", "",
		"Company name used to flavor questions")
}

func runConsoleCommand(cmd *cobra.Command, args []string) {
	if consoleRole == "" {
		if !ux.IsInteractive() {
			ux.Error("--role is required when not running interactively")
			os.Exit(1)
		}
		if err := runSetupForm(); err != nil {
			ux.Error(fmt.Sprintf("Setup cancelled: %v", err))
			os.Exit(1)
		}
	}

	if err := runInterview(context.Background()); err != nil {
		ux.Error(fmt.Sprintf("Interview failed: %v", err))
		os.Exit(1)
	}
}

// runSetupForm collects the session parameters with a huh form.
func runSetupForm() error {
	questions := "3"
	duration := "0"

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Job role").
				Placeholder("Senior Software Engineer").
				Value(&consoleRole).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("role is required")
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Interviewer style").
				Options(
					huh.NewOption("Formal", "formal"),
					huh.NewOption("Casual", "casual"),
					huh.NewOption("Aggressive", "aggressive"),
					huh.NewOption("Technical", "technical"),
				).
				Value(&consoleStyle),
			huh.NewInput().
				Title("Question count").
				Value(&questions).
				Validate(validatePositiveInt),
			huh.NewInput().
				Title("Duration in minutes (0 for question-count mode)").
				Value(&duration).
				Validate(validateNonNegativeInt),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	consoleQuestions, _ = strconv.Atoi(strings.TrimSpace(questions))
	consoleDuration, _ = strconv.Atoi(strings.TrimSpace(duration))
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return errors.New("enter a positive number")
	}
	return nil
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return errors.New("enter a number")
	}
	return nil
}

// runInterview drives the whole session: create, start, answer loop, end,
// summary polling.
func runInterview(ctx context.Context) error {
	client := newAPIClient(serverURL)

	req := datatypes.CreateSessionRequest{
		JobRole:             consoleRole,
		Style:               consoleStyle,
		TargetQuestionCount: consoleQuestions,
		CompanyName:         consoleCompany,
	}
	if consoleDuration > 0 {
		req.UseTimeBasedInterview = true
		req.InterviewDurationMinutes = consoleDuration
	}

	sessionID, err := client.CreateSession(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		// Best effort; the idle sweeper catches anything we miss.
		_ = client.CleanupSession(context.Background(), sessionID)
	}()

	ux.Title(fmt.Sprintf("Interview for %s (%s style)", consoleRole, consoleStyle))
	ux.Muted("session " + sessionID + " — type /end or press Ctrl+D to finish")
	fmt.Println()

	intro, err := client.StartInterview(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to start interview: %w", err)
	}
	printAgentResponse(intro)

	reader := newAnswerReader()
	for {
		answer, err := reader.ReadAnswer()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to read answer: %w", err)
		}
		if answer == "" {
			continue
		}
		if answer == "/end" || answer == "/quit" {
			break
		}

		var reply *datatypes.AgentResponse
		spin := ux.NewSpinner("Interviewer is thinking")
		spin.Start()
		reply, err = client.SendMessage(ctx, sessionID, answer)
		spin.Stop()
		if err != nil {
			return fmt.Errorf("failed to send answer: %w", err)
		}
		printAgentResponse(reply)

		if reply.ResponseType == datatypes.ResponseClosing {
			break
		}
	}

	return finishInterview(ctx, client, sessionID)
}

// finishInterview ends the session and waits for the coaching summary.
func finishInterview(ctx context.Context, client *apiClient, sessionID string) error {
	end, err := client.EndInterview(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to end interview: %w", err)
	}

	if len(end.PerTurnFeedback) > 0 {
		fmt.Println()
		ux.Title("Per-turn feedback")
		for i, entry := range end.PerTurnFeedback {
			ux.Info(fmt.Sprintf("%d. %s", i+1, entry.Feedback))
		}
	}

	fmt.Println()
	spin := ux.NewSpinner("Generating coaching summary")
	spin.Start()
	status, err := client.WaitForSummary(ctx, sessionID)
	spin.Stop()
	if err != nil {
		return fmt.Errorf("failed while waiting for summary: %w", err)
	}

	if status.Status == datatypes.SummaryError || status.Results == nil {
		ux.Warning("Summary generation failed: " + status.Error)
		return nil
	}

	printSummary(status.Results)
	return nil
}

func printAgentResponse(resp *datatypes.AgentResponse) {
	fmt.Println(ux.Turn(ux.Styles.Interviewer, "Interviewer", resp.Content))
	fmt.Println()
}

func printSummary(s *datatypes.Summary) {
	ux.Box("Coaching summary", strings.Join([]string{
		ux.Styles.Bold.Render("Patterns: ") + s.PatternsTendencies,
		ux.Styles.Bold.Render("Strengths: ") + s.Strengths,
		ux.Styles.Bold.Render("Weaknesses: ") + s.Weaknesses,
		ux.Styles.Bold.Render("Focus areas: ") + s.ImprovementFocusAreas,
	}, "\n\n"))

	if len(s.RecommendedResources) == 0 {
		return
	}
	fmt.Println()
	ux.Title("Recommended resources")
	for _, r := range s.RecommendedResources {
		ux.Info(fmt.Sprintf("%s — %s", r.Title, r.URL))
		if r.Description != "" {
			ux.Muted("  " + r.Description)
		}
	}
}
