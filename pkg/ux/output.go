// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for interviewctl.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style

	// Transcript speakers in the interview console.
	Interviewer lipgloss.Style
	Candidate   lipgloss.Style
	Coach       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),

	Interviewer: lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary),
	Candidate:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Coach:       lipgloss.NewStyle().Bold(true).Foreground(ColorWarning),
}

// Icon provides themed status icons.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Print helpers that respect the personality level.

// Title prints a styled title.
func Title(text string) {
	if Machine() {
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with checkmark.
func Success(text string) {
	if Machine() {
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message.
func Warning(text string) {
	if Machine() {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message.
func Error(text string) {
	if Machine() {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message.
func Info(text string) {
	if Machine() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints muted/secondary text.
func Muted(text string) {
	if Machine() {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Box prints text in a rounded box.
func Box(title, content string) {
	if Machine() {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(68)
	titleLine := Styles.Title.Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}

// Turn renders one transcript line with a styled speaker label.
func Turn(speaker lipgloss.Style, label, text string) string {
	if Machine() {
		return fmt.Sprintf("%s: %s", label, text)
	}
	return speaker.Render(label+":") + " " + text
}

// SessionProgress renders asked/target question counts for the console
// status line.
func SessionProgress(asked, target int) string {
	if Machine() {
		return fmt.Sprintf("%d/%d", asked, target)
	}
	return Styles.Bold.Render(fmt.Sprintf("%d", asked)) +
		Styles.Muted.Render(fmt.Sprintf("/%d questions", target))
}
