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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// answerReader reads candidate answers. The interactive implementation
// provides history navigation; piped input falls back to plain stdin.
type answerReader interface {
	// ReadAnswer blocks for one line. io.EOF means the candidate is done.
	ReadAnswer() (string, error)
}

// newAnswerReader picks the reader for the current terminal.
func newAnswerReader() answerReader {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return &stdinReader{scanner: bufio.NewScanner(os.Stdin)}
	}
	return &interactiveReader{historyIndex: -1, maxHistory: 50}
}

// ===== Plain stdin =====

type stdinReader struct {
	scanner *bufio.Scanner
}

func (r *stdinReader) ReadAnswer() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(r.scanner.Text()), nil
}

// ===== Interactive (bubbletea) =====

type interactiveReader struct {
	history      []string
	historyIndex int
	maxHistory   int
}

func (r *interactiveReader) ReadAnswer() (string, error) {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = 80

	m := answerModel{
		textInput:    ti,
		history:      r.history,
		historyIndex: -1,
	}

	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	result, ok := finalModel.(answerModel)
	if !ok {
		return "", fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}

	if result.cancelled && result.textInput.Value() == "" {
		return "", io.EOF
	}

	answer := strings.TrimSpace(result.textInput.Value())
	if answer != "" {
		r.addToHistory(answer)
	}
	return answer, nil
}

func (r *interactiveReader) addToHistory(answer string) {
	if len(r.history) > 0 && r.history[len(r.history)-1] == answer {
		return
	}
	r.history = append(r.history, answer)
	if len(r.history) > r.maxHistory {
		r.history = r.history[1:]
	}
}

// answerModel is the bubbletea model for one answer prompt.
type answerModel struct {
	textInput    textinput.Model
	history      []string
	historyIndex int
	currentInput string
	done         bool
	cancelled    bool
}

func (m answerModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m answerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.cancelled = true
			m.textInput.SetValue("")
			return m, tea.Quit
		case tea.KeyUp:
			if len(m.history) == 0 {
				break
			}
			if m.historyIndex == -1 {
				m.currentInput = m.textInput.Value()
				m.historyIndex = len(m.history) - 1
			} else if m.historyIndex > 0 {
				m.historyIndex--
			}
			m.textInput.SetValue(m.history[m.historyIndex])
			m.textInput.CursorEnd()
		case tea.KeyDown:
			if m.historyIndex == -1 {
				break
			}
			if m.historyIndex < len(m.history)-1 {
				m.historyIndex++
				m.textInput.SetValue(m.history[m.historyIndex])
			} else {
				m.historyIndex = -1
				m.textInput.SetValue(m.currentInput)
			}
			m.textInput.CursorEnd()
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m answerModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	return m.textInput.View()
}
