// ABOUTME: Lipgloss styles for the triage TUI
// ABOUTME: Calm clinical palette: teal panels, amber activity, red errors

package main

import "github.com/charmbracelet/lipgloss"

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	panel       lipgloss.Style
	panelTitle  lipgloss.Style
	inputPanel  lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	helpText    lipgloss.Style
	humanLabel  lipgloss.Style
	agentLabel  lipgloss.Style
	reference   lipgloss.Style
	hint        lipgloss.Style
	spinner     lipgloss.Style
	online      lipgloss.Style
	pending     lipgloss.Style
	offline     lipgloss.Style
}

func newTheme() uiTheme {
	teal := lipgloss.Color("#2dd4bf")
	sky := lipgloss.Color("#7dd3fc")
	amber := lipgloss.Color("#fbbf24")
	red := lipgloss.Color("#f87171")
	text := lipgloss.Color("#e5e7eb")
	muted := lipgloss.Color("#94a3b8")

	return uiTheme{
		root: lipgloss.NewStyle().
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(sky).
			Padding(0, 1),
		panelTitle: lipgloss.NewStyle().Foreground(teal).Bold(true),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(teal).
			Padding(0, 1),
		status:      lipgloss.NewStyle().Foreground(sky),
		errorStatus: lipgloss.NewStyle().Foreground(red).Bold(true),
		helpText:    lipgloss.NewStyle().Foreground(muted),
		humanLabel:  lipgloss.NewStyle().Foreground(amber).Bold(true),
		agentLabel:  lipgloss.NewStyle().Foreground(teal).Bold(true),
		reference:   lipgloss.NewStyle().Foreground(muted).Italic(true),
		hint:        lipgloss.NewStyle().Foreground(amber),
		spinner:     lipgloss.NewStyle().Foreground(amber),
		online:      lipgloss.NewStyle().Foreground(teal),
		pending:     lipgloss.NewStyle().Foreground(amber),
		offline:     lipgloss.NewStyle().Foreground(red),
	}
}
