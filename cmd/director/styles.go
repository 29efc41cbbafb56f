package main

import "github.com/charmbracelet/lipgloss"

var (
	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2")) // green
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")) // red
	stageStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")) // magenta
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))            // cyan
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // gray
)
