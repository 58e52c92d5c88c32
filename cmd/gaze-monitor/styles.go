package main

import "github.com/charmbracelet/lipgloss"

// Colors used by the monitor.
var (
	ColorCyan   = lipgloss.Color("86")
	ColorPink   = lipgloss.Color("212")
	ColorYellow = lipgloss.Color("227")
	ColorGreen  = lipgloss.Color("78")
	ColorRed    = lipgloss.Color("203")
	ColorWhite  = lipgloss.Color("255")
	ColorDim    = lipgloss.Color("242")
)

// Styles holds the Lip Gloss style definitions for the monitor view.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Dim    lipgloss.Style
	Good   lipgloss.Style
	Bad    lipgloss.Style
	Warn   lipgloss.Style
	Glyph  lipgloss.Style
	Panel  lipgloss.Style
	Event  lipgloss.Style
	Footer lipgloss.Style
}

// DefaultStyles returns the default look.
func DefaultStyles() Styles {
	s := Styles{}

	s.Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorCyan).
		Padding(0, 1)

	s.Label = lipgloss.NewStyle().Foreground(ColorDim).Width(10)
	s.Value = lipgloss.NewStyle().Foreground(ColorWhite)
	s.Dim = lipgloss.NewStyle().Foreground(ColorDim)
	s.Good = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	s.Bad = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	s.Warn = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)
	s.Glyph = lipgloss.NewStyle().Foreground(ColorPink).Bold(true)

	s.Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorDim).
		Padding(0, 1)

	s.Event = lipgloss.NewStyle().Foreground(ColorWhite)
	s.Footer = lipgloss.NewStyle().Foreground(ColorDim).Padding(0, 1)

	return s
}
