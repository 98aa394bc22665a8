// Package style holds the terminal palette for clientctl output.
package style

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/edvin/clientops/internal/model"
)

var (
	Primary = lipgloss.Color("#7C3AED")
	Green   = lipgloss.Color("#10B981")
	Red     = lipgloss.Color("#EF4444")
	Yellow  = lipgloss.Color("#F59E0B")
	Cyan    = lipgloss.Color("#06B6D4")
	Dim     = lipgloss.Color("#6B7280")
	White   = lipgloss.Color("#F9FAFB")

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Bold    = lipgloss.NewStyle().Bold(true).Foreground(White)
	DimText = lipgloss.NewStyle().Foreground(Dim)

	Healthy   = lipgloss.NewStyle().Foreground(Green).Bold(true)
	Unhealthy = lipgloss.NewStyle().Foreground(Red).Bold(true)
	Warning   = lipgloss.NewStyle().Foreground(Yellow)

	DotHealthy   = Healthy.Render("●")
	DotUnhealthy = Unhealthy.Render("●")
	DotWarning   = Warning.Render("●")
	DotDim       = DimText.Render("●")

	RoleBadge = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(Cyan)

	// Step indicators
	StepRunning = lipgloss.NewStyle().Foreground(Yellow).Bold(true)
	StepDone    = lipgloss.NewStyle().Foreground(Green)
	StepSkipped = DimText
	StepFailed  = lipgloss.NewStyle().Foreground(Red).Bold(true)

	TableHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		PaddingRight(2)

	TableCell = lipgloss.NewStyle().PaddingRight(2)

	ErrorLine = lipgloss.NewStyle().Foreground(Red).Bold(true)

	SuccessBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Green).
		Foreground(Green).
		Padding(0, 1).
		MarginTop(1)

	WarningBox = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Yellow).
		Foreground(Yellow).
		Padding(0, 1).
		MarginTop(1)

	Key = lipgloss.NewStyle().Foreground(Dim).Width(16)
	Val = lipgloss.NewStyle().Foreground(White)
)

// StatusDot colors a client status.
func StatusDot(s model.Status) string {
	switch s {
	case model.StatusDeployed:
		return DotHealthy
	case model.StatusMaintenance, model.StatusOffboarding:
		return DotWarning
	case model.StatusDestroyed:
		return DotUnhealthy
	default:
		return DotDim
	}
}

// Step renders a step outcome marker.
func Step(s model.StepStatus) string {
	switch s {
	case model.StepOK:
		return StepDone.Render("✓")
	case model.StepSkipped:
		return StepSkipped.Render("–")
	case model.StepWarning:
		return Warning.Render("!")
	default:
		return StepFailed.Render("✗")
	}
}
