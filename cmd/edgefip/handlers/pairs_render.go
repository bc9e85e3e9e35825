package handlers

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/imamik/edgefip/internal/gateway"
)

var (
	pairsColorGreen = lipgloss.Color("#22c55e")
	pairsColorRed   = lipgloss.Color("#ef4444")
	pairsColorBlue  = lipgloss.Color("#3b82f6")
	pairsColorDim   = lipgloss.Color("#6b7280")
)

var (
	pairsHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(pairsColorBlue)

	pairsDimStyle = lipgloss.NewStyle().
			Foreground(pairsColorDim)

	pairsGreenStyle = lipgloss.NewStyle().
			Foreground(pairsColorGreen)

	pairsRedStyle = lipgloss.NewStyle().
			Foreground(pairsColorRed)
)

// renderPairs produces the EXTERNAL/INTERNAL table of the pairs command.
func renderPairs(gatewayName string, pairs []gateway.AssignedIPs) string {
	width := len("EXTERNAL")
	for _, p := range pairs {
		width = max(width, len(p.External))
	}
	column := lipgloss.NewStyle().Width(width + 2)

	var b strings.Builder
	b.WriteString(pairsHeaderStyle.Render(column.Render("EXTERNAL") + "INTERNAL"))
	b.WriteString("\n")
	for _, p := range pairs {
		b.WriteString(column.Render(p.External))
		b.WriteString(p.Internal)
		b.WriteString("\n")
	}
	b.WriteString(pairsDimStyle.Render(fmt.Sprintf("%d pair(s) on gateway %s", len(pairs), gatewayName)))
	b.WriteString("\n")
	return b.String()
}

// renderRouted returns the one-line routing verdict for network.
func renderRouted(network string, routed bool) string {
	verdict := pairsRedStyle.Render("false")
	if routed {
		verdict = pairsGreenStyle.Render("true")
	}
	return fmt.Sprintf("network %s routed: %s\n", network, verdict)
}
