package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"headlines/internal/core"
)

var (
	categoryStyle = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("12"))
	priorityStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	metaStyle     = lipgloss.NewStyle().Faint(true)
	docStyle      = lipgloss.NewStyle().Margin(1, 2)
)

// PriorityMarker prefixes highlights whose title matched a priority keyword
const PriorityMarker = "★"

// RenderHighlights renders highlights grouped by category, keeping the
// order they are given in.
func RenderHighlights(highlights []core.Article) string {
	if len(highlights) == 0 {
		return docStyle.Render("No highlights. Run processing first.")
	}

	var b strings.Builder
	current := ""
	for i, a := range highlights {
		if i == 0 || a.PredictedCategory != current {
			if i > 0 {
				b.WriteString("\n")
			}
			current = a.PredictedCategory
			b.WriteString(categoryStyle.Render(strings.ToUpper(current)))
			b.WriteString("\n")
		}

		marker := " "
		if a.IsPriority {
			marker = priorityStyle.Render(PriorityMarker)
		}
		b.WriteString(fmt.Sprintf("%s %s ", marker, a.Title))
		b.WriteString(metaStyle.Render(fmt.Sprintf("(score %d, %d similar)", a.HighlightScore, a.ClusterSize)))
		b.WriteString("\n")
	}

	return docStyle.Render(b.String())
}
