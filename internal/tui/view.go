package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/davarch/ci-tracker/internal/domain"
	"github.com/mattn/go-runewidth"
)

const defaultWidth = 100

func renderView(m Model) string {
	var b strings.Builder

	auto := 0
	for _, it := range m.items {
		if it.AutoDiscovered {
			auto++
		}
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("ci-tracker │ %d items │ %d auto-discovered", len(m.items), auto)))
	b.WriteString("\n\n")

	if len(m.items) == 0 {
		b.WriteString(emptyStyle.Render("  (nothing tracked yet)"))
		b.WriteString("\n")
	}

	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	for i, it := range m.items {
		line := renderRow(it, width-4)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("› " + line))
		} else {
			b.WriteString(rowStyle.Render("  " + line))
		}
		b.WriteString("\n")

		if it.Kind == domain.KindPipeline {
			for _, st := range it.Snapshot.Stages {
				b.WriteString(stageStyle.Render(renderStage(st)))
				b.WriteString("\n")
			}
		}
	}

	if m.notice != "" {
		b.WriteString("\n")
		if m.failed {
			b.WriteString(errorStyle.Render(m.notice))
		} else {
			b.WriteString(emptyStyle.Render(m.notice))
		}
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("j/k:select r:refresh d:remove q:quit"))
	return b.String()
}

func renderRow(it domain.TrackedItem, width int) string {
	s := it.Snapshot

	var title string
	if it.Kind == domain.KindPipeline {
		title = fmt.Sprintf("pipeline #%d on %s", s.ID, s.Ref)
	} else {
		title = fmt.Sprintf("job %s on %s", s.Name, s.Ref)
		if s.Stage != "" {
			title += " [" + s.Stage + "]"
		}
	}

	var marks []string
	if it.AutoDiscovered {
		marks = append(marks, "auto")
	}
	if it.DeletionPending {
		marks = append(marks, "removing soon")
	}
	if len(marks) > 0 {
		title += " (" + strings.Join(marks, ", ") + ")"
	}

	status := lipgloss.NewStyle().Foreground(statusColor(s.Status)).Render(string(s.Status))
	line := statusIcon(s.Status) + " " + title
	if runewidth.StringWidth(line) > width-12 && width > 20 {
		line = runewidth.Truncate(line, width-12, "...")
	}
	return line + "  " + status
}

func renderStage(st domain.StageGroup) string {
	var marks strings.Builder
	for _, j := range st.Jobs {
		marks.WriteString(stageMark(j.Status))
	}
	return fmt.Sprintf("%s %s", st.Name, marks.String())
}
