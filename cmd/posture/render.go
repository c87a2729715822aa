package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/synqronlabs/posture"
	"github.com/synqronlabs/posture/plan"
	"github.com/synqronlabs/posture/score"
)

var statusColor = map[score.Status]lipgloss.Color{
	score.StatusSuccess: lipgloss.Color(score.RiskLow.Color()),
	score.StatusWarning: lipgloss.Color(score.RiskMedium.Color()),
	score.StatusFail:    lipgloss.Color(score.RiskHigh.Color()),
}

// renderText writes a human readable report. Colors are only emitted when w
// is a terminal.
func renderText(w io.Writer, a *posture.Analysis) error {
	re := lipgloss.NewRenderer(w)
	report := a.Report
	risk := lipgloss.Color(report.RiskColor)

	titleStyle := re.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	gradeStyle := re.NewStyle().Bold(true).Foreground(risk)
	dimStyle := re.NewStyle().Foreground(lipgloss.Color("#999999"))
	boxStyle := re.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(risk).
		Padding(0, 1)

	header := fmt.Sprintf("%s  %s  %s  %s",
		titleStyle.Render(report.Domain),
		gradeStyle.Render("Grade "+string(report.Grade)),
		fmt.Sprintf("%d/100", report.TotalScore),
		gradeStyle.Render(string(report.RiskLevel)+" risk"))

	var rows []string
	for _, p := range []struct {
		name  string
		score score.ProtocolScore
	}{
		{"DMARC", report.Breakdown.DMARC},
		{"SPF", report.Breakdown.SPF},
		{"DKIM", report.Breakdown.DKIM},
	} {
		status := re.NewStyle().Foreground(statusColor[p.score.Status]).Render(string(p.score.Status))
		row := fmt.Sprintf("%-6s %2d/%-2d  %s", p.name, p.score.Score, p.score.MaxScore, status)
		if p.score.Selector != "" {
			row += dimStyle.Render("  selector " + p.score.Selector)
		}
		rows = append(rows, row)
		if rec, ok := p.score.Details.(fmt.Stringer); ok {
			rows = append(rows, dimStyle.Render("       "+rec.String()))
		}
		for _, issue := range p.score.Issues {
			rows = append(rows, "       ! "+issue)
		}
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		strings.Join(rows, "\n"),
		"",
		dimStyle.Render(report.Summary),
	)

	var b strings.Builder
	b.WriteString(boxStyle.Render(body))
	b.WriteString("\n")

	if len(a.ActionPlan) > 0 {
		b.WriteString(titleStyle.Render("Action plan"))
		b.WriteString("\n")
		for i, item := range a.ActionPlan {
			priority := re.NewStyle().Bold(true).Foreground(priorityColor(item.Priority)).
				Render("[" + string(item.Priority) + "]")
			fmt.Fprintf(&b, "%2d. %s %s %s\n", i+1, priority, strings.ToUpper(string(item.Protocol)), item.Title)
			for _, step := range item.Steps {
				fmt.Fprintf(&b, "      - %s\n", step)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func priorityColor(p plan.Priority) lipgloss.Color {
	switch p {
	case plan.PriorityCritical:
		return lipgloss.Color(score.RiskHigh.Color())
	case plan.PriorityHigh:
		return lipgloss.Color("#f97316")
	case plan.PriorityMedium:
		return lipgloss.Color(score.RiskMedium.Color())
	default:
		return lipgloss.Color("#999999")
	}
}
