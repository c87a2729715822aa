// Package plan turns a scored report into a short, prioritized list of
// remediation steps.
package plan

import (
	"cmp"
	"slices"
	"strings"

	"github.com/synqronlabs/posture/score"
)

// DefaultLimit is the number of action items Generate returns when no
// limit is given.
const DefaultLimit = 5

// Priority orders action items, most urgent first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Protocol names the protocol an action item belongs to.
type Protocol string

const (
	ProtocolDMARC Protocol = "dmarc"
	ProtocolSPF   Protocol = "spf"
	ProtocolDKIM  Protocol = "dkim"
)

// ActionItem is one remediation step.
type ActionItem struct {
	Priority    Priority `json:"priority"`
	Protocol    Protocol `json:"protocol"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

// Generate collects the issues and recommendations of every protocol in
// report into action items. Items are de-duplicated by title, ordered from
// critical to low (keeping their original order within a priority) and
// truncated to limit. A limit of zero or less means DefaultLimit.
func Generate(report *score.Report, limit int) []ActionItem {
	if report == nil {
		return []ActionItem{}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	var items []ActionItem
	seen := map[string]bool{}
	add := func(item ActionItem) {
		key := normalize(item.Title)
		if seen[key] {
			return
		}
		seen[key] = true
		items = append(items, item)
	}

	for _, p := range []struct {
		protocol Protocol
		score    score.ProtocolScore
	}{
		{ProtocolDMARC, report.Breakdown.DMARC},
		{ProtocolSPF, report.Breakdown.SPF},
		{ProtocolDKIM, report.Breakdown.DKIM},
	} {
		for _, issue := range p.score.Issues {
			add(newItem(p.protocol, priorityFor(p.score.Status, true), issue, describeIssue(p.protocol, p.score)))
		}
		for _, rec := range p.score.Recommendations {
			add(newItem(p.protocol, priorityFor(p.score.Status, false), rec, describeRecommendation(p.protocol, p.score)))
		}
	}

	slices.SortStableFunc(items, func(a, b ActionItem) int {
		return cmp.Compare(a.Priority.rank(), b.Priority.rank())
	})

	if len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []ActionItem{}
	}
	return items
}

// priorityFor derives an item's priority from the status of its protocol.
// Issues are problems that exist today, recommendations are improvements.
func priorityFor(status score.Status, issue bool) Priority {
	switch status {
	case score.StatusFail:
		if issue {
			return PriorityCritical
		}
		return PriorityHigh
	case score.StatusWarning:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func newItem(protocol Protocol, priority Priority, title, description string) ActionItem {
	return ActionItem{
		Priority:    priority,
		Protocol:    protocol,
		Title:       title,
		Description: description,
		Steps:       stepsFor(protocol, title),
	}
}

// normalize folds case and collapses whitespace and trailing punctuation.
func normalize(title string) string {
	return strings.TrimRight(strings.Join(strings.Fields(strings.ToLower(title)), " "), ".!")
}
