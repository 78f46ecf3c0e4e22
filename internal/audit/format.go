package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders entries as a text table followed by a summary.
func FormatTimeline(entries []Entry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}

	s := Summarize(entries)
	var b strings.Builder
	fmt.Fprintf(&b, "Audit trail | %s – %s UTC | %d entries\n", formatDateTime(s.First), formatTimeOnly(s.Last), s.Total)
	b.WriteString(separator + "\n")

	for _, e := range entries {
		fmt.Fprintf(&b, "%-10s %-30s %-12s %-16s %s → %s\n",
			formatTimeOnly(e.Timestamp),
			truncate(e.Event, 30),
			truncate(e.Field, 12),
			truncate(e.Caller, 16),
			truncate(e.Old, 24),
			truncate(e.New, 24))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(s))
	return b.String()
}

// FormatJSON renders entries and their summary as indented JSON.
func FormatJSON(entries []Entry) (string, error) {
	out := struct {
		Entries []Entry `json:"entries"`
		Summary Summary `json:"summary"`
	}{entries, Summarize(entries)}
	if out.Entries == nil {
		out.Entries = []Entry{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit entries: %w", err)
	}
	return string(data), nil
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s Summary) string {
	var events, callers []string
	for _, k := range sortedKeys(s.ByEvent) {
		events = append(events, fmt.Sprintf("%d %s", s.ByEvent[k], k))
	}
	for _, k := range sortedKeys(s.ByCaller) {
		callers = append(callers, fmt.Sprintf("%s (%d)", k, s.ByCaller[k]))
	}
	return fmt.Sprintf("Summary: %s | Callers: %s\n", strings.Join(events, ", "), strings.Join(callers, ", "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
