package notifier

import (
	"fmt"
	"strings"
	"time"

	"jetstream/internal/jobs"
)

// Telegram messages use Markdown and mirror the operator vocabulary of
// the dashboard: a job is a "sharing" run.

const errorBodyLimit = 400

func formatServerStarted(addr string) string {
	return fmt.Sprintf("✅ *JetStream server started*\nAddr: `%s`", addr)
}

func formatJobStarted(j jobs.Job, days float64) string {
	var b strings.Builder
	b.WriteString("▶️ *Sharing started*\n")
	fmt.Fprintf(&b, "Bundle: `%s`\n", j.Bundle)
	fmt.Fprintf(&b, "File: `%s`\n", j.FileName)
	fmt.Fprintf(&b, "Records: *%d*\n", j.Total)
	fmt.Fprintf(&b, "Days: *%g*\n", days)
	fmt.Fprintf(&b, "Interval: ~*%.2fs*\n", j.IntervalMs/1000)
	fmt.Fprintf(&b, "Expected end: `%s`\n", j.ExpectedEndAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Job ID: `%s`", j.ID)
	return b.String()
}

func formatJobFinished(j jobs.Job) string {
	var b strings.Builder
	b.WriteString("✅ *Sharing finished*\n")
	fmt.Fprintf(&b, "Bundle: `%s`\n", j.Bundle)
	fmt.Fprintf(&b, "File: `%s`\n", j.FileName)
	fmt.Fprintf(&b, "Sent: *%d* / *%d*\n", j.Sent, j.Total)
	fmt.Fprintf(&b, "Job ID: `%s`", j.ID)
	return b.String()
}

func formatSendFailed(j jobs.Job, position, status int, body string) string {
	statusText := "n/a"
	if status > 0 {
		statusText = fmt.Sprintf("%d", status)
	}
	var b strings.Builder
	b.WriteString("❌ *AppsFlyer error*\n")
	fmt.Fprintf(&b, "Bundle: `%s`\n", j.Bundle)
	fmt.Fprintf(&b, "File: `%s`\n", j.FileName)
	fmt.Fprintf(&b, "Job ID: `%s`\n", j.ID)
	fmt.Fprintf(&b, "Record: *%d* / *%d*\n", position, j.Total)
	fmt.Fprintf(&b, "Status: *%s*\n", statusText)
	fmt.Fprintf(&b, "Message:\n```%s```", truncate(body, errorBodyLimit))
	return b.String()
}

func formatHeartbeat(uptime time.Duration, totals jobs.Totals) string {
	var b strings.Builder
	b.WriteString("🟢 *JetStream heartbeat*\n")
	fmt.Fprintf(&b, "Uptime: `%s`\n", uptime.Round(time.Second))
	fmt.Fprintf(&b, "Jobs: *%d* (running *%d*, finished *%d*, stopped *%d*)",
		totals.Total, totals.Running, totals.Finished, totals.Stopped)
	return b.String()
}

func formatStatusReport(slot string, entries []jobs.StatusEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *JetStream status report* (%s)\n", slot)
	for _, e := range entries {
		fmt.Fprintf(&b, "• `%s` %s — %s, sent %d/%d\n", e.Bundle, e.FileName, e.Status, e.Sent, e.Total)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
