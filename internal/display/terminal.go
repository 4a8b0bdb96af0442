// Package display provides terminal output formatting for threadlens.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gauthierbraillon/threadlens/internal/thread"
)

const (
	separator = " • "

	// commentWidth is how much of a comment's text a result listing shows.
	commentWidth = 140
)

// TerminalFormatter formats comments and analysis results for terminal display.
type TerminalFormatter struct {
	now func() time.Time
}

// NewTerminalFormatter creates a new terminal formatter.
func NewTerminalFormatter() *TerminalFormatter {
	return &TerminalFormatter{now: time.Now}
}

// FormatComment formats a single comment for display.
func (f *TerminalFormatter) FormatComment(c thread.Comment) string {
	var lines []string

	// Header: [ID] Author
	lines = append(lines, fmt.Sprintf("[%s] %s", c.ID, c.Author))

	if when := f.formatCommentTime(c); when != "" {
		lines = append(lines, "  "+when)
	}

	lines = append(lines, "  "+c.Text)

	if engagement := f.formatEngagement(c); engagement != "" {
		lines = append(lines, "  "+engagement)
	}

	return strings.Join(lines, "\n") + "\n"
}

// formatEngagement formats engagement counters into a single line.
func (f *TerminalFormatter) formatEngagement(c thread.Comment) string {
	var parts []string

	if c.Likes > 0 {
		parts = append(parts, countLabel(c.Likes, "like"))
	}
	if c.Reposts > 0 {
		parts = append(parts, countLabel(c.Reposts, "repost"))
	}
	if c.Replies > 0 {
		parts = append(parts, countLabel(c.Replies, "reply"))
	}
	if c.Views > 0 {
		parts = append(parts, countLabel(c.Views, "view"))
	}

	return strings.Join(parts, separator)
}

func countLabel(n int64, unit string) string {
	if n != 1 {
		if strings.HasSuffix(unit, "y") {
			unit = strings.TrimSuffix(unit, "y") + "ies"
		} else {
			unit += "s"
		}
	}
	return humanize.Comma(n) + " " + unit
}

// formatCommentTime prefers a relative time from the normalized timestamp
// and falls back to the page's own label.
func (f *TerminalFormatter) formatCommentTime(c thread.Comment) string {
	if t, err := time.Parse(time.RFC3339, c.Timestamp); err == nil {
		return f.FormatTimestamp(t)
	}
	if c.DisplayTime != "" {
		return c.DisplayTime
	}
	return c.Timestamp
}

// FormatComments formats multiple comments for display.
func (f *TerminalFormatter) FormatComments(comments []thread.Comment) string {
	if len(comments) == 0 {
		return "No comments to display.\n"
	}

	var formatted []string
	for _, c := range comments {
		formatted = append(formatted, f.FormatComment(c))
	}

	return strings.Join(formatted, "\n---\n\n")
}

// FormatResult formats an analysis result: summary, counts and categories.
func (f *TerminalFormatter) FormatResult(r thread.Result) string {
	var b strings.Builder

	b.WriteString("Summary\n")
	b.WriteString("  " + r.Summary + "\n\n")

	fmt.Fprintf(&b, "%s analyzed%s%s filtered%s%s total\n",
		humanize.Comma(int64(r.Stats.AnalyzedComments)), separator,
		humanize.Comma(int64(r.Stats.FilteredComments)), separator,
		humanize.Comma(int64(r.Stats.TotalComments)))

	for _, cat := range r.Categories {
		b.WriteString("\n")
		title := cat.Name
		if cat.Icon != "" {
			title = cat.Icon + " " + title
		}
		fmt.Fprintf(&b, "%s (%d)\n", title, len(cat.Comments))
		for _, c := range cat.Comments {
			fmt.Fprintf(&b, "  - %s: %s\n", c.Author, f.TruncateText(c.Text, commentWidth))
		}
	}

	return b.String()
}

// FormatTimestamp formats a timestamp as relative time.
func (f *TerminalFormatter) FormatTimestamp(t time.Time) string {
	if f.now().Sub(t) < time.Minute {
		return "just now"
	}
	return humanize.RelTime(t, f.now(), "ago", "from now")
}

// TruncateText truncates text to maxLen runes, adding "..." if truncated.
func (f *TerminalFormatter) TruncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}
