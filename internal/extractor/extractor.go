// Package extractor turns a rendered thread page into a ranked, deduplicated
// set of comment records.
//
// This package enables threadlens to:
// - Find reply items in the page and skip the root post
// - Ignore hidden placeholders, duplicates, promoted items and media-only replies
// - Parse abbreviated engagement counters ("1.2K", "5M", "1,234")
// - Rank by engagement and cap the result
package extractor

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"github.com/araddon/dateparse"
	"golang.org/x/net/html"

	"github.com/gauthierbraillon/threadlens/internal/thread"
)

// DefaultMinTextLength is the comment length, in runes, a text must exceed
// to be kept.
const DefaultMinTextLength = 10

var (
	itemSelector      = cascadia.MustCompile(`article[data-testid="tweet"]`)
	textSelector      = cascadia.MustCompile(`[data-testid="tweetText"]`)
	authorSelector    = cascadia.MustCompile(`[data-testid="User-Name"]`)
	timeSelector      = cascadia.MustCompile(`time[datetime]`)
	permalinkSelector = cascadia.MustCompile(`a[href*="/status/"]`)
	likeSelector      = cascadia.MustCompile(`[data-testid="like"], [data-testid="unlike"]`)
	repostSelector    = cascadia.MustCompile(`[data-testid="retweet"], [data-testid="unretweet"]`)
	replySelector     = cascadia.MustCompile(`[data-testid="reply"]`)
	viewsSelector     = cascadia.MustCompile(`a[href$="/analytics"]`)
	promotedSelector  = cascadia.MustCompile(`[data-testid="placementTracking"], [data-promoted="true"]`)
	mediaSelector     = cascadia.MustCompile(`[data-testid="tweetPhoto"], [data-testid="videoPlayer"], video, img[src*="/media/"]`)

	statusIDPattern = regexp.MustCompile(`/status/(\d+)`)
)

// Stats counts what happened to each candidate item during one pass.
type Stats struct {
	Scanned   int `json:"scanned"`
	Hidden    int `json:"hidden"`
	Duplicate int `json:"duplicate"`
	Empty     int `json:"empty"`
	Short     int `json:"short"`
	MediaOnly int `json:"mediaOnly"`
	Promoted  int `json:"promoted"`
	Kept      int `json:"kept"`
}

// Option configures the Extractor.
type Option func(*Extractor)

// WithLimit caps the number of returned records. Zero or less disables the cap.
func WithLimit(n int) Option {
	return func(e *Extractor) {
		e.limit = n
	}
}

// WithMinTextLength sets the length, in runes, a comment must exceed.
func WithMinTextLength(n int) Option {
	return func(e *Extractor) {
		e.minTextLength = n
	}
}

// WithLogger sets the logger used for per-item skip decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Extractor reads comment records out of a thread document.
type Extractor struct {
	limit         int
	minTextLength int
	logger        *slog.Logger
}

// New creates an Extractor with the default cap and minimum text length.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		limit:         thread.DefaultLimit,
		minTextLength: DefaultMinTextLength,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the ranked comment records found in doc.
//
// The first item is the thread's root post and is never returned. A nil or
// empty document yields an empty, non-nil slice.
func (e *Extractor) Extract(doc *html.Node) ([]thread.Comment, Stats) {
	var stats Stats
	comments := []thread.Comment{}
	if doc == nil {
		return comments, stats
	}

	items := itemSelector.MatchAll(doc)
	seen := make(map[string]struct{}, len(items))

	for i, item := range items {
		if i == 0 {
			continue
		}
		stats.Scanned++

		if !isRendered(item) {
			stats.Hidden++
			continue
		}

		id := itemID(item, i)
		if _, dup := seen[id]; dup {
			stats.Duplicate++
			e.logger.Debug("skipping duplicate comment", "id", id)
			continue
		}
		seen[id] = struct{}{}

		text := strings.TrimSpace(textContent(textSelector.MatchFirst(item)))
		if text == "" {
			if mediaSelector.MatchFirst(item) != nil {
				stats.MediaOnly++
				e.logger.Debug("skipping comment", "id", id, "reason", "media-only")
			} else {
				stats.Empty++
				e.logger.Debug("skipping comment", "id", id, "reason", "empty")
			}
			continue
		}
		if utf8.RuneCountInString(text) <= e.minTextLength {
			stats.Short++
			e.logger.Debug("skipping comment", "id", id, "reason", "short")
			continue
		}

		if isPromoted(item) {
			stats.Promoted++
			e.logger.Debug("skipping comment", "id", id, "reason", "promoted")
			continue
		}

		c := thread.NewComment(id, text, authorName(item),
			ParseCount(textContent(likeSelector.MatchFirst(item))),
			ParseCount(textContent(repostSelector.MatchFirst(item))),
			ParseCount(textContent(replySelector.MatchFirst(item))),
			ParseCount(textContent(viewsSelector.MatchFirst(item))),
		)
		c.Timestamp, c.DisplayTime = itemTime(item)
		comments = append(comments, c)
	}

	ranked := thread.Rank(comments, e.limit)
	stats.Kept = len(ranked)
	e.logger.Info("extracted comments",
		"scanned", stats.Scanned,
		"kept", stats.Kept,
		"hidden", stats.Hidden,
		"duplicate", stats.Duplicate,
		"promoted", stats.Promoted,
		"media_only", stats.MediaOnly,
	)
	return ranked, stats
}

// itemID prefers an explicit item id, then the permalink's status id, then
// the item's position in the document.
func itemID(item *html.Node, position int) string {
	for _, key := range []string{"data-item-id", "data-tweet-id"} {
		if v, ok := attr(item, key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	for _, link := range permalinkSelector.MatchAll(item) {
		href, _ := attr(link, "href")
		if m := statusIDPattern.FindStringSubmatch(href); m != nil {
			return m[1]
		}
	}
	return fmt.Sprintf("comment-%d", position)
}

func authorName(item *html.Node) string {
	if lines := textLines(authorSelector.MatchFirst(item)); len(lines) > 0 {
		return lines[0]
	}
	return "Unknown"
}

// itemTime returns the machine-readable timestamp, normalized to RFC3339 UTC
// when it parses, and the human-readable label.
func itemTime(item *html.Node) (string, string) {
	node := timeSelector.MatchFirst(item)
	if node == nil {
		return "", ""
	}
	raw, _ := attr(node, "datetime")
	raw = strings.TrimSpace(raw)
	display := strings.TrimSpace(textContent(node))
	if raw == "" {
		return "", display
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return raw, display
	}
	return t.UTC().Format(time.RFC3339), display
}

func isPromoted(item *html.Node) bool {
	if promotedSelector.MatchFirst(item) != nil {
		return true
	}
	return hasTextLabel(item, "promoted")
}
