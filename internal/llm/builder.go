package llm

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gauthierbraillon/threadlens/internal/thread"
)

const (
	DefaultModel       = "gpt-4"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2000

	// maxTextRunes is how much of each comment is sent to the service.
	maxTextRunes = 280
)

const systemInstructions = `You are an expert at analyzing social media comments. Analyze the provided X/Twitter thread comments and provide:
1. A concise summary (2-3 sentences)
2. Categories of comments (e.g., "Support", "Questions", "Criticism", "Off-topic", "Bot/Spam")
3. Identification of potential bots, trolls and other low-quality or automated content
4. Key insights and sentiment

IMPORTANT: Refer to comments by their ID only. Do not repeat their text or author.

Return JSON only, with no prose and no code fences, using these fields:
- summary: string
- categories: array of {name, icon, comments} where comments is an array of {id}
- filteredCount: number (bots/trolls filtered)
- analyzedCount: number (total analyzed)`

// Settings is the per-run configuration of the analysis service.
type Settings struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Request is a ready-to-send analysis request. Index holds the full records
// the service will refer to by identifier; it never leaves the process.
type Request struct {
	URL    string
	Header http.Header
	Body   []byte
	Index  *thread.Index
}

// Builder turns a comment set into an analysis Request.
type Builder struct {
	settings Settings
}

// NewBuilder creates a Builder, filling unset model parameters with defaults.
func NewBuilder(settings Settings) *Builder {
	if settings.Model == "" {
		settings.Model = DefaultModel
	}
	if settings.Temperature == 0 {
		settings.Temperature = DefaultTemperature
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = DefaultMaxTokens
	}
	return &Builder{settings: settings}
}

// Settings returns the effective settings.
func (b *Builder) Settings() Settings {
	return b.settings
}

// Build serializes comments into a chat-completions request.
func (b *Builder) Build(comments []thread.Comment) (*Request, error) {
	url, err := ResolveEndpoint(b.settings.Endpoint)
	if err != nil {
		return nil, err
	}

	payload := chatRequest{
		Model: b.settings.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstructions},
			{Role: "user", Content: userContent(comments)},
		},
		Temperature: b.settings.Temperature,
		MaxTokens:   b.settings.MaxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode analysis request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	if b.settings.APIKey != "" {
		header.Set("Authorization", "Bearer "+b.settings.APIKey)
	}

	return &Request{
		URL:    url,
		Header: header,
		Body:   body,
		Index:  thread.NewIndex(comments),
	}, nil
}

func userContent(comments []thread.Comment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze these %d comments from an X/Twitter thread:\n\n", len(comments))
	for i, c := range comments {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(CompactLine(c))
	}
	return b.String()
}

// CompactLine is the outbound form of one comment: identifier, author, a
// truncated single-line text and the engagement counters.
func CompactLine(c thread.Comment) string {
	return fmt.Sprintf("ID:%s | %s: %q (Likes: %d, Reposts: %d, Replies: %d)",
		c.ID, c.Author, truncate(strings.Join(strings.Fields(c.Text), " "), maxTextRunes),
		c.Likes, c.Reposts, c.Replies)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}
