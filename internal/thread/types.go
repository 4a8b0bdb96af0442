// Package thread holds the records extracted from a conversation thread and
// the analysis results built on top of them.
//
// This package enables threadlens to:
// - Represent one extracted comment with its engagement counters
// - Rank comments by engagement and cap the set
// - Keep a lookup table of full records for reconciling identifier-only responses
package thread

// Comment is one extracted reply in a thread.
//
// A Comment is never mutated after extraction; the reconciler attaches a
// category to a copy.
type Comment struct {
	ID              string `json:"id"`
	Text            string `json:"text"`
	Author          string `json:"author"`
	Timestamp       string `json:"timestamp"`
	DisplayTime     string `json:"displayTime,omitempty"`
	Likes           int64  `json:"likes"`
	Reposts         int64  `json:"reposts"`
	Replies         int64  `json:"replies"`
	Views           int64  `json:"views"`
	EngagementScore int64  `json:"engagementScore"`
	Category        string `json:"category,omitempty"`
}

// NewComment returns a Comment with its engagement score computed from the counters.
func NewComment(id, text, author string, likes, reposts, replies, views int64) Comment {
	return Comment{
		ID:              id,
		Text:            text,
		Author:          author,
		Likes:           likes,
		Reposts:         reposts,
		Replies:         replies,
		Views:           views,
		EngagementScore: Engagement(likes, reposts, replies),
	}
}

// Engagement is the ranking score: likes + reposts + replies.
func Engagement(likes, reposts, replies int64) int64 {
	return likes + reposts + replies
}

// WithCategory returns a shallow copy of c tagged with the category name.
func (c Comment) WithCategory(name string) Comment {
	c.Category = name
	return c
}

// Category groups comments the analysis service put under one label.
type Category struct {
	Name     string    `json:"name"`
	Icon     string    `json:"icon,omitempty"`
	Comments []Comment `json:"comments"`
}

// Stats summarizes how many comments went through an analysis.
type Stats struct {
	TotalComments    int `json:"totalComments"`
	FilteredComments int `json:"filteredComments"`
	AnalyzedComments int `json:"analyzedComments"`
}

// Result is the final, reconciled analysis of a thread.
type Result struct {
	Summary    string     `json:"summary"`
	Categories []Category `json:"categories"`
	Stats      Stats      `json:"stats"`
}

// CategorizedCount returns the number of comments placed in categories.
func (r Result) CategorizedCount() int {
	n := 0
	for _, c := range r.Categories {
		n += len(c.Comments)
	}
	return n
}
