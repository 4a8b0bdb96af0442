package thread

import "sort"

// DefaultLimit caps how many comments are kept for one analysis.
const DefaultLimit = 35

// Rank returns comments ordered by engagement score, highest first, truncated
// to limit. Ties keep their original order. A limit <= 0 keeps everything.
// The input slice is not modified.
func Rank(comments []Comment, limit int) []Comment {
	ranked := make([]Comment, len(comments))
	copy(ranked, comments)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].EngagementScore > ranked[j].EngagementScore
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
