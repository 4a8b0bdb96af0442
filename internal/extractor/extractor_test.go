package extractor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/gauthierbraillon/threadlens/internal/page"
)

const rootPost = `<article data-testid="tweet" data-item-id="root">
<div data-testid="User-Name"><span>Original Poster</span></div>
<div data-testid="tweetText">This is the root post of the thread</div>
</article>`

type item struct {
	id      string
	author  string
	text    string
	likes   string
	reposts string
	replies string
	extra   string
	attrs   string
}

func (it item) html() string {
	var b strings.Builder
	b.WriteString(`<article data-testid="tweet"`)
	if it.id != "" {
		fmt.Fprintf(&b, ` data-item-id="%s"`, it.id)
	}
	if it.attrs != "" {
		b.WriteString(" " + it.attrs)
	}
	b.WriteString(">")
	if it.author != "" {
		fmt.Fprintf(&b, `<div data-testid="User-Name"><span>%s</span><span>@handle</span></div>`, it.author)
	}
	if it.text != "" {
		fmt.Fprintf(&b, `<div data-testid="tweetText"><span>%s</span></div>`, it.text)
	}
	fmt.Fprintf(&b, `<div role="group"><button data-testid="reply">%s</button><button data-testid="retweet">%s</button><button data-testid="like">%s</button></div>`,
		it.replies, it.reposts, it.likes)
	b.WriteString(it.extra)
	b.WriteString("</article>")
	return b.String()
}

func parseThread(t *testing.T, items ...string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader("<html><body><main>" + rootPost + strings.Join(items, "") + "</main></body></html>"))
	require.NoError(t, err)
	return doc
}

func ids(t *testing.T, doc *html.Node, opts ...Option) []string {
	t.Helper()
	comments, _ := New(opts...).Extract(doc)
	out := make([]string, 0, len(comments))
	for _, c := range comments {
		out = append(out, c.ID)
	}
	return out
}

func TestExtract_RanksByEngagementAndSkipsRootPost(t *testing.T) {
	doc := parseThread(t,
		item{id: "1", author: "Alice", text: "A quiet but thoughtful reply", likes: "3"}.html(),
		item{id: "2", author: "Bob", text: "The reply everybody loved", likes: "1.2K", reposts: "40", replies: "12"}.html(),
		item{id: "3", author: "Carol", text: "Somewhere in the middle", likes: "50"}.html(),
	)

	comments, stats := New().Extract(doc)

	require.Len(t, comments, 3)
	assert.Equal(t, []string{"2", "3", "1"}, []string{comments[0].ID, comments[1].ID, comments[2].ID})
	assert.Equal(t, int64(1200), comments[0].Likes)
	assert.Equal(t, int64(40), comments[0].Reposts)
	assert.Equal(t, int64(12), comments[0].Replies)
	assert.Equal(t, int64(1252), comments[0].EngagementScore)
	assert.Equal(t, "Bob", comments[0].Author)
	assert.Equal(t, "The reply everybody loved", comments[0].Text)
	assert.Equal(t, 3, stats.Scanned)
	assert.Equal(t, 3, stats.Kept)
}

func TestExtract_DeduplicatesByID(t *testing.T) {
	doc := parseThread(t,
		item{id: "7", author: "Alice", text: "First render of the reply", likes: "5"}.html(),
		item{id: "7", author: "Alice", text: "Second render of the reply", likes: "500"}.html(),
		item{id: "8", author: "Dan", text: "Unrelated reply text here"}.html(),
	)

	comments, stats := New().Extract(doc)

	require.Len(t, comments, 2)
	assert.Equal(t, "First render of the reply", comments[0].Text)
	assert.Equal(t, 1, stats.Duplicate)
}

func TestExtract_SkipsHiddenItems(t *testing.T) {
	doc := parseThread(t,
		`<div style="display: none">`+item{id: "h1", text: "Hidden by parent display"}.html()+`</div>`,
		item{id: "h2", text: "Hidden by visibility rule", attrs: `style="visibility:hidden"`}.html(),
		item{id: "h3", text: "Hidden by zero opacity", attrs: `style="opacity: 0"`}.html(),
		item{id: "h4", text: "Hidden by attribute flag", attrs: `hidden`}.html(),
		item{id: "h5", text: "Hidden from accessibility", attrs: `aria-hidden="true"`}.html(),
		item{id: "v1", text: "This one is on screen", attrs: `style="opacity: 1"`}.html(),
	)

	comments, stats := New().Extract(doc)

	require.Len(t, comments, 1)
	assert.Equal(t, "v1", comments[0].ID)
	assert.Equal(t, 5, stats.Hidden)
}

func TestExtract_SkipsPromotedItems(t *testing.T) {
	doc := parseThread(t,
		item{id: "p1", text: "Buy our product right now", extra: `<div data-testid="placementTracking"></div>`}.html(),
		item{id: "p2", text: "Another sponsored message", extra: `<span>Promoted</span>`}.html(),
		item{id: "p3", text: "Marked through attribute", attrs: `data-promoted="true"`}.html(),
		item{id: "ok", text: "This reply was promoted to the top by votes"}.html(),
	)

	got := ids(t, doc)

	assert.Equal(t, []string{"ok"}, got)
}

func TestExtract_ExcludesMediaOnlyAndShortItems(t *testing.T) {
	doc := parseThread(t,
		item{id: "m1", extra: `<div data-testid="tweetPhoto"><img src="https://pbs.twimg.com/media/abc.jpg"></div>`}.html(),
		item{id: "e1"}.html(),
		item{id: "s1", text: "lol"}.html(),
		item{id: "ok", text: "Long enough to count"}.html(),
	)

	comments, stats := New().Extract(doc)

	require.Len(t, comments, 1)
	assert.Equal(t, "ok", comments[0].ID)
	assert.Equal(t, 1, stats.MediaOnly)
	assert.Equal(t, 1, stats.Empty)
	assert.Equal(t, 1, stats.Short)
}

func TestExtract_MinTextLengthOption(t *testing.T) {
	doc := parseThread(t, item{id: "s1", text: "lol"}.html())

	assert.Empty(t, ids(t, doc))
	assert.Equal(t, []string{"s1"}, ids(t, doc, WithMinTextLength(1)))
}

func TestExtract_TextMustExceedMinimumLength(t *testing.T) {
	doc := parseThread(t,
		item{id: "ten", text: "ten runes!"}.html(),
		item{id: "eleven", text: "eleven rune"}.html(),
		item{id: "accents", text: "café crème"}.html(),
	)

	comments, stats := New().Extract(doc)

	require.Len(t, comments, 1)
	assert.Equal(t, "eleven", comments[0].ID)
	assert.Equal(t, 2, stats.Short)
}

func TestExtract_CapsResultAndKeepsScoresNonIncreasing(t *testing.T) {
	items := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		items = append(items, item{
			id:    fmt.Sprintf("c%d", i),
			text:  fmt.Sprintf("Reply number %d in the thread", i),
			likes: fmt.Sprintf("%d", (i*17)%23),
		}.html())
	}
	doc := parseThread(t, items...)

	comments, _ := New().Extract(doc)

	require.Len(t, comments, 35)
	for i := 1; i < len(comments); i++ {
		assert.LessOrEqual(t, comments[i].EngagementScore, comments[i-1].EngagementScore)
	}

	assert.Len(t, ids(t, doc, WithLimit(5)), 5)
	assert.Len(t, ids(t, doc, WithLimit(0)), 60)
}

func TestExtract_DerivesIdentifiers(t *testing.T) {
	doc := parseThread(t,
		item{text: "Identified by permalink", extra: `<a href="/someone/status/1790000000000000001"><time datetime="2024-03-01T12:30:00.000Z">Mar 1</time></a>`}.html(),
		item{text: "Identified by position only"}.html(),
		item{text: "Identified by tweet id attr", attrs: `data-tweet-id="99"`}.html(),
	)

	got := ids(t, doc)

	assert.ElementsMatch(t, []string{"1790000000000000001", "comment-2", "99"}, got)
}

func TestExtract_NormalizesTimestampAndAuthor(t *testing.T) {
	doc := parseThread(t,
		item{id: "t1", author: "Alice Example", text: "Reply with a timestamp",
			extra: `<a href="/alice/status/1"><time datetime="2024-03-01T12:30:00.000Z">Mar 1</time></a>`}.html(),
		item{id: "t2", text: "Reply without an author block"}.html(),
	)

	comments, _ := New().Extract(doc)
	require.Len(t, comments, 2)

	byID := map[string]int{comments[0].ID: 0, comments[1].ID: 1}
	withTime := comments[byID["t1"]]
	assert.Equal(t, "2024-03-01T12:30:00Z", withTime.Timestamp)
	assert.Equal(t, "Mar 1", withTime.DisplayTime)
	assert.Equal(t, "Alice Example", withTime.Author)
	assert.Equal(t, "Unknown", comments[byID["t2"]].Author)
}

func TestExtract_ViewsDoNotCountTowardsEngagement(t *testing.T) {
	doc := parseThread(t,
		item{id: "v", text: "Seen by many people", likes: "2",
			extra: `<a href="/someone/status/5/analytics"><span>5M</span></a>`}.html(),
	)

	comments, _ := New().Extract(doc)

	require.Len(t, comments, 1)
	assert.Equal(t, int64(5000000), comments[0].Views)
	assert.Equal(t, int64(2), comments[0].EngagementScore)
}

func TestExtract_EmptyDocument(t *testing.T) {
	comments, stats := New().Extract(nil)
	assert.NotNil(t, comments)
	assert.Empty(t, comments)
	assert.Zero(t, stats.Scanned)

	comments, _ = New().Extract(parseThread(t))
	assert.Empty(t, comments)
}

func TestPageSource_ReadsFreshSnapshot(t *testing.T) {
	raw := "<html><body>" + rootPost + item{id: "1", text: "Reply delivered from stdin"}.html() + "</body></html>"
	src := PageSource{Loader: page.ReaderLoader{Data: []byte(raw)}, Extractor: New()}

	comments, err := src.Comments(context.Background())

	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "1", comments[0].ID)
}

func TestPageSource_PropagatesLoadErrors(t *testing.T) {
	src := PageSource{Loader: page.FileLoader{Path: "/nonexistent/thread.html"}}

	_, err := src.Comments(context.Background())

	assert.Error(t, err)
}
