// Package reconcile maps an analysis service's response back onto the
// locally cached comment records.
//
// The service is only trusted for identifiers. Every comment in the result
// is a copy of the cached record, never text echoed back by the service.
package reconcile

import (
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/gauthierbraillon/threadlens/internal/thread"
)

const (
	FallbackCategory = "All Comments"
	FallbackSize     = 10

	defaultSummary  = "Analysis completed"
	defaultCategory = "Uncategorized"
)

// Option configures the Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger used to report dropped references.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Reconciler builds analysis results from raw responses.
type Reconciler struct {
	logger *slog.Logger
}

// New creates a Reconciler.
func New(opts ...Option) *Reconciler {
	r := &Reconciler{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile turns raw into a Result over the records in idx. It never fails:
// a response that cannot be parsed degrades to its text as the summary and a
// single fallback category.
func (r *Reconciler) Reconcile(raw []byte, idx *thread.Index) thread.Result {
	p := Decode(raw)
	if p.Structured == nil {
		r.logger.Warn("analysis response is not structured, using fallback", "shape", p.Shape.String())
		return degraded(p.Text, idx)
	}

	data := p.Structured
	summary, _ := jsonparser.GetString(data, "summary")
	if strings.TrimSpace(summary) == "" {
		summary = defaultSummary
	}

	categories := make([]thread.Category, 0)
	_, _ = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Object {
			return
		}
		if cat, ok := r.resolveCategory(value, idx); ok {
			categories = append(categories, cat)
		}
	}, "categories")

	if len(categories) == 0 {
		categories = append(categories, fallback(idx))
	}

	analyzed := count(data, "analyzedCount")
	if analyzed <= 0 {
		analyzed = idx.Len()
	}
	filtered := count(data, "filteredCount")
	if filtered < 0 {
		filtered = 0
	}

	return thread.Result{
		Summary:    summary,
		Categories: categories,
		Stats: thread.Stats{
			TotalComments:    idx.Len(),
			FilteredComments: filtered,
			AnalyzedComments: analyzed,
		},
	}
}

func (r *Reconciler) resolveCategory(data []byte, idx *thread.Index) (thread.Category, bool) {
	name, _ := jsonparser.GetString(data, "name")
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultCategory
	}
	icon, _ := jsonparser.GetString(data, "icon")

	cat := thread.Category{Name: name, Icon: icon, Comments: []thread.Comment{}}
	seen := make(map[string]struct{})
	add := func(id string) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		c, ok := idx.Lookup(id)
		if !ok {
			r.logger.Warn("dropping unknown comment reference", "id", id, "category", name)
			return
		}
		cat.Comments = append(cat.Comments, c.WithCategory(name))
	}

	for _, key := range []string{"comments", "comment_ids"} {
		_, _ = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
			add(refID(value, dataType))
		}, key)
	}

	if len(cat.Comments) == 0 {
		r.logger.Debug("dropping empty category", "category", name)
		return thread.Category{}, false
	}
	return cat, true
}

// refID reads a comment reference: an object with an id field, or the id
// itself as a string or number.
func refID(value []byte, dataType jsonparser.ValueType) string {
	switch dataType {
	case jsonparser.Object:
		v, t, _, err := jsonparser.Get(value, "id")
		if err != nil {
			return ""
		}
		return refID(v, t)
	case jsonparser.String:
		s, err := jsonparser.ParseString(value)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case jsonparser.Number:
		return string(value)
	default:
		return ""
	}
}

// count reads an integer field that the service may send as a number or a
// numeric string. Missing or unreadable values are 0.
func count(data []byte, key string) int {
	v, t, _, err := jsonparser.Get(data, key)
	if err != nil {
		return 0
	}
	s := string(v)
	if t == jsonparser.String {
		s = strings.TrimSpace(s)
	} else if t != jsonparser.Number {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func fallback(idx *thread.Index) thread.Category {
	return thread.Category{Name: FallbackCategory, Comments: idx.First(FallbackSize)}
}

func degraded(text string, idx *thread.Index) thread.Result {
	summary := strings.TrimSpace(text)
	if summary == "" {
		summary = defaultSummary
	}
	return thread.Result{
		Summary:    summary,
		Categories: []thread.Category{fallback(idx)},
		Stats: thread.Stats{
			TotalComments:    idx.Len(),
			FilteredComments: 0,
			AnalyzedComments: idx.Len(),
		},
	}
}
