package extractor

import (
	"context"
	"fmt"

	"github.com/gauthierbraillon/threadlens/internal/page"
	"github.com/gauthierbraillon/threadlens/internal/thread"
)

// PageSource extracts comments from a fresh snapshot of a page on every call.
type PageSource struct {
	Loader    page.Loader
	Extractor *Extractor
}

// Comments loads the page and extracts its ranked comments.
func (s PageSource) Comments(ctx context.Context) ([]thread.Comment, error) {
	doc, err := s.Loader.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread page: %w", err)
	}
	ex := s.Extractor
	if ex == nil {
		ex = New()
	}
	comments, _ := ex.Extract(doc)
	return comments, nil
}
