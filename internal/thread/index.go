package thread

// Index is the lookup table from comment ID to the full record.
//
// It is filled once before a request is dispatched and only read while the
// response is reconciled, so content echoed back by the analysis service never
// replaces what was extracted.
type Index struct {
	order []string
	byID  map[string]Comment
}

// NewIndex builds an Index over comments. The first occurrence of an ID wins.
func NewIndex(comments []Comment) *Index {
	idx := &Index{
		order: make([]string, 0, len(comments)),
		byID:  make(map[string]Comment, len(comments)),
	}
	for _, c := range comments {
		if _, seen := idx.byID[c.ID]; seen {
			continue
		}
		idx.order = append(idx.order, c.ID)
		idx.byID[c.ID] = c
	}
	return idx
}

// Lookup returns the record stored under id.
func (idx *Index) Lookup(id string) (Comment, bool) {
	if idx == nil {
		return Comment{}, false
	}
	c, ok := idx.byID[id]
	return c, ok
}

// Len returns the number of records in the index.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.order)
}

// First returns up to n records in insertion order.
func (idx *Index) First(n int) []Comment {
	if idx == nil {
		return []Comment{}
	}
	if n > len(idx.order) || n < 0 {
		n = len(idx.order)
	}
	out := make([]Comment, 0, n)
	for _, id := range idx.order[:n] {
		out = append(out, idx.byID[id])
	}
	return out
}

// Comments returns every record in insertion order.
func (idx *Index) Comments() []Comment {
	return idx.First(idx.Len())
}
