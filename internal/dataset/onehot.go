package dataset

import (
	"sort"
	"strconv"
)

// OneHot maps a categorical value to an indicator vector over the categories
// observed at fit time. Categories are sorted when fitted (numerically when
// Numeric is set) so the encoding is reproducible regardless of row order.
// Unknown values transform to an all-zero vector rather than failing.
//
// Fields are exported for JSON persistence; callers that restore an encoder
// rebuild the lookup index before use so Transform stays read-only and safe
// for concurrent callers.
type OneHot struct {
	Categories []string `json:"categories"`
	Numeric    bool     `json:"numeric"`

	index map[string]int
}

// NewOneHot returns an unfitted encoder. Numeric encoders sort their
// categories by integer value instead of lexically.
func NewOneHot(numeric bool) *OneHot {
	return &OneHot{Numeric: numeric}
}

// Fit records the distinct values as the encoder's category set.
func (e *OneHot) Fit(values []string) {
	seen := make(map[string]struct{}, len(values))
	cats := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			cats = append(cats, v)
		}
	}
	if e.Numeric {
		sort.Slice(cats, func(i, j int) bool {
			a, _ := strconv.Atoi(cats[i])
			b, _ := strconv.Atoi(cats[j])
			return a < b
		})
	} else {
		sort.Strings(cats)
	}
	e.Categories = cats
	e.rebuildIndex()
}

// rebuildIndex derives the lookup index from Categories. Called at the end
// of Fit and after JSON restore; Transform never mutates the encoder.
func (e *OneHot) rebuildIndex() {
	e.index = make(map[string]int, len(e.Categories))
	for i, c := range e.Categories {
		e.index[c] = i
	}
}

// Fitted reports whether the encoder has a category set.
func (e *OneHot) Fitted() bool {
	return len(e.Categories) > 0
}

// Transform returns the one-hot vector for value. The vector length always
// equals the fitted category count; unseen values yield all zeros.
func (e *OneHot) Transform(value string) []float64 {
	out := make([]float64, len(e.Categories))
	if i, ok := e.index[value]; ok {
		out[i] = 1
	}
	return out
}
