package cktools

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CategoryCount is a category histogram entry.
type CategoryCount struct {
	Name  string
	Count int
	ID    int64 // The refined sequential id, zero until the histogram is refined.
}

// CategoryHistogram counts annotations per original category id. Iteration follows the order in
// which categories were first registered.
type CategoryHistogram struct {
	ids     []int64
	entries map[int64]*CategoryCount
}

// NewCategoryHistogram returns an empty histogram.
func NewCategoryHistogram() *CategoryHistogram {
	return &CategoryHistogram{entries: make(map[int64]*CategoryCount)}
}

// newHistogramFromCategories registers every category with a count of zero.
func newHistogramFromCategories(categories []Category) *CategoryHistogram {
	h := NewCategoryHistogram()
	for _, c := range categories {
		h.Register(c.ID, c.Name)
	}
	return h
}

// Register adds the category with a count of zero. It returns false, and changes nothing, if the
// id is already present.
func (h *CategoryHistogram) Register(id int64, name string) bool {
	if _, ok := h.entries[id]; ok {
		return false
	}
	h.ids = append(h.ids, id)
	h.entries[id] = &CategoryCount{Name: name}
	return true
}

// Add adds n to the count of a registered category.
func (h *CategoryHistogram) Add(id int64, n int) {
	if e, ok := h.entries[id]; ok {
		e.Count += n
	}
}

// Get returns a copy of the entry for the original category id.
func (h *CategoryHistogram) Get(id int64) (CategoryCount, bool) {
	e, ok := h.entries[id]
	if !ok {
		return CategoryCount{}, false
	}
	return *e, true
}

// Has reports whether the original category id is present.
func (h *CategoryHistogram) Has(id int64) bool {
	_, ok := h.entries[id]
	return ok
}

// IDs returns the original category ids in histogram order.
func (h *CategoryHistogram) IDs() []int64 {
	return append([]int64(nil), h.ids...)
}

// Len returns the number of categories.
func (h *CategoryHistogram) Len() int {
	return len(h.ids)
}

// Total returns the sum of all counts.
func (h *CategoryHistogram) Total() int {
	total := 0
	for _, e := range h.entries {
		total += e.Count
	}
	return total
}

// Rekeyed returns a histogram keyed by the refined ids, each mapping to itself. Reindexing a
// dataset that has already been reindexed with h, using h.Rekeyed(), leaves it unchanged.
func (h *CategoryHistogram) Rekeyed() *CategoryHistogram {
	r := NewCategoryHistogram()
	for _, id := range h.ids {
		e := h.entries[id]
		if e.ID == 0 {
			continue
		}
		r.ids = append(r.ids, e.ID)
		r.entries[e.ID] = &CategoryCount{Name: e.Name, Count: e.Count, ID: e.ID}
	}
	return r
}

// HistogramSummary holds descriptive statistics of the per category counts.
type HistogramSummary struct {
	Categories int
	Total      int
	Mean       float64
	StdDev     float64
	Median     float64
	Min        int
	Max        int
}

// Summary computes descriptive statistics of the counts.
func (h *CategoryHistogram) Summary() HistogramSummary {
	s := HistogramSummary{Categories: len(h.ids)}
	if len(h.ids) == 0 {
		return s
	}

	counts := make([]float64, len(h.ids))
	for i, id := range h.ids {
		counts[i] = float64(h.entries[id].Count)
	}
	s.Total = int(floats.Sum(counts))
	s.Min = int(floats.Min(counts))
	s.Max = int(floats.Max(counts))
	s.Mean, s.StdDev = stat.MeanStdDev(counts, nil)
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}

	sort.Float64s(counts)
	s.Median = stat.Quantile(0.5, stat.Empirical, counts, nil)

	return s
}
