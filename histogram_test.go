package cktools

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCategoryHistogram(t *testing.T) {
	h := NewCategoryHistogram()
	require.True(t, h.Register(5, "five"))
	require.True(t, h.Register(2, "two"))
	require.False(t, h.Register(5, "other"))
	h.Add(5, 3)
	h.Add(2, 1)
	h.Add(5, 1)
	h.Add(7, 10) // Not registered.

	require.Equal(t, []int64{5, 2}, h.IDs())
	require.Equal(t, 2, h.Len())
	require.Equal(t, 5, h.Total())
	require.False(t, h.Has(7))

	e, ok := h.Get(5)
	require.True(t, ok)
	require.Equal(t, CategoryCount{Name: "five", Count: 4}, e)
	_, ok = h.Get(7)
	require.False(t, ok)
}

func TestHistogramSummary(t *testing.T) {
	h := NewCategoryHistogram()
	for id, n := range []int{150, 50, 200} {
		h.Register(int64(id+1), "")
		h.Add(int64(id+1), n)
	}

	s := h.Summary()
	require.Equal(t, 3, s.Categories)
	require.Equal(t, 400, s.Total)
	require.InDelta(t, 133.333, s.Mean, 1e-3)
	require.InDelta(t, 76.376, s.StdDev, 1e-3)
	require.Equal(t, 150.0, s.Median)
	require.Equal(t, 50, s.Min)
	require.Equal(t, 200, s.Max)
}

func TestHistogramSummaryEdgeCases(t *testing.T) {
	require.Equal(t, HistogramSummary{}, NewCategoryHistogram().Summary())

	h := NewCategoryHistogram()
	h.Register(1, "only")
	h.Add(1, 7)
	s := h.Summary()
	require.Equal(t, 7.0, s.Mean)
	require.Equal(t, 0.0, s.StdDev)
	require.Equal(t, 7.0, s.Median)
}

func TestRekeyed(t *testing.T) {
	h := NewCategoryHistogram()
	for _, id := range []int64{8, 3, 6} {
		h.Register(id, itoa(id))
		h.Add(id, int(id))
	}
	r := Refine(h, 5).Rekeyed()

	require.Equal(t, []int64{1, 2}, r.IDs())
	e, _ := r.Get(2)
	require.Equal(t, CategoryCount{Name: "6", Count: 6, ID: 2}, e)
}
