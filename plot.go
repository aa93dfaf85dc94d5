package cktools

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotHistogram writes a bar chart of the category counts to path. The image format follows
// the file extension (png, svg, pdf, ...).
func PlotHistogram(h *CategoryHistogram, path string) error {
	if h.Len() == 0 {
		return fmt.Errorf("cannot plot an empty histogram")
	}

	values := make(plotter.Values, 0, h.Len())
	names := make([]string, 0, h.Len())
	for _, id := range h.ids {
		e := h.entries[id]
		values = append(values, float64(e.Count))
		names = append(names, e.Name)
	}

	p := plot.New()
	p.Title.Text = "Annotations per category"
	p.Y.Label.Text = "Annotations"

	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return err
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(names...)

	// Grow the plot with the number of categories.
	width := vg.Length(h.Len())*vg.Points(18) + 2*vg.Inch
	if width < 6*vg.Inch {
		width = 6 * vg.Inch
	}
	if err := p.Save(width, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save the histogram plot %q: %w", path, err)
	}
	return nil
}
