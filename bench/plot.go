package bench

import (
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// WriteChart draws mean latency per operation as grouped bars, one group per
// operation and one bar per structure/config, and saves it to path. The
// image format follows the file extension.
func WriteChart(results []BenchResult, path string) error {
	if len(results) == 0 {
		return errors.New("bench: no results to plot")
	}

	var ops, series []string
	for _, r := range results {
		if !slices.Contains(ops, r.Operation) {
			ops = append(ops, r.Operation)
		}
		if name := seriesName(r); !slices.Contains(series, name) {
			series = append(series, name)
		}
	}

	p := plot.New()
	p.Title.Text = "Mean latency per operation"
	p.Y.Label.Text = "ns/op"
	p.Legend.Top = true

	w := vg.Points(60 / float64(len(series)))
	for i, name := range series {
		vals := make(plotter.Values, len(ops))
		for _, r := range results {
			if seriesName(r) == name {
				vals[slices.Index(ops, r.Operation)] = float64(r.LatencyNs)
			}
		}
		bars, err := plotter.NewBarChart(vals, w)
		if err != nil {
			return errors.Wrap(err, "bench: bar chart")
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		bars.Offset = w * vg.Length(float64(i)-float64(len(series)-1)/2)
		p.Add(bars)
		p.Legend.Add(name, bars)
	}
	p.NominalX(ops...)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return errors.Wrap(err, "bench: save chart")
	}
	return nil
}

func seriesName(r BenchResult) string {
	if r.Config == "" {
		return r.Name
	}
	return r.Name + " " + r.Config
}
