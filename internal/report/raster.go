package report

import (
	"bytes"
	"context"
	"fmt"

	chart "github.com/wcharczuk/go-chart/v2"
)

type Rasterizer interface {
	Rasterize(ctx context.Context, w Widget) ([]byte, error)
}

// ChartRasterizer draws widgets to PNG with go-chart.
type ChartRasterizer struct{}

func (ChartRasterizer) Rasterize(ctx context.Context, w Widget) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	width, height := w.Width, w.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 512
	}
	var buf bytes.Buffer
	switch {
	case len(w.Bars) > 0:
		bars := make([]chart.Value, len(w.Bars))
		for i, b := range w.Bars {
			bars[i] = chart.Value{Label: b.Label, Value: b.Value}
		}
		graph := chart.BarChart{
			Title:      w.Title,
			Background: chart.Style{Padding: chart.Box{Top: 40}},
			Width:      width,
			Height:     height,
			BarWidth:   max(20, width/(2*len(bars)+1)),
			BarSpacing: 20,
			Bars:       bars,
		}
		if err := graph.Render(chart.PNG, &buf); err != nil {
			return nil, fmt.Errorf("render %s: %w", w.ID, err)
		}
	case len(w.Series) > 0:
		series := make([]chart.Series, 0, len(w.Series))
		for _, s := range w.Series {
			series = append(series, chart.TimeSeries{Name: s.Name, XValues: s.Times, YValues: s.Values})
		}
		graph := chart.Chart{
			Title:      w.Title,
			Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20}},
			Width:      width,
			Height:     height,
			XAxis:      chart.XAxis{ValueFormatter: chart.TimeValueFormatterWithFormat("01/02")},
			Series:     series,
		}
		graph.Elements = []chart.Renderable{chart.Legend(&graph)}
		if err := graph.Render(chart.PNG, &buf); err != nil {
			return nil, fmt.Errorf("render %s: %w", w.ID, err)
		}
	default:
		return nil, fmt.Errorf("widget %s has no data", w.ID)
	}
	return buf.Bytes(), nil
}
