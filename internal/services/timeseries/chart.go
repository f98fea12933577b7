package timeseries

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/bobmcallan/folio/internal/models"
)

// ErrNotEnoughPoints is returned when a series is too short to draw.
var ErrNotEnoughPoints = errors.New("need at least 2 data points")

// tickFormat picks an x-axis label layout for a timeframe.
func tickFormat(tf models.Timeframe) string {
	switch tf {
	case models.Timeframe1D:
		return "15:04"
	case models.Timeframe1W:
		return "Mon 15h"
	case models.Timeframe1M, models.Timeframe3M:
		return "Jan 02"
	default:
		return "Jan 06"
	}
}

// RenderChart writes a PNG line chart of a resampled series to w.
// Series carrying prices get a second, dashed line on its own axis.
func RenderChart(w io.Writer, title string, tf models.Timeframe, series iter.Seq[models.TimeSeriesPoint]) error {
	var (
		xValues []time.Time
		valueY  []float64
		priceY  []float64
	)
	for p := range series {
		xValues = append(xValues, p.Timestamp)
		valueY = append(valueY, p.Value.InexactFloat64())
		if p.Price != nil {
			priceY = append(priceY, p.Price.InexactFloat64())
		}
	}
	if len(xValues) < 2 {
		return fmt.Errorf("%w, got %d", ErrNotEnoughPoints, len(xValues))
	}

	valueSeries := chart.TimeSeries{
		Name: "Value",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"), // blue-600
			StrokeWidth: 2.5,
		},
		XValues: xValues,
		YValues: valueY,
	}
	lines := []chart.Series{valueSeries}

	if len(priceY) == len(xValues) {
		lines = append(lines, chart.TimeSeries{
			Name: "Price",
			Style: chart.Style{
				StrokeColor:     drawing.ColorFromHex("9ca3af"), // gray-400
				StrokeWidth:     1.5,
				StrokeDashArray: []float64{5.0, 3.0},
			},
			YAxis:   chart.YAxisSecondary,
			XValues: xValues,
			YValues: priceY,
		})
	}

	layout := tickFormat(tf)
	money := func(v interface{}) string {
		if f, ok := v.(float64); ok {
			if f >= 10000 || f <= -10000 {
				return fmt.Sprintf("$%.0fk", f/1000)
			}
			return fmt.Sprintf("$%.2f", f)
		}
		return ""
	}

	graph := chart.Chart{
		Title:  title,
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format(layout)
				}
				return ""
			},
		},
		YAxis:          chart.YAxis{ValueFormatter: money},
		YAxisSecondary: chart.YAxis{ValueFormatter: money},
		Series:         lines,
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("chart render failed: %w", err)
	}
	return nil
}
