// Package charts renders ledger reports as PNG images.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/wcharczuk/go-chart/v2"

	"ledger/internal/core"
)

// ErrNoData is returned when a report has no bars to draw.
var ErrNoData = errors.New("no data to chart")

// PNGSignature starts every rendered image.
var PNGSignature = []byte("\x89PNG\r\n\x1a\n")

var titles = map[core.EntryType]string{
	core.Expense: "Despesas por categoria",
	core.Revenue: "Receitas por categoria",
}

// CategoryTotals draws one bar per category total.
func CategoryTotals(kind core.EntryType, totals []core.CategoryAmount) ([]byte, error) {
	if len(totals) == 0 {
		return nil, ErrNoData
	}

	color := chart.ColorRed
	if kind == core.Revenue {
		color = chart.ColorGreen
	}

	bars := make([]chart.Value, 0, len(totals))
	top := 0.0
	for _, t := range totals {
		v := t.Amount.Float()
		if v > top {
			top = v
		}
		bars = append(bars, chart.Value{
			Label: fmt.Sprintf("%s: %s", label(t), t.Amount),
			Value: v,
			Style: chart.Style{
				StrokeColor: color,
				FillColor:   color.WithAlpha(180),
				FontSize:    10,
				FontColor:   chart.ColorBlack,
			},
		})
	}
	if top <= 0 {
		top = 1
	}

	graph := chart.BarChart{
		Title:      titles[kind],
		TitleStyle: chart.Style{FontSize: 14, FontColor: chart.ColorBlack},
		Width:      200 + 120*len(bars),
		Height:     500,
		BarWidth:   60,
		BarSpacing: 40,
		Background: chart.Style{
			Padding:   chart.Box{Top: 50, Left: 30, Right: 30, Bottom: 30},
			FillColor: chart.ColorWhite,
		},
		YAxis: chart.YAxis{
			// An explicit range keeps single-bar charts drawable.
			Range: &chart.ContinuousRange{Min: 0, Max: top * 1.1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return strconv.FormatFloat(f, 'f', 2, 64)
				}
				return ""
			},
			Style: chart.Style{FontSize: 10, FontColor: chart.ColorBlack},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render %s chart: %w", kind, err)
	}
	return buf.Bytes(), nil
}

func label(t core.CategoryAmount) string {
	if t.Name != "" {
		return t.Name
	}
	return "#" + strconv.FormatInt(t.CategoryID, 10)
}
