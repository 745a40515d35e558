// Package report renders the end-of-session HTML report: the equity
// curve over closed trades and the per-bar delta history.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"tapeflow/internal/execution"
	"tapeflow/internal/logger"
	"tapeflow/internal/types"
)

const (
	colorBull  = "#34d399"
	colorBear  = "#f87171"
	colorCurve = "#3b82f6"

	chartWidth  = "1400px"
	chartHeight = "420px"
)

// Input carries everything the report needs.
type Input struct {
	Session *execution.Session
	Trades  []*execution.Trade
	Bars    []*types.FootprintBar
	Stats   execution.Stats
}

// Generate writes the report into dir and returns the file path.
func Generate(dir string, in Input) (string, error) {
	if in.Session == nil {
		return "", fmt.Errorf("report: session is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create dir: %w", err)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(equityChart(in), deltaChart(in.Bars))

	name := fmt.Sprintf("session_%s_%s.html", in.Session.Symbol, time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("report: create file: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("report: render: %w", err)
	}
	logger.Infof("report: wrote %s (%d trades, %d bars)", path, len(in.Trades), len(in.Bars))
	return path, nil
}

func equityChart(in Input) *charts.Line {
	line := charts.NewLine()
	subtitle := fmt.Sprintf("trades=%d win_rate=%.0f%% pnl=%.2f profit_factor=%.2f",
		in.Stats.TotalTrades, in.Stats.WinRate*100, in.Stats.TotalPnL, in.Stats.ProfitFactor)
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Equity %s (%s)", in.Session.Symbol, in.Session.Mode),
			Subtitle: subtitle,
			Left:     "left",
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	x := make([]string, 0, len(in.Trades)+1)
	data := make([]opts.LineData, 0, len(in.Trades)+1)
	x = append(x, "start")
	equity := in.Session.PaperStartingBalance
	data = append(data, opts.LineData{Value: equity})
	for _, t := range in.Trades {
		equity += t.PnL
		x = append(x, t.ClosedAt.Format("15:04:05"))
		data = append(data, opts.LineData{Value: equity})
	}
	line.SetXAxis(x)
	line.AddSeries("equity", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorCurve, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

func deltaChart(bars []*types.FootprintBar) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Per-bar delta", Left: "left"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
	)

	x := make([]string, len(bars))
	data := make([]opts.BarData, len(bars))
	for i, b := range bars {
		x[i] = b.Start.Format("15:04:05")
		color := colorBear
		if b.Delta >= 0 {
			color = colorBull
		}
		data[i] = opts.BarData{
			Value:     b.Delta,
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.7)},
		}
	}
	bar.SetXAxis(x)
	bar.AddSeries("delta", data)
	return bar
}
