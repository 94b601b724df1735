package ledger

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	reportBackground    = "#060c1b"
	reportTextPrimary   = "#eceff4"
	reportTextSecondary = "#9ca3af"
	reportLineColor     = "#3b82f6"
	reportBaseline      = "#9ca3af"

	reportWidthPx  = 1400
	reportHeightPx = 480
)

// WriteEquityReport 把全部交易员的资金曲线渲染成一份 HTML 报告。
// 没有任何曲线点时不生成文件。
func (s *Store) WriteEquityReport(path string) error {
	snaps := s.Snapshots()
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	rendered := 0
	for _, snap := range snaps {
		if len(snap.EquityCurve) == 0 {
			continue
		}
		page.AddCharts(buildEquityChart(snap))
		rendered++
	}
	if rendered == 0 {
		return fmt.Errorf("没有可渲染的资金曲线")
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建报告目录失败: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建报告文件失败: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("渲染报告失败: %w", err)
	}
	return nil
}

func buildEquityChart(snap *Snapshot) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", reportWidthPx),
			Height:          fmt.Sprintf("%dpx", reportHeightPx),
			BackgroundColor: reportBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("%s 资金曲线", snap.TraderID),
			Subtitle: fmt.Sprintf("初始 %.2f | 最新 %.2f | 收益率 %.2f%% | 手续费 %.2f",
				snap.Stats.InitialBalance, snap.Stats.LatestTotalBalance,
				snap.Stats.ReturnRatePct, snap.Stats.TotalFeesPaid),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: reportTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: reportTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: reportTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: reportTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: reportTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)

	xAxis := make([]string, len(snap.EquityCurve))
	equity := make([]opts.LineData, len(snap.EquityCurve))
	baseline := make([]opts.LineData, len(snap.EquityCurve))
	for i, p := range snap.EquityCurve {
		xAxis[i] = p.Ts.In(time.Local).Format("01-02 15:04")
		equity[i] = opts.LineData{Value: roundTo(p.TotalEquity, 2)}
		baseline[i] = opts.LineData{Value: roundTo(snap.Stats.InitialBalance, 2)}
	}
	line.SetXAxis(xAxis)
	line.AddSeries("总权益", equity,
		charts.WithLineStyleOpts(opts.LineStyle{Color: reportLineColor, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.AddSeries("初始资金", baseline,
		charts.WithLineStyleOpts(opts.LineStyle{Color: reportBaseline, Width: 1, Type: "dashed"}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

func roundTo(val float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
