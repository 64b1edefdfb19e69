package cli

import (
	"fmt"
	"sort"
	"strings"

	"stooklijn/internal/model"
)

// RenderResult renders a full analysis result for the terminal.
func RenderResult(r *model.AnalysisResult) string {
	var b strings.Builder

	b.WriteString(RenderTitle("Stooklijn Analysis"))
	b.WriteString("\n\n")

	b.WriteString(renderKnee(r.Knee))
	b.WriteString("\n")

	if r.Stooklijn != nil {
		b.WriteString(renderCurve("Stooklijn (above knee)", *r.Stooklijn))
		b.WriteString("\n")
	}
	if r.Configured != nil {
		b.WriteString(renderConfigured(*r.Configured))
		b.WriteString("\n")
	}
	if r.FreezingFit != nil {
		b.WriteString(renderCurve("Freezing envelope (below knee)", *r.FreezingFit))
		b.WriteString("\n")
	}

	if r.HeatLoss != nil {
		b.WriteString(renderHeatLoss("Heat loss (heat pump era)", r.HeatLoss))
		b.WriteString("\n")
	}
	if r.GasHeatLoss != nil {
		b.WriteString(renderHeatLoss("Heat loss (gas era)", r.GasHeatLoss))
		b.WriteString("\n")
	}

	if r.AverageCOP != nil || len(r.COPScatter) > 0 {
		b.WriteString(renderCOP(r.AverageCOP, r.COPScatter))
		b.WriteString("\n")
	}

	b.WriteString(renderSources(r.Counts))
	return b.String()
}

func renderKnee(k model.KneeResult) string {
	rows := [][]string{
		{"Source", k.Tier.String()},
		{"Knee temperature", FormatTemp(k.Temperature)},
	}
	if k.Fitted() {
		rows = append(rows,
			[]string{"Power at knee", FormatPower(k.Power)},
			[]string{"Samples", FormatCount(k.SampleCount, "sample")},
		)
	}
	if k.Fit != nil {
		rows = append(rows,
			[]string{"Warm slope", FormatSlope(k.Fit.WarmSlope)},
			[]string{"Cold slope", FormatSlope(k.Fit.ColdSlope)},
			[]string{"Fit error", fmt.Sprintf("%.0f W²", k.Fit.MSE)},
		)
	}

	out := RenderTable(Table{Title: "Knee Point", Rows: rows})
	if !k.Fitted() {
		out += warnStyle.Render("  using configured fallback, not enough data for a fit") + "\n"
	}
	return out
}

func renderCurve(title string, fit model.LinearFit) string {
	rows := [][]string{
		{"Slope", FormatSlope(fit.Slope)},
		{"Fit", FormatR2(fit.R2)},
		{"Points", FormatNumber(int64(fit.Points))},
	}
	if zero, ok := fit.ZeroCrossing(); ok {
		rows = append(rows, []string{"Zero output at", FormatTemp(zero)})
	}
	return RenderTable(Table{Title: title, Rows: rows})
}

// renderConfigured shows the installed two-point curve. No R² row: this
// is a setting, not a regression.
func renderConfigured(fit model.LinearFit) string {
	rows := [][]string{
		{"Slope", FormatSlope(fit.Slope)},
		{"Power at 0 °C", FormatPower(fit.Intercept)},
	}
	if zero, ok := fit.ZeroCrossing(); ok {
		rows = append(rows, []string{"Zero output at", FormatTemp(zero)})
	}
	return RenderTable(Table{Title: "Configured Stooklijn", Rows: rows})
}

func renderHeatLoss(title string, hl *model.HeatLossResult) string {
	var b strings.Builder

	b.WriteString(RenderTable(Table{
		Title: title,
		Rows: [][]string{
			{"Coefficient", FormatSlope(hl.Coefficient)},
			{"Balance point", FormatTemp(hl.BalancePoint)},
			{"Fit", FormatR2(hl.Fit.R2)},
			{"Days", FormatCount(hl.Fit.Points, "day")},
		},
	}))

	temps := make([]int, 0, len(hl.DemandAt))
	for t := range hl.DemandAt {
		temps = append(temps, t)
	}
	sort.Ints(temps)

	var maxDemand float64
	for _, t := range temps {
		if hl.DemandAt[t] > maxDemand {
			maxDemand = hl.DemandAt[t]
		}
	}
	for _, t := range temps {
		demand := hl.DemandAt[t]
		b.WriteString(fmt.Sprintf("  %6s %10s %s\n",
			FormatTemp(float64(t)),
			FormatPower(demand),
			RenderHorizontalBar(demand, maxDemand, 24)))
	}
	return b.String()
}

func renderCOP(avg *float64, scatter []model.COPPoint) string {
	var b strings.Builder
	b.WriteString("  " + headerStyle.Render("Efficiency") + "\n")
	if avg != nil {
		b.WriteString(fmt.Sprintf("  Average COP: %s\n", FormatCOP(*avg)))
	}
	if len(scatter) > 1 {
		values := make([]float64, len(scatter))
		for i, p := range scatter {
			values[i] = p.COP
		}
		b.WriteString("  Daily COP:   " + RenderSparkline(values) + "\n")
	}
	return b.String()
}

func renderSources(c model.SourceCounts) string {
	total := c.Cache + c.API + c.RecorderOnly
	share := func(n int) string {
		if total == 0 {
			return FormatPercent(0)
		}
		return FormatPercent(float64(n) / float64(total))
	}
	return RenderTable(Table{
		Title:   "Data Sources",
		Headers: []string{"Source", "Days", "Share"},
		Rows: [][]string{
			{"Cached insights", FormatNumber(int64(c.Cache)), share(c.Cache)},
			{"API fetches", FormatNumber(int64(c.API)), share(c.API)},
			{"Recorder only", FormatNumber(int64(c.RecorderOnly)), share(c.RecorderOnly)},
		},
	})
}
