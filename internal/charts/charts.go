// Package charts renders the dashboard and case overviews as standalone HTML pages.
package charts

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/query"
	"github.com/localnerve/lite/internal/services"
)

const (
	chartWidth  = "900px"
	chartHeight = "420px"
)

// Dashboard renders the registry overview: records per case, cases per month
// and the status split of cases and runs.
func Dashboard(w io.Writer, d *services.Dashboard) error {
	page := components.NewPage()
	page.PageTitle = "LITE dashboard"

	names := make([]string, len(d.TopCases))
	records := make([]opts.BarData, len(d.TopCases))
	for i, c := range d.TopCases {
		names[i] = c.CaseName
		records[i] = opts.BarData{Value: c.RecordCount}
	}
	top := newBar("Largest cases", fmt.Sprintf("%d records in %d cases", d.TotalRecords, d.TotalCases))
	top.SetXAxis(names).AddSeries("Records", records)

	months := make([]string, len(d.MonthlyCases))
	created := make([]opts.BarData, len(d.MonthlyCases))
	for i, m := range d.MonthlyCases {
		months[i] = m.Month
		created[i] = opts.BarData{Value: m.Count}
	}
	trend := newBar("Cases created", "per month")
	trend.SetXAxis(months).AddSeries("Cases", created)

	runs := make(map[string]int64, len(d.RunsByStatus))
	for status, s := range d.RunsByStatus {
		runs[status] = s.Count
	}

	page.AddCharts(
		top,
		trend,
		newPie("Case status", d.CasesByStatus),
		newPie("Case priority", d.CasesByPriority),
		newPie("Ingestion runs", runs),
	)
	return page.Render(w)
}

// Case renders the record counts of one case by category
func Case(w io.Writer, c *models.Case, counts []query.CategoryCount) error {
	page := components.NewPage()
	page.PageTitle = c.CaseName

	sorted := make([]query.CategoryCount, 0, len(counts))
	for _, cc := range counts {
		if cc.Count > 0 {
			sorted = append(sorted, cc)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Count > sorted[j].Count })

	titles := make([]string, len(sorted))
	values := make([]opts.BarData, len(sorted))
	slices := make(map[string]int64, len(sorted))
	for i, cc := range sorted {
		titles[i] = cc.Title
		values[i] = opts.BarData{Value: cc.Count}
		slices[cc.Title] = cc.Count
	}

	bar := newBar(c.CaseName, fmt.Sprintf("%d records, ingestion %s", query.Total(counts), c.IngestionStatus))
	bar.SetXAxis(titles).AddSeries("Records", values)

	page.AddCharts(bar, newPie("Share of records", slices))
	return page.Render(w)
}

func newBar(title, subtitle string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
	)
	return bar
}

// newPie renders a map as a pie with slices in name order
func newPie(title string, values map[string]int64) *charts.Pie {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	data := make([]opts.PieData, 0, len(names))
	for _, name := range names {
		data = append(data, opts.PieData{Name: name, Value: values[name]})
	}

	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: title}),
	)
	pie.AddSeries(title, data)
	return pie
}
