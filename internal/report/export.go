// Package report exports the mined opportunity set as an XLSX workbook for
// offline review: one sheet of clusters with verdicts, one of raw pains, and
// one of daily spend.
package report

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/painminer/internal/store"
)

// Exporter writes workbook snapshots from the store.
type Exporter struct {
	store store.Store
}

func NewExporter(st store.Store) *Exporter {
	return &Exporter{store: st}
}

// Export writes the full workbook to path. Clusters are ordered by
// opportunity score; the verdict columns show each cluster's most recent
// deep analysis, blank if none exists yet.
func (e *Exporter) Export(ctx context.Context, path string, costDays int) error {
	f := xlsx.NewFile()

	if err := e.clusterSheet(ctx, f); err != nil {
		return err
	}
	if err := e.painSheet(ctx, f); err != nil {
		return err
	}
	if err := e.costSheet(ctx, f, costDays); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	zap.L().Info("workbook exported", zap.String("path", path))
	return nil
}

func (e *Exporter) clusterSheet(ctx context.Context, f *xlsx.File) error {
	sheet, err := f.AddSheet("Clusters")
	if err != nil {
		return eris.Wrap(err, "report: add clusters sheet")
	}
	addHeader(sheet, "ID", "Name", "Size", "Avg Severity", "Avg WTP",
		"Top Industries", "Opportunity Score", "Verdict", "Attractiveness", "Main Argument")

	clusters, err := e.store.ListClusters(ctx, store.ClusterFilter{Limit: 10000})
	if err != nil {
		return eris.Wrap(err, "report: list clusters")
	}

	for _, c := range clusters {
		verdict, attractiveness, argument := "", "", ""
		analyses, err := e.store.ListDeepAnalyses(ctx, c.ID)
		if err != nil {
			return eris.Wrap(err, "report: cluster analyses")
		}
		if len(analyses) > 0 {
			latest := analyses[0] // ordered analyzed_at descending
			verdict = string(latest.Verdict)
			attractiveness = strconv.Itoa(latest.AttractivenessScore)
			argument = latest.MainArgument
		}

		row := sheet.AddRow()
		row.AddCell().Value = c.ID
		row.AddCell().Value = c.Name
		row.AddCell().SetInt(c.Size)
		row.AddCell().SetFloat(c.AvgSeverity)
		row.AddCell().Value = string(c.AvgWTP)
		row.AddCell().Value = strings.Join(c.TopIndustries, ", ")
		row.AddCell().SetFloat(c.OpportunityScore)
		row.AddCell().Value = verdict
		row.AddCell().Value = attractiveness
		row.AddCell().Value = argument
	}
	return nil
}

func (e *Exporter) painSheet(ctx context.Context, f *xlsx.File) error {
	sheet, err := f.AddSheet("Pains")
	if err != nil {
		return eris.Wrap(err, "report: add pains sheet")
	}
	addHeader(sheet, "ID", "Source", "Industry", "Role", "Title", "Severity",
		"Frequency", "Impact", "WTP", "Complexity", "Tags", "Created")

	pains, err := e.store.ListPains(ctx, store.PainFilter{Limit: 100000})
	if err != nil {
		return eris.Wrap(err, "report: list pains")
	}

	for _, p := range pains {
		row := sheet.AddRow()
		row.AddCell().Value = p.ID
		row.AddCell().Value = string(p.Source)
		row.AddCell().Value = p.Industry
		row.AddCell().Value = p.Role
		row.AddCell().Value = p.Title
		row.AddCell().SetInt(p.Severity)
		row.AddCell().Value = string(p.Frequency)
		row.AddCell().Value = string(p.ImpactType)
		row.AddCell().Value = string(p.WillingnessToPay)
		row.AddCell().Value = string(p.SolutionComplexity)
		row.AddCell().Value = strings.Join(p.Tags, ", ")
		row.AddCell().Value = p.CreatedAt.Format(time.RFC3339)
	}
	return nil
}

func (e *Exporter) costSheet(ctx context.Context, f *xlsx.File, days int) error {
	sheet, err := f.AddSheet("Costs")
	if err != nil {
		return eris.Wrap(err, "report: add costs sheet")
	}
	addHeader(sheet, "Day", "Calls", "Tokens", "Cost USD", "Pains Found")

	if days <= 0 {
		days = 30
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)

	if err := e.store.RecomputeDailyStats(ctx, from, to); err != nil {
		return eris.Wrap(err, "report: recompute daily stats")
	}
	stats, err := e.store.DailyStats(ctx, from, to)
	if err != nil {
		return eris.Wrap(err, "report: daily stats")
	}

	for _, d := range stats {
		row := sheet.AddRow()
		row.AddCell().Value = d.Day.Format("2006-01-02")
		row.AddCell().SetInt(d.Calls)
		row.AddCell().SetInt64(d.Tokens)
		row.AddCell().SetFloat(d.CostUSD)
		row.AddCell().SetInt(d.PainsFound)
	}
	return nil
}

func addHeader(sheet *xlsx.Sheet, names ...string) {
	row := sheet.AddRow()
	for _, name := range names {
		row.AddCell().Value = name
	}
}
