package report

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/painminer/internal/model"
	"github.com/sells-group/painminer/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newSeededStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))
	t.Cleanup(func() { st.Close() })

	now := time.Now().UTC().Truncate(time.Second)

	pain := model.Pain{
		ID:                 "p1",
		RawItemRef:         "reddit/p1",
		Source:             model.SourceReddit,
		Industry:           "construction",
		Role:               "project manager",
		Title:              "Timesheet chaos",
		Description:        "desc",
		Severity:           8,
		Frequency:          model.FrequencyWeekly,
		ImpactType:         model.ImpactTime,
		EmotionalIntensity: 6,
		WillingnessToPay:   model.WTPHigh,
		SolutionComplexity: model.ComplexityMedium,
		KeyQuotes:          []string{"quote"},
		Tags:               []string{"timesheets", "payroll"},
		Confidence:         0.9,
		CreatedAt:          now,
	}
	require.NoError(t, st.InsertPain(ctx, pain))

	clusters := []model.Cluster{
		{
			ID:               "c1",
			RunID:            "run-1",
			Name:             "Timesheet pain",
			Signature:        model.ClusterSignature([]string{"p1"}),
			Size:             3,
			AvgSeverity:      7.5,
			AvgWTP:           model.WTPHigh,
			TopIndustries:    []string{"construction", "retail"},
			OpportunityScore: 42.5,
			CreatedAt:        now,
		},
		{
			ID:               "c2",
			RunID:            "run-1",
			Name:             "Unreviewed pain",
			Signature:        model.ClusterSignature([]string{"p2"}),
			Size:             3,
			AvgSeverity:      5.0,
			AvgWTP:           model.WTPMedium,
			TopIndustries:    []string{"saas"},
			OpportunityScore: 10.0,
			CreatedAt:        now,
		},
	}
	members := []model.Membership{
		{PainID: "p1", ClusterID: "c1", RunID: "run-1"},
	}
	require.NoError(t, st.SwapClusters(ctx, "run-1", clusters, members))

	// Two analyses for c1: the sheet must show only the newest verdict.
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	older := testAnalysis("a1", base)
	older.Verdict = model.VerdictNoGo
	older.AttractivenessScore = 3
	require.NoError(t, st.InsertDeepAnalysis(ctx, older))
	require.NoError(t, st.InsertDeepAnalysis(ctx, testAnalysis("a2", base.Add(time.Hour))))

	require.NoError(t, st.InsertCost(ctx, model.LLMCost{
		ID:           "cost-1",
		RunID:        "run-1",
		Operation:    "classify",
		Model:        "claude-haiku",
		InputTokens:  1000,
		OutputTokens: 200,
		CostUSD:      0.02,
		Succeeded:    true,
		Timestamp:    now,
	}))

	return st
}

func testAnalysis(id string, at time.Time) model.DeepAnalysis {
	return model.DeepAnalysis{
		ID:                   id,
		ClusterID:            "c1",
		RunID:                "run-1",
		Competitors:          []model.Competitor{{Name: "Acme", PriceRange: "$50/mo", Weakness: "clunky"}},
		TargetRole:           "office manager",
		TargetIndustries:     []string{"construction"},
		MarketSize:           model.MarketMedium,
		MVPDescription:       "mvp",
		CoreFeatures:         []string{"f1"},
		OutOfScope:           []string{"o1"},
		WhereToFindCustomers: []string{"trade forums"},
		Risks:                []string{"incumbents"},
		Verdict:              model.VerdictGo,
		AttractivenessScore:  8,
		MainArgument:         "clear willingness to pay",
		ModelUsed:            "claude-sonnet",
		AnalyzedAt:           at,
	}
}

func sheetByName(t *testing.T, f *xlsx.File, name string) *xlsx.Sheet {
	t.Helper()
	for _, s := range f.Sheets {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("sheet %q not found", name)
	return nil
}

func cellValue(row *xlsx.Row, i int) string {
	return row.Cells[i].String()
}

func TestExport_WritesAllSheets(t *testing.T) {
	st := newSeededStore(t)
	path := filepath.Join(t.TempDir(), "out.xlsx")

	require.NoError(t, NewExporter(st).Export(context.Background(), path, 7))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 3)
	sheetByName(t, f, "Clusters")
	sheetByName(t, f, "Pains")
	sheetByName(t, f, "Costs")
}

func TestExport_ClusterSheetShowsLatestVerdict(t *testing.T) {
	st := newSeededStore(t)
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, NewExporter(st).Export(context.Background(), path, 7))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet := sheetByName(t, f, "Clusters")
	require.Len(t, sheet.Rows, 3) // header + two clusters

	assert.Equal(t, "ID", cellValue(sheet.Rows[0], 0))
	assert.Equal(t, "Verdict", cellValue(sheet.Rows[0], 7))

	// c1 first: higher opportunity score. Verdict comes from the newer
	// analysis, not the older no_go.
	top := sheet.Rows[1]
	assert.Equal(t, "c1", cellValue(top, 0))
	assert.Equal(t, "Timesheet pain", cellValue(top, 1))
	assert.Equal(t, "construction, retail", cellValue(top, 5))
	assert.Equal(t, "go", cellValue(top, 7))
	assert.Equal(t, "8", cellValue(top, 8))
	assert.Equal(t, "clear willingness to pay", cellValue(top, 9))

	// c2 has no analysis yet: verdict columns stay blank.
	second := sheet.Rows[2]
	assert.Equal(t, "c2", cellValue(second, 0))
	assert.Equal(t, "", cellValue(second, 7))
	assert.Equal(t, "", cellValue(second, 8))
}

func TestExport_PainSheetRows(t *testing.T) {
	st := newSeededStore(t)
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, NewExporter(st).Export(context.Background(), path, 7))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet := sheetByName(t, f, "Pains")
	require.Len(t, sheet.Rows, 2)

	row := sheet.Rows[1]
	assert.Equal(t, "p1", cellValue(row, 0))
	assert.Equal(t, "reddit", cellValue(row, 1))
	assert.Equal(t, "Timesheet chaos", cellValue(row, 4))
	assert.Equal(t, "8", cellValue(row, 5))
	assert.Equal(t, "timesheets, payroll", cellValue(row, 10))
}

func TestExport_CostSheetRollsUpSpend(t *testing.T) {
	st := newSeededStore(t)
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, NewExporter(st).Export(context.Background(), path, 7))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet := sheetByName(t, f, "Costs")
	require.Len(t, sheet.Rows, 2) // header + today's rollup

	row := sheet.Rows[1]
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), cellValue(row, 0))
	assert.Equal(t, "1", cellValue(row, 1))
	assert.Equal(t, "1200", cellValue(row, 2))
	assert.Equal(t, "1", cellValue(row, 4)) // the seeded pain counts for today
}

func TestExport_EmptyStoreStillWritesWorkbook(t *testing.T) {
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, NewExporter(st).Export(context.Background(), path, 7))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	for _, s := range f.Sheets {
		assert.Len(t, s.Rows, 1) // headers only
	}
}
