package transform_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/transform"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

func newCleaner() *transform.Cleaner {
	return transform.NewCleaner(transform.CleanerOptions{}, utils.NewNopLogger())
}

func raw(sourceFile string, fields models.RawFields) models.RawRecord {
	return models.RawRecord{SourceFile: sourceFile, RawFields: fields}
}

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "instagram", transform.NormalizeName("  Instagram "))
	assert.Equal(t, "followers count", transform.NormalizeName("Followers \t  COUNT"))
	assert.Equal(t, "", transform.NormalizeName("   "))
}

func TestAliasTable(t *testing.T) {
	table := transform.NewAliasTable(transform.DefaultPlatformAliases(), map[string]string{" Insta Gram ": "Instagram"})

	assert.Equal(t, "instagram", table.Resolve("INSTA"))
	assert.Equal(t, "instagram", table.Resolve("insta   gram"))
	assert.Equal(t, "twitter", table.Resolve("X"))
	// unknown names pass through normalized
	assert.Equal(t, "mastodon", table.Resolve(" Mastodon"))
}

func TestParseValue(t *testing.T) {
	valid := map[string]struct {
		in   any
		want float64
	}{
		"comma separated": {"1,500", 1500},
		"underscore":      {"2_000", 2000},
		"nbsp":            {"12 345", 12345},
		"decimal text":    {"3.25", 3.25},
		"json number":     {json.Number("42"), 42},
		"float":           {7.5, 7.5},
		"int":             {9, 9},
		"decimal":         {decimal.RequireFromString("1.1"), 1.1},
	}
	for name, tt := range valid {
		t.Run(name, func(t *testing.T) {
			got, ok := transform.ParseValue(tt.in)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	for _, in := range []any{"0", "0.00", "-5", "abc", "", nil, math.NaN(), math.Inf(1), 0, -1.5, true} {
		_, ok := transform.ParseValue(in)
		assert.False(t, ok, "%#v", in)
	}
}

func TestDateFromFileName(t *testing.T) {
	got, ok := transform.DateFromFileName("2024-01_instagram_report.pdf")
	require.True(t, ok)
	assert.Equal(t, month(2024, time.January), got)

	got, ok = transform.DateFromFileName("/data/2023-99/report_2023-11.csv")
	require.True(t, ok)
	assert.Equal(t, month(2023, time.November), got)

	// first invalid token is skipped
	got, ok = transform.DateFromFileName("v2024-13_2024-02.json")
	require.True(t, ok)
	assert.Equal(t, month(2024, time.February), got)

	_, ok = transform.DateFromFileName("instagram_report.pdf")
	assert.False(t, ok)
}

func TestDateFromText(t *testing.T) {
	for text, want := range map[string]time.Time{
		"2024-03-15":           month(2024, time.March),
		"Period: 2024-4":       month(2024, time.April),
		"05/2023":              month(2023, time.May),
		"Report for June 2022": month(2022, time.June),
		"sept. 2021":           month(2021, time.September),
	} {
		got, ok := transform.DateFromText(text)
		require.True(t, ok, text)
		assert.Equal(t, want, got, text)
	}

	_, ok := transform.DateFromText("1,500 followers")
	assert.False(t, ok)
}

func TestDateFromFields_PrefersDateKeys(t *testing.T) {
	got, ok := transform.DateFromFields(map[string]any{
		"note":        "compared to 2020-01",
		"Report Date": "2024-02",
	})
	require.True(t, ok)
	assert.Equal(t, month(2024, time.February), got)
}

func TestClean_ProducesSilverRecord(t *testing.T) {
	res := newCleaner().Clean(raw("2024-01_report.pdf", models.RawFields{
		"Platform": " Insta ",
		"Metric":   "Followers Count",
		"Value":    "1,500",
	}))

	require.False(t, res.Rejected())
	assert.Equal(t, models.SilverRecord{
		Platform:   "instagram",
		MetricName: "followers",
		Value:      1500,
		ReportDate: month(2024, time.January),
		SourceFile: "2024-01_report.pdf",
	}, res.Record)
}

func TestClean_CandidateKeys(t *testing.T) {
	res := newCleaner().Clean(raw("2024-01.csv", models.RawFields{
		"channel": "yt",
		"kpi":     "views",
		"count":   json.Number("10"),
	}))

	require.False(t, res.Rejected())
	assert.Equal(t, "youtube", res.Record.Platform)
	assert.Equal(t, "views", res.Record.MetricName)
}

func TestClean_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		rec    models.RawRecord
		reason models.RejectionReason
	}{
		{
			name:   "zero value",
			rec:    raw("2024-01.csv", models.RawFields{"platform": "fb", "metric": "likes", "value": "0"}),
			reason: models.ReasonInvalidValue,
		},
		{
			name:   "unparseable value",
			rec:    raw("2024-01.csv", models.RawFields{"platform": "fb", "metric": "likes", "value": "n/a"}),
			reason: models.ReasonInvalidValue,
		},
		{
			name:   "no date anywhere",
			rec:    raw("report.pdf", models.RawFields{"platform": "fb", "metric": "likes", "value": "5"}),
			reason: models.ReasonUnresolvedDate,
		},
		{
			name:   "blank platform",
			rec:    raw("2024-01.csv", models.RawFields{"platform": "  ", "metric": "likes", "value": "5"}),
			reason: models.ReasonMissingField,
		},
		{
			name:   "no value column",
			rec:    raw("2024-01.csv", models.RawFields{"platform": "fb", "metric": "likes"}),
			reason: models.ReasonMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newCleaner().Clean(tt.rec)
			assert.True(t, res.Rejected())
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestClean_FallsBackToTextDate(t *testing.T) {
	res := newCleaner().Clean(raw("report.pdf", models.RawFields{
		"platform": "li", "metric": "impr", "value": "300", "period": "March 2024",
	}))

	require.False(t, res.Rejected())
	assert.Equal(t, month(2024, time.March), res.Record.ReportDate)
	assert.Equal(t, "linkedin", res.Record.Platform)
	assert.Equal(t, "impressions", res.Record.MetricName)
}

func TestCleanAll_IsLazyAndOrdered(t *testing.T) {
	recs := []models.RawRecord{
		raw("2024-01.csv", models.RawFields{"platform": "ig", "metric": "likes", "value": "1"}),
		raw("2024-01.csv", models.RawFields{"platform": "ig", "metric": "likes", "value": "0"}),
		raw("2024-01.csv", models.RawFields{"platform": "ig", "metric": "likes", "value": "3"}),
	}

	var seen []bool
	for res := range newCleaner().CleanAll(recs) {
		seen = append(seen, res.Rejected())
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []bool{false, true}, seen)
}
