package extractors_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/social_metrics/ETL/extractors"
	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

func writeFile(t *testing.T, dir, name, body string) extractors.Document {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return extractors.NewDocument(path)
}

func TestTableExtractor_CSV(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "report_2024-01.csv",
		"\ufeffPlatform,Metric,Value\n"+
			"Instagram,followers,\"1,234\"\n"+
			",,\n"+
			"fb,likes,56\n")

	rows, err := extractors.NewTableExtractor(utils.NewNopLogger()).Extract(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, "report_2024-01.csv", doc.SourceFile)
	assert.Equal(t, map[string]any{"Platform": "Instagram", "Metric": "followers", "Value": "1,234"}, rows[0])
	assert.Equal(t, "fb", rows[1]["Platform"])
}

func TestTableExtractor_JSONKeepsNumbers(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "2024-02.json", `[{"platform":"yt","metric":"views","value":1500.5}]`)

	rows, err := extractors.NewTableExtractor(utils.NewNopLogger()).Extract(context.Background(), doc)
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, json.Number("1500.5"), rows[0]["value"])
}

func TestTableExtractor_JSONLines(t *testing.T) {
	dir := t.TempDir()
	doc := writeFile(t, dir, "2024-03.jsonl", "{\"platform\":\"ig\"}\n\n{\"platform\":\"fb\"}\n")

	rows, err := extractors.NewTableExtractor(utils.NewNopLogger()).Extract(context.Background(), doc)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestTableExtractor_FailuresWrapExtractionError(t *testing.T) {
	dir := t.TempDir()
	extractor := extractors.NewTableExtractor(utils.NewNopLogger())

	for _, doc := range []extractors.Document{
		writeFile(t, dir, "broken.json", `[{"platform":`),
		writeFile(t, dir, "report.pdf", "%PDF-1.4"),
		extractors.NewDocument(filepath.Join(dir, "missing.csv")),
	} {
		_, err := extractor.Extract(context.Background(), doc)
		assert.ErrorIs(t, err, models.ErrExtraction, doc.SourceFile)
	}
}

func TestDirectorySource_List(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b_2024-02.csv", "")
	writeFile(t, dir, "a_2024-01.json", "")
	writeFile(t, dir, "notes.txt", "")
	writeFile(t, dir, ".hidden.csv", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o700))

	docs, err := extractors.NewDirectorySource(dir, []string{"*.csv", "*.json"}).List(context.Background())
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "a_2024-01.json", docs[0].SourceFile)
	assert.Equal(t, filepath.Join(dir, "b_2024-02.csv"), docs[1].Path)
}

func TestStaticExtractor(t *testing.T) {
	src := extractors.StaticExtractor{
		"b.json": {{"platform": "ig"}},
		"a.json": nil,
	}

	docs := src.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, "a.json", docs[0].SourceFile)

	rows, err := src.Extract(context.Background(), docs[1])
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
