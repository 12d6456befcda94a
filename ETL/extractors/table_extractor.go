package extractors

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

// TableExtractor reads tables already lifted out of the PDF reports:
// CSV with a header row, a JSON array of objects, or JSON lines.
type TableExtractor struct {
	logger *utils.ETLLogger
}

func NewTableExtractor(logger *utils.ETLLogger) *TableExtractor {
	return &TableExtractor{logger: logger}
}

// Extract reads every row of doc. Any failure is wrapped with
// models.ErrExtraction.
func (e *TableExtractor) Extract(ctx context.Context, doc Document) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startTime := time.Now()
	e.logger.LogExtractStart(doc.SourceFile)

	f, err := os.Open(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrExtraction, err)
	}
	defer f.Close()

	var rows []map[string]any
	switch ext := strings.ToLower(filepath.Ext(doc.Path)); ext {
	case ".csv":
		rows, err = readCSV(f)
	case ".json":
		rows, err = readJSON(f)
	case ".jsonl", ".ndjson":
		rows, err = readJSONLines(f)
	default:
		err = fmt.Errorf("unsupported document type %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrExtraction, doc.SourceFile, err)
	}

	e.logger.LogExtractComplete(doc.SourceFile, len(rows), time.Since(startTime))
	return rows, nil
}

func readCSV(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []map[string]any
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}

		row := make(map[string]any, len(header))
		for i, key := range header {
			key = strings.TrimSpace(key)
			if key == "" || i >= len(record) {
				continue
			}
			row[key] = record[i]
		}
		if !blankRow(row) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func readJSON(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode json table: %w", err)
	}
	return rows, nil
}

func readJSONLines(r io.Reader) ([]map[string]any, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var rows []map[string]any
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var row map[string]any
		if err := dec.Decode(&row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func blankRow(row map[string]any) bool {
	for _, v := range row {
		if s, ok := v.(string); !ok || strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}
