// Package transform turns raw bronze rows into typed silver records.
package transform

import (
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/LilVoxy/social_metrics/ETL/models"
	"github.com/LilVoxy/social_metrics/ETL/utils"
)

// Candidate keys for each field, matched case-insensitively in this order.
var (
	PlatformKeys = []string{"platform", "channel", "network", "social_network"}
	MetricKeys   = []string{"metric", "metric_name", "kpi", "measure"}
	ValueKeys    = []string{"value", "count", "amount", "total"}
)

// CleanerOptions extends the built-in alias tables.
type CleanerOptions struct {
	PlatformAliases map[string]string
	MetricAliases   map[string]string
}

// Cleaner is the cleaning engine. It is stateless after construction and
// safe for concurrent use.
type Cleaner struct {
	platforms AliasTable
	metrics   AliasTable
	logger    *utils.ETLLogger
}

func NewCleaner(opts CleanerOptions, logger *utils.ETLLogger) *Cleaner {
	return &Cleaner{
		platforms: NewAliasTable(DefaultPlatformAliases(), opts.PlatformAliases),
		metrics:   NewAliasTable(DefaultMetricAliases(), opts.MetricAliases),
		logger:    logger,
	}
}

// Result is the outcome for one raw row: a silver record, or the reason the
// row was rejected.
type Result struct {
	Record models.SilverRecord
	Reason models.RejectionReason
	Raw    models.RawRecord
}

func (r Result) Rejected() bool {
	return r.Reason != ""
}

// Clean converts one raw row. It never fails as a whole; problems surface as
// a rejection reason on the result.
func (c *Cleaner) Clean(rec models.RawRecord) Result {
	res := Result{Raw: rec}
	fields := indexFields(rec.RawFields)

	platform := c.platforms.Resolve(textField(fields, PlatformKeys))
	metric := c.metrics.Resolve(textField(fields, MetricKeys))
	rawValue, hasValue := lookup(fields, ValueKeys)

	if platform == "" || metric == "" || !hasValue {
		res.Reason = models.ReasonMissingField
		return c.reject(res)
	}

	value, ok := ParseValue(rawValue)
	if !ok {
		res.Reason = models.ReasonInvalidValue
		return c.reject(res)
	}

	reportDate, ok := DateFromFileName(rec.SourceFile)
	if !ok {
		reportDate, ok = DateFromFields(rec.RawFields)
	}
	if !ok {
		res.Reason = models.ReasonUnresolvedDate
		return c.reject(res)
	}

	res.Record = models.SilverRecord{
		Platform:   platform,
		MetricName: metric,
		Value:      value,
		ReportDate: reportDate,
		SourceFile: rec.SourceFile,
	}
	return res
}

// CleanAll lazily cleans recs in order, one result per record.
func (c *Cleaner) CleanAll(recs []models.RawRecord) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		for _, rec := range recs {
			if !yield(c.Clean(rec)) {
				return
			}
		}
	}
}

func (c *Cleaner) reject(res Result) Result {
	c.logger.LogRejection(res.Raw.SourceFile, res.Reason, res.Raw.RawFields)
	return res
}

// indexFields keys a row by normalized field name, so "Platform",
// " platform" and "PLATFORM" all match the candidate "platform". On a
// collision the first non-blank value in sorted key order wins.
func indexFields(raw models.RawFields) map[string]any {
	fields := make(map[string]any, len(raw))
	for _, k := range slices.Sorted(maps.Keys(raw)) {
		v := raw[k]
		key := strings.ReplaceAll(NormalizeName(k), " ", "_")
		if _, taken := fields[key]; !taken || isBlank(fields[key]) {
			fields[key] = v
		}
	}
	return fields
}

func lookup(fields map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func textField(fields map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return v == nil || (ok && strings.TrimSpace(s) == "")
}
