package models

import "time"

// SilverRecord is a cleaned, typed row. It only lives inside a run.
type SilverRecord struct {
	Platform   string    `json:"platform"`
	MetricName string    `json:"metric_name"`
	Value      float64   `json:"value"`
	ReportDate time.Time `json:"report_date"`
	SourceFile string    `json:"source_file"`
}

// RejectionReason classifies why a raw row was dropped during cleaning.
type RejectionReason string

const (
	// ReasonInvalidValue: the value did not parse, or was zero or negative.
	ReasonInvalidValue RejectionReason = "InvalidValue"
	// ReasonUnresolvedDate: no report month could be derived.
	ReasonUnresolvedDate RejectionReason = "UnresolvedDate"
	// ReasonMissingField: platform or metric name absent or blank.
	ReasonMissingField RejectionReason = "MissingField"
)

// RejectionReasons lists every row-level reason in reporting order.
var RejectionReasons = []RejectionReason{
	ReasonInvalidValue,
	ReasonUnresolvedDate,
	ReasonMissingField,
}
