package models

import "time"

// RawFields is one extracted row as produced by the extraction step.
// It is schema-on-read: keys and value types are whatever the document had.
type RawFields map[string]any

// RawRecord is an immutable bronze row.
type RawRecord struct {
	ID         int64     `json:"id,omitempty"`
	SourceFile string    `json:"source_file"`
	RowHash    string    `json:"row_hash"`
	IngestedAt time.Time `json:"ingested_at"`
	RawFields  RawFields `json:"raw_fields"`
}

// IngestResult is the outcome of appending one file's rows to bronze.
type IngestResult struct {
	Accepted  int `json:"accepted"`
	Duplicate int `json:"duplicate"`

	// Records holds the distinct records of the call in extraction order,
	// newly accepted and previously stored alike.
	Records []RawRecord `json:"-"`
}
