// Package processor packs bronze rows into snappy-compressed archives so a
// replay source can be moved between environments.
package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/snappy"
)

// ArchiveFormat identifies the header line of an archive stream.
const ArchiveFormat = "social-metrics-bronze/v1"

// ArchiveEntry is one bronze row inside an archive.
type ArchiveEntry struct {
	SourceFile string          `json:"source_file"`
	RowHash    string          `json:"row_hash"`
	IngestedAt time.Time       `json:"ingested_at"`
	Raw        json.RawMessage `json:"raw"`
}

type archiveHeader struct {
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchiveWriter streams entries as JSON lines through a snappy framed writer.
type ArchiveWriter struct {
	zw      *snappy.Writer
	enc     *json.Encoder
	written int
}

// NewArchiveWriter writes the archive header and returns the writer.
// Close must be called to flush the last frame.
func NewArchiveWriter(w io.Writer) (*ArchiveWriter, error) {
	zw := snappy.NewBufferedWriter(w)
	enc := json.NewEncoder(zw)
	if err := enc.Encode(archiveHeader{Format: ArchiveFormat, CreatedAt: time.Now().UTC()}); err != nil {
		return nil, fmt.Errorf("failed to write archive header: %w", err)
	}
	return &ArchiveWriter{zw: zw, enc: enc}, nil
}

func (a *ArchiveWriter) Write(entry ArchiveEntry) error {
	if err := a.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to write archive entry: %w", err)
	}
	a.written++
	return nil
}

// Written is the number of entries written so far.
func (a *ArchiveWriter) Written() int {
	return a.written
}

func (a *ArchiveWriter) Close() error {
	return a.zw.Close()
}

// ArchiveReader reads entries written by ArchiveWriter.
type ArchiveReader struct {
	dec *json.Decoder
}

// NewArchiveReader validates the header of the stream.
func NewArchiveReader(r io.Reader) (*ArchiveReader, error) {
	dec := json.NewDecoder(snappy.NewReader(r))

	var header archiveHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to read archive header: %w", err)
	}
	if header.Format != ArchiveFormat {
		return nil, fmt.Errorf("unsupported archive format %q", header.Format)
	}
	return &ArchiveReader{dec: dec}, nil
}

// Next returns the next entry, or io.EOF after the last one.
func (a *ArchiveReader) Next() (ArchiveEntry, error) {
	var entry ArchiveEntry
	if err := a.dec.Decode(&entry); err != nil {
		if errors.Is(err, io.EOF) {
			return entry, io.EOF
		}
		return entry, fmt.Errorf("failed to read archive entry: %w", err)
	}
	return entry, nil
}
