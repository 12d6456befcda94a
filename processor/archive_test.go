package processor_test

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LilVoxy/social_metrics/processor"
)

func TestArchive_WriteThenRead(t *testing.T) {
	var buf bytes.Buffer
	w, err := processor.NewArchiveWriter(&buf)
	require.NoError(t, err)

	at := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.Write(processor.ArchiveEntry{
		SourceFile: "2024-01.json",
		RowHash:    "abc",
		IngestedAt: at,
		Raw:        json.RawMessage(`{"platform":"ig"}`),
	}))
	require.NoError(t, w.Close())
	assert.Equal(t, 1, w.Written())

	r, err := processor.NewArchiveReader(&buf)
	require.NoError(t, err)

	entry, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "2024-01.json", entry.SourceFile)
	assert.True(t, at.Equal(entry.IngestedAt))
	assert.JSONEq(t, `{"platform":"ig"}`, string(entry.Raw))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestArchiveReader_RejectsForeignStream(t *testing.T) {
	var buf bytes.Buffer
	zw := snappy.NewBufferedWriter(&buf)
	_, err := zw.Write([]byte(`{"format":"something-else"}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = processor.NewArchiveReader(&buf)
	assert.ErrorContains(t, err, "unsupported archive format")

	_, err = processor.NewArchiveReader(bytes.NewReader([]byte("plain text")))
	assert.Error(t, err)
}
