package app

import (
	"bytes"
	"testing"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
	"github.com/couchcryptid/noaa-ingest/internal/download"
	"github.com/couchcryptid/noaa-ingest/internal/pipeline"
	"github.com/stretchr/testify/assert"
)

func TestPrintDownloads(t *testing.T) {
	var buf bytes.Buffer
	ok := PrintDownloads(&buf, []download.Summary{
		{Dataset: domain.DatasetGSOD, Total: 2, Succeeded: 2, Bytes: 2048},
		{Dataset: domain.DatasetISD, Total: 2, Succeeded: 1, Failed: 1, FailedURLs: []string{"https://example.test/isd/2020/722780-23183.csv"}},
	})

	assert.False(t, ok)
	out := buf.String()
	assert.Contains(t, out, "gsod")
	assert.Contains(t, out, "2/2 succeeded")
	assert.Contains(t, out, "2.0 KiB")
	assert.Contains(t, out, "failed: https://example.test/isd/2020/722780-23183.csv")
}

func TestPrintLoadsAndDrain(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, PrintLoads(&buf, []pipeline.LoadSummary{
		{Dataset: domain.DatasetGSOD, Files: 3, Records: 10, Skipped: 2},
	}))
	assert.False(t, PrintLoads(&buf, []pipeline.LoadSummary{
		{Dataset: domain.DatasetISD, Files: 3, FilesFailed: 1},
	}))
	assert.Contains(t, buf.String(), "10 records queued, 2 rows skipped")

	buf.Reset()
	assert.True(t, PrintDrain(&buf, pipeline.DrainReport{Committed: 10, Passes: 1}))
	assert.False(t, PrintDrain(&buf, pipeline.DrainReport{Committed: 4, Remaining: 6, Passes: 5}))
	assert.Contains(t, buf.String(), "6 left queued after 5 passes")
}
