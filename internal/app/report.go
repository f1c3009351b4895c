package app

import (
	"fmt"
	"io"

	"github.com/couchcryptid/noaa-ingest/internal/download"
	"github.com/couchcryptid/noaa-ingest/internal/pipeline"
	"github.com/dustin/go-humanize"
)

// PrintDownloads writes one line per dataset and lists failed URLs.
// It reports whether every dataset downloaded cleanly.
func PrintDownloads(w io.Writer, summaries []download.Summary) bool {
	ok := true
	fmt.Fprintln(w, "downloads")
	for _, s := range summaries {
		fmt.Fprintf(w, "  %-13s %d/%d succeeded, %d failed, %d post-process failed, %s\n",
			s.Dataset, s.Succeeded, s.Total, s.Failed, s.PostProcessFailed, humanize.IBytes(uint64(max(s.Bytes, 0))))
		for _, u := range s.FailedURLs {
			fmt.Fprintf(w, "    failed: %s\n", u)
		}
		ok = ok && s.OK()
	}
	return ok
}

// PrintLoads writes one line per dataset normalized into the outbox.
// It reports whether every file could be read.
func PrintLoads(w io.Writer, summaries []pipeline.LoadSummary) bool {
	ok := true
	fmt.Fprintln(w, "normalization")
	for _, s := range summaries {
		fmt.Fprintf(w, "  %-13s %d files (%d failed), %d records queued, %d rows skipped\n",
			s.Dataset, s.Files, s.FilesFailed, s.Records, s.Skipped)
		ok = ok && s.OK()
	}
	return ok
}

// PrintDrain writes the committer outcome. It reports whether the
// outbox was emptied.
func PrintDrain(w io.Writer, r pipeline.DrainReport) bool {
	fmt.Fprintf(w, "delivery\n  %d records committed, %d left queued after %d passes\n", r.Committed, r.Remaining, r.Passes)
	return r.Remaining == 0
}
