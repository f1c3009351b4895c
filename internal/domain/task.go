package domain

// DownloadTask is one concrete remote file to fetch. Tasks are created by
// expanding a downloader's catalog x year range and are not modified after.
type DownloadTask struct {
	Kind            DatasetKind
	StationID       string // station ID, or the report kind for storm events
	Year            int    // 0 for live reports
	SourceURL       string
	DestinationPath string
}

// FetchResult is the outcome of fetching a single DownloadTask.
type FetchResult struct {
	Task         DownloadTask
	Success      bool
	BytesWritten int64
	Attempts     int
	Err          error
}
