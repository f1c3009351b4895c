package download

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/noaa-ingest/internal/config"
	"github.com/couchcryptid/noaa-ingest/internal/domain"
)

// Plan parameterizes task expansion.
type Plan struct {
	BasePath  string
	StartYear int
	EndYear   int
	Stations  domain.Catalog

	GSODBaseURL        string
	ISDBaseURL         string
	StormEventsBaseURL string
	METARBaseURL       string
}

// PlanFromConfig builds the download plan from the process config.
func PlanFromConfig(cfg *config.Config) Plan {
	return Plan{
		BasePath:           cfg.BasePath,
		StartYear:          cfg.StartYear,
		EndYear:            cfg.EndYear,
		Stations:           cfg.Stations,
		GSODBaseURL:        cfg.GSODBaseURL,
		ISDBaseURL:         cfg.ISDBaseURL,
		StormEventsBaseURL: cfg.StormEventsBaseURL,
		METARBaseURL:       cfg.METARBaseURL,
	}
}

// DatasetDir is the local directory holding one dataset.
func (p Plan) DatasetDir(kind domain.DatasetKind) string {
	return filepath.Join(p.BasePath, string(kind))
}

// Tasks expands the plan into the concrete files for one dataset. The
// result is deterministic so a rerun targets the same paths.
func (p Plan) Tasks(kind domain.DatasetKind) []domain.DownloadTask {
	switch kind {
	case domain.DatasetGSOD:
		return p.stationYearTasks(kind, p.GSODBaseURL)
	case domain.DatasetISD:
		return p.stationYearTasks(kind, p.ISDBaseURL)
	case domain.DatasetStormEvents:
		return p.stormTasks()
	case domain.DatasetMETAR:
		return p.liveReportTasks()
	default:
		return nil
	}
}

func (p Plan) stationYearTasks(kind domain.DatasetKind, baseURL string) []domain.DownloadTask {
	var tasks []domain.DownloadTask
	for year := p.StartYear; year <= p.EndYear; year++ {
		for _, st := range p.Stations {
			name := fmt.Sprintf("%s-%d.csv", st.ID, year)
			tasks = append(tasks, domain.DownloadTask{
				Kind:            kind,
				StationID:       st.ID,
				Year:            year,
				SourceURL:       fmt.Sprintf("%s/%d/%s", baseURL, year, name),
				DestinationPath: filepath.Join(p.DatasetDir(kind), fmt.Sprint(year), name),
			})
		}
	}
	return tasks
}

func (p Plan) stormTasks() []domain.DownloadTask {
	var tasks []domain.DownloadTask
	for year := p.StartYear; year <= p.EndYear; year++ {
		for _, report := range domain.StormReportKinds {
			name := StormArchiveName(report, year)
			tasks = append(tasks, domain.DownloadTask{
				Kind:            domain.DatasetStormEvents,
				StationID:       report,
				Year:            year,
				SourceURL:       p.StormEventsBaseURL + "/" + name,
				DestinationPath: filepath.Join(p.DatasetDir(domain.DatasetStormEvents), name),
			})
		}
	}
	return tasks
}

func (p Plan) liveReportTasks() []domain.DownloadTask {
	tasks := make([]domain.DownloadTask, 0, len(p.Stations))
	for _, st := range p.Stations {
		prefix := st.Prefix()
		tasks = append(tasks, domain.DownloadTask{
			Kind:            domain.DatasetMETAR,
			StationID:       prefix,
			SourceURL:       fmt.Sprintf("%s/%s.TXT", p.METARBaseURL, strings.ToUpper(prefix)),
			DestinationPath: filepath.Join(p.DatasetDir(domain.DatasetMETAR), prefix+".txt"),
		})
	}
	return tasks
}

// StormArchiveName is the published file name of one Storm Events report.
func StormArchiveName(report string, year int) string {
	return fmt.Sprintf("StormEvents_%s-ftp_v1.0_%d.csv.gz", report, year)
}
