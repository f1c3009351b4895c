package domain

import (
	"fmt"
	"strings"
)

// DatasetKind identifies one of the four source feeds. The value doubles as
// the dataset's subdirectory name under the base data path.
type DatasetKind string

const (
	DatasetGSOD        DatasetKind = "gsod"
	DatasetISD         DatasetKind = "isd"
	DatasetStormEvents DatasetKind = "storm_events"
	DatasetMETAR       DatasetKind = "metar"
)

// AllDatasets lists every dataset in download order.
var AllDatasets = []DatasetKind{DatasetGSOD, DatasetISD, DatasetStormEvents, DatasetMETAR}

// StormReportKinds are the three Storm Events files published per year.
var StormReportKinds = []string{"details", "fatalities", "locations"}

// ParseDatasetKind accepts a dataset name, case-insensitively.
func ParseDatasetKind(s string) (DatasetKind, error) {
	k := DatasetKind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllDatasets {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown dataset %q", s)
}

// ParseDatasetList parses a comma-separated dataset list. An empty string
// selects every dataset.
func ParseDatasetList(s string) ([]DatasetKind, error) {
	if strings.TrimSpace(s) == "" {
		return AllDatasets, nil
	}
	var kinds []DatasetKind
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseDatasetKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Description returns a human label for logs and run summaries.
func (k DatasetKind) Description() string {
	switch k {
	case DatasetGSOD:
		return "daily summary"
	case DatasetISD:
		return "sub-daily observations"
	case DatasetStormEvents:
		return "storm events"
	case DatasetMETAR:
		return "live text reports"
	default:
		return string(k)
	}
}
