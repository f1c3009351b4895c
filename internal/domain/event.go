package domain

import (
	"fmt"
	"time"
)

// Search index and columnar table names for each record shape.
const (
	IndexObservations = "weather_data"
	IndexEvents       = "weather_events"
	IndexLiveReports  = "metar_data"

	TableObservations = "observations"
	TableEvents       = "storm_events"
	TableLiveReports  = "metar_reports"
)

// Record is a normalized row ready for persistence.
type Record interface {
	ToDocument() Document
}

// Partition holds the columnar store partition keys. Month is 0 for tables
// partitioned by year only.
type Partition struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
}

// Path renders the Hive-style partition path, e.g. "year=2023/month=05".
func (p Partition) Path() string {
	if p.Month == 0 {
		return fmt.Sprintf("year=%04d", p.Year)
	}
	return fmt.Sprintf("year=%04d/month=%02d", p.Year, p.Month)
}

// Document is the flat write shape shared by both persistence stores.
type Document struct {
	ID        string         `json:"id"`
	Index     string         `json:"index"`
	Table     string         `json:"table"`
	Partition Partition      `json:"partition"`
	Fields    map[string]any `json:"fields"`
}

// PointObservation is the canonical station measurement. Optional fields are
// nil when the source schema does not carry them.
type PointObservation struct {
	StationID      string      `json:"station_id"`
	Source         DatasetKind `json:"source"`
	Timestamp      time.Time   `json:"timestamp"`
	Temperature    *float64    `json:"temperature,omitempty"`
	TemperatureMax *float64    `json:"temperature_max,omitempty"`
	TemperatureMin *float64    `json:"temperature_min,omitempty"`
	Humidity       *float64    `json:"humidity,omitempty"`
	Pressure       *float64    `json:"pressure,omitempty"`
	Precipitation  *float64    `json:"precipitation,omitempty"`
	WindSpeed      *float64    `json:"wind_speed,omitempty"`
	WindDirection  *float64    `json:"wind_direction,omitempty"`
}

// Key is the natural key: source, station and UTC timestamp.
func (o PointObservation) Key() string {
	return fmt.Sprintf("%s-%s-%s", o.Source, o.StationID, o.Timestamp.UTC().Format("20060102T150405Z"))
}

func (o PointObservation) ToDocument() Document {
	ts := o.Timestamp.UTC()
	fields := map[string]any{
		"station_id": o.StationID,
		"source":     string(o.Source),
		"timestamp":  ts.Format(time.RFC3339),
		"season":     string(SeasonOf(ts.Month())),
	}
	putOptional(fields, "temperature", o.Temperature)
	putOptional(fields, "temperature_max", o.TemperatureMax)
	putOptional(fields, "temperature_min", o.TemperatureMin)
	putOptional(fields, "humidity", o.Humidity)
	putOptional(fields, "pressure", o.Pressure)
	putOptional(fields, "precipitation", o.Precipitation)
	putOptional(fields, "wind_speed", o.WindSpeed)
	putOptional(fields, "wind_direction", o.WindDirection)

	return Document{
		ID:        o.Key(),
		Index:     IndexObservations,
		Table:     TableObservations,
		Partition: Partition{Year: ts.Year(), Month: int(ts.Month())},
		Fields:    fields,
	}
}

// WeatherEvent is the canonical storm event. EventID is the natural key.
type WeatherEvent struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	Timestamp      time.Time `json:"timestamp"`
	Location       string    `json:"location"`
	DamageEstimate float64   `json:"damage_estimate"`
	Injuries       int       `json:"injuries"`
	Fatalities     int       `json:"fatalities"`
	Description    string    `json:"description,omitempty"`
}

func (e WeatherEvent) ToDocument() Document {
	ts := e.Timestamp.UTC()
	fields := map[string]any{
		"event_id":        e.EventID,
		"event_type":      e.EventType,
		"timestamp":       ts.Format(time.RFC3339),
		"season":          string(SeasonOf(ts.Month())),
		"location":        e.Location,
		"damage_estimate": e.DamageEstimate,
		"injuries":        e.Injuries,
		"fatalities":      e.Fatalities,
	}
	if e.Description != "" {
		fields["description"] = e.Description
	}
	return Document{
		ID:        e.EventID,
		Index:     IndexEvents,
		Table:     TableEvents,
		Partition: Partition{Year: ts.Year()},
		Fields:    fields,
	}
}

// LiveReport is a METAR snapshot kept as opaque text.
type LiveReport struct {
	StationID  string    `json:"station_id"`
	RawText    string    `json:"raw_text"`
	CapturedAt time.Time `json:"captured_at"`
}

// Key identifies one snapshot per station per capture minute.
func (r LiveReport) Key() string {
	return fmt.Sprintf("%s-%s-%s", DatasetMETAR, r.StationID, r.CapturedAt.UTC().Format("200601021504"))
}

func (r LiveReport) ToDocument() Document {
	ts := r.CapturedAt.UTC()
	return Document{
		ID:        r.Key(),
		Index:     IndexLiveReports,
		Table:     TableLiveReports,
		Partition: Partition{Year: ts.Year(), Month: int(ts.Month())},
		Fields: map[string]any{
			"station_id":  r.StationID,
			"raw_text":    r.RawText,
			"captured_at": ts.Format(time.RFC3339),
		},
	}
}

func putOptional(fields map[string]any, name string, v *float64) {
	if v != nil {
		fields[name] = *v
	}
}
