package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/noaa-ingest/internal/domain"
)

// Missing-value sentinels.
const (
	gsodMissingTemp = 9999.9
	gsodMissingWind = 999.9
	gsodMissingPrcp = 99.99
	gsodMissingWDir = 999

	isdMissingTemp  = "+9999"
	isdMissingSLP   = "99999"
	isdMissingDir   = "999"
	isdMissingSpeed = "9999"
	isdMissingRH    = "999"
)

// ISD encodes temperature, pressure and wind speed in tenths.
const isdScale = 10.0

// MapGSOD converts one daily-summary row.
func MapGSOD(r Row) (domain.PointObservation, error) {
	station, err := r.require("STATION")
	if err != nil {
		return domain.PointObservation{}, err
	}
	date, err := r.require("DATE")
	if err != nil {
		return domain.PointObservation{}, err
	}
	ts, err := parseTime("DATE", date, "20060102", "2006-01-02")
	if err != nil {
		return domain.PointObservation{}, err
	}

	obs := domain.PointObservation{StationID: station, Source: domain.DatasetGSOD, Timestamp: ts}

	if obs.Temperature, err = r.optionalFloat("TEMP", gsodMissingTemp); err != nil {
		return domain.PointObservation{}, err
	}
	if obs.TemperatureMax, err = r.optionalFloat("MAX", gsodMissingTemp); err != nil {
		return domain.PointObservation{}, err
	}
	if obs.TemperatureMin, err = r.optionalFloat("MIN", gsodMissingTemp); err != nil {
		return domain.PointObservation{}, err
	}
	if obs.WindSpeed, err = r.optionalFloat("WDSP", gsodMissingWind); err != nil {
		return domain.PointObservation{}, err
	}
	if obs.WindDirection, err = r.optionalFloat("WDIR", gsodMissingWDir); err != nil {
		return domain.PointObservation{}, err
	}

	// PRCP carries a trailing source flag letter (A-I) in the published files.
	prcp := r.get("PRCP")
	if n := len(prcp); n > 1 && prcp[n-1] >= 'A' && prcp[n-1] <= 'I' {
		prcp = prcp[:n-1]
	}
	if obs.Precipitation, err = optionalFloat("PRCP", prcp, gsodMissingPrcp); err != nil {
		return domain.PointObservation{}, err
	}
	return obs, nil
}

// MapISD converts one sub-daily row. Encoded ISD groups ("+0123,1") are
// decoded to scaled values; plain numbers are taken as-is.
func MapISD(r Row) (domain.PointObservation, error) {
	station, err := r.require("STATION")
	if err != nil {
		return domain.PointObservation{}, err
	}
	date, err := r.require("DATE")
	if err != nil {
		return domain.PointObservation{}, err
	}
	ts, err := parseTime("DATE", date, "200601021504", "2006-01-02T15:04:05")
	if err != nil {
		return domain.PointObservation{}, err
	}

	obs := domain.PointObservation{StationID: station, Source: domain.DatasetISD, Timestamp: ts}

	if obs.Temperature, err = isdScaled("TMP", r.get("TMP"), isdMissingTemp); err != nil {
		return domain.PointObservation{}, err
	}
	if obs.Pressure, err = isdScaled("SLP", r.get("SLP"), isdMissingSLP); err != nil {
		return domain.PointObservation{}, err
	}
	if obs.Humidity, err = isdPlain("RH", r.get("RH"), isdMissingRH); err != nil {
		return domain.PointObservation{}, err
	}
	if obs.WindDirection, obs.WindSpeed, err = isdWind(r.get("WND")); err != nil {
		return domain.PointObservation{}, err
	}
	return obs, nil
}

// isdScaled decodes "<value>,<quality>" groups stored in tenths. A value
// without a quality code is a plain number and is not scaled.
func isdScaled(name, v, missing string) (*float64, error) {
	divisor := 1.0
	if strings.Contains(v, ",") {
		divisor = isdScale
	}
	return isdValue(name, v, missing, divisor)
}

// isdPlain decodes groups whose value is never scaled.
func isdPlain(name, v, missing string) (*float64, error) {
	return isdValue(name, v, missing, 1)
}

func isdValue(name, v, missing string, divisor float64) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	value, _, _ := strings.Cut(v, ",")
	value = strings.TrimSpace(value)
	if missing != "" && value == missing {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrBadValue, name, v)
	}
	f /= divisor
	return &f, nil
}

// isdWind decodes "ddd,q,t,ssss,q" into direction (degrees) and speed (m/s).
// A plain number is taken as the speed.
func isdWind(v string) (dir, speed *float64, err error) {
	if v == "" {
		return nil, nil, nil
	}
	parts := strings.Split(v, ",")
	if len(parts) == 1 {
		speed, err = isdPlain("WND", v, "")
		return nil, speed, err
	}
	if len(parts) != 5 {
		return nil, nil, fmt.Errorf("%w: WND=%q", ErrBadValue, v)
	}
	if dir, err = isdPlain("WND", parts[0], isdMissingDir); err != nil {
		return nil, nil, err
	}
	if speed, err = isdValue("WND", parts[3], isdMissingSpeed, isdScale); err != nil {
		return nil, nil, err
	}
	return dir, speed, nil
}

// MapStormEvent converts one Storm Events details row.
func MapStormEvent(r Row) (domain.WeatherEvent, error) {
	id, err := r.require("EVENT_ID")
	if err != nil {
		return domain.WeatherEvent{}, err
	}
	begin, err := r.require("BEGIN_DATE_TIME")
	if err != nil {
		return domain.WeatherEvent{}, err
	}
	ts, err := parseTime("BEGIN_DATE_TIME", begin, "2006-01-02 15:04:05", "02-Jan-06 15:04:05")
	if err != nil {
		return domain.WeatherEvent{}, err
	}
	ts = withCentury(ts, r.eventYear())
	injuries, err := r.count("INJURIES_DIRECT")
	if err != nil {
		return domain.WeatherEvent{}, err
	}
	deaths, err := r.count("DEATHS_DIRECT")
	if err != nil {
		return domain.WeatherEvent{}, err
	}

	desc := r.get("EPISODE_NARRATIVE")
	if desc == "" {
		desc = r.get("EVENT_NARRATIVE")
	}

	return domain.WeatherEvent{
		EventID:        id,
		EventType:      r.get("EVENT_TYPE"),
		Timestamp:      ts,
		Location:       location(r.get("STATE"), r.get("CZ_NAME")),
		DamageEstimate: domain.ParseDamage(r.get("DAMAGE_PROPERTY")),
		Injuries:       injuries,
		Fatalities:     deaths,
		Description:    desc,
	}, nil
}

// eventYear reads the four-digit year from BEGIN_YEARMONTH ("195504") or
// YEAR. Zero means neither column is usable.
func (r Row) eventYear() int {
	if ym := r.get("BEGIN_YEARMONTH"); len(ym) >= 4 {
		if y, err := strconv.Atoi(ym[:4]); err == nil {
			return y
		}
	}
	if y, err := strconv.Atoi(r.get("YEAR")); err == nil && y >= 1000 {
		return y
	}
	return 0
}

// withCentury moves a timestamp parsed from a two-digit year into the
// century of year. "28-APR-55" parses as 2055 but belongs to 1955.
func withCentury(ts time.Time, year int) time.Time {
	if year == 0 || ts.Year() == year || ts.Year()%100 != year%100 {
		return ts
	}
	return ts.AddDate(year-ts.Year(), 0, 0)
}

func location(state, zone string) string {
	switch {
	case state == "":
		return zone
	case zone == "":
		return state
	default:
		return state + "-" + zone
	}
}

// NewLiveReport wraps a METAR text file. The text is kept verbatim.
func NewLiveReport(station, text string, capturedAt time.Time) (domain.LiveReport, error) {
	if station == "" {
		return domain.LiveReport{}, fmt.Errorf("%w: station", ErrMissingField)
	}
	if strings.TrimSpace(text) == "" {
		return domain.LiveReport{}, fmt.Errorf("%w: report text", ErrMissingField)
	}
	return domain.LiveReport{StationID: station, RawText: text, CapturedAt: capturedAt.UTC()}, nil
}
