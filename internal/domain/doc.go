// Package domain models the NOAA datasets the ingestion pipeline downloads and
// the canonical records it persists.
//
// # Data Sources
//
// Four feeds are pulled from public NOAA archives, one subdirectory each under
// the local base path:
//
//	gsod/<year>/<station>-<year>.csv   Global Summary of the Day (NCEI)
//	isd/<year>/<station>-<year>.csv    Integrated Surface Database, sub-daily (NCEI)
//	storm_events/<name>.csv            Storm Events details/fatalities/locations (NCEI)
//	metar/<station>.txt                current METAR text report (NWS tgftp)
//
// Stations are identified by their USAF-WBAN pair, e.g. "071560-99999"
// (Paris-Orly). The METAR feed is keyed by the part before the dash.
//
// # Canonical Records
//
// Every source row maps into one of:
//
//	PointObservation  station + timestamp + optional measurements (GSOD, ISD)
//	WeatherEvent      storm event keyed by the NCEI EVENT_ID
//	LiveReport        raw METAR text retained verbatim with a capture time
//
// Each record flattens into a [Document] carrying a natural-key ID, the search
// index name, the columnar table name and its partition keys. Writes to both
// stores are keyed by that ID so replays upsert instead of duplicating.
//
// # Damage Strings
//
// Storm Events encode property damage as "<number><suffix>" with suffix K
// (thousands), M (millions), B (billions) or none, e.g. "2.5K" = 2500.
// Empty or malformed values are treated as no damage. See [ParseDamage].
//
// # Seasons
//
// Meteorological seasons on the northern hemisphere calendar:
//
//	Winter: Dec, Jan, Feb | Spring: Mar-May | Summer: Jun-Aug | Fall: Sep-Nov
package domain
