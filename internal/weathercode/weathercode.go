// Package weathercode holds the provider-neutral weather code table (WMO code
// space) and the building blocks adapters use to translate their native
// representation into it. Every translator is total: unknown input resolves
// to Cloudy.
package weathercode

import "strings"

// Cloudy is the documented default for input no translator recognizes.
const Cloudy = 3

// Info describes a canonical weather code.
type Info struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Severity    int    `json:"severity"` // 0 (benign) to 5 (dangerous)
}

var table = map[int]Info{
	0:  {"Clear sky", "clear", 0},
	1:  {"Mainly clear", "mostly-clear", 0},
	2:  {"Partly cloudy", "partly-cloudy", 0},
	3:  {"Overcast", "cloudy", 0},
	45: {"Fog", "fog", 1},
	48: {"Depositing rime fog", "fog", 2},
	51: {"Light drizzle", "drizzle", 1},
	53: {"Moderate drizzle", "drizzle", 1},
	55: {"Dense drizzle", "drizzle", 2},
	56: {"Light freezing drizzle", "freezing-drizzle", 2},
	57: {"Dense freezing drizzle", "freezing-drizzle", 3},
	61: {"Slight rain", "rain", 1},
	63: {"Moderate rain", "rain", 2},
	65: {"Heavy rain", "heavy-rain", 3},
	66: {"Light freezing rain", "freezing-rain", 3},
	67: {"Heavy freezing rain", "freezing-rain", 4},
	71: {"Slight snowfall", "snow", 1},
	73: {"Moderate snowfall", "snow", 2},
	75: {"Heavy snowfall", "heavy-snow", 3},
	77: {"Snow grains", "snow", 1},
	80: {"Slight rain showers", "showers", 1},
	81: {"Moderate rain showers", "showers", 2},
	82: {"Violent rain showers", "heavy-rain", 4},
	85: {"Slight snow showers", "snow-showers", 2},
	86: {"Heavy snow showers", "snow-showers", 3},
	95: {"Thunderstorm", "thunderstorm", 4},
	96: {"Thunderstorm with slight hail", "thunderstorm-hail", 5},
	99: {"Thunderstorm with heavy hail", "thunderstorm-hail", 5},
}

// Known reports whether code is in the canonical table.
func Known(code int) bool {
	_, ok := table[code]
	return ok
}

// Normalize returns code when it is canonical, Cloudy otherwise.
func Normalize(code int) int {
	if Known(code) {
		return code
	}
	return Cloudy
}

// Lookup returns the table entry for code, falling back to Cloudy.
func Lookup(code int) Info {
	if info, ok := table[code]; ok {
		return info
	}
	return table[Cloudy]
}

// Codes returns the number of canonical codes.
func Codes() int {
	return len(table)
}

// Band maps the inclusive numeric range [Min, Max] to Code.
type Band struct {
	Min, Max int
	Code     int
}

// Bands translates numeric provider enumerations. First matching band wins.
type Bands []Band

// Translate returns the canonical code for v, or Cloudy when no band matches.
func (b Bands) Translate(v int) int {
	for _, band := range b {
		if v >= band.Min && v <= band.Max {
			return Normalize(band.Code)
		}
	}
	return Cloudy
}

// KeywordRule maps a lower-case substring to a code.
type KeywordRule struct {
	Keyword string
	Code    int
}

// KeywordRules translates free-text conditions. Order matters: more specific
// phrases must come before the generic words they contain.
type KeywordRules []KeywordRule

// Translate returns the code of the first rule whose keyword occurs in text
// (case-insensitive), or Cloudy.
func (r KeywordRules) Translate(text string) int {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return Cloudy
	}
	for _, rule := range r {
		if strings.Contains(s, rule.Keyword) {
			return Normalize(rule.Code)
		}
	}
	return Cloudy
}

// IconTable translates provider icon identifiers.
type IconTable map[string]int

// Translate returns the code for icon, or Cloudy when the icon is unknown.
func (t IconTable) Translate(icon string) int {
	if code, ok := t[strings.ToLower(strings.TrimSpace(icon))]; ok {
		return Normalize(code)
	}
	return Cloudy
}
