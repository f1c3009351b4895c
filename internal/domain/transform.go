package domain

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Season is a meteorological season label.
type Season string

const (
	Winter Season = "Winter"
	Spring Season = "Spring"
	Summer Season = "Summer"
	Fall   Season = "Fall"
)

// damageMultipliers maps the Storm Events damage suffix to its scale.
var damageMultipliers = map[byte]float64{
	'K': 1e3,
	'M': 1e6,
	'B': 1e9,
}

// ParseDamage converts a Storm Events damage string such as "2.5K" or "1.2M"
// into a dollar amount. A missing suffix means the number is taken as-is.
// Empty, malformed or non-finite input yields 0.
func ParseDamage(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	multiplier := 1.0
	if m, ok := damageMultipliers[upper(s[len(s)-1])]; ok {
		multiplier = m
		s = strings.TrimSpace(s[:len(s)-1])
	}
	if s == "" {
		return 0
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v * multiplier
}

// SeasonOf buckets a month into its meteorological season. Anything outside
// Dec-Aug falls through to Fall.
func SeasonOf(m time.Month) Season {
	switch m {
	case time.December, time.January, time.February:
		return Winter
	case time.March, time.April, time.May:
		return Spring
	case time.June, time.July, time.August:
		return Summer
	default:
		return Fall
	}
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}
