package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDamage(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"2.5K", 2500},
		{"1.2M", 1200000},
		{"3B", 3e9},
		{"0K", 0},
		{"150", 150},
		{"10.00k", 10000},
		{" 4M ", 4e6},
		{"", 0},
		{"   ", 0},
		{"K", 0},
		{"garbage", 0},
		{"1.2.3K", 0},
		{"NaN", 0},
		{"InfK", 0},
		{"-", 0},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseDamage(tt.input), 1e-6)
		})
	}
}

func TestParseDamage_NeverPanics(t *testing.T) {
	inputs := []string{"\x00", "KKK", "1e400", "-1e400M", "💥", "1,000K", ".K"}
	for _, in := range inputs {
		assert.NotPanics(t, func() { ParseDamage(in) }, in)
	}
}

func TestSeasonOf(t *testing.T) {
	want := map[time.Month]Season{
		time.December:  Winter,
		time.January:   Winter,
		time.February:  Winter,
		time.March:     Spring,
		time.April:     Spring,
		time.May:       Spring,
		time.June:      Summer,
		time.July:      Summer,
		time.August:    Summer,
		time.September: Fall,
		time.October:   Fall,
		time.November:  Fall,
	}
	for m, s := range want {
		assert.Equal(t, s, SeasonOf(m), m.String())
	}
}

func TestSeasonOf_OutOfRangeIsFall(t *testing.T) {
	assert.Equal(t, Fall, SeasonOf(time.Month(0)))
	assert.Equal(t, Fall, SeasonOf(time.Month(13)))
}
