package models

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe selects a chart lookback window.
type Timeframe string

const (
	Timeframe1D Timeframe = "1D"
	Timeframe1W Timeframe = "1W"
	Timeframe1M Timeframe = "1M"
	Timeframe3M Timeframe = "3M"
	Timeframe1Y Timeframe = "1Y"
	Timeframe5Y Timeframe = "5Y"
)

// Timeframes lists every supported timeframe, shortest first.
var Timeframes = []Timeframe{Timeframe1D, Timeframe1W, Timeframe1M, Timeframe3M, Timeframe1Y, Timeframe5Y}

// ParseTimeframe accepts a timeframe token case-insensitively.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Timeframes {
		if tf == known {
			return tf, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
}

// TimeSeriesPoint is one chart sample. Price is set only for per-symbol series.
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"date"`
	Value     Money     `json:"value"`
	Price     *Money    `json:"price,omitempty"`
}
