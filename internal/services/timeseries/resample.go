// Package timeseries converts raw valuation and price history into
// fixed-timeframe chart series.
package timeseries

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/bobmcallan/folio/internal/models"
)

// DefaultMaxPoints is the raw point count above which dense timeframes
// switch to their coarser bucket.
const DefaultMaxPoints = 300

// Bucket is the width of one resampling interval.
type Bucket string

const (
	BucketMinute Bucket = "minute"
	BucketHour   Bucket = "hour"
	BucketDay    Bucket = "day"
	BucketWeek   Bucket = "week"
	BucketMonth  Bucket = "month"
)

// frame describes one timeframe: how far back it looks, its bucket, and the
// coarser bucket used when the window is denser than max points.
type frame struct {
	back   func(now time.Time) time.Time
	bucket Bucket
	coarse Bucket
}

var frames = map[models.Timeframe]frame{
	models.Timeframe1D: {back: func(now time.Time) time.Time { return now.Add(-24 * time.Hour) }, bucket: BucketMinute, coarse: BucketHour},
	models.Timeframe1W: {back: func(now time.Time) time.Time { return now.Add(-7 * 24 * time.Hour) }, bucket: BucketHour},
	models.Timeframe1M: {back: func(now time.Time) time.Time { return now.AddDate(0, -1, 0) }, bucket: BucketDay},
	models.Timeframe3M: {back: func(now time.Time) time.Time { return now.AddDate(0, -3, 0) }, bucket: BucketDay},
	models.Timeframe1Y: {back: func(now time.Time) time.Time { return now.AddDate(-1, 0, 0) }, bucket: BucketWeek},
	models.Timeframe5Y: {back: func(now time.Time) time.Time { return now.AddDate(-5, 0, 0) }, bucket: BucketWeek, coarse: BucketMonth},
}

// Options tune resampling.
type Options struct {
	// Location aligns day, week and month boundaries. Defaults to UTC.
	Location *time.Location
	// MaxPoints is the density threshold for coarse buckets. Defaults to DefaultMaxPoints.
	MaxPoints int
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.MaxPoints <= 0 {
		o.MaxPoints = DefaultMaxPoints
	}
	return o
}

// WindowStart returns the earliest timestamp kept for tf at now.
func WindowStart(tf models.Timeframe, now time.Time, loc *time.Location) (time.Time, error) {
	f, ok := frames[tf]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", models.ErrUnknownTimeframe, tf)
	}
	if loc == nil {
		loc = time.UTC
	}
	return f.back(now.In(loc)), nil
}

// Plan reports the window start and bucket that Resample would use.
func Plan(history []models.TimeSeriesPoint, tf models.Timeframe, now time.Time, opts Options) (time.Time, Bucket, error) {
	opts = opts.withDefaults()
	start, err := WindowStart(tf, now, opts.Location)
	if err != nil {
		return time.Time{}, "", err
	}
	window := inWindow(ascending(history), start)
	return start, bucketFor(frames[tf], len(window), opts.MaxPoints), nil
}

func bucketFor(f frame, n, maxPoints int) Bucket {
	if f.coarse != "" && n > maxPoints {
		return f.coarse
	}
	return f.bucket
}

// Resample keeps the last raw point in each bucket of tf's window ending at
// now. Points before the window start are dropped. Each yielded point is the
// raw point unchanged. The result is lazy and can be ranged over repeatedly;
// empty history yields an empty sequence. The input is not modified.
func Resample(history []models.TimeSeriesPoint, tf models.Timeframe, now time.Time, opts Options) (iter.Seq[models.TimeSeriesPoint], error) {
	opts = opts.withDefaults()
	start, err := WindowStart(tf, now, opts.Location)
	if err != nil {
		return nil, err
	}

	window := inWindow(ascending(history), start)
	bucket := bucketFor(frames[tf], len(window), opts.MaxPoints)
	loc := opts.Location

	return func(yield func(models.TimeSeriesPoint) bool) {
		for i, p := range window {
			if i+1 < len(window) && bucketKey(window[i+1].Timestamp, bucket, loc).Equal(bucketKey(p.Timestamp, bucket, loc)) {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}, nil
}

// ascending returns history in timestamp order, copying only when the input
// is out of order.
func ascending(history []models.TimeSeriesPoint) []models.TimeSeriesPoint {
	byTime := func(a, b models.TimeSeriesPoint) int { return a.Timestamp.Compare(b.Timestamp) }
	if slices.IsSortedFunc(history, byTime) {
		return history
	}
	sorted := slices.Clone(history)
	slices.SortStableFunc(sorted, byTime)
	return sorted
}

// inWindow drops the points before start from an ascending slice.
func inWindow(sorted []models.TimeSeriesPoint, start time.Time) []models.TimeSeriesPoint {
	// first point not before start
	i, _ := slices.BinarySearchFunc(sorted, start, func(p models.TimeSeriesPoint, t time.Time) int {
		return p.Timestamp.Compare(t)
	})
	return sorted[i:len(sorted):len(sorted)]
}

// bucketKey returns the start of the bucket holding t.
func bucketKey(t time.Time, b Bucket, loc *time.Location) time.Time {
	t = t.In(loc)
	y, m, d := t.Date()
	switch b {
	case BucketMinute:
		return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
	case BucketHour:
		return time.Date(y, m, d, t.Hour(), 0, 0, 0, loc)
	case BucketDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case BucketWeek:
		offset := (int(t.Weekday()) + 6) % 7 // days since Monday
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case BucketMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return t
	}
}
