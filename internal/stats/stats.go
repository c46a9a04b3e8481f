// Package stats aligns sparse backend statistics onto the complete label
// range of a period.
package stats

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opus-domini/catwatch/internal/backend"
)

type Period string

const (
	Daily   Period = "daily"
	Monthly Period = "monthly"
	Yearly  Period = "yearly"

	dailyPoints = 30
)

var (
	ErrInvalidPeriod = errors.New("invalid statistics period")
	ErrInvalidMonth  = errors.New("invalid month")
	ErrInvalidYear   = errors.New("invalid year")
)

// DefaultSeries are aligned first, in this order.
var DefaultSeries = []string{
	backend.SeriesEatCount,
	backend.SeriesSleepMinutes,
	backend.SeriesExcreteCount,
}

// ParsePeriod accepts daily, monthly or yearly. Blank means daily.
func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return Daily, nil
	case Daily, Monthly, Yearly:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
}

// Query selects the statistics of one cat. Zero year and month fields are
// filled by Resolve.
type Query struct {
	Cat       string
	Period    Period
	Year      int
	Month     int
	StartYear int
	EndYear   int
}

// Resolve fills missing fields: year and month from now, yearly bounds
// from the earliest and latest backend year, else the current year.
func (q Query) Resolve(now time.Time, years []int) (Query, error) {
	if q.Period == "" {
		q.Period = Daily
	}
	if _, err := ParsePeriod(string(q.Period)); err != nil {
		return q, err
	}
	if q.Year == 0 {
		q.Year = now.Year()
	}
	if q.Month == 0 {
		q.Month = int(now.Month())
	}
	if q.Period == Yearly {
		first, last := now.Year(), now.Year()
		if len(years) > 0 {
			first, last = slices.Min(years), slices.Max(years)
		}
		if q.StartYear == 0 {
			q.StartYear = first
		}
		if q.EndYear == 0 {
			q.EndYear = last
			if len(years) == 0 {
				q.EndYear = q.StartYear
			}
		}
	}
	return q, q.validate()
}

func (q Query) validate() error {
	if q.Month < 1 || q.Month > 12 {
		return fmt.Errorf("%w: %d", ErrInvalidMonth, q.Month)
	}
	for _, y := range []int{q.Year, q.StartYear, q.EndYear} {
		if y < 0 || y > 9999 {
			return fmt.Errorf("%w: %d", ErrInvalidYear, y)
		}
	}
	return nil
}

// Params shapes the backend request for the period.
func (q Query) Params() backend.StatisticsParams {
	p := backend.StatisticsParams{Cat: q.Cat, Period: string(q.Period)}
	switch q.Period {
	case Monthly:
		p.Year = yearParam(q.Year)
	case Yearly:
		p.StartYear = yearParam(q.StartYear)
		p.EndYear = yearParam(q.EndYear)
	default:
		p.Year = yearParam(q.Year)
		if q.Month > 0 {
			p.Month = fmt.Sprintf("%02d", q.Month)
		}
	}
	return p
}

func yearParam(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

// TargetLabels returns the complete, oldest-first label range of q.
func TargetLabels(q Query) ([]string, error) {
	switch q.Period {
	case Daily, "":
		if q.Month < 1 || q.Month > 12 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidMonth, q.Month)
		}
		return dailyLabels(lastDayOfMonth(q.Year, q.Month), dailyPoints), nil
	case Monthly:
		out := make([]string, 12)
		for i := range out {
			out[i] = fmt.Sprintf("%04d-%02d", q.Year, i+1)
		}
		return out, nil
	case Yearly:
		lo, hi := min(q.StartYear, q.EndYear), max(q.StartYear, q.EndYear)
		out := make([]string, 0, hi-lo+1)
		for y := lo; y <= hi; y++ {
			out = append(out, strconv.Itoa(y))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, q.Period)
	}
}

func lastDayOfMonth(year, month int) time.Time {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC)
}

func dailyLabels(end time.Time, n int) []string {
	out := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, end.AddDate(0, 0, -i).Format("2006-01-02"))
	}
	return out
}

// Align emits one value per target label, in target order. Labels absent
// from the raw series, or without a raw value, become 0. A repeated raw
// label keeps its last value.
func Align(target, rawLabels []string, rawValues []float64) []float64 {
	lookup := make(map[string]float64, len(rawLabels))
	for i, label := range rawLabels {
		var v float64
		if i < len(rawValues) {
			v = rawValues[i]
		}
		lookup[label] = v
	}
	out := make([]float64, len(target))
	for i, label := range target {
		out[i] = lookup[label]
	}
	return out
}

type Aligned struct {
	Labels []string
	Names  []string
	Series map[string][]float64
}

func (a Aligned) Values(name string) []float64 {
	if v, ok := a.Series[name]; ok {
		return v
	}
	return make([]float64, len(a.Labels))
}

// AlignAll aligns the default series plus any other series in raw.
func AlignAll(target []string, raw backend.Statistics) Aligned {
	names := append([]string(nil), DefaultSeries...)
	var extra []string
	for name := range raw.Series {
		if !isDefaultSeries(name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	out := Aligned{
		Labels: append([]string(nil), target...),
		Names:  names,
		Series: make(map[string][]float64, len(names)),
	}
	for _, name := range names {
		out.Series[name] = Align(target, raw.Labels, raw.Series[name])
	}
	return out
}

func isDefaultSeries(name string) bool {
	for _, n := range DefaultSeries {
		if n == name {
			return true
		}
	}
	return false
}

type Summary struct {
	SleepHours   float64
	EatCount     float64
	ExcreteCount float64
}

func Summarize(a Aligned) Summary {
	return Summary{
		SleepHours:   sum(a.Values(backend.SeriesSleepMinutes)) / 60,
		EatCount:     sum(a.Values(backend.SeriesEatCount)),
		ExcreteCount: sum(a.Values(backend.SeriesExcreteCount)),
	}
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
