// Package valuation computes robust per-product price and time-to-sale
// statistics from the listing history.
package valuation

import (
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"marktwatch/server/internal/matcher"
	"marktwatch/server/internal/models"
)

// DefaultWindow is the lookback applied when no window is configured.
const DefaultWindow = 90 * 24 * time.Hour

// bidFloorRatio is the fraction of the ask below which a highest bid is not
// trusted. Bids above the floor can raise the clearing price past the ask.
const bidFloorRatio = 0.8

type Engine struct {
	matcher *matcher.Matcher
	window  time.Duration
	logger  *logrus.Logger
}

func NewEngine(m *matcher.Matcher, window time.Duration, logger *logrus.Logger) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Engine{matcher: m, window: window, logger: logger}
}

type sample struct {
	prices    []float64
	durations []float64
}

// Analyze groups the listings by matched product key and computes winsorized
// price percentiles plus the median listing duration per key. Listings
// without a usable ask or without a matching key are skipped, never fatal.
// Keys whose price sample ends up empty are omitted from the result.
func (e *Engine) Analyze(records []models.Listing, now time.Time) map[string]models.ValuationResult {
	cutoff := now.Add(-e.window)
	groups := make(map[string]*sample)

	skipped := 0
	for _, rec := range records {
		if rec.LastSeen.Before(cutoff) {
			continue
		}
		key, ok := e.matcher.Match(rec.Title)
		if !ok {
			continue
		}

		ask := rec.FinalPrice
		if ask == nil {
			ask = rec.Price
		}
		if ask == nil {
			skipped++
			continue
		}

		clearing := *ask
		if rec.HighestBid != nil {
			clearing = math.Max(*rec.HighestBid, *ask*bidFloorRatio)
		}

		g := groups[key]
		if g == nil {
			g = &sample{}
			groups[key] = g
		}
		g.prices = append(g.prices, clearing)

		if rec.StartDate != nil {
			days := math.Trunc(rec.LastSeen.Sub(*rec.StartDate).Hours() / 24)
			g.durations = append(g.durations, days)
		}
	}

	if skipped > 0 && e.logger != nil {
		e.logger.WithField("count", skipped).Debug("Skipped listings without a usable ask price")
	}

	results := make(map[string]models.ValuationResult, len(groups))
	for key, g := range groups {
		if len(g.prices) == 0 {
			continue
		}
		prices := Winsorize(g.prices)
		res := models.ValuationResult{
			P25:             Percentile(prices, 0.25),
			Median:          Percentile(prices, 0.5),
			P75:             Percentile(prices, 0.75),
			TimeToDisappear: math.NaN(),
		}
		if len(g.durations) > 0 {
			res.TimeToDisappear = Percentile(g.durations, 0.5)
		}
		results[key] = res
	}
	return results
}

// Winsorize clamps every value into the sample's own [P10, P90] range,
// using lower index n*0.1 and upper index n*0.9-1 (both truncated). The
// input order is preserved; only the extremes change.
func Winsorize(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	lowerIdx := int(float64(n) * 0.1)
	upperIdx := int(float64(n)*0.9) - 1
	if upperIdx < lowerIdx {
		upperIdx = lowerIdx
	}
	lower := sorted[lowerIdx]
	upper := sorted[upperIdx]

	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Min(math.Max(v, lower), upper)
	}
	return out
}

// Percentile returns the linear-interpolation percentile of the sample at
// fraction pct (0-1). NaN for an empty sample.
func Percentile(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	k := float64(len(sorted)-1) * pct
	f := int(k)
	c := k - float64(f)
	if f+1 < len(sorted) {
		return sorted[f] + (sorted[f+1]-sorted[f])*c
	}
	return sorted[f]
}
