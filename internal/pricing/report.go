package pricing

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Snapshot summarizes a batch of priced rows for reporting.
type Snapshot struct {
	Rows int `json:"rows"`

	MeanPremium decimal.Decimal `json:"mean_premium"`
	MinPremium  decimal.Decimal `json:"min_premium"`
	MaxPremium  decimal.Decimal `json:"max_premium"`
	P99Premium  decimal.Decimal `json:"p99_premium"`

	MeanMultiplier float64 `json:"mean_multiplier"`

	ByClaims   []BandStat `json:"by_prior_claims"`
	ByCarValue []BandStat `json:"by_car_value"`
}

// BandStat is the premium summary for one grouping band.
type BandStat struct {
	Band        string          `json:"band"`
	Rows        int             `json:"rows"`
	MeanPremium decimal.Decimal `json:"mean_premium"`
}

var carValueBands = []struct {
	label string
	lo    float64
	hi    float64
}{
	{"<20k", 0, 20000},
	{"20k-35k", 20000, 35000},
	{"35k-60k", 35000, 60000},
	{"60k-90k", 60000, 90000},
	{"90k-130k", 90000, 130000},
	{">=130k", 130000, math.Inf(1)},
}

// Summarize computes a Snapshot over priced rows. An empty input yields a
// zero-valued snapshot.
func Summarize(priced []PricedRow) Snapshot {
	snap := Snapshot{Rows: len(priced)}
	if len(priced) == 0 {
		return snap
	}

	premiums := make([]decimal.Decimal, 0, len(priced))
	sum := decimal.Zero
	multSum := 0.0
	for i := range priced {
		p := priced[i].Pricing.FinalMonthlyPremium
		premiums = append(premiums, p)
		sum = sum.Add(p)
		multSum += priced[i].Pricing.FinalMultiplier
	}

	sort.Slice(premiums, func(i, j int) bool { return premiums[i].LessThan(premiums[j]) })

	snap.MinPremium = premiums[0]
	snap.MaxPremium = premiums[len(premiums)-1]
	snap.MeanPremium = sum.Div(decimal.NewFromInt(int64(len(premiums)))).Round(2)
	snap.P99Premium = premiums[percentileIndex(len(premiums), 0.99)]
	snap.MeanMultiplier = round6(multSum / float64(len(priced)))

	snap.ByClaims = claimsBands(priced)
	snap.ByCarValue = valueBands(priced)
	return snap
}

func percentileIndex(n int, q float64) int {
	idx := int(math.Ceil(q*float64(n))) - 1
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}

func claimsBands(priced []PricedRow) []BandStat {
	labels := []string{"0", "1", "2", "3+"}
	sums := make([]decimal.Decimal, len(labels))
	counts := make([]int, len(labels))
	for i := range labels {
		sums[i] = decimal.Zero
	}

	for i := range priced {
		band := priced[i].PriorClaimCount
		if band > 3 {
			band = 3
		}
		if band < 0 {
			band = 0
		}
		sums[band] = sums[band].Add(priced[i].Pricing.FinalMonthlyPremium)
		counts[band]++
	}

	return assembleBands(labels, sums, counts)
}

func valueBands(priced []PricedRow) []BandStat {
	labels := make([]string, len(carValueBands))
	sums := make([]decimal.Decimal, len(carValueBands))
	counts := make([]int, len(carValueBands))
	for i, b := range carValueBands {
		labels[i] = b.label
		sums[i] = decimal.Zero
	}

	for i := range priced {
		v := priced[i].CarValue
		for bi, b := range carValueBands {
			if v >= b.lo && v < b.hi {
				sums[bi] = sums[bi].Add(priced[i].Pricing.FinalMonthlyPremium)
				counts[bi]++
				break
			}
		}
	}

	return assembleBands(labels, sums, counts)
}

func assembleBands(labels []string, sums []decimal.Decimal, counts []int) []BandStat {
	out := make([]BandStat, 0, len(labels))
	for i, label := range labels {
		stat := BandStat{Band: label, Rows: counts[i], MeanPremium: decimal.Zero}
		if counts[i] > 0 {
			stat.MeanPremium = sums[i].Div(decimal.NewFromInt(int64(counts[i]))).Round(2)
		}
		out = append(out, stat)
	}
	return out
}
