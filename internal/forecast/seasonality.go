package forecast

import (
	"math"
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
	"gonum.org/v1/gonum/stat"
)

const (
	// PeakZThreshold is the z-score above which a month's mean demand counts as a peak.
	PeakZThreshold = 1.96
	// DefaultSignificanceThreshold is the p-value cut-off for significant months.
	DefaultSignificanceThreshold = 0.05
)

// AnalyzeSeasonality computes month-of-year demand statistics for one series.
//
// A month is a peak when the z-score of its mean among the observed monthly
// means exceeds PeakZThreshold. It is significant when a one-sample t-test of
// its daily values against the average monthly mean is positive with a
// p-value below threshold. The profile is a plain value; callers that want to
// reuse it must key it by product.
func AnalyzeSeasonality(series *domain.Series, threshold float64) domain.SeasonalProfile {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultSignificanceThreshold
	}

	profile := domain.SeasonalProfile{Threshold: threshold}
	if series != nil {
		profile.ProductID = series.ProductID
	}

	var byMonth [12][]float64
	if series != nil {
		for _, r := range series.Records {
			m := int(r.Date.Month()) - 1
			byMonth[m] = append(byMonth[m], r.UnitsOrdered)
		}
	}

	observedMeans := make([]float64, 0, 12)
	for i := range profile.Months {
		values := byMonth[i]
		ms := domain.MonthStat{Month: time.Month(i + 1), Count: len(values), PValue: 1}
		if len(values) > 0 {
			ms.Mean = mean(values)
			ms.StdDev = sampleStdDev(values)
			ms.Observed = true
			observedMeans = append(observedMeans, ms.Mean)
		}
		profile.Months[i] = ms
	}

	profile.OverallMean = mean(observedMeans)
	spread := math.Sqrt(stat.PopVariance(observedMeans, nil))

	for i := range profile.Months {
		ms := &profile.Months[i]
		if !ms.Observed {
			ms.Mean = profile.OverallMean
			continue
		}

		if spread > 0 && len(observedMeans) > 1 {
			ms.ZScore = stat.StdScore(ms.Mean, profile.OverallMean, spread)
		}
		ms.Peak = ms.ZScore > PeakZThreshold

		t, p := oneSampleTTest(byMonth[i], profile.OverallMean)
		ms.PValue = p
		ms.Significant = t > 0 && p < threshold

		if ms.Peak {
			profile.PeakMonths = append(profile.PeakMonths, ms.Month)
		}
		if ms.Significant {
			profile.SignificantMonths = append(profile.SignificantMonths, ms.Month)
		}
	}

	return profile
}
