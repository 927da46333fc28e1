package forecast

import (
	"time"

	"github.com/andresuchdata/autopo-py/forecast/internal/domain"
)

// DefaultBaselineDays is the size of each baseline window around an event.
const DefaultBaselineDays = 15

// AnalyzeEvents measures the demand uplift of every window that overlaps the
// series. The baseline is the average of the mean demand in the baselineDays
// before the window and the baselineDays after it; when only one side has data
// that side alone is used. The impact factor falls back to 1.0 when the
// baseline is zero or empty.
func AnalyzeEvents(series *domain.Series, windows []domain.EventWindow, baselineDays int) []domain.EventImpact {
	if series.Len() == 0 {
		return nil
	}
	if baselineDays <= 0 {
		baselineDays = DefaultBaselineDays
	}

	start := series.Start()
	demand := series.Demand()

	// between returns demand for the inclusive date range clipped to the series.
	between := func(from, to time.Time) []float64 {
		lo := int(from.Sub(start) / day)
		hi := int(to.Sub(start)/day) + 1
		if lo < 0 {
			lo = 0
		}
		if hi > len(demand) {
			hi = len(demand)
		}
		if lo >= hi {
			return nil
		}
		return demand[lo:hi]
	}

	impacts := make([]domain.EventImpact, 0, len(windows))
	for _, w := range windows {
		inside := between(w.Start, w.End)
		if len(inside) == 0 {
			continue
		}

		pre := between(w.Start.AddDate(0, 0, -baselineDays), w.Start.AddDate(0, 0, -1))
		post := between(w.End.AddDate(0, 0, 1), w.End.AddDate(0, 0, baselineDays))

		var sides []float64
		if len(pre) > 0 {
			sides = append(sides, mean(pre))
		}
		if len(post) > 0 {
			sides = append(sides, mean(post))
		}

		impact := domain.EventImpact{
			Window:       w,
			ActivityMean: mean(inside),
			BaselineMean: mean(sides),
			DurationDays: w.DurationDays(),
			ImpactFactor: 1.0,
		}
		if len(sides) > 0 && impact.BaselineMean != 0 {
			impact.ImpactFactor = impact.ActivityMean / impact.BaselineMean
		}
		impacts = append(impacts, impact)
	}

	return impacts
}

// ImpactByEvent averages impact factors per event name across years.
func ImpactByEvent(impacts []domain.EventImpact) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, im := range impacts {
		sums[im.Window.Name] += im.ImpactFactor
		counts[im.Window.Name]++
	}
	out := make(map[string]float64, len(sums))
	for name, s := range sums {
		out[name] = s / float64(counts[name])
	}
	return out
}
