package alfred

import (
	"sort"

	"FinDS/internal/domain/models"
)

// DateSpans finds contiguous periods where the indicator exceeds threshold,
// such as NBER recession months in USREC. Each span also takes in the period
// just before the first exceedance, so shading starts at the peak.
func DateSpans(points []models.Point, threshold float64) []models.Span {
	sorted := make([]models.Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date < sorted[j].Date })

	var spans []models.Span
	open := false
	for i, p := range sorted {
		in := p.Value > threshold || (i+1 < len(sorted) && sorted[i+1].Value > threshold)
		switch {
		case in && !open:
			spans = append(spans, models.Span{First: p.Date, Last: p.Date})
			open = true
		case in:
			spans[len(spans)-1].Last = p.Date
		default:
			open = false
		}
	}
	return spans
}
