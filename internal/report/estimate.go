package report

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Estimate is the projected service usage for a set of assets.
type Estimate struct {
	Assets  int
	Minutes float64
	Cost    float64
}

// EstimateCost projects usage from an assumed average asset length.
func EstimateCost(assets int, avgMinutes, costPerMinute float64) Estimate {
	if assets < 0 {
		assets = 0
	}
	minutes := float64(assets) * avgMinutes
	return Estimate{Assets: assets, Minutes: minutes, Cost: minutes * costPerMinute}
}

func (e Estimate) String() string {
	return fmt.Sprintf("%s assets, ~%s audio minutes, ~$%s",
		humanize.Comma(int64(e.Assets)),
		humanize.CommafWithDigits(e.Minutes, 1),
		humanize.CommafWithDigits(e.Cost, 2))
}

// ETA projects remaining time from the average time per processed item.
// Zero is returned when nothing has been processed yet.
func ETA(elapsed time.Duration, processed, remaining int) time.Duration {
	if processed <= 0 || remaining <= 0 || elapsed <= 0 {
		return 0
	}
	perItem := elapsed / time.Duration(processed)
	return (perItem * time.Duration(remaining)).Round(time.Second)
}
