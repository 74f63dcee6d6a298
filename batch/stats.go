package batch

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Stats summarizes the items of a job.
type Stats struct {
	Total     int
	Completed int
	Failed    int
	// Pending counts submitted items that are not terminal yet, including
	// items the service has not reported
	Pending int
	// Progress is the percentage of terminal items, rounded to two places
	Progress decimal.Decimal
	// SuccessRate is the percentage of submitted items that completed,
	// rounded to two places
	SuccessRate decimal.Decimal
	Polls       int
	Elapsed     time.Duration
}

// Stats computes item statistics for the snapshot.
func (s Snapshot) Stats() Stats {
	st := Stats{Total: s.Total, Polls: s.Polls, Elapsed: s.UpdatedAt.Sub(s.SubmittedAt)}
	for _, it := range s.Items {
		switch it.Status {
		case ItemCompleted:
			st.Completed++
		case ItemFailed:
			st.Failed++
		}
	}
	st.Pending = max(0, st.Total-st.Completed-st.Failed)
	st.Progress = percent(st.Completed+st.Failed, st.Total)
	st.SuccessRate = percent(st.Completed, st.Total)
	return st
}

func percent(n, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(n)).Mul(hundred).Div(decimal.NewFromInt(int64(total))).Round(2)
}
