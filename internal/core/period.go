package core

import "time"

// MonthRange returns the reconciliation period containing t: the first
// instant of t's calendar month through the first instant of the next
// month, half-open [start, end). The period always follows the clock at
// call time; expenses from prior months stay in the ledger but are never
// re-summed into the live status.
func MonthRange(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 1, 0)
	return start, end
}
