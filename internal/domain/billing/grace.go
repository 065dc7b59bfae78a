package billing

import "time"

// GraceEnd computes when a past_due subscription loses access: graceDays
// after the billing period that failed to renew.
func GraceEnd(periodEnd time.Time, graceDays int) time.Time {
	if graceDays < 0 {
		graceDays = 0
	}
	return periodEnd.AddDate(0, 0, graceDays)
}
