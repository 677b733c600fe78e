// Package eligibility compares a member's stats against an event's requirement thresholds.
package eligibility

import "github.com/blok13/clanportal/internal/models"

// Result is the outcome of a requirements check.
type Result struct {
	OK bool `json:"ok"`
	// Missing lists the unmet stat keys in canonical order.
	Missing []string `json:"missing,omitempty"`
}

// Check reports whether have meets need on every stat key. A zero requirement is always met.
func Check(have, need models.StatBlock) Result {
	var missing []string
	for _, k := range models.StatKeys {
		if have.Get(k) < need.Get(k) {
			missing = append(missing, k)
		}
	}
	return Result{OK: len(missing) == 0, Missing: missing}
}

// Err returns a *models.RequirementsError for a failed result, nil otherwise.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &models.RequirementsError{Missing: r.Missing}
}
