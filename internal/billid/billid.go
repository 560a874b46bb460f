// Package billid allocates bill identifiers across the heterogeneous id
// formats that have appeared in historical data: bare integers, "DR"-prefixed
// display ids, and records carrying an explicit numeric_id.
package billid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sunnybiju2005/billing-application/internal/domain"
)

const displayPrefix = "DR"

// Next derives the next bill identifier from every bill ever seen. It is
// recomputed on each allocation rather than persisted, so out-of-band
// deletions and edits cannot make it hand out a stale id.
func Next(bills []domain.Bill) (display string, numeric int) {
	maxNumeric := 0
	for _, bill := range bills {
		if v := NumericValue(bill); v > maxNumeric {
			maxNumeric = v
		}
	}
	numeric = maxNumeric + 1
	return Format(numeric), numeric
}

// NumericValue extracts the ordering value of a bill, in priority order:
// the explicit numeric_id when present, a plain-integer id, then the digits
// trailing a "DR" prefix. Unparseable garbage counts as 0.
func NumericValue(bill domain.Bill) int {
	if bill.NumericID > 0 {
		return bill.NumericID
	}
	id := strings.TrimSpace(string(bill.ID))
	if v, err := strconv.Atoi(id); err == nil {
		return v
	}
	if strings.HasPrefix(id, displayPrefix) {
		digits := strings.TrimSpace(strings.TrimPrefix(id, displayPrefix))
		if v, err := strconv.Atoi(digits); err == nil {
			return v
		}
	}
	return 0
}

// Format renders a display id: "DR" + the numeric id zero-padded to at least
// four digits. Ids past 9999 keep all their digits.
func Format(numeric int) string {
	return fmt.Sprintf("%s%04d", displayPrefix, numeric)
}
