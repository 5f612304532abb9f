package schema

import (
	"slices"
	"strings"
)

// DateFields are the columns always treated as dates.
var DateFields = []string{
	ColAllocationStartDate,
	ColAllocationEndDate,
	ColDateOfJoining,
	ColLastUpdated,
	ColStartDate,
	ColEndDate,
}

var dateHints = []string{"date", "time", "start", "end", "created", "modified", "updated"}

// IsDateField reports whether values of the named field get date normalization:
// either an exact DateFields entry or a name containing one of the date hints.
func IsDateField(name string) bool {
	if slices.Contains(DateFields, name) {
		return true
	}
	lower := strings.ToLower(name)
	for _, hint := range dateHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
