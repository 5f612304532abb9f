package schema

import "strings"

// aliases maps normalized header variants to canonical columns. Canonical
// names resolve through normalization on their own and need no entry here.
// An alias only applies to families that own the target column.
var aliases = map[string]string{
	"associate":           ColAssociateID,
	"associateno":         ColAssociateID,
	"empid":               ColAssociateID,
	"employeeid":          ColAssociateID,
	"name":                ColAssociateName,
	"employeename":        ColAssociateName,
	"grade":               ColGradeDescription,
	"gradedesc":           ColGradeDescription,
	"projectdescription":  ColProjectName,
	"customer":            ColCustomerName,
	"billability":         ColProjectBillability,
	"billingstatus":       ColBillabilityStatus,
	"billstatus":          ColBillabilityStatus,
	"billabilitycategory": ColBillabilityStatus,
	"allocationstart":     ColAllocationStartDate,
	"allocationend":       ColAllocationEndDate,
	"allocation":          ColAllocationPercentage,
	"allocationpct":       ColAllocationPercentage,
	"manager":             ColManagerName,
	"doj":                 ColDateOfJoining,
	"joiningdate":         ColDateOfJoining,
	"lastmodified":        ColLastUpdated,
	"updatedon":           ColLastUpdated,
	"nblcategory":         ColCategory,
	"nblsubcategory":      ColSubCategory,
	"subcat":              ColSubCategory,
	"reason":              ColNBLReason,
	"nblmonth":            ColMonth,
	"comments":            ColRemarks,
}

// allocationAliases covers variants whose target differs by family: an
// allocation export's "Start Date" is the allocation start, while NBL
// exports carry a canonical StartDate column.
var allocationAliases = map[string]string{
	"startdate": ColAllocationStartDate,
	"enddate":   ColAllocationEndDate,
}

// Resolve maps a declared header to the canonical column of f it stands for.
// Case, surrounding space, inner spaces, underscores, dots and hyphens are ignored.
func Resolve(f Family, header string) (string, bool) {
	key := normalize(header)
	if key == "" {
		return "", false
	}
	for _, col := range registry[f].columns {
		if normalize(col) == key {
			return col, true
		}
	}
	if f == Allocation {
		if col, ok := allocationAliases[key]; ok {
			return col, true
		}
	}
	if col, ok := aliases[key]; ok && Has(f, col) {
		return col, true
	}
	return "", false
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '_', '-', '.', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
