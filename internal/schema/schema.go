// Package schema holds the fixed registry of record families, their canonical
// column lists, the header alias table and the date-field rules applied at
// ingestion time.
package schema

import (
	"fmt"
	"slices"
	"strings"
)

// Family identifies a record family and the table backing it.
type Family string

const (
	Allocation Family = "allocation"
	NBL        Family = "nbl"
)

// Allocation columns.
const (
	ColAssociateID          = "AssociateID"
	ColAssociateName        = "AssociateName"
	ColDesignation          = "Designation"
	ColGradeDescription     = "GradeDescription"
	ColProjectID            = "ProjectID"
	ColProjectName          = "ProjectName"
	ColCustomerName         = "CustomerName"
	ColProjectBillability   = "ProjectBillability"
	ColBillabilityStatus    = "BillabilityStatus"
	ColBillabilityReason    = "BillabilityReason"
	ColAllocationStartDate  = "AllocationStartDate"
	ColAllocationEndDate    = "AllocationEndDate"
	ColAllocationPercentage = "AllocationPercentage"
	ColLocation             = "Location"
	ColCity                 = "City"
	ColVertical             = "Vertical"
	ColPractice             = "Practice"
	ColServiceLine          = "ServiceLine"
	ColManagerName          = "ManagerName"
	ColDateOfJoining        = "DateOfJoining"
	ColLastUpdated          = "LastUpdated"
)

// NBL columns not shared with the allocation family.
const (
	ColCategory    = "Category"
	ColSubCategory = "SubCategory"
	ColNBLReason   = "NBLReason"
	ColMonth       = "Month"
	ColStartDate   = "StartDate"
	ColEndDate     = "EndDate"
	ColRemarks     = "Remarks"
)

type definition struct {
	table   string
	columns []string
}

var registry = map[Family]definition{
	Allocation: {
		table: "allocations",
		columns: []string{
			ColAssociateID, ColAssociateName, ColDesignation, ColGradeDescription,
			ColProjectID, ColProjectName, ColCustomerName,
			ColProjectBillability, ColBillabilityStatus, ColBillabilityReason,
			ColAllocationStartDate, ColAllocationEndDate, ColAllocationPercentage,
			ColLocation, ColCity, ColVertical, ColPractice, ColServiceLine,
			ColManagerName, ColDateOfJoining, ColLastUpdated,
		},
	},
	NBL: {
		table: "nbl_records",
		columns: []string{
			ColAssociateID, ColAssociateName, ColGradeDescription,
			ColProjectID, ColProjectName,
			ColCategory, ColSubCategory, ColNBLReason, ColMonth,
			ColStartDate, ColEndDate, ColRemarks,
		},
	},
}

// Lookup lists used by the categorizers. Earlier entries win when non-empty.
var (
	BillingStatusFields = []string{ColProjectBillability, ColBillabilityStatus}
	GradeFields         = []string{ColGradeDescription, ColDesignation}
	CategoryFields      = []string{ColCategory}
	SubCategoryFields   = []string{ColSubCategory, ColNBLReason}
)

// Families returns every registered family in a stable order.
func Families() []Family {
	return []Family{Allocation, NBL}
}

// Parse resolves a family name, case-insensitively.
func Parse(s string) (Family, error) {
	f := Family(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := registry[f]; !ok {
		return "", fmt.Errorf("unknown record family %q", s)
	}
	return f, nil
}

// Table returns the backing table name of f.
func Table(f Family) string {
	return registry[f].table
}

// Columns returns a copy of the canonical column list of f, in declaration order.
func Columns(f Family) []string {
	return slices.Clone(registry[f].columns)
}

// Has reports whether name is a canonical column of f. The match is exact.
func Has(f Family, name string) bool {
	return slices.Contains(registry[f].columns, name)
}

func (f Family) String() string { return string(f) }
