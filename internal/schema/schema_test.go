package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	f, err := Parse(" Allocation ")
	require.NoError(t, err)
	assert.Equal(t, Allocation, f)

	f, err = Parse("nbl")
	require.NoError(t, err)
	assert.Equal(t, NBL, f)

	_, err = Parse("payroll")
	assert.Error(t, err)
}

func TestColumnsAreCopies(t *testing.T) {
	cols := Columns(Allocation)
	cols[0] = "mutated"
	assert.Equal(t, ColAssociateID, Columns(Allocation)[0])
}

func TestHasIsExact(t *testing.T) {
	assert.True(t, Has(Allocation, ColGradeDescription))
	assert.False(t, Has(Allocation, "gradedescription"))
	assert.False(t, Has(Allocation, ColCategory))
	assert.True(t, Has(NBL, ColCategory))
}

func TestResolve(t *testing.T) {
	tests := []struct {
		family Family
		header string
		want   string
		ok     bool
	}{
		{Allocation, "GradeDescription", ColGradeDescription, true},
		{Allocation, "grade description", ColGradeDescription, true},
		{Allocation, "Grade", ColGradeDescription, true},
		{Allocation, "Project Billability", ColProjectBillability, true},
		{Allocation, "Billing Status", ColBillabilityStatus, true},
		{Allocation, "Start Date", ColAllocationStartDate, true},
		{NBL, "Start Date", ColStartDate, true},
		{NBL, "NBL Category", ColCategory, true},
		{NBL, "Sub_Category", ColSubCategory, true},
		{NBL, "Billing Status", "", false},
		{Allocation, "NBL Category", "", false},
		{Allocation, "Favourite Colour", "", false},
		{Allocation, "   ", "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.family)+"/"+tt.header, func(t *testing.T) {
			got, ok := Resolve(tt.family, tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolvedColumnsBelongToFamily(t *testing.T) {
	for _, f := range Families() {
		for alias := range aliases {
			if col, ok := Resolve(f, alias); ok {
				assert.True(t, Has(f, col), "%s resolved %q to foreign column %q", f, alias, col)
			}
		}
	}
}

func TestIsDateField(t *testing.T) {
	for _, name := range []string{
		ColAllocationStartDate, ColDateOfJoining, ColLastUpdated, ColStartDate,
		"CreatedOn", "ModifiedBy", "ReleaseTime", "PeriodEnd",
	} {
		assert.True(t, IsDateField(name), name)
	}
	for _, name := range []string{
		ColAssociateName, ColAllocationPercentage, ColBillabilityStatus, ColMonth, ColRemarks,
	} {
		assert.False(t, IsDateField(name), name)
	}
}
