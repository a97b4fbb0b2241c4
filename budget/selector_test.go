package budget_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/care-ledger/budget"
	"github.com/warp/care-ledger/generic"
)

func cand(id, code string, available int64, validTo time.Time) budget.Candidate {
	return budget.Candidate{
		AllocationID: generic.AllocationID(id),
		BudgetTypeID: generic.BudgetTypeID(code),
		Code:         code,
		Name:         code,
		Available:    decimal.NewFromInt(available),
		ValidTo:      validTo,
	}
}

func permutations(in []budget.Candidate) [][]budget.Candidate {
	if len(in) <= 1 {
		return [][]budget.Candidate{append([]budget.Candidate(nil), in...)}
	}
	var out [][]budget.Candidate
	for i := range in {
		rest := make([]budget.Candidate, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]budget.Candidate{in[i]}, p...))
		}
	}
	return out
}

var (
	jan31 = generic.Day(2025, time.January, 31)
	jun30 = generic.Day(2025, time.June, 30)
	dec31 = generic.Day(2025, time.December, 31)
)

func TestSelector_NoCandidatesIsDirectAssistance(t *testing.T) {
	sel := budget.NewSelector(nil)
	assert.Equal(t, budget.DirectAssistance{}, sel.Select("Home Care", nil))
}

func TestSelector_ExhaustedCandidatesAreDirectAssistance(t *testing.T) {
	// GIVEN: Allocations with zero and negative available
	// WHEN: Selecting
	// THEN: Nothing can pay
	sel := budget.NewSelector(nil)
	d := sel.Select("Home Care", []budget.Candidate{
		cand("a", "SAD_BASE", 0, jan31),
		cand("b", "HCP_QUALIFIED", -20, jan31),
	})
	assert.True(t, budget.IsDirect(d))
}

func TestSelector_AffinityWins(t *testing.T) {
	// GIVEN: An HCP budget expiring earlier with more funds, and a SAD budget
	// WHEN: Selecting for "Home Care"
	// THEN: The SAD budget wins on affinity before expiry is considered
	sel := budget.NewSelector(nil)
	d := sel.Select("Home Care", []budget.Candidate{
		cand("hcp", "HCP_QUALIFIED", 5000, jan31),
		cand("sad", "SAD_BASE", 100, dec31),
	})
	assert.Equal(t, budget.BudgetFunding{AllocationID: "sad", BudgetTypeID: "SAD_BASE"}, d)
}

func TestSelector_AffinityIsCaseInsensitiveOnName(t *testing.T) {
	sel := budget.NewSelector(nil)
	c := cand("x", "X1", 100, dec31)
	c.Name = "Sad Qualificato"
	d := sel.Select("HOME CARE visit", []budget.Candidate{cand("y", "Y1", 100, jan31), c})
	assert.Equal(t, budget.BudgetFunding{AllocationID: "x", BudgetTypeID: "X1"}, d)
}

func TestSelector_NoAffinityMatchKeepsAll(t *testing.T) {
	// GIVEN: No candidate matches the service type
	// WHEN: Selecting
	// THEN: The earliest expiring one wins
	sel := budget.NewSelector(nil)
	d := sel.Select("Home Care", []budget.Candidate{
		cand("late", "HCP_B", 100, dec31),
		cand("early", "HCP_Q", 100, jun30),
	})
	assert.Equal(t, generic.AllocationID("early"), d.(budget.BudgetFunding).AllocationID)
}

func TestSelector_UndatedLosesToDated(t *testing.T) {
	sel := budget.NewSelector(nil)
	d := sel.Select("anything", []budget.Candidate{
		cand("open", "X", 900, time.Time{}),
		cand("dated", "Y", 10, dec31),
	})
	assert.Equal(t, generic.AllocationID("dated"), d.(budget.BudgetFunding).AllocationID)
}

func TestSelector_HighestAvailableThenID(t *testing.T) {
	sel := budget.NewSelector(nil)
	d := sel.Select("Home Care", []budget.Candidate{
		cand("c", "SAD_B", 300, jan31),
		cand("b", "SAD_Q", 500, jan31),
		cand("a", "SAD_Z", 500, jan31),
	})
	assert.Equal(t, generic.AllocationID("a"), d.(budget.BudgetFunding).AllocationID)
}

func TestSelector_OrderIndependent(t *testing.T) {
	// GIVEN: Candidates that exercise every ladder step
	// WHEN: Selecting over every permutation
	// THEN: Every permutation returns the same decision
	cands := []budget.Candidate{
		cand("e", "SAD_BASE", 200, dec31),
		cand("d", "SAD_QUAL", 200, jun30),
		cand("c", "SAD_PLUS", 200, jun30),
		cand("b", "HCP_QUAL", 900, jan31),
		cand("a", "SAD_ZERO", 0, jan31),
	}
	sel := budget.NewSelector(nil)
	want := sel.Select("Home Care", cands)
	require.Equal(t, budget.BudgetFunding{AllocationID: "c", BudgetTypeID: "SAD_PLUS"}, want)

	perms := permutations(cands)
	require.Len(t, perms, 120)
	for _, p := range perms {
		assert.Equal(t, want, sel.Select("Home Care", p))
	}
}

func TestAffinity_Codes(t *testing.T) {
	assert.Equal(t, []string{"SAD"}, budget.DefaultAffinity.Codes("  Home Care "))
	assert.Equal(t, []string{"HCP", "SAD"}, budget.DefaultAffinity.Codes("home care and personal care"))
	assert.Empty(t, budget.DefaultAffinity.Codes(""))
	assert.Empty(t, budget.DefaultAffinity.Codes("gardening"))
}

func TestSteps_AreIndependentlyUsable(t *testing.T) {
	cands := []budget.Candidate{cand("a", "X", 10, jun30), cand("b", "Y", 20, jun30)}
	assert.Len(t, budget.ByEarliestExpiry(cands, budget.Criteria{}), 2)
	assert.Equal(t, generic.AllocationID("b"), budget.ByHighestAvailable(cands, budget.Criteria{})[0].AllocationID)
	assert.Equal(t, generic.AllocationID("a"), budget.ByCanonicalOrder(cands, budget.Criteria{})[0].AllocationID)
	assert.Len(t, budget.ByAffinity(cands, budget.Criteria{Codes: []string{"Z"}}), 2)
}
