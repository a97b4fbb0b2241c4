/*
selector.go - Choosing which allocation funds a block of service

PURPOSE:
  Given the client's allocations active on the service date, pick exactly
  one to charge, or decide that nothing can pay and the client is funded
  directly (direct assistance).

THE LADDER:
  Each step is a pure function over the candidate list. Steps run in order;
  a step that would leave nothing keeps its input instead (except step 0).

    0. Positive available   drop exhausted or over-budget allocations;
                            if none remain -> DirectAssistance
    1. Service affinity     keep candidates whose budget code or name
                            contains one of the codes mapped to the service
                            type (case-insensitive)
    2. Earliest expiry      keep the candidates with the smallest ValidTo;
                            candidates without expiry lose to dated ones
    3. Highest available    keep the candidates with the largest Available
    4. Canonical order      sort by allocation id, take the first

DETERMINISM:
  Every step depends only on candidate values, never on input order, so any
  permutation of the candidates yields the same decision.

EXAMPLE:
  sel := budget.NewSelector(budget.DefaultAffinity)
  switch d := sel.Select("Home Care", cands).(type) {
  case budget.BudgetFunding:
      charge(d.AllocationID)
  case budget.DirectAssistance:
      recordDirect()
  }

SEE ALSO:
  - allocator.go: Uses the decision for hour allocation
  - compensation/availability.go: Suggestions in the approval payload
*/
package budget

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/care-ledger/generic"
)

// =============================================================================
// FUNDING DECISION - Sealed variant
// =============================================================================

// FundingDecision is either BudgetFunding or DirectAssistance.
type FundingDecision interface {
	isFundingDecision()
}

// BudgetFunding charges one client budget allocation.
type BudgetFunding struct {
	AllocationID generic.AllocationID
	BudgetTypeID generic.BudgetTypeID
}

// DirectAssistance means no allocation pays; the client is funded directly.
type DirectAssistance struct{}

func (BudgetFunding) isFundingDecision()    {}
func (DirectAssistance) isFundingDecision() {}

// IsDirect reports whether d is DirectAssistance (or nil).
func IsDirect(d FundingDecision) bool {
	_, ok := d.(BudgetFunding)
	return !ok
}

// Describe renders d for logs and notes.
func Describe(d FundingDecision) string {
	if f, ok := d.(BudgetFunding); ok {
		return "allocation " + string(f.AllocationID)
	}
	return "direct assistance"
}

// =============================================================================
// CANDIDATES AND CRITERIA
// =============================================================================

// Candidate is one allocation considered by the selector.
type Candidate struct {
	AllocationID generic.AllocationID `json:"allocationId"`
	BudgetTypeID generic.BudgetTypeID `json:"budgetTypeId"`
	Code         string               `json:"code"`
	Name         string               `json:"name"`
	Available    decimal.Decimal      `json:"available"`
	ValidTo      time.Time            `json:"validTo"` // zero = no expiry
}

// NewCandidate builds a candidate from an allocation and its budget type.
// bt may be nil when the catalog row is missing.
func NewCandidate(a generic.ClientBudgetAllocation, bt *generic.BudgetType) Candidate {
	c := Candidate{
		AllocationID: a.ID,
		BudgetTypeID: a.BudgetTypeID,
		Available:    a.Available(),
		ValidTo:      a.ValidTo,
	}
	if bt != nil {
		c.Code = bt.Code
		c.Name = bt.Name
	}
	return c
}

// Criteria is what the steps may look at besides the candidates.
type Criteria struct {
	ServiceType string
	Codes       []string // affinity codes for ServiceType, upper case
}

// Step narrows the candidate list.
type Step func(cands []Candidate, c Criteria) []Candidate

// Ladder is the ordered list of steps after the positive-available filter.
var Ladder = []Step{
	ByAffinity,
	ByEarliestExpiry,
	ByHighestAvailable,
	ByCanonicalOrder,
}

// =============================================================================
// AFFINITY
// =============================================================================

// Affinity maps a lower-case service type fragment to budget code fragments.
type Affinity map[string][]string

// DefaultAffinity is the built-in service-type to budget-code mapping.
var DefaultAffinity = Affinity{
	"home care":          {"SAD"},
	"social support":     {"SAD"},
	"personal care":      {"HCP"},
	"home support":       {"HCP"},
	"medical assistance": {"FP_QUALIFICATA"},
	"educational":        {"EDUCATIVA"},
	"law 162":            {"LEGGE162"},
	"rac":                {"RAC"},
}

// Codes returns the codes of every key contained in serviceType, sorted
// and de-duplicated.
func (a Affinity) Codes(serviceType string) []string {
	st := strings.ToLower(strings.TrimSpace(serviceType))
	if st == "" {
		return nil
	}
	seen := map[string]bool{}
	var codes []string
	for key, cs := range a {
		if !strings.Contains(st, strings.ToLower(key)) {
			continue
		}
		for _, c := range cs {
			c = strings.ToUpper(c)
			if !seen[c] {
				seen[c] = true
				codes = append(codes, c)
			}
		}
	}
	sort.Strings(codes)
	return codes
}

// =============================================================================
// SELECTOR
// =============================================================================

type Selector struct {
	Affinity Affinity
	Steps    []Step
}

func NewSelector(affinity Affinity) *Selector {
	if affinity == nil {
		affinity = DefaultAffinity
	}
	return &Selector{Affinity: affinity, Steps: Ladder}
}

// Select returns the funding decision for serviceType among cands.
func (s *Selector) Select(serviceType string, cands []Candidate) FundingDecision {
	c, ok := s.Pick(serviceType, cands)
	if !ok {
		return DirectAssistance{}
	}
	return BudgetFunding{AllocationID: c.AllocationID, BudgetTypeID: c.BudgetTypeID}
}

// Pick is Select returning the winning candidate itself.
func (s *Selector) Pick(serviceType string, cands []Candidate) (Candidate, bool) {
	remaining := PositiveAvailable(cands)
	if len(remaining) == 0 {
		return Candidate{}, false
	}
	crit := Criteria{ServiceType: serviceType, Codes: s.Affinity.Codes(serviceType)}
	steps := s.Steps
	if steps == nil {
		steps = Ladder
	}
	for _, step := range steps {
		if narrowed := step(remaining, crit); len(narrowed) > 0 {
			remaining = narrowed
		}
	}
	return remaining[0], true
}

// =============================================================================
// STEPS
// =============================================================================

// PositiveAvailable keeps candidates that still have funds.
func PositiveAvailable(cands []Candidate) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if c.Available.IsPositive() {
			out = append(out, c)
		}
	}
	return out
}

// ByAffinity keeps candidates matching an affinity code. With no code or
// no match it returns cands unchanged.
func ByAffinity(cands []Candidate, crit Criteria) []Candidate {
	if len(crit.Codes) == 0 {
		return cands
	}
	var out []Candidate
	for _, c := range cands {
		code, name := strings.ToUpper(c.Code), strings.ToUpper(c.Name)
		for _, want := range crit.Codes {
			if strings.Contains(code, want) || strings.Contains(name, want) {
				out = append(out, c)
				break
			}
		}
	}
	if len(out) == 0 {
		return cands
	}
	return out
}

// ByEarliestExpiry keeps the candidates expiring first.
func ByEarliestExpiry(cands []Candidate, _ Criteria) []Candidate {
	var earliest time.Time
	for _, c := range cands {
		if c.ValidTo.IsZero() {
			continue
		}
		if earliest.IsZero() || c.ValidTo.Before(earliest) {
			earliest = c.ValidTo
		}
	}
	if earliest.IsZero() {
		return cands
	}
	var out []Candidate
	for _, c := range cands {
		if !c.ValidTo.IsZero() && c.ValidTo.Equal(earliest) {
			out = append(out, c)
		}
	}
	return out
}

// ByHighestAvailable keeps the candidates with the most funds left.
func ByHighestAvailable(cands []Candidate, _ Criteria) []Candidate {
	if len(cands) == 0 {
		return cands
	}
	best := cands[0].Available
	for _, c := range cands[1:] {
		if c.Available.GreaterThan(best) {
			best = c.Available
		}
	}
	var out []Candidate
	for _, c := range cands {
		if c.Available.Equal(best) {
			out = append(out, c)
		}
	}
	return out
}

// ByCanonicalOrder returns the single candidate with the smallest id.
func ByCanonicalOrder(cands []Candidate, _ Criteria) []Candidate {
	if len(cands) == 0 {
		return cands
	}
	sorted := append([]Candidate(nil), cands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].AllocationID < sorted[j].AllocationID })
	return sorted[:1]
}
