package registration

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICE TIER RESOLVER
// =============================================================================

// ResolvePriceTier returns the tier in effect at ref. Tiers are scanned in
// stored order and the last one whose StartDate is nil or not after ref
// wins, so list order is authoritative over date order.
func ResolvePriceTier(tiers []PriceTier, ref time.Time) (PriceTier, bool) {
	var (
		found PriceTier
		ok    bool
	)
	for _, t := range tiers {
		if t.StartDate == nil || !t.StartDate.After(ref) {
			found = t
			ok = true
		}
	}
	return found, ok
}

// ValidatePriceTiers rejects tier lists that cannot be resolved
// unambiguously. Intended for group writes.
func ValidatePriceTiers(tiers []PriceTier) error {
	if len(tiers) == 0 {
		return priceTierError(ErrInvalidPriceTiers, "no price tiers")
	}
	undated := 0
	for i, t := range tiers {
		if t.StartDate == nil {
			undated++
		}
		fields := []struct {
			name  string
			value *decimal.Decimal
		}{
			{"price", &t.Price},
			{"reduced_price", t.ReducedPrice},
			{"family_price", t.FamilyPrice},
			{"extra_family_price", t.ExtraFamilyPrice},
		}
		for _, f := range fields {
			if f.value != nil && f.value.IsNegative() {
				return priceTierError(ErrInvalidPriceTiers, fmt.Sprintf("tier %d: negative %s", i, f.name))
			}
		}
	}
	if undated > 1 {
		return priceTierError(ErrAmbiguousPriceTiers, fmt.Sprintf("%d tiers without start date", undated))
	}
	return nil
}

// =============================================================================
// FAMILY DISCOUNT COUNTER
// =============================================================================

// FamilyCounter counts the billable enrollments of one household and
// decides which discount rank applies to the next one.
type FamilyCounter struct {
	count int
}

// NewFamilyCounter seeds the counter with the household's existing
// current-cycle, non-waiting-list registrations.
func NewFamilyCounter(existing int) *FamilyCounter {
	return &FamilyCounter{count: existing}
}

// CountCurrent counts registrations that are not on a waiting list and
// belong to the current cycle of a known group.
func CountCurrent(regs []Registration, groups map[GroupID]Group) int {
	n := 0
	for _, r := range regs {
		if r.WaitingList {
			continue
		}
		g, ok := groups[r.GroupID]
		if !ok || g.Cycle != r.Cycle {
			continue
		}
		n++
	}
	return n
}

func (c *FamilyCounter) Count() int { return c.count }

// Price returns the price owed for the next billable enrollment in tier
// and advances the counter. A family or extra-family price only applies
// when it is strictly lower than the base price.
func (c *FamilyCounter) Price(tier PriceTier, reduced bool) decimal.Decimal {
	base := tier.Price
	if reduced && tier.ReducedPrice != nil {
		base = *tier.ReducedPrice
	}

	price := base
	switch {
	case c.count == 1 && tier.FamilyPrice != nil && tier.FamilyPrice.LessThan(base):
		price = *tier.FamilyPrice
	case c.count >= 2 && tier.ExtraFamilyPrice != nil && tier.ExtraFamilyPrice.LessThan(base):
		price = *tier.ExtraFamilyPrice
	}

	c.count++
	return price
}
