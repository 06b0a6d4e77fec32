package registration

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func datePtr(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

// =============================================================================
// PRICE TIER RESOLVER
// =============================================================================

func TestResolvePriceTier_SingleUndatedTier(t *testing.T) {
	tiers := []PriceTier{{Price: dec("40")}}

	tier, ok := ResolvePriceTier(tiers, time.Now())

	require.True(t, ok)
	assert.True(t, tier.Price.Equal(dec("40")))
}

func TestResolvePriceTier_LastEligibleTierWins(t *testing.T) {
	// GIVEN: An undated base tier followed by a tier that started in March
	tiers := []PriceTier{
		{Price: dec("40")},
		{StartDate: datePtr(2025, time.March, 1), Price: dec("50")},
	}

	// WHEN: Resolving after March 1
	tier, ok := ResolvePriceTier(tiers, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC))

	// THEN: The later tier applies
	require.True(t, ok)
	assert.True(t, tier.Price.Equal(dec("50")))
}

func TestResolvePriceTier_StartDateEqualToReferenceApplies(t *testing.T) {
	start := datePtr(2025, time.March, 1)
	tiers := []PriceTier{
		{Price: dec("40")},
		{StartDate: start, Price: dec("50")},
	}

	tier, ok := ResolvePriceTier(tiers, *start)

	require.True(t, ok)
	assert.True(t, tier.Price.Equal(dec("50")))
}

func TestResolvePriceTier_FutureTierNeverSelected(t *testing.T) {
	// GIVEN: A tier that only starts in the future
	tiers := []PriceTier{
		{Price: dec("40")},
		{StartDate: datePtr(2099, time.January, 1), Price: dec("99")},
	}

	// WHEN: Resolving today
	tier, ok := ResolvePriceTier(tiers, time.Now())

	// THEN: The undated tier applies
	require.True(t, ok)
	assert.True(t, tier.Price.Equal(dec("40")))
}

func TestResolvePriceTier_ListOrderIsAuthoritative(t *testing.T) {
	// GIVEN: Tiers stored out of date order
	tiers := []PriceTier{
		{StartDate: datePtr(2025, time.June, 1), Price: dec("60")},
		{StartDate: datePtr(2025, time.January, 1), Price: dec("45")},
	}

	// WHEN: Both are eligible
	tier, ok := ResolvePriceTier(tiers, time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC))

	// THEN: The last one in the list wins, not the most recent date
	require.True(t, ok)
	assert.True(t, tier.Price.Equal(dec("45")))
}

func TestResolvePriceTier_NoneApplicable(t *testing.T) {
	tiers := []PriceTier{{StartDate: datePtr(2099, time.January, 1), Price: dec("40")}}

	_, ok := ResolvePriceTier(tiers, time.Now())
	assert.False(t, ok)

	_, ok = ResolvePriceTier(nil, time.Now())
	assert.False(t, ok)
}

func TestValidatePriceTiers(t *testing.T) {
	tests := []struct {
		name    string
		tiers   []PriceTier
		wantErr error
	}{
		{
			name:  "single undated tier",
			tiers: []PriceTier{{Price: dec("40")}},
		},
		{
			name: "undated base with dated tiers",
			tiers: []PriceTier{
				{Price: dec("40")},
				{StartDate: datePtr(2025, time.March, 1), Price: dec("50")},
			},
		},
		{
			name:    "empty",
			tiers:   nil,
			wantErr: ErrInvalidPriceTiers,
		},
		{
			name:    "two undated tiers",
			tiers:   []PriceTier{{Price: dec("40")}, {Price: dec("45")}},
			wantErr: ErrAmbiguousPriceTiers,
		},
		{
			name:    "negative price",
			tiers:   []PriceTier{{Price: dec("-1")}},
			wantErr: ErrInvalidPriceTiers,
		},
		{
			name:    "negative family price",
			tiers:   []PriceTier{{Price: dec("40"), FamilyPrice: decPtr("-5")}},
			wantErr: ErrInvalidPriceTiers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePriceTiers(tt.tiers)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsClientError(err))
		})
	}
}

func TestValidatePriceTiers_AmbiguousCode(t *testing.T) {
	err := ValidatePriceTiers([]PriceTier{{Price: dec("40")}, {Price: dec("45")}})

	var regErr *Error
	require.True(t, errors.As(err, &regErr))
	assert.Equal(t, CodeAmbiguousPriceTiers, regErr.Code)
}

// =============================================================================
// FAMILY DISCOUNT COUNTER
// =============================================================================

func familyTier() PriceTier {
	return PriceTier{
		Price:            dec("50"),
		ReducedPrice:     decPtr("25"),
		FamilyPrice:      decPtr("40"),
		ExtraFamilyPrice: decPtr("30"),
	}
}

func TestFamilyCounter_Ranks(t *testing.T) {
	// GIVEN: An empty household
	counter := NewFamilyCounter(0)
	tier := familyTier()

	// WHEN: Pricing four enrollments in a row
	// THEN: base, family, extra family, extra family
	assert.True(t, counter.Price(tier, false).Equal(dec("50")))
	assert.True(t, counter.Price(tier, false).Equal(dec("40")))
	assert.True(t, counter.Price(tier, false).Equal(dec("30")))
	assert.True(t, counter.Price(tier, false).Equal(dec("30")))
	assert.Equal(t, 4, counter.Count())
}

func TestFamilyCounter_SeededWithExisting(t *testing.T) {
	counter := NewFamilyCounter(1)

	assert.True(t, counter.Price(familyTier(), false).Equal(dec("40")))
	assert.Equal(t, 2, counter.Count())
}

func TestFamilyCounter_ReducedBase(t *testing.T) {
	// GIVEN: A reduced base of 25 with family prices above it
	counter := NewFamilyCounter(1)

	// WHEN: Pricing a reduced enrollment at family rank
	price := counter.Price(familyTier(), true)

	// THEN: The family price does not undercut the reduced base, base applies
	assert.True(t, price.Equal(dec("25")))
}

func TestFamilyCounter_ReducedWithoutReducedPrice(t *testing.T) {
	counter := NewFamilyCounter(0)

	price := counter.Price(PriceTier{Price: dec("40")}, true)

	assert.True(t, price.Equal(dec("40")))
}

func TestFamilyCounter_DiscountOnlyWhenStrictlyLower(t *testing.T) {
	tier := PriceTier{
		Price:            dec("40"),
		FamilyPrice:      decPtr("40"),
		ExtraFamilyPrice: decPtr("45"),
	}
	counter := NewFamilyCounter(1)

	assert.True(t, counter.Price(tier, false).Equal(dec("40")), "equal family price is not a discount")
	assert.True(t, counter.Price(tier, false).Equal(dec("40")), "higher extra family price is ignored")
}

func TestFamilyCounter_ZeroFamilyPriceApplies(t *testing.T) {
	tier := PriceTier{Price: dec("40"), FamilyPrice: decPtr("0")}
	counter := NewFamilyCounter(1)

	assert.True(t, counter.Price(tier, false).IsZero())
}

func TestFamilyCounter_NoFamilyPricesStillCounts(t *testing.T) {
	counter := NewFamilyCounter(0)

	counter.Price(PriceTier{Price: dec("40")}, false)
	price := counter.Price(familyTier(), false)

	assert.True(t, price.Equal(dec("40")), "second enrollment gets the family price")
}

func TestCountCurrent(t *testing.T) {
	groups := map[GroupID]Group{
		"welpen":   {ID: "welpen", Cycle: 2},
		"kapoenen": {ID: "kapoenen", Cycle: 3},
	}
	regs := []Registration{
		{ID: "1", GroupID: "welpen", Cycle: 2},
		{ID: "2", GroupID: "welpen", Cycle: 1},                      // stale
		{ID: "3", GroupID: "kapoenen", Cycle: 3, WaitingList: true}, // waiting list
		{ID: "4", GroupID: "kapoenen", Cycle: 3},
		{ID: "5", GroupID: "gone", Cycle: 1}, // unknown group
	}

	assert.Equal(t, 2, CountCurrent(regs, groups))
}
