/*
Package factory provides JSON to Go group conversion.

PURPOSE:
  Converts JSON group definitions into registration.Group values. Admins
  define groups and their price tiers in JSON (admin UI, seed files,
  scenarios) and the factory creates validated Go structs.

JSON SCHEMA:
  {
    "id": "kapoenen",
    "name": "Kapoenen (6-8 jaar)",
    "cycle": 3,
    "prices": [
      {"price": "40", "reduced_price": "20", "family_price": "35"},
      {"start_date": "2025-09-01", "price": "45", "family_price": "40",
       "extra_family_price": "35"}
    ]
  }

  Prices may be JSON strings or numbers; they are parsed as decimals.
  start_date accepts RFC3339 or YYYY-MM-DD (midnight UTC).

VALIDATION:
  Tier lists go through registration.ValidatePriceTiers, so at most one
  tier may omit its start date.

USAGE:
  f := NewGroupFactory()
  group, err := f.ParseGroup(jsonString, orgID)
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/registration-engine/registration"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// GroupJSON is the JSON representation of a group.
type GroupJSON struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Cycle  int             `json:"cycle"`
	Prices []PriceTierJSON `json:"prices"`
}

// PriceTierJSON represents one price tier.
type PriceTierJSON struct {
	StartDate        string           `json:"start_date,omitempty"`
	Price            decimal.Decimal  `json:"price"`
	ReducedPrice     *decimal.Decimal `json:"reduced_price,omitempty"`
	FamilyPrice      *decimal.Decimal `json:"family_price,omitempty"`
	ExtraFamilyPrice *decimal.Decimal `json:"extra_family_price,omitempty"`
}

// =============================================================================
// GROUP FACTORY
// =============================================================================

// GroupFactory converts JSON groups to Go structs.
type GroupFactory struct{}

// NewGroupFactory creates a new group factory.
func NewGroupFactory() *GroupFactory {
	return &GroupFactory{}
}

// ParseGroup parses a JSON group definition for an organization.
func (f *GroupFactory) ParseGroup(jsonStr string, orgID registration.OrganizationID) (*registration.Group, error) {
	var gj GroupJSON
	if err := json.Unmarshal([]byte(jsonStr), &gj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return f.FromJSON(gj, orgID)
}

// FromJSON converts a decoded group definition.
func (f *GroupFactory) FromJSON(gj GroupJSON, orgID registration.OrganizationID) (*registration.Group, error) {
	if gj.ID == "" {
		return nil, fmt.Errorf("group id is required")
	}
	if gj.Name == "" {
		return nil, fmt.Errorf("group name is required")
	}
	if gj.Cycle < 0 {
		return nil, fmt.Errorf("group cycle must not be negative, got %d", gj.Cycle)
	}

	tiers := make([]registration.PriceTier, len(gj.Prices))
	for i, pj := range gj.Prices {
		tier := registration.PriceTier{
			Price:            pj.Price,
			ReducedPrice:     pj.ReducedPrice,
			FamilyPrice:      pj.FamilyPrice,
			ExtraFamilyPrice: pj.ExtraFamilyPrice,
		}
		if pj.StartDate != "" {
			start, err := parseDate(pj.StartDate)
			if err != nil {
				return nil, fmt.Errorf("prices[%d].start_date: %w", i, err)
			}
			tier.StartDate = &start
		}
		tiers[i] = tier
	}

	if err := registration.ValidatePriceTiers(tiers); err != nil {
		return nil, err
	}

	return &registration.Group{
		ID:             registration.GroupID(gj.ID),
		OrganizationID: orgID,
		Name:           gj.Name,
		Cycle:          gj.Cycle,
		Prices:         tiers,
	}, nil
}

// ToJSON converts a group back to its JSON representation.
func ToJSON(g registration.Group) GroupJSON {
	gj := GroupJSON{
		ID:     string(g.ID),
		Name:   g.Name,
		Cycle:  g.Cycle,
		Prices: make([]PriceTierJSON, len(g.Prices)),
	}
	for i, t := range g.Prices {
		pj := PriceTierJSON{
			Price:            t.Price,
			ReducedPrice:     t.ReducedPrice,
			FamilyPrice:      t.FamilyPrice,
			ExtraFamilyPrice: t.ExtraFamilyPrice,
		}
		if t.StartDate != nil {
			pj.StartDate = t.StartDate.UTC().Format(time.RFC3339)
		}
		gj.Prices[i] = pj
	}
	return gj
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use RFC3339 or YYYY-MM-DD)", s)
	}
	return t, nil
}
