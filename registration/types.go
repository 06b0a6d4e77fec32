/*
Package registration provides the enrollment reconciliation and pricing engine.

PURPOSE:
  Members of an organization are enrolled into groups for the group's
  current cycle. A batch of enrollment requests submitted in one call is
  reconciled against existing registrations, priced with tiered family
  discounts and settled with a single payment.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member:       A person belonging to an organization (owned by a user household)
  - Group:        A named bucket with a cycle and an ordered list of price tiers
  - PriceTier:    Prices in effect from an optional start date
  - Registration: One member in one group-cycle
  - Payment:      One monetary obligation produced by a batch

DESIGN PRINCIPLES:
  1. Precision: All prices are decimal.Decimal, never floats
  2. Type Safety: Distinct ID types prevent mixing member/group ids
  3. Idempotence: At most one registration per (member, group, cycle)

SEE ALSO:
  - pricing.go: Price tier resolution and family discounts
  - order.go: Batch ordering
  - engine.go: Reconciliation, payment aggregation, response assembly
  - store.go: Persistence contracts
*/
package registration

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OrganizationID string
type UserID string
type MemberID string
type GroupID string
type RegistrationID string
type PaymentID string

// =============================================================================
// MEMBER
// =============================================================================

// Member belongs to an organization and to the household of one user.
type Member struct {
	ID             MemberID
	OrganizationID OrganizationID
	UserID         UserID
	FirstName      string
	LastName       string
	BirthDay       *time.Time
	CreatedAt      time.Time
}

// =============================================================================
// GROUP & PRICE TIERS
// =============================================================================

// PriceTier holds the prices that apply from StartDate on. A nil StartDate
// means the tier applies unconditionally.
type PriceTier struct {
	StartDate        *time.Time
	Price            decimal.Decimal
	ReducedPrice     *decimal.Decimal
	FamilyPrice      *decimal.Decimal
	ExtraFamilyPrice *decimal.Decimal
}

type Group struct {
	ID             GroupID
	OrganizationID OrganizationID
	Name           string
	Cycle          int
	Prices         []PriceTier
	CreatedAt      time.Time
}

// HasFamilyPrice reports whether any tier of the group carries a family price.
func (g Group) HasFamilyPrice() bool {
	for _, p := range g.Prices {
		if p.FamilyPrice != nil {
			return true
		}
	}
	return false
}

// =============================================================================
// REGISTRATION
// =============================================================================

type Registration struct {
	ID          RegistrationID
	MemberID    MemberID
	GroupID     GroupID
	Cycle       int // copied from the group on creation, never updated
	WaitingList bool
	// CanRegister is true while the member holds an unconfirmed slot offer.
	CanRegister  bool
	PaymentID    *PaymentID
	RegisteredAt *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentMethod string

const (
	PaymentTransfer    PaymentMethod = "Transfer"
	PaymentBancontact  PaymentMethod = "Bancontact"
	PaymentIDEAL       PaymentMethod = "iDEAL"
	PaymentPayconiq    PaymentMethod = "Payconiq"
	PaymentPointOfSale PaymentMethod = "PointOfSale"
	PaymentUnknown     PaymentMethod = "Unknown"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentTransfer, PaymentBancontact, PaymentIDEAL, PaymentPayconiq, PaymentPointOfSale, PaymentUnknown:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentSucceeded PaymentStatus = "Succeeded"
)

type Payment struct {
	ID                  PaymentID
	Method              PaymentMethod
	Status              PaymentStatus
	Price               decimal.Decimal
	TransferDescription *string
	PaidAt              *time.Time
	CreatedAt           time.Time
}

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// Actor is the authenticated caller on whose behalf a batch is processed.
type Actor struct {
	UserID         UserID
	OrganizationID OrganizationID
}

// Item is one requested enrollment.
type Item struct {
	MemberID    MemberID
	GroupID     GroupID
	WaitingList bool
	Reduced     bool
}

// Request is a batch of enrollments settled with a single payment.
type Request struct {
	Items         []Item
	PaymentMethod PaymentMethod
}

type MemberWithRegistrations struct {
	Member
	Registrations []Registration
}

type RegistrationWithMember struct {
	Registration
	Member Member
}

// Result is the post-commit state returned for a batch.
type Result struct {
	Payment       *Payment
	Members       []MemberWithRegistrations
	Registrations []RegistrationWithMember
}
