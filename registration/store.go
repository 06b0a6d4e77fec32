/*
store.go - Persistence contracts for the registration engine

KEY INTERFACES:
  Store:   Filtered reads by field equality and single-row writes
  TxStore: Store with an atomic WithTx scope

ATOMIC BATCHES:
  A batch is processed entirely inside WithTx. Waiting-list inserts,
  upgrades, the payment insert and the payment links either all commit
  or none do. Implementations must serialize WithTx scopes so that two
  batches for the same household cannot interleave their reads and writes.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:       SQLite
  - registration/store/memory.go: In-memory for testing
*/
package registration

import "context"

// Store handles persistence of members, groups, registrations and payments.
type Store interface {
	// MembersByUser returns the members of a user's household.
	MembersByUser(ctx context.Context, userID UserID) ([]Member, error)

	// GroupsByOrganization returns all groups of an organization.
	GroupsByOrganization(ctx context.Context, orgID OrganizationID) ([]Group, error)

	// RegistrationsByMembers returns every registration of the given members,
	// across all groups and cycles.
	RegistrationsByMembers(ctx context.Context, memberIDs []MemberID) ([]Registration, error)

	// FindRegistration returns the registration for (member, group, cycle),
	// or nil when none exists.
	FindRegistration(ctx context.Context, memberID MemberID, groupID GroupID, cycle int) (*Registration, error)

	// GetRegistration returns a registration by id or ErrNotFound.
	GetRegistration(ctx context.Context, id RegistrationID) (*Registration, error)

	// SaveRegistration inserts or updates a registration by id.
	SaveRegistration(ctx context.Context, r Registration) error

	// SavePayment inserts or updates a payment by id.
	SavePayment(ctx context.Context, p Payment) error

	// GetPayment returns a payment by id or ErrNotFound.
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
