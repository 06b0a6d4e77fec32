/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements registration.TxStore plus the organization, user, token,
  member and group tables the HTTP layer needs. The same patterns apply
  to PostgreSQL with minor dialect differences.

KEY TABLES:
  organizations:  Organizations
  users:          Household owners, scoped to one organization
  tokens:         Bearer tokens resolving to a user
  members:        People enrolled into groups, owned by a user
  member_groups:  Groups with their current cycle and price tiers (JSON)
  registrations:  One row per (member, group, cycle)
  payments:       One row per billable batch

INVARIANTS:
  - idx_registrations_member_group_cycle (UNIQUE) backs the rule that a
    member holds at most one registration per group-cycle.
  - Prices are stored as decimal strings, never REAL.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection. WithTx
  holds the write lock for the whole transaction, so batches for the same
  household are serialized.

USAGE:
  store, err := sqlite.New("./data/registrations.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := registration.NewEngine(store, log)

SEE ALSO:
  - registration/store.go: Interface definitions
  - registration/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/registration-engine/registration"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection and SQLite
	// has a single writer anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id),
		email TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tokens (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id),
		user_id TEXT NOT NULL REFERENCES users(id),
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		birth_day TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_members_user
		ON members(user_id);

	CREATE TABLE IF NOT EXISTS member_groups (
		id TEXT PRIMARY KEY,
		organization_id TEXT NOT NULL REFERENCES organizations(id),
		name TEXT NOT NULL,
		cycle INTEGER NOT NULL DEFAULT 0,
		prices_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_groups_organization
		ON member_groups(organization_id);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		price TEXT NOT NULL,
		transfer_description TEXT,
		paid_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS registrations (
		id TEXT PRIMARY KEY,
		member_id TEXT NOT NULL REFERENCES members(id),
		group_id TEXT NOT NULL REFERENCES member_groups(id),
		cycle INTEGER NOT NULL,
		waiting_list BOOLEAN NOT NULL DEFAULT FALSE,
		can_register BOOLEAN NOT NULL DEFAULT FALSE,
		payment_id TEXT REFERENCES payments(id),
		registered_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one registration per member per group-cycle
	CREATE UNIQUE INDEX IF NOT EXISTS idx_registrations_member_group_cycle
		ON registrations(member_id, group_id, cycle);

	CREATE INDEX IF NOT EXISTS idx_registrations_group_cycle
		ON registrations(group_id, cycle);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REGISTRATION STORE (registration.Store interface)
// =============================================================================

func (s *Store) MembersByUser(ctx context.Context, userID registration.UserID) ([]registration.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.membersByUser(ctx, userID)
}

func (s *Store) GroupsByOrganization(ctx context.Context, orgID registration.OrganizationID) ([]registration.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.groupsByOrganization(ctx, orgID)
}

func (s *Store) RegistrationsByMembers(ctx context.Context, ids []registration.MemberID) ([]registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.registrationsByMembers(ctx, ids)
}

func (s *Store) FindRegistration(ctx context.Context, memberID registration.MemberID, groupID registration.GroupID, cycle int) (*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.findRegistration(ctx, memberID, groupID, cycle)
}

func (s *Store) GetRegistration(ctx context.Context, id registration.RegistrationID) (*registration.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getRegistration(ctx, id)
}

func (s *Store) SaveRegistration(ctx context.Context, r registration.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.saveRegistration(ctx, r)
}

func (s *Store) SavePayment(ctx context.Context, p registration.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.savePayment(ctx, p)
}

func (s *Store) GetPayment(ctx context.Context, id registration.PaymentID) (*registration.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.getPayment(ctx, id)
}

// =============================================================================
// TRANSACTIONAL STORE (registration.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store registration.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: queries{db: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every query on the open transaction. The parent's lock is
// already held by WithTx.
type txStore struct {
	q queries
}

func (ts *txStore) MembersByUser(ctx context.Context, userID registration.UserID) ([]registration.Member, error) {
	return ts.q.membersByUser(ctx, userID)
}

func (ts *txStore) GroupsByOrganization(ctx context.Context, orgID registration.OrganizationID) ([]registration.Group, error) {
	return ts.q.groupsByOrganization(ctx, orgID)
}

func (ts *txStore) RegistrationsByMembers(ctx context.Context, ids []registration.MemberID) ([]registration.Registration, error) {
	return ts.q.registrationsByMembers(ctx, ids)
}

func (ts *txStore) FindRegistration(ctx context.Context, memberID registration.MemberID, groupID registration.GroupID, cycle int) (*registration.Registration, error) {
	return ts.q.findRegistration(ctx, memberID, groupID, cycle)
}

func (ts *txStore) GetRegistration(ctx context.Context, id registration.RegistrationID) (*registration.Registration, error) {
	return ts.q.getRegistration(ctx, id)
}

func (ts *txStore) SaveRegistration(ctx context.Context, r registration.Registration) error {
	return ts.q.saveRegistration(ctx, r)
}

func (ts *txStore) SavePayment(ctx context.Context, p registration.Payment) error {
	return ts.q.savePayment(ctx, p)
}

func (ts *txStore) GetPayment(ctx context.Context, id registration.PaymentID) (*registration.Payment, error) {
	return ts.q.getPayment(ctx, id)
}

// =============================================================================
// QUERIES - shared by the store and its transactions
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db querier
}

const memberColumns = `id, organization_id, user_id, first_name, last_name, birth_day, created_at`

func (q queries) membersByUser(ctx context.Context, userID registration.UserID) ([]registration.Member, error) {
	return q.queryMembers(ctx,
		"SELECT "+memberColumns+" FROM members WHERE user_id = ? ORDER BY created_at ASC, id ASC",
		userID)
}

func (q queries) queryMembers(ctx context.Context, query string, args ...any) ([]registration.Member, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var members []registration.Member
	for rows.Next() {
		var (
			m         registration.Member
			birthDay  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.FirstName, &m.LastName, &birthDay, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.BirthDay = parseNullTime(birthDay)
		m.CreatedAt = parseTime(createdAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

const groupColumns = `id, organization_id, name, cycle, prices_json, created_at`

func (q queries) groupsByOrganization(ctx context.Context, orgID registration.OrganizationID) ([]registration.Group, error) {
	return q.queryGroups(ctx,
		"SELECT "+groupColumns+" FROM member_groups WHERE organization_id = ? ORDER BY name ASC, id ASC",
		orgID)
}

func (q queries) queryGroups(ctx context.Context, query string, args ...any) ([]registration.Group, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []registration.Group
	for rows.Next() {
		var (
			g          registration.Group
			pricesJSON string
			createdAt  string
		)
		if err := rows.Scan(&g.ID, &g.OrganizationID, &g.Name, &g.Cycle, &pricesJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		if g.Prices, err = decodePrices(pricesJSON); err != nil {
			return nil, fmt.Errorf("group %s: %w", g.ID, err)
		}
		g.CreatedAt = parseTime(createdAt)
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

const registrationColumns = `id, member_id, group_id, cycle, waiting_list, can_register,
	payment_id, registered_at, created_at, updated_at`

func (q queries) registrationsByMembers(ctx context.Context, ids []registration.MemberID) ([]registration.Registration, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return q.queryRegistrations(ctx,
		"SELECT "+registrationColumns+" FROM registrations WHERE member_id IN ("+placeholders+") ORDER BY created_at ASC, id ASC",
		args...)
}

func (q queries) findRegistration(ctx context.Context, memberID registration.MemberID, groupID registration.GroupID, cycle int) (*registration.Registration, error) {
	regs, err := q.queryRegistrations(ctx,
		"SELECT "+registrationColumns+" FROM registrations WHERE member_id = ? AND group_id = ? AND cycle = ? LIMIT 1",
		memberID, groupID, cycle)
	if err != nil || len(regs) == 0 {
		return nil, err
	}
	return &regs[0], nil
}

func (q queries) getRegistration(ctx context.Context, id registration.RegistrationID) (*registration.Registration, error) {
	regs, err := q.queryRegistrations(ctx,
		"SELECT "+registrationColumns+" FROM registrations WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, registration.ErrNotFound
	}
	return &regs[0], nil
}

func (q queries) queryRegistrations(ctx context.Context, query string, args ...any) ([]registration.Registration, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query registrations: %w", err)
	}
	defer rows.Close()

	var regs []registration.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

func scanRegistration(rows *sql.Rows) (registration.Registration, error) {
	var (
		r            registration.Registration
		paymentID    sql.NullString
		registeredAt sql.NullString
		createdAt    string
		updatedAt    string
	)
	err := rows.Scan(&r.ID, &r.MemberID, &r.GroupID, &r.Cycle, &r.WaitingList, &r.CanRegister,
		&paymentID, &registeredAt, &createdAt, &updatedAt)
	if err != nil {
		return r, fmt.Errorf("failed to scan registration: %w", err)
	}
	if paymentID.Valid {
		id := registration.PaymentID(paymentID.String)
		r.PaymentID = &id
	}
	r.RegisteredAt = parseNullTime(registeredAt)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

// saveRegistration upserts by id. The cycle of an existing row is never
// rewritten.
func (q queries) saveRegistration(ctx context.Context, r registration.Registration) error {
	query := `
		INSERT INTO registrations
		(id, member_id, group_id, cycle, waiting_list, can_register, payment_id,
		 registered_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			waiting_list = excluded.waiting_list,
			can_register = excluded.can_register,
			payment_id = excluded.payment_id,
			registered_at = excluded.registered_at,
			updated_at = excluded.updated_at
	`
	var paymentID sql.NullString
	if r.PaymentID != nil {
		paymentID = nullString(string(*r.PaymentID))
	}
	_, err := q.db.ExecContext(ctx, query,
		r.ID, r.MemberID, r.GroupID, r.Cycle, r.WaitingList, r.CanRegister, paymentID,
		formatNullTime(r.RegisteredAt), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return registration.ErrDuplicateRegistration
		}
		return fmt.Errorf("failed to save registration: %w", err)
	}
	return nil
}

func (q queries) savePayment(ctx context.Context, p registration.Payment) error {
	query := `
		INSERT INTO payments (id, method, status, price, transfer_description, paid_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			method = excluded.method,
			status = excluded.status,
			price = excluded.price,
			transfer_description = excluded.transfer_description,
			paid_at = excluded.paid_at
	`
	var transfer sql.NullString
	if p.TransferDescription != nil {
		transfer = nullString(*p.TransferDescription)
	}
	_, err := q.db.ExecContext(ctx, query,
		p.ID, p.Method, p.Status, p.Price.String(), transfer,
		formatNullTime(p.PaidAt), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	return nil
}

func (q queries) getPayment(ctx context.Context, id registration.PaymentID) (*registration.Payment, error) {
	var (
		p         registration.Payment
		price     string
		transfer  sql.NullString
		paidAt    sql.NullString
		createdAt string
	)
	err := q.db.QueryRowContext(ctx,
		"SELECT id, method, status, price, transfer_description, paid_at, created_at FROM payments WHERE id = ?",
		id,
	).Scan(&p.ID, &p.Method, &p.Status, &price, &transfer, &paidAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, registration.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	if p.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("payment %s: invalid price %q: %w", id, price, err)
	}
	if transfer.Valid {
		p.TransferDescription = &transfer.String
	}
	p.PaidAt = parseNullTime(paidAt)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// =============================================================================
// PRICE TIER ENCODING
// =============================================================================

type priceTierRecord struct {
	StartDate        *time.Time       `json:"start_date,omitempty"`
	Price            decimal.Decimal  `json:"price"`
	ReducedPrice     *decimal.Decimal `json:"reduced_price,omitempty"`
	FamilyPrice      *decimal.Decimal `json:"family_price,omitempty"`
	ExtraFamilyPrice *decimal.Decimal `json:"extra_family_price,omitempty"`
}

func encodePrices(tiers []registration.PriceTier) (string, error) {
	records := make([]priceTierRecord, len(tiers))
	for i, t := range tiers {
		records[i] = priceTierRecord(t)
	}
	b, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("failed to encode prices: %w", err)
	}
	return string(b), nil
}

func decodePrices(s string) ([]registration.PriceTier, error) {
	var records []priceTierRecord
	if err := json.Unmarshal([]byte(s), &records); err != nil {
		return nil, fmt.Errorf("failed to decode prices: %w", err)
	}
	tiers := make([]registration.PriceTier, len(records))
	for i, r := range records {
		tiers[i] = registration.PriceTier(r)
	}
	return tiers, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
