package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/registration-engine/registration"
)

// =============================================================================
// ORGANIZATIONS, USERS & TOKENS
// =============================================================================

type Organization struct {
	ID        registration.OrganizationID
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID             registration.UserID
	OrganizationID registration.OrganizationID
	Email          string
	CreatedAt      time.Time
}

// SaveOrganization inserts or renames an organization.
func (s *Store) SaveOrganization(ctx context.Context, o Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, o.ID, o.Name, formatTime(orNow(o.CreatedAt)))
	if err != nil {
		return fmt.Errorf("failed to save organization: %w", err)
	}
	return nil
}

// SaveUser inserts or updates a user.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, organization_id, email, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET email = excluded.email
	`, u.ID, u.OrganizationID, u.Email, formatTime(orNow(u.CreatedAt)))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// SaveToken stores a bearer token for a user.
func (s *Store) SaveToken(ctx context.Context, token string, userID registration.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO tokens (token, user_id, created_at) VALUES (?, ?, ?)",
		token, userID, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// ActorByToken resolves a bearer token to the user and organization it
// acts for. Returns registration.ErrNotFound for unknown tokens.
func (s *Store) ActorByToken(ctx context.Context, token string) (*registration.Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var actor registration.Actor
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.organization_id
		FROM tokens t JOIN users u ON u.id = t.user_id
		WHERE t.token = ?
	`, token).Scan(&actor.UserID, &actor.OrganizationID)
	if err == sql.ErrNoRows {
		return nil, registration.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve token: %w", err)
	}
	return &actor, nil
}

// =============================================================================
// MEMBERS
// =============================================================================

// SaveMember inserts or updates a member.
func (s *Store) SaveMember(ctx context.Context, m registration.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, organization_id, user_id, first_name, last_name, birth_day, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			birth_day = excluded.birth_day
	`, m.ID, m.OrganizationID, m.UserID, m.FirstName, m.LastName,
		formatNullTime(m.BirthDay), formatTime(orNow(m.CreatedAt)))
	if err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}
	return nil
}

// MembersByGroup returns the members holding a registration in the group's
// given cycle with the requested waiting-list state.
func (s *Store) MembersByGroup(ctx context.Context, groupID registration.GroupID, cycle int, waitingList bool) ([]registration.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.q.queryMembers(ctx, `
		SELECT m.id, m.organization_id, m.user_id, m.first_name, m.last_name, m.birth_day, m.created_at
		FROM members m JOIN registrations r ON r.member_id = m.id
		WHERE r.group_id = ? AND r.cycle = ? AND r.waiting_list = ?
		ORDER BY m.last_name ASC, m.first_name ASC, m.id ASC
	`, groupID, cycle, waitingList)
}

// =============================================================================
// GROUPS
// =============================================================================

// SaveGroup inserts or updates a group. Price tiers are validated first so
// that enrollment never has to resolve an ambiguous tier list. An existing
// group can only be updated by its own organization, and its cycle never
// decreases.
func (s *Store) SaveGroup(ctx context.Context, g registration.Group) error {
	if err := registration.ValidatePriceTiers(g.Prices); err != nil {
		return err
	}
	prices, err := encodePrices(g.Prices)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		owner registration.OrganizationID
		cycle int
	)
	err = s.db.QueryRowContext(ctx,
		"SELECT organization_id, cycle FROM member_groups WHERE id = ?", g.ID,
	).Scan(&owner, &cycle)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return fmt.Errorf("failed to load group: %w", err)
	case owner != g.OrganizationID:
		return fmt.Errorf("group %s: %w", g.ID, registration.ErrGroupIDTaken)
	case g.Cycle < cycle:
		return registration.CycleDecreaseError(g.ID, cycle, g.Cycle)
	}

	// The WHERE clause repeats both guards so the upsert never rewrites
	// another organization's group or moves a cycle back.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO member_groups (id, organization_id, name, cycle, prices_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			cycle = excluded.cycle,
			prices_json = excluded.prices_json
		WHERE member_groups.organization_id = excluded.organization_id
			AND excluded.cycle >= member_groups.cycle
	`, g.ID, g.OrganizationID, g.Name, g.Cycle, prices, formatTime(orNow(g.CreatedAt)))
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("group %s: %w", g.ID, registration.ErrGroupIDTaken)
	}
	return nil
}

// GetGroup returns a group scoped to an organization, or
// registration.ErrNotFound.
func (s *Store) GetGroup(ctx context.Context, orgID registration.OrganizationID, id registration.GroupID) (*registration.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups, err := s.q.queryGroups(ctx,
		"SELECT "+groupColumns+" FROM member_groups WHERE id = ? AND organization_id = ? LIMIT 1",
		id, orgID)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, registration.ErrNotFound
	}
	return &groups[0], nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset deletes all data. Development only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"registrations", "payments", "member_groups", "members", "tokens", "users", "organizations"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
