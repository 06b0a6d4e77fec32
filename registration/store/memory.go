// Package store provides in-memory registration.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/registration-engine/registration"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	state memoryState
}

type memoryState struct {
	members       map[registration.MemberID]registration.Member
	groups        map[registration.GroupID]registration.Group
	registrations map[registration.RegistrationID]registration.Registration
	payments      map[registration.PaymentID]registration.Payment
}

func newMemoryState() memoryState {
	return memoryState{
		members:       make(map[registration.MemberID]registration.Member),
		groups:        make(map[registration.GroupID]registration.Group),
		registrations: make(map[registration.RegistrationID]registration.Registration),
		payments:      make(map[registration.PaymentID]registration.Payment),
	}
}

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

// SaveMember adds or replaces a member. Seeding only.
func (m *Memory) SaveMember(mem registration.Member) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.members[mem.ID] = mem
}

// SaveGroup adds or replaces a group. Seeding only.
func (m *Memory) SaveGroup(g registration.Group) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.groups[g.ID] = g
}

// Registrations returns every stored registration sorted by id.
func (m *Memory) Registrations() []registration.Registration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]registration.Registration, 0, len(m.state.registrations))
	for _, r := range m.state.registrations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Payments returns every stored payment sorted by id.
func (m *Memory) Payments() []registration.Payment {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]registration.Payment, 0, len(m.state.payments))
	for _, p := range m.state.payments {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) MembersByUser(ctx context.Context, userID registration.UserID) ([]registration.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.membersByUser(userID), nil
}

func (m *Memory) GroupsByOrganization(ctx context.Context, orgID registration.OrganizationID) ([]registration.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.groupsByOrganization(orgID), nil
}

func (m *Memory) RegistrationsByMembers(ctx context.Context, ids []registration.MemberID) ([]registration.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.registrationsByMembers(ids), nil
}

func (m *Memory) FindRegistration(ctx context.Context, memberID registration.MemberID, groupID registration.GroupID, cycle int) (*registration.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.findRegistration(memberID, groupID, cycle), nil
}

func (m *Memory) GetRegistration(ctx context.Context, id registration.RegistrationID) (*registration.Registration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getRegistration(id)
}

func (m *Memory) SaveRegistration(ctx context.Context, r registration.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.saveRegistration(r)
}

func (m *Memory) SavePayment(ctx context.Context, p registration.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.payments[p.ID] = p
	return nil
}

func (m *Memory) GetPayment(ctx context.Context, id registration.PaymentID) (*registration.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.getPayment(id)
}

// =============================================================================
// STATE QUERIES (caller holds the lock)
// =============================================================================

func (s memoryState) membersByUser(userID registration.UserID) []registration.Member {
	var out []registration.Member
	for _, mem := range s.members {
		if mem.UserID == userID {
			out = append(out, mem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s memoryState) groupsByOrganization(orgID registration.OrganizationID) []registration.Group {
	var out []registration.Group
	for _, g := range s.groups {
		if g.OrganizationID == orgID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s memoryState) registrationsByMembers(ids []registration.MemberID) []registration.Registration {
	want := make(map[registration.MemberID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []registration.Registration
	for _, r := range s.registrations {
		if want[r.MemberID] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s memoryState) findRegistration(memberID registration.MemberID, groupID registration.GroupID, cycle int) *registration.Registration {
	for _, r := range s.registrations {
		if r.MemberID == memberID && r.GroupID == groupID && r.Cycle == cycle {
			found := r
			return &found
		}
	}
	return nil
}

func (s memoryState) getRegistration(id registration.RegistrationID) (*registration.Registration, error) {
	r, ok := s.registrations[id]
	if !ok {
		return nil, registration.ErrNotFound
	}
	return &r, nil
}

func (s memoryState) getPayment(id registration.PaymentID) (*registration.Payment, error) {
	p, ok := s.payments[id]
	if !ok {
		return nil, registration.ErrNotFound
	}
	return &p, nil
}

// saveRegistration enforces one registration per (member, group, cycle).
func (s memoryState) saveRegistration(r registration.Registration) error {
	if existing := s.findRegistration(r.MemberID, r.GroupID, r.Cycle); existing != nil && existing.ID != r.ID {
		return registration.ErrDuplicateRegistration
	}
	s.registrations[r.ID] = r
	return nil
}

func (s memoryState) clone() memoryState {
	c := newMemoryState()
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.registrations {
		c.registrations[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The write lock is held for the whole scope, which serializes batches.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(registration.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.state.clone()

	if err := fn(&txMemoryView{state: tm.state}); err != nil {
		tm.state = snapshot
		return err
	}
	return nil
}

// txMemoryView reads and writes the parent's state without locking.
type txMemoryView struct {
	state memoryState
}

func (tv *txMemoryView) MembersByUser(ctx context.Context, userID registration.UserID) ([]registration.Member, error) {
	return tv.state.membersByUser(userID), nil
}

func (tv *txMemoryView) GroupsByOrganization(ctx context.Context, orgID registration.OrganizationID) ([]registration.Group, error) {
	return tv.state.groupsByOrganization(orgID), nil
}

func (tv *txMemoryView) RegistrationsByMembers(ctx context.Context, ids []registration.MemberID) ([]registration.Registration, error) {
	return tv.state.registrationsByMembers(ids), nil
}

func (tv *txMemoryView) FindRegistration(ctx context.Context, memberID registration.MemberID, groupID registration.GroupID, cycle int) (*registration.Registration, error) {
	return tv.state.findRegistration(memberID, groupID, cycle), nil
}

func (tv *txMemoryView) GetRegistration(ctx context.Context, id registration.RegistrationID) (*registration.Registration, error) {
	return tv.state.getRegistration(id)
}

func (tv *txMemoryView) SaveRegistration(ctx context.Context, r registration.Registration) error {
	return tv.state.saveRegistration(r)
}

func (tv *txMemoryView) SavePayment(ctx context.Context, p registration.Payment) error {
	tv.state.payments[p.ID] = p
	return nil
}

func (tv *txMemoryView) GetPayment(ctx context.Context, id registration.PaymentID) (*registration.Payment, error) {
	return tv.state.getPayment(id)
}
