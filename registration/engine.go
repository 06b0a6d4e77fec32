package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/registration-engine/logger"
)

// =============================================================================
// ENGINE - Processes enrollment batches with transactional guarantees
// =============================================================================

type Engine struct {
	Store TxStore
	Log   *logger.Logger

	// Overridable for tests.
	Now               func() time.Time
	NewID             func() string
	TransferReference func() (string, error)
}

func NewEngine(store TxStore, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		Store:             store,
		Log:               log,
		Now:               time.Now,
		NewID:             uuid.NewString,
		TransferReference: NewTransferReference,
	}
}

// slot identifies a member in a group within one batch.
type slot struct {
	member MemberID
	group  GroupID
}

// outcome is what the reconciler decided for one item.
type outcome struct {
	registration *Registration
	price        decimal.Decimal
	billable     bool
}

// =============================================================================
// REGISTER - The batch operation
// =============================================================================

// Register reconciles a batch of enrollments for actor and settles all
// billable ones with a single payment.
// This is TRANSACTIONAL:
//   - Waiting-list inserts are written as they are reconciled
//   - Billable registrations are written once the payment exists
//
// If ANY step fails, ALL changes are rolled back.
func (e *Engine) Register(ctx context.Context, actor Actor, req Request) (*Result, error) {
	if len(req.Items) == 0 {
		return nil, emptyBatchError()
	}
	method := req.PaymentMethod
	if method == "" {
		method = PaymentUnknown
	}
	if !method.Valid() {
		return nil, invalidPaymentMethodError(method)
	}

	now := e.Now()
	var (
		payment *Payment
		touched []RegistrationID
		billed  int
	)

	err := e.Store.WithTx(ctx, func(s Store) error {
		// 1. Snapshot the household and the organization's groups
		idx, regs, err := e.loadBatch(ctx, s, actor)
		if err != nil {
			return err
		}

		// 2. Defer family-priced groups so the counter sees the others first
		ordered, err := OrderBatch(req.Items, idx)
		if err != nil {
			return err
		}

		// 3. Reconcile each item against existing state
		counter := NewFamilyCounter(CountCurrent(regs, idx.Groups))
		pending := make(map[slot]*Registration)
		var candidates []outcome
		for _, item := range ordered {
			out, err := e.reconcile(ctx, s, idx, item, counter, pending, now)
			if err != nil {
				return err
			}
			touched = append(touched, out.registration.ID)
			if out.billable {
				candidates = append(candidates, out)
			}
		}

		// 4. One payment for everything billable
		billed = len(candidates)
		payment, err = e.settle(ctx, s, candidates, method, now)
		return err
	})
	if err != nil {
		e.Log.Warn("registration batch aborted",
			"user_id", actor.UserID, "items", len(req.Items), "error", err)
		return nil, err
	}

	if payment != nil {
		e.Log.Info("registration batch committed",
			"user_id", actor.UserID, "items", len(req.Items), "billable", billed,
			"payment_id", payment.ID, "price", payment.Price.String(), "status", payment.Status)
	} else {
		e.Log.Info("registration batch committed without payment",
			"user_id", actor.UserID, "items", len(req.Items))
	}

	return e.Assemble(ctx, actor, payment, touched)
}

func (e *Engine) loadBatch(ctx context.Context, s Store, actor Actor) (*Index, []Registration, error) {
	all, err := s.MembersByUser(ctx, actor.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load members: %w", err)
	}
	members, ids := membersInOrganization(all, actor.OrganizationID)

	groups, err := s.GroupsByOrganization(ctx, actor.OrganizationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load groups: %w", err)
	}

	regs, err := s.RegistrationsByMembers(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load registrations: %w", err)
	}
	return NewIndex(members, groups), regs, nil
}

// =============================================================================
// ENROLLMENT RECONCILER
// =============================================================================

// reconcile decides what happens to one item:
//
//	existing       requested     action
//	none           waiting list  insert waiting-list registration now
//	none           enroll        new billable candidate
//	waiting list   waiting list  no-op
//	waiting list   enroll        upgrade in place, billable candidate
//	enrolled       any           no-op
func (e *Engine) reconcile(ctx context.Context, s Store, idx *Index, item Item, counter *FamilyCounter, pending map[slot]*Registration, now time.Time) (outcome, error) {
	member, group, err := idx.Resolve(item)
	if err != nil {
		return outcome{}, err
	}

	// Billable candidates from earlier in this batch are not written yet.
	key := slot{member: member.ID, group: group.ID}
	if reg, ok := pending[key]; ok {
		return outcome{registration: reg}, nil
	}

	existing, err := s.FindRegistration(ctx, member.ID, group.ID, group.Cycle)
	if err != nil {
		return outcome{}, fmt.Errorf("find registration: %w", err)
	}

	reg := existing
	if existing != nil {
		if !existing.WaitingList || item.WaitingList {
			return outcome{registration: existing}, nil
		}
	} else {
		reg = &Registration{
			ID:        RegistrationID(e.NewID()),
			MemberID:  member.ID,
			GroupID:   group.ID,
			Cycle:     group.Cycle,
			CreatedAt: now,
		}
	}
	reg.UpdatedAt = now

	if item.WaitingList {
		reg.WaitingList = true
		if err := s.SaveRegistration(ctx, *reg); err != nil {
			return outcome{}, fmt.Errorf("save waiting list registration: %w", err)
		}
		return outcome{registration: reg}, nil
	}

	tier, ok := ResolvePriceTier(group.Prices, now)
	if !ok {
		return outcome{}, noApplicablePriceError(group.ID)
	}
	price := counter.Price(tier, item.Reduced)

	reg.WaitingList = false
	reg.CanRegister = false
	pending[key] = reg
	return outcome{registration: reg, price: price, billable: true}, nil
}

// =============================================================================
// PAYMENT AGGREGATOR
// =============================================================================

// settle creates the batch payment and links every billable registration
// to it. Returns nil without writing when nothing is billable.
func (e *Engine) settle(ctx context.Context, s Store, candidates []outcome, method PaymentMethod, now time.Time) (*Payment, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	total := decimal.Zero
	for _, c := range candidates {
		total = total.Add(c.price)
	}

	payment := Payment{
		ID:        PaymentID(e.NewID()),
		Method:    method,
		Status:    PaymentPending,
		Price:     total,
		CreatedAt: now,
	}
	if total.IsZero() {
		paidAt := now
		payment.Status = PaymentSucceeded
		payment.PaidAt = &paidAt
	}
	if method == PaymentTransfer {
		ref, err := e.TransferReference()
		if err != nil {
			return nil, err
		}
		payment.TransferDescription = &ref
	}

	if err := s.SavePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}

	for _, c := range candidates {
		paymentID := payment.ID
		c.registration.PaymentID = &paymentID
		// Transfers count as provisionally confirmed on submission.
		if method == PaymentTransfer {
			registeredAt := now
			c.registration.RegisteredAt = &registeredAt
		}
		if err := s.SaveRegistration(ctx, *c.registration); err != nil {
			return nil, fmt.Errorf("save registration: %w", err)
		}
	}

	return &payment, nil
}

// =============================================================================
// RESPONSE ASSEMBLER
// =============================================================================

// Household returns the actor's members in the actor's organization with
// all their registrations.
func (e *Engine) Household(ctx context.Context, actor Actor) ([]MemberWithRegistrations, error) {
	all, err := e.Store.MembersByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	members, ids := membersInOrganization(all, actor.OrganizationID)
	regs, err := e.Store.RegistrationsByMembers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load registrations: %w", err)
	}
	return GroupByMember(members, regs), nil
}

// membersInOrganization keeps the members of orgID and returns their ids.
func membersInOrganization(all []Member, orgID OrganizationID) ([]Member, []MemberID) {
	members := make([]Member, 0, len(all))
	ids := make([]MemberID, 0, len(all))
	for _, m := range all {
		if m.OrganizationID != orgID {
			continue
		}
		members = append(members, m)
		ids = append(ids, m.ID)
	}
	return members, ids
}

// GroupByMember attaches registrations to their members, keeping member order.
func GroupByMember(members []Member, regs []Registration) []MemberWithRegistrations {
	byMember := make(map[MemberID][]Registration)
	for _, r := range regs {
		byMember[r.MemberID] = append(byMember[r.MemberID], r)
	}
	out := make([]MemberWithRegistrations, len(members))
	for i, m := range members {
		out[i] = MemberWithRegistrations{Member: m, Registrations: byMember[m.ID]}
	}
	return out
}

// Assemble re-reads the committed state touched by a batch.
func (e *Engine) Assemble(ctx context.Context, actor Actor, payment *Payment, touched []RegistrationID) (*Result, error) {
	household, err := e.Household(ctx, actor)
	if err != nil {
		return nil, err
	}
	members := make(map[MemberID]Member, len(household))
	for _, m := range household {
		members[m.ID] = m.Member
	}

	result := &Result{Members: household}
	for _, id := range touched {
		reg, err := e.Store.GetRegistration(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("reload registration %s: %w", id, err)
		}
		member, ok := members[reg.MemberID]
		if !ok {
			continue
		}
		result.Registrations = append(result.Registrations, RegistrationWithMember{Registration: *reg, Member: member})
	}

	if payment != nil {
		p, err := e.Store.GetPayment(ctx, payment.ID)
		if err != nil {
			return nil, fmt.Errorf("reload payment %s: %w", payment.ID, err)
		}
		result.Payment = p
	}
	return result, nil
}
