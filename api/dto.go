/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator struct tags, checked in the
  handlers before the engine is called. Business rules (empty batch,
  unknown ids) stay in the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/group.go: GroupJSON type
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/registration-engine/registration"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// RegisterMemberDTO is one requested enrollment.
type RegisterMemberDTO struct {
	MemberID    string `json:"member_id" validate:"required"`
	GroupID     string `json:"group_id" validate:"required"`
	WaitingList bool   `json:"waiting_list"`
	Reduced     bool   `json:"reduced"`
}

// RegisterMembersRequest is the body of POST /api/user/members/register.
type RegisterMembersRequest struct {
	Members       []RegisterMemberDTO `json:"members" validate:"dive"`
	PaymentMethod string              `json:"payment_method" validate:"omitempty,oneof=Transfer Bancontact iDEAL Payconiq PointOfSale Unknown"`
}

func (req RegisterMembersRequest) toDomain() registration.Request {
	items := make([]registration.Item, len(req.Members))
	for i, m := range req.Members {
		items[i] = registration.Item{
			MemberID:    registration.MemberID(m.MemberID),
			GroupID:     registration.GroupID(m.GroupID),
			WaitingList: m.WaitingList,
			Reduced:     m.Reduced,
		}
	}
	return registration.Request{
		Items:         items,
		PaymentMethod: registration.PaymentMethod(req.PaymentMethod),
	}
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// PaymentDTO represents a payment in API responses.
type PaymentDTO struct {
	ID                  string          `json:"id"`
	Method              string          `json:"method"`
	Status              string          `json:"status"`
	Price               decimal.Decimal `json:"price"`
	TransferDescription *string         `json:"transfer_description"`
	PaidAt              *string         `json:"paid_at"`
	CreatedAt           string          `json:"created_at"`
}

// RegistrationDTO represents a registration in API responses.
type RegistrationDTO struct {
	ID           string  `json:"id"`
	MemberID     string  `json:"member_id"`
	GroupID      string  `json:"group_id"`
	Cycle        int     `json:"cycle"`
	WaitingList  bool    `json:"waiting_list"`
	CanRegister  bool    `json:"can_register"`
	PaymentID    *string `json:"payment_id"`
	RegisteredAt *string `json:"registered_at"`
	CreatedAt    string  `json:"created_at"`
}

// MemberSummaryDTO is a member without registrations.
type MemberSummaryDTO struct {
	ID        string  `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	BirthDay  *string `json:"birth_day,omitempty"`
}

// MemberDTO is a member with all registrations.
type MemberDTO struct {
	MemberSummaryDTO
	Registrations []RegistrationDTO `json:"registrations"`
}

// RegistrationWithMemberDTO is a registration with its member.
type RegistrationWithMemberDTO struct {
	RegistrationDTO
	Member MemberSummaryDTO `json:"member"`
}

// RegisterResponse is the response of POST /api/user/members/register.
type RegisterResponse struct {
	Payment       *PaymentDTO                 `json:"payment"`
	Members       []MemberDTO                 `json:"members"`
	Registrations []RegistrationWithMemberDTO `json:"registrations"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func formatOptionalTime(t *time.Time, layout string) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(layout)
	return &s
}

func toPaymentDTO(p *registration.Payment) *PaymentDTO {
	if p == nil {
		return nil
	}
	return &PaymentDTO{
		ID:                  string(p.ID),
		Method:              string(p.Method),
		Status:              string(p.Status),
		Price:               p.Price,
		TransferDescription: p.TransferDescription,
		PaidAt:              formatOptionalTime(p.PaidAt, time.RFC3339),
		CreatedAt:           p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toRegistrationDTO(r registration.Registration) RegistrationDTO {
	dto := RegistrationDTO{
		ID:           string(r.ID),
		MemberID:     string(r.MemberID),
		GroupID:      string(r.GroupID),
		Cycle:        r.Cycle,
		WaitingList:  r.WaitingList,
		CanRegister:  r.CanRegister,
		RegisteredAt: formatOptionalTime(r.RegisteredAt, time.RFC3339),
		CreatedAt:    r.CreatedAt.UTC().Format(time.RFC3339),
	}
	if r.PaymentID != nil {
		id := string(*r.PaymentID)
		dto.PaymentID = &id
	}
	return dto
}

func toMemberSummaryDTO(m registration.Member) MemberSummaryDTO {
	return MemberSummaryDTO{
		ID:        string(m.ID),
		FirstName: m.FirstName,
		LastName:  m.LastName,
		BirthDay:  formatOptionalTime(m.BirthDay, "2006-01-02"),
	}
}

func toMemberDTOs(members []registration.MemberWithRegistrations) []MemberDTO {
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		regs := make([]RegistrationDTO, len(m.Registrations))
		for j, r := range m.Registrations {
			regs[j] = toRegistrationDTO(r)
		}
		dtos[i] = MemberDTO{MemberSummaryDTO: toMemberSummaryDTO(m.Member), Registrations: regs}
	}
	return dtos
}

func toRegisterResponse(res *registration.Result) RegisterResponse {
	regs := make([]RegistrationWithMemberDTO, len(res.Registrations))
	for i, r := range res.Registrations {
		regs[i] = RegistrationWithMemberDTO{
			RegistrationDTO: toRegistrationDTO(r.Registration),
			Member:          toMemberSummaryDTO(r.Member),
		}
	}
	return RegisterResponse{
		Payment:       toPaymentDTO(res.Payment),
		Members:       toMemberDTOs(res.Members),
		Registrations: regs,
	}
}
