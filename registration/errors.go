/*
errors.go - Error types for the registration engine

ERROR CATEGORIES:
  1. Client errors - the caller sent something the engine cannot act on
     (empty batch, stale member/group ids, unknown payment method)
  2. Configuration errors - group data that cannot be priced
  3. Store errors - wrapped with context, surfaced as generic failures

Every engine error is an *Error that carries a machine code, localized
user messages and the sentinel it unwraps to:

    if errors.Is(err, registration.ErrEmptyBatch) { ... }

    var regErr *registration.Error
    if errors.As(err, &regErr) {
        msg := regErr.Message("en")
    }
*/
package registration

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrEmptyBatch           = errors.New("empty batch")
	ErrUnknownMember        = errors.New("unknown member")
	ErrUnknownGroup         = errors.New("unknown group")
	ErrNoApplicablePrice    = errors.New("no applicable price")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrAmbiguousPriceTiers  = errors.New("ambiguous price tiers")
	ErrInvalidPriceTiers    = errors.New("invalid price tiers")
	ErrCycleDecrease        = errors.New("group cycle cannot decrease")
	ErrNotFound             = errors.New("not found")

	// ErrDuplicateRegistration is returned by stores when a second
	// registration for the same (member, group, cycle) is written.
	ErrDuplicateRegistration = errors.New("duplicate registration for member, group and cycle")

	// ErrGroupIDTaken is returned when a group write targets an id owned by
	// another organization.
	ErrGroupIDTaken = errors.New("group id belongs to another organization")
)

// Machine codes exposed to clients.
const (
	CodeEmptyData            = "empty_data"
	CodeInvalidMember        = "invalid_member"
	CodeInvalidPrice         = "invalid_price"
	CodeInvalidPaymentMethod = "invalid_payment_method"
	CodeAmbiguousPriceTiers  = "ambiguous_price_tiers"
	CodeInvalidPriceTiers    = "invalid_price_tiers"
	CodeInvalidGroupCycle    = "invalid_group_cycle"
)

// DefaultLanguage is used when no message exists for the requested language.
const DefaultLanguage = "nl"

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

// Error is a user-facing engine error.
type Error struct {
	Code     string
	Messages map[string]string // language -> message
	Err      error
	Detail   string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Code, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the message for lang, falling back to DefaultLanguage.
func (e *Error) Message(lang string) string {
	if m, ok := e.Messages[lang]; ok {
		return m
	}
	return e.Messages[DefaultLanguage]
}

func emptyBatchError() *Error {
	return &Error{
		Code: CodeEmptyData,
		Err:  ErrEmptyBatch,
		Messages: map[string]string{
			"nl": "Oeps, je hebt niemand geselecteerd om in te schrijven",
			"en": "Oops, you did not select anyone to register",
		},
	}
}

func unknownMemberError(id MemberID) *Error {
	return &Error{
		Code:   CodeInvalidMember,
		Err:    ErrUnknownMember,
		Detail: string(id),
		Messages: map[string]string{
			"nl": "Het lid dat je probeert in te schrijven konden we niet meer terugvinden. Je herlaadt best even de pagina om opnieuw te proberen.",
			"en": "We could not find the member you are trying to register. Please reload the page and try again.",
		},
	}
}

func unknownGroupError(id GroupID) *Error {
	return &Error{
		Code:   CodeInvalidMember,
		Err:    ErrUnknownGroup,
		Detail: string(id),
		Messages: map[string]string{
			"nl": "De leeftijdsgroep waarin je een lid probeert in te schrijven lijkt niet meer te bestaan. Je herlaadt best even de pagina om opnieuw te proberen.",
			"en": "The group you are trying to register a member in no longer seems to exist. Please reload the page and try again.",
		},
	}
}

func noApplicablePriceError(id GroupID) *Error {
	return &Error{
		Code:   CodeInvalidPrice,
		Err:    ErrNoApplicablePrice,
		Detail: string(id),
		Messages: map[string]string{
			"nl": "We konden geen passende prijs vinden voor deze inschrijving. Contacteer ons zodat we dit probleem kunnen recht zetten",
			"en": "We could not find a matching price for this registration. Please contact us so we can fix this problem",
		},
	}
}

func invalidPaymentMethodError(m PaymentMethod) *Error {
	return &Error{
		Code:   CodeInvalidPaymentMethod,
		Err:    ErrInvalidPaymentMethod,
		Detail: string(m),
		Messages: map[string]string{
			"nl": "Deze betaalmethode wordt niet ondersteund",
			"en": "This payment method is not supported",
		},
	}
}

func priceTierError(sentinel error, detail string) *Error {
	code := CodeInvalidPriceTiers
	if sentinel == ErrAmbiguousPriceTiers {
		code = CodeAmbiguousPriceTiers
	}
	return &Error{
		Code:   code,
		Err:    sentinel,
		Detail: detail,
		Messages: map[string]string{
			"nl": "De prijzen van deze groep zijn niet correct ingesteld",
			"en": "The prices of this group are not configured correctly",
		},
	}
}

// CycleDecreaseError is returned when a group update would move its cycle
// backwards and revive registrations of an earlier cycle.
func CycleDecreaseError(id GroupID, current, requested int) *Error {
	return &Error{
		Code:   CodeInvalidGroupCycle,
		Err:    ErrCycleDecrease,
		Detail: fmt.Sprintf("group %s: cycle %d < current %d", id, requested, current),
		Messages: map[string]string{
			"nl": "De inschrijvingsperiode van een groep kan niet teruggezet worden",
			"en": "The enrollment cycle of a group cannot be moved back",
		},
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrUnknownMember) ||
		errors.Is(err, ErrUnknownGroup) ||
		errors.Is(err, ErrInvalidPaymentMethod) ||
		errors.Is(err, ErrAmbiguousPriceTiers) ||
		errors.Is(err, ErrInvalidPriceTiers) ||
		errors.Is(err, ErrCycleDecrease)
}

// IsConfigurationError returns true for group data the engine cannot price.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNoApplicablePrice)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if a write collided with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateRegistration) ||
		errors.Is(err, ErrGroupIDTaken)
}
