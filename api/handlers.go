/*
handlers.go - HTTP API handlers for the registration engine

PURPOSE:
  Exposes the registration engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Household (authenticated user):
    GET    /api/user/members                        Members with registrations
    POST   /api/user/members/register               Register a batch of members

  Organization:
    GET    /api/organization/groups                 List groups
    POST   /api/organization/groups                 Create or update a group
    GET    /api/organization/groups/{id}/members    Members of a group's current cycle

  Scenarios:
    GET    /api/scenarios                           List demo scenarios
    POST   /api/scenarios/load                      Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON {error, code, details} with appropriate status:
  - 400: Validation errors, invalid input, stale member/group ids
  - 401: Missing or unknown bearer token
  - 404: Resource not found
  - 409: Conflict (concurrent duplicate registration)
  - 500: Configuration and internal errors
  The error message is localized from Accept-Language (nl, en).

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Bearer token resolution
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/language"

	"github.com/warp/registration-engine/factory"
	"github.com/warp/registration-engine/logger"
	"github.com/warp/registration-engine/registration"
	"github.com/warp/registration-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	Engine       *registration.Engine
	GroupFactory *factory.GroupFactory
	Log          *logger.Logger

	validate  *validator.Validate
	languages language.Matcher

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store. defaultLanguage
// is used for error messages when Accept-Language matches nothing.
func NewHandler(store *sqlite.Store, log *logger.Logger, defaultLanguage string) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	supported := []language.Tag{language.Dutch, language.English}
	if defaultLanguage == "en" {
		supported = []language.Tag{language.English, language.Dutch}
	}
	return &Handler{
		Store:        store,
		Engine:       registration.NewEngine(store, log),
		GroupFactory: factory.NewGroupFactory(),
		Log:          log,
		validate:     validator.New(),
		languages:    language.NewMatcher(supported),
	}
}

// =============================================================================
// HOUSEHOLD HANDLERS
// =============================================================================

// RegisterMembers registers a batch of members and returns the payment.
func (h *Handler) RegisterMembers(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)

	var req RegisterMembersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	result, err := h.Engine.Register(r.Context(), actor, req.toDomain())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toRegisterResponse(result))
}

// ListHouseholdMembers returns the caller's members with registrations.
func (h *Handler) ListHouseholdMembers(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)

	members, err := h.Engine.Household(r.Context(), actor)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTOs(members))
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// ListGroups returns the groups of the caller's organization.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)

	groups, err := h.Store.GroupsByOrganization(r.Context(), actor.OrganizationID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	dtos := make([]factory.GroupJSON, len(groups))
	for i, g := range groups {
		dtos[i] = factory.ToJSON(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateGroup creates or updates a group from its JSON definition.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)

	var req factory.GroupJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	group, err := h.GroupFactory.FromJSON(req, actor.OrganizationID)
	if err != nil {
		var regErr *registration.Error
		if errors.As(err, &regErr) {
			h.writeEngineError(w, r, err)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid group", err)
		return
	}

	if err := h.Store.SaveGroup(r.Context(), *group); err != nil {
		if errors.Is(err, registration.ErrGroupIDTaken) {
			writeErrorCode(w, http.StatusConflict, "group_id_taken", "Group id is already in use", nil)
			return
		}
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, factory.ToJSON(*group))
}

// GetGroupMembers returns the members registered in the group's current
// cycle. ?waiting_list=true lists the waiting list instead.
func (h *Handler) GetGroupMembers(w http.ResponseWriter, r *http.Request) {
	actor := mustActor(r)
	ctx := r.Context()

	waitingList := false
	if v := r.URL.Query().Get("waiting_list"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid waiting_list value", err)
			return
		}
		waitingList = b
	}

	group, err := h.Store.GetGroup(ctx, actor.OrganizationID, registration.GroupID(chi.URLParam(r, "id")))
	if err != nil {
		if registration.IsNotFound(err) {
			writeErrorCode(w, http.StatusNotFound, "group_not_found", "Group not found", nil)
			return
		}
		h.writeEngineError(w, r, err)
		return
	}

	members, err := h.Store.MembersByGroup(ctx, group.ID, group.Cycle, waitingList)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	ids := make([]registration.MemberID, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	regs, err := h.Store.RegistrationsByMembers(ctx, ids)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberDTOs(registration.GroupByMember(members, regs)))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeErrorCode(w, status, "", message, err)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine and store errors to HTTP responses.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case registration.IsNotFound(err):
		status = http.StatusNotFound
	case registration.IsClientError(err):
		status = http.StatusBadRequest
	case registration.IsConflict(err):
		status = http.StatusConflict
	}

	log := h.Log.With("request_id", middleware.GetReqID(r.Context()), "path", r.URL.Path)

	var regErr *registration.Error
	if errors.As(err, &regErr) {
		if status == http.StatusInternalServerError {
			log.Error("configuration error", "code", regErr.Code, "error", err)
		}
		writeErrorCode(w, status, regErr.Code, regErr.Message(h.language(r)), err)
		return
	}

	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		writeError(w, status, "Internal error", nil)
		return
	}
	writeError(w, status, http.StatusText(status), err)
}

// language picks the message language from Accept-Language.
func (h *Handler) language(r *http.Request) string {
	tag, _ := language.MatchStrings(h.languages, r.Header.Get("Accept-Language"))
	base, _ := tag.Base()
	return base.String()
}
