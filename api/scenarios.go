/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a demo
	organization, a household with a bearer token, and groups with
	family price tiers, so batch registration can be tried by hand.

AVAILABLE SCENARIOS:

	new-family:       Three children, nobody registered yet
	returning-family: One child already registered this cycle, one
	                  registration from a previous cycle, one on a waiting list

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create organization, user and token
 3. Create groups via the group factory
 4. Create members
 5. Optionally add existing registrations

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "new-family"}

	then call the user endpoints with "Authorization: Bearer demo-token".

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/registration-engine/registration"
	"github.com/warp/registration-engine/store/sqlite"
)

const (
	demoOrganization = registration.OrganizationID("org-demo")
	demoUser         = registration.UserID("user-demo")
	demoToken        = "demo-token"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-family",
		Name:        "New Family",
		Description: "Three children, no registrations yet; groups with and without family prices",
	},
	{
		ID:          "returning-family",
		Name:        "Returning Family",
		Description: "One child registered this cycle, a stale registration from last cycle and a waiting list entry",
	},
}

var demoGroups = []string{
	`{"id": "kapoenen", "name": "Kapoenen (6-8 jaar)", "cycle": 2,
	  "prices": [{"price": "40", "reduced_price": "20"}]}`,
	`{"id": "welpen", "name": "Welpen (8-11 jaar)", "cycle": 2,
	  "prices": [{"price": "50", "reduced_price": "25", "family_price": "40", "extra_family_price": "30"}]}`,
	`{"id": "jonggivers", "name": "Jonggivers (11-14 jaar)", "cycle": 2,
	  "prices": [
	    {"price": "55", "family_price": "45", "extra_family_price": "35"},
	    {"start_date": "2099-01-01", "price": "65", "family_price": "55", "extra_family_price": "45"}
	  ]}`,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	var load func(context.Context) error
	switch req.ScenarioID {
	case "new-family":
		load = h.loadNewFamilyScenario
	case "returning-family":
		load = h.loadReturningFamilyScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.Log.Info("scenario loaded", "scenario", req.ScenarioID)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"token":    demoToken,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewFamilyScenario(ctx context.Context) error {
	if err := h.seedDemoOrganization(ctx); err != nil {
		return err
	}
	return h.seedDemoMembers(ctx)
}

func (h *Handler) loadReturningFamilyScenario(ctx context.Context) error {
	if err := h.loadNewFamilyScenario(ctx); err != nil {
		return err
	}

	now := time.Now()
	regs := []registration.Registration{
		// Current cycle: counts towards the family discount.
		{ID: "reg-lotte-welpen", MemberID: "member-lotte", GroupID: "welpen", Cycle: 2},
		// Previous cycle: stale, does not count.
		{ID: "reg-jonas-kapoenen", MemberID: "member-jonas", GroupID: "kapoenen", Cycle: 1},
		// Waiting list: upgrades when registered for real.
		{ID: "reg-mila-kapoenen", MemberID: "member-mila", GroupID: "kapoenen", Cycle: 2, WaitingList: true, CanRegister: true},
	}
	for _, reg := range regs {
		reg.CreatedAt = now
		reg.UpdatedAt = now
		if !reg.WaitingList {
			reg.RegisteredAt = &now
		}
		if err := h.Store.SaveRegistration(ctx, reg); err != nil {
			return fmt.Errorf("registration %s: %w", reg.ID, err)
		}
	}
	return nil
}

func (h *Handler) seedDemoOrganization(ctx context.Context) error {
	if err := h.Store.SaveOrganization(ctx, sqlite.Organization{ID: demoOrganization, Name: "Scouts Demo"}); err != nil {
		return err
	}
	if err := h.Store.SaveUser(ctx, sqlite.User{ID: demoUser, OrganizationID: demoOrganization, Email: "ouder@example.com"}); err != nil {
		return err
	}
	if err := h.Store.SaveToken(ctx, demoToken, demoUser); err != nil {
		return err
	}

	for _, groupJSON := range demoGroups {
		group, err := h.GroupFactory.ParseGroup(groupJSON, demoOrganization)
		if err != nil {
			return fmt.Errorf("parse group: %w", err)
		}
		if err := h.Store.SaveGroup(ctx, *group); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seedDemoMembers(ctx context.Context) error {
	members := []registration.Member{
		{ID: "member-lotte", FirstName: "Lotte", LastName: "Peeters", BirthDay: demoDate(2015, time.March, 4)},
		{ID: "member-jonas", FirstName: "Jonas", LastName: "Peeters", BirthDay: demoDate(2017, time.June, 21)},
		{ID: "member-mila", FirstName: "Mila", LastName: "Peeters", BirthDay: demoDate(2018, time.November, 2)},
	}
	for _, m := range members {
		m.OrganizationID = demoOrganization
		m.UserID = demoUser
		if err := h.Store.SaveMember(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func demoDate(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}
