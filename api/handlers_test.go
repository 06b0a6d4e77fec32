/*
handlers_test.go - HTTP tests for the registration API

Tests for:
- Batch registration through the router (auth, pricing, payment)
- Error mapping and localized messages
- Group endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/registration-engine/logger"
	"github.com/warp/registration-engine/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	t      *testing.T
	store  *sqlite.Store
	router http.Handler
}

func newTestServer(t *testing.T, scenario string) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, logger.Nop(), "nl")
	ts := &testServer{t: t, store: store, router: NewRouter(h, []string{"*"})}

	if scenario != "" {
		rec := ts.do(http.MethodPost, "/api/scenarios/load", "", map[string]string{"scenario_id": scenario}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	return ts
}

func (ts *testServer) do(method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) register(members []RegisterMemberDTO, method string, headers map[string]string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPost, "/api/user/members/register", demoToken,
		RegisterMembersRequest{Members: members, PaymentMethod: method}, headers)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// REGISTRATION TESTS
// =============================================================================

func TestRegisterMembers_FamilyDiscountAndTransfer(t *testing.T) {
	// GIVEN: Three children, none registered
	ts := newTestServer(t, "new-family")

	// WHEN: Registering two in a family-priced group and one in a plain group
	rec := ts.register([]RegisterMemberDTO{
		{MemberID: "member-lotte", GroupID: "welpen"},
		{MemberID: "member-jonas", GroupID: "kapoenen"},
		{MemberID: "member-mila", GroupID: "welpen"},
	}, "Transfer", nil)

	// THEN: kapoenen 40 first, then welpen at family (40) and extra family (30)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RegisterResponse](t, rec)

	require.NotNil(t, resp.Payment)
	assert.True(t, resp.Payment.Price.Equal(decimal.NewFromInt(110)), "got %s", resp.Payment.Price)
	assert.Equal(t, "Transfer", resp.Payment.Method)
	assert.Equal(t, "Pending", resp.Payment.Status)
	require.NotNil(t, resp.Payment.TransferDescription)
	assert.Regexp(t, `^\+\+\+\d{3}/\d{4}/\d{5}\+\+\+$`, *resp.Payment.TransferDescription)

	require.Len(t, resp.Registrations, 3)
	assert.Equal(t, "kapoenen", resp.Registrations[0].GroupID)
	assert.Equal(t, "Jonas", resp.Registrations[0].Member.FirstName)
	for _, r := range resp.Registrations {
		require.NotNil(t, r.PaymentID)
		assert.Equal(t, resp.Payment.ID, *r.PaymentID)
		assert.NotNil(t, r.RegisteredAt)
		assert.Equal(t, 2, r.Cycle)
	}
	assert.Len(t, resp.Members, 3)

	// AND: The same batch again creates nothing new
	again := ts.register([]RegisterMemberDTO{
		{MemberID: "member-lotte", GroupID: "welpen"},
	}, "Transfer", nil)
	require.Equal(t, http.StatusOK, again.Code)
	assert.Nil(t, decode[RegisterResponse](t, again).Payment)
}

func TestRegisterMembers_WaitingListReturnsNullPayment(t *testing.T) {
	ts := newTestServer(t, "new-family")

	rec := ts.register([]RegisterMemberDTO{
		{MemberID: "member-lotte", GroupID: "kapoenen", WaitingList: true},
	}, "", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "null", string(raw["payment"]))

	resp := decode[RegisterResponse](t, rec)
	require.Len(t, resp.Registrations, 1)
	assert.True(t, resp.Registrations[0].WaitingList)
	assert.Nil(t, resp.Registrations[0].PaymentID)
}

func TestRegisterMembers_ReturningFamily(t *testing.T) {
	// GIVEN: Lotte registered this cycle, Jonas only in a previous cycle
	ts := newTestServer(t, "returning-family")

	// WHEN: Registering Jonas in a family-priced group
	rec := ts.register([]RegisterMemberDTO{
		{MemberID: "member-jonas", GroupID: "jonggivers"},
	}, "Bancontact", nil)

	// THEN: Lotte counts, the stale registration does not: family price 45
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RegisterResponse](t, rec)
	require.NotNil(t, resp.Payment)
	assert.True(t, resp.Payment.Price.Equal(decimal.NewFromInt(45)), "got %s", resp.Payment.Price)
	assert.Nil(t, resp.Payment.TransferDescription)
	assert.Nil(t, resp.Registrations[0].RegisteredAt)
}

func TestRegisterMembers_UpgradeFromWaitingList(t *testing.T) {
	ts := newTestServer(t, "returning-family")

	rec := ts.register([]RegisterMemberDTO{
		{MemberID: "member-mila", GroupID: "kapoenen", Reduced: true},
	}, "Payconiq", nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RegisterResponse](t, rec)
	require.Len(t, resp.Registrations, 1)
	assert.Equal(t, "reg-mila-kapoenen", resp.Registrations[0].ID)
	assert.False(t, resp.Registrations[0].WaitingList)
	assert.True(t, resp.Payment.Price.Equal(decimal.NewFromInt(20)))
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestRegisterMembers_Unauthenticated(t *testing.T) {
	ts := newTestServer(t, "new-family")

	rec := ts.do(http.MethodPost, "/api/user/members/register", "", RegisterMembersRequest{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/api/user/members/register", "wrong-token", RegisterMembersRequest{}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "not_authenticated", decode[ErrorResponse](t, rec).Code)
}

func TestRegisterMembers_EmptyBatchLocalized(t *testing.T) {
	ts := newTestServer(t, "new-family")

	// Default language is Dutch
	rec := ts.register([]RegisterMemberDTO{}, "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "empty_data", resp.Code)
	assert.Contains(t, resp.Error, "niemand geselecteerd")

	// English on request
	rec = ts.register(nil, "", map[string]string{"Accept-Language": "en-GB,en;q=0.9"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Error, "did not select anyone")
}

func TestRegisterMembers_UnknownMember(t *testing.T) {
	ts := newTestServer(t, "new-family")

	rec := ts.register([]RegisterMemberDTO{
		{MemberID: "member-lotte", GroupID: "welpen", WaitingList: true},
		{MemberID: "member-ghost", GroupID: "welpen"},
	}, "", nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_member", decode[ErrorResponse](t, rec).Code)

	// Nothing was written
	list := ts.do(http.MethodGet, "/api/organization/groups/welpen/members?waiting_list=true", demoToken, nil, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Empty(t, decode[[]MemberDTO](t, list))
}

func TestRegisterMembers_InvalidBody(t *testing.T) {
	ts := newTestServer(t, "new-family")

	rec := ts.register([]RegisterMemberDTO{{MemberID: "member-lotte"}}, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "group_id is required")

	rec = ts.register([]RegisterMemberDTO{{MemberID: "member-lotte", GroupID: "welpen"}}, "Cash", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unsupported payment method")
}

func TestRegisterMembers_NoApplicablePrice(t *testing.T) {
	// GIVEN: A group whose only tier starts in the future
	ts := newTestServer(t, "new-family")
	create := ts.do(http.MethodPost, "/api/organization/groups", demoToken, map[string]any{
		"id":     "later",
		"name":   "Later",
		"cycle":  1,
		"prices": []map[string]any{{"start_date": "2099-01-01", "price": "10"}},
	}, nil)
	require.Equal(t, http.StatusCreated, create.Code, create.Body.String())

	// WHEN: Registering into it
	rec := ts.register([]RegisterMemberDTO{{MemberID: "member-lotte", GroupID: "later"}}, "", nil)

	// THEN: A configuration error
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "invalid_price", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// HOUSEHOLD & GROUP TESTS
// =============================================================================

func TestListHouseholdMembers(t *testing.T) {
	ts := newTestServer(t, "returning-family")

	rec := ts.do(http.MethodGet, "/api/user/members", demoToken, nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	members := decode[[]MemberDTO](t, rec)
	require.Len(t, members, 3)
	total := 0
	for _, m := range members {
		total += len(m.Registrations)
	}
	assert.Equal(t, 3, total)
}

func TestGroups(t *testing.T) {
	ts := newTestServer(t, "returning-family")

	rec := ts.do(http.MethodGet, "/api/organization/groups", demoToken, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 3)

	rec = ts.do(http.MethodGet, "/api/organization/groups/welpen/members", demoToken, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	members := decode[[]MemberDTO](t, rec)
	require.Len(t, members, 1)
	assert.Equal(t, "member-lotte", members[0].ID)

	rec = ts.do(http.MethodGet, "/api/organization/groups/kapoenen/members?waiting_list=true", demoToken, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	waiting := decode[[]MemberDTO](t, rec)
	require.Len(t, waiting, 1)
	assert.Equal(t, "member-mila", waiting[0].ID)

	rec = ts.do(http.MethodGet, "/api/organization/groups/nope/members", demoToken, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateGroup_AmbiguousTiers(t *testing.T) {
	ts := newTestServer(t, "new-family")

	rec := ts.do(http.MethodPost, "/api/organization/groups", demoToken, map[string]any{
		"id":     "broken",
		"name":   "Broken",
		"prices": []map[string]any{{"price": "10"}, {"price": "12"}},
	}, map[string]string{"Accept-Language": "en"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "ambiguous_price_tiers", resp.Code)
	assert.Contains(t, resp.Error, "not configured correctly")
}

func TestCreateGroup_OtherOrganizationCannotOverwrite(t *testing.T) {
	// GIVEN: The demo organization and a second one with its own token
	ts := newTestServer(t, "new-family")
	ctx := context.Background()
	require.NoError(t, ts.store.SaveOrganization(ctx, sqlite.Organization{ID: "org-other", Name: "Andere"}))
	require.NoError(t, ts.store.SaveUser(ctx, sqlite.User{ID: "user-other", OrganizationID: "org-other", Email: "x@example.com"}))
	require.NoError(t, ts.store.SaveToken(ctx, "other-token", "user-other"))

	// WHEN: The second organization posts a group with the demo group's id
	rec := ts.do(http.MethodPost, "/api/organization/groups", "other-token", map[string]any{
		"id":     "welpen",
		"name":   "Overgenomen",
		"cycle":  0,
		"prices": []map[string]any{{"price": "999"}},
	}, nil)

	// THEN: Conflict, and the demo group keeps its name, cycle and prices
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "group_id_taken", decode[ErrorResponse](t, rec).Code)

	g, err := ts.store.GetGroup(ctx, demoOrganization, "welpen")
	require.NoError(t, err)
	assert.Equal(t, "Welpen (8-11 jaar)", g.Name)
	assert.Equal(t, 2, g.Cycle)
	assert.True(t, g.Prices[0].Price.Equal(decimal.NewFromInt(50)))
}

func TestCreateGroup_CycleCannotMoveBack(t *testing.T) {
	// GIVEN: Jonas holds a registration from kapoenen's previous cycle
	ts := newTestServer(t, "returning-family")

	// WHEN: Moving kapoenen back to that cycle
	rec := ts.do(http.MethodPost, "/api/organization/groups", demoToken, map[string]any{
		"id":     "kapoenen",
		"name":   "Kapoenen",
		"cycle":  1,
		"prices": []map[string]any{{"price": "40"}},
	}, nil)

	// THEN: Rejected, and the stale registration stays stale
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "invalid_group_cycle", decode[ErrorResponse](t, rec).Code)

	list := ts.do(http.MethodGet, "/api/organization/groups/kapoenen/members", demoToken, nil, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Empty(t, decode[[]MemberDTO](t, list))

	// AND: Advancing the cycle still works
	rec = ts.do(http.MethodPost, "/api/organization/groups", demoToken, map[string]any{
		"id":     "kapoenen",
		"name":   "Kapoenen",
		"cycle":  3,
		"prices": []map[string]any{{"price": "40"}},
	}, nil)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// SCENARIO TESTS
// =============================================================================

func TestScenarios(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(http.MethodGet, "/api/scenarios/", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ScenarioDTO](t, rec), len(scenarios))

	rec = ts.do(http.MethodPost, "/api/scenarios/load", "", map[string]string{"scenario_id": "nope"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Loading twice resets instead of colliding
	for i := 0; i < 2; i++ {
		rec = ts.do(http.MethodPost, "/api/scenarios/load", "", map[string]string{"scenario_id": "returning-family"}, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = ts.do(http.MethodGet, "/api/scenarios/current", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "returning-family", decode[ScenarioDTO](t, rec).ID)
}
