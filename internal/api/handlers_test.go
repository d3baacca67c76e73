package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohamedkhairy/trade-alerter/internal/models"
	"github.com/mohamedkhairy/trade-alerter/internal/rules"
	"github.com/mohamedkhairy/trade-alerter/internal/storage"
	"github.com/mohamedkhairy/trade-alerter/pkg/auth"
)

type recordingNotifier struct {
	changes int
}

func (n *recordingNotifier) RulesChanged() { n.changes++ }

type testFixture struct {
	router    http.Handler
	ruleStore *rules.MemoryStore
	alerts    *storage.MemoryAlertStorage
	watchlist *storage.MemoryWatchlistStorage
	notifier  *recordingNotifier
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		ruleStore: rules.NewMemoryStore(),
		alerts:    storage.NewMemoryAlertStorage(),
		watchlist: storage.NewMemoryWatchlistStorage(),
		notifier:  &recordingNotifier{},
	}
	f.router = NewRouter(RouterConfig{
		RuleStore:    f.ruleStore,
		AlertStorage: f.alerts,
		Watchlist:    f.watchlist,
		Notifier:     f.notifier,
		Verifier:     auth.NewVerifier(""),
	})
	return f
}

func (f *testFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func ruleBody() map[string]interface{} {
	return map[string]interface{}{
		"name":      "Breakout",
		"rule_type": "price",
		"enabled":   true,
		"priority":  5,
		"conditions": []map[string]interface{}{
			{"field": "price", "operator": ">", "value": 100.0},
		},
	}
}

func TestCreateAndGetRule(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules", ruleBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, f.notifier.changes)

	rec = f.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Count)
}

func TestCreateRule_ValidationErrorNamesField(t *testing.T) {
	f := newFixture(t)

	body := ruleBody()
	body["conditions"] = []map[string]interface{}{
		{"field": "price", "operator": ">>", "value": 100.0},
	}

	rec := f.do(t, http.MethodPost, "/api/v1/rules", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error string `json:"error"`
		Field string `json:"field"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "conditions.operator", resp.Field)
	assert.Contains(t, resp.Error, "operator")
	assert.Equal(t, 0, f.notifier.changes, "invalid rules must not trigger cache invalidation")
}

func TestUpdateRule(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules", ruleBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	body := ruleBody()
	body["name"] = "Renamed"
	rec = f.do(t, http.MethodPut, "/api/v1/rules/"+created.ID, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	updated, err := f.ruleStore.GetRule(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	rec = f.do(t, http.MethodPut, "/api/v1/rules/missing", ruleBody())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteRule(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules", ruleBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnableDisableRule(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules", ruleBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var created models.Rule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodPost, "/api/v1/rules/"+created.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	enabled, err := f.ruleStore.GetEnabledRules()
	require.NoError(t, err)
	assert.Empty(t, enabled)

	rec = f.do(t, http.MethodPost, "/api/v1/rules/"+created.ID+"/enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	enabled, err = f.ruleStore.GetEnabledRules()
	require.NoError(t, err)
	assert.Len(t, enabled, 1)
}

func TestValidateRuleEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/rules/validate", ruleBody())
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)

	bad := ruleBody()
	bad["conditions"] = []map[string]interface{}{}
	rec = f.do(t, http.MethodPost, "/api/v1/rules/validate", bad)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.NotEmpty(t, resp.Error)
}

func seedAlert(t *testing.T, f *testFixture, id, symbol string, setup models.SetupType) {
	t.Helper()
	err := f.alerts.WriteAlert(context.Background(), &models.Alert{
		ID:        id,
		RuleID:    "rule-1",
		RuleName:  "Breakout",
		Symbol:    symbol,
		SetupType: setup,
		Timestamp: time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestListAlerts(t *testing.T) {
	f := newFixture(t)
	seedAlert(t, f, "a1", "AAPL", models.SetupBreakout)
	seedAlert(t, f, "a2", "TSLA", models.SetupVolumeSpike)

	rec := f.do(t, http.MethodGet, "/api/v1/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 2, listing.Count)

	rec = f.do(t, http.MethodGet, "/api/v1/alerts?symbol=AAPL", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Count)

	rec = f.do(t, http.MethodGet, "/api/v1/alerts?setup_type=volume_spike", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Count)
}

func TestGetAlertStats(t *testing.T) {
	f := newFixture(t)
	seedAlert(t, f, "a1", "AAPL", models.SetupBreakout)
	seedAlert(t, f, "a2", "AAPL", models.SetupVolumeSpike)
	seedAlert(t, f, "a3", "TSLA", models.SetupBreakout)
	require.NoError(t, f.alerts.MarkAlertRead(context.Background(), "a1", true))

	rec := f.do(t, http.MethodGet, "/api/v1/alerts/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats storage.AlertStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.Unread)
	assert.Equal(t, int64(2), stats.BySetupType[string(models.SetupBreakout)])
	assert.Equal(t, int64(1), stats.BySetupType[string(models.SetupVolumeSpike)])
	assert.Equal(t, int64(2), stats.BySymbol["AAPL"])
	assert.Equal(t, int64(1), stats.BySymbol["TSLA"])
}

func TestMarkAlertRead(t *testing.T) {
	f := newFixture(t)
	seedAlert(t, f, "a1", "AAPL", models.SetupBreakout)

	rec := f.do(t, http.MethodPatch, "/api/v1/alerts/a1/read", map[string]bool{"is_read": true})
	require.Equal(t, http.StatusOK, rec.Code)

	alert, err := f.alerts.GetAlert(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, alert.IsRead)

	rec = f.do(t, http.MethodPatch, "/api/v1/alerts/missing/read", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWatchlistEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/watchlist", map[string]string{"symbol": "AAPL", "notes": "gap watch"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/watchlist", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/watchlist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Count)

	rec = f.do(t, http.MethodDelete, "/api/v1/watchlist/AAPL", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/watchlist", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 0, listing.Count)
}

func TestAuthRequiredForMutations(t *testing.T) {
	verifier := auth.NewVerifier("test-secret")
	f := &testFixture{
		ruleStore: rules.NewMemoryStore(),
		alerts:    storage.NewMemoryAlertStorage(),
		watchlist: storage.NewMemoryWatchlistStorage(),
		notifier:  &recordingNotifier{},
	}
	f.router = NewRouter(RouterConfig{
		RuleStore:    f.ruleStore,
		AlertStorage: f.alerts,
		Watchlist:    f.watchlist,
		Notifier:     f.notifier,
		Verifier:     verifier,
	})

	// Reads stay open
	rec := f.do(t, http.MethodGet, "/api/v1/rules", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Mutations without a token are rejected
	rec = f.do(t, http.MethodPost, "/api/v1/rules", ruleBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// A valid token gets through
	token, err := verifier.IssueToken("user-1", time.Hour)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(ruleBody()))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/rules", &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
